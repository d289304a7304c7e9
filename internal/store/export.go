package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one exported table row. Values are normalized to
// int64, float64, string, []byte or nil.
type Row struct {
	Columns []string
	Values  []interface{}
}

// Map returns the row as column -> value
func (r Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.Columns))
	for i, col := range r.Columns {
		m[col] = r.Values[i]
	}
	return m
}

// ExportTable reads every row of table and passes it to fn in id order.
// Rows are read under the store lock and handed to fn after it is released,
// so fn may do file I/O.
func (s *Store) ExportTable(table string, fn func(Row) error) error {
	var rows []Row
	err := s.Do(func(c *Conn) error {
		columns, err := c.TableSchema(table)
		if err != nil {
			return err
		}
		names := make([]string, len(columns))
		for i, col := range columns {
			names[i] = col.Name
		}

		result, err := c.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), table))
		if err != nil {
			return fmt.Errorf("failed to export %s: %w", table, err)
		}
		defer result.Close()

		for result.Next() {
			values := make([]interface{}, len(names))
			ptrs := make([]interface{}, len(names))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := result.Scan(ptrs...); err != nil {
				return fmt.Errorf("failed to scan %s row: %w", table, err)
			}
			for i, v := range values {
				values[i] = normalizeValue(v)
			}
			rows = append(rows, Row{Columns: names, Values: values})
		}
		return result.Err()
	})
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// ImportTable inserts rows into table in one transaction. Values are coerced
// to the declared column type, so rows decoded from text formats (where every
// number is a json.Number or string) round-trip exactly.
func (s *Store) ImportTable(table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	return s.Transaction(func(c *Conn) error {
		columns, err := c.TableSchema(table)
		if err != nil {
			return err
		}
		byName := make(map[string]Column, len(columns))
		for _, col := range columns {
			byName[col.Name] = col
		}

		for i, row := range rows {
			values := make([]interface{}, len(row.Values))
			for j, name := range row.Columns {
				col, ok := byName[name]
				if !ok {
					return fmt.Errorf("import %s row %d: unknown column %q", table, i, name)
				}
				v, err := coerceValue(col, row.Values[j])
				if err != nil {
					return fmt.Errorf("import %s row %d column %s: %w", table, i, name, err)
				}
				values[j] = v
			}
			if _, err := c.InsertRow(table, row.Columns, values...); err != nil {
				return err
			}
		}
		return nil
	})
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int64, float64, string:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return append([]byte(nil), x...)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// affinity follows the SQLite type affinity rules
func affinity(declType string) string {
	t := strings.ToUpper(declType)
	switch {
	case strings.Contains(t, "INT"):
		return "INTEGER"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "TEXT"
	case t == "" || strings.Contains(t, "BLOB"):
		return "BLOB"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return "REAL"
	default:
		return "NUMERIC"
	}
}

func coerceValue(col Column, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch affinity(col.Type) {
	case "INTEGER":
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		case json.Number:
			return x.Int64()
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case "REAL", "NUMERIC":
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case json.Number:
			return x.Float64()
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case "TEXT":
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case []byte:
			return string(x), nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot store %T in %s column", v, col.Type)
}
