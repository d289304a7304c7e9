package store

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Conn is the connection as seen from inside Store.Do or Store.Transaction.
// It is only valid for the duration of the callback.
type Conn struct {
	q querier
}

// Column describes one column of a table
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// checkIdent rejects table and column names that are not plain identifiers.
// Names are interpolated into SQL, so this is the only guard against injection.
func checkIdent(names ...string) error {
	for _, name := range names {
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	return nil
}

// Exec executes a statement
func (c *Conn) Exec(query string, args ...interface{}) (sql.Result, error) {
	return c.q.Exec(query, args...)
}

// Query runs a query returning rows
func (c *Conn) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return c.q.Query(query, args...)
}

// QueryRow runs a query returning at most one row
func (c *Conn) QueryRow(query string, args ...interface{}) *sql.Row {
	return c.q.QueryRow(query, args...)
}

// GetField reads one column of the row with the given id into dest.
// A missing row is an error: callers reference rows that exist by construction.
func (c *Conn) GetField(table string, id int64, field string, dest interface{}) error {
	if err := checkIdent(table, field); err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", field, table)
	err := c.q.QueryRow(query, id).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s row %d not found: %w", table, id, err)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s.%s: %w", table, field, err)
	}
	return nil
}

// SetField updates one column of the row with the given id
func (c *Conn) SetField(table string, id int64, field string, value interface{}) error {
	if err := checkIdent(table, field); err != nil {
		return err
	}

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", table, field)
	result, err := c.q.Exec(query, value, id)
	if err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", table, field, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s row %d not found: %w", table, id, sql.ErrNoRows)
	}
	return nil
}

// FindOrInsert returns the id of the row whose field equals value, inserting
// a new row when none exists. created reports whether a row was inserted.
// Run it inside a transaction so lookup and insert form one unit.
func (c *Conn) FindOrInsert(table, field, value string) (id int64, created bool, err error) {
	if err := checkIdent(table, field); err != nil {
		return 0, false, err
	}

	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, field)
	err = c.q.QueryRow(query, value).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to look up %s: %w", table, err)
	}

	query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", table, field)
	result, err := c.q.Exec(query, value)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ListIDsWhere returns the ids of rows whose field equals value.
// A nil value matches NULL.
func (c *Conn) ListIDsWhere(table, field string, value interface{}) ([]int64, error) {
	if err := checkIdent(table, field); err != nil {
		return nil, err
	}

	if value == nil {
		return c.collectIDs(fmt.Sprintf("SELECT id FROM %s WHERE %s IS NULL ORDER BY id", table, field))
	}
	return c.collectIDs(fmt.Sprintf("SELECT id FROM %s WHERE %s = ? ORDER BY id", table, field), value)
}

// ListAllIDs returns the ids of every row in table
func (c *Conn) ListAllIDs(table string) ([]int64, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	return c.collectIDs(fmt.Sprintf("SELECT id FROM %s ORDER BY id", table))
}

func (c *Conn) collectIDs(query string, args ...interface{}) ([]int64, error) {
	rows, err := c.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertRow inserts a row and returns its id
func (c *Conn) InsertRow(table string, columns []string, values ...interface{}) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if err := checkIdent(columns...); err != nil {
		return 0, err
	}
	if len(columns) != len(values) {
		return 0, fmt.Errorf("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}

	var query string
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table)
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(columns, ", "), placeholders)
	}

	result, err := c.q.Exec(query, values...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return result.LastInsertId()
}

// DeleteRow removes the row with the given id. Deleting a missing row is not an error.
func (c *Conn) DeleteRow(table string, id int64) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if _, err := c.q.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// Count returns the number of rows in table
func (c *Conn) Count(table string) (int, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	var n int
	if err := c.q.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// TableSchema returns the columns of table in declaration order
func (c *Conn) TableSchema(table string) ([]Column, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	rows, err := c.q.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var (
			cid     int
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s does not exist", table)
	}
	return columns, nil
}
