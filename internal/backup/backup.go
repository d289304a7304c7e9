// Package backup dumps every collection table to one JSON lines file and
// loads such a dump back into an empty store.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

const fileExt = ".jsonl"

// Summary counts rows per table
type Summary map[string]int

// Total returns the number of rows over all tables
func (s Summary) Total() int {
	n := 0
	for _, count := range s {
		n += count
	}
	return n
}

// FileName returns the dump file name of a table
func FileName(table string) string {
	return table + fileExt
}

// ExportAll writes <table>.jsonl into dir for every table. Tables are
// exported concurrently; the store serializes the reads.
func ExportAll(ctx context.Context, fsys afero.Fs, st *store.Store, dir string) (Summary, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	tables := st.Tables()
	counts := make([]int, len(tables))

	g, ctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		g.Go(func() error {
			n, err := exportTable(ctx, fsys, st, table, filepath.Join(dir, FileName(table)))
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := make(Summary, len(tables))
	for i, table := range tables {
		summary[table] = counts[i]
	}
	util.DebugLog("Exported %d rows to %s", summary.Total(), dir)
	return summary, nil
}

func exportTable(ctx context.Context, fsys afero.Fs, st *store.Store, table, path string) (int, error) {
	f, err := fsys.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	n := 0
	err = st.ExportTable(table, func(row store.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		return enc.Encode(row.Map())
	})
	if err != nil {
		return 0, fmt.Errorf("failed to export %s: %w", table, err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, f.Sync()
}

// ImportAll loads every dump file found in dir, in table dependency order.
// Tables without a file are left alone. A table that already holds rows is
// refused, so an import never mixes with existing data.
func ImportAll(ctx context.Context, fsys afero.Fs, st *store.Store, dir string) (Summary, error) {
	summary := make(Summary)
	for _, table := range st.Tables() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rows, err := readRows(fsys, filepath.Join(dir, FileName(table)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return summary, err
		}

		empty, err := st.IsEmpty(table)
		if err != nil {
			return summary, err
		}
		if !empty {
			return summary, fmt.Errorf("import %s: table is not empty: %w", table, util.ErrConflict)
		}

		if err := st.ImportTable(table, rows); err != nil {
			return summary, err
		}
		summary[table] = len(rows)
	}
	util.DebugLog("Imported %d rows from %s", summary.Total(), dir)
	return summary, nil
}

func readRows(fsys afero.Fs, path string) ([]store.Row, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []store.Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(scanner.Bytes()))
		dec.UseNumber()
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		row := store.Row{}
		for col, v := range m {
			row.Columns = append(row.Columns, col)
			row.Values = append(row.Values, v)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}
