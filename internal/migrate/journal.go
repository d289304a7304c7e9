package migrate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/files"
)

// Entry is one planned relocation
type Entry struct {
	FileID  int64              `json:"file_id"`
	NewPath files.InternalPath `json:"new_path"`
}

// journalWriter appends entries as JSON lines
type journalWriter struct {
	file afero.File
	buf  *bufio.Writer
	enc  *json.Encoder
	n    int
}

// createJournal truncates the journal at path
func createJournal(fsys afero.Fs, path string) (*journalWriter, error) {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &journalWriter{file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *journalWriter) append(e Entry) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	w.n++
	return nil
}

// commit flushes and syncs the journal. Planning is complete only after it.
func (w *journalWriter) commit() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	return w.file.Close()
}

func (w *journalWriter) abort() {
	w.file.Close()
}

// journalReader replays a journal line by line
type journalReader struct {
	file    afero.File
	scanner *bufio.Scanner
	line    int
}

func openJournal(fsys afero.Fs, path string) (*journalReader, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &journalReader{file: f, scanner: bufio.NewScanner(f)}, nil
}

// next returns the next entry, or io.EOF after the last one
func (r *journalReader) next() (Entry, error) {
	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return Entry{}, fmt.Errorf("journal line %d: %w", r.line, err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to read journal: %w", err)
	}
	return Entry{}, io.EOF
}

func (r *journalReader) close() error {
	return r.file.Close()
}

// ReadJournal returns every entry of the journal at path
func ReadJournal(fsys afero.Fs, path string) ([]Entry, error) {
	r, err := openJournal(fsys, path)
	if err != nil {
		return nil, err
	}
	defer r.close()

	var entries []Entry
	for {
		e, err := r.next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}
