// Package files maps durable file ids to internal paths under the storage
// root and performs every filesystem change that goes with them.
//
// Filesystem work always happens without the store lock held: the registry
// reads or writes one row, releases the store, then touches the disk.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

const (
	dirPerm = 0o755

	// partSuffix marks files that are still being written
	partSuffix = ".part"
)

// Config holds registry settings
type Config struct {
	Store *store.Store
	Fs    afero.Fs // defaults to the OS filesystem
	Root  string   // storage root directory

	// Persistent=false is ephemeral mode: paths are tracked but every
	// filesystem operation is skipped.
	Persistent bool

	Retry *util.RetryConfig
}

// Registry is the internal file registry
type Registry struct {
	st         *store.Store
	fs         afero.Fs
	root       string
	persistent bool
	retry      *util.RetryConfig
}

// Entry is one registered file
type Entry struct {
	ID   int64
	Path InternalPath
}

// New creates a registry
func New(cfg *Config) *Registry {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	retry := cfg.Retry
	if retry == nil {
		retry = util.DefaultRetryConfig()
	}
	return &Registry{
		st:         cfg.Store,
		fs:         fsys,
		root:       filepath.Clean(cfg.Root),
		persistent: cfg.Persistent,
		retry:      retry,
	}
}

// Fs returns the filesystem the registry works on
func (r *Registry) Fs() afero.Fs {
	return r.fs
}

// Root returns the storage root
func (r *Registry) Root() string {
	return r.root
}

// Persistent reports whether filesystem operations are performed
func (r *Registry) Persistent() bool {
	return r.persistent
}

// AbsPath resolves an internal path against the storage root
func (r *Registry) AbsPath(p InternalPath) string {
	return filepath.Join(r.root, filepath.FromSlash(string(p)))
}

// Resolve returns the recorded internal path of a file
func (r *Registry) Resolve(id int64) (InternalPath, error) {
	var p string
	if err := r.st.GetField("internal_files", id, "internal_path", &p); err != nil {
		return "", err
	}
	return InternalPath(p), nil
}

// PhysicalPath returns where the file of id lives on disk
func (r *Registry) PhysicalPath(id int64) (string, error) {
	p, err := r.Resolve(id)
	if err != nil {
		return "", err
	}
	return r.AbsPath(p), nil
}

// All lists every registered file ordered by id
func (r *Registry) All() ([]Entry, error) {
	var entries []Entry
	err := r.st.Do(func(conn *store.Conn) error {
		rows, err := conn.Query("SELECT id, internal_path FROM internal_files ORDER BY id")
		if err != nil {
			return fmt.Errorf("failed to list internal files: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e Entry
			if err := rows.Scan(&e.ID, &e.Path); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	return entries, err
}

func (r *Registry) exists(path string) (bool, error) {
	_, err := util.RetryableStat(r.fs, path, r.retry)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (r *Registry) insert(p InternalPath) (int64, error) {
	return r.st.InsertRow("internal_files", []string{"internal_path"}, string(p))
}

// claim fails with util.ErrConflict when p is recorded for another file or,
// in persistent mode, something already exists at p on disk
func (r *Registry) claim(p InternalPath) error {
	ids, err := r.st.ListIDsWhere("internal_files", "internal_path", string(p))
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		return fmt.Errorf("register %s: %w: recorded for file %d", p, util.ErrConflict, ids[0])
	}
	if !r.persistent {
		return nil
	}
	abs := r.AbsPath(p)
	ok, err := r.exists(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if ok {
		return fmt.Errorf("register %s: %w", p, util.ErrConflict)
	}
	return nil
}

// Register allocates a file id for p and creates an empty placeholder file
// there. A path that is already taken is util.ErrConflict.
func (r *Registry) Register(p InternalPath) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := r.claim(p); err != nil {
		return 0, err
	}
	if !r.persistent {
		return r.insert(p)
	}

	abs := r.AbsPath(p)
	if err := util.RetryableMkdirAll(r.fs, filepath.Dir(abs), dirPerm, r.retry); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := util.RetryableCreate(r.fs, abs, r.retry)
	if err != nil {
		return 0, fmt.Errorf("failed to create placeholder: %w", err)
	}
	f.Close()

	id, err := r.insert(p)
	if err != nil {
		r.fs.Remove(abs)
	}
	return id, err
}

// writeAtomic streams src into abs through a .part file and renames it in place
func (r *Registry) writeAtomic(ctx context.Context, abs string, src io.Reader) (int64, error) {
	if err := util.RetryableMkdirAll(r.fs, filepath.Dir(abs), dirPerm, r.retry); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tempPath := abs + partSuffix
	dest, err := util.RetryableCreate(r.fs, tempPath, r.retry)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := copyWithContext(ctx, dest, src)
	if err == nil {
		err = dest.Sync()
	}
	dest.Close()
	if err != nil {
		r.fs.Remove(tempPath)
		return 0, fmt.Errorf("failed to write %s: %w", abs, err)
	}

	if err := util.RetryableRename(r.fs, tempPath, abs, r.retry); err != nil {
		r.fs.Remove(tempPath)
		return 0, fmt.Errorf("failed to rename: %w", err)
	}
	return written, nil
}

// Import copies the file at src (on the registry filesystem) to the
// internal path p and registers it. It returns the new id and the byte count.
func (r *Registry) Import(ctx context.Context, src string, p InternalPath) (int64, int64, error) {
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	if err := r.claim(p); err != nil {
		return 0, 0, err
	}
	if !r.persistent {
		id, err := r.insert(p)
		return id, 0, err
	}

	abs := r.AbsPath(p)

	in, err := util.RetryableOpen(r.fs, src, r.retry)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	written, err := r.writeAtomic(ctx, abs, in)
	if err != nil {
		return 0, 0, err
	}

	id, err := r.insert(p)
	if err != nil {
		r.fs.Remove(abs)
		return 0, 0, err
	}

	util.DebugLog("Imported: %s -> %s (%s)", src, p, util.FormatBytes(written))
	return id, written, nil
}

// WriteFile replaces the content of a registered file
func (r *Registry) WriteFile(id int64, data []byte) error {
	abs, err := r.PhysicalPath(id)
	if err != nil {
		return err
	}
	if !r.persistent {
		return nil
	}
	_, err = r.writeAtomic(context.Background(), abs, bytes.NewReader(data))
	return err
}

// ReadFile returns the content of a registered file
func (r *Registry) ReadFile(id int64) ([]byte, error) {
	abs, err := r.PhysicalPath(id)
	if err != nil {
		return nil, err
	}
	if !r.persistent {
		return nil, fmt.Errorf("read file %d: %w: storage is ephemeral", id, util.ErrUnsupported)
	}
	f, err := util.RetryableOpen(r.fs, abs, r.retry)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Stat returns file info for a registered file
func (r *Registry) Stat(id int64) (os.FileInfo, error) {
	abs, err := r.PhysicalPath(id)
	if err != nil {
		return nil, err
	}
	if !r.persistent {
		return nil, fmt.Errorf("stat file %d: %w: storage is ephemeral", id, util.ErrUnsupported)
	}
	return util.RetryableStat(r.fs, abs, r.retry)
}

// RewritePath moves a file to a new internal path. The physical rename
// happens first and the row is updated after it, so the row never points at
// a path that does not exist. If the row update fails the rename is undone.
//
// A file that is already at newPath while nothing is left at the recorded
// path is what an interrupted earlier rewrite leaves behind; the mapping is
// then updated without moving anything.
func (r *Registry) RewritePath(id int64, newPath InternalPath) error {
	if err := newPath.Validate(); err != nil {
		return err
	}
	old, err := r.Resolve(id)
	if err != nil {
		return err
	}
	if old == newPath {
		return nil
	}

	update := func() error {
		return r.st.SetField("internal_files", id, "internal_path", string(newPath))
	}
	if !r.persistent {
		return update()
	}

	src, dst := r.AbsPath(old), r.AbsPath(newPath)
	srcExists, err := r.exists(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	dstExists, err := r.exists(dst)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	caseOnly := src != dst && strings.EqualFold(src, dst)
	if caseOnly && srcExists && dstExists {
		// On a case-insensitive filesystem dst finds the source itself
		exact, err := r.existsExact(newPath)
		if err != nil {
			return err
		}
		if !exact {
			return r.renameCase(id, old, newPath, update)
		}
	}

	switch {
	case !srcExists && dstExists:
		util.WarnLog("File %d already at %s, updating mapping", id, newPath)
		return update()
	case dstExists:
		return fmt.Errorf("move %s -> %s: %w", old, newPath, util.ErrConflict)
	case !srcExists:
		return fmt.Errorf("move %s: %w: %s", old, util.ErrNotFound, src)
	}

	if err := util.RetryableMkdirAll(r.fs, filepath.Dir(dst), dirPerm, r.retry); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := util.RetryableRename(r.fs, src, dst, r.retry); err != nil {
		return fmt.Errorf("failed to move %s -> %s: %w", old, newPath, err)
	}

	if err := update(); err != nil {
		if rbErr := util.RetryableRename(r.fs, dst, src, r.retry); rbErr != nil {
			util.ErrorLog("Failed to move %s back to %s after mapping update failed: %v", dst, src, rbErr)
		}
		return err
	}

	util.DebugLog("Moved: %s -> %s", old, newPath)
	return nil
}

// existsExact reports whether every element of p exists under the root
// with exactly that spelling
func (r *Registry) existsExact(p InternalPath) (bool, error) {
	dir := r.root
	for _, elem := range strings.Split(string(p), "/") {
		entries, err := afero.ReadDir(r.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		found := false
		for _, e := range entries {
			if e.Name() == elem {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
		dir = filepath.Join(dir, elem)
	}
	return true, nil
}

// renameCase changes only the letter case of a file's path. The rename goes
// through a temporary name so that case-insensitive filesystems apply it.
func (r *Registry) renameCase(id int64, old, newPath InternalPath, update func() error) error {
	src, dst := r.AbsPath(old), r.AbsPath(newPath)
	tmp := fmt.Sprintf("%s.%d%s", src, id, partSuffix)

	if err := util.RetryableRename(r.fs, src, tmp, r.retry); err != nil {
		return fmt.Errorf("failed to move %s -> %s: %w", old, newPath, err)
	}
	err := util.RetryableMkdirAll(r.fs, filepath.Dir(dst), dirPerm, r.retry)
	if err == nil {
		err = util.RetryableRename(r.fs, tmp, dst, r.retry)
		if err == nil {
			if err = update(); err == nil {
				util.DebugLog("Moved: %s -> %s", old, newPath)
				return nil
			}
			util.RetryableRename(r.fs, dst, tmp, r.retry)
		}
	}

	if rbErr := util.RetryableRename(r.fs, tmp, src, r.retry); rbErr != nil {
		util.ErrorLog("Failed to move %s back to %s: %v", tmp, src, rbErr)
	}
	return fmt.Errorf("failed to move %s -> %s: %w", old, newPath, err)
}

// Delete removes the file and then its row. A file already gone from disk
// is not an error.
func (r *Registry) Delete(id int64) error {
	abs, err := r.PhysicalPath(id)
	if err != nil {
		return err
	}
	if r.persistent {
		err := util.RetryableRemove(r.fs, abs, r.retry)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", abs, err)
		}
	}
	return r.st.DeleteRow("internal_files", id)
}

// SweepEmptyDirs removes empty directories under the storage root until a
// full pass removes none. The root itself is kept. It returns how many
// directories were removed.
func (r *Registry) SweepEmptyDirs() (int, error) {
	if !r.persistent {
		return 0, nil
	}
	if ok, err := r.exists(r.root); err != nil || !ok {
		return 0, err
	}

	total := 0
	for {
		removed, err := r.sweepPass()
		if err != nil {
			return total, err
		}
		total += removed
		if removed == 0 {
			return total, nil
		}
	}
}

func (r *Registry) sweepPass() (int, error) {
	var dirs []string
	err := afero.Walk(r.fs, r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != r.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", r.root, err)
	}

	// deepest first
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	removed := 0
	for _, dir := range dirs {
		empty, err := afero.IsEmpty(r.fs, dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		if !empty {
			continue
		}
		if err := util.RetryableRemove(r.fs, dir, r.retry); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		util.DebugLog("Removed empty directory: %s", dir)
		removed++
	}
	return removed, nil
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 128*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er == io.EOF {
			return written, nil
		}
		if er != nil {
			return written, er
		}
	}
}
