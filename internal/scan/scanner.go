// Package scan imports a directory tree of music files into the collection,
// filing each under Artist/Album folders taken from its tags or location.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/folders"
	"github.com/franz/lappi/internal/library"
	"github.com/franz/lappi/internal/util"
)

// Scanner imports music files found under a source directory
type Scanner struct {
	lib         *library.Library
	h           *folders.Hierarchy
	fs          afero.Fs
	concurrency int
}

// Config holds scanner configuration
type Config struct {
	Library     *library.Library
	Concurrency int // tag reading workers, default 4
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scanner{
		lib:         cfg.Library,
		h:           cfg.Library.Hierarchy(),
		fs:          cfg.Library.Registry().Fs(),
		concurrency: cfg.Concurrency,
	}
}

// Result represents a scan result
type Result struct {
	Imported int
	Skipped  int
	Errors   []error
}

type errorList struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorList) add(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

// Scan walks sourcePath and imports every supported music file. Tags are
// read by a worker pool; one writer places the tracks so that folders are
// created once. Files whose item already exists are skipped.
func (s *Scanner) Scan(ctx context.Context, sourcePath string) (*Result, error) {
	util.InfoLog("Starting scan of: %s", sourcePath)

	root := s.lib.Registry().Root()
	inside, err := within(root, sourcePath)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, fmt.Errorf("source %s is inside the storage root %s", sourcePath, root)
	}

	var errs errorList
	paths := make(chan string, 100)
	tracks := make(chan *Track, 100)

	var filesFound, filesImported, filesSkipped atomic.Int64

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	// Tag readers
	var readers sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for path := range paths {
				select {
				case tracks <- s.identify(sourcePath, path):
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		readers.Wait()
		close(tracks)
	}()

	// Single writer: folder creation is find-or-create, items are not
	placed := make(chan struct{})
	go func() {
		defer close(placed)
		err := s.lib.Batch(func() error {
			for t := range tracks {
				if ctx.Err() != nil {
					continue
				}
				imported, err := s.place(ctx, t)
				switch {
				case err != nil:
					util.ErrorLog("Failed to import %s: %v", t.Path, err)
					errs.add(fmt.Errorf("%s: %w", t.Path, err))
				case imported:
					filesImported.Add(1)
				default:
					filesSkipped.Add(1)
				}
				if bar != nil {
					bar.Describe(fmt.Sprintf("Scanning | %d found | %d imported | %d skipped",
						filesFound.Load(), filesImported.Load(), filesSkipped.Load()))
					bar.Add(1)
				}
			}
			return nil
		})
		if err != nil {
			errs.add(err)
		}
	}()

	walkErr := afero.Walk(s.fs, sourcePath, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			errs.add(fmt.Errorf("access error: %s: %w", path, err))
			return nil
		}
		if info.IsDir() {
			if in, _ := within(root, path); in {
				return filepath.SkipDir
			}
		}
		if info.IsDir() || !isMusicFile(path) {
			return nil
		}

		filesFound.Add(1)
		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	close(paths)
	<-placed

	if bar != nil {
		bar.Finish()
	}

	result := &Result{
		Imported: int(filesImported.Load()),
		Skipped:  int(filesSkipped.Load()),
		Errors:   errs.errs,
	}

	if walkErr != nil && walkErr != context.Canceled {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Scan complete: %d files imported, %d skipped, %d errors",
		result.Imported, result.Skipped, len(result.Errors))

	return result, nil
}

// identify combines the path guess with the file's embedded tags
func (s *Scanner) identify(source, path string) *Track {
	t := parsePath(source, path)
	if tags, err := s.lib.ReadEmbeddedTags(path); err == nil {
		t.merge(tags.Title, tags.Artist, tags.Album, tags.Track)
	} else {
		util.DebugLog("No embedded tags in %s: %v", path, err)
	}
	t.fillUnknown()
	return t
}

// place files t under Artist/Album and imports its music file. It reports
// false when the album already holds an item of that name.
func (s *Scanner) place(ctx context.Context, t *Track) (bool, error) {
	artist, err := s.h.FindOrCreateChild(folders.RootID, t.Artist, folders.Artist)
	if err != nil {
		return false, err
	}
	album, err := s.h.FindOrCreateChild(artist, t.Album, folders.Album)
	if err != nil {
		return false, err
	}

	existing, err := s.lib.ItemsInFolder(album)
	if err != nil {
		return false, err
	}
	for _, id := range existing {
		item, err := s.lib.Item(id)
		if err != nil {
			return false, err
		}
		if item.Name == t.Title {
			util.DebugLog("Already in collection: %s", t.Path)
			return false, nil
		}
	}

	itemID, err := s.lib.CreateItem(album, t.Title)
	if err != nil {
		return false, err
	}
	if t.Number > 0 {
		if err := s.h.SetTag(folders.ItemOwner(itemID), library.TagTrack, folders.IntValue(int64(t.Number))); err != nil {
			s.lib.DeleteItem(itemID)
			return false, err
		}
	}
	if _, err := s.lib.ImportMusicFile(ctx, itemID, t.Path); err != nil {
		s.lib.DeleteItem(itemID)
		return false, err
	}
	util.DebugLog("Imported %s as item %d", t.Path, itemID)
	return true, nil
}

// within reports whether path is root or lies below it. Both are made
// absolute first, so a relative root still matches an absolute path.
func within(root, path string) (bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false, fmt.Errorf("failed to compare %s with %s: %w", path, root, err)
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)), nil
}

func isMusicFile(path string) bool {
	_, err := library.FileTypeFromPath(path)
	return err == nil
}
