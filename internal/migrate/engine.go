// Package migrate moves stored files whose recorded path no longer matches
// the path their current metadata gives them.
//
// A run plans first: it walks every asset, compares canonical and recorded
// paths and writes one journal line per drifted file. Only then does it
// replay the journal, renaming one file per entry, and finally sweep empty
// directories. Planning reads nothing but current state, so a run that was
// interrupted or crashed is resumed by simply running again.
package migrate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/library"
	"github.com/franz/lappi/internal/report"
	"github.com/franz/lappi/internal/util"
)

// DefaultJournalName is the journal file name under the temp directory
const DefaultJournalName = "lappi-migration.jsonl"

// Catalog enumerates stored assets with their canonical paths
type Catalog interface {
	WalkAssets(kind library.AssetKind, fn func(library.Asset) error) error
}

// Files is the part of the file registry the engine needs
type Files interface {
	Root() string
	Resolve(id int64) (files.InternalPath, error)
	RewritePath(id int64, newPath files.InternalPath) error
	SweepEmptyDirs() (int, error)
}

// Progress receives progress and is polled for interruption.
// *jobs.Context satisfies it.
type Progress interface {
	SetProgress(fraction float64, status string)
	Interrupted() bool
}

type noProgress struct{}

func (noProgress) SetProgress(float64, string) {}
func (noProgress) Interrupted() bool           { return false }

// Config holds engine configuration
type Config struct {
	Catalog     Catalog
	Files       Files
	Fs          afero.Fs // filesystem of the journal, defaults to the OS
	JournalPath string   // defaults to DefaultJournalName in the temp dir
	Logger      *report.EventLogger
}

// Engine is the file relocation migration engine
type Engine struct {
	catalog     Catalog
	files       Files
	fs          afero.Fs
	journalPath string
	logger      *report.EventLogger
}

// New creates an engine
func New(cfg *Config) *Engine {
	fsys := cfg.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	journal := cfg.JournalPath
	if journal == "" {
		journal = filepath.Join(os.TempDir(), DefaultJournalName)
	}
	return &Engine{
		catalog:     cfg.Catalog,
		files:       cfg.Files,
		fs:          fsys,
		journalPath: journal,
		logger:      cfg.Logger,
	}
}

// JournalPath returns where the journal is written
func (e *Engine) JournalPath() string {
	return e.journalPath
}

// Logger returns the audit logger, which may be nil
func (e *Engine) Logger() *report.EventLogger {
	return e.logger
}

// Result summarizes a run
type Result struct {
	Planned     int
	Applied     int
	Conflicts   int
	Swept       int
	Interrupted bool
	Duration    time.Duration
}

// Plan truncates the journal and fills it with every drifted asset
func (e *Engine) Plan(p Progress) (*Result, error) {
	if p == nil {
		p = noProgress{}
	}
	result := &Result{}
	p.SetProgress(0, "Planning")

	var candidates []*candidate
	for _, kind := range library.AssetKinds() {
		err := e.catalog.WalkAssets(kind, func(a library.Asset) error {
			if p.Interrupted() {
				return errInterrupted
			}
			current, err := e.files.Resolve(a.FileID)
			if err != nil {
				return err
			}
			candidates = append(candidates, &candidate{asset: a, current: current})
			return nil
		})
		if errors.Is(err, errInterrupted) {
			util.InfoLog("Planning interrupted")
			result.Interrupted = true
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s assets: %w", kind, err)
		}
	}

	moves, dropped := resolveMoves(candidates)
	for _, c := range dropped {
		util.WarnLog("Not moving file %d (%s): %s", c.asset.FileID, c.current, c.reason)
		e.logger.LogConflict(c.asset.FileID, string(c.current), string(c.asset.Canonical), c.reason)
	}
	result.Conflicts = len(dropped)

	w, err := createJournal(e.fs, e.journalPath)
	if err != nil {
		return nil, e.journalErr(err)
	}
	for _, c := range moves {
		entry := Entry{FileID: c.asset.FileID, NewPath: c.asset.Canonical}
		if err := w.append(entry); err != nil {
			w.abort()
			return nil, e.journalErr(err)
		}
		e.logger.LogPlan(c.asset.FileID, c.asset.Kind.String(), string(c.current), string(c.asset.Canonical))
	}
	if err := w.commit(); err != nil {
		return nil, e.journalErr(err)
	}

	result.Planned = w.n
	util.InfoLog("Planned %d of %d files to move", result.Planned, len(candidates))
	return result, nil
}

// Apply replays the journal. total is the number of planned entries and
// only scales progress. Interruption is checked before every entry and
// ends the replay successfully; the first failed move aborts it with the
// earlier moves left in place.
func (e *Engine) Apply(p Progress, total int) (*Result, error) {
	if p == nil {
		p = noProgress{}
	}
	result := &Result{}

	r, err := openJournal(e.fs, e.journalPath)
	if err != nil {
		return nil, e.journalErr(err)
	}
	defer r.close()

	done := 0
	for {
		if p.Interrupted() {
			util.InfoLog("Migration interrupted after %d of %d files", done, total)
			result.Interrupted = true
			return result, nil
		}

		entry, err := r.next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, e.journalErr(err)
		}

		old, err := e.files.Resolve(entry.FileID)
		if err != nil {
			return result, err
		}

		start := time.Now()
		err = e.files.RewritePath(entry.FileID, entry.NewPath)
		switch {
		case errors.Is(err, util.ErrConflict):
			util.WarnLog("Skipping %s: %s is taken", old, entry.NewPath)
			e.logger.LogConflict(entry.FileID, string(old), string(entry.NewPath), "target exists on disk")
			result.Conflicts++
		case err != nil:
			e.logger.LogMove(entry.FileID, string(old), string(entry.NewPath), time.Since(start), err)
			return result, fmt.Errorf("failed to move file %d: %w", entry.FileID, err)
		default:
			e.logger.LogMove(entry.FileID, string(old), string(entry.NewPath), time.Since(start), nil)
			util.DebugLog("Moved %s -> %s", old, entry.NewPath)
			result.Applied++
		}

		done++
		p.SetProgress(fraction(done, total), fmt.Sprintf("Moved %d of %d files", done, total))
	}
}

// Run plans, applies and sweeps
func (e *Engine) Run(p Progress) (*Result, error) {
	if p == nil {
		p = noProgress{}
	}
	start := time.Now()

	result, err := e.Plan(p)
	if err != nil {
		e.logger.LogRun("plan", 0, 0, time.Since(start), err)
		return nil, err
	}
	if result.Interrupted {
		result.Duration = time.Since(start)
		e.logger.LogRun("interrupted", result.Planned, 0, result.Duration, nil)
		return result, nil
	}

	if result.Planned > 0 {
		applied, err := e.Apply(p, result.Planned)
		if applied != nil {
			result.Applied = applied.Applied
			result.Conflicts += applied.Conflicts
			result.Interrupted = applied.Interrupted
		}
		if err != nil {
			result.Duration = time.Since(start)
			e.logger.LogRun("apply", result.Planned, result.Applied, result.Duration, err)
			return result, err
		}
		if result.Interrupted {
			result.Duration = time.Since(start)
			e.logger.LogRun("interrupted", result.Planned, result.Applied, result.Duration, nil)
			return result, nil
		}
	}

	swept, err := e.files.SweepEmptyDirs()
	if err != nil {
		result.Duration = time.Since(start)
		e.logger.LogRun("sweep", result.Planned, result.Applied, result.Duration, err)
		return result, fmt.Errorf("failed to sweep empty directories: %w", err)
	}
	result.Swept = swept
	e.logger.LogSweep(e.files.Root(), swept)

	result.Duration = time.Since(start)
	e.logger.LogRun("done", result.Planned, result.Applied, result.Duration, nil)
	p.SetProgress(1, "Done")
	return result, nil
}

var errInterrupted = errors.New("interrupted")

// journalErr records a failed journal read or write in the audit log
func (e *Engine) journalErr(err error) error {
	e.logger.LogError(report.EventError, e.journalPath, err)
	return err
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(done) / float64(total)
}
