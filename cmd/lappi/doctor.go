package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/lappi/internal/config"
	"github.com/franz/lappi/internal/files"
	"github.com/franz/lappi/internal/migrate"
	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure lappi can operate correctly.

This command checks:
- Configuration validity
- SQLite version compatibility
- Database accessibility and integrity
- Storage root permissions and mount type
- Temp directory used for the migration journal
- Unfinished migrations
- Disk space availability

Use this command to troubleshoot issues before running lappi operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Lappi Doctor - System Diagnostics ===")

	results := []checkResult{}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		results = append(results, checkResult{name: "Configuration", error: true, message: err.Error()})
		cfg = config.NewDefaultConfig()
	} else {
		results = append(results, checkResult{name: "Configuration", message: "valid"})
	}

	results = append(results, checkSQLite())
	results = append(results, checkDatabase(cfg.DB))

	if cfg.Storage.Persistent {
		results = append(results, checkStorageRoot(cfg.Storage.Root))
		results = append(results, checkMount(cfg.Storage.Root))
		results = append(results, checkDiskSpace(cfg.Storage.Root, "storage root"))
	} else {
		results = append(results, checkResult{
			name:    "Storage root",
			warning: true,
			message: "ephemeral mode, files are not written",
		})
	}

	results = append(results, checkTempDir(cfg.TempDir))
	results = append(results, checkJournal(cfg.DB, cfg.JournalPath(migrate.DefaultJournalName)))

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running lappi.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! System is ready for lappi operations.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	var items, stored int
	db.Do(func(c *store.Conn) error {
		items, _ = c.Count("music_items")
		stored, _ = c.Count("internal_files")
		return nil
	})

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %s items, %s files)", dbPath, util.FormatBytes(info.Size()),
			util.FormatCount(items), util.FormatCount(stored)),
	}
}

// checkStorageRoot verifies the storage root is a writable directory,
// creating it when missing
func checkStorageRoot(path string) checkResult {
	return checkWritableDir("Storage root", path)
}

// checkTempDir verifies the journal can be written
func checkTempDir(path string) checkResult {
	return checkWritableDir("Temp directory", path)
}

func checkWritableDir(name, path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    name,
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    name,
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".lappi_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkMount reports the filesystem type of the storage root
func checkMount(path string) checkResult {
	mount := util.DetectMount(path)
	if mount.FSType == "" {
		return checkResult{
			name:    "Storage mount",
			message: "unknown (no /proc/mounts)",
		}
	}
	if mount.IsNetwork {
		return checkResult{
			name:    "Storage mount",
			warning: true,
			message: fmt.Sprintf("%s on %s is a network filesystem, retries are enabled", mount.FSType, mount.MountPath),
		}
	}
	return checkResult{
		name:    "Storage mount",
		message: fmt.Sprintf("%s on %s", mount.FSType, mount.MountPath),
	}
}

// checkJournal reports a migration that was interrupted before all of its
// journaled moves were applied
func checkJournal(dbPath, journalPath string) checkResult {
	entries, err := migrate.ReadJournal(afero.NewOsFs(), journalPath)
	if errors.Is(err, fs.ErrNotExist) {
		return checkResult{name: "Migration journal", message: "none"}
	}
	if err != nil {
		return checkResult{
			name:    "Migration journal",
			warning: true,
			message: fmt.Sprintf("cannot read %s: %v", journalPath, err),
		}
	}
	if len(entries) == 0 {
		return checkResult{name: "Migration journal", message: "empty"}
	}
	if _, err := os.Stat(dbPath); err != nil {
		return checkResult{
			name:    "Migration journal",
			warning: true,
			message: fmt.Sprintf("%d entries but no database at %s", len(entries), dbPath),
		}
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Migration journal",
			warning: true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer st.Close()

	reg := files.New(&files.Config{Store: st})
	pending := 0
	for _, e := range entries {
		current, err := reg.Resolve(e.FileID)
		if err != nil || current != e.NewPath {
			pending++
		}
	}
	if pending > 0 {
		return checkResult{
			name:    "Migration journal",
			warning: true,
			message: fmt.Sprintf("%d of %d moves not applied, run 'lappi migrate' to finish", pending, len(entries)),
		}
	}
	return checkResult{
		name:    "Migration journal",
		message: fmt.Sprintf("%d moves, all applied", len(entries)),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	availGB := float64(availBytes) / (1024 * 1024 * 1024)
	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// Warn if less than 10GB available or >90% used
	warning := false
	warningMsg := ""
	if availGB < 10 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", util.FormatBytes(int64(availBytes)), warningMsg),
	}
}
