package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/events"
	"github.com/franz/lappi/internal/jobs"
	"github.com/franz/lappi/internal/migrate"
	"github.com/franz/lappi/internal/report"
	"github.com/franz/lappi/internal/util"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move every stored file to its canonical path",
	Long: `Move every file the collection owns to the path derived from the
collection: folder names, item names, track tags and languages.

The planned moves are written to a journal in the temp directory before
any file is touched, so an interrupted run (Ctrl-C) leaves the collection
consistent and the next run continues where it stopped. Empty directories
left behind are removed at the end.

In ephemeral mode (--persistent=false) only the recorded paths change.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().String("report-dir", "", "write a JSONL event log to this directory")
	migrateCmd.Flags().String("report-level", "", "minimum event log level: debug, info, warning, error")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		reportDir, _ := cmd.Flags().GetString("report-dir")
		if reportDir == "" {
			reportDir = a.cfg.Report.Dir
		}
		level, _ := cmd.Flags().GetString("report-level")
		if level == "" {
			level = a.cfg.Report.Level
		}

		logger := report.NullLogger()
		if reportDir != "" {
			var err error
			logger, err = report.NewEventLogger(reportDir, report.ParseLevel(level))
			if err != nil {
				return err
			}
			defer logger.Close()
			util.InfoLog("Event log: %s", logger.Path())
		}

		engine := migrate.New(&migrate.Config{
			Catalog:     a.lib,
			Files:       a.reg,
			JournalPath: a.cfg.JournalPath(migrate.DefaultJournalName),
			Logger:      logger,
		})
		job := migrate.NewJob(engine)

		host := jobs.NewHost(a.bus)
		if err := host.Register(migrate.JobID, job); err != nil {
			return err
		}

		updates := a.bus.Subscribe(events.JobStateChanged)
		defer a.bus.Unsubscribe(updates)

		runID, err := host.Start(context.Background(), migrate.JobID)
		if err != nil {
			return err
		}
		util.DebugLog("Migration run %s", runID)

		done := make(chan struct{})
		go func() {
			host.Wait()
			close(done)
		}()

		watchJob(host, updates, done)

		state, err := host.State(migrate.JobID)
		if err != nil {
			return err
		}
		if state.Err != "" {
			return fmt.Errorf("migration failed: %s", state.Err)
		}
		if result := job.LastResult(); result != nil && !result.Interrupted && !util.IsQuiet() {
			fmt.Printf("Moved %s of %s files in %s\n",
				util.FormatCount(result.Applied), util.FormatCount(result.Planned), util.FormatDuration(result.Duration))
		}
		return nil
	})
}

// watchJob renders job progress until done is closed. The first Ctrl-C asks
// the job to stop; the job finishes the file it is moving and returns.
func watchJob(host *jobs.Host, updates <-chan events.Event, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(1000,
			progressbar.OptionSetDescription("Migrating"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		defer bar.Finish()
	}

	for {
		select {
		case <-done:
			return
		case <-sigCh:
			util.WarnLog("Interrupt received, stopping after the current file...")
			host.Stop(migrate.JobID)
		case ev := <-updates:
			state, ok := ev.Data.(jobs.State)
			if !ok || state.ID != migrate.JobID {
				continue
			}
			if bar != nil {
				bar.Describe(state.Status)
				bar.Set(int(state.Progress * 1000))
			} else {
				util.DebugLog("%s: %.0f%% %s", state.Stage, state.Progress*100, state.Status)
			}
		}
	}
}
