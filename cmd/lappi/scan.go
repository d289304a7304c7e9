package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/scan"
	"github.com/franz/lappi/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan <source-dir>",
	Short: "Import every music file under a directory into the collection",
	Long: `Import every music file under a directory into the collection.

Each file is filed under Artist/Album folders taken from its embedded tags,
or from the two directories enclosing it when it has none. The track number
and title fall back to the file name ("01 - Title.mp3"). Files are copied
into the storage root; the source tree is left untouched. Files whose album
already holds an item of the same name are skipped, so a scan can be rerun.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("concurrency", 4, "number of tag reading workers")
}

func runScan(cmd *cobra.Command, args []string) error {
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(func(a *app) error {
		scanner := scan.New(&scan.Config{
			Library:     a.lib,
			Concurrency: concurrency,
		})
		result, err := scanner.Scan(ctx, args[0])
		if err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			util.WarnLog("%d files could not be imported, run with --verbose for details", len(result.Errors))
		}
		return nil
	})
}
