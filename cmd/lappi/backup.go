package main

import (
	"context"
	"sort"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/backup"
	"github.com/franz/lappi/internal/util"
)

var exportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Dump every collection table to <dir>/<table>.jsonl",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			summary, err := backup.ExportAll(context.Background(), afero.NewOsFs(), a.st, args[0])
			if err != nil {
				return err
			}
			logSummary("Exported", summary)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Load a dump written by 'lappi export' into an empty database",
	Long: `Load a dump written by 'lappi export'.

Tables are loaded in dependency order. A table without a dump file is left
alone; a table that already holds rows is refused. Files under the storage
root are not copied: restore them separately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			summary, err := backup.ImportAll(context.Background(), afero.NewOsFs(), a.st, args[0])
			if err != nil {
				return err
			}
			logSummary("Imported", summary)
			return nil
		})
	},
}

func logSummary(verb string, summary backup.Summary) {
	tables := make([]string, 0, len(summary))
	for table := range summary {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		util.InfoLog("  %-16s %s rows", table, util.FormatCount(summary[table]))
	}
	util.SuccessLog("%s %s rows", verb, util.FormatCount(summary.Total()))
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}
