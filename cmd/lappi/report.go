package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/lappi/internal/report"
	"github.com/franz/lappi/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the database and an event log",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Row counts of every collection table
- The latest migration run of the event log (when --event-log is given)
- Top errors and skipped relocations

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		util.InfoLog("=== Generating Summary Report ===")

		eventLogPath, _ := cmd.Flags().GetString("event-log")
		summaryReport, err := report.GenerateSummaryReport(a.st, eventLogPath)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}

		outputDir, _ := cmd.Flags().GetString("out")
		if outputDir == "" {
			timestamp := time.Now().Format("20060102-150405")
			outputDir = filepath.Join("artifacts", "reports", timestamp)
		}
		outputPath := filepath.Join(outputDir, "summary.md")

		if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
			return err
		}
		util.SuccessLog("Report written to %s", outputPath)
		return nil
	})
}
