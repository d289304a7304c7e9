package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/franz/lappi/internal/store"
	"github.com/franz/lappi/internal/util"
)

// SummaryReport describes one migration run and the collection it ran on
type SummaryReport struct {
	GeneratedAt time.Time

	// Run statistics, taken from the event log
	RunID    string
	Outcome  string // last run phase: done, interrupted, or the failing phase
	Planned  int
	Applied  int
	Failed   int
	Swept    int
	Duration time.Duration

	// Rows per collection table
	Tables map[string]int

	// Details
	TopErrors []ErrorSummary
	Conflicts []ConflictInfo

	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// ConflictInfo represents a relocation that did not happen
type ConflictInfo struct {
	FileID   int64
	SrcPath  string
	DestPath string
	Reason   string
}

// ReadEvents reads every event of a JSONL event log
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return events, nil
}

// lastRunID returns the run id of the latest run event
func lastRunID(events []Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == EventRun && events[i].RunID != "" {
			return events[i].RunID
		}
	}
	return ""
}

// SummarizeRun fills the run statistics of r from the events of one run.
// An empty runID picks the latest run in the log.
func (r *SummaryReport) SummarizeRun(events []Event, runID string) {
	if runID == "" {
		runID = lastRunID(events)
	}
	r.RunID = runID

	errorCounts := make(map[string]int)
	for _, e := range events {
		if e.RunID != runID {
			continue
		}
		switch e.Event {
		case EventRun:
			r.Outcome = e.Reason
			r.Duration = time.Duration(e.Duration) * time.Millisecond
			if n, err := strconv.Atoi(e.Extra["planned"]); err == nil {
				r.Planned = n
			}
			if e.Error != "" {
				errorCounts[e.Error]++
			}
		case EventMove:
			if e.Error != "" {
				r.Failed++
				errorCounts[e.Error]++
			} else {
				r.Applied++
			}
		case EventConflict:
			r.Conflicts = append(r.Conflicts, ConflictInfo{
				FileID:   e.FileID,
				SrcPath:  e.SrcPath,
				DestPath: e.DestPath,
				Reason:   e.Reason,
			})
		case EventSweep:
			if n, err := strconv.Atoi(e.Extra["removed"]); err == nil {
				r.Swept = n
			}
		case EventError:
			errorCounts[e.Error]++
		}
	}
	r.TopErrors = topErrors(errorCounts, 10)
}

func topErrors(counts map[string]int, limit int) []ErrorSummary {
	errors := make([]ErrorSummary, 0, len(counts))
	for err, count := range counts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})
	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors
}

// GenerateSummaryReport creates a summary report from the database and the
// latest run recorded in the event log. An empty eventLogPath reports only
// the collection.
func GenerateSummaryReport(st *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		DatabasePath: st.Path(),
		EventLogPath: eventLogPath,
		Tables:       make(map[string]int),
		TopErrors:    make([]ErrorSummary, 0),
		Conflicts:    make([]ConflictInfo, 0),
	}

	err := st.Do(func(c *store.Conn) error {
		for _, table := range st.Tables() {
			n, err := c.Count(table)
			if err != nil {
				return err
			}
			report.Tables[table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if eventLogPath != "" {
		events, err := ReadEvents(eventLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read event log: %w", err)
		}
		report.SummarizeRun(events, "")
	}
	return report, nil
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Lappi - Collection Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	if len(report.Tables) > 0 {
		names := make([]string, 0, len(report.Tables))
		for name := range report.Tables {
			names = append(names, name)
		}
		sort.Strings(names)

		md.WriteString("## 📊 Collection\n\n")
		md.WriteString("| Table | Rows |\n")
		md.WriteString("|-------|------|\n")
		for _, name := range names {
			md.WriteString(fmt.Sprintf("| %s | %s |\n", name, util.FormatCount(report.Tables[name])))
		}
		md.WriteString("\n")
	}

	if report.RunID != "" {
		md.WriteString("## 🚚 Migration\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Run | `%s` |\n", report.RunID))
		md.WriteString(fmt.Sprintf("| Outcome | %s |\n", report.Outcome))
		md.WriteString(fmt.Sprintf("| Files Planned | %d |\n", report.Planned))
		md.WriteString(fmt.Sprintf("| Files Moved | %d |\n", report.Applied))
		if report.Failed > 0 {
			md.WriteString(fmt.Sprintf("| Files Failed | %d |\n", report.Failed))
		}
		md.WriteString(fmt.Sprintf("| Empty Directories Removed | %d |\n", report.Swept))
		if report.Duration > 0 {
			md.WriteString(fmt.Sprintf("| Duration | %s |\n", util.FormatDuration(report.Duration)))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	if len(report.Conflicts) > 0 {
		md.WriteString("## 🚨 Conflicts\n\n")
		md.WriteString("| File | Current | Wanted | Reason |\n")
		md.WriteString("|------|---------|--------|--------|\n")
		for _, conflict := range report.Conflicts {
			md.WriteString(fmt.Sprintf("| %d | `%s` | `%s` | %s |\n",
				conflict.FileID,
				truncatePath(conflict.SrcPath, 40),
				truncatePath(conflict.DestPath, 40),
				conflict.Reason))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by lappi*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
