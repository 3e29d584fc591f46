package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/genpause/internal/host"
	"github.com/Iron-Ham/genpause/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View host logs",
	Long: `View and filter the genpause host log, including rotated backups.

Examples:
  # Show the last 50 entries
  genpause logs

  # Show everything from the reclaimer at warn level or above
  genpause logs -n 0 --component reclaim --level warn

  # Follow logs in real-time
  genpause logs -f

  # Show logs from the last hour as CSV
  genpause logs --since 1h --format csv

  # Search for specific patterns
  genpause logs --grep "paused|resumed"`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsComponent string
	logsFormat    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (coordinator, monitor, reclaim, ...)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format (text, json, csv)")
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(e logging.LogEntry) string {
	var sb strings.Builder

	sb.WriteString(colorGray)
	sb.WriteString("[" + e.Timestamp.Format("15:04:05.000") + "]")
	sb.WriteString(colorReset)

	sb.WriteString(" ")
	sb.WriteString(levelColor(e.Level))
	sb.WriteString("[" + strings.ToUpper(e.Level) + "]")
	sb.WriteString(colorReset)

	if e.Component != "" {
		sb.WriteString(" " + e.Component + ":")
	}
	sb.WriteString(" ")
	sb.WriteString(e.Message)

	fields := map[string]string{"resource": e.Resource, "attempt_id": e.AttemptID}
	for _, key := range []string{"resource", "attempt_id"} {
		if fields[key] != "" {
			sb.WriteString(" " + colorCyan + key + "=" + colorReset + fields[key])
		}
	}
	for key, value := range e.Attrs {
		sb.WriteString(" " + colorCyan + key + "=" + colorReset + fmt.Sprintf("%v", value))
	}
	return sb.String()
}

type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
}

func buildQuery() (logQuery, error) {
	q := logQuery{filter: logging.LogFilter{Component: logsComponent}}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return q, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.Since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return q, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

// apply filters entries, searching the message and attribute values for
// the grep pattern.
func (q logQuery) apply(entries []logging.LogEntry) []logging.LogEntry {
	entries = logging.FilterLogs(entries, q.filter)
	if q.grep == nil {
		return entries
	}
	var out []logging.LogEntry
	for _, e := range entries {
		text := e.Message
		for _, v := range e.Attrs {
			text += " " + fmt.Sprintf("%v", v)
		}
		if q.grep.MatchString(text) {
			out = append(out, e)
		}
	}
	return out
}

func runLogs(cmd *cobra.Command, args []string) error {
	_, cfg, err := openStore()
	if err != nil {
		return err
	}
	dir := host.LogDir(cfg, cfgFile)
	out := cmd.OutOrStdout()

	logPath := filepath.Join(dir, logging.FileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	q, err := buildQuery()
	if err != nil {
		return err
	}

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return followLogs(ctx, out, logPath, q)
	}
	return displayLogs(out, dir, logsTail, q)
}

// displayLogs reads the log and its backups and writes the filtered tail.
func displayLogs(w io.Writer, dir string, tail int, q logQuery) error {
	entries, err := logging.ReadLogs(dir)
	if err != nil {
		return err
	}
	entries = q.apply(entries)
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No matching log entries found.")
		return nil
	}
	if logsFormat != "" && logsFormat != "text" {
		return logging.WriteEntries(w, entries, logsFormat)
	}
	for _, e := range entries {
		fmt.Fprintln(w, formatLogEntry(e))
	}
	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(ctx context.Context, w io.Writer, logPath string, q logQuery) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(w, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			partial += line
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		line, partial = partial+line, ""

		entries, err := logging.ParseLogs(strings.NewReader(line))
		if err != nil || len(entries) == 0 {
			continue
		}
		for _, e := range q.apply(entries) {
			fmt.Fprintln(w, formatLogEntry(e))
		}
	}
}
