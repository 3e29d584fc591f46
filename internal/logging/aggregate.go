package logging

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// LogEntry is one parsed log line.
type LogEntry struct {
	Timestamp time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	AttemptID string         `json:"attempt_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// LogFilter selects entries. Zero-valued fields do not filter; set fields
// are combined with AND.
type LogFilter struct {
	// Level keeps entries at or above this level.
	Level           string
	Since           time.Time
	Until           time.Time
	Component       string
	Resource        string
	AttemptID       string
	MessageContains string
}

var levelOrder = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var liftedKeys = map[string]bool{
	"time": true, "level": true, "msg": true,
	KeyComponent: true, KeyResource: true, KeyAttempt: true,
}

// ReadLogs parses genpause.log in dir together with any uncompressed rotated
// backups, returning entries sorted by time. Unparseable lines are skipped.
func ReadLogs(dir string) ([]LogEntry, error) {
	current := filepath.Join(dir, FileName)
	if _, err := os.Stat(current); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no log file in %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	backups, _ := filepath.Glob(current + ".[0-9]*")
	paths := make([]string, 0, len(backups)+1)
	for _, b := range backups {
		if !strings.HasSuffix(b, ".gz") {
			paths = append(paths, b)
		}
	}
	paths = append(paths, current)

	var entries []LogEntry
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		parsed, err := ParseLogs(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		entries = append(entries, parsed...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// ParseLogs parses JSON log lines from r in input order.
func ParseLogs(r io.Reader) ([]LogEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var entries []LogEntry
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if entry, ok := parseLine(line); ok {
			entries = append(entries, entry)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (LogEntry, bool) {
	if !gjson.Valid(line) {
		return LogEntry{}, false
	}
	doc := gjson.Parse(line)
	if !doc.IsObject() {
		return LogEntry{}, false
	}

	entry := LogEntry{
		Level:     doc.Get("level").String(),
		Message:   doc.Get("msg").String(),
		Component: doc.Get(KeyComponent).String(),
		Resource:  doc.Get(KeyResource).String(),
		AttemptID: doc.Get(KeyAttempt).String(),
	}
	if ts := doc.Get("time"); ts.Exists() {
		entry.Timestamp = ts.Time()
	}

	doc.ForEach(func(key, value gjson.Result) bool {
		if liftedKeys[key.String()] {
			return true
		}
		if entry.Attrs == nil {
			entry.Attrs = make(map[string]any)
		}
		entry.Attrs[key.String()] = value.Value()
		return true
	})
	return entry, true
}

// FilterLogs returns the entries matching f.
func FilterLogs(entries []LogEntry, f LogFilter) []LogEntry {
	if f == (LogFilter{}) {
		return entries
	}
	var out []LogEntry
	for _, e := range entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

func (f LogFilter) matches(e LogEntry) bool {
	if f.Level != "" {
		want, okWant := levelOrder[strings.ToUpper(f.Level)]
		got, okGot := levelOrder[e.Level]
		if okWant && okGot && got < want {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.AttemptID != "" && e.AttemptID != f.AttemptID {
		return false
	}
	if f.MessageContains != "" && !strings.Contains(e.Message, f.MessageContains) {
		return false
	}
	return true
}

// WriteEntries renders entries to w as "text", "json" or "csv".
func WriteEntries(w io.Writer, entries []LogEntry, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		return writeText(w, entries)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "csv":
		return writeCSV(w, entries)
	default:
		return fmt.Errorf("unsupported format %q (supported: text, json, csv)", format)
	}
}

// FormatText renders a single entry as one human-readable line.
func FormatText(e LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %-5s", e.Timestamp.Format("2006-01-02 15:04:05.000"), e.Level)
	if e.Component != "" {
		fmt.Fprintf(&b, " %s:", e.Component)
	}
	b.WriteString(" ")
	b.WriteString(e.Message)
	if e.Resource != "" {
		fmt.Fprintf(&b, " resource=%s", e.Resource)
	}
	if e.AttemptID != "" {
		fmt.Fprintf(&b, " attempt=%s", e.AttemptID)
	}
	if len(e.Attrs) > 0 {
		if raw, err := json.Marshal(e.Attrs); err == nil {
			b.WriteString(" ")
			b.Write(raw)
		}
	}
	return b.String()
}

func writeText(w io.Writer, entries []LogEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, FormatText(e)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "level", "msg", "component", "resource", "attempt_id", "attrs"}); err != nil {
		return err
	}
	for _, e := range entries {
		attrs := ""
		if len(e.Attrs) > 0 {
			if raw, err := json.Marshal(e.Attrs); err == nil {
				attrs = string(raw)
			}
		}
		record := []string{
			e.Timestamp.Format(time.RFC3339Nano),
			e.Level,
			e.Message,
			e.Component,
			e.Resource,
			e.AttemptID,
			attrs,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
