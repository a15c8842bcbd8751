package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one decoded line of the JSON log.
type Record struct {
	Time    time.Time
	Level   string
	Message string
	RunID   string
	EntryID string
	Fields  map[string]any
	Raw     string
}

// ParseRecord decodes a JSON log line. Lines that are not JSON objects are
// returned as a record carrying only Raw.
func ParseRecord(line string) Record {
	rec := Record{Raw: line}
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return rec
	}
	if ts, ok := fields["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.Time = parsed
		}
	}
	rec.Level, _ = fields["level"].(string)
	rec.Message, _ = fields["msg"].(string)
	rec.RunID, _ = fields["run_id"].(string)
	rec.EntryID, _ = fields["entry_id"].(string)
	for _, key := range []string{"ts", "level", "msg", "run_id", "entry_id"} {
		delete(fields, key)
	}
	rec.Fields = fields
	return rec
}

// Format renders rec on one line for terminals.
func (r Record) Format() string {
	if r.Level == "" && r.Message == "" {
		return r.Raw
	}
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", strings.ToUpper(r.Level), r.Message)
	if r.EntryID != "" {
		fmt.Fprintf(&b, " entry_id=%s", r.EntryID)
	}
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, r.Fields[k])
	}
	return b.String()
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects records. Zero fields match everything.
type Filter struct {
	RunID    string
	EntryID  string
	MinLevel string
}

// Match reports whether rec passes f.
func (f Filter) Match(rec Record) bool {
	if f.RunID != "" && rec.RunID != f.RunID {
		return false
	}
	if f.EntryID != "" && rec.EntryID != f.EntryID {
		return false
	}
	if min, ok := levelRank[strings.ToLower(f.MinLevel)]; ok {
		if rank, known := levelRank[rec.Level]; known && rank < min {
			return false
		}
	}
	return true
}
