package verify

import (
	"fmt"
	"sort"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Code classifies a finding.
type Code string

const (
	CodeMissing           Code = "missing"
	CodeEmptyFile         Code = "empty-file"
	CodeSizeOutOfSpec     Code = "size-out-of-spec"
	CodeDimensionMismatch Code = "dimension-mismatch"
	CodeIdentityMismatch  Code = "identity-mismatch"
	CodeUnreadableImage   Code = "unreadable-image"
	CodeUnreadableData    Code = "unreadable-data"
	CodeHashMismatch      Code = "hash-mismatch"
)

// Finding is one verification result for a file in a root.
type Finding struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Root     string   `json:"root"`
	EntryID  string   `json:"entry_id"`
	File     string   `json:"file"`
	Path     string   `json:"path"`
	Detail   string   `json:"detail"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s [%s] %s/%s: %s", f.Severity, f.Code, f.Root, f.EntryID, f.File, f.Detail)
}

// Result aggregates every finding of one sweep.
type Result struct {
	Findings []Finding `json:"findings"`
	Roots    int       `json:"roots"`
	Entries  int       `json:"entries"`
	Checked  int       `json:"files_checked"`
}

// Fatal returns the fatal findings.
func (r *Result) Fatal() []Finding {
	return r.filter(func(f Finding) bool { return f.Severity == SeverityFatal })
}

// Warnings returns the advisory findings.
func (r *Result) Warnings() []Finding {
	return r.filter(func(f Finding) bool { return f.Severity == SeverityWarning })
}

// ForEntry returns the findings for entryID.
func (r *Result) ForEntry(entryID string) []Finding {
	return r.filter(func(f Finding) bool { return f.EntryID == entryID })
}

// CountByCode tallies findings per code.
func (r *Result) CountByCode() map[Code]int {
	counts := make(map[Code]int)
	for _, f := range r.Findings {
		counts[f.Code]++
	}
	return counts
}

// Codes returns the distinct codes present, sorted.
func (r *Result) Codes() []Code {
	counts := r.CountByCode()
	codes := make([]Code, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func (r *Result) filter(keep func(Finding) bool) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
