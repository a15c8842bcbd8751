package mirror

import (
	"time"

	"assetmirror/internal/failure"
)

// Status is the outcome of one entry.
type Status string

const (
	StatusMirrored Status = "mirrored"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Outcome values reported for each resource copy.
const (
	OutcomeFetched  = "fetched"
	OutcomeExisting = "existing"
	OutcomeCopied   = "copied"
	OutcomeMismatch = "mismatch"
	OutcomeFailed   = "failed"
)

// EntryResult summarizes the work done for one entry.
type EntryResult struct {
	EntryID  string
	Status   Status
	Fetched  int
	Existing int
	Err      error
	Duration time.Duration
}

// ErrorKind returns the failure kind of the entry error, if any.
func (r EntryResult) ErrorKind() string {
	return failure.Kind(r.Err)
}

// Report aggregates a mirror run. Entries appear in catalog order; entries
// never started because the run aborted are absent.
type Report struct {
	Entries []EntryResult
	Aborted error
}

// Missing lists entries skipped for a missing pointer descriptor.
func (r *Report) Missing() []EntryResult {
	return r.filter(func(e EntryResult) bool { return e.Status == StatusSkipped })
}

// Failed lists failed entries, including one that aborted the run.
func (r *Report) Failed() []EntryResult {
	return r.filter(func(e EntryResult) bool { return e.Status == StatusFailed })
}

// Fetched returns the number of downloads that landed in a root.
func (r *Report) Fetched() int {
	total := 0
	for _, e := range r.Entries {
		total += e.Fetched
	}
	return total
}

func (r *Report) filter(keep func(EntryResult) bool) []EntryResult {
	var out []EntryResult
	for _, e := range r.Entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
