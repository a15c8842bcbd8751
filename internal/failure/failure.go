// Package failure defines the error taxonomy shared by the mirror and
// verification engines.
//
// Errors are tagged with one of the exported sentinel markers so callers can
// classify them with errors.Is regardless of how much context was wrapped
// around them. Schema violations and extended-metadata integrity mismatches
// invalidate the whole run; missing descriptors only skip an entry.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchemaViolation   = errors.New("schema violation")
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	ErrMissingDescriptor = errors.New("missing descriptor")
	ErrNetwork           = errors.New("network failure")
	ErrIdentityMismatch  = errors.New("identity mismatch")
	// ErrRunAborted marks an error that must stop the whole run, not just
	// the entry that produced it.
	ErrRunAborted = errors.New("run aborted")
)

// Kind values reported by Kind.
const (
	KindSchemaViolation   = "schema_violation"
	KindIntegrityMismatch = "integrity_mismatch"
	KindMissingDescriptor = "missing_descriptor"
	KindNetwork           = "network"
	KindIdentityMismatch  = "identity_mismatch"
	KindInternal          = "internal"
)

// Wrap builds an error message that includes entry context while tagging it
// with marker for later classification.
func Wrap(marker error, entryID, operation, message string, err error) error {
	detail := buildDetail(entryID, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// AbortRun marks err as fatal for the whole run.
func AbortRun(err error) error {
	if err == nil || errors.Is(err, ErrRunAborted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrRunAborted, err)
}

// IsRunFatal reports whether err must stop the run. Schema violations always
// do; other errors only when explicitly marked with AbortRun.
func IsRunFatal(err error) bool {
	return errors.Is(err, ErrRunAborted) || errors.Is(err, ErrSchemaViolation)
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaViolation):
		return KindSchemaViolation
	case errors.Is(err, ErrIntegrityMismatch):
		return KindIntegrityMismatch
	case errors.Is(err, ErrMissingDescriptor):
		return KindMissingDescriptor
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrIdentityMismatch):
		return KindIdentityMismatch
	default:
		return KindInternal
	}
}

func buildDetail(entryID, operation, message string) string {
	parts := make([]string, 0, 3)
	if entryID = strings.TrimSpace(entryID); entryID != "" {
		parts = append(parts, "entry "+entryID)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "mirror failure"
	}
	return strings.Join(parts, ": ")
}
