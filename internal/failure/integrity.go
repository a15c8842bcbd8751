package failure

import "fmt"

// IntegrityError reports a downloaded file whose content hash differs from
// the identifier declared in its descriptor.
type IntegrityError struct {
	EntryID  string
	URL      string
	Backend  string
	Path     string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("entry %s: %s (%s backend): expected %s, got %s",
		e.EntryID, e.URL, e.Backend, e.Expected, e.Actual)
}

// Is lets errors.Is(err, ErrIntegrityMismatch) match an *IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityMismatch
}

// ErrorKind implements the classifier convention used by the ledger.
func (e *IntegrityError) ErrorKind() string { return KindIntegrityMismatch }
