package persist

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStaleLoad is returned by a load whose result was discarded because a
// newer load was issued while it was in flight.
var ErrStaleLoad = errors.New("load superseded by a newer load")

// PersistenceError reports a failed call to the key-value backend.
//
// Written counts the items that were stored before the failure; it is only
// meaningful for saves, which are not transactional.
type PersistenceError struct {
	Op      string
	Table   string
	ItemID  string
	Written int
	Err     error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.Table)
	if e.ItemID != "" {
		fmt.Fprintf(&b, " item %s", e.ItemID)
	}
	if e.Op == OpSave {
		fmt.Fprintf(&b, " (%d items written)", e.Written)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TableNotFoundError is the backend's report that a table does not exist.
// Callers can offer to create the table instead of showing a generic error.
type TableNotFoundError struct {
	Table   string
	Message string
}

// Error implements the error interface.
func (e *TableNotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("table %s not found", e.Table)
}

// IsTableNotFoundMessage reports whether a backend error message describes a
// missing table.
func IsTableNotFoundMessage(msg string) bool {
	return strings.Contains(msg, "ResourceNotFoundException") || strings.Contains(msg, "not found")
}

// MissingTable returns the table named by a TableNotFoundError in err's
// chain, if there is one.
func MissingTable(err error) (string, bool) {
	var tnf *TableNotFoundError
	if errors.As(err, &tnf) {
		return tnf.Table, true
	}
	return "", false
}
