package designer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/captify-io/designer/canvas"
	"github.com/captify-io/designer/graph"
	"github.com/captify-io/designer/layout"
	"github.com/captify-io/designer/persist"
)

// Sentinel errors for designer session conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrClosed indicates an operation on a designer whose session has
	// been closed. Results of in-flight loads and saves are discarded.
	ErrClosed = errors.New("designer closed")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a node, edge or item was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors from rejected model mutations:
	// duplicate ids, cycles, invalid parents and refused connections.
	KindValidation = "validation"

	// KindPersistence represents backend failures during load, save and
	// data expansion.
	KindPersistence = "persistence"

	// KindLayout represents layout engine failures.
	KindLayout = "layout"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindCanceled represents operations abandoned because their context
	// or the session ended.
	KindCanceled = "canceled"

	// KindInternal represents unexpected failures.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	if err := d.Save(ctx); err != nil {
//		var derr *designer.Error
//		if errors.As(err, &derr) && derr.Kind == designer.KindPersistence {
//			// offer a retry
//		}
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Designer.Load", "Designer.Save").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindPersistence).
	Kind string

	// Err is the underlying error that caused this error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("designer: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("designer: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind (and Op, when the target sets one),
// and otherwise delegates to the underlying error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var derr *Error
	var perr *persist.PersistenceError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &derr):
		return derr.Kind
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, persist.ErrStaleLoad), errors.Is(err, ErrClosed):
		return KindCanceled
	case errors.As(err, &perr):
		return KindPersistence
	case errors.Is(err, graph.ErrNotFound):
		return KindNotFound
	case errors.Is(err, layout.ErrLayoutTimeout):
		return KindLayout
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, canvas.ErrNoPersistence):
		return KindConfiguration
	case errors.Is(err, graph.ErrDuplicateID), errors.Is(err, graph.ErrInvalidNode),
		errors.Is(err, graph.ErrInvalidEdge), errors.Is(err, graph.ErrNotGroup),
		errors.Is(err, graph.ErrCycle), errors.Is(err, graph.ErrInvalidProperty),
		errors.Is(err, canvas.ErrSelfConnection), errors.Is(err, canvas.ErrConnectionRejected),
		errors.Is(err, canvas.ErrInvalidTransition), errors.Is(err, canvas.ErrNoContextMenu):
		return KindValidation
	default:
		return KindInternal
	}
}

// wrap returns err as an *Error for op, or nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewPersistenceError creates a new Error with KindPersistence.
func NewPersistenceError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindPersistence, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// If logger is nil, slog.Default() is used.
//
// Example usage:
//
//	defer designer.CloseWithLog(backend, logger, "redis backend")
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
