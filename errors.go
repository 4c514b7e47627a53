package dupefy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrCancelled matches every *CancelledError via errors.Is.
var ErrCancelled = errors.New("dupefy: analysis cancelled")

// InvalidParameterError is returned before any work starts when the run
// parameters or the input batch are unusable.
type InvalidParameterError struct {
	Param  string
	Value  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("dupefy: invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

func invalidFloat(param string, v float64, reason string) *InvalidParameterError {
	return &InvalidParameterError{
		Param:  param,
		Value:  strconv.FormatFloat(v, 'g', -1, 64),
		Reason: reason,
	}
}

// DecodeError reports a single image that could not be decoded.
// It never aborts a run.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dupefy: decode %s: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CancelledError is returned when the caller's context ends mid-run.
// No groups are returned alongside it.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("dupefy: analysis cancelled: %v", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return &CancelledError{Cause: cause}
}

// InternalError wraps an unexpected fault. Its message is deliberately
// generic; the cause is available through Unwrap and the server-side log.
type InternalError struct {
	CorrelationID string
	Err           error
}

func newInternalError(err error) *InternalError {
	return &InternalError{CorrelationID: uuid.NewString(), Err: err}
}

func (e *InternalError) Error() string {
	return "dupefy: internal error (correlation id " + e.CorrelationID + ")"
}

func (e *InternalError) Unwrap() error { return e.Err }
