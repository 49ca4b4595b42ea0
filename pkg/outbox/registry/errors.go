package registry

import (
	"errors"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// PermanentError marks a row that no retry can publish. Reason is copied onto
// the dead-letter entry.
type PermanentError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// NewNonRetryableError flags a row whose contents are unpublishable.
func NewNonRetryableError(err error) error {
	return &PermanentError{Reason: enums.OutboxDLQReasonNonRetryable, Err: err}
}

// NewNoRouteError flags a row with no topic or publisher to send it to.
func NewNoRouteError(err error) error {
	return &PermanentError{Reason: enums.OutboxDLQReasonNoRoute, Err: err}
}

// Permanent finds a PermanentError in err's chain.
func Permanent(err error) (*PermanentError, bool) {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm, true
	}
	return nil, false
}
