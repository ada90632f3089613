// README: Trip module errors.
package trip

import (
	"errors"
	"fmt"

	"tripflow/internal/types"
)

var (
	ErrRejected           = errors.New("transition rejected")
	ErrInvariantViolation = errors.New("trip invariant violation")
)

const (
	ReasonNoEdge          = "no edge for event in current status"
	ReasonTripMismatch    = "trip id does not match active trip"
	ReasonIncomplete      = "incomplete event payload"
	ReasonKindUnsupported = "event not valid for trip kind"
	ReasonStaleRoute      = "route computed for other endpoints"
)

// RejectedError reports an event the guard table refused. The store is untouched.
type RejectedError struct {
	From   Status
	Event  EventKind
	TripID types.ID
	Reason string
}

func (e *RejectedError) Error() string {
	if e.TripID != "" {
		return fmt.Sprintf("%s rejected in %s for trip %s: %s", e.Event, e.From, e.TripID, e.Reason)
	}
	return fmt.Sprintf("%s rejected in %s: %s", e.Event, e.From, e.Reason)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}
