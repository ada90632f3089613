package service

import (
	"errors"
	"fmt"

	"tripflow/internal/modules/trip"
)

// ErrDiscarded means a remote call succeeded but the trip moved on before its result could be applied.
var ErrDiscarded = errors.New("result discarded: trip state moved on")

// InvalidTransitionError is a user intent the current status does not allow.
type InvalidTransitionError struct {
	Err *trip.RejectedError
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s not allowed in %s (%s)", e.Err.Event, e.Err.From, e.Err.Reason)
}

func (e *InvalidTransitionError) Unwrap() error { return e.Err }
