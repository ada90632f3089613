// README: Push message shape and its mapping onto Transition Engine events.
package realtime

import (
	"errors"

	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

var ErrMalformed = errors.New("malformed push message")

// Message is the JSON body delivered by every push channel.
type Message struct {
	Event       string       `json:"event"`
	TripID      string       `json:"trip_id"`
	DriverID    string       `json:"driver_id,omitempty"`
	Location    *types.Point `json:"location,omitempty"`
	CancelledBy string       `json:"cancelled_by,omitempty"`
	Reason      string       `json:"reason,omitempty"`
}

// pushEvents maps push names to engine events.
var pushEvents = map[string]trip.EventKind{
	"matched":          trip.EvMatched,
	"timed_out":        trip.EvTimedOut,
	"provider_arrived": trip.EvProviderArrived,
	"picked_up":        trip.EvPickedUp,
	"started":          trip.EvStarted,
	"completed":        trip.EvCompleted,
	"driver_location":  trip.EvDriverMoved,
	"cancelled":        trip.EvCancelAccepted,
}

// ToEvent maps m onto an engine event. ok is false for unknown event names.
func ToEvent(m Message) (trip.Event, bool) {
	kind, ok := pushEvents[m.Event]
	if !ok {
		return trip.Event{}, false
	}
	ev := trip.Event{Kind: kind, TripID: types.ID(m.TripID)}
	switch kind {
	case trip.EvMatched:
		ev.DriverID = types.ID(m.DriverID)
	case trip.EvDriverMoved:
		if m.Location != nil {
			loc := *m.Location
			ev.Location = &loc
		}
	case trip.EvCancelAccepted:
		by := trip.CancelledBy(m.CancelledBy)
		if by == "" {
			by = trip.CancelledByProvider
		}
		ev.Cancellation = &trip.Cancellation{By: by, Reason: m.Reason}
	}
	return ev, true
}
