// README: Status Transition Engine; pure reducer from (trip, event) to the next trip and its effects.
package trip

import "time"

// Outcome is an accepted transition. Next is nil when the store should be cleared.
type Outcome struct {
	From    Status
	To      Status
	Event   EventKind
	Next    *Trip
	Effects []Effect
}

// Changed reports whether the transition moved the status.
func (o Outcome) Changed() bool {
	return o.From != o.To
}

var eventMilestones = map[EventKind]Milestone{
	EvDispatchAccepted: MilestoneRequested,
	EvMatched:          MilestoneMatched,
	EvTimedOut:         MilestoneExpired,
	EvTrackDriver:      MilestoneEnRoute,
	EvProviderArrived:  MilestoneArrived,
	EvPayAccepted:      MilestonePaid,
	EvStarted:          MilestoneStarted,
	EvPickedUp:         MilestonePickedUp,
	EvCompleted:        MilestoneCompleted,
	EvCancelAccepted:   MilestoneCancelled,
}

// Step is the only path to a new Trip snapshot. It never mutates current.
func Step(current *Trip, ev Event, now time.Time) (Outcome, error) {
	from := StatusOf(current)
	tr, ok := TransitionFor(from, ev.Kind)
	if !ok {
		return Outcome{}, reject(current, ev, ReasonNoEdge)
	}
	if reason := guard(current, from, ev); reason != "" {
		return Outcome{}, reject(current, ev, reason)
	}

	next := apply(current, from, tr, ev)
	if next != nil {
		next.Status = tr.To
		if m, ok := eventMilestones[ev.Kind]; ok && from != tr.To {
			next.Stamp(m, now)
		}
	}
	return Outcome{
		From:    from,
		To:      tr.To,
		Event:   ev.Kind,
		Next:    next,
		Effects: append([]Effect(nil), tr.Effects...),
	}, nil
}

func reject(current *Trip, ev Event, reason string) error {
	return &RejectedError{From: StatusOf(current), Event: ev.Kind, TripID: ev.TripID, Reason: reason}
}

func guard(current *Trip, from Status, ev Event) string {
	switch ev.Kind {
	case EvStartBooking:
		if !ev.TripKind.Valid() {
			return ReasonIncomplete
		}
		return ""
	case EvConfirmRoute:
		if ev.Pickup == nil || ev.Destination == nil {
			return ReasonIncomplete
		}
		return ""
	case EvSelectVehicle:
		if !ev.VehicleClass.Valid() {
			return ReasonIncomplete
		}
		return ""
	case EvSetPackage:
		if current.Kind != KindDelivery {
			return ReasonKindUnsupported
		}
		if ev.Package == nil {
			return ReasonIncomplete
		}
		return ""
	case EvSetSchedule:
		return ""
	case EvRouteComputed:
		if ev.Pickup != nil && ev.Pickup.Point != current.Pickup.Point {
			return ReasonStaleRoute
		}
		if ev.Destination != nil && ev.Destination.Point != current.Destination.Point {
			return ReasonStaleRoute
		}
		return ""
	case EvDispatchAccepted:
		if ev.Trip == nil || ev.Trip.ID == "" {
			return ReasonIncomplete
		}
		switch from {
		case StatusExpired:
			if ev.Trip.ID != current.ID {
				return ReasonTripMismatch
			}
		case StatusCancelled:
			// a rebook must produce a fresh trip
			if ev.Trip.ID == current.ID {
				return ReasonTripMismatch
			}
		}
		return ""
	}

	if current.ID == "" {
		// only draft intents reach here without an id
		return ""
	}
	if ev.Kind.Origin() != OriginUser && ev.TripID != current.ID {
		return ReasonTripMismatch
	}
	if ev.Kind.Origin() == OriginUser && ev.TripID != "" && ev.TripID != current.ID {
		return ReasonTripMismatch
	}

	switch ev.Kind {
	case EvMatched:
		if ev.DriverID == "" {
			return ReasonIncomplete
		}
	case EvPickedUp:
		if current.Kind != KindDelivery {
			return ReasonKindUnsupported
		}
	case EvCancelAccepted:
		if ev.Cancellation == nil || !ev.Cancellation.By.Valid() {
			return ReasonIncomplete
		}
	case EvDriverMoved:
		if ev.Location == nil || current.Driver == nil {
			return ReasonIncomplete
		}
	}
	return ""
}

func apply(current *Trip, from Status, tr Transition, ev Event) *Trip {
	if tr.To == StatusIdle {
		return nil
	}

	switch ev.Kind {
	case EvStartBooking:
		return &Trip{
			Kind:          ev.TripKind,
			PaymentStatus: PaymentUnpaid,
			Timestamps:    make(map[Milestone]time.Time),
		}
	case EvDispatchAccepted:
		return adoptDispatched(current, from, ev.Trip)
	}

	next := current.Clone()
	switch ev.Kind {
	case EvConfirmRoute:
		next.Pickup = *ev.Pickup
		next.Destination = *ev.Destination
	case EvSelectVehicle:
		next.VehicleClass = ev.VehicleClass
	case EvSetSchedule:
		next.ScheduledFor = nil
		if ev.ScheduledFor != nil {
			at := *ev.ScheduledFor
			next.ScheduledFor = &at
		}
		next.Scheduled = next.ScheduledFor != nil
	case EvSetPackage:
		p := *ev.Package
		next.Package = &p
	case EvRouteComputed:
		next.DistanceKm = ev.DistanceKm
		next.DurationMins = ev.DurationMins
	case EvMatched:
		if next.Driver == nil || next.Driver.ID != ev.DriverID {
			// placeholder until the resync returns the full driver summary
			next.Driver = &Driver{ID: ev.DriverID}
		}
	case EvPayAccepted:
		next.PaymentStatus = PaymentPaid
	case EvCancelAccepted:
		c := *ev.Cancellation
		next.Cancellation = &c
	case EvDriverMoved:
		next.Driver.CurrentLocation = *ev.Location
	}
	return next
}

// adoptDispatched takes the server's trip as authoritative, filling route fields it omitted.
func adoptDispatched(current *Trip, from Status, server *Trip) *Trip {
	next := server.Clone()
	next.Driver = nil
	next.Cancellation = nil
	if next.PaymentStatus == "" {
		next.PaymentStatus = PaymentUnpaid
	}
	if current == nil {
		return next
	}
	if next.Kind == "" {
		next.Kind = current.Kind
	}
	if !next.Pickup.HasCoordinates() {
		next.Pickup = current.Pickup
	}
	if !next.Destination.HasCoordinates() {
		next.Destination = current.Destination
	}
	if next.VehicleClass == "" {
		next.VehicleClass = current.VehicleClass
	}
	if next.Package == nil && current.Package != nil {
		p := *current.Package
		next.Package = &p
	}
	if next.DistanceKm == 0 {
		next.DistanceKm, next.DurationMins = current.DistanceKm, current.DurationMins
	}
	if from == StatusExpired {
		// same trip: timestamps stay append-only
		for m, at := range current.Timestamps {
			next.Timestamps[m] = at
		}
	}
	return next
}
