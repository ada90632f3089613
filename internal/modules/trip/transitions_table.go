// README: Trip status flow as an event-keyed transition table.
package trip

// Transition is a single allowed edge in the trip lifecycle.
type Transition struct {
	From    Status
	Event   EventKind
	To      Status
	Effects []Effect
}

// cancellable lists the id-bearing non-terminal statuses a requester may cancel from.
var cancellable = []Status{
	StatusSearching,
	StatusMatched,
	StatusExpired,
	StatusEnRouteToPickup,
	StatusArrived,
	StatusAwaitingPayment,
	StatusPaying,
	StatusPaid,
	StatusInProgress,
}

// tracked lists the statuses during which a driver is on the trip and moving.
var tracked = []Status{
	StatusMatched,
	StatusEnRouteToPickup,
	StatusArrived,
	StatusAwaitingPayment,
	StatusPaying,
	StatusPaid,
	StatusInProgress,
}

var transitionsTable = buildTransitions()

func buildTransitions() []Transition {
	table := []Transition{
		// Booking flow (no trip id yet)
		{From: StatusIdle, Event: EvStartBooking, To: StatusBooking},
		{From: StatusBooking, Event: EvConfirmRoute, To: StatusSelectingVehicle, Effects: []Effect{EffectComputeRoute}},
		{From: StatusSelectingVehicle, Event: EvConfirmRoute, To: StatusSelectingVehicle, Effects: []Effect{EffectComputeRoute}},
		{From: StatusSelectingVehicle, Event: EvSelectVehicle, To: StatusSelectingVehicle},
		{From: StatusSelectingVehicle, Event: EvConfirmDispatch, To: StatusSelectingVehicle, Effects: []Effect{EffectDispatchTrip}},
		{From: StatusSelectingVehicle, Event: EvDispatchAccepted, To: StatusSearching},
		{From: StatusSelectingVehicle, Event: EvRouteComputed, To: StatusSelectingVehicle},
		{From: StatusBooking, Event: EvSetSchedule, To: StatusBooking},
		{From: StatusSelectingVehicle, Event: EvSetSchedule, To: StatusSelectingVehicle},
		{From: StatusBooking, Event: EvSetPackage, To: StatusBooking},
		{From: StatusSelectingVehicle, Event: EvSetPackage, To: StatusSelectingVehicle},
		{From: StatusBooking, Event: EvRequestCancel, To: StatusIdle},
		{From: StatusSelectingVehicle, Event: EvRequestCancel, To: StatusIdle},

		// Matching
		{From: StatusSearching, Event: EvMatched, To: StatusMatched, Effects: []Effect{EffectFetchTrip}},
		{From: StatusSearching, Event: EvTimedOut, To: StatusExpired},
		{From: StatusExpired, Event: EvRequestRetry, To: StatusExpired, Effects: []Effect{EffectRetryTrip}},
		{From: StatusExpired, Event: EvDispatchAccepted, To: StatusSearching},

		// Pickup
		{From: StatusMatched, Event: EvTrackDriver, To: StatusEnRouteToPickup},
		{From: StatusEnRouteToPickup, Event: EvTrackDriver, To: StatusEnRouteToPickup, Effects: []Effect{EffectFetchTrip}},
		{From: StatusMatched, Event: EvProviderArrived, To: StatusArrived, Effects: []Effect{EffectFetchTrip}},
		{From: StatusEnRouteToPickup, Event: EvProviderArrived, To: StatusArrived, Effects: []Effect{EffectFetchTrip}},

		// Payment
		{From: StatusArrived, Event: EvRequestPay, To: StatusAwaitingPayment},
		{From: StatusAwaitingPayment, Event: EvConfirmPay, To: StatusPaying, Effects: []Effect{EffectPayTrip}},
		{From: StatusPaying, Event: EvPayAccepted, To: StatusPaid},
		{From: StatusPaying, Event: EvPayRejected, To: StatusAwaitingPayment},

		// Trip
		{From: StatusPaid, Event: EvStarted, To: StatusInProgress, Effects: []Effect{EffectFetchTrip}},
		{From: StatusPaid, Event: EvPickedUp, To: StatusInProgress, Effects: []Effect{EffectFetchTrip}},
		{From: StatusInProgress, Event: EvTrackTrip, To: StatusInProgress, Effects: []Effect{EffectFetchTrip}},
		{From: StatusInProgress, Event: EvCompleted, To: StatusCompleted, Effects: []Effect{EffectFetchTrip}},
		{From: StatusCompleted, Event: EvAcknowledgeCompletion, To: StatusIdle},

		// Rebook creates a fresh trip from the cancelled one's route
		{From: StatusCancelled, Event: EvRequestRebook, To: StatusCancelled, Effects: []Effect{EffectRebookTrip}},
		{From: StatusCancelled, Event: EvDispatchAccepted, To: StatusSearching},
	}
	for _, s := range cancellable {
		table = append(table,
			Transition{From: s, Event: EvRequestCancel, To: s, Effects: []Effect{EffectCancelTrip}},
			Transition{From: s, Event: EvCancelAccepted, To: StatusCancelled},
		)
	}
	for _, s := range tracked {
		table = append(table, Transition{From: s, Event: EvDriverMoved, To: s})
	}
	// reset abandons the local copy only; the server trip is recovered by the next resync
	resettable := append([]Status{StatusBooking, StatusSelectingVehicle}, cancellable...)
	for _, s := range append(resettable, StatusCompleted, StatusCancelled) {
		table = append(table, Transition{From: s, Event: EvReset, To: StatusIdle})
	}
	return table
}

// TransitionFor returns the allowed transition for a given status and event.
func TransitionFor(from Status, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

func CanTransition(from Status, ev EventKind) bool {
	_, ok := TransitionFor(from, ev)
	return ok
}

// Transitions returns a copy of the table, for documentation and tests.
func Transitions() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}
