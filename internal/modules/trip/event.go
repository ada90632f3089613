// README: Transition Engine inputs, tagged by origin.
package trip

import (
	"time"

	"tripflow/internal/types"
)

type EventKind string

// User-intent events.
const (
	EvStartBooking          EventKind = "startBooking"
	EvConfirmRoute          EventKind = "confirmRoute"
	EvSelectVehicle         EventKind = "selectVehicle"
	EvConfirmDispatch       EventKind = "confirmDispatch"
	EvRequestPay            EventKind = "requestPay"
	EvConfirmPay            EventKind = "confirmPay"
	EvRequestCancel         EventKind = "requestCancel"
	EvRequestRetry          EventKind = "requestRetry"
	EvRequestRebook         EventKind = "requestRebook"
	EvTrackDriver           EventKind = "trackDriver"
	EvTrackTrip             EventKind = "trackTrip"
	EvAcknowledgeCompletion EventKind = "acknowledgeCompletion"
	EvSetSchedule           EventKind = "setSchedule"
	EvSetPackage            EventKind = "setPackage"
	EvReset                 EventKind = "reset"
)

// Remote-confirmation events.
const (
	EvDispatchAccepted EventKind = "dispatchAccepted"
	EvPayAccepted      EventKind = "payAccepted"
	EvPayRejected      EventKind = "payRejected"
	EvCancelAccepted   EventKind = "cancelAccepted"
	EvRouteComputed    EventKind = "routeComputed"
)

// Realtime-push events.
const (
	EvMatched         EventKind = "matched"
	EvTimedOut        EventKind = "timedOut"
	EvProviderArrived EventKind = "providerArrived"
	EvPickedUp        EventKind = "pickedUp"
	EvStarted         EventKind = "started"
	EvCompleted       EventKind = "completed"
	EvDriverMoved     EventKind = "driverMoved"
)

type Origin string

const (
	OriginUser     Origin = "user"
	OriginRemote   Origin = "remote"
	OriginRealtime Origin = "realtime"
)

var eventOrigins = map[EventKind]Origin{
	EvStartBooking:          OriginUser,
	EvConfirmRoute:          OriginUser,
	EvSelectVehicle:         OriginUser,
	EvConfirmDispatch:       OriginUser,
	EvRequestPay:            OriginUser,
	EvConfirmPay:            OriginUser,
	EvRequestCancel:         OriginUser,
	EvRequestRetry:          OriginUser,
	EvRequestRebook:         OriginUser,
	EvTrackDriver:           OriginUser,
	EvTrackTrip:             OriginUser,
	EvAcknowledgeCompletion: OriginUser,
	EvSetSchedule:           OriginUser,
	EvSetPackage:            OriginUser,
	EvReset:                 OriginUser,
	EvDispatchAccepted:      OriginRemote,
	EvPayAccepted:           OriginRemote,
	EvPayRejected:           OriginRemote,
	EvCancelAccepted:        OriginRemote,
	EvRouteComputed:         OriginRemote,
	EvMatched:               OriginRealtime,
	EvTimedOut:              OriginRealtime,
	EvProviderArrived:       OriginRealtime,
	EvPickedUp:              OriginRealtime,
	EvStarted:               OriginRealtime,
	EvCompleted:             OriginRealtime,
	EvDriverMoved:           OriginRealtime,
}

func (k EventKind) Origin() Origin {
	return eventOrigins[k]
}

// Event is a single Transition Engine input. Only the fields relevant to Kind are read.
type Event struct {
	Kind   EventKind
	TripID types.ID

	// startBooking
	TripKind Kind
	// confirmRoute; on routeComputed, the endpoints the route was computed for
	Pickup      *Place
	Destination *Place
	// selectVehicle
	VehicleClass VehicleClass
	// setSchedule: nil clears the schedule
	ScheduledFor *time.Time
	// setPackage
	Package *PackageDetails
	// routeComputed
	DistanceKm   float64
	DurationMins float64
	// dispatchAccepted: the full Trip returned by dispatch, retry or rebook
	Trip *Trip
	// matched
	DriverID types.ID
	// cancelAccepted
	Cancellation *Cancellation
	// driverMoved
	Location *types.Point
}

// Effect is a side effect the Facade runs after a transition has been committed.
type Effect string

const (
	EffectComputeRoute Effect = "computeRoute"
	EffectDispatchTrip Effect = "dispatchTripRequest"
	EffectRetryTrip    Effect = "retryTripRequest"
	EffectRebookTrip   Effect = "rebookTripRequest"
	EffectCancelTrip   Effect = "cancelTripRequest"
	EffectPayTrip      Effect = "payTripRequest"
	EffectFetchTrip    Effect = "fetchTripById"
)
