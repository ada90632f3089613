// README: Trip aggregate and status definitions.
package trip

import (
	"time"

	"tripflow/internal/types"
)

type Kind string

const (
	KindRide     Kind = "ride"
	KindDelivery Kind = "delivery"
)

func (k Kind) Valid() bool {
	return k == KindRide || k == KindDelivery
}

type Status string

const (
	StatusIdle             Status = "idle"
	StatusBooking          Status = "booking"
	StatusSelectingVehicle Status = "selecting_vehicle"
	StatusSearching        Status = "searching"
	StatusMatched          Status = "matched"
	StatusExpired          Status = "expired"
	StatusEnRouteToPickup  Status = "en_route_to_pickup"
	StatusArrived          Status = "arrived"
	StatusAwaitingPayment  Status = "awaiting_payment"
	StatusPaying           Status = "paying"
	StatusPaid             Status = "paid"
	StatusInProgress       Status = "in_progress"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// statusRank orders statuses along the lifecycle. matched and expired are siblings.
var statusRank = map[Status]int{
	StatusIdle:             0,
	StatusBooking:          1,
	StatusSelectingVehicle: 2,
	StatusSearching:        3,
	StatusMatched:          4,
	StatusExpired:          4,
	StatusEnRouteToPickup:  5,
	StatusArrived:          6,
	StatusAwaitingPayment:  7,
	StatusPaying:           8,
	StatusPaid:             9,
	StatusInProgress:       10,
	StatusCompleted:        11,
	StatusCancelled:        11,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Draft reports whether the status precedes dispatch, where the trip has no id yet.
func (s Status) Draft() bool {
	return s == StatusBooking || s == StatusSelectingVehicle
}

// HasDriver reports whether a trip in this status must carry a driver.
func (s Status) HasDriver() bool {
	switch s {
	case StatusMatched, StatusEnRouteToPickup, StatusArrived, StatusAwaitingPayment,
		StatusPaying, StatusPaid, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s Status) Rank() int {
	return statusRank[s]
}

type VehicleClass string

const (
	VehicleCompact    VehicleClass = "compact"
	VehicleSedan      VehicleClass = "sedan"
	VehicleSUV        VehicleClass = "suv"
	VehicleMotorcycle VehicleClass = "motorcycle"
	VehicleVan        VehicleClass = "van"
	VehicleTruck      VehicleClass = "truck"
)

func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleCompact, VehicleSedan, VehicleSUV, VehicleMotorcycle, VehicleVan, VehicleTruck:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type CancelledBy string

const (
	CancelledByRequester CancelledBy = "requester"
	CancelledByProvider  CancelledBy = "provider"
)

func (c CancelledBy) Valid() bool {
	return c == CancelledByRequester || c == CancelledByProvider
}

// Milestone names a lifecycle timestamp key.
type Milestone string

const (
	MilestoneRequested Milestone = "requested"
	MilestoneMatched   Milestone = "matched"
	MilestoneEnRoute   Milestone = "en_route"
	MilestoneArrived   Milestone = "arrived"
	MilestonePaid      Milestone = "paid"
	MilestoneStarted   Milestone = "started"
	MilestonePickedUp  Milestone = "picked_up"
	MilestoneCompleted Milestone = "completed"
	MilestoneCancelled Milestone = "cancelled"
	MilestoneExpired   Milestone = "expired"
)

type Place struct {
	Address string      `json:"address"`
	Point   types.Point `json:"point"`
}

func (p Place) HasCoordinates() bool {
	return !p.Point.IsZero() && p.Point.Valid()
}

type Driver struct {
	ID                 types.ID    `json:"id"`
	Name               string      `json:"name,omitempty"`
	Rating             float64     `json:"rating,omitempty"`
	CompletedTripCount int         `json:"completed_trip_count,omitempty"`
	VehicleDescription string      `json:"vehicle_description,omitempty"`
	CurrentLocation    types.Point `json:"current_location"`
}

type Cancellation struct {
	By     CancelledBy `json:"by"`
	Reason string      `json:"reason,omitempty"`
}

// PackageDetails describes a delivery's parcel; nil for rides.
type PackageDetails struct {
	Description    string `json:"description,omitempty"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	Size           string `json:"size,omitempty"`
}

type Trip struct {
	ID            types.ID                `json:"id"`
	Kind          Kind                    `json:"kind"`
	Status        Status                  `json:"status"`
	Pickup        Place                   `json:"pickup"`
	Destination   Place                   `json:"destination"`
	VehicleClass  VehicleClass            `json:"vehicle_class,omitempty"`
	Fare          types.Money             `json:"fare"`
	PaymentStatus PaymentStatus           `json:"payment_status"`
	Driver        *Driver                 `json:"driver,omitempty"`
	Timestamps    map[Milestone]time.Time `json:"timestamps"`
	Scheduled     bool                    `json:"scheduled"`
	ScheduledFor  *time.Time              `json:"scheduled_for,omitempty"`
	Cancellation  *Cancellation           `json:"cancellation,omitempty"`
	DistanceKm    float64                 `json:"distance_km"`
	DurationMins  float64                 `json:"duration_mins"`
	Package       *PackageDetails         `json:"package,omitempty"`
}

// DestinationLabel is the display name of the destination leg for this kind of trip.
func (t *Trip) DestinationLabel() string {
	if t.Kind == KindDelivery {
		return "dropoff"
	}
	return "destination"
}

// Clone returns a deep copy so store snapshots cannot be mutated by readers.
func (t *Trip) Clone() *Trip {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Driver != nil {
		d := *t.Driver
		cp.Driver = &d
	}
	if t.ScheduledFor != nil {
		at := *t.ScheduledFor
		cp.ScheduledFor = &at
	}
	if t.Cancellation != nil {
		c := *t.Cancellation
		cp.Cancellation = &c
	}
	if t.Package != nil {
		p := *t.Package
		cp.Package = &p
	}
	cp.Timestamps = make(map[Milestone]time.Time, len(t.Timestamps))
	for k, v := range t.Timestamps {
		cp.Timestamps[k] = v
	}
	return &cp
}

// Stamp writes a milestone only if it has never been written.
func (t *Trip) Stamp(m Milestone, at time.Time) bool {
	if t.Timestamps == nil {
		t.Timestamps = make(map[Milestone]time.Time)
	}
	if _, ok := t.Timestamps[m]; ok {
		return false
	}
	t.Timestamps[m] = at
	return true
}

// StatusOf returns idle for an empty store.
func StatusOf(t *Trip) Status {
	if t == nil {
		return StatusIdle
	}
	return t.Status
}
