// README: JSON shapes exchanged with the trip backend.
package gateway

import (
	"time"

	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

// DispatchRequest is a new trip order. Destination doubles as the delivery dropoff.
type DispatchRequest struct {
	Kind         trip.Kind
	Pickup       trip.Place
	Destination  trip.Place
	VehicleClass trip.VehicleClass
	ScheduledFor *time.Time
	Package      *trip.PackageDetails
}

type wirePlace struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type wireDriver struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name,omitempty"`
	Rating             float64    `json:"rating,omitempty"`
	CompletedTripCount int        `json:"completed_trip_count,omitempty"`
	VehicleDescription string     `json:"vehicle_description,omitempty"`
	CurrentLocation    *wirePlace `json:"current_location,omitempty"`
}

type wireCancellation struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

type wirePackage struct {
	Description    string `json:"description,omitempty"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	Size           string `json:"size,omitempty"`
}

type wireTrip struct {
	ID            string               `json:"id"`
	Kind          string               `json:"kind"`
	Status        string               `json:"status"`
	Pickup        *wirePlace           `json:"pickup,omitempty"`
	Destination   *wirePlace           `json:"destination,omitempty"`
	Dropoff       *wirePlace           `json:"dropoff,omitempty"`
	VehicleClass  string               `json:"vehicle_class,omitempty"`
	Fare          *types.Money         `json:"fare,omitempty"`
	PaymentStatus string               `json:"payment_status,omitempty"`
	Driver        *wireDriver          `json:"driver,omitempty"`
	Timestamps    map[string]time.Time `json:"timestamps,omitempty"`
	Scheduled     bool                 `json:"scheduled,omitempty"`
	ScheduledFor  *time.Time           `json:"scheduled_for,omitempty"`
	Cancellation  *wireCancellation    `json:"cancellation,omitempty"`
	DistanceKm    float64              `json:"distance_km,omitempty"`
	DurationMins  float64              `json:"duration_mins,omitempty"`
	Package       *wirePackage         `json:"package,omitempty"`
}

type dispatchBody struct {
	Kind         string       `json:"kind"`
	Pickup       wirePlace    `json:"pickup"`
	Destination  *wirePlace   `json:"destination,omitempty"`
	Dropoff      *wirePlace   `json:"dropoff,omitempty"`
	VehicleClass string       `json:"vehicle_class"`
	Scheduled    bool         `json:"scheduled"`
	ScheduledFor *time.Time   `json:"scheduled_for,omitempty"`
	Package      *wirePackage `json:"package,omitempty"`
}

type cancelBody struct {
	By     string `json:"by"`
	Reason string `json:"reason,omitempty"`
}

func toWirePlace(p trip.Place) wirePlace {
	return wirePlace{Address: p.Address, Lat: p.Point.Lat, Lng: p.Point.Lng}
}

func (p *wirePlace) place() trip.Place {
	if p == nil {
		return trip.Place{}
	}
	return trip.Place{Address: p.Address, Point: types.Point{Lat: p.Lat, Lng: p.Lng}}
}

func newDispatchBody(req DispatchRequest) dispatchBody {
	body := dispatchBody{
		Kind:         string(req.Kind),
		Pickup:       toWirePlace(req.Pickup),
		VehicleClass: string(req.VehicleClass),
		Scheduled:    req.ScheduledFor != nil,
		ScheduledFor: req.ScheduledFor,
	}
	dest := toWirePlace(req.Destination)
	if req.Kind == trip.KindDelivery {
		body.Dropoff = &dest
	} else {
		body.Destination = &dest
	}
	if req.Package != nil {
		body.Package = &wirePackage{
			Description:    req.Package.Description,
			RecipientName:  req.Package.RecipientName,
			RecipientPhone: req.Package.RecipientPhone,
			Size:           req.Package.Size,
		}
	}
	return body
}

// toTrip converts the backend shape. Unknown statuses are kept verbatim and rejected by the store.
func (w wireTrip) toTrip() *trip.Trip {
	t := &trip.Trip{
		ID:            types.ID(w.ID),
		Kind:          trip.Kind(w.Kind),
		Status:        trip.Status(w.Status),
		Pickup:        w.Pickup.place(),
		VehicleClass:  trip.VehicleClass(w.VehicleClass),
		PaymentStatus: trip.PaymentStatus(w.PaymentStatus),
		Timestamps:    make(map[trip.Milestone]time.Time, len(w.Timestamps)),
		Scheduled:     w.Scheduled,
		ScheduledFor:  w.ScheduledFor,
		DistanceKm:    w.DistanceKm,
		DurationMins:  w.DurationMins,
	}
	if w.Dropoff != nil {
		t.Destination = w.Dropoff.place()
		if t.Kind == "" {
			t.Kind = trip.KindDelivery
		}
	} else {
		t.Destination = w.Destination.place()
	}
	if w.Fare != nil {
		t.Fare = *w.Fare
	}
	if w.Driver != nil {
		t.Driver = &trip.Driver{
			ID:                 types.ID(w.Driver.ID),
			Name:               w.Driver.Name,
			Rating:             w.Driver.Rating,
			CompletedTripCount: w.Driver.CompletedTripCount,
			VehicleDescription: w.Driver.VehicleDescription,
			CurrentLocation:    w.Driver.CurrentLocation.place().Point,
		}
	}
	for k, v := range w.Timestamps {
		t.Timestamps[trip.Milestone(k)] = v
	}
	if w.Cancellation != nil {
		t.Cancellation = &trip.Cancellation{By: trip.CancelledBy(w.Cancellation.By), Reason: w.Cancellation.Reason}
	}
	if w.Package != nil {
		t.Package = &trip.PackageDetails{
			Description:    w.Package.Description,
			RecipientName:  w.Package.RecipientName,
			RecipientPhone: w.Package.RecipientPhone,
			Size:           w.Package.Size,
		}
	}
	return t
}
