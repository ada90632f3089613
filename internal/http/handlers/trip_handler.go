// README: Trip handlers; translate bridge requests into orchestrator intents.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/geo"
	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

// Orchestrator is the facade surface the bridge drives.
type Orchestrator interface {
	Snapshot() trip.Snapshot
	Route() (geo.Route, bool)
	StartBooking(ctx context.Context, kind trip.Kind) error
	ConfirmRoute(ctx context.Context, pickup, destination trip.Place) (geo.Route, error)
	SelectVehicle(ctx context.Context, class trip.VehicleClass) error
	SetSchedule(ctx context.Context, at *time.Time) error
	SetPackage(ctx context.Context, details trip.PackageDetails) error
	ConfirmDispatch(ctx context.Context) (*trip.Trip, error)
	RequestPay(ctx context.Context) error
	ConfirmPay(ctx context.Context) (gateway.Receipt, error)
	RequestCancel(ctx context.Context, by trip.CancelledBy, reason string) error
	RequestRetry(ctx context.Context) (*trip.Trip, error)
	RequestRebook(ctx context.Context) (*trip.Trip, error)
	TrackDriver(ctx context.Context) error
	TrackTrip(ctx context.Context) error
	AcknowledgeCompletion(ctx context.Context) error
	Reset(ctx context.Context)
	Resync(ctx context.Context) error
}

// Geocoder resolves a free-form address to a place.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (trip.Place, error)
}

type TripHandler struct {
	trips    Orchestrator
	geocoder Geocoder
}

// NewTripHandler builds the handler. geocoder may be nil, in which case route requests
// must carry coordinates.
func NewTripHandler(trips Orchestrator, geocoder Geocoder) *TripHandler {
	return &TripHandler{trips: trips, geocoder: geocoder}
}

type tripResponse struct {
	Status  trip.Status     `json:"status"`
	Trip    *trip.Trip      `json:"trip"`
	Receipt json.RawMessage `json:"receipt,omitempty"`
}

type bookingReq struct {
	Kind trip.Kind `json:"kind"`
}

type placeReq struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type routeReq struct {
	Pickup      placeReq `json:"pickup"`
	Destination placeReq `json:"destination"`
}

type vehicleReq struct {
	VehicleClass trip.VehicleClass `json:"vehicle_class"`
	ScheduledFor *time.Time        `json:"scheduled_for"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *TripHandler) respond(c *gin.Context, status int) {
	snap := h.trips.Snapshot()
	writeJSON(c, status, tripResponse{Status: snap.Status, Trip: snap.Trip})
}

// intent runs fn and answers with the resulting snapshot.
func (h *TripHandler) intent(c *gin.Context, fn func(ctx context.Context) error) {
	if err := fn(c.Request.Context()); err != nil {
		writeTripError(c, err)
		return
	}
	h.respond(c, http.StatusOK)
}

func (h *TripHandler) Get(c *gin.Context) {
	h.respond(c, http.StatusOK)
}

func (h *TripHandler) StartBooking(c *gin.Context) {
	var req bookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !req.Kind.Valid() {
		writeTripError(c, &gateway.ValidationError{Field: "kind", Message: "must be ride or delivery"})
		return
	}
	h.intent(c, func(ctx context.Context) error { return h.trips.StartBooking(ctx, req.Kind) })
}

func (h *TripHandler) ConfirmRoute(c *gin.Context) {
	var req routeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()
	pickup, err := h.resolve(ctx, "pickup", req.Pickup)
	if err != nil {
		writeTripError(c, err)
		return
	}
	destination, err := h.resolve(ctx, "destination", req.Destination)
	if err != nil {
		writeTripError(c, err)
		return
	}
	route, err := h.trips.ConfirmRoute(ctx, pickup, destination)
	if err != nil {
		writeTripError(c, err)
		return
	}
	snap := h.trips.Snapshot()
	writeJSON(c, http.StatusOK, gin.H{"status": snap.Status, "trip": snap.Trip, "route": route})
}

// resolve geocodes an address-only place.
func (h *TripHandler) resolve(ctx context.Context, field string, p placeReq) (trip.Place, error) {
	place := trip.Place{Address: p.Address, Point: types.Point{Lat: p.Lat, Lng: p.Lng}}
	if place.HasCoordinates() {
		return place, nil
	}
	if p.Address == "" {
		return trip.Place{}, &gateway.ValidationError{Field: field, Message: "address or coordinates required"}
	}
	if h.geocoder == nil {
		return trip.Place{}, &gateway.ValidationError{Field: field, Message: "coordinates required"}
	}
	return h.geocoder.Resolve(ctx, p.Address)
}

func (h *TripHandler) SelectVehicle(c *gin.Context) {
	var req vehicleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	h.intent(c, func(ctx context.Context) error {
		if err := h.trips.SelectVehicle(ctx, req.VehicleClass); err != nil {
			return err
		}
		if req.ScheduledFor == nil {
			return nil
		}
		return h.trips.SetSchedule(ctx, req.ScheduledFor)
	})
}

func (h *TripHandler) SetPackage(c *gin.Context) {
	var req trip.PackageDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	h.intent(c, func(ctx context.Context) error { return h.trips.SetPackage(ctx, req) })
}

func (h *TripHandler) Dispatch(c *gin.Context) {
	if _, err := h.trips.ConfirmDispatch(c.Request.Context()); err != nil {
		writeTripError(c, err)
		return
	}
	h.respond(c, http.StatusCreated)
}

func (h *TripHandler) RequestPay(c *gin.Context) {
	h.intent(c, h.trips.RequestPay)
}

func (h *TripHandler) Pay(c *gin.Context) {
	receipt, err := h.trips.ConfirmPay(c.Request.Context())
	if err != nil {
		writeTripError(c, err)
		return
	}
	snap := h.trips.Snapshot()
	writeJSON(c, http.StatusOK, tripResponse{Status: snap.Status, Trip: snap.Trip, Receipt: json.RawMessage(receipt)})
}

func (h *TripHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	h.intent(c, func(ctx context.Context) error {
		return h.trips.RequestCancel(ctx, trip.CancelledByRequester, req.Reason)
	})
}

func (h *TripHandler) Retry(c *gin.Context) {
	h.intent(c, func(ctx context.Context) error {
		_, err := h.trips.RequestRetry(ctx)
		return err
	})
}

func (h *TripHandler) Rebook(c *gin.Context) {
	if _, err := h.trips.RequestRebook(c.Request.Context()); err != nil {
		writeTripError(c, err)
		return
	}
	h.respond(c, http.StatusCreated)
}

func (h *TripHandler) TrackDriver(c *gin.Context) {
	h.intent(c, h.trips.TrackDriver)
}

func (h *TripHandler) TrackTrip(c *gin.Context) {
	h.intent(c, h.trips.TrackTrip)
}

func (h *TripHandler) Acknowledge(c *gin.Context) {
	h.intent(c, h.trips.AcknowledgeCompletion)
}

func (h *TripHandler) Reset(c *gin.Context) {
	h.intent(c, func(ctx context.Context) error {
		h.trips.Reset(ctx)
		return nil
	})
}

func (h *TripHandler) Resync(c *gin.Context) {
	h.intent(c, h.trips.Resync)
}

func (h *TripHandler) Route(c *gin.Context) {
	route, ok := h.trips.Route()
	if !ok {
		writeError(c, http.StatusNotFound, "no route")
		return
	}
	writeJSON(c, http.StatusOK, route)
}
