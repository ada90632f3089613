// README: Orchestrator Facade; the single entry point presentation code talks to.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/geo"
	"tripflow/internal/modules/journal"
	"tripflow/internal/modules/schedule"
	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

// EventResync tags journal entries written by server reconciliation.
const EventResync trip.EventKind = "resync"

type Gateway interface {
	DispatchTrip(ctx context.Context, req gateway.DispatchRequest) (*trip.Trip, error)
	RetryTrip(ctx context.Context, id types.ID) (*trip.Trip, error)
	RebookTrip(ctx context.Context, id types.ID) (*trip.Trip, error)
	CancelTrip(ctx context.Context, id types.ID, by trip.CancelledBy, reason string) error
	PayTrip(ctx context.Context, id types.ID) (gateway.Receipt, error)
	FetchTripByID(ctx context.Context, id types.ID) (*trip.Trip, error)
	FetchActiveTrip(ctx context.Context) (*trip.Trip, error)
}

type RouteComputer interface {
	Begin() uint64
	ComputeRouteAt(ctx context.Context, gen uint64, from, to types.Point) (geo.Route, error)
	Current() (geo.Route, bool)
	Clear()
}

type Deps struct {
	Store   *trip.Store
	Gateway Gateway
	Routes  RouteComputer
	Journal journal.Recorder
	Logger  logrus.FieldLogger
	Clock   func() time.Time
	// Tick is the countdown and searching-ladder refresh interval.
	Tick    time.Duration
	Ladders map[trip.Kind]schedule.Ladder
}

type Orchestrator struct {
	store   *trip.Store
	gw      Gateway
	routes  RouteComputer
	journal journal.Recorder
	log     logrus.FieldLogger
	now     func() time.Time
	ticker  schedule.Ticker
	ladders map[trip.Kind]schedule.Ladder

	// mu serializes Step+Replace; never held across a network call
	mu sync.Mutex
}

func New(d Deps) *Orchestrator {
	store := d.Store
	if store == nil {
		store = trip.NewStore()
	}
	rec := d.Journal
	if rec == nil {
		rec = journal.Nop{}
	}
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	routes := d.Routes
	if routes == nil {
		routes = geo.NewAdapter(geo.StraightLine{})
	}
	ladders := d.Ladders
	if ladders == nil {
		ladders = map[trip.Kind]schedule.Ladder{
			trip.KindRide:     schedule.RideLadder,
			trip.KindDelivery: schedule.DeliveryLadder,
		}
	}
	return &Orchestrator{
		store:   store,
		gw:      d.Gateway,
		routes:  routes,
		journal: rec,
		log:     log.WithField("component", "orchestrator"),
		now:     now,
		ticker:  schedule.Ticker{Interval: d.Tick, Now: now},
		ladders: ladders,
	}
}

func (o *Orchestrator) Trip() *trip.Trip {
	return o.store.Get()
}

func (o *Orchestrator) Status() trip.Status {
	return o.store.Status()
}

func (o *Orchestrator) Snapshot() trip.Snapshot {
	return o.store.Snapshot()
}

// Subscribe registers fn for every committed snapshot. fn runs on the committing goroutine
// and must not call back into the Orchestrator.
func (o *Orchestrator) Subscribe(fn func(trip.Snapshot)) func() {
	return o.store.Subscribe(fn)
}

// Route returns the currently visible route, if any.
func (o *Orchestrator) Route() (geo.Route, bool) {
	return o.routes.Current()
}

// apply runs one event through the engine and commits the result. onCommit runs under mu
// right after the store accepts the snapshot, ordering side state with the commit.
func (o *Orchestrator) apply(ctx context.Context, ev trip.Event, onCommit ...func(trip.Outcome)) (trip.Outcome, error) {
	o.mu.Lock()
	cur := o.store.Get()
	out, err := trip.Step(cur, ev, o.now())
	if err != nil {
		o.mu.Unlock()
		return trip.Outcome{}, err
	}
	if err := o.store.Replace(out.Next); err != nil {
		o.mu.Unlock()
		o.log.WithError(err).WithFields(logrus.Fields{"event": ev.Kind, "from": out.From, "to": out.To}).
			Error("transition broke a trip invariant")
		return trip.Outcome{}, err
	}
	for _, fn := range onCommit {
		fn(out)
	}
	o.mu.Unlock()

	o.record(ctx, cur, out.Next, out.From, out.To, ev.Kind, ev.Kind.Origin())
	return out, nil
}

func (o *Orchestrator) record(ctx context.Context, prev, next *trip.Trip, from, to trip.Status, ev trip.EventKind, origin trip.Origin) {
	t := next
	if t == nil {
		t = prev
	}
	e := journal.Entry{FromStatus: from, ToStatus: to, Event: ev, Origin: origin, CreatedAt: o.now()}
	if t != nil {
		e.TripID = t.ID
		e.TripKind = t.Kind
	}
	log := o.log.WithFields(logrus.Fields{"trip_id": e.TripID, "event": ev, "from": from, "to": to})
	if err := o.journal.Append(ctx, e); err != nil {
		log.WithError(err).Warn("journal append failed")
	}
	if from != to {
		log.Info("trip transition")
	} else {
		log.Debug("trip event")
	}
}

// intent applies a user event, surfacing guard rejections as InvalidTransitionError.
func (o *Orchestrator) intent(ctx context.Context, ev trip.Event, onCommit ...func(trip.Outcome)) (trip.Outcome, error) {
	out, err := o.apply(ctx, ev, onCommit...)
	var rej *trip.RejectedError
	if errors.As(err, &rej) {
		return trip.Outcome{}, &InvalidTransitionError{Err: rej}
	}
	return out, err
}

// remote applies a gateway confirmation. A rejection means the trip moved on meanwhile.
func (o *Orchestrator) remote(ctx context.Context, ev trip.Event) error {
	_, err := o.apply(ctx, ev)
	if errors.Is(err, trip.ErrRejected) {
		o.log.WithError(err).WithFields(logrus.Fields{"event": ev.Kind, "trip_id": ev.TripID}).
			Warn("discarding stale remote result")
		return ErrDiscarded
	}
	return err
}

func (o *Orchestrator) StartBooking(ctx context.Context, kind trip.Kind) error {
	_, err := o.intent(ctx, trip.Event{Kind: trip.EvStartBooking, TripKind: kind})
	return err
}

// ConfirmRoute records the route and computes its geometry. ErrSuperseded is returned when
// a newer ConfirmRoute was issued before this one resolved.
func (o *Orchestrator) ConfirmRoute(ctx context.Context, pickup, destination trip.Place) (geo.Route, error) {
	if !pickup.HasCoordinates() {
		return geo.Route{}, &gateway.ValidationError{Field: "pickup", Message: "coordinates required"}
	}
	if !destination.HasCoordinates() {
		return geo.Route{}, &gateway.ValidationError{Field: "destination", Message: "coordinates required"}
	}
	// the generation is taken in the same critical section that commits the endpoints, so
	// generation order always matches commit order
	var gen uint64
	reserve := func(trip.Outcome) { gen = o.routes.Begin() }
	if _, err := o.intent(ctx, trip.Event{Kind: trip.EvConfirmRoute, Pickup: &pickup, Destination: &destination}, reserve); err != nil {
		return geo.Route{}, err
	}

	r, err := o.routes.ComputeRouteAt(ctx, gen, pickup.Point, destination.Point)
	if err != nil {
		if !errors.Is(err, geo.ErrSuperseded) {
			o.log.WithError(err).Warn("route computation failed")
		}
		return geo.Route{}, err
	}
	err = o.remote(ctx, trip.Event{
		Kind:         trip.EvRouteComputed,
		Pickup:       &pickup,
		Destination:  &destination,
		DistanceKm:   r.DistanceKm,
		DurationMins: r.DurationMins,
	})
	if errors.Is(err, ErrDiscarded) {
		// the draft moved on after the route resolved
		return geo.Route{}, geo.ErrSuperseded
	}
	if err != nil {
		return r, err
	}
	return r, nil
}

func (o *Orchestrator) SelectVehicle(ctx context.Context, class trip.VehicleClass) error {
	if !class.Valid() {
		return &gateway.ValidationError{Field: "vehicle_class", Message: fmt.Sprintf("unknown class %q", class)}
	}
	_, err := o.intent(ctx, trip.Event{Kind: trip.EvSelectVehicle, VehicleClass: class})
	return err
}

// SetSchedule books the draft for a future time; nil makes it immediate.
func (o *Orchestrator) SetSchedule(ctx context.Context, at *time.Time) error {
	if at != nil && !at.After(o.now()) {
		return &gateway.ValidationError{Field: "scheduled_for", Message: "must be in the future"}
	}
	_, err := o.intent(ctx, trip.Event{Kind: trip.EvSetSchedule, ScheduledFor: at})
	return err
}

func (o *Orchestrator) SetPackage(ctx context.Context, details trip.PackageDetails) error {
	_, err := o.intent(ctx, trip.Event{Kind: trip.EvSetPackage, Package: &details})
	return err
}

// ConfirmDispatch sends the draft. A success that lands after the draft was discarded is
// cancelled remotely so no orphan trip stays active on the server.
func (o *Orchestrator) ConfirmDispatch(ctx context.Context) (*trip.Trip, error) {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvConfirmDispatch})
	if err != nil {
		return nil, err
	}
	draft := out.Next
	req := gateway.DispatchRequest{
		Kind:         draft.Kind,
		Pickup:       draft.Pickup,
		Destination:  draft.Destination,
		VehicleClass: draft.VehicleClass,
		ScheduledFor: draft.ScheduledFor,
		Package:      draft.Package,
	}
	created, err := o.gw.DispatchTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := o.remote(ctx, trip.Event{Kind: trip.EvDispatchAccepted, TripID: created.ID, Trip: created}); err != nil {
		if errors.Is(err, ErrDiscarded) {
			o.cancelOrphan(ctx, created.ID)
		}
		return nil, err
	}
	return o.store.Get(), nil
}

func (o *Orchestrator) cancelOrphan(ctx context.Context, id types.ID) {
	log := o.log.WithField("trip_id", id)
	if err := o.gw.CancelTrip(ctx, id, trip.CancelledByRequester, "superseded"); err != nil {
		log.WithError(err).Warn("orphan trip cancel failed")
		return
	}
	log.Info("orphan trip cancelled")
}

func (o *Orchestrator) RequestPay(ctx context.Context) error {
	_, err := o.intent(ctx, trip.Event{Kind: trip.EvRequestPay})
	return err
}

// ConfirmPay pays for the trip. Any failure rolls the trip back to awaiting_payment so the
// caller can retry.
func (o *Orchestrator) ConfirmPay(ctx context.Context) (gateway.Receipt, error) {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvConfirmPay})
	if err != nil {
		return nil, err
	}
	id := out.Next.ID
	receipt, err := o.gw.PayTrip(ctx, id)
	if err != nil {
		if rbErr := o.remote(ctx, trip.Event{Kind: trip.EvPayRejected, TripID: id}); rbErr != nil && !errors.Is(rbErr, ErrDiscarded) {
			o.log.WithError(rbErr).WithField("trip_id", id).Error("payment rollback failed")
		}
		return nil, err
	}
	if err := o.remote(ctx, trip.Event{Kind: trip.EvPayAccepted, TripID: id}); err != nil && !errors.Is(err, ErrDiscarded) {
		return receipt, err
	}
	return receipt, nil
}

// RequestCancel discards a draft locally, or cancels the active trip on the server.
func (o *Orchestrator) RequestCancel(ctx context.Context, by trip.CancelledBy, reason string) error {
	if !by.Valid() {
		return &gateway.ValidationError{Field: "by", Message: "must be requester or provider"}
	}
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvRequestCancel})
	if err != nil {
		return err
	}
	if out.To == trip.StatusIdle {
		o.routes.Clear()
		return nil
	}

	id := out.Next.ID
	if err := o.gw.CancelTrip(ctx, id, by, reason); err != nil {
		return err
	}
	err = o.remote(ctx, trip.Event{
		Kind:         trip.EvCancelAccepted,
		TripID:       id,
		Cancellation: &trip.Cancellation{By: by, Reason: reason},
	})
	if errors.Is(err, ErrDiscarded) {
		// already terminal through a push; the server has our cancel either way
		return nil
	}
	return err
}

func (o *Orchestrator) RequestRetry(ctx context.Context) (*trip.Trip, error) {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvRequestRetry})
	if err != nil {
		return nil, err
	}
	retried, err := o.gw.RetryTrip(ctx, out.Next.ID)
	if err != nil {
		return nil, err
	}
	if err := o.remote(ctx, trip.Event{Kind: trip.EvDispatchAccepted, TripID: retried.ID, Trip: retried}); err != nil {
		return nil, err
	}
	return o.store.Get(), nil
}

// RequestRebook creates a fresh trip from a cancelled one's route.
func (o *Orchestrator) RequestRebook(ctx context.Context) (*trip.Trip, error) {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvRequestRebook})
	if err != nil {
		return nil, err
	}
	rebooked, err := o.gw.RebookTrip(ctx, out.Next.ID)
	if err != nil {
		return nil, err
	}
	if err := o.remote(ctx, trip.Event{Kind: trip.EvDispatchAccepted, TripID: rebooked.ID, Trip: rebooked}); err != nil {
		if errors.Is(err, ErrDiscarded) && rebooked.ID != out.Next.ID {
			o.cancelOrphan(ctx, rebooked.ID)
		}
		return nil, err
	}
	return o.store.Get(), nil
}

func (o *Orchestrator) TrackDriver(ctx context.Context) error {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvTrackDriver})
	if err != nil {
		return err
	}
	o.runEffects(ctx, out)
	return nil
}

func (o *Orchestrator) TrackTrip(ctx context.Context) error {
	out, err := o.intent(ctx, trip.Event{Kind: trip.EvTrackTrip})
	if err != nil {
		return err
	}
	o.runEffects(ctx, out)
	return nil
}

func (o *Orchestrator) AcknowledgeCompletion(ctx context.Context) error {
	if _, err := o.intent(ctx, trip.Event{Kind: trip.EvAcknowledgeCompletion}); err != nil {
		return err
	}
	o.routes.Clear()
	return nil
}

// Reset drops the local trip without touching the server. Load recovers an active one.
func (o *Orchestrator) Reset(ctx context.Context) {
	if o.store.Status() != trip.StatusIdle {
		if _, err := o.apply(ctx, trip.Event{Kind: trip.EvReset}); err != nil && !errors.Is(err, trip.ErrRejected) {
			o.log.WithError(err).Error("reset failed")
		}
	}
	o.routes.Clear()
}

// ApplyRealtimeEvent feeds a push event through the engine. Stale or duplicate events are
// dropped and reported as false.
func (o *Orchestrator) ApplyRealtimeEvent(ctx context.Context, ev trip.Event) bool {
	out, err := o.apply(ctx, ev)
	if err != nil {
		if errors.Is(err, trip.ErrRejected) {
			o.log.WithError(err).WithFields(logrus.Fields{"event": ev.Kind, "trip_id": ev.TripID}).Debug("stale event dropped")
		}
		return false
	}
	o.runEffects(ctx, out)
	return true
}

func (o *Orchestrator) runEffects(ctx context.Context, out trip.Outcome) {
	for _, eff := range out.Effects {
		switch eff {
		case trip.EffectFetchTrip:
			if out.Next == nil {
				continue
			}
			if err := o.refresh(ctx, out.Next.ID); err != nil {
				o.log.WithError(err).WithField("trip_id", out.Next.ID).Warn("trip refresh failed")
			}
		default:
			o.log.WithField("effect", eff).Debug("effect handled by caller")
		}
	}
}

// refresh fetches the full trip and merges it into the store.
func (o *Orchestrator) refresh(ctx context.Context, id types.ID) error {
	server, err := o.gw.FetchTripByID(ctx, id)
	if err != nil {
		return err
	}
	return o.reconcile(ctx, server)
}

func (o *Orchestrator) reconcile(ctx context.Context, server *trip.Trip) error {
	o.mu.Lock()
	cur := o.store.Get()
	next, ok := trip.Reconcile(cur, server)
	if !ok {
		o.mu.Unlock()
		return nil
	}
	if err := o.store.Replace(next); err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()
	if cur.Status != next.Status {
		o.record(ctx, cur, next, cur.Status, next.Status, EventResync, trip.OriginRemote)
	}
	return nil
}

// adopt installs a server trip when the store holds nothing active.
func (o *Orchestrator) adopt(ctx context.Context, server *trip.Trip) error {
	o.mu.Lock()
	cur := o.store.Get()
	if cur != nil && cur.ID == server.ID {
		o.mu.Unlock()
		return o.reconcile(ctx, server)
	}
	next, err := trip.Normalize(server)
	if err != nil {
		o.mu.Unlock()
		o.log.WithError(err).WithFields(logrus.Fields{"trip_id": server.ID, "status": server.Status}).
			Warn("skipping unusable server trip")
		return nil
	}
	if err := o.store.Replace(next); err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()
	o.record(ctx, cur, next, trip.StatusOf(cur), next.Status, EventResync, trip.OriginRemote)
	return nil
}

// Load restores the active trip from the server, typically at startup.
func (o *Orchestrator) Load(ctx context.Context) (*trip.Trip, error) {
	if err := o.Resync(ctx); err != nil {
		return nil, err
	}
	return o.store.Get(), nil
}

// Resync reconciles the store with the server's view after a reconnect or on demand.
func (o *Orchestrator) Resync(ctx context.Context) error {
	server, err := o.gw.FetchActiveTrip(ctx)
	if err != nil {
		return fmt.Errorf("fetch active trip: %w", err)
	}
	cur := o.store.Get()
	log := o.log.WithField("op", "resync")

	// the local trip may have ended while we were disconnected
	if cur != nil && !cur.ID.Empty() && !cur.Status.Terminal() && (server == nil || server.ID != cur.ID) {
		if err := o.refresh(ctx, cur.ID); err != nil {
			log.WithError(err).WithField("trip_id", cur.ID).Warn("local trip refresh failed")
		}
	}
	if server == nil {
		log.Debug("no active trip on server")
		return nil
	}
	if err := o.adopt(ctx, server); err != nil {
		return fmt.Errorf("adopt trip %s: %w", server.ID, err)
	}
	log.WithFields(logrus.Fields{"trip_id": server.ID, "status": o.store.Status()}).Info("resynced")
	return nil
}
