// README: Orchestrator scenario tests with an in-memory backend.
package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/geo"
	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

var (
	pickup      = trip.Place{Address: "Taipei 101", Point: types.Point{Lat: 25.0339, Lng: 121.5645}}
	destination = trip.Place{Address: "Taipei Main Station", Point: types.Point{Lat: 25.0478, Lng: 121.5170}}
)

type harness struct {
	o       *Orchestrator
	gw      *fakeGateway
	journal *memJournal
	clock   *stepClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	h := &harness{
		gw:      newFakeGateway(),
		journal: &memJournal{},
		clock:   &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.o = New(Deps{
		Store:   trip.NewStore(),
		Gateway: h.gw,
		Routes:  geo.NewAdapter(geo.StraightLine{}),
		Journal: h.journal,
		Logger:  logger,
		Clock:   h.clock.Now,
		Tick:    5 * time.Millisecond,
	})
	return h
}

func (h *harness) dispatch(t *testing.T, kind trip.Kind) *trip.Trip {
	t.Helper()
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, kind); err != nil {
		t.Fatalf("start booking: %v", err)
	}
	if _, err := h.o.ConfirmRoute(ctx, pickup, destination); err != nil {
		t.Fatalf("confirm route: %v", err)
	}
	if err := h.o.SelectVehicle(ctx, trip.VehicleSedan); err != nil {
		t.Fatalf("select vehicle: %v", err)
	}
	tr, err := h.o.ConfirmDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	return tr
}

// push updates the backend copy and then delivers the matching realtime event.
func (h *harness) push(t *testing.T, ev trip.Event, server func(*trip.Trip)) bool {
	t.Helper()
	if server != nil {
		h.gw.update(ev.TripID, server)
	}
	return h.o.ApplyRealtimeEvent(context.Background(), ev)
}

func (h *harness) matched(t *testing.T, id types.ID) {
	t.Helper()
	ok := h.push(t, trip.Event{Kind: trip.EvMatched, TripID: id, DriverID: "d1"}, func(s *trip.Trip) {
		s.Status = trip.StatusMatched
		s.Driver = &trip.Driver{ID: "d1", Name: "Lin", Rating: 4.9, VehicleDescription: "White Toyota Altis"}
	})
	if !ok {
		t.Fatalf("matched push rejected")
	}
}

func assertStatus(t *testing.T, o *Orchestrator, want trip.Status) {
	t.Helper()
	if got := o.Status(); got != want {
		t.Fatalf("status = %s, want %s", got, want)
	}
}

func TestOverlappingConfirmRouteKeepsLatest(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	jr := newGatedJournal(trip.EvConfirmRoute)
	routes := geo.NewAdapter(geo.StraightLine{})
	o := New(Deps{
		Gateway: newFakeGateway(),
		Routes:  routes,
		Journal: jr,
		Logger:  logger,
		Clock:   (&stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}).Now,
	})
	ctx := context.Background()
	if err := o.StartBooking(ctx, trip.KindRide); err != nil {
		t.Fatalf("start booking: %v", err)
	}

	first := trip.Place{Address: "Tamsui", Point: types.Point{Lat: 25.1676, Lng: 121.4456}}
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, firstErr = o.ConfirmRoute(ctx, pickup, first)
	}()
	// first call is committed and parked in the journal
	<-jr.entered

	second, err := o.ConfirmRoute(ctx, pickup, destination)
	if err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	close(jr.release)
	<-done

	if !errors.Is(firstErr, geo.ErrSuperseded) {
		t.Fatalf("first confirm: expected ErrSuperseded, got %v", firstErr)
	}
	cur := o.Trip()
	if cur.Destination != destination {
		t.Fatalf("destination = %+v", cur.Destination)
	}
	visible, ok := o.Route()
	if !ok || visible.SnappedDestination != destination.Point {
		t.Fatalf("visible route = %+v, want destination %+v", visible, destination.Point)
	}
	if cur.DistanceKm != second.DistanceKm || cur.DurationMins != second.DurationMins {
		t.Fatalf("trip distance %.2f km, want %.2f km", cur.DistanceKm, second.DistanceKm)
	}
}

func TestLateRouteForOldEndpointsIsDropped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindRide); err != nil {
		t.Fatalf("start booking: %v", err)
	}
	if _, err := h.o.ConfirmRoute(ctx, pickup, destination); err != nil {
		t.Fatalf("confirm route: %v", err)
	}
	want := h.o.Trip().DistanceKm

	old := trip.Place{Address: "Tamsui", Point: types.Point{Lat: 25.1676, Lng: 121.4456}}
	err := h.o.remote(ctx, trip.Event{Kind: trip.EvRouteComputed, Pickup: &pickup, Destination: &old, DistanceKm: 99})
	if !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", err)
	}
	if got := h.o.Trip().DistanceKm; got != want {
		t.Fatalf("distance overwritten: %.2f, want %.2f", got, want)
	}
}

func TestRideHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tr := h.dispatch(t, trip.KindRide)
	assertStatus(t, h.o, trip.StatusSearching)
	if tr.ID == "" || tr.DistanceKm == 0 {
		t.Fatalf("dispatched trip = %+v", tr)
	}

	h.matched(t, tr.ID)
	assertStatus(t, h.o, trip.StatusMatched)
	if d := h.o.Trip().Driver; d == nil || d.Name != "Lin" {
		t.Fatalf("driver not resynced: %+v", d)
	}

	if err := h.o.TrackDriver(ctx); err != nil {
		t.Fatalf("track driver: %v", err)
	}
	assertStatus(t, h.o, trip.StatusEnRouteToPickup)

	h.push(t, trip.Event{Kind: trip.EvProviderArrived, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusArrived })
	assertStatus(t, h.o, trip.StatusArrived)

	if err := h.o.RequestPay(ctx); err != nil {
		t.Fatalf("request pay: %v", err)
	}
	assertStatus(t, h.o, trip.StatusAwaitingPayment)

	receipt, err := h.o.ConfirmPay(ctx)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(receipt) == 0 {
		t.Fatalf("empty receipt")
	}
	assertStatus(t, h.o, trip.StatusPaid)

	h.push(t, trip.Event{Kind: trip.EvStarted, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusInProgress })
	assertStatus(t, h.o, trip.StatusInProgress)

	h.push(t, trip.Event{Kind: trip.EvCompleted, TripID: tr.ID}, func(s *trip.Trip) {
		s.Status = trip.StatusCompleted
		s.Driver.CompletedTripCount = 501
	})
	assertStatus(t, h.o, trip.StatusCompleted)
	if h.o.Trip().PaymentStatus != trip.PaymentPaid {
		t.Fatalf("payment status = %s", h.o.Trip().PaymentStatus)
	}
	// the completion refresh lands on the terminal trip
	if d := h.o.Trip().Driver; d == nil || d.CompletedTripCount != 501 {
		t.Fatalf("final driver summary not merged: %+v", d)
	}

	if err := h.o.AcknowledgeCompletion(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	assertStatus(t, h.o, trip.StatusIdle)
	if _, ok := h.o.Route(); ok {
		t.Fatalf("route should be cleared")
	}

	events := h.journal.events()
	if len(events) == 0 || events[0] != trip.EvStartBooking || events[len(events)-1] != trip.EvAcknowledgeCompletion {
		t.Fatalf("journal = %v", events)
	}
}

func TestExpiryAndRetry(t *testing.T) {
	h := newHarness(t)
	tr := h.dispatch(t, trip.KindRide)

	h.push(t, trip.Event{Kind: trip.EvTimedOut, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusExpired })
	assertStatus(t, h.o, trip.StatusExpired)

	retried, err := h.o.RequestRetry(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	assertStatus(t, h.o, trip.StatusSearching)
	if retried.ID != tr.ID {
		t.Fatalf("retry changed id: %s -> %s", tr.ID, retried.ID)
	}
	if _, ok := retried.Timestamps[trip.MilestoneExpired]; !ok {
		t.Fatalf("expired milestone lost on retry")
	}
}

func TestCancelFromMidFlow(t *testing.T) {
	h := newHarness(t)
	tr := h.dispatch(t, trip.KindRide)
	h.matched(t, tr.ID)

	if err := h.o.RequestCancel(context.Background(), trip.CancelledByRequester, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStatus(t, h.o, trip.StatusCancelled)
	c := h.o.Trip().Cancellation
	if c == nil || c.By != trip.CancelledByRequester || c.Reason != "changed my mind" {
		t.Fatalf("cancellation = %+v", c)
	}
	calls := h.gw.cancelCalls()
	if len(calls) != 1 || calls[0].id != tr.ID {
		t.Fatalf("cancel calls = %+v", calls)
	}
}

func TestCancelDraftStaysLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindDelivery); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.o.RequestCancel(ctx, trip.CancelledByRequester, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStatus(t, h.o, trip.StatusIdle)
	if len(h.gw.cancelCalls()) != 0 {
		t.Fatalf("draft cancel reached the backend")
	}
}

func TestRebookAfterCancellationAndStalePush(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.dispatch(t, trip.KindRide)
	if err := h.o.RequestCancel(ctx, trip.CancelledByRequester, "wrong pickup"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	b, err := h.o.RequestRebook(ctx)
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if b.ID == a.ID {
		t.Fatalf("rebook reused id %s", a.ID)
	}
	if b.Pickup != a.Pickup || b.Destination != a.Destination || b.Status != trip.StatusSearching {
		t.Fatalf("rebooked trip = %+v", b)
	}
	if b.Cancellation != nil {
		t.Fatalf("rebooked trip carries cancellation")
	}

	before := h.o.Trip()
	if h.o.ApplyRealtimeEvent(ctx, trip.Event{Kind: trip.EvMatched, TripID: a.ID, DriverID: "d9"}) {
		t.Fatalf("stale push for %s accepted", a.ID)
	}
	after := h.o.Trip()
	if after.ID != before.ID || after.Status != before.Status || after.Driver != nil {
		t.Fatalf("store changed by stale push: %+v", after)
	}
}

func TestRealtimeReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tr := h.dispatch(t, trip.KindRide)
	h.matched(t, tr.ID)
	once := h.o.Trip()

	if h.o.ApplyRealtimeEvent(context.Background(), trip.Event{Kind: trip.EvMatched, TripID: tr.ID, DriverID: "d1"}) {
		t.Fatalf("duplicate push accepted")
	}
	twice := h.o.Trip()
	if twice.Status != once.Status || !twice.Timestamps[trip.MilestoneMatched].Equal(once.Timestamps[trip.MilestoneMatched]) {
		t.Fatalf("replay changed state: %+v vs %+v", once, twice)
	}
}

func TestDispatchLandingAfterDraftCancelIsCancelledRemotely(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindRide); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.o.ConfirmRoute(ctx, pickup, destination); err != nil {
		t.Fatalf("route: %v", err)
	}
	if err := h.o.SelectVehicle(ctx, trip.VehicleSUV); err != nil {
		t.Fatalf("vehicle: %v", err)
	}

	h.gw.gate = make(chan struct{})
	h.gw.entered = make(chan struct{})
	var wg sync.WaitGroup
	var dispatchErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, dispatchErr = h.o.ConfirmDispatch(ctx)
	}()
	<-h.gw.entered

	if err := h.o.RequestCancel(ctx, trip.CancelledByRequester, ""); err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	close(h.gw.gate)
	wg.Wait()

	if !errors.Is(dispatchErr, ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", dispatchErr)
	}
	assertStatus(t, h.o, trip.StatusIdle)
	calls := h.gw.cancelCalls()
	if len(calls) != 1 || calls[0].reason != "superseded" || calls[0].by != trip.CancelledByRequester {
		t.Fatalf("orphan cancel calls = %+v", calls)
	}
}

func TestPaymentFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.dispatch(t, trip.KindRide)
	h.matched(t, tr.ID)
	h.push(t, trip.Event{Kind: trip.EvProviderArrived, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusArrived })
	if err := h.o.RequestPay(ctx); err != nil {
		t.Fatalf("request pay: %v", err)
	}

	h.gw.payErr = &gateway.PaymentError{Err: &gateway.ServiceError{Status: 402, Message: "card declined"}}
	_, err := h.o.ConfirmPay(ctx)
	var payErr *gateway.PaymentError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentError, got %v", err)
	}
	assertStatus(t, h.o, trip.StatusAwaitingPayment)

	h.gw.payErr = nil
	if _, err := h.o.ConfirmPay(ctx); err != nil {
		t.Fatalf("second pay: %v", err)
	}
	assertStatus(t, h.o, trip.StatusPaid)
}

func TestInvalidIntentIsSurfaced(t *testing.T) {
	h := newHarness(t)
	err := h.o.RequestPay(context.Background())
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if !errors.Is(err, trip.ErrRejected) {
		t.Fatalf("InvalidTransitionError should wrap ErrRejected")
	}
	assertStatus(t, h.o, trip.StatusIdle)

	var vErr *gateway.ValidationError
	if err := h.o.SelectVehicle(context.Background(), "hovercraft"); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDeliveryPackageReachesBackend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindDelivery); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.o.SetPackage(ctx, trip.PackageDetails{Description: "documents", RecipientName: "Chen"}); err != nil {
		t.Fatalf("package: %v", err)
	}
	if _, err := h.o.ConfirmRoute(ctx, pickup, destination); err != nil {
		t.Fatalf("route: %v", err)
	}
	if err := h.o.SelectVehicle(ctx, trip.VehicleMotorcycle); err != nil {
		t.Fatalf("vehicle: %v", err)
	}
	tr, err := h.o.ConfirmDispatch(ctx)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if tr.Package == nil || tr.Package.RecipientName != "Chen" {
		t.Fatalf("package lost: %+v", tr.Package)
	}
	if tr.DistanceKm == 0 {
		t.Fatalf("route distance lost on dispatch")
	}

	// pickedUp is the delivery start event
	h.matched(t, tr.ID)
	h.push(t, trip.Event{Kind: trip.EvProviderArrived, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusArrived })
	if err := h.o.RequestPay(ctx); err != nil {
		t.Fatalf("request pay: %v", err)
	}
	if _, err := h.o.ConfirmPay(ctx); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if !h.push(t, trip.Event{Kind: trip.EvPickedUp, TripID: tr.ID}, func(s *trip.Trip) { s.Status = trip.StatusInProgress }) {
		t.Fatalf("picked_up rejected")
	}
	assertStatus(t, h.o, trip.StatusInProgress)
	if p := h.o.Trip().Package; p == nil || p.Description != "documents" {
		t.Fatalf("package lost on resync: %+v", p)
	}
}

func TestLoadAdoptsActiveServerTrip(t *testing.T) {
	h := newHarness(t)
	server := h.gw.create(trip.KindRide, pickup, destination, trip.VehicleSedan)
	h.gw.update(server.ID, func(s *trip.Trip) {
		s.Status = trip.StatusMatched
		s.Driver = &trip.Driver{ID: "d1", Name: "Lin"}
	})

	tr, err := h.o.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tr == nil || tr.ID != server.ID || tr.Status != trip.StatusMatched {
		t.Fatalf("loaded = %+v", tr)
	}
}

func TestLoadNormalizesServerTrip(t *testing.T) {
	h := newHarness(t)
	server := h.gw.create(trip.KindRide, pickup, destination, trip.VehicleSedan)
	h.gw.update(server.ID, func(s *trip.Trip) {
		s.Status = trip.StatusPaid
		s.PaymentStatus = ""
		s.Driver = &trip.Driver{ID: "d1", Name: "Lin"}
	})

	tr, err := h.o.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tr == nil || tr.Status != trip.StatusPaid || tr.PaymentStatus != trip.PaymentPaid {
		t.Fatalf("loaded = %+v", tr)
	}
}

func TestLoadSkipsUnusableServerTrip(t *testing.T) {
	h := newHarness(t)
	server := h.gw.create(trip.KindRide, pickup, destination, trip.VehicleSedan)
	h.gw.update(server.ID, func(s *trip.Trip) { s.Status = trip.StatusMatched })

	tr, err := h.o.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tr != nil {
		t.Fatalf("adopted a matched trip without a driver: %+v", tr)
	}
	assertStatus(t, h.o, trip.StatusIdle)
}

func TestResyncLearnsTripEndedWhileDisconnected(t *testing.T) {
	h := newHarness(t)
	tr := h.dispatch(t, trip.KindRide)
	h.gw.update(tr.ID, func(s *trip.Trip) {
		s.Status = trip.StatusCancelled
		s.Cancellation = &trip.Cancellation{By: trip.CancelledByProvider, Reason: "no drivers"}
	})

	if err := h.o.Resync(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	assertStatus(t, h.o, trip.StatusCancelled)
	if c := h.o.Trip().Cancellation; c == nil || c.By != trip.CancelledByProvider {
		t.Fatalf("cancellation = %+v", c)
	}
}

func TestResyncDoesNotRegress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := h.dispatch(t, trip.KindRide)
	h.matched(t, tr.ID)
	if err := h.o.TrackDriver(ctx); err != nil {
		t.Fatalf("track: %v", err)
	}

	// backend still reports matched; the local en_route status must survive
	if err := h.o.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}
	assertStatus(t, h.o, trip.StatusEnRouteToPickup)
}

func TestWatchCountdownStopsAfterDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindRide); err != nil {
		t.Fatalf("start: %v", err)
	}
	at := h.clock.Now().Add(2 * time.Hour)
	if err := h.o.SetSchedule(ctx, &at); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	texts := make(chan string, 1000)
	stop := h.o.WatchCountdown(ctx, func(s string) { texts <- s })
	defer stop()

	select {
	case s := <-texts:
		if s == "" || s == "now" {
			t.Fatalf("countdown text = %q", s)
		}
	case <-time.After(time.Second):
		t.Fatalf("no countdown render")
	}

	if _, err := h.o.ConfirmRoute(ctx, pickup, destination); err != nil {
		t.Fatalf("route: %v", err)
	}
	if err := h.o.SelectVehicle(ctx, trip.VehicleSedan); err != nil {
		t.Fatalf("vehicle: %v", err)
	}
	if _, err := h.o.ConfirmDispatch(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	n := len(texts)
	time.Sleep(30 * time.Millisecond)
	if len(texts) != n {
		t.Fatalf("countdown kept rendering after dispatch")
	}
}

func TestWatchSearchingShowsLadder(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, trip.KindDelivery)

	msgs := make(chan string, 1000)
	stop := h.o.WatchSearching(context.Background(), func(m string) { msgs <- m })
	defer stop()

	select {
	case m := <-msgs:
		if m == "" {
			t.Fatalf("empty ladder message")
		}
	case <-time.After(time.Second):
		t.Fatalf("no ladder message")
	}
}

func TestSetScheduleRejectsPast(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.o.StartBooking(ctx, trip.KindRide); err != nil {
		t.Fatalf("start: %v", err)
	}
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var vErr *gateway.ValidationError
	if err := h.o.SetSchedule(ctx, &past); !errors.As(err, &vErr) || vErr.Field != "scheduled_for" {
		t.Fatalf("expected scheduled_for validation error, got %v", err)
	}
}
