package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/journal"
	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

type cancelCall struct {
	id     types.ID
	by     trip.CancelledBy
	reason string
}

// fakeGateway is an in-memory trip backend.
type fakeGateway struct {
	mu      sync.Mutex
	trips   map[types.ID]*trip.Trip
	nextID  int
	active  types.ID
	payErr  error
	cancels []cancelCall
	fetches int

	// when set, DispatchTrip signals entered and waits for gate
	gate    chan struct{}
	entered chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{trips: make(map[types.ID]*trip.Trip)}
}

func (g *fakeGateway) create(kind trip.Kind, pickup, dest trip.Place, class trip.VehicleClass) *trip.Trip {
	g.nextID++
	t := &trip.Trip{
		ID:            types.ID(fmt.Sprintf("t%d", g.nextID)),
		Kind:          kind,
		Status:        trip.StatusSearching,
		Pickup:        pickup,
		Destination:   dest,
		VehicleClass:  class,
		Fare:          types.Money{Amount: 180, Currency: "TWD"},
		PaymentStatus: trip.PaymentUnpaid,
	}
	g.trips[t.ID] = t
	g.active = t.ID
	return t.Clone()
}

func (g *fakeGateway) DispatchTrip(ctx context.Context, req gateway.DispatchRequest) (*trip.Trip, error) {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.create(req.Kind, req.Pickup, req.Destination, req.VehicleClass)
	if req.ScheduledFor != nil {
		g.trips[t.ID].Scheduled = true
		g.trips[t.ID].ScheduledFor = req.ScheduledFor
	}
	return g.trips[t.ID].Clone(), nil
}

func (g *fakeGateway) RetryTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trips[id]
	if !ok {
		return nil, &gateway.ServiceError{Status: 404, Message: "trip not found"}
	}
	t.Status = trip.StatusSearching
	return t.Clone(), nil
}

func (g *fakeGateway) RebookTrip(ctx context.Context, id types.ID) (*trip.Trip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	old, ok := g.trips[id]
	if !ok {
		return nil, &gateway.ServiceError{Status: 404, Message: "trip not found"}
	}
	return g.create(old.Kind, old.Pickup, old.Destination, old.VehicleClass), nil
}

func (g *fakeGateway) CancelTrip(ctx context.Context, id types.ID, by trip.CancelledBy, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, cancelCall{id: id, by: by, reason: reason})
	if t, ok := g.trips[id]; ok {
		t.Status = trip.StatusCancelled
		t.Cancellation = &trip.Cancellation{By: by, Reason: reason}
	}
	return nil
}

func (g *fakeGateway) PayTrip(ctx context.Context, id types.ID) (gateway.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payErr != nil {
		return nil, g.payErr
	}
	t := g.trips[id]
	t.Status = trip.StatusPaid
	t.PaymentStatus = trip.PaymentPaid
	raw, _ := json.Marshal(map[string]any{"trip_id": id, "amount": t.Fare.Amount})
	return gateway.Receipt(raw), nil
}

func (g *fakeGateway) FetchTripByID(ctx context.Context, id types.ID) (*trip.Trip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	t, ok := g.trips[id]
	if !ok {
		return nil, &gateway.ServiceError{Status: 404, Message: "trip not found"}
	}
	return t.Clone(), nil
}

func (g *fakeGateway) FetchActiveTrip(ctx context.Context) (*trip.Trip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.trips[g.active]
	if !ok || t.Status.Terminal() {
		return nil, nil
	}
	return t.Clone(), nil
}

// update mutates the server copy of a trip, as the backend would before pushing an event.
func (g *fakeGateway) update(id types.ID, fn func(*trip.Trip)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.trips[id])
}

func (g *fakeGateway) cancelCalls() []cancelCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]cancelCall(nil), g.cancels...)
}

type memJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (m *memJournal) Append(_ context.Context, e journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

// gatedJournal holds the first append of event until release is closed.
type gatedJournal struct {
	memJournal
	event   trip.EventKind
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedJournal(ev trip.EventKind) *gatedJournal {
	return &gatedJournal{event: ev, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedJournal) Append(ctx context.Context, e journal.Entry) error {
	hold := false
	if e.Event == g.event {
		g.once.Do(func() { hold = true })
	}
	if hold {
		close(g.entered)
		<-g.release
	}
	return g.memJournal.Append(ctx, e)
}

func (m *memJournal) events() []trip.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]trip.EventKind, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Event)
	}
	return out
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}
