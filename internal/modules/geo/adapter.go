// README: Geo Sync Adapter; applies only the latest route computation.
package geo

import (
	"context"
	"errors"
	"sync"

	"tripflow/internal/types"
)

// ErrSuperseded means a newer ComputeRoute was issued before this one resolved.
var ErrSuperseded = errors.New("route computation superseded")

type Adapter struct {
	router Router

	mu        sync.Mutex
	gen       uint64
	current   *Route
	listeners []routeListener
	nextID    int
}

type routeListener struct {
	id int
	fn func(Route)
}

func NewAdapter(router Router) *Adapter {
	return &Adapter{router: router}
}

// ComputeRoute stamps a generation, delegates to the router, and applies the result only
// if no newer call was issued meanwhile. The underlying call is never cancelled.
func (a *Adapter) ComputeRoute(ctx context.Context, from, to types.Point) (Route, error) {
	return a.ComputeRouteAt(ctx, a.Begin(), from, to)
}

// Begin reserves the next generation and supersedes every outstanding computation.
// Callers that order route requests under their own lock reserve here, then resolve
// with ComputeRouteAt outside it.
func (a *Adapter) Begin() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	return a.gen
}

// ComputeRouteAt resolves a generation reserved by Begin.
func (a *Adapter) ComputeRouteAt(ctx context.Context, gen uint64, from, to types.Point) (Route, error) {
	a.mu.Lock()
	stale := gen != a.gen
	a.mu.Unlock()
	if stale {
		return Route{}, ErrSuperseded
	}

	r, err := a.router.Route(ctx, from, to)

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return Route{}, ErrSuperseded
	}
	if err != nil {
		a.mu.Unlock()
		return Route{}, err
	}
	applied := r
	a.current = &applied
	fns := make([]func(Route), 0, len(a.listeners))
	for _, l := range a.listeners {
		fns = append(fns, l.fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
	return r, nil
}

// Current returns the visible route.
func (a *Adapter) Current() (Route, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Route{}, false
	}
	return *a.current, true
}

// Clear drops the visible route and supersedes any outstanding computation.
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.gen++
	a.current = nil
}

func (a *Adapter) Generation() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen
}

func (a *Adapter) Subscribe(fn func(Route)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.listeners = append(a.listeners, routeListener{id: id, fn: fn})
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, l := range a.listeners {
			if l.id == id {
				a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
				return
			}
		}
	}
}
