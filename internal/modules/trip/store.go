// README: Trip Store; the single authoritative snapshot of the active trip.
package trip

import "sync"

// Snapshot is what subscribers observe after every committed Replace.
type Snapshot struct {
	Status Status
	Trip   *Trip
}

type listener struct {
	id int
	fn func(Snapshot)
}

type Store struct {
	mu        sync.Mutex
	current   *Trip
	listeners []listener
	nextID    int
}

func NewStore() *Store {
	return &Store{}
}

// Get returns a copy of the current trip, or nil when idle.
func (s *Store) Get() *Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusOf(s.current)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Status: StatusOf(s.current), Trip: s.current.Clone()}
}

// Replace swaps the snapshot after checking invariants. Listeners run after the lock is released.
func (s *Store) Replace(next *Trip) error {
	s.mu.Lock()
	if err := CheckInvariants(s.current, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next.Clone()
	snap := Snapshot{Status: StatusOf(s.current), Trip: s.current.Clone()}
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l.fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return nil
}

// Subscribe registers fn; listeners are called in registration order.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
