// README: Transition journal; append-only audit of accepted transitions.
package journal

import (
	"context"
	"time"

	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

type Entry struct {
	ID         int64
	TripID     types.ID
	TripKind   trip.Kind
	FromStatus trip.Status
	ToStatus   trip.Status
	Event      trip.EventKind
	Origin     trip.Origin
	CreatedAt  time.Time
}

// Recorder persists journal entries. Append failures never roll back a committed transition.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
}

// Nop discards entries; used when no journal DSN is configured.
type Nop struct{}

func (Nop) Append(context.Context, Entry) error { return nil }
