// README: Journal store backed by PostgreSQL.
package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS trip_transitions (
    id          BIGSERIAL PRIMARY KEY,
    trip_id     TEXT NOT NULL DEFAULT '',
    trip_kind   TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    event       TEXT NOT NULL,
    origin      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trip_transitions_trip_id_idx ON trip_transitions (trip_id, id)`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the journal table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO trip_transitions (
            trip_id, trip_kind, from_status, to_status, event, origin, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.TripID),
		string(e.TripKind),
		string(e.FromStatus),
		string(e.ToStatus),
		string(e.Event),
		string(e.Origin),
		e.CreatedAt,
	)
	return err
}

// ListByTrip returns a trip's entries in append order.
func (s *Store) ListByTrip(ctx context.Context, tripID types.ID) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, trip_id, trip_kind, from_status, to_status, event, origin, created_at
        FROM trip_transitions
        WHERE trip_id = $1
        ORDER BY id`, string(tripID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id, kind, from, to, event, origin string
		if err := rows.Scan(&e.ID, &id, &kind, &from, &to, &event, &origin, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TripID = types.ID(id)
		e.TripKind = trip.Kind(kind)
		e.FromStatus = trip.Status(from)
		e.ToStatus = trip.Status(to)
		e.Event = trip.EventKind(event)
		e.Origin = trip.Origin(origin)
		out = append(out, e)
	}
	return out, rows.Err()
}
