package realtime

import "context"

// Channel opens a push stream addressed to one identity.
type Channel interface {
	Open(ctx context.Context, identity string) (Stream, error)
}

// Stream yields messages until it fails or is closed. Close must be safe to call more than once.
type Stream interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}
