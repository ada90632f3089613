// README: Realtime Event Listener; consumes a push channel and fans engine events out to subscribers.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tripflow/internal/modules/trip"
)

// Handler receives mapped events in arrival order.
type Handler func(ctx context.Context, ev trip.Event)

type Config struct {
	Identity   string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnReconnect runs after every successful reopen except the first.
	OnReconnect func(ctx context.Context)
	Logger      logrus.FieldLogger
}

type Listener struct {
	channel Channel
	cfg     Config
	log     logrus.FieldLogger

	mu       sync.Mutex
	handlers []subscription
	nextID   int
	opens    int
}

type subscription struct {
	id int
	fn Handler
}

func NewListener(channel Channel, cfg Config) *Listener {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Listener{
		channel: channel,
		cfg:     cfg,
		log:     log.WithFields(logrus.Fields{"component": "realtime", "identity": cfg.Identity}),
	}
}

// Subscribe adds h to the subscription list and returns its removal func.
func (l *Listener) Subscribe(h Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	l.handlers = append(l.handlers, subscription{id: id, fn: h})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.handlers {
			if s.id == id {
				l.handlers = append(l.handlers[:i:i], l.handlers[i+1:]...)
				return
			}
		}
	}
}

// Subscribers reports the current subscription count.
func (l *Listener) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.handlers)
}

// Opens reports how many streams have been opened successfully.
func (l *Listener) Opens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens
}

// Run consumes the channel until ctx ends, reopening with capped backoff after failures.
// All subscriptions are dropped when Run returns.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.handlers = nil
		l.mu.Unlock()
	}()

	delay := l.cfg.MinBackoff
	for {
		stream, err := l.channel.Open(ctx, l.cfg.Identity)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.log.WithError(err).WithField("retry_in", delay).Warn("push channel open failed")
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = nextBackoff(delay, l.cfg.MaxBackoff)
			continue
		}

		l.mu.Lock()
		l.opens++
		reopened := l.opens > 1
		l.mu.Unlock()
		delay = l.cfg.MinBackoff

		if reopened {
			l.log.Info("push channel reconnected; resyncing")
			if l.cfg.OnReconnect != nil {
				l.cfg.OnReconnect(ctx)
			}
		} else {
			l.log.Info("push channel open")
		}

		err = l.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.WithError(err).WithField("retry_in", delay).Warn("push channel dropped")
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = nextBackoff(delay, l.cfg.MaxBackoff)
	}
}

func (l *Listener) consume(ctx context.Context, stream Stream) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := stream.Next(ctx)
		if errors.Is(err, ErrMalformed) {
			l.log.WithError(err).Warn("dropping push message")
			continue
		}
		if err != nil {
			return err
		}
		ev, ok := ToEvent(msg)
		if !ok {
			l.log.WithField("event", msg.Event).Warn("unknown push event")
			continue
		}
		l.dispatch(ctx, ev)
	}
}

func (l *Listener) dispatch(ctx context.Context, ev trip.Event) {
	l.mu.Lock()
	fns := make([]Handler, 0, len(l.handlers))
	for _, s := range l.handlers {
		fns = append(fns, s.fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(ctx, ev)
	}
}

func nextBackoff(d, ceiling time.Duration) time.Duration {
	d *= 2
	if d > ceiling {
		return ceiling
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
