// README: Scheduling countdown text and its tick driver.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TimeUntil renders the remaining time to target as short display text.
func TimeUntil(target, now time.Time) string {
	d := target.Sub(now)
	switch {
	case d <= 0:
		return "now"
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d/time.Minute))
	case d < 24*time.Hour:
		h := int(d / time.Hour)
		m := int((d % time.Hour) / time.Minute)
		if m == 0 {
			return fmt.Sprintf("in %dh", h)
		}
		return fmt.Sprintf("in %dh %dm", h, m)
	}
	days := int(d / (24 * time.Hour))
	h := int((d % (24 * time.Hour)) / time.Hour)
	if h == 0 {
		return fmt.Sprintf("in %dd", days)
	}
	return fmt.Sprintf("in %dd %dh", days, h)
}

// Ticker drives periodic callbacks until stopped or its context ends.
type Ticker struct {
	Interval time.Duration
	Now      func() time.Time
}

// Start calls fn immediately and then on every tick. The returned stop func is idempotent
// and waits for the driver goroutine to exit.
func (t Ticker) Start(ctx context.Context, fn func(now time.Time)) func() {
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := t.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	fn(now())
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(now())
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

// Countdown re-renders TimeUntil(target) on every tick.
type Countdown struct {
	Ticker Ticker
}

func (c Countdown) Start(ctx context.Context, target time.Time, fn func(text string)) func() {
	return c.Ticker.Start(ctx, func(now time.Time) {
		fn(TimeUntil(target, now))
	})
}
