package service

import (
	"context"
	"time"

	"tripflow/internal/modules/schedule"
	"tripflow/internal/modules/trip"
)

func countdownVisible(s trip.Status) bool {
	return s == trip.StatusIdle || s.Draft()
}

// WatchCountdown renders the time left until the draft's scheduled pickup on every tick.
// It stops on its own once the trip leaves the booking flow.
func (o *Orchestrator) WatchCountdown(ctx context.Context, fn func(text string)) func() {
	return o.watch(ctx, countdownVisible, func(t *trip.Trip, now time.Time) {
		if t == nil || t.ScheduledFor == nil {
			return
		}
		fn(schedule.TimeUntil(*t.ScheduledFor, now))
	})
}

// WatchSearching renders the searching ladder message while a driver is being matched.
// Elapsed time counts from the call.
func (o *Orchestrator) WatchSearching(ctx context.Context, fn func(message string)) func() {
	started := o.now()
	return o.watch(ctx, func(s trip.Status) bool { return s == trip.StatusSearching }, func(t *trip.Trip, now time.Time) {
		if t == nil {
			return
		}
		if msg := o.ladders[t.Kind].MessageAt(now.Sub(started)); msg != "" {
			fn(msg)
		}
	})
}

func (o *Orchestrator) watch(ctx context.Context, visible func(trip.Status) bool, render func(*trip.Trip, time.Time)) func() {
	ctx, cancel := context.WithCancel(ctx)
	unsub := o.store.Subscribe(func(s trip.Snapshot) {
		if !visible(s.Status) {
			cancel()
		}
	})
	if !visible(o.store.Status()) {
		cancel()
	}
	stopTicker := o.ticker.Start(ctx, func(now time.Time) {
		if ctx.Err() != nil {
			return
		}
		snap := o.store.Snapshot()
		if !visible(snap.Status) {
			cancel()
			return
		}
		render(snap.Trip, now)
	})
	return func() {
		unsub()
		cancel()
		stopTicker()
	}
}
