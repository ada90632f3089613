package schedule

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTimeUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		in   time.Duration
		want string
	}{
		{-time.Minute, "now"},
		{0, "now"},
		{30 * time.Second, "less than a minute"},
		{12*time.Minute + 30*time.Second, "in 12m"},
		{2*time.Hour + 5*time.Minute, "in 2h 5m"},
		{3 * time.Hour, "in 3h"},
		{3*24*time.Hour + 4*time.Hour + 10*time.Minute, "in 3d 4h"},
		{48 * time.Hour, "in 2d"},
	}
	for _, tc := range cases {
		if got := TimeUntil(now.Add(tc.in), now); got != tc.want {
			t.Errorf("TimeUntil(+%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLadderMessageAt(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    string
	}{
		{0, RideLadder[0].Message},
		{14 * time.Second, RideLadder[0].Message},
		{15 * time.Second, RideLadder[1].Message},
		{time.Minute, RideLadder[2].Message},
		{10 * time.Minute, RideLadder[3].Message},
	}
	for _, tc := range cases {
		if got := RideLadder.MessageAt(tc.elapsed); got != tc.want {
			t.Errorf("MessageAt(%s) = %q, want %q", tc.elapsed, got, tc.want)
		}
	}

	unordered := Ladder{{After: time.Minute, Message: "late"}, {After: 0, Message: "early"}}
	if got := unordered.MessageAt(30 * time.Second); got != "early" {
		t.Fatalf("unordered ladder = %q", got)
	}
	if got := (Ladder{}).MessageAt(time.Hour); got != "" {
		t.Fatalf("empty ladder = %q", got)
	}
}

func TestCountdownTicksUntilStopped(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	target := time.Now().Add(2 * time.Hour)

	stop := Countdown{Ticker: Ticker{Interval: 5 * time.Millisecond}}.Start(context.Background(), target, func(s string) {
		mu.Lock()
		defer mu.Unlock()
		texts = append(texts, s)
	})

	mu.Lock()
	first := len(texts)
	mu.Unlock()
	if first != 1 {
		t.Fatalf("expected an immediate render, got %d", first)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(texts)
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("countdown did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	stop()
	stop()

	mu.Lock()
	n := len(texts)
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != n {
		t.Fatalf("countdown ticked after stop")
	}
	if texts[0] != "in 1h 59m" && texts[0] != "in 2h" {
		t.Fatalf("text = %q", texts[0])
	}
}

func TestTickerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan time.Time, 100)
	stop := Ticker{Interval: time.Millisecond}.Start(ctx, func(now time.Time) { calls <- now })
	cancel()
	stop()
	n := len(calls)
	time.Sleep(10 * time.Millisecond)
	if len(calls) != n {
		t.Fatalf("ticker kept running after cancel")
	}
}
