// README: Smoke cases for the gateway, journal and push channel; includes a read throughput check.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"tripflow/internal/modules/gateway"
	"tripflow/internal/modules/journal"
	"tripflow/internal/modules/realtime"
	"tripflow/internal/modules/trip"
	"tripflow/internal/types"
)

const (
	statusPass    = "PASS"
	statusFail    = "FAIL"
	statusPending = "PENDING"
	statusSkip    = "SKIP"
)

type Runner struct {
	cfg   Config
	gw    *gateway.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return &Runner{
		cfg: cfg,
		gw: gateway.NewClient(gateway.Config{
			BaseURL:     cfg.BaseURL,
			Timeout:     10 * time.Second,
			Credentials: cfg.Credentials,
			Logger:      logger,
		}),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-7s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: journal Postgres connect", Run: pingDB},
		{Name: "Env: push Redis connect", Run: pingRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: tablesExist},
		{Name: "Journal: append and list", Run: journalRoundTrip},
		{Name: "API: active trip reachable", Run: activeTrip},
		{Name: "API: dispatch validation is local", Run: dispatchValidation},
		{Name: "API: dispatch then cancel", Run: dispatchAndCancel},
		{Name: "Realtime: redis push delivered", Run: redisPush},
		{Name: "Perf: active trip throughput", Run: perfActiveTrip},
	}
}

func pingDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "journal dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func pingRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	raw, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, stmt := range splitSQL(string(raw)) {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func tablesExist(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "journal dsn not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	missing := make([]string, 0)
	for _, t := range tables {
		var name *string
		if err := r.db.QueryRow(ctx, "SELECT to_regclass($1)::text", t).Scan(&name); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if name == nil {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return Result{Status: statusFail, Note: "missing " + strings.Join(missing, ",")}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func journalRoundTrip(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "journal dsn not configured"}
	}
	store := journal.NewStore(r.db)
	id := types.ID("bench-" + uuid.NewString())
	entries := []journal.Entry{
		{TripID: id, TripKind: trip.KindRide, FromStatus: trip.StatusSelectingVehicle, ToStatus: trip.StatusSearching, Event: trip.EvDispatchAccepted, Origin: trip.OriginRemote, CreatedAt: time.Now()},
		{TripID: id, TripKind: trip.KindRide, FromStatus: trip.StatusSearching, ToStatus: trip.StatusMatched, Event: trip.EvMatched, Origin: trip.OriginRealtime, CreatedAt: time.Now()},
	}
	for _, e := range entries {
		if err := store.Append(ctx, e); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	got, err := store.ListByTrip(ctx, id)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if len(got) != len(entries) || got[1].ToStatus != trip.StatusMatched {
		return Result{Status: statusFail, Note: fmt.Sprintf("listed %d entries", len(got))}
	}
	return Result{Status: statusPass}
}

func activeTrip(ctx context.Context, r *Runner) Result {
	start := time.Now()
	t, err := r.gw.FetchActiveTrip(ctx)
	lat := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: lat, Note: err.Error()}
	}
	if t == nil {
		return Result{Status: statusPass, Latency: lat, Note: "no active trip"}
	}
	return Result{Status: statusPass, Latency: lat, Note: fmt.Sprintf("active=%s status=%s", t.ID, t.Status)}
}

func dispatchValidation(ctx context.Context, r *Runner) Result {
	_, err := r.gw.DispatchTrip(ctx, gateway.DispatchRequest{Kind: trip.KindRide})
	var v *gateway.ValidationError
	if !errors.As(err, &v) {
		return Result{Status: statusFail, Note: fmt.Sprintf("expected validation error, got %v", err)}
	}
	return Result{Status: statusPass, Note: "field=" + v.Field}
}

func dispatchAndCancel(ctx context.Context, r *Runner) Result {
	if !r.cfg.Write {
		return Result{Status: statusSkip, Note: "write=false"}
	}
	req := gateway.DispatchRequest{
		Kind:         trip.KindRide,
		Pickup:       trip.Place{Address: "bench pickup", Point: types.Point{Lat: 25.0339, Lng: 121.5645}},
		Destination:  trip.Place{Address: "bench destination", Point: types.Point{Lat: 25.0478, Lng: 121.5170}},
		VehicleClass: trip.VehicleSedan,
	}
	created, err := r.gw.DispatchTrip(ctx, req)
	if err != nil {
		return Result{Status: statusFail, Note: "dispatch: " + err.Error()}
	}
	if err := r.gw.CancelTrip(ctx, created.ID, trip.CancelledByRequester, "bench"); err != nil {
		return Result{Status: statusFail, Note: "cancel: " + err.Error()}
	}
	fetched, err := r.gw.FetchTripByID(ctx, created.ID)
	if err != nil {
		return Result{Status: statusFail, Note: "fetch: " + err.Error()}
	}
	if fetched.Status != trip.StatusCancelled {
		return Result{Status: statusFail, Note: "status=" + string(fetched.Status)}
	}
	return Result{Status: statusPass, Note: "trip=" + string(created.ID)}
}

func redisPush(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ch := &realtime.RedisChannel{Client: r.redis, Prefix: r.cfg.RedisPrefix}
	identity := "bench-" + uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stream, err := ch.Open(ctx, identity)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer stream.Close()

	payload, _ := json.Marshal(realtime.Message{Event: "matched", TripID: "bench-trip", DriverID: "bench-driver"})
	start := time.Now()
	if err := r.redis.Publish(ctx, ch.Topic(identity), payload).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	msg, err := stream.Next(ctx)
	lat := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: lat, Note: err.Error()}
	}
	ev, ok := realtime.ToEvent(msg)
	if !ok || ev.Kind != trip.EvMatched || ev.TripID != "bench-trip" {
		return Result{Status: statusFail, Latency: lat, Note: fmt.Sprintf("unexpected event %+v", ev)}
	}
	return Result{Status: statusPass, Latency: lat}
}

func perfActiveTrip(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				_, err := r.gw.FetchActiveTrip(ctx)
				mu.Lock()
				if err != nil {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed, errors=%d", errCount)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
