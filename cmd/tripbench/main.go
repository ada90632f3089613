// README: Smoke runner against a live trip backend, journal DB and push broker; prints PASS/FAIL/SKIP per case.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tripflow/internal/config"
	"tripflow/internal/modules/gateway"
)

// Config joins the endpoints of the shared tripflow config with bench-only knobs.
type Config struct {
	BaseURL     string
	Credentials gateway.CredentialSource
	DSN         string
	RedisAddr   string
	RedisPrefix string

	MigrationPath  string
	ApplyMigration bool
	Write          bool
	Strict         bool
	Timeout        time.Duration
	Concurrency    int
	Duration       time.Duration
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "tripbench: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	results := NewRunner(cfg).RunAll(ctx)
	cancel()

	s := summarize(results)
	fmt.Printf("\n%s\n", s)
	os.Exit(s.exitCode(cfg.Strict))
}

// loadConfig reads endpoints through config.Load, so the bench hits exactly what the
// orchestrator would; flags only tune the run.
func loadConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("tripbench", flag.ContinueOnError)
	path := fs.String("config", "", "tripflow config file (default ./tripflow.yaml if present)")
	cfg := Config{}
	fs.StringVar(&cfg.MigrationPath, "migration", "migrations/0001_journal.sql", "journal migration SQL path")
	fs.BoolVar(&cfg.ApplyMigration, "apply-migration", false, "apply the migration before the journal cases")
	fs.BoolVar(&cfg.Write, "write", false, "run cases that create and cancel trips")
	fs.BoolVar(&cfg.Strict, "strict", false, "treat pending cases as failures")
	fs.DurationVar(&cfg.Timeout, "timeout", time.Minute, "total timeout")
	fs.IntVar(&cfg.Concurrency, "concurrency", 10, "workers for perf cases")
	fs.DurationVar(&cfg.Duration, "duration", 5*time.Second, "duration of perf cases")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.Concurrency < 1 {
		return Config{}, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	shared, err := config.Load(*path)
	if err != nil {
		return Config{}, err
	}
	cfg.BaseURL = strings.TrimRight(shared.API.BaseURL, "/")
	cfg.Credentials = gateway.StaticToken(shared.Credentials.Token)
	if shared.Credentials.Token == "" && shared.Credentials.File != "" {
		cfg.Credentials = gateway.FileCredentials{Path: shared.Credentials.File}
	}
	cfg.DSN = shared.Journal.DSN
	// the redis default address is only meaningful when redis carries the pushes
	if shared.Realtime.Channel == config.ChannelRedis {
		cfg.RedisAddr = shared.Realtime.RedisAddr
		cfg.RedisPrefix = shared.Realtime.RedisPrefix
	}
	return cfg, nil
}

type summary struct {
	counts map[string]int
	failed []string
}

func summarize(results []Result) summary {
	s := summary{counts: make(map[string]int)}
	for _, r := range results {
		s.counts[r.Status]++
		if r.Status == statusFail {
			s.failed = append(s.failed, r.Name)
		}
	}
	return s
}

// exitCode is 1 when a case failed, or when strict and a case is still pending.
func (s summary) exitCode(strict bool) int {
	if s.counts[statusFail] > 0 || (strict && s.counts[statusPending] > 0) {
		return 1
	}
	return 0
}

func (s summary) String() string {
	line := fmt.Sprintf("PASS=%d FAIL=%d PENDING=%d SKIP=%d",
		s.counts[statusPass], s.counts[statusFail], s.counts[statusPending], s.counts[statusSkip])
	if len(s.failed) > 0 {
		line += "\nfailed: " + strings.Join(s.failed, ", ")
	}
	return line
}
