package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSplitSQLDropsCommentsAndBlanks(t *testing.T) {
	sql := `-- journal
CREATE TABLE IF NOT EXISTS a (id INT);

-- index
CREATE INDEX IF NOT EXISTS a_idx ON a (id);
`
	got := splitSQL(sql)
	want := []string{
		"CREATE TABLE IF NOT EXISTS a (id INT)",
		"CREATE INDEX IF NOT EXISTS a_idx ON a (id)",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitSQL = %q", got)
	}
}

func TestExtractTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.sql")
	if err := os.WriteFile(path, []byte("create table if not exists trip_transitions (id int);"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := extractTables(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "trip_transitions" {
		t.Fatalf("tables = %v", got)
	}
}

func TestSummaryExitCode(t *testing.T) {
	results := []Result{
		{Name: "ping_db", Status: statusPass},
		{Name: "redis_push", Status: statusSkip},
		{Name: "perf_active_trip", Status: statusPending},
	}
	s := summarize(results)
	if got := s.exitCode(false); got != 0 {
		t.Fatalf("lenient exit = %d", got)
	}
	if got := s.exitCode(true); got != 1 {
		t.Fatalf("strict exit with pending = %d", got)
	}

	s = summarize(append(results, Result{Name: "active_trip", Status: statusFail}))
	if got := s.exitCode(false); got != 1 {
		t.Fatalf("exit with failure = %d", got)
	}
	if want := "PASS=1 FAIL=1 PENDING=1 SKIP=1\nfailed: active_trip"; s.String() != want {
		t.Fatalf("summary = %q", s.String())
	}
}

func TestLoadConfigReadsSharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripflow.yaml")
	doc := `api:
  base_url: http://backend:9000/
journal:
  dsn: postgres://bench@db/tripflow
realtime:
  channel: redis
  redis_addr: broker:6379
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig([]string{"-config", path, "-write", "-concurrency", "4"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://backend:9000" || cfg.DSN != "postgres://bench@db/tripflow" || cfg.RedisAddr != "broker:6379" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Write || cfg.Concurrency != 4 || cfg.Timeout != time.Minute {
		t.Fatalf("flags not applied: %+v", cfg)
	}

	if _, err := loadConfig([]string{"-config", path, "-concurrency", "0"}); err == nil {
		t.Fatalf("expected error for zero concurrency")
	}
}
