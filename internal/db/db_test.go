package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mindbuzzer/internal/kv"
)

func getSQLiteDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "mindbuzzer.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func getTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}
	database, err := Connect(dsn)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	t.Cleanup(func() {
		// Clean up test data
		database.conn.Exec("DELETE FROM kv_entries WHERE namespace LIKE 'test-%'")
		database.conn.Exec("DELETE FROM round_results WHERE terminal_id LIKE 'test-%'")
		database.Close()
	})
	return database
}

func backends(t *testing.T) map[string]func(*testing.T) *DB {
	return map[string]func(*testing.T) *DB{
		"sqlite":   getSQLiteDB,
		"postgres": getTestDB,
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: postgres}
	lite := &DB{dialect: sqlite}
	q := "SELECT value FROM kv_entries WHERE namespace = ? AND entry_key = ?"

	if got, want := pg.rebind(q), "SELECT value FROM kv_entries WHERE namespace = $1 AND entry_key = $2"; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := lite.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q, want unchanged", got)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database := getSQLiteDB(t)
	if err := database.Migrate(); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}
}

func TestKV(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			database := open(t)
			ctx := context.Background()
			ns := "test-terminal"

			if _, err := database.Get(ctx, ns, "mind-buzzer-storage"); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("Get(missing) error = %v, want kv.ErrNotFound", err)
			}

			if err := database.Set(ctx, ns, "COMPETITION_ACCESS", "ENABLED"); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			if err := database.Set(ctx, ns, "COMPETITION_ACCESS", "DISABLED"); err != nil {
				t.Fatalf("Set() upsert error: %v", err)
			}
			if err := database.Set(ctx, ns, "banned_users", `["EVE"]`); err != nil {
				t.Fatalf("Set() error: %v", err)
			}

			v, err := database.Get(ctx, ns, "COMPETITION_ACCESS")
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if v != "DISABLED" {
				t.Errorf("Get() = %q, want %q", v, "DISABLED")
			}

			keys, err := database.Keys(ctx, ns)
			if err != nil {
				t.Fatalf("Keys() error: %v", err)
			}
			if len(keys) != 2 {
				t.Errorf("Keys() = %v, want 2 keys", keys)
			}

			if err := database.Delete(ctx, ns, "banned_users"); err != nil {
				t.Fatalf("Delete() error: %v", err)
			}
			if _, err := database.Get(ctx, ns, "banned_users"); !errors.Is(err, kv.ErrNotFound) {
				t.Errorf("Get() after Delete error = %v, want kv.ErrNotFound", err)
			}

			if err := database.Clear(ctx, ns); err != nil {
				t.Fatalf("Clear() error: %v", err)
			}
			keys, _ = database.Keys(ctx, ns)
			if len(keys) != 0 {
				t.Errorf("Keys() after Clear = %v, want empty", keys)
			}
		})
	}
}

func TestRoundResults(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			database := open(t)
			ctx := context.Background()

			first := RoundResult{
				TerminalID: "test-terminal", TeamName: "ALPHA", Round: 1, Mode: "python",
				Score: 420, Solved: 4, Total: 5, Status: "promoted",
			}
			second := RoundResult{
				TerminalID: "test-terminal", TeamName: "ALPHA", Round: 2, Mode: "java",
				Score: 180, Solved: 1, Total: 1, Status: "waiting",
			}
			id, err := database.RecordResult(ctx, first)
			if err != nil {
				t.Fatalf("RecordResult() error: %v", err)
			}
			if id == "" {
				t.Error("RecordResult() returned empty ID")
			}
			if _, err := database.RecordResult(ctx, second); err != nil {
				t.Fatalf("RecordResult() error: %v", err)
			}

			results, err := database.ResultsForTeam(ctx, "ALPHA")
			if err != nil {
				t.Fatalf("ResultsForTeam() error: %v", err)
			}
			if len(results) != 2 {
				t.Fatalf("ResultsForTeam() returned %d results, want 2", len(results))
			}
			if results[0].Round != 1 || results[0].Score != 420 || results[0].Status != "promoted" {
				t.Errorf("first result = %+v, want round 1 score 420 promoted", results[0])
			}
			if results[1].Mode != "java" {
				t.Errorf("second result mode = %q, want %q", results[1].Mode, "java")
			}
			if results[0].RecordedAt.IsZero() {
				t.Error("RecordedAt should be set")
			}

			none, err := database.ResultsForTeam(ctx, "NOBODY")
			if err != nil {
				t.Fatalf("ResultsForTeam() error: %v", err)
			}
			if len(none) != 0 {
				t.Errorf("ResultsForTeam(NOBODY) = %d results, want 0", len(none))
			}
		})
	}
}
