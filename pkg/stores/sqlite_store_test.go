package stores

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func testRecord(id string, status RunStatus) *RunRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &RunRecord{
		ID:              id,
		PlanPath:        "combined_repo_plan.json",
		PlanFingerprint: "deadbeef",
		Phases:          "validate,apply",
		Status:          status,
		OpsTotal:        3,
		OpsApplied:      2,
		OpsNoop:         1,
		Results:         "[]",
		StartedAt:       now,
		FinishedAt:      now.Add(time.Second),
	}
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	record := testRecord("run-1", RunStatusCompleted)
	if err := store.RecordRun(ctx, record); err != nil {
		t.Fatalf("failed to record run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.PlanFingerprint != record.PlanFingerprint {
		t.Errorf("fingerprint mismatch: %s != %s", got.PlanFingerprint, record.PlanFingerprint)
	}
	if got.Status != RunStatusCompleted {
		t.Errorf("unexpected status: %s", got.Status)
	}
	if got.OpsApplied != 2 || got.OpsNoop != 1 {
		t.Errorf("op counters not preserved: %+v", got)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	if _, err := store.GetRun(context.Background(), "absent"); err == nil {
		t.Fatal("expected error for missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	older := testRecord("run-old", RunStatusCompleted)
	older.StartedAt = older.StartedAt.Add(-time.Hour)
	newer := testRecord("run-new", RunStatusFailed)

	if err := store.RecordRun(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordRun(ctx, newer); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
}
