package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func archivedExecution(id string, status ExecutionStatus, completedAt time.Time) *Execution {
	def := &Definition{
		ID:    "standard_mortgage_processing",
		Steps: []*Step{{ID: "document_processing", Handler: "document_agent"}},
	}
	ex := newExecution(id, def, NewContext(testApp()))
	ex.Status = status
	ex.Steps["document_processing"].Status = StepStatusCompleted
	if !completedAt.IsZero() {
		ex.CompletedAt = &completedAt
	}
	return ex
}

func TestStoreSaveAndGetExecution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ex := archivedExecution("exec-1", ExecutionStatusCompleted, time.Now().UTC())
	if err := store.SaveExecution(ctx, ex); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetExecution(ctx, "exec-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.WorkflowID != "standard_mortgage_processing" || got.ApplicationID != "APP-TEST-1" {
		t.Fatalf("unexpected execution: %+v", got)
	}
	if got.Steps["document_processing"].Status != StepStatusCompleted {
		t.Fatalf("step state not persisted: %+v", got.Steps)
	}
}

func TestStoreStatusIndexFollowsUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ex := archivedExecution("exec-2", ExecutionStatusRunning, time.Time{})
	if err := store.SaveExecution(ctx, ex); err != nil {
		t.Fatalf("save running: %v", err)
	}

	done := time.Now().UTC()
	ex.withLock(func() {
		ex.Status = ExecutionStatusCompleted
		ex.CompletedAt = &done
	})
	if err := store.SaveExecution(ctx, ex); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	running, err := store.ListExecutionIDsByStatus(ctx, ExecutionStatusRunning, 10)
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if len(running) != 0 {
		t.Fatalf("stale status index entry: %v", running)
	}
	completed, err := store.ListExecutionIDsByStatus(ctx, ExecutionStatusCompleted, 10)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(completed) != 1 || completed[0] != "exec-2" {
		t.Fatalf("expected exec-2 in completed index, got %v", completed)
	}
}

func TestStoreListByWorkflow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"exec-a", "exec-b"} {
		if err := store.SaveExecution(ctx, archivedExecution(id, ExecutionStatusCompleted, time.Now().UTC())); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	out, err := store.ListExecutionsByWorkflow(ctx, "standard_mortgage_processing", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(out))
	}
}

func TestStoreDecisionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	decision := map[string]any{"decision": "approve", "overall_score": 85.0}
	if err := store.SaveDecision(ctx, "exec-3", decision); err != nil {
		t.Fatalf("save decision: %v", err)
	}
	raw, err := store.GetDecision(ctx, "exec-3")
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("empty decision payload")
	}
}

func TestStoreSweepRemovesExpiredTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale := archivedExecution("exec-old", ExecutionStatusCompleted, time.Now().UTC().Add(-48*time.Hour))
	fresh := archivedExecution("exec-new", ExecutionStatusCompleted, time.Now().UTC().Add(-1*time.Hour))
	if err := store.SaveExecution(ctx, stale); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	if err := store.SaveExecution(ctx, fresh); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	removed, err := store.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.GetExecution(ctx, "exec-old"); err == nil {
		t.Fatalf("expired execution should be deleted")
	}
	if _, err := store.GetExecution(ctx, "exec-new"); err != nil {
		t.Fatalf("recent execution should survive: %v", err)
	}
}
