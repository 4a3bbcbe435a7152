package queue

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// testQueue creates a temporary queue for testing.
func testQueue(t *testing.T) *Queue {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	q, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestEnqueue_DurableBeforeReturn(t *testing.T) {
	q := testQueue(t)

	taskID, err := q.Enqueue("user-1", "relatorio", map[string]any{"formato": "xlsx"}, "gerar relatório de vendas")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if taskID == "" {
		t.Fatal("empty task id")
	}

	state, err := q.RecoverState(taskID)
	if err != nil {
		t.Fatalf("recover state: %v", err)
	}
	if state.Status != "pending" {
		t.Errorf("expected pending, got %s", state.Status)
	}
	if state.UserID != "user-1" || state.Capability != "relatorio" {
		t.Errorf("unexpected projection: %+v", state)
	}
	if state.EnqueuedAt.IsZero() {
		t.Error("enqueued_at not set")
	}
}

func TestClaimNext_ExactlyOnceAcrossWorkers(t *testing.T) {
	q := testQueue(t)

	id1, _ := q.Enqueue("u", "capA", nil, "primeira")
	id2, _ := q.Enqueue("u", "capB", nil, "segunda")

	c1, err := q.ClaimNext("worker-a")
	if err != nil {
		t.Fatalf("claim 1: %v", err)
	}
	c2, err := q.ClaimNext("worker-b")
	if err != nil {
		t.Fatalf("claim 2: %v", err)
	}
	c3, err := q.ClaimNext("worker-c")
	if err != nil {
		t.Fatalf("claim 3: %v", err)
	}

	if c1 == nil || c2 == nil {
		t.Fatal("expected two claims")
	}
	if c3 != nil {
		t.Fatalf("third claim should be empty, got task %s", c3.TaskID)
	}
	if c1.TaskID != id1 || c2.TaskID != id2 {
		t.Errorf("claims out of order: %s, %s", c1.TaskID, c2.TaskID)
	}
	if c1.TaskID == c2.TaskID {
		t.Error("two workers observed the same entry")
	}
}

func TestAtLeastOnce_UnackedSurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")

	q, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	taskID, _ := q.Enqueue("u", "relatorio", nil, "pedido")

	claim, err := q.ClaimNext("worker-a")
	if err != nil || claim == nil {
		t.Fatalf("claim: %v", err)
	}
	q.MarkStarted(taskID)

	// Simulate a crash: close without acking.
	q.Close()

	q2, err := New(dbPath, nil)
	if err != nil {
		t.Fatalf("reopen queue: %v", err)
	}
	defer q2.Close()

	unfinished, err := q2.GetUnfinishedTasks()
	if err != nil {
		t.Fatalf("unfinished: %v", err)
	}
	if len(unfinished) != 1 || unfinished[0].TaskID != taskID {
		t.Fatalf("expected interrupted task %s, got %+v", taskID, unfinished)
	}
	if unfinished[0].Status != "processing" {
		t.Errorf("expected processing, got %s", unfinished[0].Status)
	}

	// After ack the entry leaves the pending-retry set.
	if err := q2.Ack(claim.MessageID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	unfinished, _ = q2.GetUnfinishedTasks()
	if len(unfinished) != 0 {
		t.Errorf("acked entry still reported unfinished: %+v", unfinished)
	}
}

func TestFinishedTasksNotReportedUnfinished(t *testing.T) {
	q := testQueue(t)

	taskID, _ := q.Enqueue("u", "cap", nil, "pedido")
	q.ClaimNext("worker-a")
	q.MarkStarted(taskID)
	q.MarkCompleted(taskID, "pronto")

	// Not acked yet, but the event log already says completed.
	unfinished, err := q.GetUnfinishedTasks()
	if err != nil {
		t.Fatalf("unfinished: %v", err)
	}
	if len(unfinished) != 0 {
		t.Errorf("completed task reported unfinished: %+v", unfinished)
	}
}

func TestRecoverState_FullLifecycle(t *testing.T) {
	q := testQueue(t)

	taskID, _ := q.Enqueue("user-1", "relatorio", map[string]any{"x": "y"}, "pedido")
	q.ClaimNext("worker-a")
	q.MarkStarted(taskID)
	q.Checkpoint(taskID, "analyzing", map[string]any{"version": "abc123"})
	q.MarkFailed(taskID, "connection refused")
	q.MarkRecovered(taskID)
	q.MarkCompleted(taskID, "relatório gerado")

	state, err := q.RecoverState(taskID)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if state.Status != "completed" {
		t.Errorf("expected completed, got %s", state.Status)
	}
	if state.Result != "relatório gerado" {
		t.Errorf("unexpected result: %q", state.Result)
	}
	if state.Error != "" {
		t.Errorf("recovered+completed should clear error, got %q", state.Error)
	}
	if state.WorkerID != "worker-a" {
		t.Errorf("unexpected worker: %q", state.WorkerID)
	}
	if len(state.Checkpoints) != 1 || state.Checkpoints[0].Step != "analyzing" {
		t.Errorf("unexpected checkpoints: %+v", state.Checkpoints)
	}
	if state.Checkpoints[0].Version != "abc123" {
		t.Errorf("checkpoint version lost: %+v", state.Checkpoints[0])
	}
	if state.StartedAt.IsZero() || state.CompletedAt.IsZero() {
		t.Error("timestamps not set from events")
	}
}

func TestReplay_Deterministic(t *testing.T) {
	now := time.Now().UTC()
	events := []Event{
		{Type: EventEnqueued, TaskID: "t", Data: map[string]any{"user_id": "u", "capability": "c"}, Timestamp: now},
		{Type: EventClaimed, TaskID: "t", WorkerID: "w1", Timestamp: now},
		{Type: EventStarted, TaskID: "t", WorkerID: "w1", Timestamp: now},
		{Type: EventCheckpoint, TaskID: "t", Data: map[string]any{"step": "planning"}, Timestamp: now},
		{Type: EventFailed, TaskID: "t", Data: map[string]any{"error": "out of memory"}, Timestamp: now},
	}

	first := Replay("t", events)
	second := Replay("t", events)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay not deterministic:\n%+v\n%+v", first, second)
	}
	if first.Status != "failed" || first.Error != "out of memory" {
		t.Errorf("unexpected fold result: %+v", first)
	}
}

func TestEnqueue_TruncatesOriginalRequest(t *testing.T) {
	q := testQueue(t)

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	taskID, err := q.Enqueue("u", "cap", nil, string(long))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claim, err := q.ClaimNext("w")
	if err != nil || claim == nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.TaskID != taskID {
		t.Fatalf("claimed wrong task")
	}
	if len(claim.OriginalRequest) != 500 {
		t.Errorf("expected request truncated to 500, got %d", len(claim.OriginalRequest))
	}
}

func TestReleaseClaim(t *testing.T) {
	q := testQueue(t)

	q.Enqueue("u", "cap", nil, "pedido")
	claim, _ := q.ClaimNext("worker-a")
	if claim == nil {
		t.Fatal("no claim")
	}

	if err := q.ReleaseClaim(claim.MessageID); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := q.ClaimNext("worker-b")
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if again == nil || again.TaskID != claim.TaskID {
		t.Error("released entry not redelivered")
	}
}
