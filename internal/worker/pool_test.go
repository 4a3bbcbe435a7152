package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ricmello/garra/internal/executor"
	"github.com/ricmello/garra/internal/queue"
)

// fakeRunner records every request and returns a scripted outcome per task.
type fakeRunner struct {
	mu       sync.Mutex
	requests []executor.Request
	fail     map[string]error // taskID → error to return
}

func (r *fakeRunner) Execute(ctx context.Context, req executor.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if err := r.fail[req.TaskID]; err != nil {
		return "⚠️ Preciso da sua ajuda para continuar.", err
	}
	return "resultado de " + req.TaskID, nil
}

func (r *fakeRunner) seen() []executor.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]executor.Request(nil), r.requests...)
}

func testQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.New(filepath.Join(t.TempDir(), "queue.db"), slog.Default())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func TestDrainProcessesAllPending(t *testing.T) {
	q := testQueue(t)
	runner := &fakeRunner{}
	pool := New(Config{Queue: q, Runner: runner, Workers: 1})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue("u1", "general", map[string]any{
			"text":    fmt.Sprintf("tarefa %d", i),
			"chat_id": float64(100 + i),
		}, fmt.Sprintf("tarefa %d", i))
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	results := pool.Drain(context.Background())
	if len(results) != 3 {
		t.Fatalf("drained %d tasks, want 3", len(results))
	}

	reqs := runner.seen()
	if len(reqs) != 3 {
		t.Fatalf("runner saw %d requests, want 3", len(reqs))
	}
	if reqs[0].TaskID != ids[0] || reqs[0].Text != "tarefa 0" || reqs[0].ChatID != 100 {
		t.Fatalf("first request = %+v", reqs[0])
	}

	// Everything acked: nothing unfinished, nothing claimable.
	unfinished, err := q.GetUnfinishedTasks()
	if err != nil {
		t.Fatalf("GetUnfinishedTasks: %v", err)
	}
	if len(unfinished) != 0 {
		t.Fatalf("unfinished = %d, want 0", len(unfinished))
	}
	if c, _ := q.ClaimNext(""); c != nil {
		t.Fatalf("queue still claimable after drain: %+v", c)
	}
}

func TestFailedTaskIsRecordedAndAcked(t *testing.T) {
	q := testQueue(t)
	id, err := q.Enqueue("u1", "general", map[string]any{"text": "quebra tudo"}, "quebra tudo")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	runner := &fakeRunner{fail: map[string]error{
		id: fmt.Errorf("%w: out of memory", executor.ErrEscalated),
	}}
	pool := New(Config{Queue: q, Runner: runner})

	ok, r := pool.RunOnce(context.Background())
	if !ok {
		t.Fatal("RunOnce found no task")
	}
	if !errors.Is(r.Err, executor.ErrEscalated) {
		t.Fatalf("result err = %v", r.Err)
	}

	st, err := q.RecoverState(id)
	if err != nil {
		t.Fatalf("RecoverState: %v", err)
	}
	if st.Status != "failed" {
		t.Fatalf("status = %q, want failed", st.Status)
	}

	// Terminal failure is still acked: no redelivery loop.
	unfinished, _ := q.GetUnfinishedTasks()
	if len(unfinished) != 0 {
		t.Fatalf("failed task reported unfinished: %d", len(unfinished))
	}
}

func TestResumeReexecutesCrashedTask(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	q1, err := queue.New(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}

	id, err := q1.Enqueue("u1", "general", map[string]any{"text": "gerar relatório de vendas"}, "gerar relatório de vendas")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claim, err := q1.ClaimNext("worker-dead")
	if err != nil || claim == nil {
		t.Fatalf("ClaimNext: claim=%v err=%v", claim, err)
	}
	q1.MarkStarted(id)
	q1.Close() // crash: claimed, started, never acked

	q2, err := queue.New(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q2.Close()

	runner := &fakeRunner{}
	pool := New(Config{Queue: q2, Runner: runner})

	resumed, err := pool.Resume(context.Background())
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed != 1 {
		t.Fatalf("resumed = %d, want 1", resumed)
	}
	if reqs := runner.seen(); len(reqs) != 1 || reqs[0].TaskID != id {
		t.Fatalf("runner requests = %+v", runner.seen())
	}

	st, err := q2.RecoverState(id)
	if err != nil {
		t.Fatalf("RecoverState: %v", err)
	}
	if st.Status != "completed" {
		t.Fatalf("status after resume = %q, want completed", st.Status)
	}
	if st.Recoveries != 1 {
		t.Fatalf("recoveries = %d, want 1", st.Recoveries)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	q := testQueue(t)
	runner := &fakeRunner{}
	pool := New(Config{Queue: q, Runner: runner, Workers: 2, PollInterval: 10 * time.Millisecond})

	if _, err := q.Enqueue("u1", "general", map[string]any{"text": "uma tarefa"}, "uma tarefa"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	deadline := time.After(2 * time.Second)
	for len(runner.seen()) == 0 {
		select {
		case <-deadline:
			t.Fatal("task was never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	done := make(chan struct{})
	go func() { pool.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}
