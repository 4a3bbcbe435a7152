// Package worker provides parallel task consumption for garra.
// It manages a pool of goroutines, each claiming tasks from the
// persistent queue and running them through the resilient executor.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ricmello/garra/internal/executor"
	"github.com/ricmello/garra/internal/queue"
)

// Runner executes one claimed task end to end. Satisfied by
// *executor.Executor.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) (string, error)
}

// Result holds the outcome of a single task execution, for callers that
// want to report on drained work.
type Result struct {
	TaskID   string
	Output   string
	Duration time.Duration
	Err      error
}

// Config holds configuration for creating a worker pool.
type Config struct {
	Queue        *queue.Queue
	Runner       Runner
	Logger       *slog.Logger
	Workers      int
	PollInterval time.Duration // 0 = default 1s
}

// Pool claims tasks from the queue and executes them, up to Workers at a
// time. Claims are acknowledged only after the outcome is recorded, so a
// crash mid-task leaves the claim visible for Resume.
type Pool struct {
	queue   *queue.Queue
	runner  Runner
	logger  *slog.Logger
	workers int
	poll    time.Duration

	wg sync.WaitGroup
}

// New creates a worker pool.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{
		queue:   cfg.Queue,
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		workers: cfg.Workers,
		poll:    cfg.PollInterval,
	}
}

// Start launches the worker goroutines. They poll the queue until ctx is
// cancelled; Wait blocks until all of them have drained out.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx)
		}()
	}
}

// Wait blocks until all workers have stopped.
func (p *Pool) Wait() { p.wg.Wait() }

func (p *Pool) loop(ctx context.Context) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if ok, _ := p.RunOnce(ctx); ok {
			// Drain without waiting while work is available.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and executes at most one task. Returns false when the
// queue was empty.
func (p *Pool) RunOnce(ctx context.Context) (bool, *Result) {
	claim, err := p.queue.ClaimNext("")
	if err != nil {
		p.logger.Error("worker.claim_failed", "error", err)
		return false, nil
	}
	if claim == nil {
		return false, nil
	}
	r := p.handle(ctx, claim)
	return true, r
}

// Drain processes tasks until the queue is empty, sequentially. Used by
// one-shot invocations.
func (p *Pool) Drain(ctx context.Context) []Result {
	var results []Result
	for {
		ok, r := p.RunOnce(ctx)
		if !ok {
			return results
		}
		if r != nil {
			results = append(results, *r)
		}
		if ctx.Err() != nil {
			return results
		}
	}
}

// Resume re-executes tasks that were claimed but never finished, typically
// after a crash. Each resumed task gets a recovered event before it runs
// again. Returns how many tasks were resumed.
func (p *Pool) Resume(ctx context.Context) (int, error) {
	states, err := p.queue.GetUnfinishedTasks()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, st := range states {
		claim, err := p.queue.UnfinishedClaim(st.TaskID)
		if err != nil {
			p.logger.Error("worker.resume_lookup_failed", "task_id", st.TaskID, "error", err)
			continue
		}
		if claim == nil {
			continue
		}

		p.logger.Info("worker.resuming", "task_id", st.TaskID, "last_status", st.Status)
		p.queue.MarkRecovered(st.TaskID)
		p.handle(ctx, claim)
		resumed++
	}
	return resumed, nil
}

// handle runs one claimed task through the executor and records the
// outcome. The claim is acknowledged in every branch: failures here are
// terminal escalations, not conditions a redelivery would fix.
func (p *Pool) handle(ctx context.Context, claim *queue.Claim) *Result {
	start := time.Now()

	text := stringField(claim.Payload, "text")
	if text == "" {
		text = claim.OriginalRequest
	}

	req := executor.Request{
		TaskID:    claim.TaskID,
		UserID:    claim.UserID,
		SessionID: stringField(claim.Payload, "session_id"),
		ChatID:    intField(claim.Payload, "chat_id"),
		Text:      text,
	}

	p.queue.MarkStarted(claim.TaskID)
	output, err := p.runner.Execute(ctx, req)

	if err != nil {
		p.queue.MarkFailed(claim.TaskID, err.Error())
		p.logger.Warn("worker.task_failed",
			"task_id", claim.TaskID, "duration", time.Since(start).Round(time.Millisecond), "error", err)
	} else {
		p.queue.MarkCompleted(claim.TaskID, output)
		p.logger.Info("worker.task_done",
			"task_id", claim.TaskID, "duration", time.Since(start).Round(time.Millisecond))
	}

	if ackErr := p.queue.Ack(claim.MessageID); ackErr != nil {
		p.logger.Error("worker.ack_failed", "task_id", claim.TaskID, "error", ackErr)
	}

	return &Result{TaskID: claim.TaskID, Output: output, Duration: time.Since(start), Err: err}
}

func stringField(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func intField(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case float64: // JSON numbers decode as float64.
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
