// Package queue implements the durable task queue: an append-only event log
// per task plus a shared pending stream with consumer-group semantics.
// Backed by SQLite in WAL mode, it survives restarts, supports multi-worker
// claim/ack and reconstructs task state by replaying events.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ricmello/garra/internal/task"
)

// Queue provides access to the pending stream and per-task event logs.
// Safe for concurrent use across worker goroutines; SQLite serializes the
// writes.
type Queue struct {
	db       *sql.DB
	workerID string
	logger   *slog.Logger
}

// Claim is a pending entry handed to exactly one worker.
type Claim struct {
	MessageID       int64
	TaskID          string
	UserID          string
	Capability      string
	Payload         map[string]any
	OriginalRequest string
}

// New opens (or creates) the queue database at the given path.
func New(dbPath string, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	// WAL mode for concurrent readers while a worker appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	q := &Queue{
		db:       db,
		workerID: "worker-" + uuid.NewString()[:8],
		logger:   logger,
	}
	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return q, nil
}

// Close closes the database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

// WorkerID returns this process's default consumer identity.
func (q *Queue) WorkerID() string { return q.workerID }

func (q *Queue) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pending (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id          TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		capability       TEXT NOT NULL,
		payload          TEXT NOT NULL DEFAULT '{}',
		original_request TEXT DEFAULT '',
		enqueued_at      DATETIME NOT NULL,
		claimed_by       TEXT NOT NULL DEFAULT '',
		claimed_at       DATETIME,
		delivery_count   INTEGER NOT NULL DEFAULT 0,
		acked            INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS task_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		worker_id  TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL DEFAULT '{}',
		timestamp  DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(task_id);
	CREATE INDEX IF NOT EXISTS idx_pending_unclaimed ON pending(acked, claimed_by);
	`
	_, err := q.db.Exec(schema)
	return err
}

// Enqueue persists a task before any processing begins and returns its id.
// The pending entry and the enqueued event are durable before this returns,
// so the caller may safely acknowledge acceptance to the user.
func (q *Queue) Enqueue(userID, capability string, payload map[string]any, originalRequest string) (string, error) {
	taskID := uuid.NewString()[:12]
	now := time.Now().UTC()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	_, err = q.db.Exec(
		`INSERT INTO pending (task_id, user_id, capability, payload, original_request, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, userID, capability, string(payloadJSON), task.Truncate(originalRequest, 500), now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	q.logEvent(Event{
		Type:   EventEnqueued,
		TaskID: taskID,
		Data: map[string]any{
			"user_id":          userID,
			"capability":       capability,
			"payload":          payload,
			"original_request": task.Truncate(originalRequest, 200),
		},
	})

	q.logger.Info("queue.enqueued", "task_id", taskID, "capability", capability, "user_id", userID)
	return taskID, nil
}

// ClaimNext atomically assigns the next unclaimed pending entry to a worker.
// No two workers observe the same entry. Returns (nil, nil) when the stream
// is empty; callers poll.
func (q *Queue) ClaimNext(workerID string) (*Claim, error) {
	if workerID == "" {
		workerID = q.workerID
	}

	tx, err := q.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		`SELECT id, task_id, user_id, capability, payload, original_request
		 FROM pending
		 WHERE acked = 0 AND claimed_by = ''
		 ORDER BY id
		 LIMIT 1`,
	)

	var c Claim
	var payloadJSON string
	err = row.Scan(&c.MessageID, &c.TaskID, &c.UserID, &c.Capability, &payloadJSON, &c.OriginalRequest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan pending entry: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.Exec(
		`UPDATE pending
		 SET claimed_by = ?, claimed_at = ?, delivery_count = delivery_count + 1
		 WHERE id = ? AND claimed_by = ''`,
		workerID, now, c.MessageID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// Another worker raced us inside this transaction window.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	if err := json.Unmarshal([]byte(payloadJSON), &c.Payload); err != nil {
		c.Payload = map[string]any{}
	}

	q.logEvent(Event{Type: EventClaimed, TaskID: c.TaskID, WorkerID: workerID})
	q.logger.Info("queue.claimed", "task_id", c.TaskID, "worker", workerID)
	return &c, nil
}

// Ack marks a claimed entry as fully processed, removing it from the
// pending-retry set.
func (q *Queue) Ack(messageID int64) error {
	_, err := q.db.Exec(`UPDATE pending SET acked = 1 WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// ReleaseClaim returns a claimed entry to the pending stream so another
// worker can pick it up. Used when a worker gives up without finishing.
func (q *Queue) ReleaseClaim(messageID int64) error {
	_, err := q.db.Exec(
		`UPDATE pending SET claimed_by = '', claimed_at = NULL WHERE id = ? AND acked = 0`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Checkpoint appends a progress checkpoint to the task's event log.
func (q *Queue) Checkpoint(taskID, step string, data map[string]any) {
	merged := map[string]any{"step": step}
	for k, v := range data {
		merged[k] = v
	}
	q.logEvent(Event{Type: EventCheckpoint, TaskID: taskID, WorkerID: q.workerID, Data: merged})
}

// MarkProgressed appends a progressed event with a short human-readable
// note, keeping the event log a usable activity trail.
func (q *Queue) MarkProgressed(taskID, note string) {
	q.logEvent(Event{
		Type: EventProgressed, TaskID: taskID, WorkerID: q.workerID,
		Data: map[string]any{"note": task.Truncate(note, 200)},
	})
}

// MarkStarted appends a started event.
func (q *Queue) MarkStarted(taskID string) {
	q.logEvent(Event{Type: EventStarted, TaskID: taskID, WorkerID: q.workerID})
}

// MarkCompleted appends a completed event with a truncated result.
func (q *Queue) MarkCompleted(taskID, result string) {
	q.logEvent(Event{
		Type: EventCompleted, TaskID: taskID, WorkerID: q.workerID,
		Data: map[string]any{"result": task.Truncate(result, 500)},
	})
	q.logger.Info("queue.completed", "task_id", taskID)
}

// MarkFailed appends a failed event with a truncated error.
func (q *Queue) MarkFailed(taskID, errText string) {
	q.logEvent(Event{
		Type: EventFailed, TaskID: taskID, WorkerID: q.workerID,
		Data: map[string]any{"error": task.Truncate(errText, 500)},
	})
	q.logger.Error("queue.failed", "task_id", taskID, "error", task.Truncate(errText, 200))
}

// MarkRecovered appends a recovered event, clearing the failure in the
// replayed projection.
func (q *Queue) MarkRecovered(taskID string) {
	q.logEvent(Event{Type: EventRecovered, TaskID: taskID, WorkerID: q.workerID})
}

// RecoverState replays all events for a task into a derived projection.
func (q *Queue) RecoverState(taskID string) (*TaskState, error) {
	events, err := q.Events(taskID)
	if err != nil {
		return nil, err
	}
	return Replay(taskID, events), nil
}

// GetUnfinishedTasks scans claimed-but-unacknowledged entries and returns
// replayed states for any not yet completed or failed. This is how a
// restarted worker pool discovers interrupted work.
func (q *Queue) GetUnfinishedTasks() ([]*TaskState, error) {
	rows, err := q.db.Query(
		`SELECT task_id FROM pending WHERE acked = 0 AND claimed_by != '' ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("scan unfinished: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var unfinished []*TaskState
	for _, id := range ids {
		state, err := q.RecoverState(id)
		if err != nil {
			q.logger.Error("queue.recover_failed", "task_id", id, "error", err)
			continue
		}
		if !state.Finished() {
			unfinished = append(unfinished, state)
		}
	}
	return unfinished, nil
}

// UnfinishedClaim returns the pending entry for a task that is claimed but
// not acked, so a recovery scan can re-run it with its original payload.
func (q *Queue) UnfinishedClaim(taskID string) (*Claim, error) {
	row := q.db.QueryRow(
		`SELECT id, task_id, user_id, capability, payload, original_request
		 FROM pending WHERE task_id = ? AND acked = 0
		 ORDER BY id LIMIT 1`, taskID,
	)
	var c Claim
	var payloadJSON string
	err := row.Scan(&c.MessageID, &c.TaskID, &c.UserID, &c.Capability, &payloadJSON, &c.OriginalRequest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	if err := json.Unmarshal([]byte(payloadJSON), &c.Payload); err != nil {
		c.Payload = map[string]any{}
	}
	return &c, nil
}

// ListStates replays every task known to the pending stream, for status
// views. Acked tasks are included so completed work remains visible.
func (q *Queue) ListStates() ([]*TaskState, error) {
	rows, err := q.db.Query(`SELECT DISTINCT task_id FROM pending ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var states []*TaskState
	for _, id := range ids {
		state, err := q.RecoverState(id)
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

// Events returns all events for a task in append order.
func (q *Queue) Events(taskID string) ([]Event, error) {
	rows, err := q.db.Query(
		`SELECT event_type, worker_id, data, timestamp
		 FROM task_events WHERE task_id = ? ORDER BY id`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var dataJSON string
		if err := rows.Scan(&ev.Type, &ev.WorkerID, &dataJSON, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TaskID = taskID
		if err := json.Unmarshal([]byte(dataJSON), &ev.Data); err != nil {
			ev.Data = map[string]any{}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// logEvent appends to the task's event log. Write failures are logged and
// swallowed.
func (q *Queue) logEvent(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	dataJSON, err := json.Marshal(ev.Data)
	if err != nil {
		dataJSON = []byte("{}")
	}
	_, err = q.db.Exec(
		`INSERT INTO task_events (task_id, event_type, worker_id, data, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.TaskID, ev.Type, ev.WorkerID, string(dataJSON), ev.Timestamp,
	)
	if err != nil {
		q.logger.Error("queue.event_log_failed", "task_id", ev.TaskID, "type", ev.Type, "error", err)
	}
}
