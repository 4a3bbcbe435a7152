package queue

import "time"

// Event types, in the order a task normally experiences them.
const (
	EventEnqueued   = "enqueued"
	EventClaimed    = "claimed"
	EventStarted    = "started"
	EventProgressed = "progressed"
	EventCheckpoint = "checkpoint"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventRecovered  = "recovered"
)

// Event is one immutable fact in a task's append-only log. The ordered
// event sequence is the sole source of truth for reconstructing task state
// after a crash.
type Event struct {
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id"`
	WorkerID  string         `json:"worker,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Checkpoint is a progress marker extracted from checkpoint events.
type Checkpoint struct {
	Step      string
	Version   string
	Timestamp time.Time
}

// TaskState is the queue-side projection of a task, reconstructed by
// folding its ordered event log. Purely derived — never the source of
// truth, only a view.
type TaskState struct {
	TaskID      string
	Status      string // pending, claimed, processing, completed, failed
	UserID      string
	Capability  string
	Payload     map[string]any
	WorkerID    string
	Events      []Event
	Checkpoints []Checkpoint
	Result      string
	Error       string
	Recoveries  int
	EnqueuedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Replay folds an ordered event list into a TaskState projection.
// Deterministic: the same list always yields an identical projection.
func Replay(taskID string, events []Event) *TaskState {
	state := &TaskState{TaskID: taskID, Status: "unknown"}

	for _, ev := range events {
		state.Events = append(state.Events, ev)

		switch ev.Type {
		case EventEnqueued:
			state.Status = "pending"
			state.UserID = str(ev.Data, "user_id")
			state.Capability = str(ev.Data, "capability")
			if p, ok := ev.Data["payload"].(map[string]any); ok {
				state.Payload = p
			}
			state.EnqueuedAt = ev.Timestamp

		case EventClaimed:
			state.Status = "claimed"
			state.WorkerID = ev.WorkerID

		case EventStarted:
			state.Status = "processing"
			state.StartedAt = ev.Timestamp

		case EventProgressed:
			state.Status = "processing"

		case EventCheckpoint:
			state.Checkpoints = append(state.Checkpoints, Checkpoint{
				Step:      str(ev.Data, "step"),
				Version:   str(ev.Data, "version"),
				Timestamp: ev.Timestamp,
			})

		case EventCompleted:
			state.Status = "completed"
			state.Result = str(ev.Data, "result")
			state.CompletedAt = ev.Timestamp

		case EventFailed:
			state.Status = "failed"
			state.Error = str(ev.Data, "error")

		case EventRecovered:
			state.Status = "processing"
			state.Error = ""
			state.Recoveries++
		}
	}

	return state
}

// Finished reports whether the task reached a terminal queue status.
func (s *TaskState) Finished() bool {
	return s.Status == "completed" || s.Status == "failed"
}

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
