package task

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxRecoveries bounds automatic recovery attempts per task.
const DefaultMaxRecoveries = 3

// Truncate bounds s to at most max bytes without splitting a rune, so
// truncated pt-BR error text stays valid UTF-8.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// StepResult records one execution attempt. Immutable after creation.
type StepResult struct {
	StepName       string
	Success        bool
	Output         string // Truncated output or error text.
	Err            error
	FallbackUsed   string // Set when a retry used an alternative approach.
	CheckpointHash string
	Timestamp      time.Time
}

// NewStepResult creates a step result stamped with the current time.
func NewStepResult(name string, success bool) StepResult {
	return StepResult{StepName: name, Success: success, Timestamp: time.Now().UTC()}
}

// Context is the mutable record for one running task. It is owned by
// exactly one executor goroutine; nothing here is safe for concurrent use.
type Context struct {
	TaskID    string
	UserID    string
	ChatID    int64 // Notification channel; 0 = no notifications.
	SessionID string

	State            State
	Steps            []StepResult
	RecoveryAttempts int
	MaxRecoveries    int
	LastError        error
	LastSeverity     Severity
	FinalOutput      string
	WorkDir          string

	logger *slog.Logger
}

// NewContext creates a context in the Idle state.
func NewContext(taskID, userID string, chatID int64, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		TaskID:        taskID,
		UserID:        userID,
		ChatID:        chatID,
		State:         StateIdle,
		MaxRecoveries: DefaultMaxRecoveries,
		logger:        logger,
	}
}

// Transition validates and applies a state change. On an illegal target the
// state is left untouched and an *InvalidTransitionError is returned.
func (c *Context) Transition(to State) error {
	if !CanTransition(c.State, to) {
		return &InvalidTransitionError{From: c.State, To: to}
	}
	c.logger.Info("task.transition",
		"task_id", c.TaskID, "from", string(c.State), "to", string(to))
	c.State = to
	return nil
}

// AddStepResult appends to the step history.
func (c *Context) AddStepResult(r StepResult) {
	c.Steps = append(c.Steps, r)
}

// ProgressSummary renders the completed and failed steps for user-facing
// notifications. Independent of transition logic.
func (c *Context) ProgressSummary() string {
	var lines []string
	for _, s := range c.Steps {
		if !s.Success {
			continue
		}
		suffix := ""
		if s.FallbackUsed != "" {
			suffix = " (alternativa: " + s.FallbackUsed + ")"
		}
		lines = append(lines, "✓ "+s.StepName+suffix)
	}
	for _, s := range c.Steps {
		if !s.Success {
			lines = append(lines, "✗ "+s.StepName)
		}
	}
	if len(lines) == 0 {
		return "Nenhuma etapa concluída ainda."
	}
	return strings.Join(lines, "\n")
}
