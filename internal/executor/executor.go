// Package executor drives one task through the resilient lifecycle:
// analysis → planning → delegated execution → verification, with classified
// recovery, checkpoint rollback and human escalation when the automatic
// budget runs out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ricmello/garra/internal/checkpoint"
	"github.com/ricmello/garra/internal/task"
)

// ErrEscalated marks a terminal failure: the returned text is still a
// user-safe message, but the task needs human attention.
var ErrEscalated = errors.New("tarefa escalada para intervenção humana")

// Delegate performs the substantive work described by a task specification.
// It may fail; the executor classifies every failure, never re-raises it.
type Delegate interface {
	Execute(ctx context.Context, description string) (string, error)
}

// Resettable is implemented by delegates that cache state between attempts.
// Reset discards that state, forcing a fresh approach on the next attempt.
type Resettable interface {
	Reset()
}

// DelegateFactory builds the delegate for a task, scoped to its working
// directory.
type DelegateFactory func(workDir string) (Delegate, error)

// Spec is a task specification produced by the planning collaborator.
type Spec struct {
	RawSpec         string
	OriginalRequest string
}

// Planner turns a user request into a task specification.
type Planner interface {
	GenerateSpec(ctx context.Context, request, userID string) (Spec, error)
}

// PassthroughPlanner delegates planning downstream: the request itself is
// the specification, and the delegate coordinates internally.
type PassthroughPlanner struct{}

func (PassthroughPlanner) GenerateSpec(ctx context.Context, request, userID string) (Spec, error) {
	return Spec{RawSpec: request, OriginalRequest: request}, nil
}

// Checkpointer is the slice of the checkpoint store the executor needs.
type Checkpointer interface {
	Init() error
	Checkpoint(message, tag string) (string, error)
	Rollback(n int) error
}

// CheckpointFactory builds the checkpoint store for a working directory.
type CheckpointFactory func(workDir string) Checkpointer

// EventSink receives queue-side progress facts. Implemented by the
// persistent queue; optional.
type EventSink interface {
	Checkpoint(taskID, step string, data map[string]any)
	MarkProgressed(taskID, note string)
	MarkRecovered(taskID string)
}

// Notifier delivers progress messages to the user's channel. Optional.
type Notifier func(chatID int64, message string)

// Config wires an Executor.
type Config struct {
	Planner       Planner
	NewDelegate   DelegateFactory
	NewCheckpoint CheckpointFactory // Defaults to the git-backed store.
	Events        EventSink
	Notify        Notifier
	Logger        *slog.Logger
	WorkBase      string // Base directory for per-task working directories.
	MaxRecoveries int
	Sleep         func(time.Duration) // Defaults to time.Sleep.
}

// Executor runs tasks. One Execute call owns one task end to end; separate
// tasks may run on separate executors concurrently.
type Executor struct {
	planner       Planner
	newDelegate   DelegateFactory
	newCheckpoint CheckpointFactory
	events        EventSink
	notify        Notifier
	logger        *slog.Logger
	workBase      string
	maxRecoveries int
	sleep         func(time.Duration)
}

// Request identifies one unit of work.
type Request struct {
	TaskID    string // Empty = generate one.
	UserID    string
	SessionID string
	ChatID    int64
	Text      string
}

// New creates an Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.NewDelegate == nil {
		return nil, fmt.Errorf("executor: delegate factory is required")
	}
	if cfg.Planner == nil {
		cfg.Planner = PassthroughPlanner{}
	}
	if cfg.NewCheckpoint == nil {
		cfg.NewCheckpoint = func(workDir string) Checkpointer {
			return checkpoint.New(workDir, cfg.Logger)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRecoveries <= 0 {
		cfg.MaxRecoveries = task.DefaultMaxRecoveries
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.WorkBase == "" {
		cfg.WorkBase = "processing"
	}
	return &Executor{
		planner:       cfg.Planner,
		newDelegate:   cfg.NewDelegate,
		newCheckpoint: cfg.NewCheckpoint,
		events:        cfg.Events,
		notify:        cfg.Notify,
		logger:        cfg.Logger,
		workBase:      cfg.WorkBase,
		maxRecoveries: cfg.MaxRecoveries,
		sleep:         cfg.Sleep,
	}, nil
}

// Execute runs a user request through the full resilient loop and returns
// the final text for the user. The text is always user-safe; a non-nil
// error (wrapping ErrEscalated) signals a terminal failure so the caller
// can record it, but no raw condition ever escapes.
func (e *Executor) Execute(ctx context.Context, req Request) (string, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()[:8]
	}

	tctx := task.NewContext(req.TaskID, req.UserID, req.ChatID, e.logger)
	tctx.MaxRecoveries = e.maxRecoveries
	tctx.SessionID = req.SessionID
	tctx.WorkDir = filepath.Join(e.workBase, req.TaskID)

	cp := e.newCheckpoint(tctx.WorkDir)
	if err := cp.Init(); err != nil {
		e.logger.Error("task.checkpoint_init_failed", "task_id", req.TaskID, "error", err)
		return e.escalate(tctx, err), fmt.Errorf("%w: %v", ErrEscalated, err)
	}

	result, err := e.run(ctx, tctx, cp, req)
	if err == nil {
		return result, nil
	}

	var ite *task.InvalidTransitionError
	if errors.As(err, &ite) {
		e.logger.Error("task.invalid_transition", "task_id", req.TaskID, "error", ite.Error())
		return "⚠️ Erro interno de estado: " + ite.Error(),
			fmt.Errorf("%w: %v", ErrEscalated, err)
	}

	return e.escalate(tctx, err), fmt.Errorf("%w: %v", ErrEscalated, err)
}

// run sequences the lifecycle phases. Any returned error is terminal for
// this task; Execute converts it to the safe-message contract.
func (e *Executor) run(ctx context.Context, tctx *task.Context, cp Checkpointer, req Request) (string, error) {
	delegate, err := e.newDelegate(tctx.WorkDir)
	if err != nil {
		return "", fmt.Errorf("criar delegado: %w", err)
	}

	// Analyzing.
	if err := tctx.Transition(task.StateAnalyzing); err != nil {
		return "", err
	}
	e.send(tctx, "🔍 Analisando requisitos...")

	spec, err := e.planner.GenerateSpec(ctx, req.Text, req.UserID)
	if err != nil {
		return "", fmt.Errorf("gerar especificação: %w", err)
	}
	e.mark(tctx, cp, "analyzing", "Análise concluída - spec gerada", "")
	step := task.NewStepResult("Análise de requisitos", true)
	step.Output = "Spec gerada"
	tctx.AddStepResult(step)

	// Planning. The spec is the plan: delegation downstream is the plan.
	if err := tctx.Transition(task.StatePlanning); err != nil {
		return "", err
	}
	e.send(tctx, "📋 Planejando execução...")
	e.mark(tctx, cp, "planning", "Plano de execução definido", "")
	tctx.AddStepResult(task.NewStepResult("Planejamento", true))

	// Executing.
	if err := tctx.Transition(task.StateExecuting); err != nil {
		return "", err
	}
	e.send(tctx, "⚙️ Executando com especialista...")

	result, err := e.executeWithRecovery(ctx, tctx, cp, delegate, spec)
	if err != nil {
		return "", err
	}
	e.mark(tctx, cp, "executing", "Execução concluída", "")

	// Verifying.
	if err := tctx.Transition(task.StateVerifying); err != nil {
		return "", err
	}
	e.send(tctx, "🔎 Verificando resultado...")

	if ok, reason := verifyOutput(result); !ok {
		e.send(tctx, fmt.Sprintf("⚠️ Verificação detectou problemas: %s\nAjustando abordagem...", reason))
		if err := tctx.Transition(task.StateRollingBack); err != nil {
			return "", err
		}
		if err := cp.Rollback(1); err != nil {
			e.logger.Error("task.rollback_failed", "task_id", tctx.TaskID, "error", err)
		}
		if err := tctx.Transition(task.StateRecovering); err != nil {
			return "", err
		}
		return e.recoverAndReplan(ctx, tctx, cp, delegate, req, reason)
	}

	e.mark(tctx, cp, "verified", "Verificação aprovada - tarefa concluída", "done-"+tctx.TaskID)
	if err := tctx.Transition(task.StateCompleted); err != nil {
		return "", err
	}
	tctx.FinalOutput = result

	e.send(tctx, "✅ Tarefa concluída!\n\n"+tctx.ProgressSummary())
	return result, nil
}

// executeWithRecovery invokes the delegate up to max-recoveries times,
// classifying each failure and applying the matching strategy: Transient
// backs off, Recoverable forces a fresh approach, Severe additionally rolls
// back one checkpoint, Critical aborts immediately.
func (e *Executor) executeWithRecovery(ctx context.Context, tctx *task.Context, cp Checkpointer, delegate Delegate, spec Spec) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= tctx.MaxRecoveries; attempt++ {
		description := spec.RawSpec
		if description == "" {
			description = spec.OriginalRequest
		}

		if attempt > 1 {
			description = fmt.Sprintf(
				"%s\n\nATENÇÃO: Tentativa anterior falhou com erro: %s\nTente uma abordagem alternativa para resolver o problema.",
				description, task.Truncate(lastErr.Error(), 200))
			e.send(tctx, fmt.Sprintf("🔄 Tentativa %d/%d. Usando abordagem alternativa...",
				attempt, tctx.MaxRecoveries))
		}

		result, err := delegate.Execute(ctx, description)
		if err == nil {
			cp.Checkpoint(fmt.Sprintf("Execução bem-sucedida (tentativa %d)", attempt), "")
			step := task.NewStepResult(fmt.Sprintf("Execução (tentativa %d)", attempt), true)
			step.Output = task.Truncate(result, 200)
			if attempt > 1 {
				step.FallbackUsed = "plano alternativo"
			}
			tctx.AddStepResult(step)
			return result, nil
		}

		lastErr = err
		severity := task.Classify(err)
		tctx.LastError = err
		tctx.LastSeverity = severity

		e.logger.Error("task.execution_failed",
			"task_id", tctx.TaskID, "attempt", attempt,
			"severity", string(severity), "error", task.Truncate(err.Error(), 200))

		failed := task.NewStepResult(fmt.Sprintf("Execução (tentativa %d)", attempt), false)
		failed.Err = err
		failed.Output = task.Truncate(err.Error(), 200)
		tctx.AddStepResult(failed)

		switch severity {
		case task.SeverityCritical:
			return "", lastErr

		case task.SeverityTransient:
			wait := time.Duration(2*attempt) * time.Second
			e.send(tctx, fmt.Sprintf("⏳ Problema temporário detectado. Aguardando %ds...", 2*attempt))
			e.sleep(wait)

		case task.SeverityRecoverable:
			resetDelegate(delegate)
			e.sleep(time.Second)

		case task.SeveritySevere:
			if err := cp.Rollback(1); err != nil {
				e.logger.Error("task.rollback_failed", "task_id", tctx.TaskID, "error", err)
			}
			resetDelegate(delegate)
			e.sleep(2 * time.Second)
		}
	}

	return "", lastErr
}

// recoverAndReplan re-enters planning with the failure reason folded into
// the request. One replan cycle; a second verification failure escalates.
func (e *Executor) recoverAndReplan(ctx context.Context, tctx *task.Context, cp Checkpointer, delegate Delegate, req Request, reason string) (string, error) {
	tctx.RecoveryAttempts++

	if tctx.RecoveryAttempts > tctx.MaxRecoveries {
		if err := tctx.Transition(task.StateEscalated); err != nil {
			return "", err
		}
		return "", fmt.Errorf("recuperações esgotadas: %s", reason)
	}

	if err := tctx.Transition(task.StatePlanning); err != nil {
		return "", err
	}

	enriched := fmt.Sprintf(
		"%s\n\nCONTEXTO DE RECUPERAÇÃO: A abordagem anterior falhou. Motivo: %s. "+
			"Tentativas anteriores: %d/%d. Use uma abordagem diferente.",
		req.Text, reason, tctx.RecoveryAttempts, tctx.MaxRecoveries)

	spec, err := e.planner.GenerateSpec(ctx, enriched, req.UserID)
	if err != nil {
		return "", fmt.Errorf("replanejar: %w", err)
	}
	e.mark(tctx, cp, "replanning", fmt.Sprintf("Replano após recuperação #%d", tctx.RecoveryAttempts), "")
	if e.events != nil {
		e.events.MarkRecovered(tctx.TaskID)
	}

	if err := tctx.Transition(task.StateExecuting); err != nil {
		return "", err
	}
	result, err := e.executeWithRecovery(ctx, tctx, cp, delegate, spec)
	if err != nil {
		return "", err
	}

	if err := tctx.Transition(task.StateVerifying); err != nil {
		return "", err
	}
	if ok, reason2 := verifyOutput(result); !ok {
		if err := tctx.Transition(task.StateRollingBack); err != nil {
			return "", err
		}
		cp.Rollback(1)
		if err := tctx.Transition(task.StateRecovering); err != nil {
			return "", err
		}
		return "", errors.New(reason2)
	}

	e.mark(tctx, cp, "recovered", "Recuperação bem-sucedida", "recovered-"+tctx.TaskID)
	if err := tctx.Transition(task.StateCompleted); err != nil {
		return "", err
	}
	tctx.FinalOutput = result
	return result, nil
}

// escalate produces the terminal human-handoff message: bounded problem
// description, progress so far, actionable suggestions. Never a stack trace.
func (e *Executor) escalate(tctx *task.Context, err error) string {
	e.markEscalated(tctx)

	errMsg := "Erro desconhecido"
	if err != nil {
		errMsg = task.Truncate(err.Error(), 200)
	}

	e.logger.Warn("task.escalated",
		"task_id", tctx.TaskID, "state", string(tctx.State),
		"recovery_attempts", tctx.RecoveryAttempts, "error", errMsg)

	msg := "⚠️ Preciso da sua ajuda para continuar.\n\n" +
		"*Problema:* " + errMsg + "\n"

	if progress := tctx.ProgressSummary(); progress != "" {
		msg += "\n*Progresso até agora:*\n" + progress + "\n"
	}

	msg += "\n*Sugestões:*\n" +
		"• Reformule o pedido com mais detalhes\n" +
		"• Divida em partes menores\n" +
		"• Verifique se os serviços necessários estão rodando"

	e.send(tctx, msg)
	return msg
}

// markEscalated walks the state machine to Escalated through whichever
// legal path exists from the current state. States with no path (such as
// a task that never left Idle) are left untouched.
func (e *Executor) markEscalated(tctx *task.Context) {
	if tctx.State == task.StateEscalated {
		return
	}
	if !task.CanTransition(tctx.State, task.StateEscalated) &&
		task.CanTransition(tctx.State, task.StateFailed) {
		tctx.Transition(task.StateFailed)
	}
	if task.CanTransition(tctx.State, task.StateEscalated) {
		tctx.Transition(task.StateEscalated)
	}
}

// mark checkpoints the working directory and mirrors the step into the
// queue's event log.
func (e *Executor) mark(tctx *task.Context, cp Checkpointer, step, message, tag string) {
	version, err := cp.Checkpoint(message, tag)
	if err != nil {
		e.logger.Error("task.checkpoint_failed", "task_id", tctx.TaskID, "step", step, "error", err)
		return
	}
	if e.events != nil {
		e.events.Checkpoint(tctx.TaskID, step, map[string]any{"version": short(version)})
	}
}

func (e *Executor) send(tctx *task.Context, message string) {
	if e.events != nil {
		e.events.MarkProgressed(tctx.TaskID, message)
	}
	if e.notify != nil && tctx.ChatID != 0 {
		e.notify(tctx.ChatID, message)
	}
}

func resetDelegate(d Delegate) {
	if r, ok := d.(Resettable); ok {
		r.Reset()
	}
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
