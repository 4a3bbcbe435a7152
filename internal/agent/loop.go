// Package agent implements the tool-calling execution loop: one logical
// conversational turn that alternates between calling the model backend and
// executing the tools it requests, until a final answer or the round limit.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ricmello/garra/internal/llm"
	"github.com/ricmello/garra/internal/manifest"
	"github.com/ricmello/garra/internal/session"
	"github.com/ricmello/garra/internal/task"
	"github.com/ricmello/garra/internal/tools"
)

// DefaultMaxRounds bounds tool-execution rounds per turn.
const DefaultMaxRounds = 10

// Backend is the model backend contract: a message list plus tool schemas
// in, final text or tool-call requests out.
type Backend interface {
	Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema) (*llm.Response, error)
}

// Config wires a Loop's collaborators.
type Config struct {
	Backend   Backend
	Tools     *tools.Registry
	Sessions  *session.Store
	Manifest  *manifest.Manifest
	Logger    *slog.Logger
	MaxRounds int
}

// Loop drives one conversational turn. Stateless between calls: history
// comes from the session store, capabilities from the registry.
type Loop struct {
	backend   Backend
	tools     *tools.Registry
	sessions  *session.Store
	manifest  *manifest.Manifest
	logger    *slog.Logger
	maxRounds int
}

// New creates a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("agent: backend is required")
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Loop{
		backend:   cfg.Backend,
		tools:     cfg.Tools,
		sessions:  cfg.Sessions,
		manifest:  cfg.Manifest,
		logger:    cfg.Logger,
		maxRounds: cfg.MaxRounds,
	}, nil
}

// Run executes one full turn and returns the final text for the user.
// Every message is durably persisted before the next model call, so a crash
// mid-loop loses at most the in-flight round.
func (l *Loop) Run(ctx context.Context, userMessage, userID, sessionID string) string {
	messages := l.buildContext(userID, sessionID, userMessage)

	var schemas []llm.ToolSchema
	if len(l.tools.Names()) > 0 {
		schemas = l.tools.Schemas()
	}

	for round := 1; round <= l.maxRounds; round++ {
		resp, err := l.backend.Chat(ctx, messages, schemas)
		if err != nil {
			errMsg := fmt.Sprintf("Erro de comunicação com o modelo: %s", task.Truncate(err.Error(), 200))
			l.logger.Error("agent.llm_error", "round", round, "error", task.Truncate(err.Error(), 200))
			l.persist(userID, sessionID, llm.Message{Role: "assistant", Content: errMsg})
			return errMsg
		}

		if resp.IsFinal() {
			final := strings.TrimSpace(resp.Content)
			if final == "" {
				final = "Tarefa concluída."
			}
			l.persist(userID, sessionID, llm.Message{Role: "assistant", Content: final})
			return final
		}

		// Model requested tools: record the assistant turn, execute every
		// call in order, feed results back.
		assistantMsg := llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistantMsg)
		l.persist(userID, sessionID, assistantMsg)

		for _, tc := range resp.ToolCalls {
			name := tc.Function.Name
			l.logger.Debug("agent.tool_call", "name", name, "round", round)

			result := l.dispatch(name, tc.Function.Args())

			toolMsg := llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Name:       name,
				Content:    result,
			}
			messages = append(messages, toolMsg)
			l.persist(userID, sessionID, toolMsg)
		}
	}

	limitMsg := "⚠️ Atingi o limite de execuções para esta tarefa. " +
		"Resultados parciais podem estar disponíveis. " +
		"Reformule o pedido de forma mais específica se necessário."
	l.persist(userID, sessionID, llm.Message{Role: "assistant", Content: limitMsg})
	return limitMsg
}

// Execute runs a self-contained task description through the loop and
// surfaces backend failures as errors so callers can classify them. Unlike
// Run it keeps no session history: the description carries all context.
func (l *Loop) Execute(ctx context.Context, description string) (string, error) {
	var messages []llm.Message
	if l.manifest != nil {
		if err := l.manifest.Verify(); err != nil {
			l.logger.Error("agent.manifest_tampered", "error", err)
		} else {
			messages = append(messages, llm.Message{Role: "system", Content: l.manifest.SystemPrompt()})
		}
	}
	messages = append(messages, llm.Message{Role: "user", Content: description})

	var schemas []llm.ToolSchema
	if len(l.tools.Names()) > 0 {
		schemas = l.tools.Schemas()
	}

	for round := 1; round <= l.maxRounds; round++ {
		resp, err := l.backend.Chat(ctx, messages, schemas)
		if err != nil {
			return "", fmt.Errorf("chamada ao modelo: %w", err)
		}

		if resp.IsFinal() {
			return strings.TrimSpace(resp.Content), nil
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, tc := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Content:    l.dispatch(tc.Function.Name, tc.Function.Args()),
			})
		}
	}

	return "", fmt.Errorf("limite de %d rodadas de ferramentas atingido", l.maxRounds)
}

// dispatch runs one tool call and renders the typed result as model-facing
// text. Unknown names and bad arguments become corrective messages, never
// errors.
func (l *Loop) dispatch(name string, args map[string]any) string {
	res := l.tools.Dispatch(name, args)
	switch {
	case res.UnknownTool != "":
		return fmt.Sprintf(
			"ERRO: Tool '%s' não existe. Tools disponíveis: %s. Use apenas tools da lista.",
			res.UnknownTool, strings.Join(l.tools.Names(), ", "))
	case res.InvalidArgs != "":
		return fmt.Sprintf("ERRO: Parâmetros inválidos para '%s': %s", name, res.InvalidArgs)
	default:
		return res.Output
	}
}

// buildContext assembles system prompt, persisted history and the new user
// message, persisting the latter before any model call.
func (l *Loop) buildContext(userID, sessionID, userMessage string) []llm.Message {
	var messages []llm.Message

	if l.manifest != nil {
		if err := l.manifest.Verify(); err != nil {
			// Tampered ground truth: refuse to impersonate, fall back to a
			// bare prompt and make noise in the logs.
			l.logger.Error("agent.manifest_tampered", "error", err)
		} else {
			messages = append(messages, llm.Message{Role: "system", Content: l.manifest.SystemPrompt()})
		}
	}

	if l.sessions != nil {
		history, err := l.sessions.Load(userID, sessionID, session.DefaultMaxMessages)
		if err != nil {
			l.logger.Error("agent.history_load_failed", "user_id", userID, "error", err)
		} else {
			messages = append(messages, history...)
		}
	}

	userMsg := llm.Message{Role: "user", Content: userMessage}
	messages = append(messages, userMsg)
	l.persist(userID, sessionID, userMsg)

	return messages
}

func (l *Loop) persist(userID, sessionID string, msg llm.Message) {
	if l.sessions != nil {
		l.sessions.Append(userID, sessionID, msg)
	}
}
