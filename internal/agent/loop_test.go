package agent

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ricmello/garra/internal/llm"
	"github.com/ricmello/garra/internal/session"
	"github.com/ricmello/garra/internal/tools"
)

// scriptedBackend returns canned responses in order, repeating the last one.
type scriptedBackend struct {
	responses []*llm.Response
	calls     int
	seen      [][]llm.Message
}

func (b *scriptedBackend) Chat(ctx context.Context, messages []llm.Message, schemas []llm.ToolSchema) (*llm.Response, error) {
	b.seen = append(b.seen, messages)
	idx := b.calls
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	b.calls++
	return b.responses[idx], nil
}

func toolCall(id, name, args string) *llm.Response {
	return &llm.Response{
		ToolCalls: []llm.ToolCall{{
			ID: id, Type: "function",
			Function: llm.FunctionCall{Name: name, Arguments: args},
		}},
		FinishReason: "tool_calls",
	}
}

func finalText(text string) *llm.Response {
	return &llm.Response{Content: text, FinishReason: "stop"}
}

func testSessions(t *testing.T) *session.Store {
	t.Helper()
	s, err := session.New(filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLoop(t *testing.T, backend Backend, reg *tools.Registry) (*Loop, *session.Store) {
	t.Helper()
	sessions := testSessions(t)
	loop, err := New(Config{Backend: backend, Tools: reg, Sessions: sessions})
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return loop, sessions
}

func TestRun_FinalTextFirstRound(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{finalText("  resposta final  ")}}
	loop, sessions := testLoop(t, backend, nil)

	got := loop.Run(context.Background(), "oi", "u1", "main")
	if got != "resposta final" {
		t.Errorf("Run = %q", got)
	}

	// User message and assistant reply persisted.
	msgs, _ := sessions.Load("u1", "main", 0)
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("persisted transcript: %+v", msgs)
	}
}

func TestRun_ExecutesToolsThenReturnsFinal(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Schema{
		Name:        "somar",
		Description: "Soma dois números",
		Params: []tools.Param{
			{Name: "a", Type: "number", Required: true},
			{Name: "b", Type: "number", Required: true},
		},
	}, func(args map[string]any) (string, error) {
		return "7", nil
	})

	backend := &scriptedBackend{responses: []*llm.Response{
		toolCall("call_1", "somar", `{"a":3,"b":4}`),
		finalText("a soma é 7"),
	}}
	loop, sessions := testLoop(t, backend, reg)

	got := loop.Run(context.Background(), "quanto é 3+4?", "u1", "main")
	if got != "a soma é 7" {
		t.Errorf("Run = %q", got)
	}

	// Second model call must include the tool result.
	if len(backend.seen) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(backend.seen))
	}
	last := backend.seen[1][len(backend.seen[1])-1]
	if last.Role != "tool" || last.Content != "7" || last.ToolCallID != "call_1" {
		t.Errorf("tool result not fed back: %+v", last)
	}

	// Transcript: user, assistant(tool_calls), tool, assistant(final).
	msgs, _ := sessions.Load("u1", "main", 0)
	if len(msgs) != 4 {
		t.Errorf("expected 4 persisted messages, got %d", len(msgs))
	}
	if len(msgs[1].ToolCalls) != 1 {
		t.Errorf("assistant tool_calls not persisted: %+v", msgs[1])
	}
}

func TestRun_UnknownToolFedBackNotRaised(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Schema{Name: "eco", Description: "eco"}, func(args map[string]any) (string, error) {
		return "eco", nil
	})

	backend := &scriptedBackend{responses: []*llm.Response{
		toolCall("call_1", "criar_dashboard", `{}`),
		finalText("entendi, não tenho essa tool"),
	}}
	loop, _ := testLoop(t, backend, reg)

	got := loop.Run(context.Background(), "crie um dashboard", "u1", "main")
	if got != "entendi, não tenho essa tool" {
		t.Errorf("Run = %q", got)
	}

	corrective := backend.seen[1][len(backend.seen[1])-1]
	if !strings.Contains(corrective.Content, "'criar_dashboard' não existe") {
		t.Errorf("corrective message missing tool name: %q", corrective.Content)
	}
	if !strings.Contains(corrective.Content, "eco") {
		t.Errorf("corrective message missing valid names: %q", corrective.Content)
	}
}

func TestRun_RoundLimitReturnsBoundedMessage(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Schema{Name: "eco", Description: "eco"}, func(args map[string]any) (string, error) {
		return "de novo", nil
	})

	// A model that always requests a valid tool call never terminates on
	// its own; the loop must bail out at the round limit.
	backend := &scriptedBackend{responses: []*llm.Response{
		toolCall("call_n", "eco", `{}`),
	}}
	loop, _ := testLoop(t, backend, reg)

	got := loop.Run(context.Background(), "loop infinito", "u1", "main")
	if !strings.Contains(got, "limite de execuções") {
		t.Errorf("expected round-limit message, got %q", got)
	}
	if backend.calls != DefaultMaxRounds {
		t.Errorf("expected exactly %d model calls, got %d", DefaultMaxRounds, backend.calls)
	}
}

func TestRun_HistoryIncludedInContext(t *testing.T) {
	backend := &scriptedBackend{responses: []*llm.Response{finalText("ok")}}
	loop, sessions := testLoop(t, backend, nil)

	sessions.Append("u1", "main", llm.Message{Role: "user", Content: "mensagem antiga"})
	sessions.Append("u1", "main", llm.Message{Role: "assistant", Content: "resposta antiga"})

	loop.Run(context.Background(), "nova mensagem", "u1", "main")

	first := backend.seen[0]
	if len(first) != 3 {
		t.Fatalf("expected history + new message, got %d messages", len(first))
	}
	if first[0].Content != "mensagem antiga" || first[2].Content != "nova mensagem" {
		t.Errorf("context order wrong: %+v", first)
	}
}

type failingBackend struct{}

func (failingBackend) Chat(ctx context.Context, m []llm.Message, s []llm.ToolSchema) (*llm.Response, error) {
	return nil, context.DeadlineExceeded
}

func TestRun_BackendErrorBecomesMessage(t *testing.T) {
	loop, _ := testLoop(t, failingBackend{}, nil)

	got := loop.Run(context.Background(), "oi", "u1", "main")
	if !strings.Contains(got, "Erro de comunicação com o modelo") {
		t.Errorf("expected communication error message, got %q", got)
	}
}

func TestExecute_ReturnsBackendError(t *testing.T) {
	loop, _ := testLoop(t, failingBackend{}, nil)

	_, err := loop.Execute(context.Background(), "gerar relatório de vendas")
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
	if !strings.Contains(err.Error(), "chamada ao modelo") {
		t.Errorf("err = %v", err)
	}
}

func TestExecute_RunsToolsAndIgnoresSessions(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Schema{Name: "listar_pendencias", Description: "Lista pendências"},
		func(args map[string]any) (string, error) {
			return "nenhuma pendência", nil
		})

	backend := &scriptedBackend{responses: []*llm.Response{
		toolCall("c1", "listar_pendencias", `{}`),
		finalText("Relatório pronto: nenhuma pendência encontrada."),
	}}
	loop, sessions := testLoop(t, backend, reg)

	got, err := loop.Execute(context.Background(), "verificar pendências")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "Relatório pronto: nenhuma pendência encontrada." {
		t.Errorf("Execute = %q", got)
	}

	// Task mode keeps no conversational state.
	msgs, _ := sessions.Load("u1", "main", 0)
	if len(msgs) != 0 {
		t.Errorf("Execute persisted %d messages, want 0", len(msgs))
	}

	// Tool result fed back before the final round.
	second := backend.seen[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.Content != "nenhuma pendência" {
		t.Errorf("tool feedback wrong: %+v", last)
	}
}

func TestExecute_RoundLimitIsError(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(tools.Schema{Name: "girar", Description: "Gira"},
		func(args map[string]any) (string, error) { return "girando", nil })

	backend := &scriptedBackend{responses: []*llm.Response{
		toolCall("c1", "girar", `{}`),
	}}
	loop, _ := testLoop(t, backend, reg)

	_, err := loop.Execute(context.Background(), "girar para sempre")
	if err == nil {
		t.Fatal("expected round-limit error")
	}
	if backend.calls != DefaultMaxRounds {
		t.Errorf("backend calls = %d, want %d", backend.calls, DefaultMaxRounds)
	}
}
