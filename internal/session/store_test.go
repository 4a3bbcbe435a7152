package session

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ricmello/garra/internal/llm"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "sessions.db"), nil)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendLoad_PreservesOrder(t *testing.T) {
	s := testStore(t)

	s.Append("u1", "main", llm.Message{Role: "user", Content: "oi"})
	s.Append("u1", "main", llm.Message{Role: "assistant", Content: "olá"})
	s.Append("u1", "main", llm.Message{
		Role: "tool", ToolCallID: "call_1", Name: "escrever_arquivo", Content: "ok",
	})

	msgs, err := s.Load("u1", "main", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" || msgs[2].Role != "tool" {
		t.Errorf("order lost: %+v", msgs)
	}
	if msgs[2].ToolCallID != "call_1" || msgs[2].Name != "escrever_arquivo" {
		t.Errorf("tool fields lost: %+v", msgs[2])
	}
}

func TestLoad_ReturnsLastN(t *testing.T) {
	s := testStore(t)

	for i := 0; i < 10; i++ {
		s.Append("u1", "main", llm.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}

	msgs, err := s.Load("u1", "main", 4)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "msg 6" || msgs[3].Content != "msg 9" {
		t.Errorf("wrong window: first %q, last %q", msgs[0].Content, msgs[3].Content)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	s := testStore(t)

	s.Append("u1", "main", llm.Message{Role: "user", Content: "a"})
	s.Append("u1", "work", llm.Message{Role: "user", Content: "b"})
	s.Append("u2", "main", llm.Message{Role: "user", Content: "c"})

	msgs, _ := s.Load("u1", "main", 0)
	if len(msgs) != 1 || msgs[0].Content != "a" {
		t.Errorf("session leak: %+v", msgs)
	}

	ids, err := s.ListSessions("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 sessions for u1, got %v", ids)
	}
}

func TestCountAndClear(t *testing.T) {
	s := testStore(t)

	s.Append("u1", "main", llm.Message{Role: "user", Content: "a"})
	s.Append("u1", "main", llm.Message{Role: "assistant", Content: "b"})

	n, err := s.Count("u1", "main")
	if err != nil || n != 2 {
		t.Fatalf("count = %d (%v), want 2", n, err)
	}

	if err := s.Clear("u1", "main"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ = s.Count("u1", "main")
	if n != 0 {
		t.Errorf("count after clear = %d", n)
	}
}
