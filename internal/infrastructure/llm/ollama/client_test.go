package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
	"github.com/yuskondo/docquiz/internal/infrastructure/resilience"
)

func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	}, nil)
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  回答です。  "}}`))
	}))
	defer server.Close()

	client := New(server.URL, "qwen", "bge", newTestExecutor())
	out, err := client.Complete(context.Background(), []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: "指示"},
		{Role: ports.RoleUser, Content: "質問"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "回答です。" {
		t.Fatalf("expected trimmed content, got %q", out)
	}

	if gotBody["model"] != "qwen" {
		t.Fatalf("expected chat model, got %v", gotBody["model"])
	}
	if gotBody["stream"] != false {
		t.Fatalf("expected stream false, got %v", gotBody["stream"])
	}
	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %v", gotBody["messages"])
	}
}

func TestCompleteServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "qwen", "bge", newTestExecutor())
	_, err := client.Complete(context.Background(), []ports.ChatMessage{{Role: ports.RoleUser, Content: "q"}})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestCompleteBadRequestIsNotTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer server.Close()

	client := New(server.URL, "qwen", "bge", newTestExecutor())
	_, err := client.Complete(context.Background(), []ports.ChatMessage{{Role: ports.RoleUser, Content: "q"}})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client := New("http://unused", "qwen", "bge", newTestExecutor())
	if _, err := client.Complete(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty messages")
	}
}

func TestEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "qwen", "bge", newTestExecutor())
	vec, err := client.EmbedQuery(context.Background(), "研修の頻度")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedQueryEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "qwen", "bge", newTestExecutor())
	if _, err := client.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for empty embeddings")
	}
}
