package httprerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/infrastructure/resilience"
)

func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	}, nil)
}

func TestRerankReturnsScoresInOrder(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"scores":[1.5,-0.2]}`))
	}))
	defer server.Close()

	client := New(server.URL, 0, newTestExecutor())
	scores, err := client.Rerank(context.Background(), "研修の頻度", []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if len(scores) != 2 || scores[0] != 1.5 || scores[1] != -0.2 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if gotBody["query"] != "研修の頻度" {
		t.Fatalf("expected query in body, got %v", gotBody["query"])
	}
}

func TestRerankScoreCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"scores":[1.0]}`))
	}))
	defer server.Close()

	client := New(server.URL, 0, newTestExecutor())
	if _, err := client.Rerank(context.Background(), "q", []string{"p1", "p2"}); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestRerankServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, 0, newTestExecutor())
	_, err := client.Rerank(context.Background(), "q", []string{"p1"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestRerankEmptyPassagesSkipsRequest(t *testing.T) {
	client := New("http://unused", 0, newTestExecutor())
	scores, err := client.Rerank(context.Background(), "q", nil)
	if err != nil || scores != nil {
		t.Fatalf("expected nil result without request, got %v %v", scores, err)
	}
}
