package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

func TestSearchSendsSourceFilterAndMapsPayload(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.87,"payload":{"source":"rule.txt","page":3,"chunk_index":1,"text":"本文"}}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{Sources: []string{"rule.txt"}})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	chunk := chunks[0]
	if chunk.ID != "p1" || chunk.Source != "rule.txt" || chunk.Page != 3 || chunk.ChunkIndex != 1 || chunk.Score != 0.87 {
		t.Fatalf("unexpected chunk: %+v", chunk)
	}
	if gotBody["filter"] == nil {
		t.Fatalf("expected source filter in request body")
	}
}

func TestScrollReturnsNextOffset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","payload":{"source":"a.txt","text":"t"}}],"next_page_offset":"p2"}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks, next, err := client.Scroll(context.Background(), "", 100)
	if err != nil {
		t.Fatalf("Scroll() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "p1" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if next != "p2" {
		t.Fatalf("expected next offset p2, got %q", next)
	}
}

func TestScrollLastPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"points":[],"next_page_offset":null}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks, next, err := client.Scroll(context.Background(), "p2", 100)
	if err != nil {
		t.Fatalf("Scroll() error = %v", err)
	}
	if len(chunks) != 0 || next != "" {
		t.Fatalf("expected empty final page, got %d chunks next=%q", len(chunks), next)
	}
}

func TestCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"count":48}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	count, err := client.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 48 {
		t.Fatalf("expected 48, got %d", count)
	}
}

func TestGetByIDsEmptyInputSkipsRequest(t *testing.T) {
	client := New("http://unused", "chunks")
	chunks, err := client.GetByIDs(context.Background(), nil)
	if err != nil || chunks != nil {
		t.Fatalf("expected nil result without request, got %v %v", chunks, err)
	}
}

func TestSearchStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	if _, err := client.Search(context.Background(), []float32{0.1}, 10, domain.SearchFilter{}); err == nil {
		t.Fatalf("expected status error")
	}
}
