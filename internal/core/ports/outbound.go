package ports

import (
	"context"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// Embedder builds a vector for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher performs semantic search over the chunk index.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// KeywordSearcher performs lexical search over the chunk index.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
}

// ChunkStore gives read-only access to the indexed chunk corpus.
// Scroll returns a page of chunks plus the offset token for the next
// page; an empty token means the scroll is complete.
type ChunkStore interface {
	Scroll(ctx context.Context, offset string, limit int) ([]domain.Chunk, string, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
	Count(ctx context.Context) (int, error)
}

// ChatMessage is one role-tagged turn sent to the text generator.
type ChatMessage struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TextGenerator produces a completion for a chat-style message list.
type TextGenerator interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// Reranker scores query/passage pairs with a cross-encoder. The result
// holds one score per passage, in input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// QuizSetStore persists generated quiz sets.
type QuizSetStore interface {
	Save(ctx context.Context, set *domain.QuizSet) error
	GetByID(ctx context.Context, id string) (*domain.QuizSet, error)
	List(ctx context.Context, difficulty domain.Difficulty) ([]domain.QuizSetMeta, error)
	Delete(ctx context.Context, id string) error
}

// IndexEventQueue carries index-change notifications between producers
// and running API instances. In-process the only producer is the manual
// rebuild endpoint; the external ingestion pipeline publishes on the
// same subject after reindexing.
type IndexEventQueue interface {
	PublishIndexChanged(ctx context.Context, reason string) error
	SubscribeIndexChanged(ctx context.Context, handler func(context.Context, string) error) error
}
