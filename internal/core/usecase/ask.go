package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

const askSystemPrompt = `あなたは社内文書に基づいて質問に答えるアシスタントです。
- 回答は提供されたコンテキストのみを根拠とし、コンテキストにない情報を加えないでください。
- コンテキストが不十分な場合は、その旨を明示してください。
- 回答は日本語で簡潔に書いてください。`

// AskService answers a question over the corpus. Retrieval and answer
// generation are decoupled failure domains: a dead generation backend
// still yields the citations.
type AskService struct {
	retrieval *RetrievalService
	backend   ports.TextGenerator
	logger    *slog.Logger
}

func NewAskService(retrieval *RetrievalService, backend ports.TextGenerator, logger *slog.Logger) *AskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AskService{
		retrieval: retrieval,
		backend:   backend,
		logger:    logger.With("component", "ask"),
	}
}

func (s *AskService) Ask(ctx context.Context, question string, semanticWeight *float64, sources []string, debug bool) (*domain.Answer, map[string]any, error) {
	retrieved, err := s.retrieval.Retrieve(ctx, question, RetrieveOptions{
		SemanticWeight: semanticWeight,
		Sources:        sources,
		Debug:          debug,
	})
	if err != nil {
		return nil, nil, err
	}

	var debugInfo map[string]any
	if debug && retrieved.Debug != nil {
		debugInfo = map[string]any{
			"candidate_k":      retrieved.Debug.CandidateK,
			"rerank_n":         retrieved.Debug.RerankN,
			"semantic_count":   retrieved.Debug.SemanticCount,
			"keyword_count":    retrieved.Debug.KeywordCount,
			"fused_count":      retrieved.Debug.FusedCount,
			"survivors":        retrieved.Debug.Survivors,
			"rerank_fallback":  retrieved.Debug.RerankFallback,
			"top_rerank_score": retrieved.Debug.TopRerankScore,
		}
		if retrieved.ZeroReason != "" {
			debugInfo["zero_reason"] = retrieved.ZeroReason
		}
	}

	answer := &domain.Answer{Citations: retrieved.Citations}
	if len(retrieved.Citations) == 0 {
		answer.NoContext = true
	}

	text, err := s.backend.Complete(ctx, []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: askSystemPrompt},
		{Role: ports.RoleUser, Content: buildAskUserPrompt(question, retrieved.Citations)},
	})
	if err != nil {
		// Citations survive generation failure.
		s.logger.Warn("answer generation failed, returning citations only", "error", err)
		answer.NoContext = true
		return answer, debugInfo, nil
	}
	answer.Text = strings.TrimSpace(text)
	return answer, debugInfo, nil
}

func buildAskUserPrompt(question string, citations []domain.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "質問:\n%s\n\nコンテキスト:\n", question)
	if len(citations) == 0 {
		b.WriteString("(該当するコンテキストは見つかりませんでした)\n")
		return b.String()
	}
	for i, citation := range citations {
		page := 0
		if citation.Page != nil {
			page = *citation.Page
		}
		fmt.Fprintf(&b, "[%d] source=%s page=%d\n%s\n\n", i+1, citation.Source, page, citation.Quote)
	}
	return b.String()
}
