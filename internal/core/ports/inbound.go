package ports

import (
	"context"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// QuestionAnswerer is the inbound contract for grounded question answering.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, semanticWeight *float64, sources []string, debug bool) (*domain.Answer, map[string]any, error)
}

// QuizGenerator is the inbound contract for true/false quiz generation.
type QuizGenerator interface {
	Generate(ctx context.Context, req QuizRequest) (*QuizResult, error)
}

// QuizRequest carries the parameters of one generation run.
type QuizRequest struct {
	Difficulty domain.Difficulty
	Count      int
	Sources    []string
	Topic      string
	Seed       *int64
	Save       bool
	Title      string
	Debug      bool
}

// QuizResult is a completed generation run.
type QuizResult struct {
	Items     []domain.QuizItem
	QuizSetID string
	Stats     map[string]any
}
