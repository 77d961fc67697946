package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

type backendFake struct {
	responses []string
	errs      []error
	calls     [][]ports.ChatMessage
}

func (f *backendFake) Complete(_ context.Context, messages []ports.ChatMessage) (string, error) {
	f.calls = append(f.calls, messages)
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	if idx < 0 {
		return "", nil
	}
	return f.responses[idx], nil
}

var statementCitations = []domain.Citation{{Source: "rule.txt", Quote: "研修は毎年受講する"}}

const goodQuizJSON = `{"quizzes":[{"statement":"全従業員は研修を毎年受講する。","answer":true}]}`

func TestGenerateOneSuccess(t *testing.T) {
	backend := &backendFake{responses: []string{goodQuizJSON}}
	gen := NewStatementGenerator(backend, 200, nil)

	draft, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", statementCitations, nil)
	if err != nil || reason != "" {
		t.Fatalf("GenerateOne() reason=%q err=%v", reason, err)
	}
	if draft.Statement != "全従業員は研修を毎年受講する。" {
		t.Fatalf("unexpected statement %q", draft.Statement)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("expected single backend call, got %d", len(backend.calls))
	}
	if backend.calls[0][0].Role != ports.RoleSystem {
		t.Fatalf("expected system message first")
	}
}

func TestGenerateOneRepairPassSucceeds(t *testing.T) {
	backend := &backendFake{responses: []string{"すみません、JSONは出せません。", goodQuizJSON}}
	gen := NewStatementGenerator(backend, 200, nil)

	draft, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", statementCitations, nil)
	if err != nil || reason != "" {
		t.Fatalf("GenerateOne() reason=%q err=%v", reason, err)
	}
	if draft.Statement == "" {
		t.Fatalf("expected repaired draft")
	}
	if len(backend.calls) != 2 {
		t.Fatalf("expected exactly one repair call, got %d calls", len(backend.calls))
	}

	repair := backend.calls[1]
	if repair[len(repair)-2].Role != ports.RoleAssistant {
		t.Fatalf("expected malformed output echoed as assistant turn")
	}
	if !strings.Contains(repair[len(repair)-2].Content, "すみません") {
		t.Fatalf("expected raw malformed excerpt in repair prompt")
	}
}

func TestGenerateOneRepairPassFails(t *testing.T) {
	backend := &backendFake{responses: []string{"だめでした。", "やはりだめでした。"}}
	gen := NewStatementGenerator(backend, 200, nil)

	_, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", statementCitations, nil)
	if err != nil {
		t.Fatalf("GenerateOne() error = %v", err)
	}
	if reason != parseReasonExtractionError {
		t.Fatalf("expected json_extraction_error after failed repair, got %q", reason)
	}
	if len(backend.calls) != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", len(backend.calls))
	}
}

func TestGenerateOneBackendFailureIsAttemptLevel(t *testing.T) {
	backend := &backendFake{errs: []error{errors.New("backend down")}, responses: []string{""}}
	gen := NewStatementGenerator(backend, 200, nil)

	_, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", statementCitations, nil)
	if err != nil {
		t.Fatalf("expected attempt-level failure, got request error %v", err)
	}
	if reason != rejectGenerationFailed {
		t.Fatalf("expected generation_failed, got %q", reason)
	}
}

func TestGenerateOneAbortsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	backend := &backendFake{errs: []error{context.Canceled}, responses: []string{""}}
	gen := NewStatementGenerator(backend, 200, nil)

	_, _, err := gen.GenerateOne(ctx, domain.DifficultyBeginner, "", statementCitations, nil)
	if err == nil {
		t.Fatalf("expected abort error on canceled context")
	}
}

func TestGenerateOneNoCitations(t *testing.T) {
	gen := NewStatementGenerator(&backendFake{}, 200, nil)
	_, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", nil, nil)
	if err != nil || reason != rejectNoCitations {
		t.Fatalf("expected no_citations, got reason=%q err=%v", reason, err)
	}
}

func TestBuildQuizUserPromptIncludesBannedStatements(t *testing.T) {
	prompt := buildQuizUserPrompt(domain.DifficultyAdvanced, "情報管理", statementCitations, []string{"既出の statement。"})
	if !strings.Contains(prompt, "既出の statement。") {
		t.Fatalf("expected banned statement in prompt")
	}
	if !strings.Contains(prompt, "情報管理") {
		t.Fatalf("expected topic in prompt")
	}
	if !strings.Contains(prompt, "rule.txt") {
		t.Fatalf("expected citation source in prompt")
	}
}

func TestGenerateOneDiscardsFabricatedSourceCitations(t *testing.T) {
	echoed := `{"quizzes":[{"statement":"全従業員は研修を毎年受講する。","answer":true,"citations":[{"source":"other.txt","quote":"` + strings.Repeat("偽", 300) + `"}]}]}`
	backend := &backendFake{responses: []string{echoed}}
	gen := NewStatementGenerator(backend, 200, nil)

	draft, reason, err := gen.GenerateOne(context.Background(), domain.DifficultyBeginner, "", statementCitations, nil)
	if err != nil || reason != "" {
		t.Fatalf("GenerateOne() reason=%q err=%v", reason, err)
	}
	if len(draft.Citations) != 1 || draft.Citations[0].Source != "rule.txt" {
		t.Fatalf("expected grounding citations substituted, got %+v", draft.Citations)
	}
	if got := len([]rune(draft.Citations[0].Quote)); got > 200 {
		t.Fatalf("citation quote exceeds clamp: %d runes", got)
	}
}
