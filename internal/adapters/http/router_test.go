package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
	"github.com/yuskondo/docquiz/internal/core/usecase"
)

type askFake struct {
	answer *domain.Answer
	debug  map[string]any
	err    error
}

func (f *askFake) Ask(ctx context.Context, question string, semanticWeight *float64, sources []string, debug bool) (*domain.Answer, map[string]any, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.answer, f.debug, nil
}

type quizFake struct {
	result    *ports.QuizResult
	genErr    error
	set       *domain.QuizSet
	getErr    error
	deleted   []string
	judgement *usecase.JudgeResult
}

func (f *quizFake) Generate(ctx context.Context, req ports.QuizRequest) (*ports.QuizResult, error) {
	if f.genErr != nil {
		return nil, f.genErr
	}
	return f.result, nil
}

func (f *quizFake) GetSet(ctx context.Context, id string) (*domain.QuizSet, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.set, nil
}

func (f *quizFake) ListSets(ctx context.Context, difficulty domain.Difficulty) ([]domain.QuizSetMeta, error) {
	return []domain.QuizSetMeta{{ID: "s1", Difficulty: domain.DifficultyBeginner, Count: 5}}, nil
}

func (f *quizFake) DeleteSet(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *quizFake) Judge(ctx context.Context, quizSetID, itemID string, answer bool) (*usecase.JudgeResult, error) {
	if f.judgement == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "judge", errors.New("item not found"))
	}
	return f.judgement, nil
}

type sourcesFake struct {
	sources []domain.SourceInfo
}

func (f *sourcesFake) List(ctx context.Context) ([]domain.SourceInfo, error) {
	return f.sources, nil
}

func newTestRouter(ask *askFake, quiz *quizFake, invalidated *int) http.Handler {
	invalidate := func() {
		if invalidated != nil {
			*invalidated++
		}
	}
	sources := &sourcesFake{sources: []domain.SourceInfo{{ID: "rule.txt", Title: "rule", Type: "txt"}}}
	return NewRouter(ask, quiz, sources, invalidate, nil, nil, 0, 0, 0).Handler()
}

func postJSONRequest(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskEndpointReturnsAnswer(t *testing.T) {
	page := 3
	ask := &askFake{answer: &domain.Answer{
		Text:      "研修は毎年実施されます。",
		Citations: []domain.Citation{{Source: "rule.txt", Page: &page, Quote: "研修は毎年一回実施する。"}},
	}}
	handler := newTestRouter(ask, &quizFake{}, nil)

	res := postJSONRequest(t, handler, "/v1/ask", map[string]any{"question": "研修の頻度は"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp struct {
		Answer domain.Answer `json:"answer"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer.Text == "" || len(resp.Answer.Citations) != 1 {
		t.Fatalf("unexpected answer %+v", resp.Answer)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAskEndpointGatedReturnsEmptyCitationsAndZeroReason(t *testing.T) {
	ask := &askFake{
		answer: &domain.Answer{Text: "該当する情報は見つかりませんでした。", Citations: []domain.Citation{}, NoContext: true},
		debug:  map[string]any{"zero_reason": "all_candidates_removed_by_rerank_threshold"},
	}
	handler := newTestRouter(ask, &quizFake{}, nil)

	res := postJSONRequest(t, handler, "/v1/ask", map[string]any{"question": "宇宙の話", "debug": true})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	answer := resp["answer"].(map[string]any)
	if citations, ok := answer["citations"].([]any); !ok || len(citations) != 0 {
		t.Fatalf("expected empty citations array, got %v", answer["citations"])
	}
	debug := resp["debug"].(map[string]any)
	if debug["zero_reason"] != "all_candidates_removed_by_rerank_threshold" {
		t.Fatalf("expected zero reason in debug, got %v", debug)
	}
}

func TestAskEndpointInvalidInput(t *testing.T) {
	ask := &askFake{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))}
	handler := newTestRouter(ask, &quizFake{}, nil)

	res := postJSONRequest(t, handler, "/v1/ask", map[string]any{"question": ""})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGenerateQuizEndpoint(t *testing.T) {
	quiz := &quizFake{result: &ports.QuizResult{
		Items: []domain.QuizItem{
			{ID: "q1", Type: domain.QuizTypeTrueFalse, Statement: "研修は毎年実施する。", AnswerBool: true},
		},
		QuizSetID: "set1",
	}}
	handler := newTestRouter(&askFake{}, quiz, nil)

	res := postJSONRequest(t, handler, "/v1/quiz/generate", map[string]any{
		"difficulty": "beginner",
		"count":      1,
		"save":       true,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["quiz_set_id"] != "set1" {
		t.Fatalf("expected quiz_set_id, got %v", resp)
	}
	items := resp["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestGenerateQuizShortageReturns422(t *testing.T) {
	quiz := &quizFake{genErr: &domain.ShortageError{
		Requested: 5,
		Accepted:  2,
		Reasons:   map[string]int{"duplicate_statement": 3},
	}}
	handler := newTestRouter(&askFake{}, quiz, nil)

	res := postJSONRequest(t, handler, "/v1/quiz/generate", map[string]any{
		"difficulty": "beginner",
		"count":      5,
	})
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["requested"] != float64(5) || resp["accepted"] != float64(2) || resp["shortage"] != float64(3) {
		t.Fatalf("unexpected shortage payload %v", resp)
	}
	reasons := resp["reasons"].(map[string]any)
	if reasons["duplicate_statement"] != float64(3) {
		t.Fatalf("expected rejection histogram, got %v", reasons)
	}
}

func TestJudgeEndpoint(t *testing.T) {
	quiz := &quizFake{judgement: &usecase.JudgeResult{Correct: true, AnswerBool: true}}
	handler := newTestRouter(&askFake{}, quiz, nil)

	res := postJSONRequest(t, handler, "/v1/quiz/judge", map[string]any{
		"quiz_set_id": "set1",
		"item_id":     "q1",
		"answer":      true,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp usecase.JudgeResult
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Correct {
		t.Fatalf("expected correct judgement")
	}
}

func TestJudgeEndpointRequiresAnswer(t *testing.T) {
	handler := newTestRouter(&askFake{}, &quizFake{}, nil)

	res := postJSONRequest(t, handler, "/v1/quiz/judge", map[string]any{
		"quiz_set_id": "set1",
		"item_id":     "q1",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing answer, got %d", res.Code)
	}
}

func TestQuizSetNotFoundMapsTo404(t *testing.T) {
	quiz := &quizFake{getErr: domain.WrapError(domain.ErrNotFound, "get quiz set", errors.New("missing"))}
	handler := newTestRouter(&askFake{}, quiz, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/quiz-sets/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteQuizSet(t *testing.T) {
	quiz := &quizFake{}
	handler := newTestRouter(&askFake{}, quiz, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/quiz-sets/set1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(quiz.deleted) != 1 || quiz.deleted[0] != "set1" {
		t.Fatalf("expected delete call, got %v", quiz.deleted)
	}
}

func TestListQuizSetsRejectsUnknownDifficulty(t *testing.T) {
	handler := newTestRouter(&askFake{}, &quizFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/quiz-sets?difficulty=expert", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestExportQuizSetWritesWorkbook(t *testing.T) {
	page := 2
	quiz := &quizFake{set: &domain.QuizSet{
		ID:         "set1",
		Title:      "安全教育",
		Difficulty: domain.DifficultyBeginner,
		CreatedAt:  time.Now(),
		Items: []domain.QuizItem{
			{
				ID:         "q1",
				Type:       domain.QuizTypeTrueFalse,
				Statement:  "研修は毎年実施する。",
				AnswerBool: true,
				Citations:  []domain.Citation{{Source: "rule.txt", Page: &page, Quote: "本文"}},
			},
		},
	}}
	handler := newTestRouter(&askFake{}, quiz, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/quiz-sets/set1/export", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", got)
	}
	if res.Body.Len() == 0 {
		t.Fatalf("expected workbook bytes")
	}
}

func TestRebuildPoolInvalidatesCaches(t *testing.T) {
	invalidated := 0
	handler := newTestRouter(&askFake{}, &quizFake{}, &invalidated)

	req := httptest.NewRequest(http.MethodPost, "/v1/index/pool/rebuild", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	if invalidated != 1 {
		t.Fatalf("expected invalidate call, got %d", invalidated)
	}
}

func TestListSources(t *testing.T) {
	handler := newTestRouter(&askFake{}, &quizFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var resp map[string][]domain.SourceInfo
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp["sources"]) != 1 || resp["sources"][0].ID != "rule.txt" {
		t.Fatalf("unexpected sources %v", resp)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&askFake{}, &quizFake{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
