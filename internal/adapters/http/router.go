package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
	"github.com/yuskondo/docquiz/internal/core/usecase"
	"github.com/yuskondo/docquiz/internal/observability/metrics"
)

const serviceName = "docquiz-api"

// QuizOperator is what the router needs from the quiz service.
// *usecase.QuizService satisfies it.
type QuizOperator interface {
	Generate(ctx context.Context, req ports.QuizRequest) (*ports.QuizResult, error)
	GetSet(ctx context.Context, id string) (*domain.QuizSet, error)
	ListSets(ctx context.Context, difficulty domain.Difficulty) ([]domain.QuizSetMeta, error)
	DeleteSet(ctx context.Context, id string) error
	Judge(ctx context.Context, quizSetID, itemID string, answer bool) (*usecase.JudgeResult, error)
}

type SourceLister interface {
	List(ctx context.Context) ([]domain.SourceInfo, error)
}

type Router struct {
	ask     ports.QuestionAnswerer
	quiz    QuizOperator
	sources SourceLister

	// invalidate drops every cached view of the chunk corpus; wired to
	// the pool and the keyword index.
	invalidate func()

	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
}

func NewRouter(
	ask ports.QuestionAnswerer,
	quiz QuizOperator,
	sources SourceLister,
	invalidate func(),
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	rateLimitRPS float64,
	rateLimitBurst int,
	maxInFlight int,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ask:            ask,
		quiz:           quiz,
		sources:        sources,
		invalidate:     invalidate,
		metrics:        m,
		logger:         logger.With("component", "http"),
		rateLimitRPS:   rateLimitRPS,
		rateLimitBurst: rateLimitBurst,
		maxInFlight:    maxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.askQuestion)
	mux.HandleFunc("/v1/quiz/generate", rt.generateQuiz)
	mux.HandleFunc("/v1/quiz/judge", rt.judgeQuiz)
	mux.HandleFunc("/v1/quiz-sets", rt.listQuizSets)
	mux.HandleFunc("/v1/quiz-sets/", rt.quizSetByID)
	mux.HandleFunc("/v1/sources", rt.listSources)
	mux.HandleFunc("/v1/index/pool/rebuild", rt.rebuildPool)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.maxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.maxInFlight, 100*time.Millisecond)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) askQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question       string   `json:"question"`
		SemanticWeight *float64 `json:"semantic_weight"`
		Sources        []string `json:"source_ids"`
		Debug          bool     `json:"debug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	answer, debugInfo, err := rt.ask.Ask(r.Context(), req.Question, req.SemanticWeight, req.Sources, req.Debug)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "/v1/ask", len(answer.Citations), time.Since(start))
	}

	resp := map[string]any{"answer": answer}
	if req.Debug && debugInfo != nil {
		resp["debug"] = debugInfo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) generateQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Difficulty string   `json:"difficulty"`
		Count      int      `json:"count"`
		Sources    []string `json:"source_ids"`
		Topic      string   `json:"topic"`
		Seed       *int64   `json:"seed"`
		Save       bool     `json:"save"`
		Title      string   `json:"title"`
		Debug      bool     `json:"debug"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	result, err := rt.quiz.Generate(r.Context(), ports.QuizRequest{
		Difficulty: domain.Difficulty(req.Difficulty),
		Count:      req.Count,
		Sources:    req.Sources,
		Topic:      req.Topic,
		Seed:       req.Seed,
		Save:       req.Save,
		Title:      req.Title,
		Debug:      req.Debug,
	})
	if err != nil {
		if shortage, ok := domain.AsShortage(err); ok && rt.metrics != nil {
			rt.metrics.RecordQuizShortage(serviceName)
			rt.metrics.RecordQuizRejections(serviceName, shortage.Reasons)
		}
		rt.writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordQuizGeneration(serviceName, req.Difficulty, len(result.Items), time.Since(start))
	}

	resp := map[string]any{"items": result.Items}
	if result.QuizSetID != "" {
		resp["quiz_set_id"] = result.QuizSetID
	}
	if req.Debug && result.Stats != nil {
		resp["stats"] = result.Stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) judgeQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		QuizSetID string `json:"quiz_set_id"`
		ItemID    string `json:"item_id"`
		Answer    *bool  `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.QuizSetID == "" || req.ItemID == "" || req.Answer == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quiz_set_id, item_id and answer are required"})
		return
	}

	result, err := rt.quiz.Judge(r.Context(), req.QuizSetID, req.ItemID, *req.Answer)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listQuizSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	difficulty := r.URL.Query().Get("difficulty")
	if difficulty != "" {
		if _, ok := domain.ParseDifficulty(difficulty); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown difficulty"})
			return
		}
	}

	metas, err := rt.quiz.ListSets(r.Context(), domain.Difficulty(difficulty))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_sets": metas})
}

func (rt *Router) quizSetByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/quiz-sets/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quiz set id is required"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/export"); ok {
		rt.exportQuizSet(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		set, err := rt.quiz.GetSet(r.Context(), rest)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, set)
	case http.MethodDelete:
		if err := rt.quiz.DeleteSet(r.Context(), rest); err != nil {
			rt.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) listSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	sources, err := rt.sources.List(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (rt *Router) rebuildPool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if rt.invalidate != nil {
		rt.invalidate()
	}
	rt.logger.Info("corpus caches invalidated", "request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "invalidated"})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if shortage, ok := domain.AsShortage(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "quiz generation shortage",
			"requested": shortage.Requested,
			"accepted":  shortage.Accepted,
			"shortage":  shortage.Shortage(),
			"reasons":   shortage.Reasons,
		})
		return
	}

	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
