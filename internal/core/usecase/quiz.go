package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

type QuizConfig struct {
	MaxCount                 int
	MaxAttempts              int
	WallClockBudget          time.Duration
	MaxConsecutiveDuplicates int
	SampleMultiplier         int
	CitationsPerGroup        int
	QuoteMaxRunes            int
}

func (c QuizConfig) normalize() QuizConfig {
	if c.MaxCount <= 0 {
		c.MaxCount = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 30
	}
	if c.WallClockBudget <= 0 {
		c.WallClockBudget = 90 * time.Second
	}
	if c.MaxConsecutiveDuplicates <= 0 {
		c.MaxConsecutiveDuplicates = 5
	}
	if c.SampleMultiplier <= 0 {
		c.SampleMultiplier = 3
	}
	if c.CitationsPerGroup <= 0 {
		c.CitationsPerGroup = 2
	}
	if c.QuoteMaxRunes <= 0 {
		c.QuoteMaxRunes = 200
	}
	return c
}

// QuizService drives quiz generation end to end: sample grounding
// chunks, generate one statement per attempt, validate, mutate for the
// false polarity, deduplicate, and stop on target count or exhausted
// budgets. It also fronts the quiz-set store for judge and management.
type QuizService struct {
	pool      *ChunkPool
	chunks    ports.ChunkStore
	generator *StatementGenerator
	store     ports.QuizSetStore
	cfg       QuizConfig
	selector  SelectorTables
	validator ValidatorTables
	logger    *slog.Logger
	now       func() time.Time
}

func NewQuizService(
	pool *ChunkPool,
	chunks ports.ChunkStore,
	generator *StatementGenerator,
	store ports.QuizSetStore,
	cfg QuizConfig,
	selector SelectorTables,
	validator ValidatorTables,
	logger *slog.Logger,
) *QuizService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizService{
		pool:      pool,
		chunks:    chunks,
		generator: generator,
		store:     store,
		cfg:       cfg.normalize(),
		selector:  selector,
		validator: validator,
		logger:    logger.With("component", "quiz"),
		now:       time.Now,
	}
}

// quizAccumulator is the per-request generation state threaded through
// the bounded attempt loop.
type quizAccumulator struct {
	accepted         []domain.QuizItem
	usedFingerprints map[string]struct{}
	usedCitationKeys map[string]struct{}
	reasons          map[string]int
	attempts         int
	consecutiveDups  int
	trueCount        int
	falseCount       int
}

func newQuizAccumulator() *quizAccumulator {
	return &quizAccumulator{
		usedFingerprints: make(map[string]struct{}),
		usedCitationKeys: make(map[string]struct{}),
		reasons:          make(map[string]int),
	}
}

func (a *quizAccumulator) reject(reason string) {
	a.reasons[reason]++
}

func (s *QuizService) Generate(ctx context.Context, req ports.QuizRequest) (*ports.QuizResult, error) {
	if _, ok := domain.ParseDifficulty(string(req.Difficulty)); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "quiz.generate", fmt.Errorf("unknown difficulty %q", req.Difficulty))
	}
	if req.Count <= 0 || req.Count > s.cfg.MaxCount {
		return nil, domain.WrapError(domain.ErrInvalidInput, "quiz.generate", fmt.Errorf("count must be in [1,%d]", s.cfg.MaxCount))
	}

	deadline := s.now().Add(s.cfg.WallClockBudget)
	acc := newQuizAccumulator()

	groups, err := s.buildCitationGroups(ctx, req, acc, 1)
	if err != nil {
		return nil, err
	}

	resampled := false
	for len(acc.accepted) < req.Count {
		if err := ctx.Err(); err != nil {
			return nil, domain.WrapError(domain.ErrTimeout, "quiz.generate", err)
		}
		if acc.attempts >= s.cfg.MaxAttempts {
			s.logger.Warn("attempt budget exhausted", "attempts", acc.attempts)
			break
		}
		if s.now().After(deadline) {
			s.logger.Warn("wall-clock budget exhausted", "attempts", acc.attempts)
			break
		}
		if acc.consecutiveDups >= s.cfg.MaxConsecutiveDuplicates {
			s.logger.Warn("consecutive duplicate ceiling hit", "duplicates", acc.consecutiveDups)
			break
		}

		if len(groups) == 0 {
			if resampled {
				break
			}
			resampled = true
			s.pool.Invalidate()
			groups, err = s.buildCitationGroups(ctx, req, acc, 2)
			if err != nil {
				return nil, err
			}
			if len(groups) == 0 {
				break
			}
			continue
		}

		group := groups[0]
		groups = groups[1:]
		acc.attempts++

		if err := s.attempt(ctx, req, group, acc); err != nil {
			return nil, err
		}
	}

	if len(acc.accepted) < req.Count {
		return nil, &domain.ShortageError{
			Requested: req.Count,
			Accepted:  len(acc.accepted),
			Reasons:   acc.reasons,
		}
	}

	result := &ports.QuizResult{Items: acc.accepted}
	if req.Save && s.store != nil {
		set := &domain.QuizSet{
			ID:         uuid.NewString(),
			Title:      quizSetTitle(req, s.now()),
			Difficulty: req.Difficulty,
			CreatedAt:  s.now().UTC(),
			Items:      acc.accepted,
		}
		if err := s.store.Save(ctx, set); err != nil {
			return nil, fmt.Errorf("save quiz set: %w", err)
		}
		result.QuizSetID = set.ID
	}
	if req.Debug {
		result.Stats = map[string]any{
			"attempts":    acc.attempts,
			"rejections":  acc.reasons,
			"true_count":  acc.trueCount,
			"false_count": acc.falseCount,
			"resampled":   resampled,
		}
	}
	return result, nil
}

// attempt runs one citation group through generate, validate, mutate,
// validate(false), and dedup. All failures are folded into the
// accumulator; only request-level aborts return an error.
func (s *QuizService) attempt(ctx context.Context, req ports.QuizRequest, group []domain.Citation, acc *quizAccumulator) error {
	banned := make([]string, 0, len(acc.accepted))
	for _, item := range acc.accepted {
		banned = append(banned, item.Statement)
	}

	draft, reason, err := s.generator.GenerateOne(ctx, req.Difficulty, req.Topic, group, banned)
	if err != nil {
		return domain.WrapError(domain.ErrTimeout, "quiz.generate", err)
	}
	if reason != "" {
		acc.reject(reason)
		return nil
	}

	if reason := validateDraft(draft, s.validator); reason != "" {
		acc.reject(reason)
		return nil
	}

	fingerprint := statementFingerprint(draft.Statement)
	if _, dup := acc.usedFingerprints[fingerprint]; dup {
		acc.reject(rejectDuplicateStatement)
		acc.consecutiveDups++
		return nil
	}
	for _, citation := range draft.Citations {
		if _, dup := acc.usedCitationKeys[citationKey(citation)]; dup {
			acc.reject(rejectDuplicateCitation)
			acc.consecutiveDups++
			return nil
		}
	}

	item := domain.QuizItem{
		ID:          shortID(),
		Type:        domain.QuizTypeTrueFalse,
		Statement:   draft.Statement,
		AnswerBool:  true,
		Explanation: draft.Explanation,
		Citations:   draft.Citations,
	}

	// Alternate polarity: even slots stay true, odd slots get the
	// mutated false statement. A failed mutation keeps the true item
	// rather than dropping the attempt; the imbalance shows up in the
	// rejection histogram.
	if len(acc.accepted)%2 == 1 {
		falseStatement, err := NegateStatement(draft.Statement)
		if err != nil {
			acc.reject(rejectMutationFailed)
		} else {
			falseDraft := quizDraft{
				Type:      domain.QuizTypeTrueFalse,
				Statement: falseStatement,
				Answer:    false,
				Citations: draft.Citations,
			}
			if reason := validateDraft(falseDraft, s.validator); reason != "" {
				acc.reject(reason)
			} else {
				item.Statement = falseStatement
				item.AnswerBool = false
				item.Explanation = falseExplanation(draft.Statement, draft.Explanation)
			}
		}
	}

	acc.usedFingerprints[fingerprint] = struct{}{}
	for _, citation := range item.Citations {
		acc.usedCitationKeys[citationKey(citation)] = struct{}{}
	}
	acc.consecutiveDups = 0
	if item.AnswerBool {
		acc.trueCount++
	} else {
		acc.falseCount++
	}
	acc.accepted = append(acc.accepted, item)
	return nil
}

// buildCitationGroups samples chunk ids, loads and ranks the chunks for
// the tier, and slices them into fixed-size citation groups, skipping
// grounding material already consumed this request.
func (s *QuizService) buildCitationGroups(ctx context.Context, req ports.QuizRequest, acc *quizAccumulator, sampleFactor int) ([][]domain.Citation, error) {
	sampleN := req.Count * s.cfg.SampleMultiplier * s.cfg.CitationsPerGroup * sampleFactor
	ids, err := s.pool.Sample(ctx, req.Sources, sampleN, req.Seed)
	if err != nil {
		return nil, fmt.Errorf("sample chunk pool: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load sampled chunks: %w", err)
	}
	ranked := selectChunksForTier(chunks, req.Difficulty, len(chunks), s.selector)

	groups := make([][]domain.Citation, 0, len(ranked)/s.cfg.CitationsPerGroup+1)
	group := make([]domain.Citation, 0, s.cfg.CitationsPerGroup)
	for _, chunk := range ranked {
		citation := citationFromChunk(chunk, s.cfg.QuoteMaxRunes)
		if citation.Quote == "" {
			continue
		}
		if _, used := acc.usedCitationKeys[citationKey(citation)]; used {
			continue
		}
		group = append(group, citation)
		if len(group) == s.cfg.CitationsPerGroup {
			groups = append(groups, group)
			group = make([]domain.Citation, 0, s.cfg.CitationsPerGroup)
		}
	}
	if len(group) > 0 {
		groups = append(groups, group)
	}
	return groups, nil
}

// GetSet, ListSets, DeleteSet front the quiz-set store.

func (s *QuizService) GetSet(ctx context.Context, id string) (*domain.QuizSet, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "quiz.get_set", fmt.Errorf("empty id"))
	}
	return s.store.GetByID(ctx, id)
}

func (s *QuizService) ListSets(ctx context.Context, difficulty domain.Difficulty) ([]domain.QuizSetMeta, error) {
	return s.store.List(ctx, difficulty)
}

func (s *QuizService) DeleteSet(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "quiz.delete_set", fmt.Errorf("empty id"))
	}
	return s.store.Delete(ctx, id)
}

// JudgeResult is the outcome of answering one stored quiz item.
type JudgeResult struct {
	Correct     bool              `json:"correct"`
	AnswerBool  bool              `json:"answer_bool"`
	Explanation string            `json:"explanation,omitempty"`
	Citations   []domain.Citation `json:"citations"`
}

func (s *QuizService) Judge(ctx context.Context, quizSetID, itemID string, answer bool) (*JudgeResult, error) {
	set, err := s.GetSet(ctx, quizSetID)
	if err != nil {
		return nil, err
	}
	for _, item := range set.Items {
		if item.ID != itemID {
			continue
		}
		return &JudgeResult{
			Correct:     item.AnswerBool == answer,
			AnswerBool:  item.AnswerBool,
			Explanation: item.Explanation,
			Citations:   item.Citations,
		}, nil
	}
	return nil, domain.WrapError(domain.ErrNotFound, "quiz.judge", fmt.Errorf("item %s not in set %s", itemID, quizSetID))
}

func quizSetTitle(req ports.QuizRequest, now time.Time) string {
	if title := strings.TrimSpace(req.Title); title != "" {
		return title
	}
	return fmt.Sprintf("%s quiz %s", req.Difficulty, now.Format("2006-01-02"))
}

func falseExplanation(trueStatement, explanation string) string {
	if strings.TrimSpace(explanation) != "" {
		return explanation
	}
	return fmt.Sprintf("正しくは「%s」である。", strings.TrimSuffix(trueStatement, "。"))
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
