package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

// ZeroReasonRerankThreshold is reported when the admission gates removed
// every reranked candidate. It is an observability signal, not an error.
const ZeroReasonRerankThreshold = "all_candidates_removed_by_rerank_threshold"

type RetrievalConfig struct {
	RRFK           int
	SemanticWeight float64
	CandidateRatio float64
	CandidateMin   int
	CandidateMax   int
	RerankRatio    float64
	RerankMin      int
	RerankMax      int
	ScoreThreshold float64
	GapThreshold   float64
	TopK           int
	QuoteMaxRunes  int
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	if c.RRFK <= 0 {
		c.RRFK = 60
	}
	if c.SemanticWeight <= 0 || c.SemanticWeight > 1 {
		c.SemanticWeight = 0.7
	}
	if c.CandidateRatio <= 0 {
		c.CandidateRatio = 0.1
	}
	if c.CandidateMin <= 0 {
		c.CandidateMin = 20
	}
	if c.CandidateMax <= 0 {
		c.CandidateMax = 60
	}
	if c.RerankRatio <= 0 {
		c.RerankRatio = 0.5
	}
	if c.RerankMin <= 0 {
		c.RerankMin = 10
	}
	if c.RerankMax <= 0 {
		c.RerankMax = 30
	}
	if c.GapThreshold <= 0 {
		c.GapThreshold = 4.0
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.QuoteMaxRunes <= 0 {
		c.QuoteMaxRunes = 400
	}
	return c
}

// RetrievalService runs the hybrid retrieval pipeline: weighted RRF over
// the semantic and keyword candidate lists, cross-encoder rerank of the
// head, then absolute and relative admission gates.
type RetrievalService struct {
	embedder ports.Embedder
	vector   ports.VectorSearcher
	keyword  ports.KeywordSearcher
	chunks   ports.ChunkStore
	reranker ports.Reranker
	cfg      RetrievalConfig
	logger   *slog.Logger
}

func NewRetrievalService(
	embedder ports.Embedder,
	vector ports.VectorSearcher,
	keyword ports.KeywordSearcher,
	chunks ports.ChunkStore,
	reranker ports.Reranker,
	cfg RetrievalConfig,
	logger *slog.Logger,
) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		embedder: embedder,
		vector:   vector,
		keyword:  keyword,
		chunks:   chunks,
		reranker: reranker,
		cfg:      cfg.normalize(),
		logger:   logger.With("component", "retrieval"),
	}
}

type RetrieveOptions struct {
	// SemanticWeight overrides the configured RRF semantic weight when
	// non-nil; must be in [0,1].
	SemanticWeight *float64
	Sources        []string
	TopK           int
	QuoteMaxRunes  int
	Debug          bool
}

type RetrievalDebug struct {
	CandidateK     int     `json:"candidate_k"`
	RerankN        int     `json:"rerank_n"`
	SemanticCount  int     `json:"semantic_count"`
	KeywordCount   int     `json:"keyword_count"`
	FusedCount     int     `json:"fused_count"`
	Survivors      int     `json:"survivors"`
	RerankFallback bool    `json:"rerank_fallback"`
	TopRerankScore float64 `json:"top_rerank_score"`
}

type RetrievalResult struct {
	Citations []domain.Citation
	// Candidates is the post-rerank surviving list, richer than the
	// citation view; quiz generation rescues grounding material from it.
	Candidates []domain.RetrievedChunk
	ZeroReason string
	Debug      *RetrievalDebug
}

func (s *RetrievalService) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("empty query"))
	}

	semanticWeight := s.cfg.SemanticWeight
	if opts.SemanticWeight != nil {
		w := *opts.SemanticWeight
		if w < 0 || w > 1 {
			return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("semantic_weight %v out of [0,1]", w))
		}
		semanticWeight = w
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	quoteMax := opts.QuoteMaxRunes
	if quoteMax <= 0 {
		quoteMax = s.cfg.QuoteMaxRunes
	}
	allowed := normalizedSourceSet(opts.Sources)

	total, err := s.chunks.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	candidateK := s.candidateK(total)
	filter := domain.SearchFilter{Sources: sortedSetKeys(allowed)}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	semantic, err := s.vector.Search(ctx, queryVector, candidateK, filter)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	keyword, err := s.keyword.SearchKeyword(ctx, query, candidateK, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	semantic = filterBySources(semantic, allowed)
	keyword = filterBySources(keyword, allowed)

	fused := dedupeFused(fuseWeightedRRF(semantic, keyword, s.cfg.RRFK, semanticWeight))
	fused = trimCandidates(fused, candidateK)

	rerankN := s.rerankN(candidateK)
	if rerankN > len(fused) {
		rerankN = len(fused)
	}

	debug := &RetrievalDebug{
		CandidateK:    candidateK,
		RerankN:       rerankN,
		SemanticCount: len(semantic),
		KeywordCount:  len(keyword),
		FusedCount:    len(fused),
	}

	survivors, zeroReason, fellBack, topScore := s.rerankAndGate(ctx, query, fused, rerankN)
	debug.Survivors = len(survivors)
	debug.RerankFallback = fellBack
	debug.TopRerankScore = topScore

	result := &RetrievalResult{
		Candidates: survivors,
		Citations:  buildCitations(survivors, topK, quoteMax),
		ZeroReason: zeroReason,
	}
	if opts.Debug {
		result.Debug = debug
	}
	if zeroReason != "" {
		s.logger.Info("retrieval returned zero candidates", "zero_reason", zeroReason, "query_len", len([]rune(query)))
	}
	return result, nil
}

// rerankAndGate rescoring replaces fused order with model order on the
// head. When the reranker fails the fused order stands and the gates are
// skipped, since gate thresholds only make sense on model scores.
func (s *RetrievalService) rerankAndGate(ctx context.Context, query string, fused []domain.RetrievedChunk, rerankN int) (survivors []domain.RetrievedChunk, zeroReason string, fellBack bool, topScore float64) {
	if len(fused) == 0 {
		return nil, "", false, 0
	}
	head := make([]domain.RetrievedChunk, rerankN)
	copy(head, fused[:rerankN])

	passages := make([]string, len(head))
	for i, chunk := range head {
		passages[i] = chunk.Text
	}
	scores, err := s.reranker.Rerank(ctx, query, passages)
	if err != nil || len(scores) != len(head) {
		if err != nil {
			s.logger.Warn("rerank failed, keeping fused order", "error", err)
		} else {
			s.logger.Warn("rerank returned wrong score count, keeping fused order", "want", len(head), "got", len(scores))
		}
		return fused, "", true, 0
	}

	for i := range head {
		head[i].Score = scores[i]
	}
	sortByScoreDesc(head)
	topScore = head[0].Score

	kept := head[:0:len(head)]
	for _, chunk := range head {
		if chunk.Score < s.cfg.ScoreThreshold {
			continue
		}
		if topScore-chunk.Score > s.cfg.GapThreshold {
			continue
		}
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		return nil, ZeroReasonRerankThreshold, false, topScore
	}
	return kept, "", false, topScore
}

func (s *RetrievalService) candidateK(totalChunks int) int {
	k := int(math.Round(float64(totalChunks) * s.cfg.CandidateRatio))
	if k < s.cfg.CandidateMin {
		k = s.cfg.CandidateMin
	}
	if k > s.cfg.CandidateMax {
		k = s.cfg.CandidateMax
	}
	return k
}

func (s *RetrievalService) rerankN(candidateK int) int {
	n := int(math.Round(float64(candidateK) * s.cfg.RerankRatio))
	if n < s.cfg.RerankMin {
		n = s.cfg.RerankMin
	}
	if n > s.cfg.RerankMax {
		n = s.cfg.RerankMax
	}
	return n
}

func buildCitations(chunks []domain.RetrievedChunk, topK, quoteMaxRunes int) []domain.Citation {
	citations := make([]domain.Citation, 0, topK)
	seen := make(map[string]struct{}, topK)
	for _, chunk := range chunks {
		if len(citations) >= topK {
			break
		}
		citation := citationFromChunk(chunk.Chunk, quoteMaxRunes)
		key := citationKey(citation)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, citation)
	}
	return citations
}

func citationFromChunk(chunk domain.Chunk, quoteMaxRunes int) domain.Citation {
	citation := domain.Citation{
		Source: chunk.Source,
		Quote:  truncateRunes(strings.TrimSpace(chunk.Text), quoteMaxRunes),
	}
	if chunk.Page > 0 {
		page := chunk.Page
		citation.Page = &page
	}
	return citation
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func sortByScoreDesc(chunks []domain.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

// canonicalSource is the single normalization applied to every
// source-name comparison: NFC plus surrounding-space trim.
func canonicalSource(source string) string {
	return norm.NFC.String(strings.TrimSpace(source))
}

func normalizedSourceSet(sources []string) map[string]struct{} {
	if len(sources) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(sources))
	for _, source := range sources {
		if normalized := canonicalSource(source); normalized != "" {
			out[normalized] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortedSetKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func filterBySources(chunks []domain.RetrievedChunk, allowed map[string]struct{}) []domain.RetrievedChunk {
	if len(allowed) == 0 {
		return chunks
	}
	out := chunks[:0:len(chunks)]
	for _, chunk := range chunks {
		if _, ok := allowed[canonicalSource(chunk.Source)]; ok {
			out = append(out, chunk)
		}
	}
	return out
}
