package memindex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

const (
	fullMatchScore    = 5.0
	tokenMatchScore   = 2.0
	matchRateBonus    = 3.0
	substringScore    = 1.0
	minKeywordScore   = 2.0
	ngramFullBonus    = 100.0
	defaultScrollSize = 256
)

var japaneseStopwords = map[string]struct{}{
	"の": {}, "に": {}, "は": {}, "を": {}, "た": {}, "が": {}, "で": {},
	"て": {}, "と": {}, "し": {}, "れ": {}, "さ": {}, "も": {}, "な": {},
	"い": {}, "や": {}, "か": {}, "ある": {}, "いる": {}, "する": {},
	"から": {}, "こと": {}, "として": {}, "など": {}, "について": {},
	"です": {}, "ます": {}, "ください": {}, "とは": {}, "ため": {},
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Index is an in-memory lexical index over the chunk corpus, built by
// scrolling the chunk store. Scoring is a stopword-filtered term match
// with a 2-gram fallback when no term produces a hit, so short
// unsegmented Japanese queries still retrieve something.
type Index struct {
	store      ports.ChunkStore
	scrollSize int
	logger     *slog.Logger

	mu     sync.RWMutex
	chunks []domain.Chunk
}

func New(store ports.ChunkStore, scrollSize int, logger *slog.Logger) *Index {
	if scrollSize <= 0 {
		scrollSize = defaultScrollSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		store:      store,
		scrollSize: scrollSize,
		logger:     logger.With("component", "memindex"),
	}
}

// Invalidate drops the loaded corpus; the next search reloads it.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.chunks = nil
	ix.mu.Unlock()
}

func (ix *Index) SearchKeyword(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	chunks, err := ix.corpus(ctx)
	if err != nil {
		return nil, err
	}
	chunks = filterChunks(chunks, filter)
	if len(chunks) == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	hits := scoreByKeywords(query, chunks)
	if len(hits) == 0 {
		hits = scoreByNgrams(query, chunks)
		if len(hits) > 0 {
			ix.logger.Debug("keyword search fell back to 2-gram match", "hits", len(hits))
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (ix *Index) corpus(ctx context.Context) ([]domain.Chunk, error) {
	ix.mu.RLock()
	chunks := ix.chunks
	ix.mu.RUnlock()
	if chunks != nil {
		return chunks, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.chunks != nil {
		return ix.chunks, nil
	}

	loaded := make([]domain.Chunk, 0, ix.scrollSize)
	offset := ""
	for {
		page, next, err := ix.store.Scroll(ctx, offset, ix.scrollSize)
		if err != nil {
			return nil, fmt.Errorf("scroll chunk store: %w", err)
		}
		loaded = append(loaded, page...)
		if next == "" {
			break
		}
		offset = next
	}
	ix.chunks = loaded
	ix.logger.Info("keyword index loaded", "chunks", len(loaded))
	return ix.chunks, nil
}

func scoreByKeywords(query string, chunks []domain.Chunk) []domain.RetrievedChunk {
	normalizedQuery := normalizeText(query)
	tokens := queryTokens(query)

	out := make([]domain.RetrievedChunk, 0, 16)
	for _, chunk := range chunks {
		text := normalizeText(chunk.Text)
		if text == "" {
			continue
		}

		score := 0.0
		if strings.Contains(text, normalizedQuery) {
			score += fullMatchScore
		}

		matched := 0
		for _, token := range tokens {
			if len([]rune(token)) >= 2 && strings.Contains(text, token) {
				score += tokenMatchScore
				matched++
				continue
			}
			if containsTokenSubstring(text, token) {
				score += substringScore
			}
		}
		if len(tokens) > 0 && float64(matched)/float64(len(tokens)) >= 0.5 {
			score += matchRateBonus
		}

		if score >= minKeywordScore {
			out = append(out, domain.RetrievedChunk{Chunk: chunk, Score: score})
		}
	}
	return out
}

// containsTokenSubstring checks 3-rune windows of a long token, which
// catches partial compound-noun matches.
func containsTokenSubstring(text, token string) bool {
	runes := []rune(token)
	if len(runes) < 3 {
		return false
	}
	for i := 0; i+3 <= len(runes); i++ {
		if strings.Contains(text, string(runes[i:i+3])) {
			return true
		}
	}
	return false
}

func scoreByNgrams(query string, chunks []domain.Chunk) []domain.RetrievedChunk {
	normalizedQuery := normalizeText(query)
	queryGrams := bigrams(normalizedQuery)
	if len(queryGrams) == 0 {
		return nil
	}

	out := make([]domain.RetrievedChunk, 0, 16)
	for _, chunk := range chunks {
		text := normalizeText(chunk.Text)
		if text == "" {
			continue
		}

		score := 0.0
		textGrams := bigrams(text)
		for gram := range queryGrams {
			if _, ok := textGrams[gram]; ok {
				score++
			}
		}
		if strings.Contains(text, normalizedQuery) {
			score += ngramFullBonus
		}
		if score > 0 {
			out = append(out, domain.RetrievedChunk{Chunk: chunk, Score: score})
		}
	}
	return out
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make(map[string]struct{}, len(runes)-1)
	for i := 0; i+2 <= len(runes); i++ {
		out[string(runes[i:i+2])] = struct{}{}
	}
	return out
}

func queryTokens(query string) []string {
	raw := tokenPattern.FindAllString(normalizeText(query), -1)
	out := make([]string, 0, len(raw))
	for _, token := range raw {
		if _, stop := japaneseStopwords[token]; stop {
			continue
		}
		out = append(out, token)
	}
	return out
}

// normalizeText lowercases, converts ideographic spaces, and collapses
// whitespace runs to single spaces.
func normalizeText(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "　", " "))
	return strings.Join(strings.Fields(s), " ")
}

// filterChunks matches sources in NFC form on both sides, so a chunk
// stored with a decomposed source name still passes its allow-list.
func filterChunks(chunks []domain.Chunk, filter domain.SearchFilter) []domain.Chunk {
	if len(filter.Sources) == 0 {
		return chunks
	}
	allowed := make(map[string]struct{}, len(filter.Sources))
	for _, source := range filter.Sources {
		if normalized := canonicalSource(source); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	out := make([]domain.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if _, ok := allowed[canonicalSource(chunk.Source)]; ok {
			out = append(out, chunk)
		}
	}
	return out
}

func canonicalSource(source string) string {
	return norm.NFC.String(strings.TrimSpace(source))
}
