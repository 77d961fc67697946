package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

type fusedCandidate struct {
	chunk domain.RetrievedChunk
	score float64
	seq   int
}

// fuseWeightedRRF merges the semantic and keyword candidate lists with
// weighted reciprocal-rank fusion. A chunk absent from one list simply
// receives no contribution from that list. Ties keep the order of the
// higher-weighted list because that list is folded in first.
func fuseWeightedRRF(semantic, keyword []domain.RetrievedChunk, rrfK int, semanticWeight float64) []domain.RetrievedChunk {
	if rrfK <= 0 {
		rrfK = 60
	}
	if semanticWeight < 0 {
		semanticWeight = 0
	}
	if semanticWeight > 1 {
		semanticWeight = 1
	}
	keywordWeight := 1 - semanticWeight

	acc := make(map[string]fusedCandidate, len(semantic)+len(keyword))
	seq := 0
	addList := func(chunks []domain.RetrievedChunk, weight float64) {
		for rank, chunk := range chunks {
			key := fusedChunkKey(chunk)
			candidate, seen := acc[key]
			if !seen {
				candidate.seq = seq
				seq++
			}
			candidate.chunk = preferRicherChunk(candidate.chunk, chunk)
			candidate.score += weight / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	if semanticWeight >= keywordWeight {
		addList(semantic, semanticWeight)
		addList(keyword, keywordWeight)
	} else {
		addList(keyword, keywordWeight)
		addList(semantic, semanticWeight)
	}

	out := make([]fusedCandidate, 0, len(acc))
	for _, c := range acc {
		c.chunk.Score = c.score
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].seq < out[j].seq
	})

	fused := make([]domain.RetrievedChunk, 0, len(out))
	for _, c := range out {
		fused = append(fused, c.chunk)
	}
	return fused
}

// dedupeFused drops later candidates that share an identity key or a
// normalized-text-prefix fingerprint with an earlier (higher scored) one.
func dedupeFused(fused []domain.RetrievedChunk) []domain.RetrievedChunk {
	seenKey := make(map[string]struct{}, len(fused))
	seenPrint := make(map[string]struct{}, len(fused))
	out := make([]domain.RetrievedChunk, 0, len(fused))
	for _, chunk := range fused {
		key := fusedChunkKey(chunk)
		fingerprint := textFingerprint(chunk.Source, chunk.Page, chunk.Text)
		if _, dup := seenKey[key]; dup {
			continue
		}
		if _, dup := seenPrint[fingerprint]; dup {
			continue
		}
		seenKey[key] = struct{}{}
		seenPrint[fingerprint] = struct{}{}
		out = append(out, chunk)
	}
	return out
}

func trimCandidates(chunks []domain.RetrievedChunk, limit int) []domain.RetrievedChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func fusedChunkKey(chunk domain.RetrievedChunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	return fmt.Sprintf("%s|%d|%d", chunk.Source, chunk.Page, chunk.ChunkIndex)
}

const fingerprintPrefixRunes = 60

func textFingerprint(source string, page int, text string) string {
	normalized := strings.ToLower(stripAllWhitespace(text))
	runes := []rune(normalized)
	if len(runes) > fingerprintPrefixRunes {
		runes = runes[:fingerprintPrefixRunes]
	}
	return fmt.Sprintf("%s|%d|%s", source, page, string(runes))
}

func stripAllWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func preferRicherChunk(current, candidate domain.RetrievedChunk) domain.RetrievedChunk {
	if current.ID == "" && current.Source == "" && current.Text == "" {
		return candidate
	}
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Source == "" && candidate.Source != "" {
		current.Source = candidate.Source
	}
	if current.Page == 0 && candidate.Page != 0 {
		current.Page = candidate.Page
	}
	if current.ID == "" && candidate.ID != "" {
		current.ID = candidate.ID
	}
	return current
}
