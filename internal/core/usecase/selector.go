package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// WeightedKeyword is one scored vocabulary entry of a difficulty tier.
type WeightedKeyword struct {
	Word   string  `yaml:"word"`
	Weight float64 `yaml:"weight"`
}

// SelectorTables holds the static scoring vocabularies. They are
// data, not control flow, so deployments can override them from a
// config file without code changes.
type SelectorTables struct {
	Tiers           map[domain.Difficulty][]WeightedKeyword
	HeadingBonus    float64
	LengthFitBonus  float64
	MinFitRunes     int
	MaxFitRunes     int
	QuestionPenalty float64
	ShortPenaltyDiv float64
	LongPenaltyDiv  float64
}

// DefaultSelectorTables returns the built-in vocabularies: beginner
// favors definitional and overview passages, intermediate favors
// procedural ones, advanced favors exceptions, prohibitions and risk.
func DefaultSelectorTables() SelectorTables {
	return SelectorTables{
		Tiers: map[domain.Difficulty][]WeightedKeyword{
			domain.DifficultyBeginner: {
				{Word: "概要", Weight: 3.0},
				{Word: "定義", Weight: 3.0},
				{Word: "目的", Weight: 2.5},
				{Word: "原則", Weight: 2.5},
				{Word: "基本", Weight: 2.0},
				{Word: "とは", Weight: 2.0},
				{Word: "ルール", Weight: 2.0},
				{Word: "重要性", Weight: 1.5},
				{Word: "理由", Weight: 1.0},
			},
			domain.DifficultyIntermediate: {
				{Word: "手順", Weight: 3.0},
				{Word: "方法", Weight: 3.0},
				{Word: "対応", Weight: 2.5},
				{Word: "フロー", Weight: 2.5},
				{Word: "理由", Weight: 2.5},
				{Word: "確認", Weight: 2.0},
				{Word: "操作", Weight: 2.0},
				{Word: "なぜ", Weight: 2.0},
				{Word: "適用", Weight: 2.0},
				{Word: "場合", Weight: 1.5},
				{Word: "背景", Weight: 1.5},
				{Word: "する", Weight: 1.0},
			},
			domain.DifficultyAdvanced: {
				{Word: "例外", Weight: 3.5},
				{Word: "禁止", Weight: 3.5},
				{Word: "注意", Weight: 3.0},
				{Word: "判断", Weight: 3.0},
				{Word: "判断基準", Weight: 3.0},
				{Word: "例外ケース", Weight: 3.0},
				{Word: "してはいけない", Weight: 3.0},
				{Word: "禁止事項", Weight: 3.0},
				{Word: "条件", Weight: 2.5},
				{Word: "リスク", Weight: 2.5},
				{Word: "複合", Weight: 2.0},
				{Word: "考慮", Weight: 2.0},
				{Word: "罰則", Weight: 2.0},
			},
		},
		HeadingBonus:    2.0,
		LengthFitBonus:  2.0,
		MinFitRunes:     200,
		MaxFitRunes:     800,
		QuestionPenalty: 1.0,
		ShortPenaltyDiv: 100,
		LongPenaltyDiv:  200,
	}
}

var headingPattern = regexp.MustCompile(`^(#+\s|第.+章|第.+節|■|●|◆)`)

const keywordCountCap = 3

// scoreChunkForTier rates how well a passage can back a quiz question
// of the given tier. Pure lexical heuristics over the tier vocabulary,
// a heading bonus, a medium-length fit bonus, and a penalty for
// passages that are themselves questions.
func scoreChunkForTier(text string, tier domain.Difficulty, tables SelectorTables) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	score := 0.0
	for _, kw := range tables.Tiers[tier] {
		count := strings.Count(trimmed, kw.Word)
		if count > keywordCountCap {
			count = keywordCountCap
		}
		score += float64(count) * kw.Weight
	}

	if headingPattern.MatchString(trimmed) {
		score += tables.HeadingBonus
	}

	length := len([]rune(trimmed))
	switch {
	case length >= tables.MinFitRunes && length <= tables.MaxFitRunes:
		score += tables.LengthFitBonus
	case length < tables.MinFitRunes:
		score -= float64(tables.MinFitRunes-length) / tables.ShortPenaltyDiv
	default:
		score -= float64(length-tables.MaxFitRunes) / tables.LongPenaltyDiv
	}

	if strings.ContainsAny(trimmed, "?？") {
		score -= tables.QuestionPenalty
	}
	return score
}

// selectChunksForTier ranks chunks by tier fitness and keeps the topN.
// The sort is stable so equally scored chunks keep input order.
func selectChunksForTier(chunks []domain.Chunk, tier domain.Difficulty, topN int, tables SelectorTables) []domain.Chunk {
	if len(chunks) == 0 || topN <= 0 {
		return nil
	}
	type scored struct {
		chunk domain.Chunk
		score float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, chunk := range chunks {
		ranked = append(ranked, scored{chunk: chunk, score: scoreChunkForTier(chunk.Text, tier, tables)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if topN > len(ranked) {
		topN = len(ranked)
	}
	out := make([]domain.Chunk, 0, topN)
	for _, s := range ranked[:topN] {
		out = append(out, s.chunk)
	}
	return out
}
