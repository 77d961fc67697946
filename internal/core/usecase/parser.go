package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// Stable structural parse failure reasons. They select the repair path
// in the statement generator and feed the rejection histogram.
const (
	parseReasonEmptyResponse   = "empty_response"
	parseReasonExtractionError = "json_extraction_error"
	parseReasonParseError      = "json_parse_error"
	parseReasonValidationError = "json_validation_error"
)

type parseFailure struct {
	reason string
	detail string
}

func (e *parseFailure) Error() string {
	if e.detail == "" {
		return e.reason
	}
	return fmt.Sprintf("%s: %s", e.reason, e.detail)
}

const maxEchoedCitations = 3

type rawQuizEnvelope struct {
	Quizzes []rawQuiz `json:"quizzes"`
}

type rawQuiz struct {
	Type        string          `json:"type"`
	Statement   string          `json:"statement"`
	Answer      json.RawMessage `json:"answer"`
	Explanation string          `json:"explanation"`
	Citations   json.RawMessage `json:"citations"`
}

// parseQuizResponse turns raw backend output into a draft. The output
// is untrusted bytes: anything structurally off becomes a typed parse
// failure, never a panic. Citations the backend mangled, dropped, or
// attributed to a source outside the grounding input are replaced with
// the citations supplied as grounding input.
func parseQuizResponse(raw string, inputCitations []domain.Citation, quoteMaxRunes int) (quizDraft, *parseFailure) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return quizDraft{}, &parseFailure{reason: parseReasonEmptyResponse}
	}

	extracted, ok := extractJSONObject(trimmed)
	if !ok {
		return quizDraft{}, &parseFailure{reason: parseReasonExtractionError, detail: "no JSON object found"}
	}

	var envelope rawQuizEnvelope
	if err := json.Unmarshal([]byte(extracted), &envelope); err != nil {
		return quizDraft{}, &parseFailure{reason: parseReasonParseError, detail: err.Error()}
	}
	if len(envelope.Quizzes) == 0 {
		return quizDraft{}, &parseFailure{reason: parseReasonValidationError, detail: "quizzes array empty"}
	}

	first := envelope.Quizzes[0]
	if strings.TrimSpace(first.Statement) == "" {
		return quizDraft{}, &parseFailure{reason: parseReasonValidationError, detail: "statement missing"}
	}

	draft := quizDraft{
		Type:        first.Type,
		Statement:   strings.TrimSpace(first.Statement),
		Explanation: strings.TrimSpace(first.Explanation),
		Answer:      decodeAnswer(first.Answer),
		Citations:   decodeCitations(first.Citations, inputCitations, quoteMaxRunes),
	}
	if draft.Type == "" {
		draft.Type = domain.QuizTypeTrueFalse
	}
	return draft, nil
}

// extractJSONObject tolerates the usual model noise: code fences and a
// short prose preamble around the object.
func extractJSONObject(s string) (string, bool) {
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeAnswer(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

// decodeCitations keeps backend-echoed citations only when every entry
// is a well-formed object naming a source that was part of the
// grounding input; otherwise the supplied input citations win. Echoed
// quotes are clamped to the configured quote maximum. Grounding
// material is never fabricated from elsewhere.
func decodeCitations(raw json.RawMessage, inputCitations []domain.Citation, quoteMaxRunes int) []domain.Citation {
	fallback := capCitations(inputCitations, maxEchoedCitations)
	if len(raw) == 0 {
		return fallback
	}

	var echoed []struct {
		Source string `json:"source"`
		Page   *int   `json:"page"`
		Quote  string `json:"quote"`
	}
	if err := json.Unmarshal(raw, &echoed); err != nil || len(echoed) == 0 {
		return fallback
	}

	suppliedSources := make(map[string]struct{}, len(inputCitations))
	for _, c := range inputCitations {
		suppliedSources[canonicalSource(c.Source)] = struct{}{}
	}

	out := make([]domain.Citation, 0, len(echoed))
	for _, c := range echoed {
		if strings.TrimSpace(c.Source) == "" || strings.TrimSpace(c.Quote) == "" {
			return fallback
		}
		if _, ok := suppliedSources[canonicalSource(c.Source)]; !ok {
			return fallback
		}
		quote := c.Quote
		if quoteMaxRunes > 0 {
			quote = truncateRunes(quote, quoteMaxRunes)
		}
		out = append(out, domain.Citation{Source: c.Source, Page: c.Page, Quote: quote})
	}
	return capCitations(out, maxEchoedCitations)
}

func capCitations(citations []domain.Citation, max int) []domain.Citation {
	if len(citations) <= max {
		return citations
	}
	return citations[:max]
}
