package usecase

import (
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// Stable rejection reason strings. The orchestrator aggregates them into
// the histogram surfaced on shortage, so they are part of the contract.
const (
	rejectInvalidType           = "invalid_type"
	rejectEmptyStatement        = "empty_statement"
	rejectTooShort              = "too_short"
	rejectQuestionMark          = "contains_question_mark"
	rejectQuestionFormEnding    = "question_form_ending"
	rejectAmbiguousPrefix       = "ambiguous_phrase:"
	rejectInvalidAnswerBool     = "invalid_answer_bool"
	rejectNoCitations           = "no_citations"
	rejectMissingCitationSource = "missing_citation_source"
	rejectMissingCitationQuote  = "missing_citation_quote"
	rejectDuplicateStatement    = "duplicate_statement"
	rejectDuplicateCitation     = "duplicate_citation"
	rejectMutationFailed        = "mutation_failed"
	rejectGenerationFailed      = "generation_failed"
)

// ValidatorTables holds the tunable validation data: the minimum
// statement length and the hedge vocabulary that disqualifies a
// statement from having a defensible true/false answer.
type ValidatorTables struct {
	MinStatementRunes int
	VaguenessMarkers  []string
}

func DefaultValidatorTables() ValidatorTables {
	return ValidatorTables{
		MinStatementRunes: 12,
		VaguenessMarkers: []string{
			"場合がある",
			"ことがある",
			"かもしれない",
			"望ましい",
			"推奨",
			"基本的に",
			"状況による",
			"適宜",
			"必要に応じて",
			"一般的に",
			"通常は",
			"原則として",
			"できる限り",
			"なるべく",
			"できれば",
			"好ましい",
			"望ましくない",
			"考えられる",
			"思われる",
			"みられる",
			"問題になっていない",
			"問題にならない",
		},
	}
}

var questionFormEndings = []string{"でしょうか", "ですか"}

// quizDraft is a candidate item before acceptance. Answer stays untyped
// until validation because the generation backend may emit anything.
type quizDraft struct {
	Type        string
	Statement   string
	Answer      any
	Explanation string
	Citations   []domain.Citation
}

// validateDraft returns "" on acceptance or a stable rejection reason.
func validateDraft(draft quizDraft, tables ValidatorTables) string {
	if draft.Type != domain.QuizTypeTrueFalse {
		return rejectInvalidType
	}

	statement := strings.TrimSpace(draft.Statement)
	if statement == "" {
		return rejectEmptyStatement
	}
	if len([]rune(statement)) < tables.MinStatementRunes {
		return rejectTooShort
	}
	if strings.ContainsAny(statement, "?？") {
		return rejectQuestionMark
	}
	trimmedEnd := strings.TrimRight(statement, "。")
	for _, ending := range questionFormEndings {
		if strings.HasSuffix(trimmedEnd, ending) {
			return rejectQuestionFormEnding
		}
	}
	for _, marker := range tables.VaguenessMarkers {
		if strings.Contains(statement, marker) {
			return rejectAmbiguousPrefix + marker
		}
	}

	if _, ok := draft.Answer.(bool); !ok {
		return rejectInvalidAnswerBool
	}

	if len(draft.Citations) == 0 {
		return rejectNoCitations
	}
	for _, citation := range draft.Citations {
		if strings.TrimSpace(citation.Source) == "" {
			return rejectMissingCitationSource
		}
		if strings.TrimSpace(citation.Quote) == "" {
			return rejectMissingCitationQuote
		}
	}
	return ""
}
