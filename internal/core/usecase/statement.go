package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
	"github.com/yuskondo/docquiz/internal/core/ports"
)

const quizSystemPrompt = `あなたは社内文書から○×クイズを作成するアシスタントです。以下のルールを厳守してください。
- 根拠は提供された引用文のみ。引用文に書かれていない情報を加えない。
- 肯定形の平叙文を1文だけ作成する。否定形・疑問形・曖昧な表現(「場合がある」「望ましい」など)は禁止。
- 文末は「。」で終える。
- 出力は次の形式のJSONオブジェクトのみ。前置きや説明文、コードフェンスは一切出力しない。
{"quizzes":[{"type":"true_false","statement":"...","answer":true,"explanation":"...","citations":[{"source":"...","page":1,"quote":"..."}]}]}`

const quizRepairPrompt = `直前の出力はJSONとして解析できませんでした。同じ引用文を根拠に、指定したJSON形式のオブジェクトだけを出力し直してください。JSON以外の文字は出力しないでください。`

var tierInstructions = map[domain.Difficulty]string{
	domain.DifficultyBeginner:     "基本的な定義・概要・目的に関する statement を作成してください。",
	domain.DifficultyIntermediate: "手順・方法・対応フローに関する statement を作成してください。",
	domain.DifficultyAdvanced:     "例外・禁止事項・条件・リスクに関する statement を作成してください。",
}

const defaultQuoteMaxRunes = 200

// StatementGenerator turns a citation group into one affirmative,
// grounded true-statement draft via the text-generation backend, with
// exactly one structural repair pass when the output cannot be parsed.
type StatementGenerator struct {
	backend       ports.TextGenerator
	quoteMaxRunes int
	logger        *slog.Logger
}

func NewStatementGenerator(backend ports.TextGenerator, quoteMaxRunes int, logger *slog.Logger) *StatementGenerator {
	if quoteMaxRunes <= 0 {
		quoteMaxRunes = defaultQuoteMaxRunes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatementGenerator{
		backend:       backend,
		quoteMaxRunes: quoteMaxRunes,
		logger:        logger.With("component", "statement_generator"),
	}
}

// GenerateOne returns a draft and an empty reason on success, or a
// stable rejection reason for a failed attempt. A non-nil error is only
// returned when the surrounding request is over (context done), so the
// orchestrator can distinguish attempt failure from request abort.
func (g *StatementGenerator) GenerateOne(
	ctx context.Context,
	tier domain.Difficulty,
	topic string,
	citations []domain.Citation,
	bannedStatements []string,
) (quizDraft, string, error) {
	if len(citations) == 0 {
		return quizDraft{}, rejectNoCitations, nil
	}

	messages := []ports.ChatMessage{
		{Role: ports.RoleSystem, Content: quizSystemPrompt},
		{Role: ports.RoleUser, Content: buildQuizUserPrompt(tier, topic, citations, bannedStatements)},
	}

	raw, err := g.backend.Complete(ctx, messages)
	if err != nil {
		if requestAborted(ctx, err) {
			return quizDraft{}, "", err
		}
		g.logger.Warn("generation backend call failed", "error", err)
		return quizDraft{}, rejectGenerationFailed, nil
	}

	draft, failure := parseQuizResponse(raw, citations, g.quoteMaxRunes)
	if failure == nil {
		return draft, "", nil
	}

	// One bounded repair pass: same grounding, plus the malformed
	// excerpt and a terse correction instruction.
	g.logger.Warn("quiz response unparseable, attempting repair", "reason", failure.reason)
	repairMessages := append(messages,
		ports.ChatMessage{Role: ports.RoleAssistant, Content: truncateRunes(raw, 1000)},
		ports.ChatMessage{Role: ports.RoleUser, Content: quizRepairPrompt},
	)
	repaired, err := g.backend.Complete(ctx, repairMessages)
	if err != nil {
		if requestAborted(ctx, err) {
			return quizDraft{}, "", err
		}
		g.logger.Warn("repair call failed", "error", err)
		return quizDraft{}, rejectGenerationFailed, nil
	}

	draft, failure = parseQuizResponse(repaired, citations, g.quoteMaxRunes)
	if failure != nil {
		g.logger.Warn("repair pass still unparseable", "reason", failure.reason)
		return quizDraft{}, failure.reason, nil
	}
	return draft, "", nil
}

func requestAborted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

func buildQuizUserPrompt(tier domain.Difficulty, topic string, citations []domain.Citation, bannedStatements []string) string {
	var b strings.Builder
	if instruction, ok := tierInstructions[tier]; ok {
		b.WriteString(instruction)
		b.WriteString("\n")
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		fmt.Fprintf(&b, "テーマ: %s\n", topic)
	}

	b.WriteString("\n引用文:\n")
	for i, citation := range citations {
		page := 0
		if citation.Page != nil {
			page = *citation.Page
		}
		fmt.Fprintf(&b, "[%d] source=%s page=%d\n%s\n\n", i+1, citation.Source, page, citation.Quote)
	}

	if len(bannedStatements) > 0 {
		b.WriteString("次の statement と同じ内容・同じ主旨の文は作成しないでください:\n")
		for _, banned := range bannedStatements {
			fmt.Fprintf(&b, "- %s\n", banned)
		}
	}
	return b.String()
}
