package usecase

import (
	"strings"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// polarityMarkers are stripped before statement comparison so that a
// claim and its negated counterpart collapse to the same fingerprint.
// Both polarities of each axis are listed, longest form first, because
// otherwise "Xする" and "Xしない" would survive as distinct items.
var polarityMarkers = []string{
	"してはいけない",
	"行ってはいけない",
	"してはならない",
	"行ってはならない",
	"しなくてもよい",
	"行わなくてもよい",
	"なくてもよい",
	"されない",
	"される",
	"できない",
	"できる",
	"ではない",
	"である",
	"行わない",
	"行う",
	"しない",
	"する",
	"ない",
	"ある",
	"禁止",
	"許可",
	"不要",
	"必要",
	"必須",
	"任意",
}

func normalizeStatement(statement string) string {
	normalized := stripAllWhitespace(statement)
	normalized = strings.NewReplacer("。", "", "、", "", ".", "", ",", "").Replace(normalized)
	return strings.ToLower(normalized)
}

// statementFingerprint is the negation-insensitive dedup key.
func statementFingerprint(statement string) string {
	key := normalizeStatement(statement)
	for _, marker := range polarityMarkers {
		key = strings.ReplaceAll(key, marker, "")
	}
	return key
}

// citationKey identifies grounding material: source, page, and the
// leading runes of the normalized quote.
func citationKey(citation domain.Citation) string {
	page := 0
	if citation.Page != nil {
		page = *citation.Page
	}
	return textFingerprint(canonicalSource(citation.Source), page, citation.Quote)
}
