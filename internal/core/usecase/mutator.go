package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMutationFailed means no rule produced a text different from the
// input. Callers must treat this as a failed attempt, never accept the
// unchanged statement as a false one.
var ErrMutationFailed = errors.New("statement mutation failed")

var numericCounterPattern = regexp.MustCompile(`(\d+)(個|件|回|日|時間|分|秒|人|円)`)

var mustDoPattern = regexp.MustCompile(`必ず([^。、\s]{1,12})する`)

type mutationRule struct {
	name  string
	apply func(string) (string, bool)
}

func literalFlip(from, to string) func(string) (string, bool) {
	return func(s string) (string, bool) {
		if !strings.Contains(s, from) {
			return s, false
		}
		return strings.Replace(s, from, to, 1), true
	}
}

// mutationRules is the ordered transform table. The first rule that
// matches performs exactly one replacement and ends the search: one
// flipped semantic axis per statement.
var mutationRules = []mutationRule{
	{name: "numeric_increment", apply: incrementFirstCounter},
	{name: "prohibition_to_permission", apply: literalFlip("禁止されている", "許可されている")},
	{name: "permission_to_prohibition", apply: literalFlip("許可されている", "禁止されている")},
	{name: "must_do_to_optional", apply: func(s string) (string, bool) {
		if strings.Contains(s, "必ず行う") {
			return strings.Replace(s, "必ず行う", "行わなくてもよい", 1), true
		}
		if m := mustDoPattern.FindStringSubmatchIndex(s); m != nil {
			verb := s[m[2]:m[3]]
			return s[:m[0]] + verb + "しなくてもよい" + s[m[1]:], true
		}
		return s, false
	}},
	{name: "mandatory_to_optional", apply: literalFlip("必須である", "任意である")},
	{name: "necessary_to_unnecessary", apply: literalFlip("必要である", "不要である")},
	{name: "first_to_last", apply: literalFlip("最初に", "最後に")},
	{name: "all_to_some", apply: func(s string) (string, bool) {
		for _, form := range []string{"すべて", "全て"} {
			if strings.Contains(s, form) {
				return strings.Replace(s, form, "一部", 1), true
			}
		}
		return s, false
	}},
	{name: "always_to_sometimes", apply: literalFlip("常に", "時には")},
	{name: "immediate_to_deferred", apply: func(s string) (string, bool) {
		for _, form := range []string{"直ちに", "速やかに"} {
			if strings.Contains(s, form) {
				return strings.Replace(s, form, "後回しに", 1), true
			}
		}
		return s, false
	}},
}

// suffix negations tried when no table rule matched, most specific first.
var negationSuffixes = [][2]string{
	{"できる。", "できない。"},
	{"される。", "されない。"},
	{"する。", "しない。"},
	{"である。", "ではない。"},
	{"ある。", "ない。"},
}

// NegateStatement derives a false counterpart of a true statement by
// flipping exactly one semantic axis. The result is guaranteed to
// differ from the input or an error is returned.
func NegateStatement(statement string) (string, error) {
	trimmed := strings.TrimSpace(statement)
	if trimmed == "" {
		return "", fmt.Errorf("negate: %w: empty statement", ErrMutationFailed)
	}

	for _, rule := range mutationRules {
		if mutated, ok := rule.apply(trimmed); ok && mutated != trimmed {
			return mutated, nil
		}
	}

	for _, pair := range negationSuffixes {
		if strings.HasSuffix(trimmed, pair[0]) {
			return strings.TrimSuffix(trimmed, pair[0]) + pair[1], nil
		}
	}

	if strings.Contains(trimmed, "必ず") {
		candidate := strings.Replace(trimmed, "必ず", "", 1)
		if strings.HasSuffix(candidate, "する。") {
			return strings.TrimSuffix(candidate, "する。") + "しなくてもよい。", nil
		}
	}
	if strings.Contains(trimmed, "必須") {
		return strings.Replace(trimmed, "必須", "任意", 1), nil
	}
	if strings.Contains(trimmed, "必要") {
		return strings.Replace(trimmed, "必要", "不要", 1), nil
	}

	return "", fmt.Errorf("negate: %w: no applicable rule", ErrMutationFailed)
}

func incrementFirstCounter(s string) (string, bool) {
	m := numericCounterPattern.FindStringSubmatchIndex(s)
	if m == nil {
		return s, false
	}
	value, err := strconv.Atoi(s[m[2]:m[3]])
	if err != nil {
		return s, false
	}
	return s[:m[2]] + strconv.Itoa(value+1) + s[m[3]:], true
}
