package usecase

import (
	"errors"
	"testing"
)

func TestNegateStatementNumericIncrement(t *testing.T) {
	out, err := NegateStatement("パスワードは90日ごとに変更する。")
	if err != nil {
		t.Fatalf("NegateStatement() error = %v", err)
	}
	if out != "パスワードは91日ごとに変更する。" {
		t.Fatalf("unexpected mutation: %s", out)
	}
}

func TestNegateStatementProhibitionFlip(t *testing.T) {
	out, err := NegateStatement("私物USBメモリの使用は禁止されている。")
	if err != nil {
		t.Fatalf("NegateStatement() error = %v", err)
	}
	if out != "私物USBメモリの使用は許可されている。" {
		t.Fatalf("unexpected mutation: %s", out)
	}
}

func TestNegateStatementMandatoryFlip(t *testing.T) {
	out, err := NegateStatement("入館時のIDカード提示は必須である。")
	if err != nil {
		t.Fatalf("NegateStatement() error = %v", err)
	}
	if out != "入館時のIDカード提示は任意である。" {
		t.Fatalf("unexpected mutation: %s", out)
	}
}

func TestNegateStatementAppliesFirstMatchingRuleOnly(t *testing.T) {
	// Contains both a numeric counter and すべて; the numeric rule
	// comes first in the table and must win.
	out, err := NegateStatement("すべての端末を3日以内に更新する。")
	if err != nil {
		t.Fatalf("NegateStatement() error = %v", err)
	}
	if out != "すべての端末を4日以内に更新する。" {
		t.Fatalf("expected numeric rule to win, got %s", out)
	}
}

func TestNegateStatementSentenceFinalFallback(t *testing.T) {
	out, err := NegateStatement("退職時には貸与品を返却する。")
	if err != nil {
		t.Fatalf("NegateStatement() error = %v", err)
	}
	if out != "退職時には貸与品を返却しない。" {
		t.Fatalf("unexpected fallback mutation: %s", out)
	}
}

func TestNegateStatementOutputAlwaysDiffers(t *testing.T) {
	inputs := []string{
		"機密文書は施錠保管が必要である。",
		"来客は常に受付で記帳する。",
		"最初に上長へ報告する。",
	}
	for _, in := range inputs {
		out, err := NegateStatement(in)
		if err != nil {
			t.Fatalf("NegateStatement(%q) error = %v", in, err)
		}
		if out == in {
			t.Fatalf("mutation returned unchanged statement: %q", in)
		}
	}
}

func TestNegateStatementFailsWhenNoRuleApplies(t *testing.T) {
	_, err := NegateStatement("これはどの規則にも一致しないよ")
	if !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed, got %v", err)
	}
}

func TestNegateStatementEmptyInput(t *testing.T) {
	if _, err := NegateStatement("   "); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected ErrMutationFailed for empty input, got %v", err)
	}
}
