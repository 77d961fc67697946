package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTimeout      = errors.New("timeout")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ShortageError reports a quiz generation run that exhausted its budget
// before reaching the requested count. Reasons is a histogram of
// rejection reason strings observed during the run.
type ShortageError struct {
	Requested int
	Accepted  int
	Reasons   map[string]int
}

func (e *ShortageError) Shortage() int {
	return e.Requested - e.Accepted
}

func (e *ShortageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "quiz shortage: accepted %d of %d", e.Accepted, e.Requested)
	if len(e.Reasons) > 0 {
		keys := make([]string, 0, len(e.Reasons))
		for k := range e.Reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, e.Reasons[k]))
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, " "))
	}
	return b.String()
}

func AsShortage(err error) (*ShortageError, bool) {
	var se *ShortageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
