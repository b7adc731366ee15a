package store

import (
	"strconv"
	"strings"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// Validation is the context a field validator sees: the sanitized value, the
// whole item it belongs to, and the module's canonical list for uniqueness
// and other cross-item checks.
type Validation[T any] struct {
	Value any
	Item  T
	All   []T
	IsNew bool
}

// Field describes one editable field of a module's item type: how to read
// and write it, how to sanitize incoming values, how to validate the
// sanitized result, and how to compare values when computing patches.
//
// Sanitize is the identity when nil. Equal defaults to strict equality.
// A nil Validate contributes no feedback but the field still participates in
// patch computation.
type Field[T any] struct {
	Name     string
	Get      func(item T) any
	Set      func(item *T, v any)
	Sanitize func(v any) any
	Validate func(v Validation[T]) []domain.FeedbackItem
	Equal    func(a, b any) bool
}

func (f Field[T]) sanitize(v any) any {
	if f.Sanitize == nil {
		return v
	}
	return f.Sanitize(v)
}

func (f Field[T]) equal(a, b any) bool {
	if f.Equal != nil {
		return f.Equal(a, b)
	}
	return a == b
}

// TrimString coerces the value to a string and trims surrounding whitespace.
func TrimString(v any) any {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// ToNumber coerces strings, ints and floats to float64. Unparseable input
// becomes 0 so validation can reject it as non-positive.
func ToNumber(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return float64(0)
		}
		return f
	default:
		return float64(0)
	}
}

// ToBool coerces the value to a bool. Anything but a bool true is false.
func ToBool(v any) any {
	b, _ := v.(bool)
	return b
}

// RequireString validates that the sanitized value is a non-empty string,
// reporting the given message code on the given field otherwise.
func RequireString[T any](field, code string) func(Validation[T]) []domain.FeedbackItem {
	return func(v Validation[T]) []domain.FeedbackItem {
		if s, ok := v.Value.(string); !ok || s == "" {
			return []domain.FeedbackItem{domain.ErrorFeedback(field, code)}
		}
		return nil
	}
}

// RequirePositive validates that the sanitized value is a number greater
// than zero.
func RequirePositive[T any](field, code string) func(Validation[T]) []domain.FeedbackItem {
	return func(v Validation[T]) []domain.FeedbackItem {
		if n, ok := v.Value.(float64); !ok || n <= 0 {
			return []domain.FeedbackItem{domain.ErrorFeedback(field, code)}
		}
		return nil
	}
}
