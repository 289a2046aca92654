// Package story implements the card, assembly and narration stages.
// Stages never return errors: a failure degrades to a defined fallback value
// and the cause travels alongside it in an Outcome.
package story

import "errors"

var errUnspecified = errors.New("unspecified failure")

// Outcome is the result of one stage call.
type Outcome[T any] struct {
	Value T
	Cause error
}

// Ok wraps a successful value.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

// Fallback wraps a substitute value and the failure that caused it.
func Fallback[T any](value T, cause error) Outcome[T] {
	if cause == nil {
		cause = errUnspecified
	}
	return Outcome[T]{Value: value, Cause: cause}
}

// Degraded reports whether the value is a fallback.
func (o Outcome[T]) Degraded() bool {
	return o.Cause != nil
}

func (o Outcome[T]) label() string {
	if o.Degraded() {
		return "fallback"
	}
	return "ok"
}
