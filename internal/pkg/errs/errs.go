// Package errs classifies errors per the four kinds in spec.md §7:
// transient (retryable), permanent-for-input (log, no retry), budget
// (soft/hard cutoff), and invariant violation (bug, fatal run error).
// Callers branch with errors.Is/errors.As instead of string matching.
package errs

import "errors"

// Kind is the error classification used to decide retry/fallback
// behavior at queue and pipeline boundaries.
type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindBudget
	KindInvariant
)

// Classified wraps an error with its Kind.
type Classified struct {
	kind Kind
	err  error
}

func (c *Classified) Error() string { return c.err.Error() }
func (c *Classified) Unwrap() error { return c.err }

// Transient marks err as retryable (network timeouts, 5xx, KV/DB
// transient failures, LLM rate-limit).
func Transient(err error) error { return &Classified{kind: KindTransient, err: err} }

// Permanent marks err as non-retryable for this input (parse errors,
// selector miss, duplicate insert).
func Permanent(err error) error { return &Classified{kind: KindPermanent, err: err} }

// Budget marks err as a soft/hard budget cutoff.
func Budget(err error) error { return &Classified{kind: KindBudget, err: err} }

// Invariant marks err as a bug: unknown bucket, missing Goal, schema
// mismatch. Callers should surface it as a fatal run error and not retry.
func Invariant(err error) error { return &Classified{kind: KindInvariant, err: err} }

// KindOf returns the classification of err, defaulting to KindTransient
// for unclassified errors (the conservative choice: retry rather than
// silently drop).
func KindOf(err error) Kind {
	var c *Classified
	if errors.As(err, &c) {
		return c.kind
	}
	return KindTransient
}

// IsRetryable reports whether err should be retried by a queue worker.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient
}
