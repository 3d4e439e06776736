// Package stage holds the five generation steps of a blog job. Executors are
// pure with respect to the job record: they take typed input and return an
// Outcome, the orchestrator decides what to persist.
package stage

import "time"

type Kind int

const (
	KindOK Kind = iota
	KindDegraded
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// Outcome is the result of one stage run. Degraded carries a usable fallback
// Value plus the Err that caused it; Failed carries only Err.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

func OK[T any](v T) Outcome[T] { return Outcome[T]{Kind: KindOK, Value: v} }

func Degraded[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Kind: KindDegraded, Value: v, Err: err}
}

func Failed[T any](err error) Outcome[T] { return Outcome[T]{Kind: KindFailed, Err: err} }

func (o Outcome[T]) Usable() bool { return o.Kind != KindFailed }

// Config is passed to every executor at construction.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// tokens returns MaxTokens, or def when unset.
func (c Config) tokens(def int) int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return def
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

// Draft is the output of Drafter and Rewriter.
type Draft struct {
	Body      string
	WordCount int
}
