// Package judge invokes the external LLM judge and normalizes its output
// to one numeric score per item.
package judge

import (
	"context"
	"errors"
)

// Errors for judge operations.
var (
	// ErrUnparseable means the judge output contained no usable scores.
	ErrUnparseable = errors.New("judge response contains no parseable scores")

	// ErrMissingAPIKey means no judge credential is configured.
	ErrMissingAPIKey = errors.New("judge API key required")
)

// ItemScore is one normalized judge verdict.
type ItemScore struct {
	// ItemID identifies the scored item. Empty when the judge returned a
	// bare score for a single-item prompt; the caller maps it back.
	ItemID string `json:"item_id"`

	// Score is the relevance score in [0, 100].
	Score float64 `json:"score"`

	// Reason is the judge's stated rationale.
	Reason string `json:"reason"`
}

// Result carries the parsed verdicts together with the judge's literal
// response text, so callers can persist exactly what the judge said
// rather than a re-serialization of it.
type Result struct {
	Scores []ItemScore
	Raw    string
}

// Judge scores a rendered prompt. Implementations must handle both
// response shapes the service produces (a structured per-item list or a
// single score) and normalize to ItemScore entries.
type Judge interface {
	ScoreBatch(ctx context.Context, prompt string) (Result, error)
}

// retryableError marks errors worth retrying (rate limits, timeouts,
// server-side failures).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
