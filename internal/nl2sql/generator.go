// Package nl2sql talks to the text-generation backend that turns questions
// into SQL. The backend is opaque: the only failure modes modeled here are
// availability (retried with backoff), timeouts (retried), and non-success
// responses (surfaced immediately). What the returned text contains is the
// SQL gate's concern, never grounds for a retry.
package nl2sql

import (
	"context"
	"errors"
	"net"
	"time"
)

var (
	// ErrUnreachable marks connection-level failures after retries are
	// exhausted.
	ErrUnreachable = errors.New("generation backend unreachable")
	// ErrTimeout marks attempts cancelled by deadline after retries are
	// exhausted.
	ErrTimeout = errors.New("generation backend timed out")
	// ErrBackendStatus marks a non-success response from the backend. Not
	// retried: it usually means the request itself is malformed.
	ErrBackendStatus = errors.New("generation backend error")
)

type Result struct {
	Text     string
	Provider string
	Model    string
	Latency  time.Duration
}

// Generator is the capability boundary to the backend: prompt in, text out.
// Any compliant backend (local or remote) can be substituted.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}
