package genai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Default limits for remote calls.
const (
	DefaultTimeout       = 15 * time.Second
	DefaultMaxConcurrent = 8
	DefaultRatePerSecond = 5.0
	DefaultRateBurst     = 10
)

// Limits bounds remote calls across the whole process.
type Limits struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimits creates shared limits. Non-positive values select the defaults.
func NewLimits(timeout time.Duration, maxConcurrent int, perSecond float64, burst int) *Limits {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if perSecond <= 0 {
		perSecond = DefaultRatePerSecond
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	return &Limits{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
	}
}

// Timeout reports the per-call deadline.
func (l *Limits) Timeout() time.Duration {
	return l.timeout
}

// Resilient decorates a Generator with a deadline, a concurrency cap and a rate limit.
// Waiting for a slot counts against the deadline; a call that times out returns an error and
// its output is discarded.
type Resilient struct {
	next   Generator
	limits *Limits
}

// NewResilient wraps next with the shared limits.
func NewResilient(next Generator, limits *Limits) *Resilient {
	if limits == nil {
		limits = NewLimits(0, 0, 0, 0)
	}
	return &Resilient{next: next, limits: limits}
}

// Decorator returns a Factory decorator that applies limits to every client.
func (l *Limits) Decorator() func(Generator) Generator {
	return func(g Generator) Generator { return NewResilient(g, l) }
}

// GeneratePromptWithContext runs the wrapped generator within the limits.
func (r *Resilient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.limits.timeout)
	defer cancel()

	if err := r.limits.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	if err := r.limits.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("concurrency slot wait: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer r.limits.sem.Release(1)
		text, err := r.next.GeneratePromptWithContext(ctx, systemPrompt, userPrompt)
		done <- result{text, err}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			return "", ctx.Err()
		}
		return res.text, res.err
	case <-ctx.Done():
		slog.Warn("genai.Resilient.GeneratePromptWithContext: remote call abandoned", "timeout", r.limits.timeout, "error", ctx.Err())
		return "", ctx.Err()
	}
}
