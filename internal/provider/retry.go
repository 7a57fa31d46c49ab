package provider

import (
	"context"
	"iter"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/giselles-ai/giselle-sub007/internal/config"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

// RetryPolicy configures exponential backoff between attempts.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// Retrying wraps a model so that a stream failing with a transient error
// before its first chunk is attempted again. Once a chunk was yielded the
// error is passed through, since the caller already consumed output.
type Retrying struct {
	model  ports.LanguageModel
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration)
}

func NewRetrying(model ports.LanguageModel, policy RetryPolicy) *Retrying {
	return &Retrying{model: model, policy: policy, sleep: sleepCtx}
}

func (r *Retrying) Stream(ctx context.Context, req giselle.ModelRequest) iter.Seq2[giselle.OutputChunk, error] {
	return func(yield func(giselle.OutputChunk, error) bool) {
		for attempt := 0; ; attempt++ {
			emitted := false
			var failed error
			for chunk, err := range r.model.Stream(ctx, req) {
				if err != nil {
					failed = err
					break
				}
				emitted = true
				if !yield(chunk, nil) {
					return
				}
			}
			if failed == nil {
				return
			}
			if emitted || attempt >= r.policy.MaxRetries || ctx.Err() != nil || !isRetryable(failed) {
				yield(giselle.OutputChunk{}, failed)
				return
			}
			delay := backoff(r.policy, attempt)
			slog.Info("model call failed, backing off", "model", req.Model, "attempt", attempt+1, "delay", delay, "err", failed)
			r.sleep(ctx, delay)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// backoff computes the delay before attempt+1.
func backoff(policy RetryPolicy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(factor, float64(attempt))
	if policy.MaxDelay > 0 && time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

var retryablePatterns = []string{
	"timeout", "rate_limit", "rate limit", "too many requests",
	"429", "500", "502", "503", "504",
	"connection reset", "connection refused", "eof",
	"overloaded", "capacity",
}

func isRetryable(err error) bool {
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
