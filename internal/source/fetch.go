package source

import (
	"context"
	"fmt"
	"time"

	"digestd/internal/digest"
	logx "digestd/pkg/logx"
)

// Policy bounds retry behavior for one collector.
//
// Transient failures get MaxAttempts tries with exponential backoff
// (BaseDelay * Multiplier^(attempt-1)). Rate-limit failures get
// RateLimitAttempts tries, waiting the provider hint when one is present and
// RateLimitDelay otherwise. Auth/config failures get exactly one attempt.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	RateLimitAttempts int
	RateLimitDelay    time.Duration
}

// DefaultPolicy matches the documented defaults: 3 transient attempts with
// 1s/2s/4s delays, 2 rate-limit attempts with a fixed 5s delay.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		Multiplier:        2,
		RateLimitAttempts: 2,
		RateLimitDelay:    5 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.RateLimitAttempts <= 0 {
		p.RateLimitAttempts = def.RateLimitAttempts
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = def.RateLimitDelay
	}
	return p
}

// attemptsFor caps attempts per failure category.
func (p Policy) attemptsFor(cat Category) int {
	switch cat {
	case CategoryTransient:
		return p.MaxAttempts
	case CategoryRateLimit:
		return p.RateLimitAttempts
	default:
		return 1
	}
}

// delayFor computes the wait before the next attempt. attempt is 1-based
// (the attempt that just failed).
func (p Policy) delayFor(cat Category, attempt int, err error) time.Duration {
	if cat == CategoryRateLimit {
		if hint, ok := RetryHint(err); ok {
			return hint
		}
		return p.RateLimitDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}

// Fetcher wraps single collector invocations with bounded retry. It never
// lets an error escape: every terminal condition becomes a Result.
type Fetcher struct {
	policy Policy
	log    logx.Logger

	// sleep is swapped in tests to observe delays without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewFetcher(policy Policy, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fetcher{
		policy: policy.withDefaults(),
		log:    log,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch invokes the collector until it succeeds, exhausts its attempt
// budget, or hits a non-retryable failure. Panics inside a collector are
// captured as transient failures so one misbehaving adapter cannot take
// down the run.
func (f *Fetcher) Fetch(ctx context.Context, c Collector) Result {
	id := c.ID()

	var lastErr error
	attempt := 0
	for {
		attempt++

		msgs, err := f.collect(ctx, c)
		if err == nil {
			if attempt > 1 {
				f.log.Info("collect recovered after retry",
					logx.String("source", string(id)), logx.Int("attempt", attempt))
			}
			return Result{Source: id, Messages: msgs}
		}
		lastErr = err

		cat := CategoryOf(err)
		budget := f.policy.attemptsFor(cat)
		if !cat.Retryable() || attempt >= budget {
			f.log.Warn("collect failed",
				logx.String("source", string(id)),
				logx.String("category", string(cat)),
				logx.Int("attempts", attempt),
				logx.Err(err))
			return failure(id, cat, attempt, lastErr)
		}

		delay := f.policy.delayFor(cat, attempt, err)
		f.log.Warn("collect attempt failed; retrying",
			logx.String("source", string(id)),
			logx.String("category", string(cat)),
			logx.Int("attempt", attempt),
			logx.Int("max", budget),
			logx.Duration("delay", delay),
			logx.Err(err))

		if serr := f.sleep(ctx, delay); serr != nil {
			// Run canceled mid-backoff; report what we know.
			return failure(id, cat, attempt, lastErr)
		}
	}
}

// collect shields the wrapper from collector panics.
func (f *Fetcher) collect(ctx context.Context, c Collector) (msgs []digest.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msgs = nil
			err = TransientError(c.ID(), fmt.Errorf("collector panicked: %v", r))
		}
	}()
	return c.Collect(ctx)
}

func failure(id digest.SourceID, cat Category, attempts int, err error) Result {
	cause := ""
	if err != nil {
		cause = err.Error()
	}
	return Result{
		Source: id,
		Failure: &Failure{
			Source:   id,
			Category: cat,
			Cause:    cause,
			Attempts: attempts,
		},
	}
}
