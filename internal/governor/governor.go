package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
)

// ErrHalted is the halt-requested signal: the tier has no variant left (or
// hit an auth failure) and the run must stop after a durable snapshot.
var ErrHalted = errors.New("halt requested")

// Invoker is the remote model capability the governor wraps.
type Invoker interface {
	Generate(ctx context.Context, model, prompt string, png []byte) (string, error)
}

// tierState is the per-tier machine: Using(variant at idx) until exhausted.
// The index only ever moves forward within a run.
type tierState struct {
	idx       int
	exhausted bool
	calls     map[string]int // per-variant invocation count vs daily ceiling
}

// Governor wraps model calls with failure classification, local quota
// accounting, transient retry against the same variant, and ordered fallback
// across a tier's variants.
type Governor struct {
	invoker      Invoker
	tiers        config.Tiers
	retryCeiling int
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger
	state        map[config.Tier]*tierState
}

func New(invoker Invoker, tiers config.Tiers, retryCeiling int, logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	if retryCeiling <= 0 {
		retryCeiling = 3
	}
	state := make(map[config.Tier]*tierState, len(tiers))
	for tier := range tiers {
		state[tier] = &tierState{calls: make(map[string]int)}
	}
	return &Governor{
		invoker:      invoker,
		tiers:        tiers,
		retryCeiling: retryCeiling,
		sleep:        sleepCtx,
		logger:       logger,
		state:        state,
	}
}

// WithSleep swaps the backoff wait; used by tests.
func (g *Governor) WithSleep(f func(ctx context.Context, d time.Duration) error) *Governor {
	g.sleep = f
	return g
}

// CurrentVariant reports the variant the tier would use next, and whether
// the tier is exhausted.
func (g *Governor) CurrentVariant(tier config.Tier) (config.Variant, bool) {
	st, ok := g.state[tier]
	if !ok || st.exhausted || st.idx >= len(g.tiers[tier]) {
		return config.Variant{}, true
	}
	return g.tiers[tier][st.idx], false
}

// Invoke runs prompt+image through tier's current variant and returns the
// response text plus the model that served it. Transient failures are
// retried with backoff against the same variant up to the retry ceiling;
// exhaustion-class failures (quota, rate limit, spent retries) advance to
// the next variant. Once no variant remains the tier stays exhausted and
// every call fails immediately with ErrHalted.
func (g *Governor) Invoke(ctx context.Context, tier config.Tier, prompt string, png []byte) (string, string, error) {
	st, ok := g.state[tier]
	if !ok {
		return "", "", fmt.Errorf("unknown tier %q", tier)
	}
	variants := g.tiers[tier]

	for !st.exhausted && st.idx < len(variants) {
		v := variants[st.idx]

		if v.DailyQuota > 0 && st.calls[v.Name] >= v.DailyQuota {
			g.logger.Warn("governor.quota.local_ceiling",
				"tier", tier, "variant", v.Name, "model", v.Model, "ceiling", v.DailyQuota)
			g.advance(tier, st, "local quota ceiling")
			continue
		}

		text, err := g.invokeWithRetry(ctx, tier, v, st, prompt, png)
		if err == nil {
			return text, v.Model, nil
		}

		switch gemini.KindOf(err) {
		case gemini.FailureUnauthorized:
			// Fatal-class: no variant can help, stop the whole tier now.
			st.exhausted = true
			g.logger.Error("governor.unauthorized", "tier", tier, "variant", v.Name, "error", err)
			return "", "", fmt.Errorf("%w: tier %s unauthorized: %w", ErrHalted, tier, err)
		case gemini.FailureQuotaExhausted, gemini.FailureRateLimited, gemini.FailureTransient:
			g.advance(tier, st, err.Error())
		default:
			// Context cancellation or a non-API error; surface untouched.
			return "", "", err
		}
	}

	st.exhausted = true
	return "", "", fmt.Errorf("%w: tier %s has no variants left", ErrHalted, tier)
}

// invokeWithRetry runs one variant, retrying only transient failures with
// backoff. Rate-limit and quota signals return immediately so the tier falls
// back; spending the transient budget is likewise exhaustion-style for this
// variant.
func (g *Governor) invokeWithRetry(ctx context.Context, tier config.Tier, v config.Variant, st *tierState, prompt string, png []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.retryCeiling; attempt++ {
		st.calls[v.Name]++
		text, err := g.invoker.Generate(ctx, v.Model, prompt, png)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if gemini.KindOf(err) != gemini.FailureTransient {
			return "", err
		}
		if attempt+1 >= g.retryCeiling {
			break
		}
		wait := Backoff(attempt)
		g.logger.Warn("governor.retry",
			"tier", tier, "variant", v.Name, "attempt", attempt+1,
			"backoff_ms", wait.Milliseconds(), "error", err)
		if serr := g.sleep(ctx, wait); serr != nil {
			return "", serr
		}
	}
	// Retries spent: treat as a quota-style failure so the tier falls back.
	return "", lastErr
}

func (g *Governor) advance(tier config.Tier, st *tierState, reason string) {
	st.idx++
	if st.idx < len(g.tiers[tier]) {
		next := g.tiers[tier][st.idx]
		g.logger.Warn("governor.fallback",
			"tier", tier, "next_variant", next.Name, "next_model", next.Model, "reason", reason)
		return
	}
	st.exhausted = true
	g.logger.Error("governor.exhausted", "tier", tier, "reason", reason)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
