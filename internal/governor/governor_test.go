package governor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davuth-chan/khmerscribe/internal/config"
	"github.com/davuth-chan/khmerscribe/internal/gemini"
)

// scriptedInvoker returns canned results in order and records which model
// served each call.
type scriptedInvoker struct {
	results []scriptedResult
	models  []string
}

type scriptedResult struct {
	text string
	err  error
}

func (s *scriptedInvoker) Generate(_ context.Context, model, _ string, _ []byte) (string, error) {
	s.models = append(s.models, model)
	if len(s.results) == 0 {
		return "", errors.New("script exhausted")
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.text, r.err
}

func noSleep(context.Context, time.Duration) error { return nil }

func twoVariantTiers() config.Tiers {
	return config.Tiers{
		config.TierDetection: {
			{Name: "primary", Model: "det-a"},
			{Name: "fallback", Model: "det-b"},
		},
		config.TierExtraction: {
			{Name: "primary", Model: "ext-a"},
			{Name: "fallback", Model: "ext-b"},
		},
	}
}

func apiErr(kind gemini.FailureKind) *gemini.APIError {
	return &gemini.APIError{Kind: kind, StatusCode: 429, Message: string(kind)}
}

func TestInvokeSuccessUsesPrimary(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{{text: "BOTH"}}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	text, model, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "BOTH", text)
	assert.Equal(t, "det-a", model)
	assert.Equal(t, []string{"det-a"}, inv.models)
}

func TestTransientRetriesSameVariant(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureTransient)},
		{err: apiErr(gemini.FailureTransient)},
		{text: "ok"},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	text, model, err := g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "ext-a", model)
	assert.Equal(t, []string{"ext-a", "ext-a", "ext-a"}, inv.models)
}

func TestQuotaExhaustionFallsBackAndSticks(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureQuotaExhausted)},
		{text: "from-b"},
		{text: "from-b-again"},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, model, err := g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ext-b", model)

	// The very next call for the tier must use the secondary; no reversion.
	_, model, err = g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ext-b", model)
	assert.Equal(t, []string{"ext-a", "ext-b", "ext-b"}, inv.models)
}

func TestRateLimitFallsBackWithoutRetry(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureRateLimited)},
		{text: "from-b"},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, model, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "det-b", model)
	assert.Equal(t, []string{"det-a", "det-b"}, inv.models)
}

func TestTransientBudgetSpentTreatedAsExhaustion(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureTransient)},
		{err: apiErr(gemini.FailureTransient)},
		{err: apiErr(gemini.FailureTransient)},
		{text: "from-b"},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, model, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "det-b", model)
	assert.Equal(t, []string{"det-a", "det-a", "det-a", "det-b"}, inv.models)
}

func TestAllVariantsExhaustedHalts(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureQuotaExhausted)},
		{err: apiErr(gemini.FailureQuotaExhausted)},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, _, err := g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.ErrorIs(t, err, ErrHalted)

	// Exhausted tiers fail immediately without touching the backend.
	calls := len(inv.models)
	_, _, err = g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.ErrorIs(t, err, ErrHalted)
	assert.Len(t, inv.models, calls)

	_, exhausted := g.CurrentVariant(config.TierExtraction)
	assert.True(t, exhausted)
}

func TestExhaustionIsPerTier(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: apiErr(gemini.FailureQuotaExhausted)},
		{err: apiErr(gemini.FailureQuotaExhausted)},
		{text: "detection still fine"},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, _, err := g.Invoke(context.Background(), config.TierExtraction, "p", nil)
	require.ErrorIs(t, err, ErrHalted)

	text, _, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "detection still fine", text)
}

func TestUnauthorizedHaltsImmediately(t *testing.T) {
	inv := &scriptedInvoker{results: []scriptedResult{
		{err: &gemini.APIError{Kind: gemini.FailureUnauthorized, StatusCode: 403}},
	}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, _, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
	require.ErrorIs(t, err, ErrHalted)
	assert.Equal(t, gemini.FailureUnauthorized, gemini.KindOf(err))
	// No fallback attempt on auth failures.
	assert.Equal(t, []string{"det-a"}, inv.models)
}

func TestLocalQuotaCeilingSkipsVariant(t *testing.T) {
	tiers := config.Tiers{
		config.TierDetection: {
			{Name: "primary", Model: "det-a", DailyQuota: 2},
			{Name: "fallback", Model: "det-b"},
		},
	}
	inv := &scriptedInvoker{results: []scriptedResult{
		{text: "1"}, {text: "2"}, {text: "3"}, {text: "4"},
	}}
	g := New(inv, tiers, 3, nil).WithSleep(noSleep)

	for i := 0; i < 4; i++ {
		_, _, err := g.Invoke(context.Background(), config.TierDetection, "p", nil)
		require.NoError(t, err)
	}
	// First two on the primary, ceiling reached, rest on the fallback.
	assert.Equal(t, []string{"det-a", "det-a", "det-b", "det-b"}, inv.models)
}

func TestContextCancellationSurfacesUntouched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inv := &scriptedInvoker{results: []scriptedResult{{err: ctx.Err()}}}
	g := New(inv, twoVariantTiers(), 3, nil).WithSleep(noSleep)

	_, _, err := g.Invoke(ctx, config.TierDetection, "p", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrHalted)
}

func TestBackoffLargeAttemptStaysBounded(t *testing.T) {
	// A misconfigured retry ceiling must degrade to the cap, never overflow
	// the shift into a negative duration.
	for attempt := 0; attempt < 64; attempt++ {
		d := Backoff(attempt)
		assert.Positive(t, d, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 45*time.Second, "attempt %d", attempt)
	}
}

func TestBackoffIsBoundedAndGrows(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 45*time.Second)
		if attempt < 4 {
			assert.Greater(t, d, prev/2)
		}
		prev = d
	}
}
