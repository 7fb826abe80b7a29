package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	val, attempts, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, attempts)
}

func TestDoVal_RetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	val, attempts, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient("hunter", "discover", 503, errors.New("unavailable"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 3, attempts)
}

func TestDoVal_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	_, attempts, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, Transient("hunter", "discover", 429, errors.New("slow down"))
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestDoVal_PermanentNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	_, attempts, err := DoVal(context.Background(), fastRetry(), func(_ context.Context) (int, error) {
		calls++
		return 0, Permanent("apollo", "enrich", 401, errors.New("bad key"))
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestDoVal_StopPreventsFurtherAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	cfg := fastRetry()
	cfg.Stop = func() bool { return calls >= 1 }
	_, attempts, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, Transient("hunter", "discover", 503, errors.New("unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoVal_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	calls := 0
	_, _, err := DoVal(ctx, cfg, func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, Transient("hunter", "discover", 503, errors.New("unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	t.Parallel()

	var seen []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, _ error) { seen = append(seen, attempt) }

	attempts, err := Do(context.Background(), cfg, func(_ context.Context) error {
		return Transient("anthropic", "draft", 500, errors.New("boom"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	t.Parallel()

	cfg := fastRetry()
	cfg.ShouldRetry = func(error) bool { return true }
	calls := 0
	_, err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("plain")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestComputeBackoff(t *testing.T) {
	t.Parallel()

	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, computeBackoff(5, cfg))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestFromRetryConfig(t *testing.T) {
	t.Parallel()

	cfg := FromRetryConfig(5, 10, 100, 3, 0)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 100*time.Millisecond, cfg.MaxBackoff)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)

	def := FromRetryConfig(0, 0, 0, 0, -1)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, 0.25, def.JitterFraction)
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()

	fn := RetryLogger("hunter", "discover")
	assert.NotPanics(t, func() { fn(1, errors.New("x")) })
}
