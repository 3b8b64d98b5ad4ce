package memguard

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/davuth-chan/khmerscribe/internal/config"
)

// Sampler reports the process's current memory usage in bytes.
type Sampler func() uint64

// Guard is the memory-pressure gate. When usage crosses the high-water mark
// it reclaims memory and waits, re-sampling each cooldown, until usage falls
// below the low-water mark. The two marks are distinct so the gate does not
// oscillate around a single threshold.
type Guard struct {
	cfg     config.MemoryConfig
	sample  Sampler
	reclaim func()
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *slog.Logger
}

func NewGuard(cfg config.MemoryConfig, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:     cfg,
		sample:  heapAlloc,
		reclaim: freeMemory,
		sleep:   sleepCtx,
		logger:  logger,
	}
}

// WithSampler swaps the memory sampler; used by tests.
func (g *Guard) WithSampler(s Sampler) *Guard {
	g.sample = s
	return g
}

// WithSleep swaps the wait function; used by tests.
func (g *Guard) WithSleep(f func(ctx context.Context, d time.Duration) error) *Guard {
	g.sleep = f
	return g
}

// WithReclaim swaps the reclamation pass; used by tests.
func (g *Guard) WithReclaim(f func()) *Guard {
	g.reclaim = f
	return g
}

// CheckAndWait blocks until memory usage is acceptable and returns how many
// pause cycles it spent waiting. Memory pressure is an operational condition,
// not a failure; the only error out of here is context cancellation.
func (g *Guard) CheckAndWait(ctx context.Context) (int, error) {
	usage := g.sample()
	if usage < g.cfg.HighWaterBytes {
		return 0, nil
	}

	pauses := 0
	for usage >= g.cfg.LowWaterBytes {
		g.logger.Warn("memguard.pause",
			"usage_bytes", usage,
			"high_water_bytes", g.cfg.HighWaterBytes,
			"low_water_bytes", g.cfg.LowWaterBytes,
			"pauses", pauses,
		)
		g.reclaim()
		if err := g.sleep(ctx, g.cfg.Cooldown); err != nil {
			return pauses, err
		}
		pauses++
		usage = g.sample()
	}
	g.logger.Info("memguard.resume", "usage_bytes", usage, "pauses", pauses)
	return pauses, nil
}

func heapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

func freeMemory() {
	runtime.GC()
	debug.FreeOSMemory()
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
