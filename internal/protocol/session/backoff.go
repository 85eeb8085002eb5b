package session

import (
	"context"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the wait before retry number attempt (1-based):
// InitialDelay grown by Multiplier per attempt and capped at MaxDelay. With
// Jitter and a non-nil rng the result is scaled into [0.5, 1.5) of that.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	mult := max(cfg.Multiplier, 1)
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if cfg.MaxDelay > 0 && delay >= float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	return time.Duration(delay)
}

// WaitBackoff sleeps for d unless ctx ends first. It reports whether the full
// delay elapsed.
func WaitBackoff(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
