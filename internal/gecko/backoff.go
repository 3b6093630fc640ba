package gecko

import (
	"math/rand"
	"time"
)

// BackoffConfig paces ConnectWithRetry.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

// Delay returns the wait after failed attempt n (1-based). The first retry
// waits InitialDelay; each later one grows by Multiplier up to MaxDelay.
func (b BackoffConfig) Delay(n int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	growth := max(b.Multiplier, 1)
	d := float64(b.InitialDelay)
	for i := 1; i < n; i++ {
		d *= growth
		if b.MaxDelay > 0 && d >= float64(b.MaxDelay) {
			d = float64(b.MaxDelay)
			break
		}
	}
	if b.Jitter {
		factor := 0.5
		if rng != nil {
			factor += rng.Float64()
		}
		d *= factor
	}
	return time.Duration(d)
}
