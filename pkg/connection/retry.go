package connection

import (
	"math"
	"time"

	"github.com/athmos-ops/missionsync/internal/rand"
)

// Retryer decides how long to wait before the next retry attempt.
type Retryer interface {
	// NextDelay returns the delay before retry number attempt (0-based) and
	// whether to keep retrying.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)

	// Reset is called after a successful attempt.
	Reset()
}

// ExponentialBackoffRetryer implements exponential backoff with jitter.
type ExponentialBackoffRetryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// MaxRetries is the maximum number of attempts, 0 for unlimited.
	MaxRetries int

	// JitterFactor is the maximum jitter as a fraction of the delay
	// (0.0 to 1.0). Zero disables jitter.
	JitterFactor float64
}

// NewExponentialBackoffRetryer returns a retryer with defaults suited to
// resubscribing after a dropped connection: 1s initial, 30s cap, unlimited
// attempts, 30% jitter.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   0,
		JitterFactor: 0.3,
	}
}

func (r *ExponentialBackoffRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}

	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.JitterFactor > 0 {
		scale := 2*float64(rand.IntN(1000))/1000 - 1 // -1 .. +1
		delay += delay * r.JitterFactor * scale
		if delay < 0 {
			delay = float64(r.InitialDelay)
		}
	}

	return time.Duration(delay), true
}

func (r *ExponentialBackoffRetryer) Reset() {}

// FixedDelayRetryer retries with a constant delay.
type FixedDelayRetryer struct {
	Delay time.Duration

	// MaxRetries is the maximum number of attempts, 0 for unlimited.
	MaxRetries int
}

func NewFixedDelayRetryer(delay time.Duration, maxRetries int) *FixedDelayRetryer {
	return &FixedDelayRetryer{Delay: delay, MaxRetries: maxRetries}
}

func (r *FixedDelayRetryer) NextDelay(attempt int, lastErr error) (time.Duration, bool) {
	if r.MaxRetries > 0 && attempt >= r.MaxRetries {
		return 0, false
	}
	return r.Delay, true
}

func (r *FixedDelayRetryer) Reset() {}
