// Package retry decides, for a failed attempt, whether a task retries
// later or moves to the deadletter. The decision is a pure function of
// the attempt counters and the policy parameters — no randomness — so
// reschedule times are exactly predictable.
package retry

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
	DefaultMultiplier  = 2.0
	DefaultMaxDelay    = time.Hour
)

// Policy holds the backoff parameters. MaxAttempts is the default
// attempt budget applied at enqueue time when a task does not carry its
// own; the per-task budget always wins afterwards.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Validate fails fast on parameters that would silently hide data loss
// risk. MaxAttempts of 1 is valid and means "first failure deadletters".
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %v", p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1, got %v", p.Multiplier)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}

	return nil
}

// Decision is the outcome for one failed attempt.
type Decision struct {
	Deadletter bool
	Delay      time.Duration
}

// Decide maps the attempt counters to a retry-vs-deadletter decision.
// attemptCount is the number of attempts already consumed, including the
// one that just failed.
func (p Policy) Decide(attemptCount, maxAttempts int) Decision {
	if attemptCount >= maxAttempts {
		return Decision{Deadletter: true}
	}

	return Decision{Delay: p.delay(attemptCount)}
}

// delay = BaseDelay * Multiplier^(attemptCount-1), capped at MaxDelay.
func (p Policy) delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}

	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attemptCount-1)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	return d
}

// NextNotBefore returns the instant before which a rescheduled task must
// not be leased again.
func (p Policy) NextNotBefore(now time.Time, attemptCount int) time.Time {
	return now.Add(p.delay(attemptCount))
}
