package executor

import (
	"math/rand"
	"time"

	"github.com/praxislabs/agentplan/errors"
)

// BackoffPolicy selects how the base delay grows across attempts.
type BackoffPolicy string

const (
	// BackoffFixed waits the base delay on every attempt.
	BackoffFixed BackoffPolicy = "fixed"

	// BackoffLinear waits base * attempt.
	BackoffLinear BackoffPolicy = "linear"

	// BackoffExponential waits base * 2^(attempt-1).
	BackoffExponential BackoffPolicy = "exponential"
)

// JitterMode selects how randomness is applied on top of the computed delay.
type JitterMode string

const (
	// JitterNone applies the computed delay exactly.
	JitterNone JitterMode = "none"

	// JitterFull picks uniformly in [0, delay].
	JitterFull JitterMode = "full"

	// JitterEqual keeps half the delay and randomizes the other half.
	JitterEqual JitterMode = "equal"

	// JitterDecorrelated picks uniformly in [base, prev*3], capped.
	JitterDecorrelated JitterMode = "decorrelated"
)

// Default retry settings, used when a RetryConfig field is zero.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 100 * time.Millisecond
	defaultMaxDelay    = 10 * time.Second
)

// RetryConfig controls the executor's retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `json:"max_attempts"`

	// Policy selects the backoff growth curve.
	Policy BackoffPolicy `json:"policy"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `json:"base_delay"`

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `json:"max_delay"`

	// Jitter selects the randomization applied to each delay.
	Jitter JitterMode `json:"jitter"`

	// RetryableCodes, when non-empty, replaces the default category-based
	// classification: only these codes are retried.
	RetryableCodes []errors.ErrorCode `json:"retryable_codes,omitempty"`

	// RetryableStatus lists HTTP-style status codes that are retried even
	// when the error itself classifies as permanent.
	RetryableStatus []int `json:"retryable_status,omitempty"`
}

// DefaultRetryConfig returns the retry settings used when none are given:
// three attempts, exponential backoff from 100ms capped at 10s, no jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: defaultMaxAttempts,
		Policy:      BackoffExponential,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Jitter:      JitterNone,
	}
}

// normalized returns a copy with zero fields replaced by defaults.
func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Policy == "" {
		c.Policy = BackoffExponential
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.Jitter == "" {
		c.Jitter = JitterNone
	}
	return c
}

// Backoff returns the delay before retrying after the given attempt,
// before jitter. Attempts are numbered from 1. The result never exceeds
// MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	cfg := c.normalized()
	if attempt < 1 {
		attempt = 1
	}

	var delay time.Duration
	switch cfg.Policy {
	case BackoffFixed:
		delay = cfg.BaseDelay
	case BackoffLinear:
		delay = cfg.BaseDelay * time.Duration(attempt)
	default: // exponential
		delay = cfg.BaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
			if delay >= cfg.MaxDelay {
				return cfg.MaxDelay
			}
		}
	}

	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// jittered applies the configured jitter to the computed delay. prev is
// the previous sleep, used only by the decorrelated mode.
func (c RetryConfig) jittered(delay, prev time.Duration, rng *rand.Rand) time.Duration {
	cfg := c.normalized()
	switch cfg.Jitter {
	case JitterFull:
		return time.Duration(rng.Int63n(int64(delay) + 1))
	case JitterEqual:
		half := delay / 2
		return half + time.Duration(rng.Int63n(int64(half)+1))
	case JitterDecorrelated:
		if prev <= 0 {
			prev = cfg.BaseDelay
		}
		span := int64(prev)*3 - int64(cfg.BaseDelay)
		if span <= 0 {
			return cfg.BaseDelay
		}
		d := cfg.BaseDelay + time.Duration(rng.Int63n(span+1))
		if d > cfg.MaxDelay {
			d = cfg.MaxDelay
		}
		return d
	default:
		return delay
	}
}

// shouldRetry classifies an error under this configuration. A status code
// listed in RetryableStatus is retried regardless of classification; an
// explicit RetryableCodes set replaces the category-based default.
func (c RetryConfig) shouldRetry(err error) bool {
	engErr := errors.AsEngineError(err)
	if engErr == nil {
		// Unclassified errors are treated as transient tool hiccups.
		return true
	}

	if sc := engErr.StatusCode(); sc != 0 {
		for _, allowed := range c.RetryableStatus {
			if sc == allowed {
				return true
			}
		}
	}

	if len(c.RetryableCodes) > 0 {
		for _, code := range c.RetryableCodes {
			if engErr.Code() == code {
				return true
			}
		}
		return false
	}

	return engErr.Retryable()
}
