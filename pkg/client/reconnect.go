package client

import (
	"math"
	"math/rand"
	"time"

	"github.com/termchat/termchat-client/pkg/config"
)

// ReconnectPolicy bounds reconnection behavior for one connection. It is
// derived from the client configuration and immutable afterwards.
type ReconnectPolicy struct {
	// MaxAttempts is the dial budget per reconnect episode; 0 means
	// unlimited.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// Multiplier grows the delay on every failed attempt.
	Multiplier float64

	// Jitter randomizes each delay by ±Jitter.
	Jitter time.Duration

	// MaxDelay caps the pre-jitter delay.
	MaxDelay time.Duration
}

func policyFromConfig(cfg config.Config) ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: cfg.MaxReconnectAttempts,
		BaseDelay:   cfg.ReconnectBaseDelay.Std(),
		Multiplier:  cfg.ReconnectMultiplier,
		Jitter:      cfg.ReconnectJitter.Std(),
		MaxDelay:    cfg.MaxReconnectDelay.Std(),
	}
}

// baseDelay computes min(MaxDelay, BaseDelay·Multiplier^attempt), before
// jitter. The attempt index resets to 0 on every successful connect.
func (p ReconnectPolicy) baseDelay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	return time.Duration(d)
}

// delay returns the backoff wait for an attempt index, with jitter applied.
func (p ReconnectPolicy) delay(attempt int) time.Duration {
	d := float64(p.baseDelay(attempt))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * float64(p.Jitter)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// exhausted reports whether the dial budget is spent after the given number
// of consecutive failures.
func (p ReconnectPolicy) exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}
