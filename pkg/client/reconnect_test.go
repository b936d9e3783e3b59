package client

import (
	"testing"
	"time"

	"github.com/termchat/termchat-client/pkg/config"
)

func TestReconnectPolicyBaseDelay(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   2 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1600 * time.Millisecond},
		{5, 2 * time.Second}, // capped
		{10, 2 * time.Second},
	}

	for _, tt := range tests {
		if got := p.baseDelay(tt.attempt); got != tt.expected {
			t.Errorf("baseDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestReconnectPolicyDelayJitterBounds(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:  100 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}

	for i := 0; i < 200; i++ {
		d := p.delay(1)
		if d < 150*time.Millisecond || d > 250*time.Millisecond {
			t.Fatalf("delay(1) = %v, want within 200ms ± 50ms", d)
		}
	}
}

func TestReconnectPolicyDelayNeverNegative(t *testing.T) {
	p := ReconnectPolicy{
		BaseDelay:  time.Millisecond,
		Multiplier: 1.0,
		Jitter:     time.Second,
	}

	for i := 0; i < 200; i++ {
		if d := p.delay(0); d < 0 {
			t.Fatalf("delay(0) = %v, want >= 0", d)
		}
	}
}

func TestReconnectPolicyExhausted(t *testing.T) {
	limited := ReconnectPolicy{MaxAttempts: 3}
	if limited.exhausted(2) {
		t.Error("exhausted(2) with MaxAttempts=3 should be false")
	}
	if !limited.exhausted(3) {
		t.Error("exhausted(3) with MaxAttempts=3 should be true")
	}

	unlimited := ReconnectPolicy{MaxAttempts: 0}
	if unlimited.exhausted(1000000) {
		t.Error("MaxAttempts=0 should never exhaust")
	}
}

func TestPolicyFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxReconnectAttempts = 7
	cfg.ReconnectBaseDelay = config.Duration(42 * time.Millisecond)
	cfg.ReconnectMultiplier = 3.5
	cfg.ReconnectJitter = config.Duration(5 * time.Millisecond)
	cfg.MaxReconnectDelay = config.Duration(9 * time.Second)

	p := policyFromConfig(cfg)
	if p.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", p.MaxAttempts)
	}
	if p.BaseDelay != 42*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 42ms", p.BaseDelay)
	}
	if p.Multiplier != 3.5 {
		t.Errorf("Multiplier = %v, want 3.5", p.Multiplier)
	}
	if p.Jitter != 5*time.Millisecond {
		t.Errorf("Jitter = %v, want 5ms", p.Jitter)
	}
	if p.MaxDelay != 9*time.Second {
		t.Errorf("MaxDelay = %v, want 9s", p.MaxDelay)
	}
}
