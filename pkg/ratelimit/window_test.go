package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "zero window", cfg: Config{Window: 0, Max: 1}, wantErr: true},
		{name: "negative max", cfg: Config{Window: time.Second, Max: -1}, wantErr: true},
		{name: "zero max", cfg: Config{Window: time.Second, Max: 0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		resetAt time.Time
		want    int
	}{
		{name: "whole seconds", resetAt: now.Add(30 * time.Second), want: 30},
		{name: "rounds up", resetAt: now.Add(1500 * time.Millisecond), want: 2},
		{name: "already reset", resetAt: now.Add(-time.Second), want: 1},
		{name: "reset now", resetAt: now, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decision{ResetAt: tt.resetAt}
			if got := d.RetryAfter(now); got != tt.want {
				t.Errorf("RetryAfter() = %d, want %d", got, tt.want)
			}
		})
	}
}
