package entity

import (
	"testing"
	"time"
)

func TestRateLimitPolicyNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   RateLimitPolicy
		want RateLimitPolicy
	}{
		{
			name: "zero values take defaults",
			in:   RateLimitPolicy{Enabled: true},
			want: RateLimitPolicy{Enabled: true, MaxAttempts: 5, Window: time.Minute, Lockout: 5 * time.Minute},
		},
		{
			name: "in range kept",
			in:   RateLimitPolicy{MaxAttempts: 100, Window: time.Hour, Lockout: 24 * time.Hour},
			want: RateLimitPolicy{MaxAttempts: 100, Window: time.Hour, Lockout: 24 * time.Hour},
		},
		{
			name: "above range reset",
			in:   RateLimitPolicy{MaxAttempts: 101, Window: time.Hour + time.Second, Lockout: 25 * time.Hour},
			want: RateLimitPolicy{MaxAttempts: 5, Window: time.Minute, Lockout: 5 * time.Minute},
		},
		{
			name: "sub-second durations reset",
			in:   RateLimitPolicy{MaxAttempts: 1, Window: time.Millisecond, Lockout: -time.Second},
			want: RateLimitPolicy{MaxAttempts: 1, Window: time.Minute, Lockout: 5 * time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(); got != tt.want {
				t.Fatalf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFactorConfigured(t *testing.T) {
	var nilFactor *Factor
	if nilFactor.Configured() {
		t.Fatalf("nil factor must not be configured")
	}
	if (&Factor{}).Configured() {
		t.Fatalf("factor without secret must not be configured")
	}
	if !(&Factor{Secret: "JBSWY3DPEHPK3PXP"}).Configured() {
		t.Fatalf("factor with secret must be configured")
	}
	if got := (&Factor{Step: -5}).EffectiveStep(); got != 30 {
		t.Fatalf("EffectiveStep() = %d, want 30", got)
	}
}
