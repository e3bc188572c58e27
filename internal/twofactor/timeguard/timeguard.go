// Package timeguard detects a system clock that has not been set.
//
// Devices without a battery-backed clock boot far in the past after a power
// loss. Enforcing TOTP against such a clock rejects every code, so callers
// skip TOTP enforcement while the clock reads earlier than a minimum epoch.
package timeguard

import (
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/twofactor/entity"
	"go.uber.org/atomic"
)

// Result is the outcome of Check.
type Result struct {
	Calibrated   bool
	CurrentTime  int64
	MinValidTime int64
}

const (
	stateUnknown int32 = iota
	stateCalibrated
	stateUncalibrated
)

// Guard compares the clock against a minimum valid epoch and logs each
// change of calibration state once.
type Guard struct {
	clock clock.Clocker
	last  *atomic.Int32
}

// New returns a Guard reading clk.
func New(clk clock.Clocker) *Guard {
	return &Guard{clock: clk, last: atomic.NewInt32(stateUnknown)}
}

// Check reports whether the clock is at or past minValid. A non-positive
// minValid uses entity.DefaultMinValidTime.
func (g *Guard) Check(minValid int64) Result {
	if minValid <= 0 {
		minValid = entity.DefaultMinValidTime
	}

	now := g.clock.Now().Unix()
	res := Result{
		Calibrated:   now >= minValid,
		CurrentTime:  now,
		MinValidTime: minValid,
	}

	state := stateUncalibrated
	if res.Calibrated {
		state = stateCalibrated
	}
	if prev := g.last.Swap(state); prev != state {
		if res.Calibrated {
			if prev != stateUnknown {
				slog.Info("system clock is calibrated, totp enforcement resumed", "current_time", now)
			}
		} else {
			slog.Warn("system clock is not calibrated, totp enforcement suspended",
				"current_time", now, "min_valid_time", minValid)
		}
	}

	return res
}
