package host

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// clockStablePolls bounds the internal clock stability poll.
const clockStablePolls = 1000

// Divider returns the clock divider register value that yields the fastest
// card clock not above rate. The card clock is base / (2 * (d + 1)).
func Divider(base, rate physic.Frequency, maxDiv uint32) uint32 {
	if rate <= 0 {
		return maxDiv
	}
	d := uint64(base / (2 * rate))
	if d != 0 {
		d--
	}
	if base/physic.Frequency((d+1)*2) > rate {
		d++
	}
	if d > uint64(maxDiv) {
		d = uint64(maxDiv)
	}
	return uint32(d)
}

// DividedRate returns the card clock produced by divider d.
func DividedRate(base physic.Frequency, d uint32) physic.Frequency {
	return base / physic.Frequency(2*(uint64(d)+1))
}

// SetClock sets the card clock to the fastest rate not above rate. A zero
// rate gates the card and internal clocks and disables the clock source.
func (h *Host) SetClock(ctx context.Context, rate physic.Frequency) error {
	if rate < 0 {
		return fmt.Errorf("%w: clock rate %s", pkg.ErrNotSupported, rate)
	}

	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if rate == 0 {
		h.ctrl.EnableCardClock(false)
		h.ctrl.EnableInternalClock(false)
		h.clockRate, h.clockRequest = 0, 0
		pkg.LogDebug(pkg.ComponentClock, "clock off")

		if h.sourceOn && h.plat.Clock != nil {
			h.sourceOn = false
			return h.unlocked(func() error { return h.plat.Clock.Disable(ctx) })
		}
		h.sourceOn = false
		return nil
	}

	if rate == h.clockRequest && h.clockRate != 0 {
		return nil
	}

	if !h.sourceOn {
		if h.plat.Clock != nil {
			if err := h.unlocked(func() error { return h.plat.Clock.Enable(ctx) }); err != nil {
				return fmt.Errorf("clock source: %w", err)
			}
		}
		h.sourceOn = true
	}

	h.ctrl.EnableCardClock(false)

	d := Divider(h.cfg.BaseClock, rate, h.cfg.MaxDivider)
	h.ctrl.SetClockDivider(d)
	h.ctrl.EnableInternalClock(true)
	if !h.waitClockStable() {
		h.ctrl.EnableInternalClock(false)
		h.clockRate = 0
		return fmt.Errorf("%w: internal clock not stable", pkg.ErrTimeout)
	}
	h.ctrl.EnableCardClock(true)

	actual := DividedRate(h.cfg.BaseClock, d)
	h.clockRate, h.clockRequest = actual, rate
	h.updateTimeouts(actual)

	pkg.LogDebug(pkg.ComponentClock, "clock set",
		"requested", rate,
		"actual", actual,
		"divider", d,
		"timeout_cycles", h.timeoutCycles,
		"max_busy", h.maxBusyTimeout)
	return nil
}

// waitClockStable polls the internal clock. Must be called with h.mu held.
func (h *Host) waitClockStable() bool {
	for range clockStablePolls {
		if h.ctrl.ClockStable() {
			return true
		}
	}
	return false
}

// updateTimeouts recomputes the data timeout and the longest busy period the
// hardware counter can measure at rate. Must be called with h.mu held.
func (h *Host) updateTimeouts(rate physic.Frequency) {
	h.timeoutCycles, h.maxBusyTimeout = TimeoutCycles(h.cfg.DataTimeout, rate)
}

// TimeoutCycles converts timeout to card clock cycles at rate, clamped below
// [hal.TimeoutMax], and returns the longest busy period the counter can
// measure at rate, truncated to milliseconds.
func TimeoutCycles(timeout time.Duration, rate physic.Frequency) (cycles uint32, maxBusy time.Duration) {
	hz := uint64(rate / physic.Hertz)
	if hz == 0 {
		return hal.TimeoutMax - 1, 0
	}

	c := hz * uint64(timeout) / uint64(time.Second)
	if c >= uint64(hal.TimeoutMax) {
		c = uint64(hal.TimeoutMax) - 1
	}

	ms := uint64(hal.TimeoutMax) * 1000 / hz
	return uint32(c), time.Duration(ms) * time.Millisecond
}
