package host

import (
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// armDeadline replaces the request deadline with one d from now. Must be
// called with h.mu held.
func (h *Host) armDeadline(d time.Duration) {
	h.cancelDeadline()
	gen := h.timerGen
	h.timer = h.clk.AfterFunc(d, func() { h.onDeadline(gen) })
}

// cancelDeadline stops the deadline. A callback already waiting for h.mu
// sees a newer generation and does nothing. Must be called with h.mu held.
func (h *Host) cancelDeadline() {
	h.timerGen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// onDeadline runs on the timer goroutine when a deadline expires.
func (h *Host) onDeadline(gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gen != h.timerGen || h.req == nil || h.finishQueued {
		pkg.LogDebug(pkg.ComponentWatchdog, "stale deadline", "gen", gen, "current", h.timerGen)
		return
	}
	h.timer = nil

	req, cmd := h.req, h.cmd
	h.stats.timeouts.Inc()

	if cmd != nil {
		setErr(&cmd.Err, pkg.ErrTimeout)
		if cmd.Data != nil {
			setErr(&cmd.Data.Err, pkg.ErrTimeout)
		}
	}

	pkg.LogWarn(pkg.ComponentWatchdog, "request timed out",
		"req", req.id,
		"cmd", cmd,
		"pending", h.pending)

	h.ctrl.ArmInterrupts(0)
	h.ctrl.Reset(hal.ResetCmd | hal.ResetData)
	h.unmapData()
	h.queueFinish()
}
