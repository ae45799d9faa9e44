package host

import (
	"context"

	"github.com/ardnew/softmmc/pkg"
)

// queueFinish hands the in-flight request to the completion goroutine. Only
// the first call per request has an effect. Must be called with h.mu held.
func (h *Host) queueFinish() {
	if h.finishQueued {
		return
	}
	h.finishQueued = true
	h.filter, h.pending = 0, 0

	select {
	case h.finish <- struct{}{}:
	default:
	}
}

// finishWorker runs completions until ctx is cancelled. A request in flight
// at cancellation still completes before the worker exits.
func (h *Host) finishWorker(ctx context.Context, finish <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pkg.LogDebug(pkg.ComponentFinish, "completion worker started")

	for {
		select {
		case <-ctx.Done():
			for !h.retire(ctx) {
				<-finish
				h.finishRequest()
			}
			pkg.LogDebug(pkg.ComponentFinish, "completion worker stopped")
			return
		case <-finish:
			h.finishRequest()
		}
	}
}

// retire marks the host stopped once nothing is in flight. It reports false
// while a request is still outstanding.
func (h *Host) retire(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.req != nil {
		return false
	}
	if h.running {
		h.running = false
		h.ctrl.ArmInterrupts(0)
		h.ctrl.SetInterruptHandler(nil)
		pkg.LogInfo(pkg.ComponentHost, "host stopped", "reason", context.Cause(ctx))
	}
	return true
}

// finishRequest retires the handed-off request and runs its callback with
// h.mu released.
func (h *Host) finishRequest() {
	h.mu.Lock()
	req := h.req
	if req == nil {
		h.finishQueued = false
		h.mu.Unlock()
		return
	}

	h.cancelDeadline()
	h.unmapData()
	h.req, h.cmd = nil, nil
	h.auto = AutoNone
	h.filter, h.pending = 0, 0
	h.finishQueued = false
	held := h.powerHeld
	h.powerHeld = false
	h.mu.Unlock()

	if held {
		h.plat.Power.Put()
	}

	err := req.Err()
	if err != nil {
		pkg.LogDebug(pkg.ComponentFinish, "request failed", "req", req.id, "cmd", req.Cmd, "error", err)
	} else {
		pkg.LogDebug(pkg.ComponentFinish, "request done", "req", req.id, "cmd", req.Cmd)
	}

	h.stats.completed.Inc()
	if req.Done != nil {
		req.Done(req)
	}
}
