package host

import (
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// maxIRQDrain bounds the status re-reads of one HandleIRQ call.
const maxIRQDrain = 16

// HandleIRQ services the controller interrupt line. The register layer
// calls it through the handler installed by Start; calls never overlap.
func (h *Host) HandleIRQ() hal.IRQReturn {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.ctrl.ReadStatus()
	if status == 0 {
		return hal.IRQNone
	}
	h.stats.irqs.Inc()

	for n := 0; status != 0; n++ {
		if n == maxIRQDrain {
			h.abortStorm(status)
			break
		}

		h.ctrl.ClearStatus(status)

		if status&hal.IRQCardDetect != 0 {
			pkg.LogInfo(pkg.ComponentIRQ, "card detect",
				"inserted", status.Has(hal.IRQCardInsert),
				"removed", status.Has(hal.IRQCardRemove))
		}

		if !h.waiting() {
			h.stats.spurious.Inc()
			pkg.LogDebug(pkg.ComponentIRQ, "spurious", "status", status)
			break
		}

		bits := status & h.filter
		if errs := bits.Errors(); errs != 0 {
			h.handleFault(errs)
			break
		}
		h.handleCompletion(bits)

		if !h.waiting() {
			break
		}
		status = h.ctrl.ReadStatus()
	}

	return hal.IRQHandled
}

// waiting reports whether a command is in flight and the request has not
// been handed to the completion goroutine.
func (h *Host) waiting() bool {
	return h.cmd != nil && !h.finishQueued
}

// handleCompletion retires normal status bits for the active command and
// advances the request once every expected bit has arrived.
func (h *Host) handleCompletion(bits hal.IRQ) {
	cmd := h.cmd
	h.pending &^= bits

	if bits&hal.IRQDMASegment != 0 {
		h.ctrl.SetSysAddress(h.ctrl.SysAddress())
	}

	if bits&hal.IRQCmdComplete != 0 && cmd.Response != RespNone {
		cmd.Resp = h.ctrl.ReadResponse()
	}

	if bits&hal.IRQTransferComplete != 0 {
		if data := cmd.Data; data != nil {
			h.unmapData()
			data.BytesXfered = data.BlockSize * data.Blocks
		} else {
			pkg.LogDebug(pkg.ComponentIRQ, "busy end", "req", h.req.id, "cmd", cmd)
		}
	}

	if h.pending != 0 {
		return
	}

	h.ctrl.ArmInterrupts(0)
	h.advance()
}

// advance issues the request's next command or hands it off.
func (h *Host) advance() {
	req, cmd := h.req, h.cmd
	switch {
	case cmd == req.Sbc:
		h.issue(req.Cmd)
	case cmd == req.Cmd && explicitStop(req) && h.auto != AutoStop:
		h.issue(req.Stop)
	default:
		h.queueFinish()
	}
}

// handleFault records errs, quiesces the controller and either stops the
// transfer or hands off the request.
func (h *Host) handleFault(errs hal.IRQ) {
	req, cmd := h.req, h.cmd

	h.recordFaults(errs)
	h.stats.faults.Inc()

	pkg.LogWarn(pkg.ComponentIRQ, "fault",
		"req", req.id,
		"cmd", cmd,
		"status", errs,
		"auto", h.auto)

	h.ctrl.ArmInterrupts(0)
	h.ctrl.Reset(hal.ResetCmd | hal.ResetData)
	h.unmapData()

	// A stuck data phase is aborted with the caller's stop command unless
	// the controller owns the stop.
	if cmd == req.Cmd && req.Stop != nil && h.auto != AutoStop {
		h.issue(req.Stop)
		return
	}
	h.queueFinish()
}

// abortStorm ends the request after the drain loop failed to settle.
func (h *Host) abortStorm(status hal.IRQ) {
	h.stats.storms.Inc()
	h.ctrl.ClearStatus(status)
	h.ctrl.ArmInterrupts(0)
	h.ctrl.Reset(hal.ResetCmd | hal.ResetData)

	if !h.waiting() {
		pkg.LogError(pkg.ComponentIRQ, "interrupt storm while idle", "status", status)
		return
	}

	cmd := h.cmd
	pkg.LogError(pkg.ComponentIRQ, "interrupt storm", "req", h.req.id, "cmd", cmd, "status", status)

	setErr(&cmd.Err, pkg.ErrIRQStorm)
	if cmd.Data != nil {
		setErr(&cmd.Data.Err, pkg.ErrIRQStorm)
	}
	h.unmapData()
	h.queueFinish()
}
