package host

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/ardnew/softmmc/pkg"
)

// Submit starts req. It returns once the first command is on the bus; the
// outcome is delivered to req.Done from the completion goroutine.
//
// Malformed requests fail with a [*pkg.ConfigurationError] before any
// register is written. Submit fails with [pkg.ErrNotRunning] before Start or
// once the Start context is done, and with [pkg.ErrBusy] while another
// request is in flight.
func (h *Host) Submit(ctx context.Context, req *Request) error {
	if err := h.validate(req); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	held := false
	if h.plat.Power != nil {
		if err := h.plat.Power.Get(ctx); err != nil {
			return fmt.Errorf("power reference: %w", err)
		}
		held = true
	}
	present := h.CardDetect()

	h.mu.Lock()
	var err error
	switch {
	case !h.running || h.ctx.Err() != nil:
		err = pkg.ErrNotRunning
	case h.req != nil:
		err = pkg.ErrBusy
	}
	if err != nil {
		h.mu.Unlock()
		if held {
			h.plat.Power.Put()
		}
		return err
	}
	defer h.mu.Unlock()

	req.reset()
	req.id = xid.New().String()
	h.req = req
	h.powerHeld = held
	h.stats.submitted.Inc()

	if !present {
		pkg.LogDebug(pkg.ComponentDispatch, "no medium", "req", req.id, "cmd", req.Cmd)
		req.Cmd.Err = pkg.ErrNoMedium
		h.stats.noMedium.Inc()
		h.queueFinish()
		return nil
	}

	h.auto = h.selectAutoCmd(req)

	pkg.LogDebug(pkg.ComponentDispatch, "submit",
		"req", req.id,
		"cmd", req.Cmd,
		"sbc", req.Sbc != nil,
		"stop", req.Stop != nil,
		"data", req.Data != nil,
		"auto", h.auto)

	if req.Sbc != nil {
		h.issue(req.Sbc)
	} else {
		h.issue(req.Cmd)
	}
	return nil
}

// selectAutoCmd chooses the auto-command mode. A precounted request never
// uses the controller's auto-stop, and its sub-command is always sent by
// software so its response is captured.
func (h *Host) selectAutoCmd(req *Request) AutoMode {
	switch {
	case req.Sbc != nil && h.cfg.Caps.AutoPrecount:
		return AutoPrecount
	case req.Sbc == nil && req.Stop != nil && req.Data != nil && h.cfg.Caps.AutoStop:
		return AutoStop
	default:
		return AutoNone
	}
}

// explicitStop reports whether req's stop command is sent by software after
// the primary command. It never is when a sub-command exists.
func explicitStop(req *Request) bool {
	return req.Stop != nil && req.Sbc == nil
}

// validate checks req without touching hardware and links req.Data to the
// primary command.
func (h *Host) validate(req *Request) error {
	if req == nil || req.Cmd == nil {
		return pkg.NewConfigurationError("request", fmt.Errorf("%w: no command", pkg.ErrInvalidRequest))
	}

	switch {
	case req.Data == nil:
		req.Data = req.Cmd.Data
	case req.Cmd.Data == nil:
		req.Cmd.Data = req.Data
	case req.Cmd.Data != req.Data:
		return pkg.NewConfigurationError("request",
			fmt.Errorf("%w: command and request carry different data", pkg.ErrInvalidRequest))
	}

	for _, c := range []struct {
		field string
		cmd   *Command
	}{{"sbc", req.Sbc}, {"cmd", req.Cmd}, {"stop", req.Stop}} {
		if c.cmd == nil {
			continue
		}
		if c.cmd != req.Cmd && c.cmd.Data != nil {
			return pkg.NewConfigurationError(c.field,
				fmt.Errorf("%w: only the primary command carries data", pkg.ErrInvalidRequest))
		}
		if err := h.validateCommand(c.field, c.cmd); err != nil {
			return err
		}
	}

	if req.Data != nil {
		return h.validateData(req.Data)
	}
	return nil
}
