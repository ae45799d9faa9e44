package host

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// IOS is a complete bus configuration.
type IOS struct {
	Power    PowerMode
	Clock    physic.Frequency
	BusWidth hal.BusWidth
	Timing   hal.Timing
}

// SetIOS applies power, clock, bus width and timing in that order, stopping
// at the first failure.
func (h *Host) SetIOS(ctx context.Context, ios IOS) error {
	if err := h.SetPowerMode(ctx, ios.Power); err != nil {
		return err
	}
	if err := h.SetClock(ctx, ios.Clock); err != nil {
		return err
	}
	if ios.Power == PowerOff {
		return nil
	}
	if err := h.SetBusWidth(ios.BusWidth); err != nil {
		return err
	}
	return h.SetTiming(ios.Timing)
}

// SetPowerMode sequences the supplies, pins and bus power. Failures of
// several rails are combined; the mode is recorded regardless.
func (h *Host) SetPowerMode(ctx context.Context, mode PowerMode) error {
	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if mode == h.power {
		return nil
	}

	var err error
	switch mode {
	case PowerOff:
		h.ctrl.SetBusPower(false)
		err = multierr.Combine(
			h.railOff(ctx, h.plat.VQMMC, &h.vqmmcOn),
			h.railOff(ctx, h.plat.VMMC, &h.vmmcOn),
			h.selectPins(ctx, hal.PinStateSleep),
		)

	case PowerUp, PowerOn:
		if h.power == PowerOff {
			err = multierr.Combine(
				h.selectPins(ctx, hal.PinStateDefault),
				h.railOn(ctx, h.plat.VMMC, &h.vmmcOn),
			)
			h.ctrl.SetBusPower(true)
		}
		if mode == PowerOn {
			err = multierr.Append(err, h.railOn(ctx, h.plat.VQMMC, &h.vqmmcOn))
		}

	default:
		return fmt.Errorf("%w: power mode %s", pkg.ErrNotSupported, mode)
	}

	pkg.LogDebug(pkg.ComponentVoltage, "power mode",
		"from", h.power,
		"to", mode,
		"error", err)
	h.power = mode
	return err
}

// railOn enables r if it is off. Must be called with h.mu held.
func (h *Host) railOn(ctx context.Context, r hal.Regulator, on *bool) error {
	if r == nil || *on {
		return nil
	}
	if err := h.unlocked(func() error { return r.Enable(ctx) }); err != nil {
		return err
	}
	*on = true
	return nil
}

// railOff disables r if it is on. Must be called with h.mu held.
func (h *Host) railOff(ctx context.Context, r hal.Regulator, on *bool) error {
	if r == nil || !*on {
		return nil
	}
	*on = false
	return h.unlocked(func() error { return r.Disable(ctx) })
}

// selectPins applies a pin state. Must be called with h.mu held.
func (h *Host) selectPins(ctx context.Context, state hal.PinState) error {
	if h.plat.Pins == nil {
		return nil
	}
	return h.unlocked(func() error { return h.plat.Pins.Select(ctx, state) })
}

// signalling maps a signalling level to its register value and pin state.
func signalling(v physic.ElectricPotential) (hal.Signalling, hal.PinState, bool) {
	switch v {
	case Voltage330:
		return hal.Signal330, hal.PinStateDefault, true
	case Voltage180:
		return hal.Signal180, hal.PinStateUHS, true
	case Voltage120:
		return hal.Signal120, hal.PinStateUHS, true
	default:
		return 0, "", false
	}
}

// SetSignalVoltage switches the I/O signalling level: the I/O supply is
// ramped, the pads reconfigured, then the controller reprogrammed.
func (h *Host) SetSignalVoltage(ctx context.Context, v physic.ElectricPotential) error {
	sig, pins, ok := signalling(v)
	if !ok {
		return fmt.Errorf("%w: signal voltage %s", pkg.ErrNotSupported, v)
	}

	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	if vqmmc := h.plat.VQMMC; vqmmc != nil {
		if err := h.unlocked(func() error { return vqmmc.SetVoltage(ctx, v, v) }); err != nil {
			pkg.LogWarn(pkg.ComponentVoltage, "I/O supply switch failed", "voltage", v, "error", err)
			return fmt.Errorf("vqmmc %s: %w", v, err)
		}
	}
	if err := h.selectPins(ctx, pins); err != nil {
		return fmt.Errorf("pin state %s: %w", pins, err)
	}
	h.ctrl.SetSignalVoltage(sig)
	h.signal = v

	pkg.LogDebug(pkg.ComponentVoltage, "signal voltage", "voltage", v, "pins", pins)
	return nil
}

// SetBusWidth programs the data bus width.
func (h *Host) SetBusWidth(w hal.BusWidth) error {
	switch w {
	case hal.BusWidth1, hal.BusWidth4, hal.BusWidth8:
	default:
		return fmt.Errorf("%w: bus width %d", pkg.ErrNotSupported, w)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl.SetBusWidth(w)
	h.busWidth = w
	return nil
}

// SetTiming programs the bus timing mode.
func (h *Host) SetTiming(t hal.Timing) error {
	if t > hal.TimingHS400 {
		return fmt.Errorf("%w: timing %s", pkg.ErrNotSupported, t)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl.SetTiming(t)
	h.timing = t
	return nil
}
