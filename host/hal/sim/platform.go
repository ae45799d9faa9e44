package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Regulator is a simulated supply rail. It implements [hal.Regulator].
type Regulator struct {
	name     string
	min, max physic.ElectricPotential

	mu      sync.Mutex
	on      bool
	voltage physic.ElectricPotential
	fail    error
}

// NewRegulator creates a rail that can be set within [min, max], starting
// off at max.
func NewRegulator(name string, min, max physic.ElectricPotential) *Regulator {
	return &Regulator{name: name, min: min, max: max, voltage: max}
}

// Enable switches the rail on.
func (r *Regulator) Enable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(ctx); err != nil {
		return err
	}
	r.on = true
	pkg.LogDebug(pkg.ComponentSim, "rail on", "rail", r.name, "voltage", r.voltage)
	return nil
}

// Disable switches the rail off.
func (r *Regulator) Disable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(ctx); err != nil {
		return err
	}
	r.on = false
	pkg.LogDebug(pkg.ComponentSim, "rail off", "rail", r.name)
	return nil
}

// SetVoltage sets the rail to the lowest level within [min, max] the rail
// supports.
func (r *Regulator) SetVoltage(ctx context.Context, min, max physic.ElectricPotential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(ctx); err != nil {
		return err
	}
	v := min
	if v < r.min {
		v = r.min
	}
	if v > max || v > r.max {
		return fmt.Errorf("sim: %s cannot supply %s..%s", r.name, min, max)
	}
	r.voltage = v
	return nil
}

// Enabled reports whether the rail is on.
func (r *Regulator) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Voltage returns the rail level.
func (r *Regulator) Voltage() physic.ElectricPotential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.voltage
}

// FailNext makes the next operation return err.
func (r *Regulator) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *Regulator) takeFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := r.fail
	r.fail = nil
	return err
}

// Pins records pin-control selections. It implements [hal.PinControl].
type Pins struct {
	mu     sync.Mutex
	states []hal.PinState
}

// Select applies state.
func (p *Pins) Select(ctx context.Context, state hal.PinState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

// Current returns the last selected state, or the empty state.
func (p *Pins) Current() hal.PinState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return ""
	}
	return p.states[len(p.states)-1]
}

// History returns every selection in order.
func (p *Pins) History() []hal.PinState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hal.PinState(nil), p.states...)
}

// ClockSource is a fixed-rate gateable clock. It implements
// [hal.ClockSource].
type ClockSource struct {
	rate    physic.Frequency
	enabled atomic.Bool
	enables atomic.Int64
}

// NewClockSource creates a source running at rate.
func NewClockSource(rate physic.Frequency) *ClockSource {
	return &ClockSource{rate: rate}
}

// Rate returns the source frequency.
func (s *ClockSource) Rate() physic.Frequency {
	return s.rate
}

// Enable ungates the source.
func (s *ClockSource) Enable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.enabled.Store(true)
	s.enables.Inc()
	return nil
}

// Disable gates the source.
func (s *ClockSource) Disable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.enabled.Store(false)
	return nil
}

// Enabled reports whether the source is ungated.
func (s *ClockSource) Enabled() bool {
	return s.enabled.Load()
}

// Enables returns how many times Enable succeeded.
func (s *ClockSource) Enables() int64 {
	return s.enables.Load()
}

// PowerRef counts runtime power references. It implements [hal.PowerRef].
type PowerRef struct {
	held atomic.Int64
	gets atomic.Int64
}

// Get takes a reference.
func (p *PowerRef) Get(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.held.Inc()
	p.gets.Inc()
	return nil
}

// Put drops a reference.
func (p *PowerRef) Put() {
	p.held.Dec()
}

// Held returns the number of outstanding references.
func (p *PowerRef) Held() int64 {
	return p.held.Load()
}

// Gets returns the total number of references taken.
func (p *PowerRef) Gets() int64 {
	return p.gets.Load()
}

var (
	_ hal.Controller   = (*Controller)(nil)
	_ hal.CardDetector = (*Controller)(nil)
	_ hal.Regulator    = (*Regulator)(nil)
	_ hal.PinControl   = (*Pins)(nil)
	_ hal.ClockSource  = (*ClockSource)(nil)
	_ hal.PowerRef     = (*PowerRef)(nil)
)
