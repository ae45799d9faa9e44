package host

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Platform holds the board collaborators around the controller. Every field
// is optional.
type Platform struct {
	CardDetect hal.CardDetector
	Clock      hal.ClockSource
	VMMC       hal.Regulator // Card supply
	VQMMC      hal.Regulator // I/O signalling supply
	Pins       hal.PinControl
	Power      hal.PowerRef
}

// Host drives one SD/MMC controller. It runs at most one [Request] at a time.
//
// All fields below mu are shared by the submission path, the interrupt
// handler, the deadline timer and the completion goroutine.
type Host struct {
	ctrl hal.Controller
	cfg  Config
	plat Platform
	clk  clock.Clock

	// busMu serializes SetClock, SetPowerMode and SetSignalVoltage. The bus
	// state they own stays stable while they drop mu around platform calls.
	// Acquired before mu.
	busMu sync.Mutex

	mu sync.Mutex

	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Bus state
	clockRate    physic.Frequency // Actual card clock; zero when gated
	clockRequest physic.Frequency // Rate last asked for
	sourceOn     bool
	power        PowerMode
	vmmcOn       bool
	vqmmcOn      bool
	busWidth     hal.BusWidth
	timing       hal.Timing
	signal       physic.ElectricPotential

	timeoutCycles  uint32
	maxBusyTimeout time.Duration

	// In-flight request
	req       *Request
	cmd       *Command
	auto      AutoMode
	filter    hal.IRQ
	pending   hal.IRQ
	mapped    *DataTransfer
	powerHeld bool

	// Deadline
	timer    *clock.Timer
	timerGen uint64

	// Completion handoff
	finishQueued bool
	finish       chan struct{}
	workerDone   chan struct{}

	stats counters
}

type counters struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	faults    atomic.Uint64
	timeouts  atomic.Uint64
	noMedium  atomic.Uint64
	irqs      atomic.Uint64
	spurious  atomic.Uint64
	storms    atomic.Uint64
}

// Stats is a snapshot of the host's request and interrupt counters.
type Stats struct {
	Submitted uint64 // Requests accepted by Submit
	Completed uint64 // Completion callbacks run
	Faults    uint64 // Requests ended by a controller-reported error
	Timeouts  uint64 // Requests ended by the deadline
	NoMedium  uint64 // Requests ended without a card
	IRQs      uint64 // Interrupts handled
	Spurious  uint64 // Interrupts with no command waiting for them
	Storms    uint64 // Drain loops that did not settle
}

// State is a snapshot of the host's bus and request state.
type State struct {
	Clock          physic.Frequency
	Power          PowerMode
	BusWidth       hal.BusWidth
	Timing         hal.Timing
	SignalVoltage  physic.ElectricPotential
	TimeoutCycles  uint32
	MaxBusyTimeout time.Duration

	InFlight  bool
	RequestID string
	Opcode    uint8 // Active command, valid if InFlight
	Auto      AutoMode
	Filter    hal.IRQ
	Pending   hal.IRQ
}

// New creates a host for ctrl. The configuration is validated; a zero
// BaseClock is taken from plat.Clock.
func New(ctrl hal.Controller, cfg Config, plat Platform) (*Host, error) {
	if ctrl == nil {
		return nil, pkg.NewConfigurationError("controller", pkg.ErrInvalidConfig)
	}
	if cfg.BaseClock == 0 && plat.Clock != nil {
		cfg.BaseClock = plat.Clock.Rate()
	}
	if cfg.DMA == nil {
		cfg.DMA = SingleRun{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Host{
		ctrl:          ctrl,
		cfg:           cfg,
		plat:          plat,
		clk:           clk,
		busWidth:      hal.BusWidth1,
		timing:        hal.TimingLegacy,
		signal:        cfg.DefaultSignalVoltage,
		timeoutCycles: hal.TimeoutMax - 1,
	}, nil
}

// Start resets the controller, installs the interrupt handler and starts
// the completion goroutine. When ctx is done the host stops accepting
// requests, lets the one in flight complete and then stops as [Host.Stop]
// would.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return pkg.ErrAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.finish = make(chan struct{}, 1)
	h.workerDone = make(chan struct{})
	h.finishQueued = false

	h.ctrl.ArmInterrupts(0)
	h.ctrl.Reset(hal.ResetAll)
	h.ctrl.SetInterruptHandler(h.HandleIRQ)

	h.running = true
	go h.finishWorker(h.ctx, h.finish, h.workerDone)

	pkg.LogInfo(pkg.ComponentHost, "host started",
		"base_clock", h.cfg.BaseClock,
		"dma", h.cfg.DMA,
		"auto_stop", h.cfg.Caps.AutoStop,
		"auto_precount", h.cfg.Caps.AutoPrecount)
	return nil
}

// Stop detaches the interrupt handler and stops the completion goroutine.
// It fails with [pkg.ErrBusy] while a request is in flight. It must not be
// called from a completion callback.
func (h *Host) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	if h.req != nil {
		h.mu.Unlock()
		return pkg.ErrBusy
	}

	h.running = false
	h.cancel()
	h.ctrl.ArmInterrupts(0)
	h.ctrl.SetInterruptHandler(nil)
	done := h.workerDone
	h.mu.Unlock()

	<-done

	pkg.LogInfo(pkg.ComponentHost, "host stopped")
	return nil
}

// IsRunning returns true if the host is running.
func (h *Host) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// State returns a snapshot of the bus and request state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := State{
		Clock:          h.clockRate,
		Power:          h.power,
		BusWidth:       h.busWidth,
		Timing:         h.timing,
		SignalVoltage:  h.signal,
		TimeoutCycles:  h.timeoutCycles,
		MaxBusyTimeout: h.maxBusyTimeout,
		Auto:           h.auto,
		Filter:         h.filter,
		Pending:        h.pending,
	}
	if h.req != nil {
		s.InFlight = true
		s.RequestID = h.req.id
	}
	if h.cmd != nil {
		s.Opcode = h.cmd.Opcode
	}
	return s
}

// Stats returns a snapshot of the counters.
func (h *Host) Stats() Stats {
	return Stats{
		Submitted: h.stats.submitted.Load(),
		Completed: h.stats.completed.Load(),
		Faults:    h.stats.faults.Load(),
		Timeouts:  h.stats.timeouts.Load(),
		NoMedium:  h.stats.noMedium.Load(),
		IRQs:      h.stats.irqs.Load(),
		Spurious:  h.stats.spurious.Load(),
		Storms:    h.stats.storms.Load(),
	}
}

// CardDetect reports whether a card is present. Non-removable slots and
// slots without a detector always report true.
func (h *Host) CardDetect() bool {
	if h.cfg.Caps.NonRemovable || h.plat.CardDetect == nil {
		return true
	}
	return h.plat.CardDetect.CardPresent()
}

// WriteProtect reports the write-protect switch. The controller has none.
func (h *Host) WriteProtect() bool {
	return false
}

// CardBusy reports whether the card holds DAT0 low.
func (h *Host) CardBusy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.ctrl.DataLine0()
}

// HardwareReset power-cycles the card and restores the clock, bus width,
// timing and signalling level that were in effect.
func (h *Host) HardwareReset(ctx context.Context) error {
	h.mu.Lock()
	if h.req != nil {
		h.mu.Unlock()
		return pkg.ErrBusy
	}
	rate, width, timing, signal := h.clockRequest, h.busWidth, h.timing, h.signal
	h.mu.Unlock()

	pkg.LogInfo(pkg.ComponentHost, "hardware reset", "clock", rate, "signal", signal)

	if err := h.SetPowerMode(ctx, PowerOff); err != nil {
		return err
	}
	if err := h.SetClock(ctx, 0); err != nil {
		return err
	}

	if d := h.cfg.PowerCycleDelay; d > 0 {
		t := h.clk.Timer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	h.mu.Lock()
	h.ctrl.Reset(hal.ResetAll)
	h.mu.Unlock()

	var err error
	if err = h.SetPowerMode(ctx, PowerOn); err != nil {
		return err
	}
	err = multierr.Append(err, h.SetSignalVoltage(ctx, signal))
	if rate > 0 {
		err = multierr.Append(err, h.SetClock(ctx, rate))
	}
	err = multierr.Append(err, h.SetBusWidth(width))
	err = multierr.Append(err, h.SetTiming(timing))
	return err
}
