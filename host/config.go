package host

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/pkg"
)

// Caps are the controller capabilities resolved from platform data.
type Caps struct {
	// AutoStop means the controller can issue STOP_TRANSMISSION itself.
	AutoStop bool

	// AutoPrecount means the controller supports precounted transfers, where
	// SET_BLOCK_COUNT replaces STOP_TRANSMISSION and auto-stop stays off.
	AutoPrecount bool

	// NonRemovable means the card is soldered down; presence is not queried.
	NonRemovable bool
}

// Config holds host configuration. It is resolved before [New] and not
// changed afterward.
type Config struct {
	// BaseClock is the controller's input clock. Zero takes the rate of
	// the platform clock source.
	BaseClock physic.Frequency

	// MaxDivider is the largest value the clock divider register holds.
	MaxDivider uint32

	// MaxBlockSize is the largest block length the controller accepts.
	MaxBlockSize uint32

	Caps Caps

	// DMA is the scatter-list capability of the DMA engine.
	DMA DMAMode

	// DefaultSignalVoltage is the signalling level after power up.
	DefaultSignalVoltage physic.ElectricPotential

	// RequestTimeout is the software deadline for non-erase commands.
	RequestTimeout time.Duration

	// DataTimeout is the hardware data timeout programmed at each clock
	// change, converted to card clock cycles.
	DataTimeout time.Duration

	// PowerCycleDelay is how long the rails stay off during HardwareReset.
	PowerCycleDelay time.Duration

	// Clock provides timers for the request deadline. Nil uses the wall clock.
	Clock clock.Clock
}

// Default configuration values.
const (
	DefaultRequestTimeout  = 10 * time.Second
	DefaultDataTimeout     = 500 * time.Millisecond
	DefaultPowerCycleDelay = 10 * time.Millisecond

	// eraseTimeoutSlack is added to an erase command's declared busy time.
	eraseTimeoutSlack = 1000 * time.Millisecond
)

// DefaultConfig returns a configuration for an SDMA-capable controller with
// both auto-commands and a removable slot.
func DefaultConfig() Config {
	return Config{
		MaxDivider:           DefaultMaxDivider,
		MaxBlockSize:         DefaultMaxBlockSize,
		Caps:                 Caps{AutoStop: true, AutoPrecount: true},
		DMA:                  SingleRun{},
		DefaultSignalVoltage: Voltage330,
		RequestTimeout:       DefaultRequestTimeout,
		DataTimeout:          DefaultDataTimeout,
		PowerCycleDelay:      DefaultPowerCycleDelay,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.BaseClock <= 0:
		return c.invalid("base clock", "must be positive")
	case c.MaxDivider == 0:
		return c.invalid("max divider", "must be non-zero")
	case c.MaxBlockSize == 0 || c.MaxBlockSize > 2048:
		return c.invalid("max block size", fmt.Sprintf("%d outside 1..2048", c.MaxBlockSize))
	case c.RequestTimeout <= 0:
		return c.invalid("request timeout", "must be positive")
	case c.DataTimeout <= 0:
		return c.invalid("data timeout", "must be positive")
	case c.PowerCycleDelay < 0:
		return c.invalid("power cycle delay", "must not be negative")
	}

	switch c.DefaultSignalVoltage {
	case Voltage330, Voltage180, Voltage120:
	default:
		return c.invalid("signal voltage", c.DefaultSignalVoltage.String())
	}

	switch m := c.DMA.(type) {
	case nil, SingleRun:
	case DescriptorChain:
		return pkg.NewConfigurationError("dma",
			fmt.Errorf("%w: %s: %w", pkg.ErrInvalidConfig, m, pkg.ErrNotSupported))
	default:
		return c.invalid("dma", fmt.Sprintf("unknown mode %T", m))
	}

	return nil
}

func (c *Config) invalid(field, reason string) error {
	return pkg.NewConfigurationError(field, fmt.Errorf("%w: %s", pkg.ErrInvalidConfig, reason))
}
