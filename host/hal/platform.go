package hal

import (
	"context"

	"periph.io/x/conn/v3/physic"
)

// The interfaces below are platform collaborators. Unlike [Controller], their
// methods may block and are always called without the core's lock held.

// CardDetector reports card presence for removable slots.
type CardDetector interface {
	// CardPresent reports whether a card is in the slot.
	CardPresent() bool
}

// ClockSource is the parent clock feeding the controller.
type ClockSource interface {
	// Rate returns the base clock frequency.
	Rate() physic.Frequency

	// Enable prepares and ungates the source clock.
	Enable(ctx context.Context) error

	// Disable gates and unprepares the source clock.
	Disable(ctx context.Context) error
}

// Regulator is a switchable, optionally adjustable supply rail.
type Regulator interface {
	// Enable switches the rail on.
	Enable(ctx context.Context) error

	// Disable switches the rail off.
	Disable(ctx context.Context) error

	// SetVoltage ramps the rail to a level within [min, max].
	SetVoltage(ctx context.Context, min, max physic.ElectricPotential) error
}

// PinState names a pin-control configuration.
type PinState string

// Pin-control states.
const (
	PinStateDefault PinState = "default"   // 3.3 V signalling
	PinStateUHS     PinState = "state_uhs" // 1.8 V and lower signalling
	PinStateSleep   PinState = "sleep"     // Power off
)

// PinControl selects pad configurations.
type PinControl interface {
	// Select applies the named state.
	Select(ctx context.Context, state PinState) error
}

// PowerRef is a runtime power reference held while a request is in flight.
type PowerRef interface {
	// Get takes a reference, resuming the controller if needed.
	Get(ctx context.Context) error

	// Put drops a reference taken by Get.
	Put()
}
