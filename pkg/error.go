package pkg

import (
	"errors"
	"fmt"
)

// Bus protocol errors reported through a request's completion callback.
var (
	// ErrTimeout indicates a command, busy wait or data phase timed out.
	ErrTimeout = errors.New("timeout")

	// ErrCRC indicates a CRC, end-bit or index error on the command or data lines.
	ErrCRC = errors.New("CRC error")

	// ErrDMA indicates a DMA descriptor fault.
	ErrDMA = errors.New("DMA fault")

	// ErrNoMedium indicates the card was not present at submission.
	ErrNoMedium = errors.New("no medium")

	// ErrProtocol indicates a protocol violation by the controller.
	ErrProtocol = errors.New("protocol error")

	// ErrIRQStorm indicates the interrupt drain loop did not settle.
	ErrIRQStorm = fmt.Errorf("%w: interrupt storm", ErrProtocol)
)

// Host lifecycle and usage errors returned directly to the caller.
var (
	// ErrBusy indicates a request is already in flight.
	ErrBusy = errors.New("request in flight")

	// ErrNotRunning indicates the host has not been started.
	ErrNotRunning = errors.New("not running")

	// ErrAlreadyRunning indicates the host is already started.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotSupported indicates an unsupported operation or setting.
	ErrNotSupported = errors.New("not supported")
)

// Configuration errors. Each is returned wrapped in a [ConfigurationError].
var (
	// ErrConfiguration matches every [ConfigurationError] with errors.Is.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidRequest indicates a malformed request (missing command, bad data shape).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBlockTooLarge indicates a block size above the controller maximum.
	ErrBlockTooLarge = errors.New("block size too large")

	// ErrTooManyBlocks indicates a block count above the 16-bit counter.
	ErrTooManyBlocks = errors.New("too many blocks")

	// ErrTransferTooLarge indicates block size times count above the DMA window.
	ErrTransferTooLarge = errors.New("transfer too large")

	// ErrTooManySegments indicates a scatter list the DMA mode cannot describe.
	ErrTooManySegments = errors.New("too many scatter segments")

	// ErrUnsupportedResponse indicates a response class with no register encoding.
	ErrUnsupportedResponse = errors.New("unsupported response type")

	// ErrInvalidConfig indicates invalid host configuration.
	ErrInvalidConfig = errors.New("invalid host configuration")
)

// ConfigurationError reports caller-supplied data the controller cannot
// execute. It is always returned before any register is written.
type ConfigurationError struct {
	Op  string // Operation or field that was rejected
	Err error  // Underlying reason
}

// NewConfigurationError wraps err with the rejected operation.
func NewConfigurationError(op string, err error) *ConfigurationError {
	return &ConfigurationError{Op: op, Err: err}
}

// Error implements error.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Op, e.Err)
}

// Unwrap returns the underlying reason.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is reports true for [ErrConfiguration].
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
