package hal

// ResponseEncoding is the command register encoding of the expected response.
type ResponseEncoding uint8

// Response encodings.
const (
	RespNone   ResponseEncoding = iota // No response
	Resp136                            // 136-bit response (R2)
	Resp48                             // 48-bit response (R1, R3, R6, R7)
	Resp48Busy                         // 48-bit response followed by DAT0 busy (R1b)
)

// String returns the encoding name.
func (r ResponseEncoding) String() string {
	switch r {
	case RespNone:
		return "none"
	case Resp136:
		return "136"
	case Resp48:
		return "48"
	case Resp48Busy:
		return "48busy"
	default:
		return "invalid"
	}
}

// AutoCmd selects a command the controller issues without software.
type AutoCmd uint8

// Auto-command modes.
const (
	AutoCmdNone AutoCmd = iota // Disabled
	AutoCmd12                  // Issue STOP_TRANSMISSION after the data phase
	AutoCmd23                  // Issue SET_BLOCK_COUNT (auto argument) before the command
)

// String returns the mode name.
func (a AutoCmd) String() string {
	switch a {
	case AutoCmd12:
		return "auto-cmd12"
	case AutoCmd23:
		return "auto-cmd23"
	default:
		return "none"
	}
}

// CommandWord is the decoded content of the command and transfer mode
// registers. Writing it starts the command on the bus.
type CommandWord struct {
	Index      uint8            // Command index (opcode)
	Arg        uint32           // Command argument
	Response   ResponseEncoding // Response type select
	CRCCheck   bool             // Check response CRC
	IndexCheck bool             // Check response index
	Data       bool             // Data present on DAT lines
	Read       bool             // Card to host when Data is set
	Multi      bool             // Multiple block transfer
	BlockCount bool             // Block count register is valid
	DMA        bool             // Use DMA for the data phase
	Auto       AutoCmd          // Automatically issued command
}

// ResetMask selects controller logic to reset.
type ResetMask uint8

// Reset targets.
const (
	ResetCmd  ResetMask = 1 << 0 // Command line state machine
	ResetData ResetMask = 1 << 1 // Data line state machine and DMA
	ResetAll  ResetMask = 1 << 2 // Whole controller
)

// BusWidth is the number of data lines in use.
type BusWidth uint8

// Bus widths.
const (
	BusWidth1 BusWidth = 1
	BusWidth4 BusWidth = 4
	BusWidth8 BusWidth = 8
)

// Timing is the bus timing mode.
type Timing uint8

// Timing modes.
const (
	TimingLegacy Timing = iota // Default speed
	TimingHS                   // High speed, SDR
	TimingSDR50
	TimingSDR104
	TimingDDR50
	TimingHS200
	TimingHS400
)

// String returns the timing name.
func (t Timing) String() string {
	switch t {
	case TimingLegacy:
		return "legacy"
	case TimingHS:
		return "hs"
	case TimingSDR50:
		return "sdr50"
	case TimingSDR104:
		return "sdr104"
	case TimingDDR50:
		return "ddr50"
	case TimingHS200:
		return "hs200"
	case TimingHS400:
		return "hs400"
	default:
		return "unknown"
	}
}

// Signalling is the I/O signalling level programmed into the controller.
type Signalling uint8

// Signalling levels.
const (
	Signal330 Signalling = iota // 3.3 V
	Signal180                   // 1.8 V
	Signal120                   // 1.2 V
)

// Timeout limits, in card clock cycles.
const (
	// TimeoutMax is the sentinel that disables the hardware data timeout
	// counter; it is also the longest interval the counter can measure.
	TimeoutMax uint32 = 1 << 27
)

// MaxBlockCount is the largest value of the 16-bit block count register.
const MaxBlockCount = 65535

// Controller is the register-layer contract beneath the controller core.
//
// Implementations translate each operation into register accesses. None of
// the methods may block: they are called with the core's lock held, from
// interrupt, timer and submission contexts alike.
type Controller interface {
	// SetInterruptHandler installs the handler run when the interrupt line
	// is asserted. A nil handler detaches it.
	SetInterruptHandler(h InterruptHandler)

	// Command and data path

	// SetCommand writes the argument, transfer mode and command registers,
	// starting the command.
	SetCommand(cw CommandWord)

	// SetBlockSize programs the block size register in bytes.
	SetBlockSize(size uint32)

	// SetBlockCount programs the 16-bit block count register.
	SetBlockCount(count uint32)

	// SetAutoArgument programs the argument of an automatically issued
	// SET_BLOCK_COUNT.
	SetAutoArgument(arg uint32)

	// SetSysAddress programs the DMA system address. Writing it while a
	// transfer is paused at a boundary resumes the transfer.
	SetSysAddress(addr uint64)

	// SysAddress returns the current DMA system address.
	SysAddress() uint64

	// SetDataTimeout programs the data timeout counter in card clock
	// cycles. TimeoutMax disables the counter.
	SetDataTimeout(cycles uint32)

	// ReadResponse returns the response registers. Short responses are in
	// word 0.
	ReadResponse() [4]uint32

	// Reset resets the selected controller logic.
	Reset(mask ResetMask)

	// Interrupts

	// ArmInterrupts sets the interrupt signal enable mask. Zero disables all.
	ArmInterrupts(mask IRQ)

	// ReadStatus returns the raw interrupt status.
	ReadStatus() IRQ

	// ClearStatus acknowledges the given status bits.
	ClearStatus(bits IRQ)

	// Clock

	// SetClockDivider programs the card clock divider. The card clock is
	// base / (2 * (div + 1)).
	SetClockDivider(div uint32)

	// EnableInternalClock gates the controller's internal clock.
	EnableInternalClock(on bool)

	// ClockStable reports whether the internal clock has settled.
	ClockStable() bool

	// EnableCardClock gates the bus-facing card clock.
	EnableCardClock(on bool)

	// Bus

	// SetBusPower switches the controller's bus power output.
	SetBusPower(on bool)

	// SetBusWidth programs the data bus width.
	SetBusWidth(w BusWidth)

	// SetTiming programs the timing mode.
	SetTiming(t Timing)

	// SetSignalVoltage programs the signalling level.
	SetSignalVoltage(s Signalling)

	// DataLine0 returns the level of DAT0. Low means the card is busy.
	DataLine0() bool
}
