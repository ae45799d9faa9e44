package host

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Command opcodes used by the controller core and the simulated card
// (SD Physical Layer Simplified Specification / JESD84).
const (
	OpGoIdleState        = 0  // GO_IDLE_STATE
	OpAllSendCID         = 2  // ALL_SEND_CID
	OpSendRelativeAddr   = 3  // SEND_RELATIVE_ADDR
	OpSwitch             = 6  // SWITCH / SWITCH_FUNC
	OpSelectCard         = 7  // SELECT/DESELECT_CARD
	OpSendIfCond         = 8  // SEND_IF_COND / SEND_EXT_CSD
	OpSendCSD            = 9  // SEND_CSD
	OpVoltageSwitch      = 11 // VOLTAGE_SWITCH
	OpStopTransmission   = 12 // STOP_TRANSMISSION
	OpSendStatus         = 13 // SEND_STATUS
	OpSetBlockLen        = 16 // SET_BLOCKLEN
	OpReadSingleBlock    = 17 // READ_SINGLE_BLOCK
	OpReadMultipleBlock  = 18 // READ_MULTIPLE_BLOCK
	OpSetBlockCount      = 23 // SET_BLOCK_COUNT
	OpWriteBlock         = 24 // WRITE_BLOCK
	OpWriteMultipleBlock = 25 // WRITE_MULTIPLE_BLOCK
	OpEraseWrBlkStart    = 32 // ERASE_WR_BLK_START
	OpEraseWrBlkEnd      = 33 // ERASE_WR_BLK_END
	OpEraseGroupStart    = 35 // ERASE_GROUP_START (MMC)
	OpEraseGroupEnd      = 36 // ERASE_GROUP_END (MMC)
	OpErase              = 38 // ERASE
	OpAppCmd             = 55 // APP_CMD
)

// IsEraseClass reports whether opcode starts an erase or discard whose busy
// period is bounded by the command's declared timeout, not the default.
func IsEraseClass(opcode uint8) bool {
	return opcode == OpErase
}

// isMultiBlockOpcode reports whether opcode is an open-ended block transfer.
func isMultiBlockOpcode(opcode uint8) bool {
	return opcode == OpReadMultipleBlock || opcode == OpWriteMultipleBlock
}

// Transfer limits.
const (
	// MaxTransferBytes is the largest block size times block count the
	// single-run DMA window accepts.
	MaxTransferBytes = 512 * 1024

	// DefaultMaxBlockSize is the controller's maximum block length.
	DefaultMaxBlockSize = 512

	// DefaultMaxDivider is the largest value of the 10-bit clock divider.
	DefaultMaxDivider = 0x3FF
)

// Standard signalling levels.
const (
	Voltage330 = 3300 * physic.MilliVolt
	Voltage180 = 1800 * physic.MilliVolt
	Voltage120 = 1200 * physic.MilliVolt
)

// Standard bus clock rates.
const (
	ClockInit   = 400 * physic.KiloHertz // Identification mode
	ClockLegacy = 25 * physic.MegaHertz  // Default speed
	ClockHS     = 50 * physic.MegaHertz  // High speed
	ClockHS200  = 200 * physic.MegaHertz // HS200 / SDR104
)

// ResponseType is the response class a command expects.
type ResponseType uint8

// Response classes.
const (
	RespNone      ResponseType = iota // No response
	RespShort                         // 48-bit (R1, R3, R6, R7)
	RespShortBusy                     // 48-bit followed by busy on DAT0 (R1b)
	RespLong                          // 136-bit (R2)
)

// String returns the response class name.
func (r ResponseType) String() string {
	switch r {
	case RespNone:
		return "none"
	case RespShort:
		return "short"
	case RespShortBusy:
		return "short-busy"
	case RespLong:
		return "long"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// Direction is the data phase direction.
type Direction uint8

// Data directions.
const (
	DirRead  Direction = iota // Card to host
	DirWrite                  // Host to card
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirRead:
		return "read"
	case DirWrite:
		return "write"
	default:
		return fmt.Sprintf("unknown(%d)", d)
	}
}

// AutoMode is the auto-command selection for the in-flight request.
type AutoMode uint8

// Auto-command selections. AutoStop and AutoPrecount are never both active.
const (
	AutoNone     AutoMode = iota // Every command is issued by software
	AutoStop                     // Controller issues the stop command
	AutoPrecount                 // Card is precounted; no stop command is sent
)

// String returns the selection name.
func (a AutoMode) String() string {
	switch a {
	case AutoNone:
		return "none"
	case AutoStop:
		return "auto-stop"
	case AutoPrecount:
		return "auto-precount"
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// PowerMode is the bus power state.
type PowerMode uint8

// Power modes.
const (
	PowerOff PowerMode = iota // Rails off, pins parked
	PowerUp                   // Card rail on, I/O rail off
	PowerOn                   // Both rails on
)

// String returns the power mode name.
func (p PowerMode) String() string {
	switch p {
	case PowerOff:
		return "off"
	case PowerUp:
		return "up"
	case PowerOn:
		return "on"
	default:
		return fmt.Sprintf("unknown(%d)", p)
	}
}
