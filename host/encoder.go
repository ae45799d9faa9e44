package host

import (
	"fmt"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Interrupt patterns for commands with a data phase.
const (
	writeSingleFilter = hal.IRQTransferComplete | hal.IRQDataTimeout | hal.IRQDataCRC | hal.IRQADMAErr
	writeMultiFilter  = writeSingleFilter | hal.IRQDMASegment
	readSingleFilter  = writeSingleFilter | hal.IRQDataEndBit
	readMultiFilter   = readSingleFilter | hal.IRQDMASegment
)

const (
	cmdFilter  = hal.IRQCmdComplete | hal.IRQCmdErrors
	busyFilter = hal.IRQTransferComplete | hal.IRQDataTimeout
)

// encodeResponse maps a response class to its register encoding and checks.
func encodeResponse(r ResponseType) (enc hal.ResponseEncoding, crc, index bool, err error) {
	switch r {
	case RespNone:
		return hal.RespNone, false, false, nil
	case RespShort:
		return hal.Resp48, true, true, nil
	case RespShortBusy:
		return hal.Resp48Busy, true, true, nil
	case RespLong:
		return hal.Resp136, true, false, nil
	default:
		return 0, false, false, fmt.Errorf("%w: %s", pkg.ErrUnsupportedResponse, r)
	}
}

// isMultiBlock reports whether cmd moves more than one block.
func isMultiBlock(cmd *Command) bool {
	return (cmd.Data != nil && cmd.Data.Blocks > 1) || isMultiBlockOpcode(cmd.Opcode)
}

// interruptSets returns the interrupt filter and the completion bits the
// command must see before it is done. carriesAuto reports whether the
// controller issues an auto-command alongside it.
func (h *Host) interruptSets(cmd *Command, carriesAuto bool) (filter, pending hal.IRQ) {
	filter, pending = cmdFilter, hal.IRQCmdComplete

	switch {
	case cmd.Data != nil:
		filter |= dataFilter(cmd.Data.Dir, isMultiBlock(cmd))
		pending |= hal.IRQTransferComplete
	case cmd.Response == RespShortBusy:
		filter |= busyFilter
		pending |= hal.IRQTransferComplete
	}

	if h.auto == AutoNone || carriesAuto {
		filter |= hal.IRQAutoCmdErr
	}
	return filter, pending
}

func dataFilter(dir Direction, multi bool) hal.IRQ {
	switch {
	case dir == DirRead && multi:
		return readMultiFilter
	case dir == DirRead:
		return readSingleFilter
	case multi:
		return writeMultiFilter
	default:
		return writeSingleFilter
	}
}

// validateCommand checks cmd without touching hardware.
func (h *Host) validateCommand(field string, cmd *Command) error {
	if _, _, _, err := encodeResponse(cmd.Response); err != nil {
		return pkg.NewConfigurationError(field+".response", err)
	}
	return nil
}

// validateData checks a data phase's shape without touching hardware.
func (h *Host) validateData(data *DataTransfer) error {
	switch {
	case data.Dir != DirRead && data.Dir != DirWrite:
		return pkg.NewConfigurationError("data.dir",
			fmt.Errorf("%w: direction %s", pkg.ErrInvalidRequest, data.Dir))
	case data.BlockSize == 0 || data.Blocks == 0:
		return pkg.NewConfigurationError("data",
			fmt.Errorf("%w: %d blocks of %d bytes", pkg.ErrInvalidRequest, data.Blocks, data.BlockSize))
	case data.BlockSize > h.cfg.MaxBlockSize:
		return pkg.NewConfigurationError("data.blksz",
			fmt.Errorf("%w: %d > %d", pkg.ErrBlockTooLarge, data.BlockSize, h.cfg.MaxBlockSize))
	case data.Blocks > hal.MaxBlockCount:
		return pkg.NewConfigurationError("data.blocks",
			fmt.Errorf("%w: %d > %d", pkg.ErrTooManyBlocks, data.Blocks, hal.MaxBlockCount))
	case data.Len() > MaxTransferBytes:
		return pkg.NewConfigurationError("data",
			fmt.Errorf("%w: %d > %d bytes", pkg.ErrTransferTooLarge, data.Len(), MaxTransferBytes))
	}
	_, err := h.mapRuns(data)
	return err
}

// issue programs and starts cmd. Must be called with h.mu held and a request
// in flight.
func (h *Host) issue(cmd *Command) {
	req := h.req
	h.cmd = cmd

	enc, crc, index, _ := encodeResponse(cmd.Response)
	cw := hal.CommandWord{
		Index:      cmd.Opcode,
		Arg:        cmd.Arg,
		Response:   enc,
		CRCCheck:   crc,
		IndexCheck: index,
	}

	carriesAuto := cmd == req.Cmd && h.auto == AutoStop && cmd.Data != nil
	if carriesAuto {
		cw.Auto = hal.AutoCmd12
	}

	if data := cmd.Data; data != nil {
		h.prepareData(data)
		cw.Data = true
		cw.Read = data.Dir == DirRead
		cw.Multi = isMultiBlock(cmd)
		cw.BlockCount = true
		cw.DMA = true
	}

	deadline := h.cfg.RequestTimeout
	if IsEraseClass(cmd.Opcode) {
		h.ctrl.SetDataTimeout(hal.TimeoutMax)
		deadline = cmd.BusyTimeout + eraseTimeoutSlack
	} else {
		h.ctrl.SetDataTimeout(h.timeoutCycles)
	}

	h.filter, h.pending = h.interruptSets(cmd, carriesAuto)
	h.ctrl.ArmInterrupts(h.filter)
	h.armDeadline(deadline)

	pkg.LogDebug(pkg.ComponentDispatch, "issue",
		"req", req.id,
		"cmd", cmd,
		"arg", fmt.Sprintf("%#08x", cmd.Arg),
		"resp", enc,
		"auto", cw.Auto,
		"filter", h.filter,
		"deadline", deadline.Round(time.Millisecond))

	h.ctrl.SetCommand(cw)
}
