package host

import (
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// FaultClass names what a fault bit is charged to.
type FaultClass uint8

// Fault classes.
const (
	FaultCommand FaultClass = iota // The active command
	FaultData                      // The active command's data phase, or its busy wait
	FaultAuto                      // The automatically issued command
)

// String returns the class name.
func (c FaultClass) String() string {
	switch c {
	case FaultCommand:
		return "command"
	case FaultData:
		return "data"
	case FaultAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Fault is the classification of one error status bit.
type Fault struct {
	Bit   hal.IRQ
	Class FaultClass
	Err   error
}

// faultTable is in priority order: when several bits charge the same
// target, the first listed wins.
var faultTable = [...]Fault{
	{hal.IRQCmdTimeout, FaultCommand, pkg.ErrTimeout},
	{hal.IRQCmdCRC, FaultCommand, pkg.ErrCRC},
	{hal.IRQCmdEndBit, FaultCommand, pkg.ErrCRC},
	{hal.IRQCmdIndex, FaultCommand, pkg.ErrCRC},
	{hal.IRQDataTimeout, FaultData, pkg.ErrTimeout},
	{hal.IRQDataCRC, FaultData, pkg.ErrCRC},
	{hal.IRQDataEndBit, FaultData, pkg.ErrCRC},
	{hal.IRQADMAErr, FaultData, pkg.ErrDMA},
	{hal.IRQAutoCmdErr, FaultAuto, pkg.ErrCRC},
}

// ClassifyFault returns the classification of every error bit set in
// status, in priority order.
func ClassifyFault(status hal.IRQ) []Fault {
	var faults []Fault
	for _, f := range faultTable {
		if status&f.Bit != 0 {
			faults = append(faults, f)
		}
	}
	return faults
}

// recordFaults attaches the error of every bit in errs to its target. Must
// be called with h.mu held and a command active.
func (h *Host) recordFaults(errs hal.IRQ) {
	req, cmd := h.req, h.cmd

	for _, f := range ClassifyFault(errs) {
		switch f.Class {
		case FaultCommand:
			setErr(&cmd.Err, f.Err)
		case FaultData:
			if cmd.Data != nil {
				setErr(&cmd.Data.Err, f.Err)
			} else {
				setErr(&cmd.Err, f.Err)
			}
		case FaultAuto:
			setErr(&h.autoTarget(req, cmd).Err, f.Err)
		}
	}
}

// autoTarget returns the command an auto-command error is charged to.
func (h *Host) autoTarget(req *Request, active *Command) *Command {
	switch {
	case h.auto == AutoPrecount && req.Sbc != nil:
		return req.Sbc
	case h.auto == AutoStop && req.Stop != nil:
		return req.Stop
	default:
		return active
	}
}

// setErr stores err in *p unless an error is already recorded there.
func setErr(p *error, err error) {
	if *p == nil {
		*p = err
	}
}
