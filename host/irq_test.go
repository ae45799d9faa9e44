package host

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// =============================================================================
// Single Command Tests
// =============================================================================

func TestRequest_SingleBlockRead(t *testing.T) {
	th := newTestHost(t)
	th.ctrl.resp = [4]uint32{0x900}

	req := readRequest(OpReadSingleBlock, 1)
	th.submit(t, req)

	cw := th.ctrl.lastCommand()
	require.Equal(t, uint8(OpReadSingleBlock), cw.Index)
	require.Equal(t, uint32(8), cw.Arg)
	require.Equal(t, hal.Resp48, cw.Response)
	require.True(t, cw.CRCCheck)
	require.True(t, cw.IndexCheck)
	require.True(t, cw.Data)
	require.True(t, cw.Read)
	require.False(t, cw.Multi)
	require.True(t, cw.DMA)
	require.Equal(t, hal.AutoCmdNone, cw.Auto)
	require.Equal(t, cmdFilter|readSingleFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())
	require.Equal(t, hal.TimeoutMax-1, th.ctrl.lastTimeout())

	require.Equal(t, hal.IRQHandled, th.ctrl.irq(hal.IRQCmdComplete))
	th.idle(t)
	require.Equal(t, hal.IRQTransferComplete, th.State().Pending)

	th.ctrl.irq(hal.IRQTransferComplete)
	done := th.wait(t)

	require.NoError(t, done.Err())
	require.Equal(t, uint32(512), done.Data.BytesXfered)
	require.Equal(t, uint32(0x900), done.Cmd.Resp[0])
	require.Zero(t, th.ctrl.lastArmed())

	s := th.Stats()
	require.EqualValues(t, 1, s.Submitted)
	require.EqualValues(t, 1, s.Completed)
	require.EqualValues(t, 2, s.IRQs)
	require.Zero(t, s.Faults)
}

func TestRequest_NoResponse(t *testing.T) {
	th := newTestHost(t)
	th.ctrl.resp = [4]uint32{0xDEAD}

	req := &Request{Cmd: &Command{Opcode: OpGoIdleState, Response: RespNone}}
	th.submit(t, req)

	cw := th.ctrl.lastCommand()
	require.Equal(t, hal.RespNone, cw.Response)
	require.False(t, cw.CRCCheck)
	require.False(t, cw.IndexCheck)

	th.ctrl.irq(hal.IRQCmdComplete)
	require.Zero(t, th.wait(t).Cmd.Resp, "response read for a command without one")
}

func TestRequest_LongResponse(t *testing.T) {
	th := newTestHost(t)
	th.ctrl.resp = [4]uint32{1, 2, 3, 4}

	req := &Request{Cmd: &Command{Opcode: OpSendCSD, Arg: 0xB368 << 16, Response: RespLong}}
	th.submit(t, req)

	cw := th.ctrl.lastCommand()
	require.Equal(t, hal.Resp136, cw.Response)
	require.True(t, cw.CRCCheck)
	require.False(t, cw.IndexCheck)

	th.ctrl.irq(hal.IRQCmdComplete)
	require.Equal(t, [4]uint32{1, 2, 3, 4}, th.wait(t).Cmd.Resp)
}

func TestRequest_BusyCommand(t *testing.T) {
	th := newTestHost(t)
	req := &Request{Cmd: &Command{Opcode: OpSelectCard, Arg: 0xB368 << 16, Response: RespShortBusy}}
	th.submit(t, req)

	require.Equal(t, hal.Resp48Busy, th.ctrl.lastCommand().Response)
	require.Equal(t, cmdFilter|busyFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())

	th.ctrl.irq(hal.IRQCmdComplete)
	th.idle(t)

	th.ctrl.irq(hal.IRQTransferComplete)
	require.NoError(t, th.wait(t).Err())
}

func TestRequest_BusyTimeoutChargedToCommand(t *testing.T) {
	th := newTestHost(t)
	req := &Request{Cmd: &Command{Opcode: OpSelectCard, Response: RespShortBusy}}
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQDataTimeout)
	done := th.wait(t)
	require.ErrorIs(t, done.Cmd.Err, pkg.ErrTimeout)
	require.Nil(t, done.Data)
}

func TestRequest_UnfilteredErrorIgnored(t *testing.T) {
	th := newTestHost(t)
	th.submit(t, statusRequest())

	// A data CRC error means nothing to a command without a data phase.
	th.ctrl.irq(hal.IRQDataCRC)
	th.idle(t)
	require.True(t, th.State().InFlight)

	th.ctrl.irq(hal.IRQCmdComplete)
	require.NoError(t, th.wait(t).Err())
	require.Zero(t, th.Stats().Faults)
}

// =============================================================================
// Multi-Block and Auto-Command Tests
// =============================================================================

func TestRequest_AutoStop(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true, AutoPrecount: true}))
	req := readRequest(OpReadMultipleBlock, 4)
	req.Stop = stopCommand()
	th.submit(t, req)

	cw := th.ctrl.lastCommand()
	require.Equal(t, hal.AutoCmd12, cw.Auto)
	require.True(t, cw.Multi)
	require.True(t, cw.BlockCount)
	require.Equal(t, cmdFilter|readMultiFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	done := th.wait(t)

	require.NoError(t, done.Err())
	require.Equal(t, uint32(4*512), done.Data.BytesXfered)
	require.Equal(t, []uint8{OpReadMultipleBlock}, th.ctrl.opcodes(), "stop sent by software")
}

func TestRequest_ExplicitStop(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{}))
	req := writeRequest(OpWriteMultipleBlock, 4)
	req.Stop = stopCommand()
	th.submit(t, req)

	require.Equal(t, hal.AutoCmdNone, th.ctrl.lastCommand().Auto)
	require.Equal(t, cmdFilter|writeMultiFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	th.idle(t)
	require.Equal(t, []uint8{OpWriteMultipleBlock, OpStopTransmission}, th.ctrl.opcodes())

	stop := th.ctrl.lastCommand()
	require.False(t, stop.Data)
	require.Equal(t, hal.Resp48Busy, stop.Response)
	require.Equal(t, cmdFilter|busyFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	done := th.wait(t)
	require.NoError(t, done.Err())
	require.Equal(t, uint32(4*512), done.Data.BytesXfered)
}

func TestRequest_AutoPrecount(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true, AutoPrecount: true}))
	th.ctrl.resp = [4]uint32{0x900}
	req := readRequest(OpReadMultipleBlock, 8)
	req.Sbc = sbcCommand(8)
	req.Stop = stopCommand()
	th.submit(t, req)

	require.Equal(t, []uint8{OpSetBlockCount}, th.ctrl.opcodes(), "sub-command sent first")
	require.Equal(t, hal.AutoCmdNone, th.ctrl.lastCommand().Auto)
	require.Equal(t, uint32(8), th.ctrl.lastCommand().Arg)
	require.Equal(t, cmdFilter, th.ctrl.lastArmed(), "auto-command errors masked while precounted")

	th.ctrl.irq(hal.IRQCmdComplete)
	require.Equal(t, []uint8{OpSetBlockCount, OpReadMultipleBlock}, th.ctrl.opcodes())
	cw := th.ctrl.lastCommand()
	require.Equal(t, hal.AutoCmdNone, cw.Auto, "auto-stop never joins a precounted transfer")
	require.True(t, cw.BlockCount)
	require.Empty(t, th.ctrl.autoArgs)

	th.ctrl.mu.Lock()
	th.ctrl.resp = [4]uint32{0xA00}
	th.ctrl.mu.Unlock()
	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	done := th.wait(t)
	require.NoError(t, done.Err())
	require.Equal(t, [4]uint32{0x900}, done.Sbc.Resp)
	require.Equal(t, [4]uint32{0xA00}, done.Cmd.Resp)
	require.Equal(t, uint32(8*512), done.Data.BytesXfered)
	require.Equal(t, []uint8{OpSetBlockCount, OpReadMultipleBlock}, th.ctrl.opcodes(), "stop sent after a precounted transfer")
}

func TestRequest_SbcBeforePrimary(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true}))
	req := writeRequest(OpWriteMultipleBlock, 2)
	req.Sbc = sbcCommand(2)
	req.Stop = stopCommand()
	th.submit(t, req)

	require.Equal(t, []uint8{OpSetBlockCount}, th.ctrl.opcodes())
	require.Empty(t, th.ctrl.sysWrites, "data mapped before the sub-command completed")
	require.Equal(t, hal.AutoCmdNone, th.ctrl.lastCommand().Auto)

	th.ctrl.irq(hal.IRQCmdComplete)
	require.Equal(t, []uint8{OpSetBlockCount, OpWriteMultipleBlock}, th.ctrl.opcodes())
	require.Equal(t, hal.AutoCmdNone, th.ctrl.lastCommand().Auto)
	require.Equal(t, cmdFilter|writeMultiFilter|hal.IRQAutoCmdErr, th.ctrl.lastArmed())

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	require.NoError(t, th.wait(t).Err())
	require.Equal(t, []uint8{OpSetBlockCount, OpWriteMultipleBlock}, th.ctrl.opcodes())
}

func TestRequest_SbcFaultSkipsPrimary(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{}))
	req := readRequest(OpReadMultipleBlock, 2)
	req.Sbc = sbcCommand(2)
	req.Stop = stopCommand()
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdTimeout)
	done := th.wait(t)

	require.ErrorIs(t, done.Sbc.Err, pkg.ErrTimeout)
	require.NoError(t, done.Cmd.Err)
	require.NoError(t, done.Stop.Err)
	require.Equal(t, []uint8{OpSetBlockCount}, th.ctrl.opcodes())
	require.ErrorContains(t, done.Err(), "CMD23")
	require.Equal(t, []hal.ResetMask{hal.ResetAll, hal.ResetCmd | hal.ResetData}, th.ctrl.resets)
}

// =============================================================================
// Fault Routing Tests
// =============================================================================

func TestRequest_DataCRCChargedToData(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{}))
	req := readRequest(OpReadMultipleBlock, 4)
	req.Stop = stopCommand()
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdComplete)
	th.ctrl.irq(hal.IRQDataCRC)

	// The stuck data phase is aborted with the stop command.
	require.Equal(t, []uint8{OpReadMultipleBlock, OpStopTransmission}, th.ctrl.opcodes())
	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQTransferComplete)
	done := th.wait(t)

	require.ErrorIs(t, done.Data.Err, pkg.ErrCRC)
	require.NoError(t, done.Cmd.Err)
	require.NoError(t, done.Stop.Err)
	require.Zero(t, done.Data.BytesXfered)
	require.ErrorContains(t, done.Err(), "data: CRC error")
	require.EqualValues(t, 1, th.Stats().Faults)
}

func TestRequest_CommandCRCChargedToCommand(t *testing.T) {
	th := newTestHost(t)
	req := readRequest(OpReadSingleBlock, 1)
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdCRC | hal.IRQCmdIndex)
	done := th.wait(t)

	require.ErrorIs(t, done.Cmd.Err, pkg.ErrCRC)
	require.NoError(t, done.Data.Err)
}

func TestRequest_DMAFault(t *testing.T) {
	th := newTestHost(t)
	req := writeRequest(OpWriteBlock, 1)
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQADMAErr)
	require.ErrorIs(t, th.wait(t).Data.Err, pkg.ErrDMA)
}

func TestRequest_AutoStopErrorChargedToStop(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true}))
	req := readRequest(OpReadMultipleBlock, 2)
	req.Stop = stopCommand()
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdComplete | hal.IRQAutoCmdErr)
	done := th.wait(t)

	require.ErrorIs(t, done.Stop.Err, pkg.ErrCRC)
	require.NoError(t, done.Cmd.Err)
	require.Equal(t, []uint8{OpReadMultipleBlock}, th.ctrl.opcodes(), "explicit stop while the controller owns it")
}

func TestRequest_AutoPrecountSbcFault(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoPrecount: true}))
	req := readRequest(OpReadMultipleBlock, 2)
	req.Sbc = sbcCommand(2)
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdCRC)
	done := th.wait(t)

	require.ErrorIs(t, done.Sbc.Err, pkg.ErrCRC)
	require.NoError(t, done.Cmd.Err)
	require.Equal(t, []uint8{OpSetBlockCount}, th.ctrl.opcodes(), "primary skipped")
}

func TestRequest_DMABoundary(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true}))
	req := readRequest(OpReadMultipleBlock, 16)
	req.Stop = stopCommand()
	th.submit(t, req)

	th.ctrl.irq(hal.IRQCmdComplete)

	// The engine paused at a boundary after advancing the address.
	th.ctrl.mu.Lock()
	th.ctrl.sysAddr = 0x2000
	th.ctrl.mu.Unlock()
	th.ctrl.irq(hal.IRQDMASegment)

	th.ctrl.mu.Lock()
	require.Equal(t, []uint64{0x1000, 0x2000}, th.ctrl.sysWrites)
	th.ctrl.mu.Unlock()
	require.Equal(t, hal.IRQTransferComplete, th.State().Pending)
	th.idle(t)

	th.ctrl.irq(hal.IRQTransferComplete)
	done := th.wait(t)
	require.NoError(t, done.Err())
	require.Equal(t, uint32(16*512), done.Data.BytesXfered)
}

// =============================================================================
// Interrupt Handler Tests
// =============================================================================

func TestHandleIRQ_Idle(t *testing.T) {
	th := newTestHost(t)

	require.Equal(t, hal.IRQNone, th.HandleIRQ())

	require.Equal(t, hal.IRQHandled, th.ctrl.irq(hal.IRQCardInsert))
	require.Zero(t, th.ctrl.ReadStatus(), "status not acknowledged")

	s := th.Stats()
	require.EqualValues(t, 1, s.IRQs)
	require.EqualValues(t, 1, s.Spurious)
}

func TestHandleIRQ_LateStatusAfterHandoff(t *testing.T) {
	th := newTestHost(t)
	th.submit(t, statusRequest())

	th.ctrl.irq(hal.IRQCmdCRC)
	th.wait(t)

	th.ctrl.irq(hal.IRQCmdComplete)
	th.idle(t)
	require.EqualValues(t, 1, th.Stats().Spurious)
}

func TestHandleIRQ_Storm(t *testing.T) {
	th := newTestHost(t, withCaps(Caps{AutoStop: true}))
	req := readRequest(OpReadMultipleBlock, 16)
	req.Stop = stopCommand()
	th.submit(t, req)

	th.ctrl.mu.Lock()
	th.ctrl.sticky = hal.IRQDMASegment
	th.ctrl.mu.Unlock()

	th.ctrl.irq(hal.IRQDMASegment)
	done := th.wait(t)

	require.ErrorIs(t, done.Cmd.Err, pkg.ErrIRQStorm)
	require.ErrorIs(t, done.Data.Err, pkg.ErrProtocol)
	require.EqualValues(t, 1, th.Stats().Storms)
	require.Zero(t, th.ctrl.lastArmed())

	th.ctrl.mu.Lock()
	require.Len(t, th.ctrl.sysWrites, 1+maxIRQDrain)
	th.ctrl.sticky = 0
	th.ctrl.mu.Unlock()
}
