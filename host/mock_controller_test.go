package host

import (
	"fmt"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
)

// =============================================================================
// Mock Register Layer for Testing
// =============================================================================

// mockController implements hal.Controller for testing. Tests latch status
// with raise and run the handler themselves with irq.
type mockController struct {
	mu sync.Mutex

	handler hal.InterruptHandler

	// Interrupt state
	status  hal.IRQ
	sticky  hal.IRQ // Re-asserted after every clear
	enabled hal.IRQ
	armed   []hal.IRQ

	// Command path
	commands   []hal.CommandWord
	resets     []hal.ResetMask
	resp       [4]uint32
	blockSize  uint32
	blockCount uint32
	autoArgs   []uint32
	sysAddr    uint64
	sysWrites  []uint64
	timeouts   []uint32

	// Clock and bus
	dividers  []uint32
	intClock  bool
	cardClock bool
	unstable  bool
	busPower  bool
	width     hal.BusWidth
	timing    hal.Timing
	signal    hal.Signalling
	dat0Low   bool

	// ops is every register write in order.
	ops []string
}

func newMockController() *mockController {
	return &mockController{width: hal.BusWidth1}
}

func (m *mockController) record(format string, args ...any) {
	m.ops = append(m.ops, fmt.Sprintf(format, args...))
}

func (m *mockController) SetInterruptHandler(h hal.InterruptHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *mockController) SetCommand(cw hal.CommandWord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, cw)
	m.record("cmd%d", cw.Index)
}

func (m *mockController) SetBlockSize(size uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockSize = size
	m.record("blksz=%d", size)
}

func (m *mockController) SetBlockCount(count uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockCount = count
	m.record("blkcnt=%d", count)
}

func (m *mockController) SetAutoArgument(arg uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoArgs = append(m.autoArgs, arg)
	m.record("autoarg=%d", arg)
}

func (m *mockController) SetSysAddress(addr uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sysAddr = addr
	m.sysWrites = append(m.sysWrites, addr)
	m.record("sysaddr=%#x", addr)
}

func (m *mockController) SysAddress() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sysAddr
}

func (m *mockController) SetDataTimeout(cycles uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = append(m.timeouts, cycles)
	m.record("timeout=%d", cycles)
}

func (m *mockController) ReadResponse() [4]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resp
}

func (m *mockController) Reset(mask hal.ResetMask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, mask)
	m.record("reset=%d", mask)
}

func (m *mockController) ArmInterrupts(mask hal.IRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = mask
	m.armed = append(m.armed, mask)
	m.record("arm=%v", mask)
}

func (m *mockController) ReadStatus() hal.IRQ {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) ClearStatus(bits hal.IRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status &^= bits
	m.status |= m.sticky
}

func (m *mockController) SetClockDivider(div uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dividers = append(m.dividers, div)
	m.record("div=%d", div)
}

func (m *mockController) EnableInternalClock(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intClock = on
	m.record("intclk=%t", on)
}

func (m *mockController) ClockStable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intClock && !m.unstable
}

func (m *mockController) EnableCardClock(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardClock = on
	m.record("cardclk=%t", on)
}

func (m *mockController) SetBusPower(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busPower = on
	m.record("buspower=%t", on)
}

func (m *mockController) SetBusWidth(w hal.BusWidth) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width = w
	m.record("width=%d", w)
}

func (m *mockController) SetTiming(t hal.Timing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timing = t
	m.record("timing=%s", t)
}

func (m *mockController) SetSignalVoltage(s hal.Signalling) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signal = s
	m.record("signal=%d", s)
}

func (m *mockController) DataLine0() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dat0Low
}

// raise latches status bits.
func (m *mockController) raise(bits hal.IRQ) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status |= bits
}

// irq latches bits and runs the installed handler.
func (m *mockController) irq(bits hal.IRQ) hal.IRQReturn {
	m.raise(bits)
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return hal.IRQNone
	}
	return h()
}

// opcodes returns the indices of every command written.
func (m *mockController) opcodes() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]uint8, len(m.commands))
	for i, cw := range m.commands {
		ops[i] = cw.Index
	}
	return ops
}

// lastCommand returns the most recent command word.
func (m *mockController) lastCommand() hal.CommandWord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands[len(m.commands)-1]
}

// writes returns the number of register writes so far.
func (m *mockController) writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops)
}

// lastTimeout returns the most recent data timeout programmed.
func (m *mockController) lastTimeout() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeouts[len(m.timeouts)-1]
}

// lastArmed returns the interrupt mask currently enabled.
func (m *mockController) lastArmed() hal.IRQ {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

var _ hal.Controller = (*mockController)(nil)
