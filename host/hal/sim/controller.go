package sim

import (
	"log/slog"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// DefaultBoundary is the SDMA address boundary at which a transfer pauses.
const DefaultBoundary = 4096

// Registers is a snapshot of the simulated controller's register state.
type Registers struct {
	BlockSize     uint32
	BlockCount    uint32
	AutoArgument  uint32
	SysAddress    uint64
	DataTimeout   uint32
	ClockDivider  uint32
	InternalClock bool
	CardClock     bool
	BusPower      bool
	BusWidth      hal.BusWidth
	Timing        hal.Timing
	Signalling    hal.Signalling
	Enabled       hal.IRQ
	Status        hal.IRQ
}

// dmaJob is a data phase in progress. The whole transfer is buffered; the
// engine moves it to or from memory one boundary window at a time.
type dmaJob struct {
	read   bool
	lba    uint32
	blocks uint32
	buf    []byte
	off    int
	auto12 bool
	fault  hal.IRQ
	paused bool
}

// Controller is an in-memory SD host controller implementing
// [hal.Controller] with a [Card] attached.
//
// Register writes take effect immediately; command execution and DMA run on
// a single goroutine, which also delivers interrupts to the installed
// handler. The handler is never called with the controller's lock held.
type Controller struct {
	card     *Card
	mem      *Memory
	boundary uint32
	log      *slog.Logger

	mu      sync.Mutex
	handler hal.InterruptHandler
	present bool
	regs    Registers
	resp    [4]uint32
	job     *dmaJob
	busy    bool
	gen     uint64
	stuck   bool

	faults map[uint8]hal.IRQ
	hangs  map[uint8]bool
	bus    []uint8
	writes int

	work []func()
	kick chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithBoundary sets the SDMA boundary in bytes (a power of two).
func WithBoundary(n uint32) Option {
	return func(c *Controller) {
		c.boundary = n
	}
}

// WithLogger sets the logger for bus events. The default is the shared
// logger at the time NewController runs, tagged with the sim component.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// NewController creates a controller with card inserted and DMA access to
// mem, and starts its execution goroutine.
func NewController(card *Card, mem *Memory, opts ...Option) *Controller {
	c := &Controller{
		card:     card,
		mem:      mem,
		boundary: DefaultBoundary,
		log:      pkg.Logger(pkg.ComponentSim),
		present:  card != nil,
		faults:   make(map[uint8]hal.IRQ),
		hangs:    make(map[uint8]bool),
		kick:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetRegisters()
	go c.run()
	return c
}

// Close stops the execution goroutine.
func (c *Controller) Close() error {
	c.once.Do(func() {
		close(c.quit)
		<-c.done
	})
	return nil
}

// Card returns the attached card.
func (c *Controller) Card() *Card {
	return c.card
}

// Memory returns the DMA arena.
func (c *Controller) Memory() *Memory {
	return c.mem
}

// run executes queued work and delivers interrupts until Close.
func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			return
		case <-c.kick:
		}

		for {
			c.mu.Lock()
			if len(c.work) == 0 {
				c.mu.Unlock()
				break
			}
			item := c.work[0]
			c.work = c.work[1:]
			item()
			raised := c.regs.Status != 0
			h := c.handler
			c.mu.Unlock()

			if raised && h != nil {
				h()
			}

			select {
			case <-c.quit:
				return
			default:
			}
		}
	}
}

// enqueue schedules fn on the execution goroutine. fn is skipped if the
// controller is reset first. Must be called with c.mu held.
func (c *Controller) enqueue(fn func()) {
	gen := c.gen
	c.work = append(c.work, func() {
		if c.gen == gen {
			fn()
		}
	})
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// raise latches enabled status bits. Must be called with c.mu held.
func (c *Controller) raise(bits hal.IRQ) {
	c.regs.Status |= bits & c.regs.Enabled
}

func (c *Controller) resetRegisters() {
	c.regs = Registers{BusWidth: hal.BusWidth1, Timing: hal.TimingLegacy, Signalling: hal.Signal330}
	c.resp = [4]uint32{}
	c.job = nil
	c.busy = false
	c.work = nil
	c.gen++
}

// SetInterruptHandler installs the handler called when status is raised.
func (c *Controller) SetInterruptHandler(h hal.InterruptHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetCommand queues cw for execution.
func (c *Controller) SetCommand(cw hal.CommandWord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.enqueue(func() { c.execute(cw) })
}

// SetBlockSize programs the block size register.
func (c *Controller) SetBlockSize(size uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.BlockSize = size
}

// SetBlockCount programs the block count register.
func (c *Controller) SetBlockCount(count uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.BlockCount = count & 0xFFFF
}

// SetAutoArgument programs the auto SET_BLOCK_COUNT argument.
func (c *Controller) SetAutoArgument(arg uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.AutoArgument = arg
}

// SetSysAddress programs the DMA address, resuming a paused transfer.
func (c *Controller) SetSysAddress(addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.SysAddress = addr
	if job := c.job; job != nil && job.paused {
		job.paused = false
		c.enqueue(func() { c.dmaStep(job) })
	}
}

// SysAddress returns the DMA address register.
func (c *Controller) SysAddress() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs.SysAddress
}

// SetDataTimeout programs the data timeout counter.
func (c *Controller) SetDataTimeout(cycles uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.DataTimeout = cycles
}

// ReadResponse returns the response registers.
func (c *Controller) ReadResponse() [4]uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resp
}

// Reset resets the selected logic. Queued work is discarded.
func (c *Controller) Reset(mask hal.ResetMask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++

	if mask&hal.ResetAll != 0 {
		c.resetRegisters()
		return
	}
	c.gen++
	c.work = nil
	if mask&hal.ResetData != 0 {
		c.job = nil
		c.busy = false
	}
}

// ArmInterrupts sets the status and signal enable mask. Latched bits outside
// the mask are dropped.
func (c *Controller) ArmInterrupts(mask hal.IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.Enabled = mask
	c.regs.Status &= mask
}

// ReadStatus returns the latched status.
func (c *Controller) ReadStatus() hal.IRQ {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs.Status
}

// ClearStatus acknowledges status bits.
func (c *Controller) ClearStatus(bits hal.IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs.Status &^= bits
}

// SetClockDivider programs the clock divider.
func (c *Controller) SetClockDivider(div uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.ClockDivider = div
}

// EnableInternalClock gates the internal clock.
func (c *Controller) EnableInternalClock(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.InternalClock = on
}

// ClockStable reports whether the internal clock is running and settled.
func (c *Controller) ClockStable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs.InternalClock && !c.stuck
}

// EnableCardClock gates the card clock.
func (c *Controller) EnableCardClock(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.CardClock = on
}

// SetBusPower switches bus power.
func (c *Controller) SetBusPower(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.BusPower = on
}

// SetBusWidth programs the bus width.
func (c *Controller) SetBusWidth(w hal.BusWidth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.BusWidth = w
}

// SetTiming programs the timing mode.
func (c *Controller) SetTiming(t hal.Timing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.Timing = t
}

// SetSignalVoltage programs the signalling level.
func (c *Controller) SetSignalVoltage(s hal.Signalling) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	c.regs.Signalling = s
}

// DataLine0 returns the DAT0 level; low while the card is busy.
func (c *Controller) DataLine0() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.busy
}

// CardPresent implements [hal.CardDetector].
func (c *Controller) CardPresent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// SetCardPresent inserts or removes the card, raising the matching card
// detect status.
func (c *Controller) SetCardPresent(present bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if present == c.present || c.card == nil {
		return
	}
	c.present = present
	if present {
		c.raise(hal.IRQCardInsert)
	} else {
		c.raise(hal.IRQCardRemove)
	}
	c.enqueue(func() {})
}

// InjectFault makes the next execution of opcode raise bits. Command error
// bits replace the command response, data error bits replace the data
// phase's completion, and IRQAutoCmdErr fails the auto-command issued with
// it. Opcode 23 or 12 with IRQAutoCmdErr fails the auto-command itself.
func (c *Controller) InjectFault(opcode uint8, bits hal.IRQ) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[opcode] |= bits
}

// Hang makes every execution of opcode go unanswered until ClearFaults.
func (c *Controller) Hang(opcode uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hangs[opcode] = true
}

// ClearFaults removes injected faults and hangs.
func (c *Controller) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.faults)
	clear(c.hangs)
}

// StickClock makes the internal clock never report stable.
func (c *Controller) StickClock(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = stuck
}

// Bus returns the opcodes that reached the card, in order, including
// automatically issued commands.
func (c *Controller) Bus() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.bus...)
}

// ResetBus clears the bus log.
func (c *Controller) ResetBus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = nil
}

// Writes returns the number of register writes so far.
func (c *Controller) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Registers returns a snapshot of the register state.
func (c *Controller) Registers() Registers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs
}

// takeFault consumes the injected fault for opcode. Must be called with
// c.mu held.
func (c *Controller) takeFault(opcode uint8) hal.IRQ {
	f := c.faults[opcode]
	delete(c.faults, opcode)
	return f
}

func (c *Controller) cardReady() bool {
	return c.present && c.regs.BusPower && c.regs.InternalClock && c.regs.CardClock
}

// execute runs one command on the bus. Called on the execution goroutine
// with c.mu held.
func (c *Controller) execute(cw hal.CommandWord) {
	if !c.cardReady() {
		c.log.Debug("no card response", "cmd", cw.Index)
		c.raise(hal.IRQCmdTimeout)
		return
	}

	if cw.Auto == hal.AutoCmd23 {
		c.bus = append(c.bus, cmdSetBlockCount)
		if c.takeFault(cmdSetBlockCount)&hal.IRQAutoCmdErr != 0 {
			c.raise(hal.IRQAutoCmdErr)
			return
		}
		if _, err := c.card.Command(cmdSetBlockCount, c.regs.AutoArgument); err != nil {
			c.raise(hal.IRQAutoCmdErr)
			return
		}
	}

	if c.hangs[cw.Index] {
		c.log.Debug("hang", "cmd", cw.Index)
		c.bus = append(c.bus, cw.Index)
		c.busy = cw.Response == hal.Resp48Busy
		return
	}

	fault := c.takeFault(cw.Index)
	c.bus = append(c.bus, cw.Index)
	if errs := fault & hal.IRQCmdErrors; errs != 0 {
		c.raise(errs)
		return
	}

	resp, err := c.card.Command(cw.Index, cw.Arg)
	if err != nil {
		c.log.Debug("card error", "cmd", cw.Index, "error", err)
		if resp == ([4]uint32{}) {
			c.raise(hal.IRQCmdTimeout)
			return
		}
	}
	if cw.Response != hal.RespNone {
		c.resp = resp
	}
	c.raise(hal.IRQCmdComplete)

	switch {
	case cw.Data:
		c.startData(cw, fault)
	case cw.Response == hal.Resp48Busy:
		if errs := fault & hal.IRQDataErrors; errs != 0 || err != nil {
			if errs == 0 {
				errs = hal.IRQDataTimeout
			}
			c.raise(errs)
			return
		}
		c.raise(hal.IRQTransferComplete)
	}
}

// startData begins the data phase of cw. Must be called with c.mu held.
func (c *Controller) startData(cw hal.CommandWord, fault hal.IRQ) {
	blocks := uint32(1)
	if cw.Multi && cw.BlockCount {
		blocks = c.regs.BlockCount
	}

	job := &dmaJob{
		read:   cw.Read,
		lba:    cw.Arg,
		blocks: blocks,
		buf:    make([]byte, int(blocks)*int(c.regs.BlockSize)),
		auto12: cw.Auto == hal.AutoCmd12,
		fault:  fault & (hal.IRQDataErrors | hal.IRQADMAErr | hal.IRQAutoCmdErr),
	}

	if job.read {
		if err := c.card.ReadBlocks(job.lba, job.blocks, job.buf); err != nil {
			c.log.Debug("read failed", "error", err)
			c.raise(hal.IRQDataTimeout)
			return
		}
	}

	c.job = job
	c.enqueue(func() { c.dmaStep(job) })
}

// dmaStep moves data until the next boundary or the end of the transfer.
// Called on the execution goroutine with c.mu held.
func (c *Controller) dmaStep(job *dmaJob) {
	if c.job != job {
		return
	}
	if errs := job.fault & (hal.IRQDataErrors | hal.IRQADMAErr); errs != 0 {
		c.job = nil
		c.raise(errs)
		return
	}

	for job.off < len(job.buf) {
		addr := c.regs.SysAddress
		chunk := int(uint64(c.boundary) - addr%uint64(c.boundary))
		if rest := len(job.buf) - job.off; chunk > rest {
			chunk = rest
		}

		var err error
		if job.read {
			_, err = c.mem.WriteAt(job.buf[job.off:job.off+chunk], int64(addr))
		} else {
			_, err = c.mem.ReadAt(job.buf[job.off:job.off+chunk], int64(addr))
		}
		if err != nil {
			c.log.Debug("DMA fault", "addr", addr, "error", err)
			c.job = nil
			c.raise(hal.IRQADMAErr)
			return
		}

		job.off += chunk
		c.regs.SysAddress = addr + uint64(chunk)

		if job.off < len(job.buf) && c.regs.SysAddress%uint64(c.boundary) == 0 &&
			c.regs.Enabled&hal.IRQDMASegment != 0 {
			job.paused = true
			c.raise(hal.IRQDMASegment)
			return
		}
	}

	c.job = nil

	if !job.read {
		if err := c.card.WriteBlocks(job.lba, job.blocks, job.buf); err != nil {
			c.log.Debug("write failed", "error", err)
			c.raise(hal.IRQDataCRC)
			return
		}
	}

	if job.auto12 {
		c.bus = append(c.bus, cmdStop)
		if job.fault&hal.IRQAutoCmdErr != 0 || c.takeFault(cmdStop)&hal.IRQAutoCmdErr != 0 {
			c.raise(hal.IRQAutoCmdErr)
			return
		}
		c.card.Command(cmdStop, 0)
	} else if job.blocks == 1 {
		c.card.EndTransfer()
	}

	c.raise(hal.IRQTransferComplete)
}
