package sim

import (
	"errors"
	"fmt"
	"sync"
)

// Card command indices understood by the model.
const (
	cmdGoIdle        = 0
	cmdAllSendCID    = 2
	cmdSendRCA       = 3
	cmdSwitch        = 6
	cmdSelect        = 7
	cmdSendIfCond    = 8
	cmdSendCSD       = 9
	cmdVoltageSwitch = 11
	cmdStop          = 12
	cmdSendStatus    = 13
	cmdSetBlockLen   = 16
	cmdReadSingle    = 17
	cmdReadMulti     = 18
	cmdSetBlockCount = 23
	cmdWriteSingle   = 24
	cmdWriteMulti    = 25
	cmdEraseStart    = 32
	cmdEraseEnd      = 33
	cmdErase         = 38
	cmdSendOpCond    = 41
	cmdAppCmd        = 55
)

// CardState is the card's data transfer state machine position.
type CardState uint8

// Card states (R1 CURRENT_STATE).
const (
	StateIdle  CardState = 0
	StateReady CardState = 1
	StateIdent CardState = 2
	StateStby  CardState = 3
	StateTran  CardState = 4
	StateData  CardState = 5
	StateRcv   CardState = 6
	StatePrg   CardState = 7
)

// R1 card status bits.
const (
	StatusOutOfRange   = 1 << 31
	StatusEraseParam   = 1 << 27
	StatusWPViolation  = 1 << 26
	StatusIllegalCmd   = 1 << 22
	StatusReadyForData = 1 << 8
	StatusAppCmd       = 1 << 5
)

// ocrReady is the ACMD41 response of a powered-up high-capacity card.
const ocrReady = 1<<31 | 1<<30 | 0x00FF8000

// Card errors. The controller turns them into status bits.
var (
	// ErrNoResponse means the card ignored the command.
	ErrNoResponse = errors.New("sim: card did not respond")

	// ErrAddress means a data command addressed blocks outside the card.
	ErrAddress = errors.New("sim: address out of range")
)

// Card models a block-addressed SD card behind the simulated controller.
type Card struct {
	storage Storage
	rca     uint16
	cid     [4]uint32
	csd     [4]uint32

	mu         sync.Mutex
	state      CardState
	appCmd     bool
	blockLen   uint32
	blockCount uint32
	eraseStart uint32
	eraseEnd   uint32
	erases     int
}

// NewCard creates a card backed by storage.
func NewCard(storage Storage) *Card {
	return &Card{
		storage:  storage,
		rca:      0xB368,
		cid:      [4]uint32{0x03534453, 0x55333247, 0x80123456, 0x78014A00},
		csd:      [4]uint32{0x400E0032, 0x5B590000, 0x76B27F80, 0x0A404000},
		blockLen: 512,
	}
}

// Storage returns the backing store.
func (c *Card) Storage() Storage {
	return c.storage
}

// State returns the current card state.
func (c *Card) State() CardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Erases returns the number of ERASE commands executed.
func (c *Card) Erases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.erases
}

// r1 returns the R1 status word for the current state. Must be called with
// c.mu held.
func (c *Card) r1(extra uint32) uint32 {
	s := uint32(c.state)<<9 | extra
	if c.state == StateTran {
		s |= StatusReadyForData
	}
	if c.appCmd {
		s |= StatusAppCmd
	}
	return s
}

// Command executes a command without a data phase and returns the response
// registers.
func (c *Card) Command(index uint8, arg uint32) ([4]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	app := c.appCmd
	c.appCmd = false

	switch index {
	case cmdGoIdle:
		c.state, c.blockCount = StateIdle, 0
		return [4]uint32{}, nil

	case cmdAllSendCID:
		c.state = StateIdent
		return c.cid, nil

	case cmdSendRCA:
		c.state = StateStby
		return [4]uint32{uint32(c.rca)<<16 | uint32(c.state)<<9}, nil

	case cmdSelect:
		resp := [4]uint32{c.r1(0)}
		if uint16(arg>>16) == c.rca {
			c.state = StateTran
		} else {
			c.state = StateStby
		}
		return resp, nil

	case cmdSendIfCond:
		return [4]uint32{arg & 0xFFF}, nil

	case cmdSendCSD:
		return c.csd, nil

	case cmdSendOpCond:
		if !app {
			return [4]uint32{}, ErrNoResponse
		}
		c.state = StateReady
		return [4]uint32{ocrReady}, nil

	case cmdAppCmd:
		c.appCmd = true
		return [4]uint32{c.r1(0)}, nil

	case cmdStop:
		resp := [4]uint32{c.r1(0)}
		if c.state == StateData || c.state == StateRcv {
			c.state = StateTran
		}
		c.blockCount = 0
		return resp, nil

	case cmdSendStatus, cmdSwitch, cmdVoltageSwitch:
		return [4]uint32{c.r1(0)}, nil

	case cmdSetBlockLen:
		if arg == 0 || arg > c.storage.BlockSize() {
			return [4]uint32{c.r1(StatusIllegalCmd)}, nil
		}
		c.blockLen = arg
		return [4]uint32{c.r1(0)}, nil

	case cmdSetBlockCount:
		c.blockCount = arg & 0xFFFF
		return [4]uint32{c.r1(0)}, nil

	case cmdEraseStart:
		c.eraseStart = arg
		return [4]uint32{c.r1(0)}, nil

	case cmdEraseEnd:
		c.eraseEnd = arg
		return [4]uint32{c.r1(0)}, nil

	case cmdErase:
		if c.eraseEnd < c.eraseStart {
			return [4]uint32{c.r1(StatusEraseParam)}, nil
		}
		resp := [4]uint32{c.r1(0)}
		n := uint64(c.eraseEnd-c.eraseStart) + 1
		if err := c.storage.Erase(uint64(c.eraseStart), n); err != nil {
			return [4]uint32{c.r1(StatusOutOfRange)}, fmt.Errorf("%w: erase %d+%d", ErrAddress, c.eraseStart, n)
		}
		c.erases++
		return resp, nil

	case cmdReadSingle, cmdReadMulti, cmdWriteSingle, cmdWriteMulti:
		return [4]uint32{c.r1(0)}, nil
	}

	return [4]uint32{}, ErrNoResponse
}

// ReadBlocks executes the data phase of a read command.
func (c *Card) ReadBlocks(lba uint32, blocks uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.storage.Read(uint64(lba), blocks, buf); err != nil {
		return fmt.Errorf("%w: read %d+%d: %w", ErrAddress, lba, blocks, err)
	}
	c.state = StateData
	c.endPrecounted()
	return nil
}

// WriteBlocks executes the data phase of a write command.
func (c *Card) WriteBlocks(lba uint32, blocks uint32, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.storage.Write(uint64(lba), blocks, buf); err != nil {
		return fmt.Errorf("%w: write %d+%d: %w", ErrAddress, lba, blocks, err)
	}
	c.state = StateRcv
	c.endPrecounted()
	return nil
}

// endPrecounted returns the card to the transfer state if the data phase was
// bounded by SET_BLOCK_COUNT. Must be called with c.mu held.
func (c *Card) endPrecounted() {
	if c.blockCount != 0 {
		c.state, c.blockCount = StateTran, 0
	}
}

// EndTransfer returns the card to the transfer state after a data phase that
// needs no stop command.
func (c *Card) EndTransfer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateData || c.state == StateRcv {
		c.state = StateTran
	}
	c.blockCount = 0
}
