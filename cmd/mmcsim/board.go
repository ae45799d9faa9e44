package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/hal/sim"
	"github.com/ardnew/softmmc/pkg"
)

const (
	blockSize = 512

	// opSendOpCond is SD_SEND_OP_COND, sent after APP_CMD.
	opSendOpCond = 41

	// ifCondArg asks for 2.7-3.6V with check pattern 0xAA.
	ifCondArg = 0x1AA

	// opCondArg requests high capacity at 2.7-3.6V.
	opCondArg = 0x40FF8000

	sourceRate = 200 * physic.MegaHertz
)

// board is a powered simulated slot with an identified card. Requests are
// serialized through one DMA bounce buffer.
type board struct {
	host    *host.Host
	ctrl    *sim.Controller
	card    *sim.Card
	mem     *sim.Memory
	storage sim.Storage
	rca     uint16

	// sbc ends multi-block transfers with a block count rather than a stop.
	sbc bool

	sem    *semaphore.Weighted
	bounce host.Segment
}

// openBoard builds the slot described by o, starts the host and brings the
// card to the transfer state.
func openBoard(ctx context.Context, o *options) (b *board, err error) {
	ios, err := o.bus()
	if err != nil {
		return nil, err
	}

	var storage sim.Storage
	if o.image != "" {
		fs, err := sim.NewFileStorage(o.image, blockSize, o.readOnly)
		if err != nil {
			return nil, err
		}
		storage = fs
	} else {
		ms := sim.NewMemoryStorage(o.blocks*blockSize, blockSize)
		ms.SetReadOnly(o.readOnly)
		storage = ms
	}

	b = &board{
		storage: storage,
		card:    sim.NewCard(storage),
		mem:     sim.NewMemory(sim.DefaultMemoryBase, 2*host.MaxTransferBytes),
		sbc:     !o.noSbc,
		sem:     semaphore.NewWeighted(1),
	}

	var simOpts []sim.Option
	if o.boundary != 0 {
		simOpts = append(simOpts, sim.WithBoundary(o.boundary))
	}
	b.ctrl = sim.NewController(b.card, b.mem, simOpts...)

	defer func() {
		if err != nil {
			err = multierr.Append(err, b.Close())
			b = nil
		}
	}()

	addr, err := b.mem.Alloc(host.MaxTransferBytes, 4096)
	if err != nil {
		return b, err
	}
	b.bounce = host.Segment{Addr: addr, Len: host.MaxTransferBytes}

	b.host, err = host.New(b.ctrl, o.config(), host.Platform{
		CardDetect: b.ctrl,
		Clock:      sim.NewClockSource(sourceRate),
		VMMC:       sim.NewRegulator("vmmc", host.Voltage330, host.Voltage330),
		VQMMC:      sim.NewRegulator("vqmmc", host.Voltage180, host.Voltage330),
		Pins:       &sim.Pins{},
		Power:      &sim.PowerRef{},
	})
	if err != nil {
		return b, err
	}
	if err = b.host.Start(ctx); err != nil {
		return b, err
	}

	err = b.host.SetIOS(ctx, host.IOS{
		Power:    host.PowerOn,
		Clock:    host.ClockInit,
		BusWidth: hal.BusWidth1,
		Timing:   hal.TimingLegacy,
	})
	if err != nil {
		return b, err
	}
	if err = b.identify(ctx); err != nil {
		return b, fmt.Errorf("identify: %w", err)
	}
	return b, b.host.SetIOS(ctx, ios)
}

// Close stops the host, the simulator and the backing store.
func (b *board) Close() error {
	var err error
	if b.host != nil && b.host.IsRunning() {
		err = b.host.Stop()
	}
	err = multierr.Append(err, b.ctrl.Close())
	if c, ok := b.storage.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// do runs req to completion and returns its combined error.
func (b *board) do(ctx context.Context, req *host.Request) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)
	return b.run(ctx, req)
}

// run submits req and waits for it. The caller holds sem.
func (b *board) run(ctx context.Context, req *host.Request) error {
	done := make(chan struct{})
	req.Done = func(*host.Request) { close(done) }
	if err := b.host.Submit(ctx, req); err != nil {
		return err
	}
	// The deadline guarantees completion; ctx is not consulted here.
	<-done
	return req.Err()
}

// command runs a command without data and returns its response.
func (b *board) command(ctx context.Context, op uint8, arg uint32, resp host.ResponseType) ([4]uint32, error) {
	req := &host.Request{Cmd: &host.Command{Opcode: op, Arg: arg, Response: resp}}
	err := b.do(ctx, req)
	return req.Cmd.Resp, err
}

// identify walks the card from idle to the transfer state.
func (b *board) identify(ctx context.Context) error {
	steps := []struct {
		op   uint8
		arg  func() uint32
		resp host.ResponseType
		save func([4]uint32)
	}{
		{op: host.OpGoIdleState, resp: host.RespNone},
		{op: host.OpSendIfCond, arg: func() uint32 { return ifCondArg }, resp: host.RespShort},
		{op: host.OpAppCmd, resp: host.RespShort},
		{op: opSendOpCond, arg: func() uint32 { return opCondArg }, resp: host.RespShort},
		{op: host.OpAllSendCID, resp: host.RespLong},
		{op: host.OpSendRelativeAddr, resp: host.RespShort, save: func(r [4]uint32) { b.rca = uint16(r[0] >> 16) }},
		{op: host.OpSelectCard, arg: func() uint32 { return uint32(b.rca) << 16 }, resp: host.RespShortBusy},
	}

	for _, s := range steps {
		var arg uint32
		if s.arg != nil {
			arg = s.arg()
		}
		resp, err := b.command(ctx, s.op, arg, s.resp)
		if err != nil {
			return err
		}
		if s.save != nil {
			s.save(resp)
		}
	}

	if st := b.card.State(); st != sim.StateTran {
		return fmt.Errorf("%w: card in state %d after select", pkg.ErrProtocol, st)
	}
	pkg.LogInfo(pkg.ComponentHost, "card identified", "rca", fmt.Sprintf("%#04x", b.rca))
	return nil
}

// blockRequest builds a block transfer through the bounce buffer. Multi-block
// transfers are bounded by SET_BLOCK_COUNT or ended by STOP_TRANSMISSION;
// the host decides whether software or the controller sends it.
func (b *board) blockRequest(dir host.Direction, lba, blocks uint32) *host.Request {
	op := uint8(host.OpReadSingleBlock)
	switch {
	case dir == host.DirRead && blocks > 1:
		op = host.OpReadMultipleBlock
	case dir == host.DirWrite && blocks > 1:
		op = host.OpWriteMultipleBlock
	case dir == host.DirWrite:
		op = host.OpWriteBlock
	}

	req := &host.Request{Cmd: &host.Command{
		Opcode:   op,
		Arg:      lba,
		Response: host.RespShort,
		Data: &host.DataTransfer{
			Dir:       dir,
			BlockSize: blockSize,
			Blocks:    blocks,
			SG:        []host.Segment{{Addr: b.bounce.Addr, Len: blocks * blockSize}},
		},
	}}
	switch {
	case blocks == 1:
	case b.sbc:
		req.Sbc = &host.Command{Opcode: host.OpSetBlockCount, Arg: blocks, Response: host.RespShort}
	default:
		req.Stop = &host.Command{Opcode: host.OpStopTransmission, Response: host.RespShortBusy}
	}
	return req
}

// maxBlocks is the largest block count one request moves.
const maxBlocks = host.MaxTransferBytes / blockSize

// readBlocks reads count blocks starting at lba.
func (b *board) readBlocks(ctx context.Context, lba, count uint32) ([]byte, error) {
	if count == 0 || count > maxBlocks {
		return nil, fmt.Errorf("%w: %d blocks", pkg.ErrTooManyBlocks, count)
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.sem.Release(1)

	if err := b.run(ctx, b.blockRequest(host.DirRead, lba, count)); err != nil {
		return nil, err
	}
	p := make([]byte, count*blockSize)
	if _, err := b.mem.ReadAt(p, int64(b.bounce.Addr)); err != nil {
		return nil, err
	}
	return p, nil
}

// writeBlocks writes p, a whole number of blocks, starting at lba.
func (b *board) writeBlocks(ctx context.Context, lba uint32, p []byte) error {
	count := uint32(len(p) / blockSize)
	if len(p)%blockSize != 0 || count == 0 || count > maxBlocks {
		return fmt.Errorf("%w: %d bytes", pkg.ErrInvalidRequest, len(p))
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	if _, err := b.mem.WriteAt(p, int64(b.bounce.Addr)); err != nil {
		return err
	}
	return b.run(ctx, b.blockRequest(host.DirWrite, lba, count))
}

// erase erases blocks start through end inclusive.
func (b *board) erase(ctx context.Context, start, end uint32, busy time.Duration) error {
	if _, err := b.command(ctx, host.OpEraseWrBlkStart, start, host.RespShort); err != nil {
		return err
	}
	if _, err := b.command(ctx, host.OpEraseWrBlkEnd, end, host.RespShort); err != nil {
		return err
	}
	req := &host.Request{Cmd: &host.Command{
		Opcode:      host.OpErase,
		Response:    host.RespShortBusy,
		BusyTimeout: busy,
	}}
	return b.do(ctx, req)
}
