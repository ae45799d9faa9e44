package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
	"github.com/ardnew/softmmc/pkg/prof"
)

// soakConfig controls a soak run.
type soakConfig struct {
	Workers   int
	Requests  int
	MaxBlocks uint32
	Seed      uint64

	// Hotplug is the period of card removal cycles. Zero disables them.
	Hotplug time.Duration

	// FaultEvery injects a data CRC fault every so often. Zero disables it.
	FaultEvery time.Duration
}

// soakResult tallies a soak run.
type soakResult struct {
	ID        string
	Requests  atomic.Uint64
	Verified  atomic.Uint64
	Tolerated atomic.Uint64
	Removals  atomic.Uint64
	Injected  atomic.Uint64
}

func (r *soakResult) print(w io.Writer) {
	fmt.Fprintf(w, "Soak %s:\n", r.ID)
	fmt.Fprintf(w, "  Requests:   %d\n", r.Requests.Load())
	fmt.Fprintf(w, "  Verified:   %d\n", r.Verified.Load())
	fmt.Fprintf(w, "  Tolerated:  %d\n", r.Tolerated.Load())
	fmt.Fprintf(w, "  Removals:   %d\n", r.Removals.Load())
	fmt.Fprintf(w, "  Injected:   %d\n", r.Injected.Load())
}

// ErrMismatch is returned when a block reads back different from what was
// written.
var ErrMismatch = errors.New("read-back mismatch")

// soak runs cfg.Workers concurrent write/read/verify loops, each on its own
// region of the card, while optionally pulling the card and injecting
// faults. Request failures caused by the disturbances are tolerated;
// corrupt data never is.
func soak(ctx context.Context, b *board, cfg soakConfig) (*soakResult, error) {
	res := &soakResult{ID: xid.New().String()}
	if cfg.Workers <= 0 || cfg.MaxBlocks == 0 || cfg.MaxBlocks > maxBlocks {
		return res, fmt.Errorf("%w: %d workers of up to %d blocks", pkg.ErrInvalidRequest, cfg.Workers, cfg.MaxBlocks)
	}
	region := b.storage.BlockCount() / uint64(cfg.Workers)
	if region < uint64(cfg.MaxBlocks) {
		return res, fmt.Errorf("%w: card too small for %d workers", pkg.ErrInvalidRequest, cfg.Workers)
	}

	pkg.LogInfo(pkg.ComponentHost, "soak started", "id", res.ID,
		"workers", cfg.Workers, "requests", cfg.Requests, "hotplug", cfg.Hotplug)

	chaosCtx, stopChaos := context.WithCancel(ctx)
	var chaos errgroup.Group
	if cfg.Hotplug > 0 {
		chaos.Go(func() error { return b.hotplug(chaosCtx, cfg.Hotplug, res) })
	}
	if cfg.FaultEvery > 0 {
		chaos.Go(func() error { return b.injectFaults(chaosCtx, cfg.FaultEvery, cfg.Seed, res) })
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		base := uint32(uint64(w) * region)
		span := uint32(region)
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(w)))
			return b.soakWorker(gctx, rng, base, span, cfg, res)
		})
	}
	err := g.Wait()

	stopChaos()
	_ = chaos.Wait()
	b.ctrl.SetCardPresent(true)

	pkg.LogInfo(pkg.ComponentHost, "soak finished", "id", res.ID, "error", err)
	return res, err
}

// tolerable reports whether err is an expected consequence of a removal or
// an injected fault.
func tolerable(err error) bool {
	return errors.Is(err, pkg.ErrNoMedium) ||
		errors.Is(err, pkg.ErrTimeout) ||
		errors.Is(err, pkg.ErrCRC)
}

func (b *board) soakWorker(ctx context.Context, rng *rand.Rand, base, span uint32, cfg soakConfig, res *soakResult) error {
	for range cfg.Requests {
		if err := ctx.Err(); err != nil {
			return err
		}

		count := 1 + rng.Uint32N(cfg.MaxBlocks)
		lba := base + rng.Uint32N(span-count+1)
		p := make([]byte, int(count)*blockSize)
		for i := range p {
			p[i] = byte(rng.Uint32())
		}

		res.Requests.Add(2)
		err := b.writeBlocks(ctx, lba, p)
		var got []byte
		if err == nil {
			got, err = b.readBlocks(ctx, lba, count)
		}
		switch {
		case err == nil:
		case tolerable(err):
			res.Tolerated.Inc()
			pkg.LogDebug(pkg.ComponentHost, "tolerated failure", "lba", lba, "blocks", count, "error", err)
			continue
		default:
			return fmt.Errorf("blocks %d+%d: %w", lba, count, err)
		}

		if !bytes.Equal(p, got) {
			return fmt.Errorf("%w: blocks %d+%d", ErrMismatch, lba, count)
		}
		res.Verified.Inc()
	}
	return nil
}

// hotplug pulls the card for a quarter of every period until ctx ends.
func (b *board) hotplug(ctx context.Context, period time.Duration, res *soakResult) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		b.ctrl.SetCardPresent(false)
		res.Removals.Inc()
		select {
		case <-ctx.Done():
		case <-time.After(period / 4):
		}
		b.ctrl.SetCardPresent(true)
	}
}

// injectFaults arms a one-shot data CRC fault on a random block opcode every
// period until ctx ends.
func (b *board) injectFaults(ctx context.Context, period time.Duration, seed uint64, res *soakResult) error {
	ops := []uint8{host.OpReadSingleBlock, host.OpReadMultipleBlock, host.OpWriteBlock, host.OpWriteMultipleBlock}
	rng := rand.New(rand.NewPCG(seed, ^seed))
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		b.ctrl.InjectFault(ops[rng.IntN(len(ops))], hal.IRQDataCRC)
		res.Injected.Inc()
	}
}

var (
	soakCfg  soakConfig
	soakProf prof.Options
)

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "Run concurrent write/verify workers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBoard(cmd, func(ctx context.Context, b *board) (err error) {
			if soakProf.Enabled() {
				session, perr := prof.Start(soakProf)
				if perr != nil {
					return perr
				}
				defer func() { err = multierr.Append(err, session.Stop()) }()
			}

			res, err := soak(ctx, b, soakCfg)
			res.print(cmd.OutOrStdout())
			printStats(cmd.OutOrStdout(), b)
			return err
		})
	},
}

func init() {
	f := soakCmd.Flags()
	f.IntVar(&soakCfg.Workers, "workers", 4, "concurrent workers")
	f.IntVar(&soakCfg.Requests, "requests", 100, "write/verify rounds per worker")
	f.Uint32Var(&soakCfg.MaxBlocks, "max-blocks", 16, "largest transfer in blocks")
	f.Uint64Var(&soakCfg.Seed, "seed", 1, "random seed")
	f.DurationVar(&soakCfg.Hotplug, "hotplug", 0, "card removal period (0 disables)")
	f.DurationVar(&soakCfg.FaultEvery, "fault-every", 0, "data CRC injection period (0 disables)")
	f.StringVar(&soakProf.CPU, "cpuprofile", "", "write a CPU profile of the run")
	f.StringVar(&soakProf.Mutex, "mutexprofile", "", "write a mutex contention profile of the run")
	f.StringVar(&soakProf.Block, "blockprofile", "", "write a blocking profile of the run")
	f.StringVar(&soakProf.Heap, "memprofile", "", "write a heap profile at the end of the run")
}
