package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// withBoard opens the board for a command and closes it afterward.
func withBoard(cmd *cobra.Command, fn func(ctx context.Context, b *board) error) (err error) {
	ctx := cmd.Context()
	b, err := openBoard(ctx, &opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, b)
}

func parseBlock(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("block %q: %w", s, err)
	}
	return uint32(n), nil
}

// blockArgs parses "<lba> [count]".
func blockArgs(args []string) (lba, count uint32, err error) {
	if lba, err = parseBlock(args[0]); err != nil {
		return 0, 0, err
	}
	count = 1
	if len(args) > 1 {
		if count, err = parseBlock(args[1]); err != nil {
			return 0, 0, err
		}
	}
	return lba, count, nil
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the card and print bus state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBoard(cmd, func(ctx context.Context, b *board) error {
			printInfo(cmd.OutOrStdout(), b)
			return nil
		})
	},
}

func printInfo(w io.Writer, b *board) {
	s := b.host.State()
	regs := b.ctrl.Registers()
	fmt.Fprintf(w, "Card:\n")
	fmt.Fprintf(w, "  RCA:        %#04x\n", b.rca)
	fmt.Fprintf(w, "  Blocks:     %d x %d bytes\n", b.storage.BlockCount(), b.storage.BlockSize())
	fmt.Fprintf(w, "  Read-only:  %t\n", b.storage.IsReadOnly())
	fmt.Fprintf(w, "Bus:\n")
	fmt.Fprintf(w, "  Power:      %s\n", s.Power)
	fmt.Fprintf(w, "  Clock:      %s (divider %d)\n", s.Clock, regs.ClockDivider)
	fmt.Fprintf(w, "  Width:      %d-bit\n", s.BusWidth)
	fmt.Fprintf(w, "  Timing:     %s\n", s.Timing)
	fmt.Fprintf(w, "  Signalling: %s\n", s.SignalVoltage)
	fmt.Fprintf(w, "  Timeout:    %d cycles (max busy %s)\n", s.TimeoutCycles, s.MaxBusyTimeout)
	printStats(w, b)
}

func printStats(w io.Writer, b *board) {
	st := b.host.Stats()
	fmt.Fprintf(w, "Requests:\n")
	fmt.Fprintf(w, "  Submitted:  %d\n", st.Submitted)
	fmt.Fprintf(w, "  Completed:  %d\n", st.Completed)
	fmt.Fprintf(w, "  Faults:     %d\n", st.Faults)
	fmt.Fprintf(w, "  Timeouts:   %d\n", st.Timeouts)
	fmt.Fprintf(w, "  No medium:  %d\n", st.NoMedium)
	fmt.Fprintf(w, "  IRQs:       %d (%d spurious, %d storms)\n", st.IRQs, st.Spurious, st.Storms)
}

var readCmd = &cobra.Command{
	Use:   "read <lba> [count]",
	Short: "Read blocks and hex-dump them.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lba, count, err := blockArgs(args)
		if err != nil {
			return err
		}
		return withBoard(cmd, func(ctx context.Context, b *board) error {
			p, err := b.readBlocks(ctx, lba, count)
			if err != nil {
				return err
			}
			d := hex.Dumper(cmd.OutOrStdout())
			if _, err := d.Write(p); err != nil {
				return err
			}
			return d.Close()
		})
	},
}

var writePattern uint8

var writeCmd = &cobra.Command{
	Use:   "write <lba> [count]",
	Short: "Fill blocks with a byte pattern.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lba, count, err := blockArgs(args)
		if err != nil {
			return err
		}
		return withBoard(cmd, func(ctx context.Context, b *board) error {
			p := bytes.Repeat([]byte{writePattern}, int(count)*blockSize)
			if err := b.writeBlocks(ctx, lba, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d block(s) at %d\n", count, lba)
			return nil
		})
	},
}

var eraseBusy time.Duration

var eraseCmd = &cobra.Command{
	Use:   "erase <start> <end>",
	Short: "Erase an inclusive block range.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseBlock(args[0])
		if err != nil {
			return err
		}
		end, err := parseBlock(args[1])
		if err != nil {
			return err
		}
		return withBoard(cmd, func(ctx context.Context, b *board) error {
			if err := b.erase(ctx, start, end, eraseBusy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased blocks %d-%d\n", start, end)
			return nil
		})
	},
}

func init() {
	writeCmd.Flags().Uint8Var(&writePattern, "pattern", 0xA5, "fill byte")
	eraseCmd.Flags().DurationVar(&eraseBusy, "busy", 3*time.Second, "declared erase busy time")
}
