package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/softmmc/host"
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// options are the flags shared by every command.
type options struct {
	image    string
	readOnly bool
	blocks   uint64

	speed          string
	width          int
	noAutoStop     bool
	noAutoPrecount bool
	noSbc          bool
	boundary       uint32
	requestTimeout time.Duration

	logLevel string
	logJSON  bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "mmcsim",
	Short: "Exercise the SD/MMC host engine on a simulated card.",
	Long: `mmcsim powers a simulated SD slot, identifies the card and runs ` +
		`block requests through the host engine. The card is backed by ` +
		`memory or by a card image file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		if opts.logJSON {
			pkg.SetLogFormat(pkg.LogFormatJSON)
		}
		pkg.SetLogLevel(level)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.image, "image", "", "card image file (default: in-memory card)")
	f.BoolVar(&opts.readOnly, "read-only", false, "write-protect the card")
	f.Uint64Var(&opts.blocks, "blocks", 8192, "in-memory card size in 512-byte blocks")
	f.StringVar(&opts.speed, "speed", "hs", "bus speed: legacy or hs")
	f.IntVar(&opts.width, "width", 4, "bus width: 1, 4 or 8")
	f.BoolVar(&opts.noAutoStop, "no-auto-stop", false, "issue STOP_TRANSMISSION in software")
	f.BoolVar(&opts.noAutoPrecount, "no-auto-precount", false, "run precounted transfers without the precount capability")
	f.BoolVar(&opts.noSbc, "no-sbc", false, "end multi-block transfers with STOP_TRANSMISSION instead of SET_BLOCK_COUNT")
	f.Uint32Var(&opts.boundary, "dma-boundary", 0, "SDMA boundary in bytes (default: 4096)")
	f.DurationVar(&opts.requestTimeout, "request-timeout", host.DefaultRequestTimeout, "software deadline per command")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	f.BoolVar(&opts.logJSON, "log-json", false, "log in JSON")

	rootCmd.AddCommand(infoCmd, readCmd, writeCmd, eraseCmd, soakCmd)
}

// execute runs the root command until it returns or the process is
// signalled, and exits non-zero on failure.
func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bus returns the clock and timing selected by --speed and --width.
func (o *options) bus() (host.IOS, error) {
	ios := host.IOS{Power: host.PowerOn}

	switch o.speed {
	case "legacy":
		ios.Clock, ios.Timing = host.ClockLegacy, hal.TimingLegacy
	case "hs":
		ios.Clock, ios.Timing = host.ClockHS, hal.TimingHS
	default:
		return ios, fmt.Errorf("speed %q: %w", o.speed, pkg.ErrNotSupported)
	}

	switch w := hal.BusWidth(o.width); w {
	case hal.BusWidth1, hal.BusWidth4, hal.BusWidth8:
		ios.BusWidth = w
	default:
		return ios, fmt.Errorf("bus width %d: %w", o.width, pkg.ErrNotSupported)
	}
	return ios, nil
}

// config returns the host configuration selected by the flags.
func (o *options) config() host.Config {
	cfg := host.DefaultConfig()
	cfg.Caps.AutoStop = !o.noAutoStop
	cfg.Caps.AutoPrecount = !o.noAutoPrecount
	cfg.RequestTimeout = o.requestTimeout
	return cfg
}
