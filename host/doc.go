// Package host implements the request engine of an SD/MMC host controller.
//
// A [Host] accepts one [Request] at a time: an optional SET_BLOCK_COUNT
// sub-command, a primary command, an optional stop command and at most one
// DMA data phase. It sequences the commands on the bus, classifies the
// controller's interrupt status, enforces a per-command deadline and reports
// the outcome through the request's completion callback.
//
// # Usage
//
//	h, err := host.New(ctrl, host.DefaultConfig(), host.Platform{
//		CardDetect: detector,
//		VMMC:       vmmc,
//		VQMMC:      vqmmc,
//	})
//	if err != nil {
//		return err
//	}
//	if err := h.Start(ctx); err != nil {
//		return err
//	}
//	defer h.Stop()
//
//	h.SetIOS(ctx, host.IOS{Power: host.PowerOn, Clock: host.ClockLegacy, BusWidth: hal.BusWidth4})
//
//	data := &host.DataTransfer{Dir: host.DirRead, BlockSize: 512, Blocks: 8, SG: sg}
//	req := &host.Request{
//		Sbc:  &host.Command{Opcode: host.OpSetBlockCount, Arg: 8, Response: host.RespShort},
//		Cmd:  &host.Command{Opcode: host.OpReadMultipleBlock, Arg: lba, Response: host.RespShort, Data: data},
//		Done: func(r *host.Request) { done <- r.Err() },
//	}
//	if err := h.Submit(ctx, req); err != nil {
//		return err // configuration error, not running, or busy
//	}
//	err = <-done
//
// # Contexts
//
// Three contexts touch a request in flight: the interrupt handler
// ([Host.HandleIRQ]), the deadline timer, and the completion goroutine. They
// share one mutex. Whichever of the interrupt handler and the timer first
// decides the request is over hands it to the completion goroutine; the
// other then does nothing. The completion callback runs without the mutex and
// may block or submit the next request.
//
// # Errors
//
// Malformed requests are rejected synchronously with a
// [*pkg.ConfigurationError] before any register is written. Bus faults are
// reported only through [Command.Err] and [DataTransfer.Err]: [pkg.ErrTimeout],
// [pkg.ErrCRC], [pkg.ErrDMA], [pkg.ErrNoMedium] and [pkg.ErrIRQStorm]. Each
// faulted command or data phase receives exactly one error, and each request
// completes exactly once. There is no retry.
//
// # Auto-commands
//
// A request's sub-command is always sent by software ahead of the primary
// command, so its response is captured. When [Caps.AutoPrecount] is set and a
// request carries a sub-command, the transfer runs precounted and the
// auto-stop is never selected. Otherwise, when [Caps.AutoStop] is set and a
// data request carries a stop command, the controller issues
// STOP_TRANSMISSION itself. A request with a sub-command never sends its stop
// command explicitly.
package host
