// Package pkg provides shared utilities for the softmmc controller core.
//
// This package contains common functionality used by the host core, the
// register layer and the simulated controller:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for bus protocol faults
//   - [ConfigurationError] for requests rejected before touching hardware
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentClock, "clock set", "rate", rate)
//
// # Errors
//
// Faults detected by the controller are sentinel values attached to the
// command or data phase that failed:
//
//	if errors.Is(req.Cmd.Err, pkg.ErrTimeout) {
//	    // retry with a new request
//	}
//
// Requests the controller cannot execute are rejected synchronously:
//
//	var cerr *pkg.ConfigurationError
//	if errors.As(err, &cerr) {
//	    // cerr.Op names the rejected field
//	}
package pkg
