// Package hal defines the register layer and platform collaborators beneath
// the SD/MMC controller core.
//
// The core in github.com/ardnew/softmmc/host implements all command
// sequencing, interrupt classification and timeout logic. It reaches hardware
// only through the interfaces in this package, so a platform port implements
// them and nothing else.
//
// # Register Layer
//
// [Controller] is the operation contract the core needs from the controller's
// registers: write a [CommandWord], program block size and count, arm and
// read-and-clear [IRQ] status, read response words, reset command and data
// logic, and gate and divide clocks. Its methods must never block; the core
// calls them with its lock held from interrupt, timer and submission contexts.
//
// # Platform Collaborators
//
// [CardDetector], [ClockSource], [Regulator], [PinControl] and [PowerRef]
// model the board around the controller. Their methods may block (regulator
// ramps, clock preparation) and are always called with the core's lock
// released.
//
// # Interrupts
//
// The register layer delivers interrupts by calling the [InterruptHandler]
// installed with [Controller.SetInterruptHandler]. Calls for one controller
// must not overlap. The handler returns [IRQNone] when the status was empty so
// that a shared line can be passed on.
//
// A simulated controller for testing is available in
// [github.com/ardnew/softmmc/host/hal/sim].
package hal
