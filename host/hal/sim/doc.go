// Package sim provides an in-memory SD host controller and card for testing
// the controller core without hardware.
//
// [Controller] implements [hal.Controller] and [hal.CardDetector]. Commands
// written with SetCommand execute on a background goroutine against a
// [Card] backed by a [Storage]; data phases move through a [Memory] arena
// by simulated system-address DMA, pausing at every boundary until the
// address register is rewritten. Interrupts are delivered by calling the
// installed handler from the same goroutine.
//
// Faults are injected per opcode with [Controller.InjectFault] and
// [Controller.Hang]. [Controller.Bus] records every command that reached
// the card, automatically issued ones included.
//
// [Regulator], [Pins], [ClockSource] and [PowerRef] are simulated platform
// collaborators.
package sim
