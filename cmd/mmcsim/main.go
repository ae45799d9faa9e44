// Command mmcsim drives the SD/MMC host engine against a simulated
// controller and card.
//
// Usage:
//
//	mmcsim [flags] <command>
//
// The card is backed by memory unless --image names a card image file.
// Every command powers the slot, identifies the card and moves it to the
// transfer state before doing its work.
//
// Commands:
//
//	info                  Identify the card and print bus state
//	read <lba> [count]    Read blocks and hex-dump them
//	write <lba> [count]   Fill blocks with a byte pattern
//	erase <start> <end>   Erase an inclusive block range
//	soak                  Run concurrent write/verify workers
package main

func main() {
	execute()
}
