package hal

import (
	"fmt"
	"strings"
)

// IRQ is a set of controller interrupt status bits.
type IRQ uint32

// Normal interrupt status bits.
const (
	IRQCmdComplete      IRQ = 1 << 0 // Command response received
	IRQTransferComplete IRQ = 1 << 1 // Data transfer or busy signalling finished
	IRQDMASegment       IRQ = 1 << 3 // DMA reached a system address boundary
	IRQCardInsert       IRQ = 1 << 6 // Card inserted
	IRQCardRemove       IRQ = 1 << 7 // Card removed
)

// Error interrupt status bits.
const (
	IRQCmdTimeout  IRQ = 1 << 16 // No response within 64 clocks
	IRQCmdCRC      IRQ = 1 << 17 // Response CRC mismatch
	IRQCmdEndBit   IRQ = 1 << 18 // Response end bit not 1
	IRQCmdIndex    IRQ = 1 << 19 // Response index mismatch
	IRQDataTimeout IRQ = 1 << 20 // Data or busy timeout
	IRQDataCRC     IRQ = 1 << 21 // Data CRC mismatch
	IRQDataEndBit  IRQ = 1 << 22 // Data end bit not 1
	IRQAutoCmdErr  IRQ = 1 << 24 // Automatically issued command failed
	IRQADMAErr     IRQ = 1 << 25 // DMA descriptor fault
)

// Interrupt groups.
const (
	IRQCmdErrors  = IRQCmdTimeout | IRQCmdCRC | IRQCmdEndBit | IRQCmdIndex
	IRQDataErrors = IRQDataTimeout | IRQDataCRC | IRQDataEndBit
	IRQErrors     = IRQCmdErrors | IRQDataErrors | IRQAutoCmdErr | IRQADMAErr
	IRQCardDetect = IRQCardInsert | IRQCardRemove
	IRQAll        = ^IRQ(0)
)

// Errors returns only the error-class bits of i.
func (i IRQ) Errors() IRQ {
	return i & IRQErrors
}

// Has reports whether every bit in mask is set.
func (i IRQ) Has(mask IRQ) bool {
	return i&mask == mask
}

var irqNames = [...]struct {
	bit  IRQ
	name string
}{
	{IRQCmdComplete, "CMD_COMPLETE"},
	{IRQTransferComplete, "XFER_COMPLETE"},
	{IRQDMASegment, "DMA_SEG"},
	{IRQCardInsert, "CARD_INSERT"},
	{IRQCardRemove, "CARD_REMOVE"},
	{IRQCmdTimeout, "CMD_TIMEOUT"},
	{IRQCmdCRC, "CMD_CRC"},
	{IRQCmdEndBit, "CMD_END_BIT"},
	{IRQCmdIndex, "CMD_INDEX"},
	{IRQDataTimeout, "DATA_TIMEOUT"},
	{IRQDataCRC, "DATA_CRC"},
	{IRQDataEndBit, "DATA_END_BIT"},
	{IRQAutoCmdErr, "AUTO_CMD_ERR"},
	{IRQADMAErr, "ADMA_ERR"},
}

// String returns the set bits joined with '|'.
func (i IRQ) String() string {
	if i == 0 {
		return "0"
	}
	var b strings.Builder
	rest := i
	for _, n := range irqNames {
		if i&n.bit == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(n.name)
		rest &^= n.bit
	}
	if rest != 0 {
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "0x%X", uint32(rest))
	}
	return b.String()
}

// IRQReturn reports whether an interrupt handler serviced the line.
type IRQReturn uint8

// Interrupt handler results.
const (
	IRQNone    IRQReturn = iota // Not ours; the line may be shared
	IRQHandled                  // Status was consumed
)

// String returns the handler result name.
func (r IRQReturn) String() string {
	if r == IRQHandled {
		return "handled"
	}
	return "none"
}

// InterruptHandler is invoked by the register layer whenever the interrupt
// line is asserted. Invocations for one controller never overlap.
type InterruptHandler func() IRQReturn
