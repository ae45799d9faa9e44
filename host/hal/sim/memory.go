package sim

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrOutOfMemory is returned when the arena cannot satisfy an allocation.
var ErrOutOfMemory = errors.New("sim: DMA arena exhausted")

// Memory is a flat bus-addressable arena the simulated DMA engine reads and
// writes. Addresses start at Base.
type Memory struct {
	base uint64
	data []byte
	next uint64
	mu   sync.Mutex
}

// DefaultMemoryBase is the bus address of the first byte of a [Memory].
const DefaultMemoryBase = 0x8000_0000

// NewMemory creates an arena of size bytes at bus address base.
func NewMemory(base uint64, size int) *Memory {
	return &Memory{base: base, data: make([]byte, size)}
}

// Base returns the bus address of the first byte.
func (m *Memory) Base() uint64 {
	return m.base
}

// Size returns the arena size in bytes.
func (m *Memory) Size() int {
	return len(m.data)
}

// Alloc reserves n bytes aligned to align (a power of two, or 0 for 8) and
// returns their bus address.
func (m *Memory) Alloc(n uint32, align uint64) (uint64, error) {
	if align == 0 {
		align = 8
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := (m.base + m.next + align - 1) &^ (align - 1)
	end := addr - m.base + uint64(n)
	if end > uint64(len(m.data)) {
		return 0, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, n)
	}
	m.next = end
	return addr, nil
}

// Reset releases every allocation and zeroes the arena.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	clear(m.data)
}

func (m *Memory) window(addr int64, n int) (int, error) {
	off := uint64(addr) - m.base
	if uint64(addr) < m.base || off+uint64(n) > uint64(len(m.data)) {
		return 0, fmt.Errorf("sim: bus address %#x+%d outside arena: %w", addr, n, io.ErrUnexpectedEOF)
	}
	return int(off), nil
}

// ReadAt copies len(p) bytes at bus address addr into p.
func (m *Memory) ReadAt(p []byte, addr int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := m.window(addr, len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt copies p to bus address addr.
func (m *Memory) WriteAt(p []byte, addr int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	off, err := m.window(addr, len(p))
	if err != nil {
		return 0, err
	}
	return copy(m.data[off:], p), nil
}
