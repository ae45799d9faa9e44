package sim

import (
	"io"
	"os"
	"sync"
)

// Storage is the block store behind a simulated card.
type Storage interface {
	// BlockSize returns the size of a storage block in bytes.
	BlockSize() uint32

	// BlockCount returns the total number of blocks.
	BlockCount() uint64

	// Read reads blocks starting at lba into buf.
	// Returns number of blocks read or error.
	Read(lba uint64, blocks uint32, buf []byte) (uint32, error)

	// Write writes blocks from buf starting at lba.
	// Returns number of blocks written or error.
	Write(lba uint64, blocks uint32, buf []byte) (uint32, error)

	// Erase resets blocks starting at lba to the erased value.
	Erase(lba, blocks uint64) error

	// Sync flushes any cached writes to storage.
	Sync() error

	// IsReadOnly returns true if storage is read-only.
	IsReadOnly() bool
}

// ErasedByte is the value erased blocks read back as.
const ErasedByte = 0x00

// MemoryStorage implements Storage using an in-memory buffer.
type MemoryStorage struct {
	data      []byte
	blockSize uint32
	readOnly  bool
	mutex     sync.RWMutex
}

// NewMemoryStorage creates an in-memory storage with the given size and block size.
func NewMemoryStorage(size uint64, blockSize uint32) *MemoryStorage {
	return &MemoryStorage{
		data:      make([]byte, size),
		blockSize: blockSize,
	}
}

// BlockSize returns the block size.
func (m *MemoryStorage) BlockSize() uint32 {
	return m.blockSize
}

// BlockCount returns the number of blocks.
func (m *MemoryStorage) BlockCount() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint64(len(m.data)) / uint64(m.blockSize)
}

func (m *MemoryStorage) span(lba, blocks uint64) (uint64, uint64, bool) {
	offset := lba * uint64(m.blockSize)
	length := blocks * uint64(m.blockSize)
	return offset, length, offset+length <= uint64(len(m.data))
}

// Read reads blocks from memory.
func (m *MemoryStorage) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	offset, length, ok := m.span(lba, uint64(blocks))
	if !ok {
		return 0, io.EOF
	}
	if uint64(len(buf)) < length {
		return 0, io.ErrShortBuffer
	}

	copy(buf, m.data[offset:offset+length])
	return blocks, nil
}

// Write writes blocks to memory.
func (m *MemoryStorage) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.readOnly {
		return 0, os.ErrPermission
	}
	offset, length, ok := m.span(lba, uint64(blocks))
	if !ok {
		return 0, io.EOF
	}
	if uint64(len(buf)) < length {
		return 0, io.ErrShortBuffer
	}

	copy(m.data[offset:offset+length], buf)
	return blocks, nil
}

// Erase fills blocks with ErasedByte.
func (m *MemoryStorage) Erase(lba, blocks uint64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.readOnly {
		return os.ErrPermission
	}
	offset, length, ok := m.span(lba, blocks)
	if !ok {
		return io.EOF
	}

	clear(m.data[offset : offset+length])
	return nil
}

// Sync is a no-op for memory storage.
func (m *MemoryStorage) Sync() error {
	return nil
}

// IsReadOnly returns whether the storage is read-only.
func (m *MemoryStorage) IsReadOnly() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the read-only flag.
func (m *MemoryStorage) SetReadOnly(readOnly bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.readOnly = readOnly
}

// FileStorage implements Storage using a card image file.
type FileStorage struct {
	file      *os.File
	blockSize uint32
	size      uint64
	readOnly  bool
	mutex     sync.RWMutex
}

// NewFileStorage opens a card image. If readOnly is true, the file is opened
// in read-only mode.
func NewFileStorage(path string, blockSize uint32, readOnly bool) (*FileStorage, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &FileStorage{
		file:      file,
		blockSize: blockSize,
		size:      uint64(stat.Size()),
		readOnly:  readOnly,
	}, nil
}

// BlockSize returns the block size.
func (f *FileStorage) BlockSize() uint32 {
	return f.blockSize
}

// BlockCount returns the number of blocks.
func (f *FileStorage) BlockCount() uint64 {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.size / uint64(f.blockSize)
}

// Read reads blocks from the image.
func (f *FileStorage) Read(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	offset := int64(lba * uint64(f.blockSize))
	length := int(blocks * f.blockSize)

	if uint64(offset)+uint64(length) > f.size {
		return 0, io.EOF
	}
	if len(buf) < length {
		return 0, io.ErrShortBuffer
	}

	n, err := f.file.ReadAt(buf[:length], offset)
	if err != nil && err != io.EOF {
		return 0, err
	}
	return uint32(n) / f.blockSize, nil
}

// Write writes blocks to the image.
func (f *FileStorage) Write(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return 0, os.ErrPermission
	}

	offset := int64(lba * uint64(f.blockSize))
	length := int(blocks * f.blockSize)

	if uint64(offset)+uint64(length) > f.size {
		return 0, io.EOF
	}
	if len(buf) < length {
		return 0, io.ErrShortBuffer
	}

	n, err := f.file.WriteAt(buf[:length], offset)
	if err != nil {
		return 0, err
	}
	return uint32(n) / f.blockSize, nil
}

// Erase overwrites blocks with ErasedByte, one block at a time.
func (f *FileStorage) Erase(lba, blocks uint64) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return os.ErrPermission
	}
	if (lba+blocks)*uint64(f.blockSize) > f.size {
		return io.EOF
	}

	blank := make([]byte, f.blockSize)
	for i := range blocks {
		if _, err := f.file.WriteAt(blank, int64((lba+i)*uint64(f.blockSize))); err != nil {
			return err
		}
	}
	return nil
}

// Sync flushes image writes to disk.
func (f *FileStorage) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.readOnly {
		return nil
	}
	return f.file.Sync()
}

// IsReadOnly returns whether the image is read-only.
func (f *FileStorage) IsReadOnly() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.readOnly
}

// Close closes the underlying file.
func (f *FileStorage) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
