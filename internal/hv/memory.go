package hv

import (
	"encoding/binary"
	"fmt"
)

// GuestMemory is the flat, bounds-checked guest address space materialized by
// the execution engine. Addresses are guest virtual addresses; every access
// is validated against the mapped range before any byte is touched.
type GuestMemory interface {
	Size() uint64
	ReadAt(p []byte, addr uint64) error
	WriteAt(p []byte, addr uint64) error
}

// maxGuestString bounds ReadString scans so a missing terminator in guest
// memory cannot turn into an unbounded walk.
const maxGuestString = 4096

// ReadUint64 reads a little-endian 64-bit value from guest memory.
func ReadUint64(m GuestMemory, addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.ReadAt(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes a little-endian 64-bit value into guest memory.
func WriteUint64(m GuestMemory, addr uint64, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return m.WriteAt(buf[:], addr)
}

// ReadString reads a NUL-terminated string from guest memory. The scan is
// capped at maxGuestString bytes; an unterminated or unmapped string is an
// error, never an out-of-bounds read.
func ReadString(m GuestMemory, addr uint64) (string, error) {
	var out []byte
	var chunk [64]byte
	for len(out) < maxGuestString {
		n := uint64(len(chunk))
		if remain := m.Size() - addr; addr < m.Size() && remain < n {
			n = remain
		}
		if err := m.ReadAt(chunk[:n], addr); err != nil {
			return "", err
		}
		for i := uint64(0); i < n; i++ {
			if chunk[i] == 0 {
				return string(append(out, chunk[:i]...)), nil
			}
		}
		out = append(out, chunk[:n]...)
		addr += n
	}
	return "", fmt.Errorf("hv: unterminated string at 0x%x", addr)
}

// FlatMemory is the reference GuestMemory: a zero-based flat mapping backed
// by a host byte slice. Engines embedding the sandbox typically alias their
// RAM through this; the loader and the tests use it directly.
type FlatMemory struct {
	data []byte
}

func NewFlatMemory(size uint64) *FlatMemory {
	return &FlatMemory{data: make([]byte, size)}
}

func (m *FlatMemory) Size() uint64 { return uint64(len(m.data)) }

func (m *FlatMemory) check(addr uint64, n int) error {
	end := addr + uint64(n)
	if end < addr || end > uint64(len(m.data)) {
		return fmt.Errorf("hv: 0x%x+%d outside guest memory (size 0x%x): %w",
			addr, n, len(m.data), ErrBadAddress)
	}
	return nil
}

func (m *FlatMemory) ReadAt(p []byte, addr uint64) error {
	if err := m.check(addr, len(p)); err != nil {
		return err
	}
	copy(p, m.data[addr:])
	return nil
}

func (m *FlatMemory) WriteAt(p []byte, addr uint64) error {
	if err := m.check(addr, len(p)); err != nil {
		return err
	}
	copy(m.data[addr:], p)
	return nil
}

var _ GuestMemory = &FlatMemory{}
