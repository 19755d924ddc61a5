// Package elffile decodes 64-bit RISC-V ELF executables far enough to boot
// them: the file header, the program-header table, the interpreter request
// and the address span of the loadable segments. Decoding is field-by-field
// at checked offsets; the input is untrusted and a truncated or lying header
// must fail with a named reason, never read out of bounds.
package elffile

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated = errors.New("elffile: file shorter than ELF header")
	ErrBadMagic  = errors.New("elffile: missing ELF magic")
	ErrNotELF64  = errors.New("elffile: not a 64-bit ELF")
	ErrNotRISCV  = errors.New("elffile: machine is not RISC-V")
	ErrBadType   = errors.New("elffile: not an executable or shared object")
	ErrNoLoad    = errors.New("elffile: no loadable segments")
)

// ELF64 file header layout.
const (
	headerSize = 64

	offClass     = 4
	offType      = 16
	offMachine   = 18
	offEntry     = 24
	offPhoff     = 32
	offPhentsize = 54
	offPhnum     = 56

	class64  = 2
	emRISCV  = 0xf3
	phdrSize = 56
)

// Object types.
const (
	TypeExec   = 2
	TypeShared = 3
)

// Program-header segment kinds.
const (
	SegmentNull    = 0
	SegmentLoad    = 1
	SegmentDynamic = 2
	SegmentInterp  = 3
	SegmentNote    = 4
	SegmentPhdr    = 6
)

// ProgHeader is one decoded program-header entry.
type ProgHeader struct {
	Type   uint32
	Flags  uint32
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// Descriptor is the validated description of one ELF image. It is built once
// per binary (the main executable and its interpreter each get their own) and
// never mutated afterwards.
type Descriptor struct {
	Entry     uint64 // e_entry
	PhdrAddr  uint64 // runtime address of the program-header table
	PhdrSize  uint16 // size of one program-header entry
	PhdrCount uint16 // number of program headers
	LoadBase  uint64 // 0 unless relocated (position-independent objects)
	Dynamic   bool   // an INTERP segment was present
	Interp    string // dynamic linker path, set iff Dynamic
	Type      uint16 // TypeExec or TypeShared
}

// Parse validates the header and walks the program-header table. Each check
// fails with its own sentinel so load failures are reported with a specific
// reason.
func Parse(data []byte) (*Descriptor, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if data[0] != 0x7f || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return nil, ErrBadMagic
	}
	if data[offClass] != class64 {
		return nil, ErrNotELF64
	}
	if binary.LittleEndian.Uint16(data[offMachine:]) != emRISCV {
		return nil, ErrNotRISCV
	}
	typ := binary.LittleEndian.Uint16(data[offType:])
	if typ != TypeExec && typ != TypeShared {
		return nil, ErrBadType
	}

	desc := &Descriptor{
		Entry:     binary.LittleEndian.Uint64(data[offEntry:]),
		PhdrSize:  binary.LittleEndian.Uint16(data[offPhentsize:]),
		PhdrCount: binary.LittleEndian.Uint16(data[offPhnum:]),
		Type:      typ,
	}

	phoff := binary.LittleEndian.Uint64(data[offPhoff:])
	headers := decodeProgHeaders(data, phoff, desc.PhdrSize, desc.PhdrCount)

	for _, ph := range headers {
		switch ph.Type {
		case SegmentPhdr:
			desc.PhdrAddr = ph.Vaddr
		case SegmentInterp:
			desc.Dynamic = true
			desc.Interp = interpPath(data, ph)
		}
	}

	// Most executables carry no PT_PHDR. The table then still lands in
	// memory through the segment that maps file offset zero; its runtime
	// address is that segment's vaddr plus e_phoff.
	if desc.PhdrAddr == 0 {
		for _, ph := range headers {
			if ph.Type == SegmentLoad && ph.Off == 0 {
				desc.PhdrAddr = ph.Vaddr + phoff
				break
			}
		}
	}

	return desc, nil
}

// ProgramHeaders decodes the program-header table of a parsed file. The walk
// is bounded by the header-declared count and stride, and every entry is
// re-checked against the buffer before decoding; entries past a truncation
// are simply absent.
func ProgramHeaders(data []byte) ([]ProgHeader, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	phoff := binary.LittleEndian.Uint64(data[offPhoff:])
	phentsize := binary.LittleEndian.Uint16(data[offPhentsize:])
	phnum := binary.LittleEndian.Uint16(data[offPhnum:])
	return decodeProgHeaders(data, phoff, phentsize, phnum), nil
}

func decodeProgHeaders(data []byte, phoff uint64, phentsize, phnum uint16) []ProgHeader {
	if phentsize < phdrSize {
		return nil
	}
	var out []ProgHeader
	for i := uint16(0); i < phnum; i++ {
		off := phoff + uint64(i)*uint64(phentsize)
		if off+phdrSize < off || off+phdrSize > uint64(len(data)) {
			break
		}
		e := data[off:]
		out = append(out, ProgHeader{
			Type:   binary.LittleEndian.Uint32(e[0:]),
			Flags:  binary.LittleEndian.Uint32(e[4:]),
			Off:    binary.LittleEndian.Uint64(e[8:]),
			Vaddr:  binary.LittleEndian.Uint64(e[16:]),
			Paddr:  binary.LittleEndian.Uint64(e[24:]),
			Filesz: binary.LittleEndian.Uint64(e[32:]),
			Memsz:  binary.LittleEndian.Uint64(e[40:]),
			Align:  binary.LittleEndian.Uint64(e[48:]),
		})
	}
	return out
}

// interpPath extracts the dynamic linker path from an INTERP segment,
// stripping trailing NULs. An out-of-range segment yields an empty path
// rather than an out-of-bounds read.
func interpPath(data []byte, ph ProgHeader) string {
	end := ph.Off + ph.Filesz
	if end < ph.Off || end > uint64(len(data)) {
		return ""
	}
	raw := data[ph.Off:end]
	for len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw)
}

// LoadRange reports the lowest and highest virtual addresses covered by the
// loadable segments. It is used to place a position-independent interpreter
// where it cannot collide with the executable's fixed mapping.
func LoadRange(data []byte) (lo, hi uint64, err error) {
	headers, err := ProgramHeaders(data)
	if err != nil {
		return 0, 0, err
	}
	found := false
	for _, ph := range headers {
		if ph.Type != SegmentLoad {
			continue
		}
		segLo := ph.Vaddr
		segHi := ph.Vaddr + ph.Memsz
		if !found || segLo < lo {
			lo = segLo
		}
		if !found || segHi > hi {
			hi = segHi
		}
		found = true
	}
	if !found {
		return 0, 0, ErrNoLoad
	}
	return lo, hi, nil
}

// String implements fmt.Stringer for diagnostics.
func (d *Descriptor) String() string {
	kind := "static"
	if d.Dynamic {
		kind = fmt.Sprintf("dynamic (interp %s)", d.Interp)
	}
	return fmt.Sprintf("entry=0x%x phdr=0x%x (%d x %d bytes) %s",
		d.Entry, d.PhdrAddr, d.PhdrCount, d.PhdrSize, kind)
}
