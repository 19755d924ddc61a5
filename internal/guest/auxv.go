// Package guest implements the process personality the sandbox presents to
// RISC-V Linux userspace: the bootstrap handoff (auxiliary vector, initial
// stack, static-vs-dynamic start decision) and the syscall dispatch layer
// that translates guest traps into virtual filesystem, clock and randomness
// operations.
package guest

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/rvu/internal/elffile"
	"github.com/tinyrange/rvu/internal/linux"
)

// Fixed personality values. These are part of the binary contract with the
// dynamic linker and with libc start code.
const (
	PageSize  = 4096
	ClockTick = 100
)

// AuxEntry is one (tag, value) pair of the auxiliary vector.
type AuxEntry struct {
	Tag   uint64
	Value uint64
}

// BuildAuxv produces the auxiliary vector a dynamic linker (or a static
// binary's runtime) expects at process entry. randomAddr and execfnAddr point
// at bytes the caller has already placed in guest memory.
//
// Two entries are worth calling out. AT_ENTRY always carries the main
// executable's entry point: when an interpreter runs first, it locates the
// real program through these entries, not through any argument string.
// AT_PLATFORM is emitted with a zero placeholder because the builder cannot
// allocate guest memory; the caller patches it with PatchPlatform once the
// platform string has an address.
func BuildAuxv(exec *elffile.Descriptor, interpBase, randomAddr, execfnAddr uint64) []AuxEntry {
	base := uint64(0)
	if exec.Dynamic {
		base = interpBase
	}
	return []AuxEntry{
		{linux.AT_PHDR, exec.PhdrAddr},
		{linux.AT_PHENT, uint64(exec.PhdrSize)},
		{linux.AT_PHNUM, uint64(exec.PhdrCount)},
		{linux.AT_PAGESZ, PageSize},
		{linux.AT_BASE, base},
		{linux.AT_ENTRY, exec.Entry},
		{linux.AT_UID, 0},
		{linux.AT_EUID, 0},
		{linux.AT_GID, 0},
		{linux.AT_EGID, 0},
		{linux.AT_CLKTCK, ClockTick},
		{linux.AT_SECURE, 0},
		{linux.AT_HWCAP, linux.HwcapIMAFDC},
		{linux.AT_RANDOM, randomAddr},
		{linux.AT_EXECFN, execfnAddr},
		{linux.AT_PLATFORM, 0},
		{linux.AT_NULL, 0},
	}
}

// PatchPlatform fills in the AT_PLATFORM placeholder with the guest address
// of the platform name string.
func PatchPlatform(auxv []AuxEntry, addr uint64) error {
	for i := range auxv {
		if auxv[i].Tag == linux.AT_PLATFORM {
			auxv[i].Value = addr
			return nil
		}
	}
	return fmt.Errorf("guest: auxv has no AT_PLATFORM entry")
}

// EncodeAuxv serializes the vector as the little-endian (tag, value) pairs
// that sit on the initial stack.
func EncodeAuxv(auxv []AuxEntry) []byte {
	buf := make([]byte, 0, len(auxv)*16)
	for _, e := range auxv {
		buf = binary.LittleEndian.AppendUint64(buf, e.Tag)
		buf = binary.LittleEndian.AppendUint64(buf, e.Value)
	}
	return buf
}
