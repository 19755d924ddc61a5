// Package rvu implements the Linux userspace personality of a RISC-V
// execution sandbox: it boots 64-bit RISC-V ELF executables (static or
// dynamically linked) and translates the guest's Linux syscalls against a
// virtual filesystem, without any real kernel underneath. The instruction
// engine itself is external; it plugs in through the Machine contract and
// hands every ecall to a Dispatcher.
package rvu

import (
	"github.com/tinyrange/rvu/internal/config"
	"github.com/tinyrange/rvu/internal/elffile"
	"github.com/tinyrange/rvu/internal/guest"
	"github.com/tinyrange/rvu/internal/hv"
	"github.com/tinyrange/rvu/internal/vfs"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from the internal packages
// -----------------------------------------------------------------------------

// Machine is the engine-side surface the personality runs against: one guest
// CPU, one flat address space and a syscall trap hook.
type Machine = hv.Machine

// VirtualCPU exposes the register file of a guest CPU.
type VirtualCPU = hv.VirtualCPU

// GuestMemory is the bounds-checked guest address space.
type GuestMemory = hv.GuestMemory

// FlatMemory is the reference GuestMemory backed by a host byte slice.
type FlatMemory = hv.FlatMemory

// SyscallHandler receives control on every guest ecall.
type SyscallHandler = hv.SyscallHandler

// Descriptor is the validated description of one ELF image.
type Descriptor = elffile.Descriptor

// Process is the loaded start state of a guest program.
type Process = guest.Process

// ProcessConfig configures LoadProcess.
type ProcessConfig = guest.ProcessConfig

// Dispatcher is the syscall personality: install one on a Machine and every
// trapped syscall is translated against its filesystem view.
type Dispatcher = guest.Dispatcher

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions = guest.Options

// BridgeTransport receives guest messages sent over the host-bridge syscall.
type BridgeTransport = guest.BridgeTransport

// FS is the virtual filesystem surface consumed by the syscall layer.
type FS = vfs.FS

// Tree is the in-memory filesystem implementation.
type Tree = vfs.Tree

// Profile is a YAML-described guest run profile.
type Profile = config.Profile

// Common sentinel errors.
var (
	ErrVMHalted   = hv.ErrVMHalted
	ErrBadAddress = hv.ErrBadAddress
)

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// ParseELF validates a RISC-V ELF64 image and describes it.
func ParseELF(data []byte) (*Descriptor, error) {
	return elffile.Parse(data)
}

// LoadProcess maps an executable and its interpreter into guest memory and
// builds the initial stack.
func LoadProcess(mem GuestMemory, execData []byte, cfg ProcessConfig) (*Process, error) {
	return guest.LoadProcess(mem, execData, cfg)
}

// NewDispatcher builds the syscall personality for a machine.
func NewDispatcher(machine Machine, fsys FS, opts DispatcherOptions) *Dispatcher {
	return guest.NewDispatcher(machine, fsys, opts)
}

// NewFlatMemory allocates a zero-based flat guest address space.
func NewFlatMemory(size uint64) *FlatMemory {
	return hv.NewFlatMemory(size)
}

// NewTree builds an empty in-memory filesystem.
func NewTree() *Tree {
	return vfs.NewTree()
}

// NewOSDir exposes a host directory to the guest, read-only.
func NewOSDir(hostPath string) (vfs.DirNode, error) {
	return vfs.NewOSDir(hostPath)
}

// LoadProfile reads and validates a YAML run profile.
func LoadProfile(path string) (*Profile, error) {
	return config.Load(path)
}
