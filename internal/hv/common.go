// Package hv defines the contract between the syscall personality layer and
// the instruction-execution engine that hosts it. The engine owns instruction
// decode and the guest address space; this package only describes how the rest
// of the sandbox reads registers, touches guest memory and receives syscall
// traps.
package hv

import "errors"

var (
	// ErrVMHalted is returned by an engine's run loop once Stop has been
	// called on the machine.
	ErrVMHalted = errors.New("virtual machine halted")

	// ErrBadAddress is returned by guest memory accesses that fall outside
	// the mapped address space.
	ErrBadAddress = errors.New("bad guest address")
)

type CpuArchitecture string

const (
	ArchitectureInvalid CpuArchitecture = "invalid"
	ArchitectureRISCV64 CpuArchitecture = "riscv64"
)

type RegisterValue interface {
	isRegisterValue()
}

type Register64 uint64

func (r Register64) isRegisterValue() {}

type Register uint64

const (
	RegisterInvalid Register = iota

	// RISC-V integer registers x0..x31.
	RegisterRISCVX0
	RegisterRISCVX1
	RegisterRISCVX2
	RegisterRISCVX3
	RegisterRISCVX4
	RegisterRISCVX5
	RegisterRISCVX6
	RegisterRISCVX7
	RegisterRISCVX8
	RegisterRISCVX9
	RegisterRISCVX10
	RegisterRISCVX11
	RegisterRISCVX12
	RegisterRISCVX13
	RegisterRISCVX14
	RegisterRISCVX15
	RegisterRISCVX16
	RegisterRISCVX17
	RegisterRISCVX18
	RegisterRISCVX19
	RegisterRISCVX20
	RegisterRISCVX21
	RegisterRISCVX22
	RegisterRISCVX23
	RegisterRISCVX24
	RegisterRISCVX25
	RegisterRISCVX26
	RegisterRISCVX27
	RegisterRISCVX28
	RegisterRISCVX29
	RegisterRISCVX30
	RegisterRISCVX31

	RegisterRISCVPc
)

// RISC-V psABI aliases for the registers the syscall convention uses:
// arguments in a0..a5, the syscall number in a7, the result in a0, and the
// stack pointer in sp.
const (
	RegisterRISCVSp = RegisterRISCVX2
	RegisterRISCVA0 = RegisterRISCVX10
	RegisterRISCVA1 = RegisterRISCVX11
	RegisterRISCVA2 = RegisterRISCVX12
	RegisterRISCVA3 = RegisterRISCVX13
	RegisterRISCVA4 = RegisterRISCVX14
	RegisterRISCVA5 = RegisterRISCVX15
	RegisterRISCVA7 = RegisterRISCVX17
)

// VirtualCPU exposes the register file of a single guest CPU. Callers fill a
// map with the registers they want and the engine completes or applies it.
type VirtualCPU interface {
	SetRegisters(regs map[Register]RegisterValue) error
	GetRegisters(regs map[Register]RegisterValue) error
}

// GetRegister64 reads one 64-bit register.
func GetRegister64(cpu VirtualCPU, reg Register) (uint64, error) {
	regs := map[Register]RegisterValue{reg: Register64(0)}
	if err := cpu.GetRegisters(regs); err != nil {
		return 0, err
	}
	val, ok := regs[reg].(Register64)
	if !ok {
		return 0, errors.New("hv: register value is not 64-bit")
	}
	return uint64(val), nil
}

// SetRegister64 writes one 64-bit register.
func SetRegister64(cpu VirtualCPU, reg Register, value uint64) error {
	return cpu.SetRegisters(map[Register]RegisterValue{reg: Register64(value)})
}
