package hv

// SyscallHandler receives control each time the guest executes an ecall. The
// engine invokes it synchronously on its own run loop; the handler must read
// arguments and write the result back through the CPU before returning.
type SyscallHandler interface {
	HandleSyscall(cpu VirtualCPU) error
}

// Machine is the engine-side surface the personality layer runs against: one
// guest CPU, one flat address space and a syscall trap hook. Implementations
// run guest instructions until completion, a trap, or Stop.
type Machine interface {
	Architecture() CpuArchitecture
	CPU() VirtualCPU
	Memory() GuestMemory

	// SetSyscallHandler installs the trap hook. Installing a handler
	// replaces any previous one; the engine calls it with its own CPU.
	SetSyscallHandler(h SyscallHandler)

	// Stop prevents any further guest instruction execution. The run loop
	// reports ErrVMHalted once stopped.
	Stop()
}
