package guest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/rvu/internal/elffile"
	"github.com/tinyrange/rvu/internal/hv"
)

const platformName = "riscv64"

// Interpreter images are position independent; they are relocated above the
// main executable's highest mapped address, rounded up with a guard gap so
// the two images can never overlap.
const (
	interpAlign = 0x10000
	interpGuard = 0x10000
)

// InterpResolver fetches the dynamic linker image named by an INTERP
// segment, usually out of the virtual filesystem.
type InterpResolver func(path string) ([]byte, error)

// ProcessConfig carries everything LoadProcess needs besides the executable
// bytes themselves.
type ProcessConfig struct {
	Args []string
	Env  []string

	// ExecPath is the invocation path reported through AT_EXECFN. Defaults
	// to Args[0].
	ExecPath string

	ResolveInterp InterpResolver
}

// Process is the result of loading: the start register state plus the
// descriptors that produced it.
type Process struct {
	Exec       *elffile.Descriptor
	Interp     *elffile.Descriptor // nil for static executables
	InterpBase uint64
	Auxv       []AuxEntry

	PC uint64
	SP uint64
}

// LoadProcess maps an executable (and its interpreter, if it requests one)
// into guest memory and assembles the initial stack. Control starts at the
// interpreter's entry point when one is present, otherwise at the
// executable's own; either way the auxiliary vector tells the startup code
// where the real program lives.
func LoadProcess(mem hv.GuestMemory, execData []byte, cfg ProcessConfig) (*Process, error) {
	desc, err := elffile.Parse(execData)
	if err != nil {
		return nil, fmt.Errorf("guest: parse executable: %w", err)
	}
	if err := mapImage(mem, execData, 0); err != nil {
		return nil, fmt.Errorf("guest: map executable: %w", err)
	}

	proc := &Process{Exec: desc, PC: desc.Entry}

	if desc.Dynamic {
		if cfg.ResolveInterp == nil {
			return nil, fmt.Errorf("guest: %s requests interpreter %s but no resolver is configured",
				cfg.ExecPath, desc.Interp)
		}
		interpData, err := cfg.ResolveInterp(desc.Interp)
		if err != nil {
			return nil, fmt.Errorf("guest: resolve interpreter %s: %w", desc.Interp, err)
		}
		interp, err := elffile.Parse(interpData)
		if err != nil {
			return nil, fmt.Errorf("guest: parse interpreter %s: %w", desc.Interp, err)
		}

		_, hi, err := elffile.LoadRange(execData)
		if err != nil {
			return nil, fmt.Errorf("guest: executable load range: %w", err)
		}
		base := (hi + interpGuard + interpAlign - 1) &^ uint64(interpAlign-1)

		if err := mapImage(mem, interpData, base); err != nil {
			return nil, fmt.Errorf("guest: map interpreter %s: %w", desc.Interp, err)
		}
		interp.LoadBase = base

		proc.Interp = interp
		proc.InterpBase = base
		proc.PC = interp.Entry
		if interp.Type == elffile.TypeShared {
			proc.PC += base
		}
	}

	sp, auxv, err := buildStack(mem, desc, proc.InterpBase, cfg)
	if err != nil {
		return nil, fmt.Errorf("guest: build stack: %w", err)
	}
	proc.SP = sp
	proc.Auxv = auxv
	return proc, nil
}

// mapImage writes each LOAD segment's file bytes at base+vaddr and zeroes
// the bss tail (memsz beyond filesz).
func mapImage(mem hv.GuestMemory, data []byte, base uint64) error {
	headers, err := elffile.ProgramHeaders(data)
	if err != nil {
		return err
	}
	for _, ph := range headers {
		if ph.Type != elffile.SegmentLoad {
			continue
		}
		end := ph.Off + ph.Filesz
		if end < ph.Off || end > uint64(len(data)) {
			return fmt.Errorf("segment at 0x%x: file range 0x%x+0x%x outside file",
				ph.Vaddr, ph.Off, ph.Filesz)
		}
		addr := base + ph.Vaddr
		if ph.Filesz > 0 {
			if err := mem.WriteAt(data[ph.Off:end], addr); err != nil {
				return fmt.Errorf("segment at 0x%x: %w", addr, err)
			}
		}
		if err := zeroRange(mem, addr+ph.Filesz, ph.Memsz-ph.Filesz); err != nil {
			return fmt.Errorf("segment bss at 0x%x: %w", addr+ph.Filesz, err)
		}
	}
	return nil
}

func zeroRange(mem hv.GuestMemory, addr, n uint64) error {
	var zeros [65536]byte
	for n > 0 {
		chunk := n
		if chunk > uint64(len(zeros)) {
			chunk = uint64(len(zeros))
		}
		if err := mem.WriteAt(zeros[:chunk], addr); err != nil {
			return err
		}
		addr += chunk
		n -= chunk
	}
	return nil
}

// buildStack lays out the process startup block at the top of guest memory:
// the string area (argument and environment strings, the AT_RANDOM bytes,
// the execfn and platform names) grows downward, then the argc/argv/envp/
// auxv vector is placed below it at a 16-byte aligned stack pointer.
func buildStack(mem hv.GuestMemory, desc *elffile.Descriptor, interpBase uint64, cfg ProcessConfig) (uint64, []AuxEntry, error) {
	sp := mem.Size()

	push := func(b []byte) (uint64, error) {
		sp -= uint64(len(b))
		if err := mem.WriteAt(b, sp); err != nil {
			return 0, err
		}
		return sp, nil
	}
	pushString := func(s string) (uint64, error) {
		return push(append([]byte(s), 0))
	}

	execPath := cfg.ExecPath
	if execPath == "" && len(cfg.Args) > 0 {
		execPath = cfg.Args[0]
	}
	execfnAddr, err := pushString(execPath)
	if err != nil {
		return 0, nil, err
	}

	var random [16]byte
	if _, err := rand.Read(random[:]); err != nil {
		return 0, nil, fmt.Errorf("seed AT_RANDOM: %w", err)
	}
	randomAddr, err := push(random[:])
	if err != nil {
		return 0, nil, err
	}

	envAddrs := make([]uint64, len(cfg.Env))
	for i := len(cfg.Env) - 1; i >= 0; i-- {
		if envAddrs[i], err = pushString(cfg.Env[i]); err != nil {
			return 0, nil, err
		}
	}
	argAddrs := make([]uint64, len(cfg.Args))
	for i := len(cfg.Args) - 1; i >= 0; i-- {
		if argAddrs[i], err = pushString(cfg.Args[i]); err != nil {
			return 0, nil, err
		}
	}

	auxv := BuildAuxv(desc, interpBase, randomAddr, execfnAddr)
	platformAddr, err := pushString(platformName)
	if err != nil {
		return 0, nil, err
	}
	if err := PatchPlatform(auxv, platformAddr); err != nil {
		return 0, nil, err
	}

	// argc + argv + NULL + envp + NULL, then the (tag, value) aux pairs.
	vec := make([]byte, 0, 8*(3+len(argAddrs)+len(envAddrs))+16*len(auxv))
	vec = binary.LittleEndian.AppendUint64(vec, uint64(len(cfg.Args)))
	for _, a := range argAddrs {
		vec = binary.LittleEndian.AppendUint64(vec, a)
	}
	vec = binary.LittleEndian.AppendUint64(vec, 0)
	for _, a := range envAddrs {
		vec = binary.LittleEndian.AppendUint64(vec, a)
	}
	vec = binary.LittleEndian.AppendUint64(vec, 0)
	vec = append(vec, EncodeAuxv(auxv)...)

	sp = (sp - uint64(len(vec))) &^ 15
	if err := mem.WriteAt(vec, sp); err != nil {
		return 0, nil, err
	}
	return sp, auxv, nil
}
