package guest

import (
	cryptorand "crypto/rand"
	"io"
	"log/slog"
	mathrand "math/rand/v2"
	"os"

	"github.com/tinyrange/rvu/internal/hv"
	"github.com/tinyrange/rvu/internal/linux"
	"github.com/tinyrange/rvu/internal/vfs"
)

// sysArgs are the raw syscall arguments a0..a5.
type sysArgs [6]uint64

// Options configures a Dispatcher. Zero values select the defaults: process
// stdout/stderr, the default slog logger, and a bridge transport that frames
// messages onto stdout.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Bridge BridgeTransport
	Logger *slog.Logger
}

// Dispatcher is the syscall personality of the sandbox. It owns one machine,
// one filesystem view, one randomness stream and one host-bridge transport;
// every ecall the engine traps lands in HandleSyscall, which reads the
// argument registers, runs exactly one handler and writes the result word
// back to a0. Results follow the kernel convention: non-negative on success,
// a negated errno on failure.
type Dispatcher struct {
	machine hv.Machine
	fs      vfs.FS
	stdout  io.Writer
	stderr  io.Writer
	bridge  BridgeTransport
	log     *slog.Logger
	rng     *mathrand.ChaCha8

	exitCode int
	exited   bool
}

func NewDispatcher(machine hv.Machine, fsys vfs.FS, opts Options) *Dispatcher {
	d := &Dispatcher{
		machine: machine,
		fs:      fsys,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		bridge:  opts.Bridge,
		log:     opts.Logger,
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	if d.bridge == nil {
		d.bridge = NewLogTransport(d.stdout)
	}
	if d.log == nil {
		d.log = slog.Default()
	}

	var seed [32]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// The host entropy pool failing is not survivable in any useful
		// way; fall back to a fixed stream rather than refusing to boot.
		d.log.Error("seeding guest randomness failed", "error", err)
	}
	d.rng = mathrand.NewChaCha8(seed)
	return d
}

// Install registers the dispatcher as the machine's syscall handler.
func (d *Dispatcher) Install() {
	d.machine.SetSyscallHandler(d)
}

// ExitStatus reports the code passed to exit/exit_group, and whether the
// guest has exited at all.
func (d *Dispatcher) ExitStatus() (int, bool) {
	return d.exitCode, d.exited
}

var _ hv.SyscallHandler = &Dispatcher{}

// HandleSyscall implements hv.SyscallHandler.
func (d *Dispatcher) HandleSyscall(cpu hv.VirtualCPU) error {
	regs := map[hv.Register]hv.RegisterValue{
		hv.RegisterRISCVA7: hv.Register64(0),
		hv.RegisterRISCVA0: hv.Register64(0),
		hv.RegisterRISCVA1: hv.Register64(0),
		hv.RegisterRISCVA2: hv.Register64(0),
		hv.RegisterRISCVA3: hv.Register64(0),
		hv.RegisterRISCVA4: hv.Register64(0),
		hv.RegisterRISCVA5: hv.Register64(0),
	}
	if err := cpu.GetRegisters(regs); err != nil {
		return err
	}
	reg := func(r hv.Register) uint64 {
		v, _ := regs[r].(hv.Register64)
		return uint64(v)
	}

	nr := linux.Syscall(reg(hv.RegisterRISCVA7))
	args := sysArgs{
		reg(hv.RegisterRISCVA0), reg(hv.RegisterRISCVA1),
		reg(hv.RegisterRISCVA2), reg(hv.RegisterRISCVA3),
		reg(hv.RegisterRISCVA4), reg(hv.RegisterRISCVA5),
	}

	result := d.dispatch(nr, args)
	d.log.Debug("syscall", "nr", nr.String(), "a0", args[0], "result", result)

	return hv.SetRegister64(cpu, hv.RegisterRISCVA0, uint64(result))
}

// dispatch is total: every syscall number produces a result word, never a
// host-side failure.
func (d *Dispatcher) dispatch(nr linux.Syscall, a sysArgs) int64 {
	switch nr {
	case linux.SYS_OPENAT:
		return d.sysOpenat(a)
	case linux.SYS_CLOSE:
		return d.sysClose(a)
	case linux.SYS_READ:
		return d.sysRead(a)
	case linux.SYS_WRITE:
		return d.sysWrite(a)
	case linux.SYS_WRITEV:
		return d.sysWritev(a)
	case linux.SYS_LSEEK:
		return d.sysLseek(a)
	case linux.SYS_GETDENTS64:
		return d.sysGetdents64(a)
	case linux.SYS_READLINKAT:
		return d.sysReadlinkat(a)
	case linux.SYS_FACCESSAT:
		return d.sysFaccessat(a)
	case linux.SYS_NEWFSTATAT:
		return d.sysNewfstatat(a)
	case linux.SYS_FSTAT:
		return d.sysFstat(a)
	case linux.SYS_GETCWD:
		return d.sysGetcwd(a)
	case linux.SYS_CHDIR:
		return d.sysChdir(a)

	case linux.SYS_EXIT, linux.SYS_EXIT_GROUP:
		return d.sysExit(a)
	case linux.SYS_SET_TID_ADDRESS, linux.SYS_GETPID, linux.SYS_GETTID:
		return 1
	case linux.SYS_GETPPID, linux.SYS_GETUID, linux.SYS_GETEUID,
		linux.SYS_GETGID, linux.SYS_GETEGID:
		return 0
	case linux.SYS_CLOCK_GETTIME:
		return d.sysClockGettime(a)
	case linux.SYS_GETRANDOM:
		return d.sysGetrandom(a)
	case linux.SYS_IOCTL:
		return d.sysIoctl(a)
	case linux.SYS_FCNTL:
		return d.sysFcntl(a)

	case linux.SYS_BRK:
		return 0
	case linux.SYS_MMAP:
		return linux.ENOMEM.Result()
	case linux.SYS_MUNMAP, linux.SYS_MPROTECT:
		return 0
	case linux.SYS_PRLIMIT64:
		return 0

	// Single-threaded sandbox: no signal delivery, no descriptor
	// duplication, no pipes, no restartable sequences.
	case linux.SYS_RT_SIGACTION, linux.SYS_RT_SIGPROCMASK,
		linux.SYS_DUP, linux.SYS_DUP3, linux.SYS_PIPE2, linux.SYS_RSEQ:
		return linux.ENOSYS.Result()

	case BridgeSyscall:
		return d.sysBridge(a)

	default:
		d.log.Warn("unhandled syscall", "nr", nr.String())
		return linux.ENOSYS.Result()
	}
}

func (d *Dispatcher) sysExit(a sysArgs) int64 {
	code := int64(a[0])
	d.exitCode = int(code)
	d.exited = true
	d.machine.Stop()
	return code
}

func (d *Dispatcher) mem() hv.GuestMemory {
	return d.machine.Memory()
}

// readPath reads a NUL-terminated path argument. An unreadable pointer is an
// EINVAL result, never a host fault.
func (d *Dispatcher) readPath(addr uint64) (string, bool) {
	s, err := hv.ReadString(d.mem(), addr)
	if err != nil {
		return "", false
	}
	return s, true
}

// ioChunk bounds per-iteration buffer allocation for guest-sized reads and
// writes.
const ioChunk = 1 << 16

// copyFromGuest streams count bytes of guest memory into w.
func (d *Dispatcher) copyFromGuest(w io.Writer, addr, count uint64) (int64, error) {
	var buf [ioChunk]byte
	var total int64
	for count > 0 {
		n := count
		if n > ioChunk {
			n = ioChunk
		}
		if err := d.mem().ReadAt(buf[:n], addr); err != nil {
			return total, linux.EINVAL
		}
		written, err := w.Write(buf[:n])
		total += int64(written)
		if err != nil {
			return total, linux.EIO
		}
		addr += n
		count -= n
	}
	return total, nil
}
