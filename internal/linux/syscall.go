// Package linux carries the guest-visible Linux RISC-V 64 ABI: syscall
// numbers, errno values, flag constants and the exact little-endian layouts
// of the structures the kernel hands to userspace. Everything here is wire
// format; behavior lives in the guest package.
package linux

import "fmt"

// Syscall is a RISC-V 64 Linux syscall number (passed in a7).
type Syscall uint64

const (
	SYS_GETCWD          Syscall = 17
	SYS_DUP             Syscall = 23
	SYS_DUP3            Syscall = 24
	SYS_FCNTL           Syscall = 25
	SYS_IOCTL           Syscall = 29
	SYS_MKDIRAT         Syscall = 34
	SYS_UNLINKAT        Syscall = 35
	SYS_SYMLINKAT       Syscall = 36
	SYS_LINKAT          Syscall = 37
	SYS_RENAMEAT        Syscall = 38
	SYS_FTRUNCATE       Syscall = 46
	SYS_FACCESSAT       Syscall = 48
	SYS_CHDIR           Syscall = 49
	SYS_OPENAT          Syscall = 56
	SYS_CLOSE           Syscall = 57
	SYS_PIPE2           Syscall = 59
	SYS_GETDENTS64      Syscall = 61
	SYS_LSEEK           Syscall = 62
	SYS_READ            Syscall = 63
	SYS_WRITE           Syscall = 64
	SYS_READV           Syscall = 65
	SYS_WRITEV          Syscall = 66
	SYS_PREAD64         Syscall = 67
	SYS_PWRITE64        Syscall = 68
	SYS_READLINKAT      Syscall = 78
	SYS_NEWFSTATAT      Syscall = 79
	SYS_FSTAT           Syscall = 80
	SYS_EXIT            Syscall = 93
	SYS_EXIT_GROUP      Syscall = 94
	SYS_SET_TID_ADDRESS Syscall = 96
	SYS_CLOCK_GETTIME   Syscall = 113
	SYS_RT_SIGACTION    Syscall = 134
	SYS_RT_SIGPROCMASK  Syscall = 135
	SYS_GETPID          Syscall = 172
	SYS_GETPPID         Syscall = 173
	SYS_GETUID          Syscall = 174
	SYS_GETEUID         Syscall = 175
	SYS_GETGID          Syscall = 176
	SYS_GETEGID         Syscall = 177
	SYS_GETTID          Syscall = 178
	SYS_SYSINFO         Syscall = 179
	SYS_BRK             Syscall = 214
	SYS_MUNMAP          Syscall = 215
	SYS_MMAP            Syscall = 222
	SYS_MPROTECT        Syscall = 226
	SYS_PRLIMIT64       Syscall = 261
	SYS_GETRANDOM       Syscall = 278
	SYS_RSEQ            Syscall = 293
)

var syscallNames = map[Syscall]string{
	SYS_GETCWD:          "getcwd",
	SYS_DUP:             "dup",
	SYS_DUP3:            "dup3",
	SYS_FCNTL:           "fcntl",
	SYS_IOCTL:           "ioctl",
	SYS_MKDIRAT:         "mkdirat",
	SYS_UNLINKAT:        "unlinkat",
	SYS_SYMLINKAT:       "symlinkat",
	SYS_LINKAT:          "linkat",
	SYS_RENAMEAT:        "renameat",
	SYS_FTRUNCATE:       "ftruncate",
	SYS_FACCESSAT:       "faccessat",
	SYS_CHDIR:           "chdir",
	SYS_OPENAT:          "openat",
	SYS_CLOSE:           "close",
	SYS_PIPE2:           "pipe2",
	SYS_GETDENTS64:      "getdents64",
	SYS_LSEEK:           "lseek",
	SYS_READ:            "read",
	SYS_WRITE:           "write",
	SYS_READV:           "readv",
	SYS_WRITEV:          "writev",
	SYS_PREAD64:         "pread64",
	SYS_PWRITE64:        "pwrite64",
	SYS_READLINKAT:      "readlinkat",
	SYS_NEWFSTATAT:      "newfstatat",
	SYS_FSTAT:           "fstat",
	SYS_EXIT:            "exit",
	SYS_EXIT_GROUP:      "exit_group",
	SYS_SET_TID_ADDRESS: "set_tid_address",
	SYS_CLOCK_GETTIME:   "clock_gettime",
	SYS_RT_SIGACTION:    "rt_sigaction",
	SYS_RT_SIGPROCMASK:  "rt_sigprocmask",
	SYS_GETPID:          "getpid",
	SYS_GETPPID:         "getppid",
	SYS_GETUID:          "getuid",
	SYS_GETEUID:         "geteuid",
	SYS_GETGID:          "getgid",
	SYS_GETEGID:         "getegid",
	SYS_GETTID:          "gettid",
	SYS_SYSINFO:         "sysinfo",
	SYS_BRK:             "brk",
	SYS_MUNMAP:          "munmap",
	SYS_MMAP:            "mmap",
	SYS_MPROTECT:        "mprotect",
	SYS_PRLIMIT64:       "prlimit64",
	SYS_GETRANDOM:       "getrandom",
	SYS_RSEQ:            "rseq",
}

func (s Syscall) String() string {
	if name, ok := syscallNames[s]; ok {
		return name
	}
	return fmt.Sprintf("syscall#%d", uint64(s))
}
