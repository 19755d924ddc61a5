package linux

import "fmt"

// Errno is a Linux error number. Values are positive; syscall results carry
// them negated in a0 per the kernel convention. Errno implements error so the
// vfs layer can return it directly.
type Errno int64

const (
	EPERM      Errno = 1
	ENOENT     Errno = 2
	EIO        Errno = 5
	ENXIO      Errno = 6
	EBADF      Errno = 9
	ENOMEM     Errno = 12
	EACCES     Errno = 13
	EEXIST     Errno = 17
	ENOTDIR    Errno = 20
	EISDIR     Errno = 21
	EINVAL     Errno = 22
	ENOSPC     Errno = 28
	ESPIPE     Errno = 29
	ERANGE     Errno = 34
	ENAMETOOLONG Errno = 36
	ENOSYS     Errno = 38
	ENOTEMPTY  Errno = 39
	ELOOP      Errno = 40
	ENOTSUP    Errno = 95
)

var errnoNames = map[Errno]string{
	EPERM:        "EPERM",
	ENOENT:       "ENOENT",
	EIO:          "EIO",
	ENXIO:        "ENXIO",
	EBADF:        "EBADF",
	ENOMEM:       "ENOMEM",
	EACCES:       "EACCES",
	EEXIST:       "EEXIST",
	ENOTDIR:      "ENOTDIR",
	EISDIR:       "EISDIR",
	EINVAL:       "EINVAL",
	ENOSPC:       "ENOSPC",
	ESPIPE:       "ESPIPE",
	ERANGE:       "ERANGE",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOSYS:       "ENOSYS",
	ENOTEMPTY:    "ENOTEMPTY",
	ELOOP:        "ELOOP",
	ENOTSUP:      "ENOTSUP",
}

func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno %d", int64(e))
}

// Result converts the errno into the negative result word written to a0.
func (e Errno) Result() int64 { return -int64(e) }
