// Package vfs provides the virtual file namespace the guest sees. The
// surface is POSIX-shaped and keyed by small integer handles; errors are
// linux.Errno values so the syscall layer can surface them unchanged. The
// sandbox is single-threaded and issues one operation at a time, so
// implementations carry no locking.
package vfs

import (
	"io/fs"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tinyrange/rvu/internal/linux"
)

// Entry describes a node's metadata, used to synthesize stat records.
type Entry struct {
	Mode    fs.FileMode
	UID     uint32
	GID     uint32
	Size    uint64
	ModTime time.Time
	Target  string // symlink target, set iff Mode has fs.ModeSymlink
}

// Node is anything resolvable in the namespace.
type Node interface {
	Stat() Entry
}

// FileNode is a regular file backing. Offsets are managed by the FS handle,
// not the node.
type FileNode interface {
	Node
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size uint64) error
}

// DirNode is a directory backing: stable child enumeration plus lookup.
type DirNode interface {
	Node
	Names() ([]string, error)
	Lookup(name string) (Node, error)
}

// FS is the handle-keyed surface consumed by the syscall layer. Handles are
// small integers >= 3; 0/1/2 belong to the standard streams and never appear
// here.
type FS interface {
	Open(path string, flags int) (int, error)
	OpenDir(path string) (int, error)
	Close(fd int) error
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Lseek(fd int, offset int64, whence int) (int64, error)

	// Getdents64 returns encoded linux_dirent64 records, at most maxBytes
	// worth, advancing the handle's position. An empty slice means end of
	// directory.
	Getdents64(fd int, maxBytes int) ([]byte, error)

	Stat(path string) (Entry, error)
	Lstat(path string) (Entry, error)
	Readlink(path string) (string, error)
	Getcwd() string
	Chdir(path string) error

	// PathOf reports the path a handle was opened with, for stat-by-fd
	// synthesis.
	PathOf(fd int) (string, bool)
}

// PathInode derives a stable inode number from an absolute path. There is no
// real inode allocator; hashing keeps numbers deterministic across runs.
func PathInode(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Errno converts an arbitrary backing error into a linux.Errno, defaulting
// to EIO for host-level failures the guest has no better name for.
func Errno(err error) linux.Errno {
	if e, ok := err.(linux.Errno); ok {
		return e
	}
	return linux.EIO
}
