package guest

import (
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/tinyrange/rvu/internal/hv"
	"github.com/tinyrange/rvu/internal/linux"
	"github.com/tinyrange/rvu/internal/vfs"
)

// Filesystem syscall handlers. Descriptors 0/1/2 are the standard streams
// and are handled here directly; everything at or above 3 belongs to the
// vfs handle table.

func (d *Dispatcher) sysOpenat(a sysArgs) int64 {
	dirfd := int64(a[0])
	name, ok := d.readPath(a[1])
	if !ok {
		return linux.EINVAL.Result()
	}
	if dirfd != linux.AT_FDCWD {
		// Relative-to-descriptor lookups are not part of the personality.
		return linux.ENOTSUP.Result()
	}
	flags := int(a[2])

	var fd int
	var err error
	if flags&linux.O_DIRECTORY != 0 {
		fd, err = d.fs.OpenDir(name)
	} else {
		fd, err = d.fs.Open(name, flags)
	}
	if err != nil {
		return vfs.Errno(err).Result()
	}
	return int64(fd)
}

func (d *Dispatcher) sysClose(a sysArgs) int64 {
	fd := int64(a[0])
	if fd >= 0 && fd <= 2 {
		return 0
	}
	if err := d.fs.Close(int(fd)); err != nil {
		return vfs.Errno(err).Result()
	}
	return 0
}

func (d *Dispatcher) sysRead(a sysArgs) int64 {
	fd, addr, count := int64(a[0]), a[1], a[2]
	switch {
	case fd == 0:
		// stdin is permanently at end of file.
		return 0
	case fd == 1 || fd == 2:
		return linux.EBADF.Result()
	}

	// Short reads are allowed; cap the host-side buffer.
	n := count
	if n > ioChunk {
		n = ioChunk
	}
	buf := make([]byte, n)
	rn, err := d.fs.Read(int(fd), buf)
	if err != nil {
		return vfs.Errno(err).Result()
	}
	if rn > 0 {
		if err := d.mem().WriteAt(buf[:rn], addr); err != nil {
			return linux.EINVAL.Result()
		}
	}
	return int64(rn)
}

func (d *Dispatcher) sysWrite(a sysArgs) int64 {
	n, err := d.writeOut(int64(a[0]), a[1], a[2])
	if err != nil {
		if n > 0 {
			return n
		}
		return vfs.Errno(err).Result()
	}
	return n
}

func (d *Dispatcher) sysWritev(a sysArgs) int64 {
	fd, iov, iovcnt := int64(a[0]), a[1], a[2]
	if iovcnt > 1024 {
		return linux.EINVAL.Result()
	}
	var total int64
	for i := uint64(0); i < iovcnt; i++ {
		base, err := hv.ReadUint64(d.mem(), iov+i*linux.IovecSize)
		if err != nil {
			return linux.EINVAL.Result()
		}
		length, err := hv.ReadUint64(d.mem(), iov+i*linux.IovecSize+8)
		if err != nil {
			return linux.EINVAL.Result()
		}
		n, werr := d.writeOut(fd, base, length)
		total += n
		if werr != nil {
			if total > 0 {
				return total
			}
			return vfs.Errno(werr).Result()
		}
	}
	return total
}

// writeOut routes count bytes at addr to a descriptor: fds 1/2 go to the
// host output sinks (flushed per call), fds >= 3 to the vfs, anything else
// is EBADF.
func (d *Dispatcher) writeOut(fd int64, addr, count uint64) (int64, error) {
	switch {
	case fd == 1:
		return d.copySink(d.stdout, addr, count)
	case fd == 2:
		return d.copySink(d.stderr, addr, count)
	case fd >= 3:
		return d.copyToFS(int(fd), addr, count)
	default:
		return 0, linux.EBADF
	}
}

func (d *Dispatcher) copySink(w io.Writer, addr, count uint64) (int64, error) {
	n, err := d.copyFromGuest(w, addr, count)
	if f, ok := w.(interface{ Flush() error }); ok {
		f.Flush()
	}
	return n, err
}

func (d *Dispatcher) copyToFS(fd int, addr, count uint64) (int64, error) {
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
		wn, err := d.fs.Write(fd, buf[:n])
		total += int64(wn)
		if err != nil {
			return total, err
		}
		addr += n
		count -= n
	}
	return total, nil
}

func (d *Dispatcher) sysLseek(a sysArgs) int64 {
	fd := int64(a[0])
	if fd >= 0 && fd <= 2 {
		return linux.ESPIPE.Result()
	}
	pos, err := d.fs.Lseek(int(fd), int64(a[1]), int(a[2]))
	if err != nil {
		return vfs.Errno(err).Result()
	}
	return pos
}

func (d *Dispatcher) sysGetdents64(a sysArgs) int64 {
	buf, err := d.fs.Getdents64(int(int64(a[0])), int(a[2]))
	if err != nil {
		return vfs.Errno(err).Result()
	}
	if len(buf) > 0 {
		if err := d.mem().WriteAt(buf, a[1]); err != nil {
			return linux.EINVAL.Result()
		}
	}
	return int64(len(buf))
}

func (d *Dispatcher) sysReadlinkat(a sysArgs) int64 {
	if int64(a[0]) != linux.AT_FDCWD {
		return linux.ENOTSUP.Result()
	}
	name, ok := d.readPath(a[1])
	if !ok {
		return linux.EINVAL.Result()
	}
	target, err := d.fs.Readlink(name)
	if err != nil {
		return vfs.Errno(err).Result()
	}

	// Truncated to the buffer, no terminator, per readlinkat(2).
	n := uint64(len(target))
	if n > a[3] {
		n = a[3]
	}
	if n > 0 {
		if err := d.mem().WriteAt([]byte(target)[:n], a[2]); err != nil {
			return linux.EINVAL.Result()
		}
	}
	return int64(n)
}

func (d *Dispatcher) sysFaccessat(a sysArgs) int64 {
	if int64(a[0]) != linux.AT_FDCWD {
		return linux.ENOTSUP.Result()
	}
	name, ok := d.readPath(a[1])
	if !ok {
		return linux.EINVAL.Result()
	}
	if _, err := d.fs.Stat(name); err != nil {
		return vfs.Errno(err).Result()
	}
	return 0
}

func (d *Dispatcher) sysNewfstatat(a sysArgs) int64 {
	flags := int(a[3])
	if flags&linux.AT_EMPTY_PATH != 0 {
		return linux.ENOTSUP.Result()
	}
	if int64(a[0]) != linux.AT_FDCWD {
		return linux.ENOTSUP.Result()
	}
	name, ok := d.readPath(a[1])
	if !ok {
		return linux.EINVAL.Result()
	}

	var ent vfs.Entry
	var err error
	if flags&linux.AT_SYMLINK_NOFOLLOW != 0 {
		ent, err = d.fs.Lstat(name)
	} else {
		ent, err = d.fs.Stat(name)
	}
	if err != nil {
		return vfs.Errno(err).Result()
	}
	return d.writeStat(a[2], statFromEntry(d.canonical(name), ent))
}

func (d *Dispatcher) sysFstat(a sysArgs) int64 {
	fd := int64(a[0])
	if fd >= 0 && fd <= 2 {
		// The standard streams present as a character device.
		return d.writeStat(a[1], linux.Stat{
			Dev:     1,
			Ino:     uint64(fd) + 1,
			Mode:    linux.S_IFCHR | 0o620,
			Nlink:   1,
			Blksize: 4096,
		})
	}
	name, ok := d.fs.PathOf(int(fd))
	if !ok {
		return linux.EBADF.Result()
	}
	ent, err := d.fs.Stat(name)
	if err != nil {
		return vfs.Errno(err).Result()
	}
	return d.writeStat(a[1], statFromEntry(name, ent))
}

func (d *Dispatcher) writeStat(addr uint64, st linux.Stat) int64 {
	if err := d.mem().WriteAt(st.Encode(), addr); err != nil {
		return linux.EINVAL.Result()
	}
	return 0
}

func (d *Dispatcher) sysGetcwd(a sysArgs) int64 {
	cwd := d.fs.Getcwd()
	if uint64(len(cwd)+1) > a[1] {
		return linux.ERANGE.Result()
	}
	if err := d.mem().WriteAt(append([]byte(cwd), 0), a[0]); err != nil {
		return linux.EINVAL.Result()
	}
	return int64(a[0])
}

func (d *Dispatcher) sysChdir(a sysArgs) int64 {
	name, ok := d.readPath(a[0])
	if !ok {
		return linux.EINVAL.Result()
	}
	if err := d.fs.Chdir(name); err != nil {
		return vfs.Errno(err).Result()
	}
	return 0
}

// canonical rewrites a guest-supplied path to the absolute form used for
// inode derivation, so "passwd" and "/etc/passwd" agree when the working
// directory is /etc.
func (d *Dispatcher) canonical(name string) string {
	if strings.HasPrefix(name, "/") {
		return path.Clean(name)
	}
	return path.Join(d.fs.Getcwd(), name)
}

// statFromEntry synthesizes the riscv64 stat record for a namespace entry.
// There are no real inodes; numbers are a stable hash of the absolute path.
func statFromEntry(absPath string, ent vfs.Entry) linux.Stat {
	mode := uint32(ent.Mode.Perm())
	nlink := uint32(1)
	switch {
	case ent.Mode.IsDir():
		mode |= linux.S_IFDIR
		nlink = 2
	case ent.Mode&fs.ModeSymlink != 0:
		mode |= linux.S_IFLNK
	default:
		mode |= linux.S_IFREG
	}

	var ts linux.Timespec
	if !ent.ModTime.IsZero() {
		ts = linux.Timespec{Sec: ent.ModTime.Unix(), Nsec: int64(ent.ModTime.Nanosecond())}
	}

	return linux.Stat{
		Dev:     1,
		Ino:     vfs.PathInode(absPath),
		Mode:    mode,
		Nlink:   nlink,
		UID:     ent.UID,
		GID:     ent.GID,
		Size:    int64(ent.Size),
		Blksize: 4096,
		Blocks:  int64((ent.Size + 511) / 512),
		Atime:   ts,
		Mtime:   ts,
		Ctime:   ts,
	}
}
