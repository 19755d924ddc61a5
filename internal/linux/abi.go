package linux

import "encoding/binary"

// The encoders below produce the exact byte layouts the RISC-V 64 kernel ABI
// hands to userspace. They are written field by field on purpose: the guest
// never shares host struct layout and padding must be explicit.

// Timespec is the two-field time layout used by clock_gettime and stat.
type Timespec struct {
	Sec  int64
	Nsec int64
}

const TimespecSize = 16

func (t Timespec) Append(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Sec))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Nsec))
	return buf
}

// Stat mirrors struct stat for riscv64 (128 bytes on the wire).
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    int64
	Blksize int32
	Blocks  int64
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
}

const StatSize = 128

func (s Stat) Encode() []byte {
	buf := make([]byte, 0, StatSize)
	buf = binary.LittleEndian.AppendUint64(buf, s.Dev)
	buf = binary.LittleEndian.AppendUint64(buf, s.Ino)
	buf = binary.LittleEndian.AppendUint32(buf, s.Mode)
	buf = binary.LittleEndian.AppendUint32(buf, s.Nlink)
	buf = binary.LittleEndian.AppendUint32(buf, s.UID)
	buf = binary.LittleEndian.AppendUint32(buf, s.GID)
	buf = binary.LittleEndian.AppendUint64(buf, s.Rdev)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // __pad1
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Size))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(s.Blksize))
	buf = binary.LittleEndian.AppendUint32(buf, 0) // __pad2
	buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Blocks))
	buf = s.Atime.Append(buf)
	buf = s.Mtime.Append(buf)
	buf = s.Ctime.Append(buf)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // __unused[2]
	return buf
}

// Winsize is the ioctl(TIOCGWINSZ) result layout.
type Winsize struct {
	Row    uint16
	Col    uint16
	Xpixel uint16
	Ypixel uint16
}

func (w Winsize) Encode() []byte {
	buf := make([]byte, 0, 8)
	buf = binary.LittleEndian.AppendUint16(buf, w.Row)
	buf = binary.LittleEndian.AppendUint16(buf, w.Col)
	buf = binary.LittleEndian.AppendUint16(buf, w.Xpixel)
	buf = binary.LittleEndian.AppendUint16(buf, w.Ypixel)
	return buf
}

// IovecSize is the on-wire size of struct iovec (pointer + length).
const IovecSize = 16

// direntHeaderSize covers d_ino, d_off, d_reclen and d_type; the name plus
// its terminator follows, and the whole record is padded to 8 bytes.
const direntHeaderSize = 19

// DirentSize returns the record length getdents64 uses for a name.
func DirentSize(name string) int {
	return (direntHeaderSize + len(name) + 1 + 7) &^ 7
}

// AppendDirent appends one linux_dirent64 record. off is the cookie the
// kernel reports in d_off for resuming enumeration after this entry.
func AppendDirent(buf []byte, ino uint64, off int64, typ uint8, name string) []byte {
	reclen := DirentSize(name)
	buf = binary.LittleEndian.AppendUint64(buf, ino)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(off))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(reclen))
	buf = append(buf, typ)
	buf = append(buf, name...)
	for pad := reclen - direntHeaderSize - len(name); pad > 0; pad-- {
		buf = append(buf, 0)
	}
	return buf
}
