package guest

import (
	"time"

	"github.com/tinyrange/rvu/internal/linux"
)

func (d *Dispatcher) sysClockGettime(a sysArgs) int64 {
	// All clock ids report host wall time; the guest has no other clock.
	now := time.Now()
	ts := linux.Timespec{Sec: now.Unix(), Nsec: int64(now.Nanosecond())}
	if err := d.mem().WriteAt(ts.Append(nil), a[1]); err != nil {
		return linux.EINVAL.Result()
	}
	return 0
}

func (d *Dispatcher) sysGetrandom(a sysArgs) int64 {
	addr, count := a[0], a[1]
	var buf [ioChunk]byte
	remain := count
	for remain > 0 {
		n := remain
		if n > ioChunk {
			n = ioChunk
		}
		d.rng.Read(buf[:n])
		if err := d.mem().WriteAt(buf[:n], addr); err != nil {
			return linux.EINVAL.Result()
		}
		addr += n
		remain -= n
	}
	return int64(count)
}

func (d *Dispatcher) sysIoctl(a sysArgs) int64 {
	fd, req := int64(a[0]), a[1]
	if req == linux.TIOCGWINSZ && fd >= 0 && fd <= 2 {
		ws := linux.Winsize{Row: 24, Col: 80}
		if err := d.mem().WriteAt(ws.Encode(), a[2]); err != nil {
			return linux.EINVAL.Result()
		}
		return 0
	}
	return linux.ENOTSUP.Result()
}

func (d *Dispatcher) sysFcntl(a sysArgs) int64 {
	switch a[1] {
	case linux.F_GETFD, linux.F_SETFD, linux.F_GETFL, linux.F_SETFL:
		return 0
	default:
		return linux.EINVAL.Result()
	}
}

// sysBridge forwards a guest buffer over the host bridge channel. The error
// result is a bare -1: the channel predates errno mapping and its peers
// check only the sign.
func (d *Dispatcher) sysBridge(a sysArgs) int64 {
	addr, count := a[0], a[1]
	if count > d.mem().Size() {
		return -1
	}
	buf := make([]byte, count)
	if err := d.mem().ReadAt(buf, addr); err != nil {
		return -1
	}
	if err := d.bridge.Send(buf); err != nil {
		d.log.Warn("bridge transport failed", "error", err)
		return -1
	}
	return 0
}
