package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyrange/rvu/internal/linux"
)

// OSDir exposes a host directory to the guest, read-only. Lookups are
// confined to the host path: resolved names that escape it are reported as
// absent rather than followed.
type OSDir struct {
	hostPath string
}

func NewOSDir(hostPath string) (*OSDir, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return nil, fmt.Errorf("stat host path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("host path is not a directory: %s", hostPath)
	}
	absPath, err := filepath.Abs(hostPath)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	return &OSDir{hostPath: absPath}, nil
}

func (d *OSDir) Stat() Entry {
	ent := Entry{Mode: fs.ModeDir | 0o755}
	if info, err := os.Stat(d.hostPath); err == nil {
		ent.Mode = fs.ModeDir | info.Mode().Perm()
		ent.ModTime = info.ModTime()
	}
	return ent
}

func (d *OSDir) Names() ([]string, error) {
	entries, err := os.ReadDir(d.hostPath)
	if err != nil {
		return nil, linux.EIO
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (d *OSDir) Lookup(name string) (Node, error) {
	full := filepath.Join(d.hostPath, name)

	// Confinement check: a crafted name must not reach outside hostPath.
	abs, err := filepath.Abs(full)
	if err != nil || !strings.HasPrefix(abs, d.hostPath+string(filepath.Separator)) {
		return nil, linux.ENOENT
	}

	info, err := os.Lstat(full)
	if err != nil {
		return nil, linux.ENOENT
	}
	switch {
	case info.IsDir():
		return &OSDir{hostPath: full}, nil
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(full)
		if err != nil {
			return nil, linux.EIO
		}
		return &osSymlink{target: target, modTime: info.ModTime()}, nil
	case info.Mode().IsRegular():
		return &osFile{hostPath: full}, nil
	default:
		// Sockets, fifos and device nodes are not representable here.
		return nil, linux.ENOENT
	}
}

type osFile struct {
	hostPath string
}

func (f *osFile) Stat() Entry {
	info, err := os.Stat(f.hostPath)
	if err != nil {
		return Entry{Mode: 0o644}
	}
	return Entry{
		Mode:    info.Mode().Perm(),
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
	}
}

func (f *osFile) ReadAt(p []byte, off int64) (int, error) {
	file, err := os.Open(f.hostPath)
	if err != nil {
		return 0, linux.EIO
	}
	defer file.Close()
	n, err := file.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, linux.EIO
	}
	return n, nil
}

func (f *osFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, linux.EACCES
}

func (f *osFile) Truncate(size uint64) error {
	return linux.EACCES
}

type osSymlink struct {
	target  string
	modTime time.Time
}

func (s *osSymlink) Stat() Entry {
	return Entry{
		Mode:    fs.ModeSymlink | 0o777,
		Size:    uint64(len(s.target)),
		ModTime: s.modTime,
		Target:  s.target,
	}
}

var (
	_ DirNode  = &OSDir{}
	_ FileNode = &osFile{}
	_ Node     = &osSymlink{}
)
