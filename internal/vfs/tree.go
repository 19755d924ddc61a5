package vfs

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/tinyrange/rvu/internal/linux"
)

const maxSymlinkDepth = 40

// Tree is the in-memory FS implementation. The namespace is an in-memory
// node tree; host directories and other backings are grafted in with Mount.
type Tree struct {
	root    *memDir
	cwd     string
	handles map[int]*handle
	nextFD  int
}

type handle struct {
	path string
	file FileNode
	dir  DirNode
	pos  int64

	// getdents64 state: snapshot of encoded entries, taken on first read.
	dents    []dent
	dentIdx  int
	snapshot bool
}

type dent struct {
	name string
	ino  uint64
	typ  uint8
}

func NewTree() *Tree {
	return &Tree{
		root:    newMemDir(0o755),
		cwd:     "/",
		handles: make(map[int]*handle),
		nextFD:  3,
	}
}

// ----- in-memory nodes -----

type memDir struct {
	perm    fs.FileMode
	entries map[string]Node
	modTime time.Time
}

func newMemDir(perm fs.FileMode) *memDir {
	return &memDir{perm: perm, entries: make(map[string]Node), modTime: time.Now()}
}

func (d *memDir) Stat() Entry {
	return Entry{Mode: fs.ModeDir | d.perm, ModTime: d.modTime}
}

func (d *memDir) Names() ([]string, error) {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *memDir) Lookup(name string) (Node, error) {
	n, ok := d.entries[name]
	if !ok {
		return nil, linux.ENOENT
	}
	return n, nil
}

type memFile struct {
	perm    fs.FileMode
	data    []byte
	modTime time.Time
}

func (f *memFile) Stat() Entry {
	return Entry{Mode: f.perm, Size: uint64(len(f.data)), ModTime: f.modTime}
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[off:]), nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	f.modTime = time.Now()
	return len(p), nil
}

func (f *memFile) Truncate(size uint64) error {
	if size <= uint64(len(f.data)) {
		f.data = f.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}
	f.modTime = time.Now()
	return nil
}

type memSymlink struct {
	target  string
	modTime time.Time
}

func (s *memSymlink) Stat() Entry {
	return Entry{
		Mode:    fs.ModeSymlink | 0o777,
		Size:    uint64(len(s.target)),
		ModTime: s.modTime,
		Target:  s.target,
	}
}

// ----- population (host-side setup, not guest-reachable) -----

// MkdirAll creates the directory and any missing parents inside the
// in-memory tree.
func (t *Tree) MkdirAll(p string, perm fs.FileMode) error {
	dir := t.root
	for _, part := range splitPath(p) {
		child, ok := dir.entries[part]
		if !ok {
			next := newMemDir(perm)
			dir.entries[part] = next
			dir = next
			continue
		}
		sub, ok := child.(*memDir)
		if !ok {
			return linux.ENOTDIR
		}
		dir = sub
	}
	return nil
}

// WriteFile creates (or replaces) an in-memory file.
func (t *Tree) WriteFile(p string, data []byte, perm fs.FileMode) error {
	dir, name, err := t.hostParent(p)
	if err != nil {
		return err
	}
	dir.entries[name] = &memFile{
		perm:    perm,
		data:    append([]byte(nil), data...),
		modTime: time.Now(),
	}
	return nil
}

// Symlink creates an in-memory symlink at p pointing at target.
func (t *Tree) Symlink(target, p string) error {
	dir, name, err := t.hostParent(p)
	if err != nil {
		return err
	}
	dir.entries[name] = &memSymlink{target: target, modTime: time.Now()}
	return nil
}

// Mount grafts a directory backing (for example an OSDir) at p.
func (t *Tree) Mount(p string, node DirNode) error {
	dir, name, err := t.hostParent(p)
	if err != nil {
		return err
	}
	dir.entries[name] = node
	return nil
}

func (t *Tree) hostParent(p string) (*memDir, string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return nil, "", linux.EINVAL
	}
	if err := t.MkdirAll(path.Dir(path.Join("/", p)), 0o755); err != nil {
		return nil, "", err
	}
	dir := t.root
	for _, part := range parts[:len(parts)-1] {
		sub, ok := dir.entries[part].(*memDir)
		if !ok {
			return nil, "", linux.ENOTDIR
		}
		dir = sub
	}
	return dir, parts[len(parts)-1], nil
}

// ----- path resolution -----

func splitPath(p string) []string {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return nil
	}
	return strings.Split(clean[1:], "/")
}

func (t *Tree) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(t.cwd, p)
}

// resolve walks the namespace. Intermediate symlinks are always followed;
// the final component only when followFinal is set. Returns the node and the
// fully resolved absolute path.
func (t *Tree) resolve(p string, followFinal bool) (Node, string, error) {
	return t.walk(t.abs(p), followFinal, 0)
}

func (t *Tree) walk(absPath string, followFinal bool, depth int) (Node, string, error) {
	if depth > maxSymlinkDepth {
		return nil, "", linux.ELOOP
	}

	var cur Node = t.root
	parts := splitPath(absPath)
	for i, part := range parts {
		dir, ok := cur.(DirNode)
		if !ok {
			return nil, "", linux.ENOTDIR
		}
		next, err := dir.Lookup(part)
		if err != nil {
			return nil, "", Errno(err)
		}

		last := i == len(parts)-1
		ent := next.Stat()
		if ent.Mode&fs.ModeSymlink != 0 && (!last || followFinal) {
			target := ent.Target
			if !path.IsAbs(target) {
				target = path.Join("/", path.Join(parts[:i]...), target)
			}
			rest := path.Join(parts[i+1:]...)
			return t.walk(path.Join(target, rest), followFinal, depth+1)
		}
		cur = next
	}
	return cur, path.Join("/", path.Join(parts...)), nil
}

// ----- FS surface -----

func (t *Tree) Open(p string, flags int) (int, error) {
	node, resolved, err := t.resolve(p, true)
	if err == linux.ENOENT && flags&linux.O_CREAT != 0 {
		node, resolved, err = t.create(p)
	}
	if err != nil {
		return 0, err
	}
	file, ok := node.(FileNode)
	if !ok {
		if _, isDir := node.(DirNode); isDir {
			return 0, linux.EISDIR
		}
		return 0, linux.EINVAL
	}
	if flags&linux.O_TRUNC != 0 && flags&linux.O_ACCMODE != linux.O_RDONLY {
		if err := file.Truncate(0); err != nil {
			return 0, Errno(err)
		}
	}
	fd := t.nextFD
	t.nextFD++
	h := &handle{path: resolved, file: file}
	if flags&linux.O_APPEND != 0 {
		h.pos = int64(file.Stat().Size)
	}
	t.handles[fd] = h
	return fd, nil
}

func (t *Tree) create(p string) (Node, string, error) {
	abs := t.abs(p)
	parentNode, _, err := t.walk(path.Dir(abs), true, 0)
	if err != nil {
		return nil, "", err
	}
	parent, ok := parentNode.(*memDir)
	if !ok {
		// Mounted backings are read-only; only the in-memory tree
		// accepts new entries.
		return nil, "", linux.EACCES
	}
	name := path.Base(abs)
	file := &memFile{perm: 0o644, modTime: time.Now()}
	parent.entries[name] = file
	return file, abs, nil
}

func (t *Tree) OpenDir(p string) (int, error) {
	node, resolved, err := t.resolve(p, true)
	if err != nil {
		return 0, err
	}
	dir, ok := node.(DirNode)
	if !ok {
		return 0, linux.ENOTDIR
	}
	fd := t.nextFD
	t.nextFD++
	t.handles[fd] = &handle{path: resolved, dir: dir}
	return fd, nil
}

func (t *Tree) Close(fd int) error {
	if _, ok := t.handles[fd]; !ok {
		return linux.EBADF
	}
	delete(t.handles, fd)
	return nil
}

func (t *Tree) Read(fd int, p []byte) (int, error) {
	h, ok := t.handles[fd]
	if !ok {
		return 0, linux.EBADF
	}
	if h.file == nil {
		return 0, linux.EISDIR
	}
	n, err := h.file.ReadAt(p, h.pos)
	if err != nil {
		return 0, Errno(err)
	}
	h.pos += int64(n)
	return n, nil
}

func (t *Tree) Write(fd int, p []byte) (int, error) {
	h, ok := t.handles[fd]
	if !ok {
		return 0, linux.EBADF
	}
	if h.file == nil {
		return 0, linux.EISDIR
	}
	n, err := h.file.WriteAt(p, h.pos)
	if err != nil {
		return 0, Errno(err)
	}
	h.pos += int64(n)
	return n, nil
}

func (t *Tree) Lseek(fd int, offset int64, whence int) (int64, error) {
	h, ok := t.handles[fd]
	if !ok {
		return 0, linux.EBADF
	}
	if h.dir != nil {
		// rewinddir(3) arrives as lseek(fd, 0, SEEK_SET).
		if whence == linux.SEEK_SET && offset == 0 {
			h.dents, h.dentIdx, h.snapshot = nil, 0, false
			return 0, nil
		}
		return 0, linux.EINVAL
	}
	var next int64
	switch whence {
	case linux.SEEK_SET:
		next = offset
	case linux.SEEK_CUR:
		next = h.pos + offset
	case linux.SEEK_END:
		next = int64(h.file.Stat().Size) + offset
	default:
		return 0, linux.EINVAL
	}
	if next < 0 {
		return 0, linux.EINVAL
	}
	h.pos = next
	return next, nil
}

func (t *Tree) Getdents64(fd int, maxBytes int) ([]byte, error) {
	h, ok := t.handles[fd]
	if !ok {
		return nil, linux.EBADF
	}
	if h.dir == nil {
		return nil, linux.ENOTDIR
	}
	if !h.snapshot {
		dents, err := t.snapshotDents(h)
		if err != nil {
			return nil, err
		}
		h.dents, h.dentIdx, h.snapshot = dents, 0, true
	}

	var buf []byte
	for h.dentIdx < len(h.dents) {
		d := h.dents[h.dentIdx]
		if len(buf) > 0 && len(buf)+linux.DirentSize(d.name) > maxBytes {
			break
		}
		if linux.DirentSize(d.name) > maxBytes {
			return nil, linux.EINVAL
		}
		buf = linux.AppendDirent(buf, d.ino, int64(h.dentIdx+1), d.typ, d.name)
		h.dentIdx++
	}
	if buf == nil {
		buf = []byte{}
	}
	return buf, nil
}

func (t *Tree) snapshotDents(h *handle) ([]dent, error) {
	names, err := h.dir.Names()
	if err != nil {
		return nil, Errno(err)
	}
	parent := path.Dir(h.path)
	dents := []dent{
		{name: ".", ino: PathInode(h.path), typ: linux.DT_DIR},
		{name: "..", ino: PathInode(parent), typ: linux.DT_DIR},
	}
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		typ := uint8(linux.DT_REG)
		if child, err := h.dir.Lookup(name); err == nil {
			mode := child.Stat().Mode
			switch {
			case mode.IsDir():
				typ = linux.DT_DIR
			case mode&fs.ModeSymlink != 0:
				typ = linux.DT_LNK
			}
		}
		dents = append(dents, dent{
			name: name,
			ino:  PathInode(path.Join(h.path, name)),
			typ:  typ,
		})
	}
	return dents, nil
}

func (t *Tree) Stat(p string) (Entry, error) {
	node, _, err := t.resolve(p, true)
	if err != nil {
		return Entry{}, err
	}
	return node.Stat(), nil
}

func (t *Tree) Lstat(p string) (Entry, error) {
	node, _, err := t.resolve(p, false)
	if err != nil {
		return Entry{}, err
	}
	return node.Stat(), nil
}

func (t *Tree) Readlink(p string) (string, error) {
	node, _, err := t.resolve(p, false)
	if err != nil {
		return "", err
	}
	ent := node.Stat()
	if ent.Mode&fs.ModeSymlink == 0 {
		return "", linux.EINVAL
	}
	return ent.Target, nil
}

func (t *Tree) Getcwd() string { return t.cwd }

func (t *Tree) Chdir(p string) error {
	node, resolved, err := t.resolve(p, true)
	if err != nil {
		return err
	}
	if _, ok := node.(DirNode); !ok {
		return linux.ENOTDIR
	}
	t.cwd = resolved
	return nil
}

func (t *Tree) PathOf(fd int) (string, bool) {
	h, ok := t.handles[fd]
	if !ok {
		return "", false
	}
	return h.path, true
}

var _ FS = &Tree{}
