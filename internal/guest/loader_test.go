package guest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/tinyrange/rvu/internal/elffile"
	"github.com/tinyrange/rvu/internal/hv"
	"github.com/tinyrange/rvu/internal/linux"
)

const (
	elfHeaderSize = 64
	elfPhdrSize   = 56
)

type testSeg struct {
	typ    uint32
	off    uint64
	vaddr  uint64
	filesz uint64
	memsz  uint64
}

// buildTestELF assembles a minimal ELF64 RISC-V image: header, the
// program-header table right after it, then the tail bytes (segment payloads
// and interpreter strings, at offsets the caller computed).
func buildTestELF(t *testing.T, typ uint16, entry uint64, segs []testSeg, tail []byte) []byte {
	t.Helper()

	buf := make([]byte, elfHeaderSize)
	copy(buf, []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // little-endian
	binary.LittleEndian.PutUint16(buf[16:], typ)
	binary.LittleEndian.PutUint16(buf[18:], 0xf3) // EM_RISCV
	binary.LittleEndian.PutUint64(buf[24:], entry)
	binary.LittleEndian.PutUint64(buf[32:], elfHeaderSize)
	binary.LittleEndian.PutUint16(buf[54:], elfPhdrSize)
	binary.LittleEndian.PutUint16(buf[56:], uint16(len(segs)))

	for _, s := range segs {
		ent := make([]byte, elfPhdrSize)
		binary.LittleEndian.PutUint32(ent[0:], s.typ)
		binary.LittleEndian.PutUint64(ent[8:], s.off)
		binary.LittleEndian.PutUint64(ent[16:], s.vaddr)
		binary.LittleEndian.PutUint64(ent[32:], s.filesz)
		binary.LittleEndian.PutUint64(ent[40:], s.memsz)
		buf = append(buf, ent...)
	}
	return append(buf, tail...)
}

// tailOffset is where the tail bytes land in a buildTestELF image.
func tailOffset(nsegs int) uint64 {
	return elfHeaderSize + uint64(nsegs)*elfPhdrSize
}

func buildStaticELF(t *testing.T, entry uint64, payload []byte) []byte {
	t.Helper()
	segs := []testSeg{{
		typ:    elffile.SegmentLoad,
		off:    tailOffset(1),
		vaddr:  entry,
		filesz: uint64(len(payload)),
		memsz:  uint64(len(payload)) + 64, // trailing bss
	}}
	return buildTestELF(t, elffile.TypeExec, entry, segs, payload)
}

func TestLoadProcessStatic(t *testing.T) {
	payload := []byte{0x13, 0x05, 0x00, 0x00, 0x93, 0x08, 0xd0, 0x05, 0x73, 0x00, 0x00, 0x00}
	data := buildStaticELF(t, 0x10000, payload)

	mem := hv.NewFlatMemory(1 << 20)
	// Dirty the bss range first; loading must zero it.
	dirty := bytes.Repeat([]byte{0xff}, 64)
	if err := mem.WriteAt(dirty, 0x10000+uint64(len(payload))); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	proc, err := LoadProcess(mem, data, ProcessConfig{
		Args: []string{"/bin/app", "-v"},
		Env:  []string{"TERM=dumb"},
	})
	if err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}

	if proc.PC != 0x10000 {
		t.Fatalf("PC = %#x, want executable entry 0x10000", proc.PC)
	}
	if proc.Interp != nil {
		t.Fatal("static executable got an interpreter descriptor")
	}

	got := make([]byte, len(payload))
	if err := mem.ReadAt(got, 0x10000); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("segment bytes not mapped at vaddr")
	}
	bss := make([]byte, 64)
	if err := mem.ReadAt(bss, 0x10000+uint64(len(payload))); err != nil {
		t.Fatalf("ReadAt bss: %v", err)
	}
	for _, b := range bss {
		if b != 0 {
			t.Fatal("bss tail not zeroed")
		}
	}
}

func TestLoadProcessStackLayout(t *testing.T) {
	data := buildStaticELF(t, 0x10000, []byte{0x73, 0x00, 0x00, 0x00})
	mem := hv.NewFlatMemory(1 << 20)

	args := []string{"/bin/app", "--config", "/etc/app.yaml"}
	env := []string{"PATH=/bin", "TERM=dumb"}
	proc, err := LoadProcess(mem, data, ProcessConfig{Args: args, Env: env})
	if err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}

	if proc.SP%16 != 0 {
		t.Fatalf("SP = %#x, want 16-byte aligned", proc.SP)
	}

	read64 := func(addr uint64) uint64 {
		v, err := hv.ReadUint64(mem, addr)
		if err != nil {
			t.Fatalf("ReadUint64(%#x): %v", addr, err)
		}
		return v
	}
	readStr := func(addr uint64) string {
		s, err := hv.ReadString(mem, addr)
		if err != nil {
			t.Fatalf("ReadString(%#x): %v", addr, err)
		}
		return s
	}

	pos := proc.SP
	if argc := read64(pos); argc != uint64(len(args)) {
		t.Fatalf("argc = %d, want %d", argc, len(args))
	}
	pos += 8
	for i, want := range args {
		if got := readStr(read64(pos)); got != want {
			t.Fatalf("argv[%d] = %q, want %q", i, got, want)
		}
		pos += 8
	}
	if read64(pos) != 0 {
		t.Fatal("argv is not NULL terminated")
	}
	pos += 8
	for i, want := range env {
		if got := readStr(read64(pos)); got != want {
			t.Fatalf("envp[%d] = %q, want %q", i, got, want)
		}
		pos += 8
	}
	if read64(pos) != 0 {
		t.Fatal("envp is not NULL terminated")
	}
	pos += 8

	// The aux vector follows, terminated by an AT_NULL pair.
	sawNull := false
	for i := 0; i < 32; i++ {
		tag, val := read64(pos), read64(pos+8)
		pos += 16
		if tag == linux.AT_NULL {
			sawNull = true
			break
		}
		switch tag {
		case linux.AT_PLATFORM:
			if got := readStr(val); got != "riscv64" {
				t.Fatalf("AT_PLATFORM string = %q, want riscv64", got)
			}
		case linux.AT_RANDOM:
			var random [16]byte
			if err := mem.ReadAt(random[:], val); err != nil {
				t.Fatalf("AT_RANDOM bytes unreadable: %v", err)
			}
		case linux.AT_EXECFN:
			if got := readStr(val); got != "/bin/app" {
				t.Fatalf("AT_EXECFN string = %q, want /bin/app", got)
			}
		}
	}
	if !sawNull {
		t.Fatal("aux vector on the stack has no AT_NULL terminator")
	}

	if got := auxValue(t, proc.Auxv, linux.AT_ENTRY); got != 0x10000 {
		t.Fatalf("AT_ENTRY = %#x", got)
	}
}

func TestLoadProcessDynamic(t *testing.T) {
	interpName := "/lib/ld-linux-riscv64-lp64d.so.1"

	interpPayload := []byte{0xef, 0xbe, 0xad, 0xde}
	interpSegs := []testSeg{{
		typ:    elffile.SegmentLoad,
		off:    tailOffset(1),
		vaddr:  0x0,
		filesz: uint64(len(interpPayload)),
		memsz:  uint64(len(interpPayload)),
	}}
	interpData := buildTestELF(t, elffile.TypeShared, 0x1000, interpSegs, interpPayload)

	execSegs := []testSeg{
		{typ: elffile.SegmentPhdr, vaddr: 0x10040},
		{typ: elffile.SegmentLoad, off: 0, vaddr: 0x10000, filesz: 0x100, memsz: 0x8000},
		{typ: elffile.SegmentInterp, off: tailOffset(3), filesz: uint64(len(interpName)) + 1},
	}
	execData := buildTestELF(t, elffile.TypeExec, 0x10338, execSegs, append([]byte(interpName), 0))

	mem := hv.NewFlatMemory(1 << 20)
	proc, err := LoadProcess(mem, execData, ProcessConfig{
		Args: []string{"/bin/app"},
		ResolveInterp: func(path string) ([]byte, error) {
			if path != interpName {
				return nil, fmt.Errorf("unexpected interpreter %q", path)
			}
			return interpData, nil
		},
	})
	if err != nil {
		t.Fatalf("LoadProcess: %v", err)
	}

	if proc.Interp == nil {
		t.Fatal("no interpreter descriptor for a dynamic executable")
	}
	if proc.InterpBase < 0x18000 {
		t.Fatalf("interpreter base %#x overlaps the executable mapping", proc.InterpBase)
	}
	if proc.InterpBase%0x10000 != 0 {
		t.Fatalf("interpreter base %#x is not aligned", proc.InterpBase)
	}
	if want := proc.InterpBase + 0x1000; proc.PC != want {
		t.Fatalf("PC = %#x, want relocated interpreter entry %#x", proc.PC, want)
	}

	got := make([]byte, len(interpPayload))
	if err := mem.ReadAt(got, proc.InterpBase); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, interpPayload) {
		t.Fatal("interpreter segment not mapped at its relocated base")
	}

	if got := auxValue(t, proc.Auxv, linux.AT_BASE); got != proc.InterpBase {
		t.Fatalf("AT_BASE = %#x, want %#x", got, proc.InterpBase)
	}
	if got := auxValue(t, proc.Auxv, linux.AT_ENTRY); got != 0x10338 {
		t.Fatalf("AT_ENTRY = %#x, want the executable's entry", got)
	}
}

func TestLoadProcessDynamicNoResolver(t *testing.T) {
	execSegs := []testSeg{
		{typ: elffile.SegmentLoad, off: 0, vaddr: 0x10000, filesz: 0x100, memsz: 0x1000},
		{typ: elffile.SegmentInterp, off: tailOffset(2), filesz: 8},
	}
	execData := buildTestELF(t, elffile.TypeExec, 0x10338, execSegs, []byte("/lib/ld\x00"))

	mem := hv.NewFlatMemory(1 << 20)
	if _, err := LoadProcess(mem, execData, ProcessConfig{Args: []string{"/bin/app"}}); err == nil {
		t.Fatal("LoadProcess without an interpreter resolver: want error")
	}
}

func TestLoadProcessRejectsBadImage(t *testing.T) {
	mem := hv.NewFlatMemory(1 << 20)
	if _, err := LoadProcess(mem, []byte("not an elf"), ProcessConfig{}); err == nil {
		t.Fatal("LoadProcess on garbage: want error")
	}

	// A segment whose file range lies outside the image must be rejected
	// before any byte is mapped.
	segs := []testSeg{{typ: elffile.SegmentLoad, off: 1 << 30, vaddr: 0x10000, filesz: 64, memsz: 64}}
	data := buildTestELF(t, elffile.TypeExec, 0x10000, segs, nil)
	if _, err := LoadProcess(mem, data, ProcessConfig{}); err == nil {
		t.Fatal("LoadProcess with out-of-file segment: want error")
	}
}
