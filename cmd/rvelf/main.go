package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/rvu/internal/config"
	"github.com/tinyrange/rvu/internal/elffile"
	"github.com/tinyrange/rvu/internal/guest"
	"github.com/tinyrange/rvu/internal/hv"
	"github.com/tinyrange/rvu/internal/linux"
	"github.com/tinyrange/rvu/internal/vfs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rvelf: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	profilePath := flag.String("profile", "", "YAML run profile (args, env, memory, mounts)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <executable> [args...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Inspect how a RISC-V Linux executable would be booted:\n")
		fmt.Fprintf(os.Stderr, "the ELF descriptor, load range, interpreter resolution and\n")
		fmt.Fprintf(os.Stderr, "the process start state with its auxiliary vector.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	var profile *config.Profile
	if *profilePath != "" {
		p, err := config.Load(*profilePath)
		if err != nil {
			return err
		}
		profile = p
	} else {
		if flag.NArg() < 1 {
			flag.Usage()
			return fmt.Errorf("executable path required")
		}
		profile = &config.Profile{Args: flag.Args(), Cwd: "/"}
	}

	tree := vfs.NewTree()
	for _, m := range profile.Mounts {
		dir, err := vfs.NewOSDir(m.Host)
		if err != nil {
			return fmt.Errorf("mount %s: %w", m.Guest, err)
		}
		if err := tree.Mount(m.Guest, dir); err != nil {
			return fmt.Errorf("mount %s: %w", m.Guest, err)
		}
		slog.Debug("mounted host directory", "guest", m.Guest, "host", m.Host)
	}
	if err := tree.Chdir(profile.Cwd); err != nil {
		return fmt.Errorf("chdir %s: %w", profile.Cwd, err)
	}

	execPath := profile.Args[0]
	execData, err := readGuestFile(tree, execPath)
	if err != nil {
		// The executable may live on the host rather than in a mount.
		hostData, hostErr := os.ReadFile(execPath)
		if hostErr != nil {
			return fmt.Errorf("read %s: %w", execPath, hostErr)
		}
		execData = hostData
	}

	desc, err := elffile.Parse(execData)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", execPath, desc)

	lo, hi, err := elffile.LoadRange(execData)
	if err != nil {
		return err
	}
	fmt.Printf("  load range   [0x%x, 0x%x)\n", lo, hi)
	if desc.Dynamic {
		fmt.Printf("  interpreter  %s\n", desc.Interp)
	}

	memBytes, err := profile.MemoryBytes()
	if err != nil {
		return err
	}
	mem := hv.NewFlatMemory(memBytes)

	proc, err := guest.LoadProcess(mem, execData, guest.ProcessConfig{
		Args:     profile.Args,
		Env:      profile.Env,
		ExecPath: execPath,
		ResolveInterp: func(path string) ([]byte, error) {
			slog.Debug("resolving interpreter", "path", path)
			return readGuestFile(tree, path)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("  memory       %d bytes\n", memBytes)
	fmt.Printf("  start pc     0x%x\n", proc.PC)
	fmt.Printf("  start sp     0x%x\n", proc.SP)
	if proc.Interp != nil {
		fmt.Printf("  interp base  0x%x\n", proc.InterpBase)
	}
	fmt.Printf("  auxv:\n")
	for _, e := range proc.Auxv {
		fmt.Printf("    %-12s 0x%x\n", linux.AuxTagName(e.Tag), e.Value)
	}
	return nil
}

// readGuestFile slurps a file out of the guest namespace.
func readGuestFile(fsys vfs.FS, path string) ([]byte, error) {
	fd, err := fsys.Open(path, linux.O_RDONLY)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fsys.Close(fd)

	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := fsys.Read(fd, buf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}
