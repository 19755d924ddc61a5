// Package config describes a guest run profile: the command line, the
// environment, memory sizing and host mounts, declared in YAML.
package config

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// DefaultMemory is used when a profile does not size guest memory.
const DefaultMemory = 128 << 20

// Mount maps a host directory into the guest namespace, read-only.
type Mount struct {
	Guest string `yaml:"guest"`
	Host  string `yaml:"host"`
}

// Profile is one guest run description.
type Profile struct {
	// Args is the guest command line; Args[0] is the executable path
	// inside the guest namespace.
	Args []string `yaml:"args"`

	Env []string `yaml:"env"`
	Cwd string   `yaml:"cwd"`

	// Memory accepts humanized sizes ("256M", "1GiB"). Empty selects
	// DefaultMemory.
	Memory string `yaml:"memory"`

	Mounts []Mount `yaml:"mounts"`

	// Bridge enables the host-bridge syscall channel.
	Bridge bool `yaml:"bridge"`
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a profile document.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: decode profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if len(p.Args) == 0 {
		return fmt.Errorf("config: profile has no args")
	}
	if p.Cwd == "" {
		p.Cwd = "/"
	}
	if _, err := p.MemoryBytes(); err != nil {
		return err
	}
	for _, m := range p.Mounts {
		if m.Guest == "" || m.Host == "" {
			return fmt.Errorf("config: mount needs both guest and host paths")
		}
	}
	return nil
}

// MemoryBytes resolves the memory field to a byte count.
func (p *Profile) MemoryBytes() (uint64, error) {
	if p.Memory == "" {
		return DefaultMemory, nil
	}
	n, err := humanize.ParseBytes(p.Memory)
	if err != nil {
		return 0, fmt.Errorf("config: memory size %q: %w", p.Memory, err)
	}
	return n, nil
}
