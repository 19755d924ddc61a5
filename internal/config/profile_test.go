package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseProfile(t *testing.T) {
	doc := `
args: ["/bin/app", "--verbose"]
env:
  - TERM=dumb
  - LANG=C
cwd: /srv
memory: 64KiB
mounts:
  - guest: /host
    host: /tmp/share
bridge: true
`
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := &Profile{
		Args:   []string{"/bin/app", "--verbose"},
		Env:    []string{"TERM=dumb", "LANG=C"},
		Cwd:    "/srv",
		Memory: "64KiB",
		Mounts: []Mount{{Guest: "/host", Host: "/tmp/share"}},
		Bridge: true,
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("profile mismatch (-want +got):\n%s", diff)
	}

	n, err := p.MemoryBytes()
	if err != nil || n != 65536 {
		t.Fatalf("MemoryBytes = %d, %v", n, err)
	}
}

func TestParseProfileDefaults(t *testing.T) {
	p, err := Parse([]byte(`args: ["/bin/app"]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Cwd != "/" {
		t.Fatalf("Cwd = %q, want /", p.Cwd)
	}
	n, err := p.MemoryBytes()
	if err != nil || n != DefaultMemory {
		t.Fatalf("MemoryBytes = %d, %v", n, err)
	}
}

func TestParseProfileErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"no args", `env: ["A=b"]`},
		{"bad memory", `{args: ["/bin/app"], memory: "lots"}`},
		{"half mount", `{args: ["/bin/app"], mounts: [{guest: /host}]}`},
		{"not yaml", `:{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.doc)); err == nil {
				t.Fatal("Parse: want error")
			}
		})
	}
}
