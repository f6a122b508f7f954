package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewValidRegistry(t *testing.T) {
	reg, err := New("10.0.0.1", []ToolDescriptor{
		{ID: "nmap", DisplayName: "Nmap", Category: "scanners", Command: []string{"nmap", "{{target}}"}},
		{ID: "wireshark", Command: []string{"wireshark"}, Mode: LaunchOnly},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if reg.Len() != 2 {
		t.Errorf("Expected 2 tools, got %d", reg.Len())
	}
	if reg.DefaultTarget != "10.0.0.1" {
		t.Errorf("Expected default target 10.0.0.1, got %s", reg.DefaultTarget)
	}

	d, err := reg.Resolve("wireshark")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if d.DisplayName != "wireshark" {
		t.Errorf("Expected display name to default to id, got %s", d.DisplayName)
	}
	if d.Mode != LaunchOnly {
		t.Errorf("Expected LaunchOnly mode, got %v", d.Mode)
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	_, err := New("", []ToolDescriptor{
		{ID: "nmap", Command: []string{"nmap"}},
		{ID: "nmap", Command: []string{"nmap", "-sV"}},
	})
	if err == nil {
		t.Fatal("Expected error for duplicate id")
	}
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Expected ErrDuplicateTool, got %v", err)
	}
}

func TestNewRejectsEmptyCommand(t *testing.T) {
	_, err := New("", []ToolDescriptor{{ID: "broken"}})
	if err == nil {
		t.Fatal("Expected error for empty command template")
	}
}

func TestNewRejectsMissingID(t *testing.T) {
	_, err := New("", []ToolDescriptor{{DisplayName: "No ID", Command: []string{"tool"}}})
	if err == nil {
		t.Fatal("Expected error for missing id")
	}
}

func TestResolveUnknownTool(t *testing.T) {
	reg, err := New("", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	_, err = reg.Resolve("nope")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestArgvSubstitution(t *testing.T) {
	d := ToolDescriptor{
		ID:      "nmap",
		Command: []string{"nmap", "-sV", "{{target}}", "--script", "banner"},
	}

	argv := d.Argv("192.168.0.5")
	want := []string{"-sV", "192.168.0.5", "--script", "banner"}
	if len(argv) != len(want) {
		t.Fatalf("Expected %d args, got %d", len(want), len(argv))
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Errorf("arg %d: expected %q, got %q", i, want[i], argv[i])
		}
	}

	// The template itself must stay untouched.
	if d.Command[2] != "{{target}}" {
		t.Errorf("Descriptor template was mutated: %v", d.Command)
	}
}

func TestArgvNoArguments(t *testing.T) {
	d := ToolDescriptor{ID: "wireshark", Command: []string{"wireshark"}}
	if argv := d.Argv("x"); len(argv) != 0 {
		t.Errorf("Expected no args, got %v", argv)
	}
}

func TestParseLaunchMode(t *testing.T) {
	cases := []struct {
		in      string
		want    LaunchMode
		wantErr bool
	}{
		{"launch", LaunchOnly, false},
		{"gui", LaunchOnly, false},
		{"capture", RunAndCapture, false},
		{"", RunAndCapture, false},
		{"CLI", RunAndCapture, false},
		{"bogus", RunAndCapture, true},
	}
	for _, c := range cases {
		got, err := ParseLaunchMode(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseLaunchMode(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLaunchMode(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseLaunchMode(%q): expected %v, got %v", c.in, c.want, got)
		}
	}
}

func TestCategories(t *testing.T) {
	reg, err := New("", []ToolDescriptor{
		{ID: "a", Command: []string{"a"}, Category: "scanners"},
		{ID: "b", Command: []string{"b"}, Category: "forensics"},
		{ID: "c", Command: []string{"c"}, Category: "scanners"},
		{ID: "d", Command: []string{"d"}},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	cats := reg.Categories()
	if len(cats) != 2 || cats[0] != "scanners" || cats[1] != "forensics" {
		t.Errorf("Expected [scanners forensics], got %v", cats)
	}
	if got := reg.ByCategory("scanners"); len(got) != 2 {
		t.Errorf("Expected 2 scanners, got %d", len(got))
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")

	content := `default_target: 172.16.0.1
tools:
  - id: nmap
    name: Nmap
    category: network-scanners
    command: [nmap, -sV, "{{target}}"]
    mode: capture
    timeout_seconds: 120
    install_hints:
      linux: sudo apt install -y nmap
  - id: wireshark
    command: [wireshark]
    mode: launch
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if reg.DefaultTarget != "172.16.0.1" {
		t.Errorf("Expected default target 172.16.0.1, got %s", reg.DefaultTarget)
	}

	nmap, err := reg.Resolve("nmap")
	if err != nil {
		t.Fatalf("Resolve nmap: %v", err)
	}
	if nmap.Timeout != 120*time.Second {
		t.Errorf("Expected 120s timeout, got %v", nmap.Timeout)
	}
	if nmap.Mode != RunAndCapture {
		t.Errorf("Expected RunAndCapture, got %v", nmap.Mode)
	}
	if nmap.InstallHints["linux"] == "" {
		t.Error("Expected linux install hint")
	}

	ws, err := reg.Resolve("wireshark")
	if err != nil {
		t.Fatalf("Resolve wireshark: %v", err)
	}
	if ws.Mode != LaunchOnly {
		t.Errorf("Expected LaunchOnly, got %v", ws.Mode)
	}
	if ws.Timeout != 0 {
		t.Errorf("Expected no timeout for launch-only tool, got %v", ws.Timeout)
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")

	content := `tools:
  - id: nmap
    command: [nmap]
  - id: nmap
    command: [nmap, -A]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Expected ErrDuplicateTool, got %v", err)
	}
}

func TestLoadWritesDefaultRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")

	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reg.Len() == 0 {
		t.Error("Default registry should not be empty")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Default registry file was not written: %v", err)
	}

	// Loading again must pick up the file that was just written.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if again.Len() != reg.Len() {
		t.Errorf("Reload tool count %d differs from %d", again.Len(), reg.Len())
	}
}

func TestAllPreservesOrder(t *testing.T) {
	reg, err := New("", []ToolDescriptor{
		{ID: "c", Command: []string{"c"}},
		{ID: "a", Command: []string{"a"}},
		{ID: "b", Command: []string{"b"}},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ids := []string{}
	for _, d := range reg.All() {
		ids = append(ids, d.ID)
	}
	if ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("Expected file order [c a b], got %v", ids)
	}
}
