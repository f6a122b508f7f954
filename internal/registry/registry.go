// Package registry holds the validated set of launchable tool descriptors.
// Descriptors are loaded once from the registry file and never mutated
// during a run; executable availability is a runtime concern of the
// process runner, not of the registry.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LaunchMode selects how the process runner treats a tool.
type LaunchMode int

const (
	// LaunchOnly spawns the tool detached and never waits on it.
	// Typical for GUI tools like Wireshark or Burp Suite.
	LaunchOnly LaunchMode = iota

	// RunAndCapture attaches pipes, captures output to log files and
	// waits for exit subject to timeout and cancellation.
	RunAndCapture
)

// String returns the registry-file spelling of the mode.
func (m LaunchMode) String() string {
	switch m {
	case LaunchOnly:
		return "launch"
	case RunAndCapture:
		return "capture"
	default:
		return fmt.Sprintf("LaunchMode(%d)", int(m))
	}
}

// ParseLaunchMode converts a registry-file mode string to a LaunchMode.
func ParseLaunchMode(s string) (LaunchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "launch", "launch-only", "gui":
		return LaunchOnly, nil
	case "capture", "run-and-capture", "cli", "":
		return RunAndCapture, nil
	default:
		return RunAndCapture, fmt.Errorf("unknown launch mode %q", s)
	}
}

// TargetPlaceholder is substituted with the run target inside a
// descriptor's argument template.
const TargetPlaceholder = "{{target}}"

// ToolDescriptor describes one launchable external program.
// Immutable after registry load.
type ToolDescriptor struct {
	ID          string
	DisplayName string
	Category    string

	// Command is the executable name or path followed by the argument
	// template. Arguments may contain the {{target}} placeholder.
	Command []string

	Mode    LaunchMode
	Timeout time.Duration // zero means no enforced limit

	// InstallHints maps a platform identifier (runtime.GOOS) to a
	// human-readable remediation string shown when the executable is
	// missing or cannot be started.
	InstallHints map[string]string
}

// Executable returns the first element of the command template.
func (d ToolDescriptor) Executable() string {
	if len(d.Command) == 0 {
		return ""
	}
	return d.Command[0]
}

// Argv substitutes target into the argument template and returns the
// full argument vector (without the executable). The template is
// copied; the descriptor itself is never modified.
func (d ToolDescriptor) Argv(target string) []string {
	if len(d.Command) <= 1 {
		return nil
	}
	args := make([]string, 0, len(d.Command)-1)
	for _, a := range d.Command[1:] {
		args = append(args, strings.ReplaceAll(a, TargetPlaceholder, target))
	}
	return args
}

// ErrToolNotFound is returned by Resolve for ids absent from the registry.
var ErrToolNotFound = errors.New("tool not found in registry")

// ErrDuplicateTool is wrapped by New when two descriptors share an id.
var ErrDuplicateTool = errors.New("duplicate tool id")

// Registry is the validated, read-only collection of tool descriptors.
type Registry struct {
	DefaultTarget string

	tools []ToolDescriptor
	index map[string]int
}

// New validates the given descriptors and builds a registry.
// Validation failures (missing id, empty command, duplicate id) are
// fatal configuration errors; no partially valid registry is returned.
func New(defaultTarget string, tools []ToolDescriptor) (*Registry, error) {
	r := &Registry{
		DefaultTarget: defaultTarget,
		tools:         make([]ToolDescriptor, 0, len(tools)),
		index:         make(map[string]int, len(tools)),
	}

	for _, t := range tools {
		if t.ID == "" {
			return nil, fmt.Errorf("registry: descriptor %q has no id", t.DisplayName)
		}
		if len(t.Command) == 0 || t.Command[0] == "" {
			return nil, fmt.Errorf("registry: tool %q has an empty command template", t.ID)
		}
		if _, exists := r.index[t.ID]; exists {
			return nil, fmt.Errorf("registry: %w: %q", ErrDuplicateTool, t.ID)
		}
		if t.DisplayName == "" {
			t.DisplayName = t.ID
		}
		r.index[t.ID] = len(r.tools)
		r.tools = append(r.tools, t)
	}

	return r, nil
}

// Resolve returns the descriptor for the given id.
func (r *Registry) Resolve(id string) (ToolDescriptor, error) {
	i, ok := r.index[id]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("%w: %q", ErrToolNotFound, id)
	}
	return r.tools[i], nil
}

// All returns every descriptor in registry file order.
func (r *Registry) All() []ToolDescriptor {
	out := make([]ToolDescriptor, len(r.tools))
	copy(out, r.tools)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.tools)
}

// Categories returns the distinct categories in first-seen order.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, t := range r.tools {
		if t.Category == "" || seen[t.Category] {
			continue
		}
		seen[t.Category] = true
		cats = append(cats, t.Category)
	}
	return cats
}

// ByCategory returns the descriptors of one category in file order.
func (r *Registry) ByCategory(category string) []ToolDescriptor {
	var out []ToolDescriptor
	for _, t := range r.tools {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}
