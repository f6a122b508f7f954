package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// rawRegistry mirrors the registry file schema before validation.
type rawRegistry struct {
	DefaultTarget string    `mapstructure:"default_target" yaml:"default_target"`
	Tools         []rawTool `mapstructure:"tools" yaml:"tools"`
}

type rawTool struct {
	ID             string            `mapstructure:"id" yaml:"id"`
	Name           string            `mapstructure:"name" yaml:"name,omitempty"`
	Category       string            `mapstructure:"category" yaml:"category,omitempty"`
	Command        []string          `mapstructure:"command" yaml:"command"`
	Mode           string            `mapstructure:"mode" yaml:"mode,omitempty"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty"`
	InstallHints   map[string]string `mapstructure:"install_hints" yaml:"install_hints,omitempty"`
}

// Load reads and validates the registry file at path. A missing file is
// replaced by the default registry, which is written back to path so the
// user has something to edit (the original launcher did the same with
// its config.json).
func Load(path string) (*Registry, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := WriteDefault(path); werr != nil {
			return nil, fmt.Errorf("registry: writing default registry: %w", werr)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}

	var raw rawRegistry
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("registry: parsing %s: %w", path, err)
	}

	return fromRaw(raw)
}

func fromRaw(raw rawRegistry) (*Registry, error) {
	tools := make([]ToolDescriptor, 0, len(raw.Tools))
	for _, rt := range raw.Tools {
		mode, err := ParseLaunchMode(rt.Mode)
		if err != nil {
			return nil, fmt.Errorf("registry: tool %q: %w", rt.ID, err)
		}
		if rt.TimeoutSeconds < 0 {
			return nil, fmt.Errorf("registry: tool %q: negative timeout", rt.ID)
		}
		tools = append(tools, ToolDescriptor{
			ID:           rt.ID,
			DisplayName:  rt.Name,
			Category:     rt.Category,
			Command:      rt.Command,
			Mode:         mode,
			Timeout:      time.Duration(rt.TimeoutSeconds) * time.Second,
			InstallHints: rt.InstallHints,
		})
	}
	return New(raw.DefaultTarget, tools)
}

// WriteDefault writes the built-in registry to path as YAML.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(defaultRegistry())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// defaultRegistry is the starter tool set, carried over from the
// launcher's original shipped configuration. Command templates are
// best-effort and expected to be edited per machine.
func defaultRegistry() rawRegistry {
	aptBrewChoco := func(apt, brew, choco string) map[string]string {
		h := make(map[string]string, 3)
		if apt != "" {
			h["linux"] = "sudo apt update && sudo apt install -y " + apt
		}
		if brew != "" {
			h["darwin"] = "brew install " + brew
		}
		if choco != "" {
			h["windows"] = "choco install " + choco + " -y"
		}
		return h
	}

	return rawRegistry{
		DefaultTarget: "192.168.1.1",
		Tools: []rawTool{
			{
				ID: "nmap", Name: "Nmap", Category: "network-scanners",
				Command:        []string{"nmap", "-sV", "{{target}}"},
				Mode:           "capture",
				TimeoutSeconds: 300,
				InstallHints:   aptBrewChoco("nmap", "nmap", "nmap"),
			},
			{
				ID: "zenmap", Name: "Zenmap", Category: "network-scanners",
				Command: []string{"zenmap"},
				Mode:    "launch",
			},
			{
				ID: "ipscan", Name: "Angry IP Scanner", Category: "network-scanners",
				Command:      []string{"ipscan"},
				Mode:         "launch",
				InstallHints: aptBrewChoco("ipscan", "", ""),
			},
			{
				ID: "openvas", Name: "OpenVAS", Category: "vulnerability",
				Command:        []string{"gvm-start"},
				Mode:           "capture",
				TimeoutSeconds: 600,
				InstallHints:   aptBrewChoco("gvm", "", ""),
			},
			{
				ID: "zap", Name: "OWASP ZAP", Category: "vulnerability",
				Command:      []string{"zap.sh"},
				Mode:         "launch",
				InstallHints: aptBrewChoco("zaproxy", "owasp-zap", ""),
			},
			{
				ID: "msfconsole", Name: "Metasploit", Category: "pentesting",
				Command:        []string{"msfconsole", "-q", "-x", "version; exit"},
				Mode:           "capture",
				TimeoutSeconds: 300,
				InstallHints:   aptBrewChoco("metasploit-framework", "", ""),
			},
			{
				ID: "burpsuite", Name: "Burp Suite", Category: "pentesting",
				Command: []string{"burpsuite"},
				Mode:    "launch",
			},
			{
				ID: "wireshark", Name: "Wireshark", Category: "forensics",
				Command:      []string{"wireshark"},
				Mode:         "launch",
				InstallHints: aptBrewChoco("wireshark", "wireshark", "wireshark"),
			},
			{
				ID: "ettercap", Name: "Ettercap", Category: "forensics",
				Command:      []string{"ettercap", "-T", "-q"},
				Mode:         "capture",
				InstallHints: aptBrewChoco("ettercap-graphical", "", ""),
			},
			{
				ID: "kismet", Name: "Kismet", Category: "forensics",
				Command: []string{"kismet"},
				Mode:    "launch",
			},
		},
	}
}
