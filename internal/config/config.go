// Package config loads the launcher's own settings. The tool registry
// file is separate and owned by the registry package; this file only
// says where to find it and how the launcher should behave.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the validated launcher configuration.
type Config struct {
	// Registry is the path to the tool registry YAML file.
	Registry string `mapstructure:"registry"`

	// OutputDir is the base directory for per-run workspaces.
	OutputDir string `mapstructure:"output_dir"`

	// Target overrides the registry's default target when set.
	Target string `mapstructure:"target"`

	// MaxParallel bounds the concurrent worker pool. Zero means
	// auto-detect (logical CPUs, capped).
	MaxParallel int `mapstructure:"max_parallel"`

	// Journal enables the append-only record journal per run.
	Journal bool `mapstructure:"journal"`

	// ToolPaths are directories searched for executables before PATH.
	ToolPaths []string `mapstructure:"tool_paths"`

	Resources ResourcesConfig `mapstructure:"resources"`
}

// ResourcesConfig holds the dispatch-gating ceilings. Zero disables a
// check.
type ResourcesConfig struct {
	MaxCPUPercent    float64 `mapstructure:"max_cpu_percent"`
	MaxMemoryPercent float64 `mapstructure:"max_memory_percent"`
}

// Load reads the launcher config. An explicit cfgFile must exist; with
// no cfgFile the usual locations are searched and a missing file just
// means defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("cmtl")
		for _, p := range searchPaths() {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing: %w", err)
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("config: max_parallel must not be negative")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry", "tools.yaml")
	v.SetDefault("output_dir", "output")
	v.SetDefault("max_parallel", 0)
	v.SetDefault("journal", true)
	v.SetDefault("resources.max_cpu_percent", 85.0)
	v.SetDefault("resources.max_memory_percent", 90.0)
}

// searchPaths mirrors the registry-file discovery the launcher has
// always used: current directory first, then next to the executable,
// then the usual system locations.
func searchPaths() []string {
	paths := []string{".", "configs"}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		paths = append(paths, execDir, filepath.Join(execDir, "configs"))
	}

	paths = append(paths, "/etc/cmtl")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cmtl"))
	}
	return paths
}
