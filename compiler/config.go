package compiler

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional `defacto.yaml` project file (SPEC_FULL.md §4.4).
// The teacher has no equivalent — target selection there is pure argv — so
// every field here is optional and argv flags in cmd/defacto always win
// over whatever this file sets. cmd/defacto applies only Target and
// ImportPaths; Assembler, Linker and OutputSuffix are parsed but not read
// by any caller.
type Config struct {
	Target       string   `yaml:"target"`        // default backend name, e.g. "linux-amd64"
	ImportPaths  []string `yaml:"import_paths"`   // search directories for Import{lib} resolution
	Assembler    string   `yaml:"assembler"`      // override for the external assembler binary
	Linker       string   `yaml:"linker"`         // override for the external linker binary
	OutputSuffix string   `yaml:"output_suffix"`  // default output file suffix when -o is omitted
}

// LoadConfig reads and parses a defacto.yaml file at path. A missing file is
// not an error: it returns a zero-value Config so callers can layer argv
// flags on top unconditionally.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveTarget returns the explicit flag value if set, else the config
// file's default, else the empty string (caller decides the final fallback).
func (c *Config) ResolveTarget(flag string) string {
	if flag != "" {
		return flag
	}
	if c != nil && c.Target != "" {
		return c.Target
	}
	return ""
}
