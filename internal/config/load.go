package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
)

// Load reads a TOML config file, expands variables, applies defaults,
// validates, and returns the config along with any warnings (e.g. unknown
// fields).
func Load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read config: %s: %w", path, err)
	}

	cfg, warnings, err := LoadBytes(data, path)
	if err != nil {
		return nil, warnings, err
	}
	if err := ExpandVariables(cfg, path); err != nil {
		return nil, warnings, fmt.Errorf("config expansion error in %s: %w", path, err)
	}
	return cfg, warnings, nil
}

// LoadBytes parses TOML from raw bytes. The path argument is used only for
// error messages.
func LoadBytes(data []byte, path string) (*Config, []string, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("config parse error in %s: %w", path, err)
	}

	// Collect warnings for unknown fields.
	var warnings []string
	for _, key := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key: %s", strings.Join(key, ".")))
	}

	ApplyDefaults(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		merr := multierror.Append(nil, errs...)
		merr.ErrorFormat = listFormat
		return nil, warnings, fmt.Errorf("config validation failed in %s:%w", path, merr)
	}

	return &cfg, warnings, nil
}

// listFormat renders validation errors one per indented line.
func listFormat(errs []error) string {
	var b strings.Builder
	for _, e := range errs {
		b.WriteString("\n  ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Default returns a config with every field at its default value.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
