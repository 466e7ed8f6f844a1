package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is the sentinel wrapped by every Validate failure;
// callers match it with errors.Is rather than string-comparing messages.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Load reads a YAML document from path, merges it over Default(), validates
// the result, and returns the validated Config. CORE only ever sees the
// return value of Load — never the raw YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a YAML document from r, merges it over Default(), and
// validates the result. Unset fields in r keep Default()'s value because
// decoding starts from a pre-populated Config rather than a zero value.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
