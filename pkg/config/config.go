// Package config provides YAML or TOML configuration loading with
// environment variable expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Decode reads filename into target, expanding environment variables,
// without validating it. Files ending in
// .toml are parsed as TOML, anything else as YAML.
func Decode[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		err = toml.Unmarshal(expandedData, target)
	} else {
		err = yaml.Unmarshal(expandedData, target)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}

// Validate runs target's Validate method, if it has one.
func Validate[T any](target *T) error {
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}
