package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/bcl"
	"github.com/oarkflow/json"
	"gopkg.in/yaml.v3"
)

// ParserConfig describes how siu2json parses input and writes its output.
// Command line flags override values loaded from a file.
type ParserConfig struct {
	Strict       bool   `json:"strict" yaml:"strict"`
	MessageType  string `json:"message_type" yaml:"message_type"`
	TriggerEvent string `json:"trigger_event" yaml:"trigger_event"`
	Compact      bool   `json:"compact" yaml:"compact"`
	Verbose      bool   `json:"verbose" yaml:"verbose"`
	Stream       bool   `json:"stream" yaml:"stream"`
	Output       string `json:"output,omitempty" yaml:"output,omitempty"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	MetricsFile  string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`
}

var logLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {}, "fatal": {},
}

// Default returns the configuration used when no file is given.
func Default() *ParserConfig {
	cfg := &ParserConfig{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *ParserConfig) applyDefaults() {
	if cfg.MessageType == "" {
		cfg.MessageType = "SIU"
	}
	if cfg.TriggerEvent == "" {
		cfg.TriggerEvent = "S12"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	cfg.MessageType = strings.ToUpper(strings.TrimSpace(cfg.MessageType))
	cfg.TriggerEvent = strings.ToUpper(strings.TrimSpace(cfg.TriggerEvent))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
}

// Validate checks the invariants the parser relies on.
func (cfg *ParserConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if len(cfg.MessageType) != 3 {
		return fmt.Errorf("message_type must be a 3 character code, got %q", cfg.MessageType)
	}
	if len(cfg.TriggerEvent) != 3 {
		return fmt.Errorf("trigger_event must be a 3 character code, got %q", cfg.TriggerEvent)
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		return fmt.Errorf("unsupported log_level %q", cfg.LogLevel)
	}
	return nil
}

// Load reads a config file, choosing the decoder by extension.
func Load(path string) (*ParserConfig, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return loadParserConfig(path, yaml.Unmarshal)
	case ".json":
		return loadParserConfig(path, func(data []byte, v any) error {
			return json.Unmarshal(data, v)
		})
	case ".bcl":
		return loadParserConfig(path, func(data []byte, v any) error {
			_, err := bcl.Unmarshal(data, v)
			return err
		})
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
}

// LoadFromString decodes raw config text, useful for tests.
func LoadFromString(content, format string) (*ParserConfig, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return decodeParserConfig([]byte(content), yaml.Unmarshal)
	case "json":
		return decodeParserConfig([]byte(content), func(data []byte, v any) error {
			return json.Unmarshal(data, v)
		})
	case "bcl":
		return decodeParserConfig([]byte(content), func(data []byte, v any) error {
			_, err := bcl.Unmarshal(data, v)
			return err
		})
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func loadParserConfig(path string, fn func([]byte, any) error) (*ParserConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeParserConfig(raw, fn)
}

func decodeParserConfig(data []byte, fn func([]byte, any) error) (*ParserConfig, error) {
	var cfg ParserConfig
	if err := fn(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, cfg.Validate()
}
