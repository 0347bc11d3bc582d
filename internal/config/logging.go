package config

import "cogkernel/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`                     // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`                   // json, text
	File       string          `yaml:"file,omitempty" json:"file,omitempty"`             // output path, stderr when empty
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"`           // Master toggle - false = no logging (production)
	Categories map[string]bool `yaml:"categories,omitempty" json:"categories,omitempty"` // Per-category toggles
}

// Backend converts the section into the logging package's own config.
func (c LoggingConfig) Backend() logging.Config {
	return logging.Config{
		DebugMode:  c.DebugMode,
		Level:      c.Level,
		JSONFormat: c.Format == "json",
		Categories: c.Categories,
		OutputPath: c.File,
	}
}
