// Package logging adapts go.uber.org/zap, with optional lumberjack file
// rotation, to the scheduler.Logger contract.
package logging

import "time"

// Config configures a zap-backed Logger the way the rest of this codebase
// configures its logging component: level/format/output plus an optional
// rotation policy, loaded from YAML alongside the rest of an application's
// configuration.
type Config struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`

	File   *FileConfig   `yaml:"file,omitempty" json:"file,omitempty"`
	Rotate *RotateConfig `yaml:"rotate,omitempty" json:"rotate,omitempty"`
}

// FileConfig names the log file a file-backed Logger writes to.
type FileConfig struct {
	Dir      string `yaml:"dir" json:"dir"`
	Filename string `yaml:"filename" json:"filename"`
}

// RotateConfig configures lumberjack rotation for a file-backed Logger.
type RotateConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	MaxSizeMB  int           `yaml:"max_size_mb" json:"max_size_mb"`
	MaxAge     time.Duration `yaml:"max_age" json:"max_age"`
	MaxBackups int           `yaml:"max_backups" json:"max_backups"`
	Compress   bool          `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config matching the scheduler's own defaults: info
// level, JSON format, stdout.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}
