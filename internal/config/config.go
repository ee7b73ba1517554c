// Package config handles mmdload configuration.
package config

import "github.com/binzume/mmdloader/internal/logger"

// Config holds all mmdload settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Export  ExportConfig  `yaml:"export"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// FileConfig returns the rotation settings of the log file.
func (c LoggingConfig) FileConfig() logger.FileConfig {
	return logger.FileConfig{
		Path:       c.LogFile,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// ExportConfig holds glTF export settings.
type ExportConfig struct {
	Output string  `yaml:"output"`
	Scale  float32 `yaml:"scale"`
	Unlit  bool    `yaml:"unlit"`

	// Textures are read relative to the model file unless TextureDir is set.
	EmbedTextures          bool    `yaml:"embed_textures"`
	TextureDir             string  `yaml:"texture_dir"`
	TextureReCompress      bool    `yaml:"texture_recompress"`
	TextureScale           float32 `yaml:"texture_scale"`
	TextureResolutionLimit int     `yaml:"texture_resolution_limit"`
}

// Default returns a Config with default values.
func Default() *Config {
	file := logger.DefaultFileConfig("")
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAgeDays: file.MaxAgeDays,
			Compress:   file.Compress,
		},
		Export: ExportConfig{
			Scale:         0.08,
			EmbedTextures: true,
			TextureScale:  1.0,
		},
	}
}
