// Package config loads pdftools settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// Environment variables that override file settings.
const (
	// EnvConfigPath names the YAML file read by the cloud functions.
	EnvConfigPath        = "PDFTOOLS_CONFIG"
	EnvLogLevel          = "PDFTOOLS_LOG_LEVEL"
	EnvLogFormat         = "PDFTOOLS_LOG_FORMAT"
	EnvMergeBatchSize    = "PDFTOOLS_MERGE_BATCH_SIZE"
	EnvCompressionLevel  = "PDFTOOLS_COMPRESSION_LEVEL"
	EnvRelaxedValidation = "PDFTOOLS_RELAXED_VALIDATION"
)

// ErrInvalidConfig is returned for configuration that cannot be parsed or used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the process configuration handed to the pipeline and its front ends.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Merge       MergeConfig       `yaml:"merge"`
	Compression CompressionConfig `yaml:"compression"`
	Codec       CodecConfig       `yaml:"codec"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

// MergeConfig bounds how many documents a merge holds open at once.
type MergeConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// CompressionConfig holds the defaults used when a request does not choose its own.
type CompressionConfig struct {
	Level             string `yaml:"level"`
	RemoveMetadata    bool   `yaml:"remove_metadata"`
	RemoveAnnotations bool   `yaml:"remove_annotations"`
}

// CodecConfig tunes how the PDF codec reads documents.
type CodecConfig struct {
	RelaxedValidation bool `yaml:"relaxed_validation"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:         LogConfig{Level: "info", Format: "json"},
		Merge:       MergeConfig{BatchSize: 20},
		Compression: CompressionConfig{Level: "medium", RemoveMetadata: true},
		Codec:       CodecConfig{RelaxedValidation: true},
	}
}

// Load reads the YAML file at path over the defaults, expanding ${VAR} references, and then
// applies environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Log.Level = GetEnv(EnvLogLevel, c.Log.Level)
	c.Log.Format = GetEnv(EnvLogFormat, c.Log.Format)
	c.Compression.Level = GetEnv(EnvCompressionLevel, c.Compression.Level)

	if v, ok := os.LookupEnv(EnvMergeBatchSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvMergeBatchSize, v)
		}
		c.Merge.BatchSize = n
	}
	if v, ok := os.LookupEnv(EnvRelaxedValidation); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvRelaxedValidation, v)
		}
		c.Codec.RelaxedValidation = b
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Merge.BatchSize < 2 {
		return fmt.Errorf("%w: merge batch size %d is below 2", ErrInvalidConfig, c.Merge.BatchSize)
	}
	if _, err := models.ParseCompressionLevel(c.Compression.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CompressionSettings returns the configured compression defaults.
func (c Config) CompressionSettings() models.CompressionSettings {
	level, err := models.ParseCompressionLevel(c.Compression.Level)
	if err != nil {
		level = models.Medium
	}
	return models.CompressionSettings{
		Level:             level,
		RemoveMetadata:    c.Compression.RemoveMetadata,
		RemoveAnnotations: c.Compression.RemoveAnnotations,
	}
}

// GetEnv reads an environment variable or returns fallback when it is unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
