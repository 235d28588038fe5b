// Package config loads per-project repotrim settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the optional settings file at the project root.
const FileName = ".repotrim.yaml"

// Config holds tunable thresholds. Zero values in the file keep defaults.
type Config struct {
	// Threshold is the minimum estimated tokens for a file to be moved.
	Threshold int `yaml:"threshold"`

	// ExcludePatterns are globs (relative to the root) the patcher never touches.
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// MaxLogAgeDays marks *.log files older than this as garbage.
	MaxLogAgeDays int `yaml:"max_log_age_days"`

	// LargeDataBytes is the size above which an unmoved data file is reported.
	LargeDataBytes int64 `yaml:"large_data_bytes"`

	// DocTokenLimit is the token size above which a doc/changelog is reported.
	DocTokenLimit int `yaml:"doc_token_limit"`

	// ContextMaxChars caps the compact context table in the rules file.
	ContextMaxChars int `yaml:"context_max_chars"`

	// SchemaMaxDepth bounds JSON structure inference.
	SchemaMaxDepth int `yaml:"schema_max_depth"`

	// CSVSampleRows is both the type-inference sample and the illustration cap.
	CSVSampleRows int `yaml:"csv_sample_rows"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Threshold:       1000,
		MaxLogAgeDays:   30,
		LargeDataBytes:  1_000_000,
		DocTokenLimit:   10_000,
		ContextMaxChars: 2000,
		SchemaMaxDepth:  3,
		CSVSampleRows:   3,
	}
}

// Load reads FileName from root. A missing file yields Default().
func Load(root string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(root, FileName))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", FileName, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := file.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", FileName, err)
	}

	cfg.merge(file)
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Threshold < 0:
		return fmt.Errorf("threshold must not be negative, got %d", c.Threshold)
	case c.MaxLogAgeDays < 0:
		return fmt.Errorf("max_log_age_days must not be negative, got %d", c.MaxLogAgeDays)
	case c.LargeDataBytes < 0:
		return fmt.Errorf("large_data_bytes must not be negative, got %d", c.LargeDataBytes)
	case c.SchemaMaxDepth < 0:
		return fmt.Errorf("schema_max_depth must not be negative, got %d", c.SchemaMaxDepth)
	}
	return nil
}

func (c *Config) merge(o Config) {
	if o.Threshold > 0 {
		c.Threshold = o.Threshold
	}
	if len(o.ExcludePatterns) > 0 {
		c.ExcludePatterns = o.ExcludePatterns
	}
	if o.MaxLogAgeDays > 0 {
		c.MaxLogAgeDays = o.MaxLogAgeDays
	}
	if o.LargeDataBytes > 0 {
		c.LargeDataBytes = o.LargeDataBytes
	}
	if o.DocTokenLimit > 0 {
		c.DocTokenLimit = o.DocTokenLimit
	}
	if o.ContextMaxChars > 0 {
		c.ContextMaxChars = o.ContextMaxChars
	}
	if o.SchemaMaxDepth > 0 {
		c.SchemaMaxDepth = o.SchemaMaxDepth
	}
	if o.CSVSampleRows > 0 {
		c.CSVSampleRows = o.CSVSampleRows
	}
}
