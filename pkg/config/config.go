// Package config provides configuration loading and management for hyperspec.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Calibration parameters
	Calibration struct {
		// WhiteMarker is the filename token identifying the white
		// reference capture in a sample directory
		WhiteMarker string `yaml:"whiteMarker"`

		// DarkMarker is the filename token identifying the dark
		// reference capture
		DarkMarker string `yaml:"darkMarker"`
	} `yaml:"calibration"`

	// Extraction parameters
	Extraction struct {
		// RatioThreshold is the band-ratio cutoff for the region mask
		RatioThreshold float64 `yaml:"ratioThreshold"`

		// QualityThreshold is the minimum across-band mean reflectance
		// a spectrum must reach to survive filtering
		QualityThreshold float64 `yaml:"qualityThreshold"`

		// GroupSize is the number of permuted rows averaged into one
		// spectral package; 0 averages all filtered rows into one
		GroupSize int `yaml:"groupSize"`

		// SampleFraction is the fraction of grouped rows kept in the
		// final subsample
		SampleFraction float64 `yaml:"sampleFraction"`

		// Seed seeds the permutation and subsampling generators
		Seed uint64 `yaml:"seed"`

		// NumeratorNM is the target center wavelength of the
		// biomass-indicative band
		NumeratorNM float64 `yaml:"numeratorNM"`

		// DenominatorNM is the target center wavelength of the
		// reference band
		DenominatorNM float64 `yaml:"denominatorNM"`
	} `yaml:"extraction"`

	// Batch parameters
	Batch struct {
		// Workers is the number of images processed concurrently
		Workers int `yaml:"workers"`

		// SaveRenders controls whether PNG renders and plots are written
		SaveRenders bool `yaml:"saveRenders"`
	} `yaml:"batch"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default calibration parameters
	cfg.Calibration.WhiteMarker = "whiteReference"
	cfg.Calibration.DarkMarker = "darkReference"

	// Set default extraction parameters
	cfg.Extraction.RatioThreshold = 1.5
	cfg.Extraction.QualityThreshold = 0.01
	cfg.Extraction.GroupSize = 0
	cfg.Extraction.SampleFraction = 0.03
	cfg.Extraction.Seed = 42
	cfg.Extraction.NumeratorNM = 751
	cfg.Extraction.DenominatorNM = 676

	// Set default batch parameters
	cfg.Batch.Workers = runtime.NumCPU()
	cfg.Batch.SaveRenders = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate rejects configurations no run could execute.
func (c *Config) Validate() error {
	if c.Extraction.SampleFraction < 0 || c.Extraction.SampleFraction > 1 {
		return fmt.Errorf("sampleFraction %g is outside [0, 1]", c.Extraction.SampleFraction)
	}
	if c.Extraction.GroupSize < 0 {
		return fmt.Errorf("groupSize must not be negative, got %d", c.Extraction.GroupSize)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}
