// Package config provides configuration loading and management for vdbtexture3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Bounds policies for voxels that fall outside the resolved bounding box
const (
	OutOfBoundsReject = "reject"
	OutOfBoundsDrop   = "drop"
)

// DefaultMaxTilesPerRow is the largest tile count per atlas row the
// Texture3D importer accepts in one direction.
const DefaultMaxTilesPerRow = 24

// Config represents the application configuration loaded from YAML
type Config struct {
	// Atlas layout parameters
	Atlas struct {
		// MaxTilesPerRow caps how many z slices are packed side by side in one atlas row
		MaxTilesPerRow int `yaml:"maxTilesPerRow"`

		// OutputDir is the directory the atlas bitmap is written to
		OutputDir string `yaml:"outputDir"`
	} `yaml:"atlas"`

	// Field naming in the voxel source
	Fields struct {
		// Density is the field written into the red channel
		Density string `yaml:"density"`

		// Flames is the field written into the green channel
		Flames string `yaml:"flames"`

		// BBoxMetadata is the Vec3i metadata key holding the bounding box max corner
		BBoxMetadata string `yaml:"bboxMetadata"`
	} `yaml:"fields"`

	// Bounding box handling
	Bounds struct {
		// OutOfBounds is either "reject" or "drop"
		OutOfBounds string `yaml:"outOfBounds"`

		// ScanWhenMissing derives the box from the active voxels when the metadata is absent
		ScanWhenMissing bool `yaml:"scanWhenMissing"`
	} `yaml:"bounds"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// ExtractSlices re-reads the written atlas and saves every tile as an image
		ExtractSlices bool `yaml:"extractSlices"`

		// SlicesDir is the directory extracted tiles are saved to
		SlicesDir string `yaml:"slicesDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Atlas.MaxTilesPerRow = DefaultMaxTilesPerRow
	cfg.Atlas.OutputDir = "."

	// Grid names written by JangaFX EmberGen
	cfg.Fields.Density = "density"
	cfg.Fields.Flames = "flames"
	cfg.Fields.BBoxMetadata = "file_bbox_max"

	cfg.Bounds.OutOfBounds = OutOfBoundsReject
	cfg.Bounds.ScanWhenMissing = false

	cfg.Output.Verbose = true
	cfg.Output.ExtractSlices = false
	cfg.Output.SlicesDir = "extracted_slices"

	return cfg
}

// Validate checks that the configuration can drive a conversion
func (c *Config) Validate() error {
	if c.Atlas.MaxTilesPerRow <= 0 {
		return fmt.Errorf("atlas.maxTilesPerRow must be positive, got %d", c.Atlas.MaxTilesPerRow)
	}
	if c.Fields.Density == "" || c.Fields.Flames == "" {
		return fmt.Errorf("fields.density and fields.flames must be set")
	}
	if c.Fields.Density == c.Fields.Flames {
		return fmt.Errorf("fields.density and fields.flames must differ, both are %q", c.Fields.Density)
	}
	switch c.Bounds.OutOfBounds {
	case OutOfBoundsReject, OutOfBoundsDrop:
	default:
		return fmt.Errorf("bounds.outOfBounds must be %q or %q, got %q",
			OutOfBoundsReject, OutOfBoundsDrop, c.Bounds.OutOfBounds)
	}
	return nil
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
