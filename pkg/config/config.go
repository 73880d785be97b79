// Package config provides configuration loading and management for microdraw3d.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"microdraw3d/pkg/mesh"
	"microdraw3d/pkg/microdraw"
	"microdraw3d/pkg/reconstruction"
	"microdraw3d/pkg/visualization"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Remote describes the MicroDraw server and dataset to download
	Remote struct {
		BaseURL string `yaml:"baseURL"`
		Token   string `yaml:"token"`
		Project string `yaml:"project"`

		// Source is the URL of the dataset definition
		Source string `yaml:"source"`

		// Concurrency is the number of slices downloaded at once
		Concurrency int `yaml:"concurrency"`

		RequestsPerSecond float64       `yaml:"requestsPerSecond"`
		MaxRetries        int           `yaml:"maxRetries"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"remote"`

	// Mesh parameters
	Mesh struct {
		// Scale multiplies x, y and z of every mesh vertex
		Scale [3]float64 `yaml:"scale,flow"`
	} `yaml:"mesh"`

	// Volume rasterization parameters
	Volume struct {
		// VoxDim is the physical voxel size written to the NIfTI affine
		VoxDim [3]float64 `yaml:"voxDim,flow"`

		// RegionName restricts the volume to one region; empty keeps all
		RegionName string `yaml:"regionName"`

		// NumCores specifies how many slices are rasterized in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"volume"`

	// Preview image parameters
	Preview struct {
		Columns   int     `yaml:"columns"`
		TileWidth float64 `yaml:"tileWidth"`
		Scale     float64 `yaml:"scale"`
		Alpha     float64 `yaml:"alpha"`
	} `yaml:"preview"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn or error
		Level string `yaml:"level"`

		// Development switches to human readable console output
		Development bool `yaml:"development"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	remote := microdraw.DefaultOptions()
	cfg.Remote.BaseURL = remote.BaseURL
	cfg.Remote.Concurrency = remote.Concurrency
	cfg.Remote.RequestsPerSecond = remote.RequestsPerSecond
	cfg.Remote.MaxRetries = remote.MaxRetries
	cfg.Remote.Timeout = remote.Timeout

	s := mesh.DefaultScale
	cfg.Mesh.Scale = [3]float64{s.X, s.Y, s.Z}

	cfg.Volume.VoxDim = reconstruction.DefaultVoxDim
	cfg.Volume.NumCores = runtime.NumCPU()

	preview := visualization.DefaultPreviewOptions()
	cfg.Preview.Columns = preview.Columns
	cfg.Preview.TileWidth = preview.TileWidth
	cfg.Preview.Scale = preview.Scale
	cfg.Preview.Alpha = preview.Alpha

	cfg.Logging.Level = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// ClientOptions returns the download client options.
func (c *Config) ClientOptions() microdraw.Options {
	return microdraw.Options{
		BaseURL:           c.Remote.BaseURL,
		Token:             c.Remote.Token,
		Concurrency:       c.Remote.Concurrency,
		RequestsPerSecond: c.Remote.RequestsPerSecond,
		MaxRetries:        c.Remote.MaxRetries,
		Timeout:           c.Remote.Timeout,
	}
}

// MeshScale returns the vertex scale of the text mesh.
func (c *Config) MeshScale() mesh.Scale {
	return mesh.Scale{X: c.Mesh.Scale[0], Y: c.Mesh.Scale[1], Z: c.Mesh.Scale[2]}
}

// RasterParams returns the volume rasterization parameters.
func (c *Config) RasterParams() reconstruction.RasterParams {
	return reconstruction.RasterParams{
		VoxDim:     c.Volume.VoxDim,
		RegionName: c.Volume.RegionName,
		NumCores:   c.Volume.NumCores,
	}
}

// PreviewOptions returns the dataset preview options.
func (c *Config) PreviewOptions() visualization.PreviewOptions {
	return visualization.PreviewOptions{
		Columns:   c.Preview.Columns,
		TileWidth: c.Preview.TileWidth,
		Scale:     c.Preview.Scale,
		Alpha:     c.Preview.Alpha,
	}
}
