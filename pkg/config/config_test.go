package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"microdraw3d/pkg/microdraw"
	"microdraw3d/pkg/reconstruction"
)

// TestDefaultConfig checks the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Remote.BaseURL != microdraw.DefaultBaseURL {
		t.Errorf("Expected default base URL %s, got %s", microdraw.DefaultBaseURL, cfg.Remote.BaseURL)
	}
	if cfg.Mesh.Scale != [3]float64{0.1, 0.1, 1.25} {
		t.Errorf("Unexpected mesh scale %v", cfg.Mesh.Scale)
	}
	if cfg.Volume.VoxDim != reconstruction.DefaultVoxDim {
		t.Errorf("Unexpected voxel size %v", cfg.Volume.VoxDim)
	}
	if cfg.Volume.RegionName != "" {
		t.Errorf("Expected no region filter, got %q", cfg.Volume.RegionName)
	}
	if cfg.Volume.NumCores <= 0 {
		t.Errorf("Expected positive core count, got %d", cfg.Volume.NumCores)
	}
	if cfg.Preview.Columns != 13 || cfg.Preview.TileWidth != 800 || cfg.Preview.Alpha != 0.5 {
		t.Errorf("Unexpected preview defaults %+v", cfg.Preview)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected info logging, got %s", cfg.Logging.Level)
	}
}

// TestLoadConfigMissingFile verifies that a missing file yields the defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Failed to load missing config: %v", err)
	}
	if cfg.Remote.Concurrency != DefaultConfig().Remote.Concurrency {
		t.Errorf("Expected default concurrency, got %d", cfg.Remote.Concurrency)
	}
}

// TestSaveLoadConfig verifies that a saved configuration loads back unchanged
func TestSaveLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Remote.Token = "abc"
	cfg.Remote.Timeout = 5 * time.Second
	cfg.Volume.RegionName = "V1"
	cfg.Volume.VoxDim = [3]float64{0.2, 0.2, 2}

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("Loaded config differs:\n got %+v\nwant %+v", *loaded, *cfg)
	}
}

// TestLoadConfigPartial verifies that absent keys keep their defaults
func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "volume:\n  regionName: V2\nremote:\n  timeout: 1m\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	params := cfg.RasterParams()
	if params.RegionName != "V2" {
		t.Errorf("Expected region V2, got %q", params.RegionName)
	}
	if params.VoxDim != reconstruction.DefaultVoxDim {
		t.Errorf("Expected default voxel size, got %v", params.VoxDim)
	}
	if opts := cfg.ClientOptions(); opts.Timeout != time.Minute || opts.MaxRetries != 3 {
		t.Errorf("Unexpected client options %+v", opts)
	}
	if s := cfg.MeshScale(); s.Z != 1.25 {
		t.Errorf("Expected z scale 1.25, got %f", s.Z)
	}
	if p := cfg.PreviewOptions(); p.Columns != 13 {
		t.Errorf("Expected 13 preview columns, got %d", p.Columns)
	}
}

// TestLoadConfigInvalid verifies that malformed YAML is reported
func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("volume: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed config")
	}
}

// TestCreateDefaultConfigFile verifies that the default file is written
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Config file not written: %v", err)
	}
}
