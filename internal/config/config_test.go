package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// World defaults
	if cfg.World.Name != "overworld" {
		t.Errorf("expected map name 'overworld', got %s", cfg.World.Name)
	}
	if cfg.World.TilesX != 15 || cfg.World.TilesY != 10 {
		t.Errorf("expected 15x10 tiles, got %dx%d", cfg.World.TilesX, cfg.World.TilesY)
	}
	if cfg.World.TileSize != 128 {
		t.Errorf("expected tile size 128, got %d", cfg.World.TileSize)
	}

	// Chunk defaults: wider horizontally than vertically
	if cfg.Chunks.Size != 5 {
		t.Errorf("expected chunk size 5, got %d", cfg.Chunks.Size)
	}
	if cfg.Chunks.RadiusX != 2 || cfg.Chunks.RadiusY != 1 {
		t.Errorf("expected radii 2x1, got %dx%d", cfg.Chunks.RadiusX, cfg.Chunks.RadiusY)
	}
	if cfg.Chunks.RetainDetached != 0 {
		t.Errorf("expected no detached retention by default, got %d", cfg.Chunks.RetainDetached)
	}

	// Terrain defaults
	if cfg.Terrain.DecorationChance != 0.1 {
		t.Errorf("expected decoration chance 0.1, got %f", cfg.Terrain.DecorationChance)
	}

	// Cache defaults
	if cfg.Cache.Dir != "generated" {
		t.Errorf("expected cache dir 'generated', got %s", cfg.Cache.Dir)
	}
	if cfg.Cache.Format != "png" {
		t.Errorf("expected cache format png, got %s", cfg.Cache.Format)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
world:
  name: "desert"
  seed: 42
  tiles_x: 200
  tiles_y: 120
  tile_size: 64

chunks:
  size: 8
  radius_x: 3
  radius_y: 2
  retain_detached: 16

terrain:
  ground_bias_keep: 0.9
  decoration_chance: 0.25
  background: true

cache:
  dir: "/var/cache/tiles"
  format: "zstd"
  index: "/var/cache/tiles/index.db"

logging:
  level: "debug"
  log_file: "tilestream.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.World.Name != "desert" {
		t.Errorf("expected map desert, got %s", cfg.World.Name)
	}
	if cfg.World.Seed != 42 {
		t.Errorf("expected seed 42, got %d", cfg.World.Seed)
	}
	if cfg.World.TilesX != 200 || cfg.World.TilesY != 120 {
		t.Errorf("expected 200x120, got %dx%d", cfg.World.TilesX, cfg.World.TilesY)
	}
	if cfg.Chunks.Size != 8 || cfg.Chunks.RetainDetached != 16 {
		t.Errorf("unexpected chunk config %+v", cfg.Chunks)
	}
	if cfg.Terrain.GroundBiasKeep != 0.9 {
		t.Errorf("expected ground bias 0.9, got %f", cfg.Terrain.GroundBiasKeep)
	}
	// Unset keys keep their defaults
	if cfg.Terrain.DecorationBiasKeep != 0.5 {
		t.Errorf("expected default decoration bias 0.5, got %f", cfg.Terrain.DecorationBiasKeep)
	}
	if !cfg.Terrain.Background {
		t.Error("expected background generation enabled")
	}
	if cfg.Cache.Format != "zstd" {
		t.Errorf("expected zstd format, got %s", cfg.Cache.Format)
	}
	if cfg.Logging.LogFile != "tilestream.log" {
		t.Errorf("expected log file 'tilestream.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
world:
  tiles_x: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.World.Name = "  " }},
		{"name with separator", func(c *Config) { c.World.Name = "../escape" }},
		{"zero width", func(c *Config) { c.World.TilesX = 0 }},
		{"negative tile size", func(c *Config) { c.World.TileSize = -1 }},
		{"zero chunk size", func(c *Config) { c.Chunks.Size = 0 }},
		{"negative radius", func(c *Config) { c.Chunks.RadiusY = -1 }},
		{"radius above cap", func(c *Config) { c.Chunks.RadiusX = MaxChunkRadius + 1 }},
		{"absurd radius", func(c *Config) { c.Chunks.RadiusY = 1 << 62 }},
		{"negative retention", func(c *Config) { c.Chunks.RetainDetached = -2 }},
		{"bias above one", func(c *Config) { c.Terrain.GroundBiasKeep = 1.5 }},
		{"negative chance", func(c *Config) { c.Terrain.DecorationChance = -0.1 }},
		{"empty cache dir", func(c *Config) { c.Cache.Dir = "" }},
		{"unknown format", func(c *Config) { c.Cache.Format = "webp" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("world:\n  tiles_x: 40\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "map and seed flags",
			setup: func() { *flagMap = "tundra"; *flagSeed = 99 },
			verify: func(cfg *Config) {
				if cfg.World.Name != "tundra" {
					t.Errorf("expected map tundra, got %s", cfg.World.Name)
				}
				if cfg.World.Seed != 99 {
					t.Errorf("expected seed 99, got %d", cfg.World.Seed)
				}
			},
			teardown: func() { *flagMap = ""; *flagSeed = 0 },
		},
		{
			name:  "dimension flags",
			setup: func() { *flagTilesX = 64; *flagTilesY = 32 },
			verify: func(cfg *Config) {
				if cfg.World.TilesX != 64 || cfg.World.TilesY != 32 {
					t.Errorf("expected 64x32, got %dx%d", cfg.World.TilesX, cfg.World.TilesY)
				}
			},
			teardown: func() { *flagTilesX = 0; *flagTilesY = 0 },
		},
		{
			name:  "cache dir flag",
			setup: func() { *flagCacheDir = "/tmp/tiles" },
			verify: func(cfg *Config) {
				if cfg.Cache.Dir != "/tmp/tiles" {
					t.Errorf("expected cache dir /tmp/tiles, got %s", cfg.Cache.Dir)
				}
			},
			teardown: func() { *flagCacheDir = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
world:
  tiles_x: 80
  tiles_y: 60
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Flag overrides the file
	*flagConfig = configPath
	*flagTilesX = 120
	defer func() {
		*flagConfig = ""
		*flagTilesX = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.World.TilesX != 120 {
		t.Errorf("expected tiles_x 120 from flag, got %d", cfg.World.TilesX)
	}
	if cfg.World.TilesY != 60 {
		t.Errorf("expected tiles_y 60 from file, got %d", cfg.World.TilesY)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("chunks:\n  size: 0\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadFile(configPath)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.World.Name = "islands"
	cfg.Cache.Format = "zstd"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.World.Name != "islands" || loaded.Cache.Format != "zstd" {
		t.Errorf("saved values not restored: %+v", loaded.World)
	}
}
