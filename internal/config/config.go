// Package config handles tilestream configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

// Config holds all tilestream settings.
type Config struct {
	World   WorldConfig   `yaml:"world"`
	Chunks  ChunkConfig   `yaml:"chunks"`
	Terrain TerrainConfig `yaml:"terrain"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// WorldConfig identifies the generated world and its dimensions.
type WorldConfig struct {
	Name     string `yaml:"name"`      // Map identity, also the cache key
	Seed     int64  `yaml:"seed"`      // Random seed for generation
	TilesX   int    `yaml:"tiles_x"`   // Grid width in tiles
	TilesY   int    `yaml:"tiles_y"`   // Grid height in tiles
	TileSize int    `yaml:"tile_size"` // Tile edge in pixels / world units
}

// ChunkConfig holds chunk partitioning and visibility settings.
type ChunkConfig struct {
	Size           int `yaml:"size"`            // Tiles per chunk side
	RadiusX        int `yaml:"radius_x"`        // Visible chunks left/right of center
	RadiusY        int `yaml:"radius_y"`        // Visible chunks above/below center
	RetainDetached int `yaml:"retain_detached"` // Detached chunks kept for reuse (0 = evict immediately)
}

// TerrainConfig holds procedural generation settings.
type TerrainConfig struct {
	GroundBiasKeep     float64 `yaml:"ground_bias_keep"`
	DecorationBiasKeep float64 `yaml:"decoration_bias_keep"`
	DecorationChance   float64 `yaml:"decoration_chance"`
	Palette            string  `yaml:"palette"`    // Palette manifest path (empty = built-in)
	Background         bool    `yaml:"background"` // Generate layers off the main loop
}

// CacheConfig holds layer cache settings.
type CacheConfig struct {
	Dir    string `yaml:"dir"`    // Generated-content directory
	Format string `yaml:"format"` // "png" or "zstd"
	Index  string `yaml:"index"`  // SQLite ledger path (empty = disabled)
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

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		World: WorldConfig{
			Name:     "overworld",
			Seed:     1337,
			TilesX:   15,
			TilesY:   10,
			TileSize: 128,
		},
		Chunks: ChunkConfig{
			Size:           5,
			RadiusX:        2,
			RadiusY:        1,
			RetainDetached: 0,
		},
		Terrain: TerrainConfig{
			GroundBiasKeep:     0.7,
			DecorationBiasKeep: 0.5,
			DecorationChance:   0.1,
			Palette:            "",
			Background:         false,
		},
		Cache: CacheConfig{
			Dir:    "generated",
			Format: "png",
			Index:  "",
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogFile:    "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// MaxChunkRadius bounds chunks.radius_x and chunks.radius_y.
const MaxChunkRadius = 256

// Validate checks that the settings can drive generation and streaming.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.World.Name) == "":
		return fmt.Errorf("%w: world.name is empty", ErrInvalid)
	case strings.ContainsAny(c.World.Name, `/\`):
		return fmt.Errorf("%w: world.name %q contains a path separator", ErrInvalid, c.World.Name)
	case c.World.TilesX <= 0 || c.World.TilesY <= 0:
		return fmt.Errorf("%w: world dimensions %dx%d", ErrInvalid, c.World.TilesX, c.World.TilesY)
	case c.World.TileSize <= 0:
		return fmt.Errorf("%w: world.tile_size %d", ErrInvalid, c.World.TileSize)
	case c.Chunks.Size <= 0:
		return fmt.Errorf("%w: chunks.size %d", ErrInvalid, c.Chunks.Size)
	case c.Chunks.RadiusX < 0 || c.Chunks.RadiusY < 0:
		return fmt.Errorf("%w: negative visibility radius", ErrInvalid)
	case c.Chunks.RadiusX > MaxChunkRadius || c.Chunks.RadiusY > MaxChunkRadius:
		return fmt.Errorf("%w: visibility radius %dx%d above %d", ErrInvalid, c.Chunks.RadiusX, c.Chunks.RadiusY, MaxChunkRadius)
	case c.Chunks.RetainDetached < 0:
		return fmt.Errorf("%w: chunks.retain_detached %d", ErrInvalid, c.Chunks.RetainDetached)
	case !isProbability(c.Terrain.GroundBiasKeep):
		return fmt.Errorf("%w: terrain.ground_bias_keep %v", ErrInvalid, c.Terrain.GroundBiasKeep)
	case !isProbability(c.Terrain.DecorationBiasKeep):
		return fmt.Errorf("%w: terrain.decoration_bias_keep %v", ErrInvalid, c.Terrain.DecorationBiasKeep)
	case !isProbability(c.Terrain.DecorationChance):
		return fmt.Errorf("%w: terrain.decoration_chance %v", ErrInvalid, c.Terrain.DecorationChance)
	case c.Cache.Dir == "":
		return fmt.Errorf("%w: cache.dir is empty", ErrInvalid)
	case c.Cache.Format != "png" && c.Cache.Format != "zstd":
		return fmt.Errorf("%w: cache.format %q (want png or zstd)", ErrInvalid, c.Cache.Format)
	}
	return nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
