package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagMap        = flag.String("map", "", "Map name (cache key)")
	flagSeed       = flag.Int64("seed", 0, "Generation seed (0 = keep configured)")
	flagTilesX     = flag.Int("tiles-x", 0, "Grid width in tiles")
	flagTilesY     = flag.Int("tiles-y", 0, "Grid height in tiles")
	flagCacheDir   = flag.String("cache-dir", "", "Generated-content directory")
	flagRegenerate = flag.Bool("regenerate", false, "Discard cached layers before generating")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// Regenerate reports whether cached layers should be discarded first.
func Regenerate() bool {
	return *flagRegenerate
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagMap != "" {
		cfg.World.Name = *flagMap
	}
	if *flagSeed != 0 {
		cfg.World.Seed = *flagSeed
	}
	if *flagTilesX > 0 {
		cfg.World.TilesX = *flagTilesX
	}
	if *flagTilesY > 0 {
		cfg.World.TilesY = *flagTilesY
	}
	if *flagCacheDir != "" {
		cfg.Cache.Dir = *flagCacheDir
	}
}
