// tilebake generates tile-world layers and streams chunks around a simulated viewer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/tilestream/internal/cache"
	"github.com/Faultbox/tilestream/internal/config"
	"github.com/Faultbox/tilestream/internal/debug"
	"github.com/Faultbox/tilestream/internal/logger"
	"github.com/Faultbox/tilestream/internal/terrain"
	"github.com/Faultbox/tilestream/internal/world"
	"github.com/Faultbox/tilestream/pkg/math"
)

func main() {
	// Global flags come before the command
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command, rest := args[0], args[1:]
	switch command {
	case "bake":
		err = cmdBake(ctx, cfg, rest)
	case "walk":
		err = cmdWalk(ctx, cfg, rest)
	case "info":
		err = cmdInfo(ctx, cfg, rest)
	case "clean":
		err = cmdClean(ctx, cfg, rest)
	case "config":
		err = cmdConfig(cfg, rest)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tilebake - procedural tile layer baker and chunk streaming tool

Usage:
  tilebake [global flags] <command> [options]

Commands:
  bake                        Generate or load the map's layers
  walk [-to x,y] [-dump dir] [-chunks]
                              Walk a viewer across the map, streaming chunks
  info                        Show cached layers and ledger entries
  clean                       Remove the map's cached layers
  config [-o file]            Write the effective config as YAML

Global flags:
  -config file  -debug  -map name  -seed n  -tiles-x n  -tiles-y n
  -cache-dir dir  -regenerate

Examples:
  tilebake -map meadow -seed 42 bake
  tilebake -map meadow walk -to 14,9 -dump ./frames
  tilebake -map meadow info`)
}

// app holds the pieces every command shares.
type app struct {
	cfg     *config.Config
	layers  *cache.LayerCache
	index   *cache.Index
	gen     *terrain.Generator
	palette *terrain.Palette
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	codec, err := cache.CodecByName(cfg.Cache.Format)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		layers: cache.NewLayerCache(cfg.Cache.Dir, codec),
	}
	if cfg.Cache.Index != "" {
		if a.index, err = cache.OpenIndex(cfg.Cache.Index); err != nil {
			return nil, err
		}
	}
	a.gen = terrain.NewGenerator(a.layers, a.index, cfg.World.TileSize)

	if cfg.Terrain.Palette != "" {
		if a.palette, err = terrain.LoadPalette(cfg.Terrain.Palette, cfg.World.TileSize); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		a.palette = terrain.DefaultPalette(cfg.World.TileSize)
	}

	if config.Regenerate() {
		if err := a.gen.Forget(ctx, cfg.World.Name); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) identity() terrain.Identity {
	return terrain.Identity{Name: a.cfg.World.Name, Seed: a.cfg.World.Seed}
}

func (a *app) Close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			logger.Warn("closing cache index", zap.Error(err))
		}
	}
}

// loadMap loads the configured map, in the background when configured.
func (a *app) loadMap(ctx context.Context, m *world.Manager) error {
	if !a.cfg.Terrain.Background {
		return m.LoadMap(ctx, a.identity())
	}
	m.LoadMapAsync(ctx, a.identity())
	return m.Wait(ctx)
}

func cmdBake(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("bake", flag.ExitOnError)
	fs.Parse(args)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	m := world.NewManager(*cfg, a.gen, a.palette, nil)
	defer m.Close()
	if err := a.loadMap(ctx, m); err != nil {
		return err
	}

	cur := m.Current()
	tx, ty := cur.Size()
	fmt.Printf("Map:       %s (seed %d)\n", cur.Identity.Name, cur.Identity.Seed)
	fmt.Printf("Grid:      %dx%d tiles of %dpx\n", tx, ty, cfg.World.TileSize)
	for _, grid := range cur.Layers.Grids() {
		path := a.layers.Path(cur.Identity.Name, grid.Kind.Role())
		source := "generated"
		if grid.Cached {
			source = "cached"
		}
		size := "?"
		if st, err := os.Stat(path); err == nil {
			size = humanize.IBytes(uint64(st.Size()))
		}
		fmt.Printf("%-10s %s (%s, %s)\n", grid.Kind.String()+":", path, source, size)
	}
	fmt.Printf("Obstacles: %d tiles\n", cur.Obstacles.Count())
	fmt.Printf("Picks:     %s\n", humanize.Comma(a.gen.Picks()))
	return nil
}

func cmdWalk(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("walk", flag.ExitOnError)
	to := fs.String("to", "", "Destination tile as x,y (default: far corner)")
	speed := fs.Float64("speed", 0, "Viewer speed in world units per second (default: 4 tiles/s)")
	dt := fs.Float64("dt", 1.0/30, "Tick length in seconds")
	maxTicks := fs.Int("ticks", 100000, "Stop after this many ticks")
	dump := fs.String("dump", "", "Write a PNG mosaic of the resident chunks to this directory on every change")
	chunks := fs.Bool("chunks", false, "With -dump, also write every newly loaded chunk as its own PNG")
	verbose := fs.Bool("v", false, "Print every tick that changed the resident set")
	fs.Parse(args)
	if *chunks && *dump == "" {
		return errors.New("-chunks requires -dump")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	m := world.NewManager(*cfg, a.gen, a.palette, nil)
	defer m.Close()
	if err := a.loadMap(ctx, m); err != nil {
		return err
	}
	cur := m.Current()
	tilesX, tilesY := cur.Size()

	destX, destY := tilesX-1, tilesY-1
	if *to != "" {
		if destX, destY, err = parseTile(*to); err != nil {
			return err
		}
	}

	pf := cur.PathFinder()
	startX, startY, ok := pf.NearestWalkable(0, 0)
	if !ok {
		return errors.New("map has no walkable tile")
	}
	if destX, destY, ok = pf.NearestWalkable(destX, destY); !ok {
		return errors.New("destination has no walkable tile nearby")
	}

	ts := float64(cfg.World.TileSize)
	if *speed <= 0 {
		*speed = 4 * ts
	}
	start := math.Vec2{X: (float64(startX) + 0.5) * ts, Y: (float64(startY) + 0.5) * ts}
	walker := world.NewWalker(pf, ts, *speed, start)
	path := walker.MoveTo(destX, destY)
	if path == nil {
		return fmt.Errorf("no path from (%d,%d) to (%d,%d)", startX, startY, destX, destY)
	}
	fmt.Printf("Walking %d tiles from (%d,%d) to (%d,%d)\n", len(path), startX, startY, destX, destY)

	var dumper *debug.Dumper
	chunkFiles := 0
	if *dump != "" {
		dumper = debug.NewDumper(*dump, cfg.World.Name)
	}
	chunkPixels := cur.Chunks.Mapper().ChunkPixels()

	pos := walker.Position()
	for tick := 0; tick < *maxTicks; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := m.Update(pos)
		if err != nil {
			return err
		}
		if res.Changed() {
			if *verbose {
				fmt.Printf("tick %5d center %v +%d -%d\n", tick, res.Center, len(res.Loaded), len(res.Unloaded))
			}
			if dumper != nil {
				drawables := cur.Chunks.Drawables()
				if _, err := dumper.DumpMosaic(drawables, chunkPixels); err != nil {
					return err
				}
				if *chunks {
					paths, err := dumper.DumpChunks(debug.Select(drawables, res.Loaded))
					if err != nil {
						return err
					}
					chunkFiles += len(paths)
				}
			}
		}
		if !walker.Moving() {
			break
		}
		pos = walker.Step(*dt)
	}

	st := cur.Chunks.Stats()
	fmt.Printf("Updates:    %s\n", humanize.Comma(int64(st.Updates)))
	fmt.Printf("Composed:   %d\n", st.Composed)
	fmt.Printf("Evicted:    %d\n", st.Evicted)
	fmt.Printf("Reattached: %d\n", st.Reattached)
	fmt.Printf("Resident:   %d\n", st.Resident)
	if dumper != nil {
		fmt.Printf("Frames:     %d written to %s\n", dumper.Frames(), *dump)
		if *chunks {
			fmt.Printf("Chunks:     %d written to %s\n", chunkFiles, *dump)
		}
	}
	return nil
}

func parseTile(s string) (int, int, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("tile %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("tile %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, fmt.Errorf("tile %q: %w", s, err)
	}
	return x, y, nil
}

func cmdInfo(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Parse(args)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	name := cfg.World.Name
	fmt.Printf("Map:    %s\n", name)
	fmt.Printf("Cache:  %s (%s)\n", a.layers.Dir(), a.layers.Codec().Name())
	fmt.Println()
	fmt.Println("Layers:")
	for _, kind := range []terrain.LayerKind{terrain.LayerGround, terrain.LayerDecoration} {
		path := a.layers.Path(name, kind.Role())
		st, err := os.Stat(path)
		if err != nil {
			fmt.Printf("  %-8s missing\n", kind.Role())
			continue
		}
		fmt.Printf("  %-8s %s  %s  %s\n", kind.Role(), path,
			humanize.IBytes(uint64(st.Size())), humanize.Time(st.ModTime()))
	}

	if a.index == nil {
		return nil
	}
	entries, err := a.index.Entries(ctx, name)
	if err != nil {
		return fmt.Errorf("reading cache index: %w", err)
	}
	fmt.Println()
	fmt.Println("Ledger:")
	if len(entries) == 0 {
		fmt.Println("  (no entries)")
	}
	for _, e := range entries {
		stale := ""
		if e.Seed != cfg.World.Seed || e.TilesX != cfg.World.TilesX || e.TilesY != cfg.World.TilesY {
			stale = "  [stale]"
		}
		fmt.Printf("  %-8s seed %d  %dx%d@%dpx  %s  run %s%s\n", e.Role, e.Seed,
			e.TilesX, e.TilesY, e.TileSize, humanize.Time(e.GeneratedAt), e.RunID, stale)
	}
	return nil
}

func cmdClean(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	fs.Parse(args)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.gen.Forget(ctx, cfg.World.Name); err != nil {
		return err
	}
	fmt.Printf("Removed cached layers of %s\n", cfg.World.Name)
	return nil
}

func cmdConfig(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	out := fs.String("o", "", "Output file (default: user config dir)")
	fs.Parse(args)

	if *out == "" {
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
		return nil
	}
	if err := cfg.SaveTo(*out); err != nil {
		return err
	}
	fmt.Printf("Config written to %s\n", *out)
	return nil
}
