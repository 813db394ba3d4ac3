// Package cache persists baked layer rasters so procedural generation runs
// once per map identity.
package cache

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Faultbox/tilestream/internal/logger"
)

// ErrPersistence wraps every raster read or write failure.
var ErrPersistence = errors.New("layer persistence failed")

// LayerCache stores one raster file per (map name, layer role) pair.
// Presence of the file is the only thing that gates regeneration.
type LayerCache struct {
	dir   string
	codec Codec
	mu    sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewLayerCache creates a cache rooted at dir. A nil codec means PNG.
func NewLayerCache(dir string, codec Codec) *LayerCache {
	if codec == nil {
		codec = PNGCodec{}
	}
	return &LayerCache{
		dir:   dir,
		codec: codec,
	}
}

// Dir returns the generated-content directory.
func (c *LayerCache) Dir() string {
	return c.dir
}

// Codec returns the codec used for layer files.
func (c *LayerCache) Codec() Codec {
	return c.codec
}

// Path returns the deterministic file path for a layer, e.g. generated/overworld_ground.png.
func (c *LayerCache) Path(mapName, role string) string {
	return filepath.Join(c.dir, mapName+"_"+role+c.codec.Ext())
}

// Exists reports whether a cached raster is present, counting a hit or miss.
func (c *LayerCache) Exists(mapName, role string) bool {
	_, err := os.Stat(c.Path(mapName, role))
	ok := err == nil

	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	return ok
}

// Load reads a cached raster.
func (c *LayerCache) Load(mapName, role string) (*image.RGBA, error) {
	path := c.Path(mapName, role)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrPersistence, path, err)
	}
	defer f.Close()

	img, err := c.codec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrPersistence, path, err)
	}

	logger.Debug("layer raster loaded",
		zap.String("path", path),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return img, nil
}

// Store writes a raster and returns its path and size in bytes.
// The file is written under a temporary name and renamed into place, so a
// reader never observes a partial raster.
func (c *LayerCache) Store(mapName, role string, img *image.RGBA) (string, int64, error) {
	path := c.Path(mapName, role)
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", 0, fmt.Errorf("%w: creating %s: %w", ErrPersistence, c.dir, err)
	}

	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("%w: creating temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := c.codec.Encode(tmp, img); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("%w: encoding %s: %w", ErrPersistence, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("%w: syncing %s: %w", ErrPersistence, path, err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("%w: stat %s: %w", ErrPersistence, path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("%w: closing %s: %w", ErrPersistence, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", 0, fmt.Errorf("%w: renaming into %s: %w", ErrPersistence, path, err)
	}

	logger.Info("layer raster stored",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(info.Size()))))
	return path, info.Size(), nil
}

// Remove deletes a cached raster. Removing a missing file is not an error.
func (c *LayerCache) Remove(mapName, role string) error {
	path := c.Path(mapName, role)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", ErrPersistence, path, err)
	}
	return nil
}

// Stats returns existence-check statistics.
func (c *LayerCache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
