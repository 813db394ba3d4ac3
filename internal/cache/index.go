package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry records how a cached layer raster was produced.
type Entry struct {
	RunID       string
	Map         string
	Role        string
	Seed        int64
	TilesX      int
	TilesY      int
	TileSize    int
	Path        string
	Bytes       int64
	GeneratedAt time.Time
}

// Index is a SQLite ledger of generated layers. It is informational only:
// the raster file, not the ledger row, decides whether a layer is cached.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (or creates) the ledger at path.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty index path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS layers (
		map TEXT NOT NULL,
		role TEXT NOT NULL,
		run_id TEXT NOT NULL,
		seed INTEGER NOT NULL,
		tiles_x INTEGER NOT NULL,
		tiles_y INTEGER NOT NULL,
		tile_size INTEGER NOT NULL,
		path TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		generated_at TEXT NOT NULL,
		PRIMARY KEY (map, role)
	);`)
	return err
}

// NewRunID returns an identifier shared by the layers of one generation run.
func NewRunID() string {
	return uuid.NewString()
}

// Record upserts the ledger row for a layer.
func (i *Index) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		e.RunID = NewRunID()
	}
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = time.Now()
	}
	_, err := i.db.ExecContext(ctx, `INSERT INTO layers
		(map, role, run_id, seed, tiles_x, tiles_y, tile_size, path, bytes, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(map, role) DO UPDATE SET
			run_id = excluded.run_id,
			seed = excluded.seed,
			tiles_x = excluded.tiles_x,
			tiles_y = excluded.tiles_y,
			tile_size = excluded.tile_size,
			path = excluded.path,
			bytes = excluded.bytes,
			generated_at = excluded.generated_at`,
		e.Map, e.Role, e.RunID, e.Seed, e.TilesX, e.TilesY, e.TileSize, e.Path, e.Bytes,
		e.GeneratedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording layer %s/%s: %w", e.Map, e.Role, err)
	}
	return nil
}

// Lookup returns the ledger row for a layer, if any.
func (i *Index) Lookup(ctx context.Context, mapName, role string) (Entry, bool, error) {
	row := i.db.QueryRowContext(ctx, `SELECT map, role, run_id, seed, tiles_x, tiles_y, tile_size, path, bytes, generated_at
		FROM layers WHERE map = ? AND role = ?`, mapName, role)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("looking up layer %s/%s: %w", mapName, role, err)
	}
	return e, true, nil
}

// Entries lists every ledger row for a map, ordered by role.
func (i *Index) Entries(ctx context.Context, mapName string) ([]Entry, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT map, role, run_id, seed, tiles_x, tiles_y, tile_size, path, bytes, generated_at
		FROM layers WHERE map = ? ORDER BY role`, mapName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Forget removes the ledger row for a layer.
func (i *Index) Forget(ctx context.Context, mapName, role string) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM layers WHERE map = ? AND role = ?`, mapName, role)
	return err
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var at string
	if err := s.Scan(&e.Map, &e.Role, &e.RunID, &e.Seed, &e.TilesX, &e.TilesY, &e.TileSize, &e.Path, &e.Bytes, &at); err != nil {
		return Entry{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing generated_at %q: %w", at, err)
	}
	e.GeneratedAt = t
	return e, nil
}
