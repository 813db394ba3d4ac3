package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

// checker builds a small raster with a mix of opaque and transparent pixels.
func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%3 == 0 {
				continue // transparent
			}
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 9), G: uint8(y * 7), B: 200, A: 255})
		}
	}
	return img
}

func TestCodecRoundTrip(t *testing.T) {
	for _, codec := range []Codec{PNGCodec{}, ZstdCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			src := checker(17, 11)

			var buf bytes.Buffer
			if err := codec.Encode(&buf, src); err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := codec.Decode(&buf)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Bounds() != src.Bounds() {
				t.Fatalf("bounds = %v, want %v", got.Bounds(), src.Bounds())
			}
			if !bytes.Equal(got.Pix, src.Pix) {
				t.Error("decoded pixels differ from source")
			}
		})
	}
}

func TestZstdDecodeRejectsGarbage(t *testing.T) {
	if _, err := (ZstdCodec{}).Decode(strings.NewReader("not zstd at all")); err == nil {
		t.Error("expected error decoding garbage")
	}
}

// zstdRaster builds a zstd raster file with an arbitrary header line.
func zstdRaster(t *testing.T, header string, pix []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	enc.Write([]byte(header + "\n"))
	enc.Write(pix)
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// pngWithSize encodes a 1x1 PNG and rewrites its IHDR dimensions.
func pngWithSize(t *testing.T, width, height uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := (PNGCodec{}).Encode(&buf, checker(1, 1)); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	binary.BigEndian.PutUint32(b[16:20], width)
	binary.BigEndian.PutUint32(b[20:24], height)
	binary.BigEndian.PutUint32(b[29:33], crc32.ChecksumIEEE(b[12:29]))
	return b
}

func TestZstdDecodeRejectsBadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		pix    []byte
	}{
		{"huge", `{"version":1,"width":1073741824,"height":1073741824}`, nil},
		{"over cap", `{"version":1,"width":65536,"height":65536}`, nil},
		{"overflow", `{"version":1,"width":9223372036854775807,"height":2}`, nil},
		{"zero width", `{"version":1,"width":0,"height":4}`, nil},
		{"negative height", `{"version":1,"width":4,"height":-4}`, nil},
		{"wrong version", `{"version":9,"width":1,"height":1}`, make([]byte, 4)},
		{"not json", `width=4`, nil},
		{"truncated pixels", `{"version":1,"width":4,"height":4}`, make([]byte, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := zstdRaster(t, tt.header, tt.pix)
			if _, err := (ZstdCodec{}).Decode(bytes.NewReader(data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPNGDecodeRejectsOversized(t *testing.T) {
	data := pngWithSize(t, 1<<20, 1<<20)
	if _, err := (PNGCodec{}).Decode(bytes.NewReader(data)); err == nil {
		t.Error("expected error for oversized PNG")
	}
}

func TestLayerCacheLoadCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		data  func(t *testing.T) []byte
	}{
		{"zstd huge header", ZstdCodec{}, func(t *testing.T) []byte {
			return zstdRaster(t, `{"version":1,"width":1073741824,"height":1073741824}`, nil)
		}},
		{"zstd garbage", ZstdCodec{}, func(t *testing.T) []byte { return []byte("garbage") }},
		{"png huge header", PNGCodec{}, func(t *testing.T) []byte { return pngWithSize(t, 1<<30, 1<<30) }},
		{"png truncated", PNGCodec{}, func(t *testing.T) []byte { return pngWithSize(t, 1, 1)[:40] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLayerCache(t.TempDir(), tt.codec)
			if err := os.WriteFile(c.Path("meadow", "ground"), tt.data(t), 0644); err != nil {
				t.Fatal(err)
			}
			img, err := c.Load("meadow", "ground")
			if !errors.Is(err, ErrPersistence) {
				t.Errorf("expected ErrPersistence, got %v", err)
			}
			if img != nil {
				t.Error("expected no raster on failure")
			}
		})
	}
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name    string
		wantExt string
		wantErr bool
	}{
		{"", ".png", false},
		{"png", ".png", false},
		{"zstd", ".rgba.zst", false},
		{"gif", "", true},
	}
	for _, tt := range tests {
		codec, err := CodecByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("CodecByName(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("CodecByName(%q): %v", tt.name, err)
			continue
		}
		if codec.Ext() != tt.wantExt {
			t.Errorf("CodecByName(%q).Ext() = %s, want %s", tt.name, codec.Ext(), tt.wantExt)
		}
	}
}

func TestLayerCachePath(t *testing.T) {
	c := NewLayerCache("generated", nil)
	if got := c.Path("overworld", "ground"); got != filepath.Join("generated", "overworld_ground.png") {
		t.Errorf("unexpected path %s", got)
	}
	z := NewLayerCache("generated", ZstdCodec{})
	if got := z.Path("overworld", "trees"); got != filepath.Join("generated", "overworld_trees.rgba.zst") {
		t.Errorf("unexpected path %s", got)
	}
}

func TestLayerCacheStoreLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated")
	c := NewLayerCache(dir, nil)

	if c.Exists("meadow", "ground") {
		t.Fatal("expected cache miss before store")
	}

	src := checker(32, 16)
	path, size, err := c.Store("meadow", "ground", src)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if size <= 0 {
		t.Errorf("expected positive size, got %d", size)
	}
	if path != c.Path("meadow", "ground") {
		t.Errorf("Store path = %s, want %s", path, c.Path("meadow", "ground"))
	}
	if !c.Exists("meadow", "ground") {
		t.Fatal("expected cache hit after store")
	}

	got, err := c.Load("meadow", "ground")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got.Pix, src.Pix) {
		t.Error("loaded raster differs from stored raster")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 1", hits, misses)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestLayerCacheLoadMissing(t *testing.T) {
	c := NewLayerCache(t.TempDir(), nil)
	_, err := c.Load("nowhere", "ground")
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestLayerCacheStoreFailure(t *testing.T) {
	// A regular file where the directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	c := NewLayerCache(blocker, nil)
	_, _, err := c.Store("meadow", "ground", checker(4, 4))
	if !errors.Is(err, ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}

func TestLayerCacheRemove(t *testing.T) {
	c := NewLayerCache(t.TempDir(), nil)
	if err := c.Remove("meadow", "ground"); err != nil {
		t.Errorf("removing missing layer should succeed, got %v", err)
	}
	if _, _, err := c.Store("meadow", "ground", checker(4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("meadow", "ground"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if c.Exists("meadow", "ground") {
		t.Error("layer still present after Remove")
	}
}

func TestIndexRecordLookup(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "db", "index.db"))
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer idx.Close()

	if _, ok, err := idx.Lookup(ctx, "meadow", "ground"); err != nil || ok {
		t.Fatalf("expected no row, got ok=%v err=%v", ok, err)
	}

	run := NewRunID()
	entry := Entry{RunID: run, Map: "meadow", Role: "ground", Seed: 7, TilesX: 15, TilesY: 10, TileSize: 128, Path: "generated/meadow_ground.png", Bytes: 1024}
	if err := idx.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, ok, err := idx.Lookup(ctx, "meadow", "ground")
	if err != nil || !ok {
		t.Fatalf("Lookup: ok=%v err=%v", ok, err)
	}
	if got.RunID != run || got.Seed != 7 || got.TilesX != 15 || got.TileSize != 128 {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.GeneratedAt.IsZero() {
		t.Error("expected generated_at to be set")
	}

	// Upsert replaces the row
	entry.Seed = 8
	entry.RunID = ""
	if err := idx.Record(ctx, entry); err != nil {
		t.Fatalf("Record upsert: %v", err)
	}
	if err := idx.Record(ctx, Entry{Map: "meadow", Role: "trees", Seed: 8}); err != nil {
		t.Fatalf("Record trees: %v", err)
	}

	entries, err := idx.Entries(ctx, "meadow")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Role != "ground" || entries[0].Seed != 8 || entries[0].RunID == run {
		t.Errorf("ground entry not replaced: %+v", entries[0])
	}

	if err := idx.Forget(ctx, "meadow", "trees"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok, _ := idx.Lookup(ctx, "meadow", "trees"); ok {
		t.Error("trees entry still present after Forget")
	}
}

func TestOpenIndexEmptyPath(t *testing.T) {
	if _, err := OpenIndex(""); err == nil {
		t.Error("expected error for empty path")
	}
}
