package terrain

import (
	"context"
	"sync"
)

// Bake is a layer generation running off the caller's goroutine.
// Its result is published exactly once, after both layers are complete.
type Bake struct {
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once

	layers *Layers
	err    error
}

// BakeAsync starts GenerateLayers on a background goroutine.
func (g *Generator) BakeAsync(ctx context.Context, id Identity, ground, decoration LayerSpec, tilesX, tilesY int) *Bake {
	ctx, cancel := context.WithCancel(ctx)
	b := &Bake{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer cancel()
		layers, err := g.GenerateLayers(ctx, id, ground, decoration, tilesX, tilesY)
		b.layers, b.err = layers, err
		close(b.done)
	}()
	return b
}

// Done is closed once the result is available.
func (b *Bake) Done() <-chan struct{} {
	return b.done
}

// Ready reports whether the result is available without blocking.
func (b *Bake) Ready() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the bake finishes and returns its result.
func (b *Bake) Wait() (*Layers, error) {
	<-b.done
	return b.layers, b.err
}

// Poll returns the published result, or ok=false if still running.
func (b *Bake) Poll() (layers *Layers, ok bool, err error) {
	if !b.Ready() {
		return nil, false, nil
	}
	return b.layers, true, b.err
}

// Cancel abandons any layer still being generated. Layers already
// persisted stay on disk.
func (b *Bake) Cancel() {
	b.once.Do(b.cancel)
}
