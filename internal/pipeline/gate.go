package pipeline

import (
	"image"
	"log/slog"
	"sync"

	"github.com/corona10/goimagehash"
)

// DefaultMaxHashDistance treats frames whose 64-bit perceptual hashes differ
// in at most this many bits (about 95% similar) as unchanged.
const DefaultMaxHashDistance = 3

// similarGate remembers the hash of the last frame whose translations were
// published cleanly.
type similarGate struct {
	maxDistance int

	mu   sync.Mutex
	last *goimagehash.ImageHash
}

func newSimilarGate(maxDistance int) *similarGate {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxHashDistance
	}
	return &similarGate{maxDistance: maxDistance}
}

// Check hashes img and reports whether it looks like the reference frame.
// It never changes the reference; pass the hash to Commit once the frame's
// batch is published. A nil hash means img could not be hashed.
func (g *similarGate) Check(img image.Image) (*goimagehash.ImageHash, bool) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last == nil {
		return hash, false
	}
	dist, err := g.last.Distance(hash)
	if err != nil {
		return hash, false
	}
	if dist <= g.maxDistance {
		slog.Debug("skipping similar frame", "distance", dist)
		return hash, true
	}
	return hash, false
}

// Commit makes hash the reference frame.
func (g *similarGate) Commit(hash *goimagehash.ImageHash) {
	if hash == nil {
		return
	}
	g.mu.Lock()
	g.last = hash
	g.mu.Unlock()
}

// Reset forgets the reference frame so the next one is always analyzed.
func (g *similarGate) Reset() {
	g.mu.Lock()
	g.last = nil
	g.mu.Unlock()
}
