package animation

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/fetcher"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
)

// Tile is one cell of the animation set. The engine replaces the set
// wholesale; a Tile itself is only mutated in place by fetches and frame
// changes.
type Tile struct {
	coord tile.Coordinate
	rect  tile.Rect
	urls  []string

	mu         sync.Mutex
	frames     []*fetcher.Image
	image      *fetcher.Image
	frameIndex int
	failed     bool
}

func newTile(cell tile.Cell, templates []string) *Tile {
	return &Tile{
		coord:      cell.Coordinate,
		rect:       cell.Rect,
		urls:       tile.ResolveAll(templates, cell.Coordinate),
		frames:     make([]*fetcher.Image, len(templates)),
		frameIndex: -1,
	}
}

func (t *Tile) Coordinate() tile.Coordinate {
	return t.coord
}

func (t *Tile) URL(frame int) string {
	return t.urls[frame]
}

func (t *Tile) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

func (t *Tile) slot(frame int) *fetcher.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames[frame]
}

func (t *Tile) store(frame int, img fetcher.Image) {
	t.mu.Lock()
	t.frames[frame] = &img
	t.mu.Unlock()
}

func (t *Tile) setFailed(failed bool) {
	t.mu.Lock()
	t.failed = failed
	t.mu.Unlock()
}

// show makes the image fetched for frame the current one. A frame without
// an image leaves the tile blank rather than showing another time step.
func (t *Tile) show(frame int) {
	t.mu.Lock()
	t.image = t.frames[frame]
	t.frameIndex = frame
	t.mu.Unlock()
}

func (t *Tile) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Coordinate: t.coord,
		Rect:       t.rect,
		Image:      t.image,
		Frame:      t.frameIndex,
		Failed:     t.failed,
	}
}

// Snapshot is a read-only copy of a tile handed to the renderer. Image is nil
// when nothing is available for Frame.
type Snapshot struct {
	Coordinate tile.Coordinate
	Rect       tile.Rect
	Image      *fetcher.Image
	Frame      int
	Failed     bool
}
