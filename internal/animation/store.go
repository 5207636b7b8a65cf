package animation

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/metrics"
)

const DefaultStaticTiles = 256

// TileStore holds the animation set and the static cache. The animation set
// is guarded by the engine lock. The static cache is safe for concurrent use
// and may drop entries at any time; a miss is a normal answer.
type TileStore struct {
	animation map[tile.Coordinate]*Tile
	order     []*Tile
	static    *lru.Cache[tile.Coordinate, Snapshot]
}

func NewTileStore(staticSize int) (*TileStore, error) {
	if staticSize <= 0 {
		staticSize = DefaultStaticTiles
	}
	static, err := lru.New[tile.Coordinate, Snapshot](staticSize)
	if err != nil {
		return nil, err
	}
	return &TileStore{
		animation: make(map[tile.Coordinate]*Tile),
		static:    static,
	}, nil
}

func (s *TileStore) ReplaceAnimation(tiles []*Tile) {
	s.animation = make(map[tile.Coordinate]*Tile, len(tiles))
	for _, t := range tiles {
		s.animation[t.coord] = t
	}
	s.order = tiles
}

func (s *TileStore) ClearAnimation() {
	s.ReplaceAnimation(nil)
}

func (s *TileStore) AnimationTile(c tile.Coordinate) (*Tile, bool) {
	t, ok := s.animation[c]
	return t, ok
}

// AnimationTiles returns the animation set in grid order. The slice must not
// be modified.
func (s *TileStore) AnimationTiles() []*Tile {
	return s.order
}

func (s *TileStore) AnimationLen() int {
	return len(s.order)
}

// HasAll reports whether every coordinate is in the animation set. An empty
// list is never covered.
func (s *TileStore) HasAll(coords []tile.Coordinate) bool {
	if len(coords) == 0 {
		return false
	}
	for _, c := range coords {
		if _, ok := s.animation[c]; !ok {
			return false
		}
	}
	return true
}

func (s *TileStore) StaticGet(c tile.Coordinate) (Snapshot, bool) {
	snap, ok := s.static.Get(c)
	if ok {
		metrics.StaticCacheHits.Inc()
	} else {
		metrics.StaticCacheMisses.Inc()
	}
	return snap, ok
}

func (s *TileStore) StaticPeek(c tile.Coordinate) (Snapshot, bool) {
	return s.static.Peek(c)
}

// StaticPut stores snap, possibly evicting the least recently used entry.
func (s *TileStore) StaticPut(snap Snapshot) {
	s.static.Add(snap.Coordinate, snap)
}

func (s *TileStore) ClearStatic() {
	s.static.Purge()
}

func (s *TileStore) StaticLen() int {
	return s.static.Len()
}
