package tile

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidZoomLevel = errors.New("invalid zoom level")
	ErrTooManyTiles     = errors.New("viewport covers too many tiles")
)

// Cell is one tile of a computed grid together with its map-point rectangle.
type Cell struct {
	Coordinate Coordinate
	Rect       Rect
}

// Grid computes the tiles covering a viewport. Zoom requests are clamped into
// [MinZoom, MaxZoom]; deeper requests are served at MaxZoom and scaled up by
// the renderer. A positive MaxTiles caps the size of one grid.
type Grid struct {
	MinZoom  int
	MaxZoom  int
	TileSize int
	MaxTiles int
}

// ClampZoom returns the zoom level tiles are fetched at for a requested zoom.
func (g Grid) ClampZoom(zoom int) (int, error) {
	if zoom < 0 || zoom > ReferenceZoom {
		return 0, fmt.Errorf("%w: %d outside [0, %d]", ErrInvalidZoomLevel, zoom, ReferenceZoom)
	}
	if g.MinZoom > g.MaxZoom {
		return 0, fmt.Errorf("%w: min zoom %d above max zoom %d", ErrInvalidZoomLevel, g.MinZoom, g.MaxZoom)
	}
	if zoom > g.MaxZoom {
		return g.MaxZoom, nil
	}
	if zoom < g.MinZoom {
		return g.MinZoom, nil
	}
	return zoom, nil
}

// Compute returns the cells whose rectangles intersect rect at the clamped
// zoom, ordered row by row. Indices are limited to the tiles that exist at
// that zoom.
func (g Grid) Compute(rect Rect, zoom int) ([]Cell, error) {
	z, err := g.ClampZoom(zoom)
	if err != nil {
		return nil, err
	}
	if g.TileSize <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", g.TileSize)
	}

	w := WorldTileWidth(z, g.TileSize)
	last := int(math.Exp2(float64(z))) - 1

	minX, maxX := span(rect.Min[0], rect.Max[0], w, last)
	minY, maxY := span(rect.Min[1], rect.Max[1], w, last)
	if minX > maxX || minY > maxY {
		return []Cell{}, nil
	}

	count := (maxX - minX + 1) * (maxY - minY + 1)
	if g.MaxTiles > 0 && count > g.MaxTiles {
		return nil, fmt.Errorf("%w: %d tiles at zoom %d, limit %d", ErrTooManyTiles, count, z, g.MaxTiles)
	}

	cells := make([]Cell, 0, count)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			c := Coordinate{X: x, Y: y, Z: z}
			cells = append(cells, Cell{Coordinate: c, Rect: MapRectForTile(c, g.TileSize)})
		}
	}

	return cells, nil
}

// Coordinates is Compute without the rectangles.
func (g Grid) Coordinates(rect Rect, zoom int) ([]Coordinate, error) {
	cells, err := g.Compute(rect, zoom)
	if err != nil {
		return nil, err
	}
	coords := make([]Coordinate, len(cells))
	for i, c := range cells {
		coords[i] = c.Coordinate
	}
	return coords, nil
}

// span returns the first and last tile index on one axis whose extent
// overlaps [lo, hi]. Only the end indices can miss, so they are trimmed.
func span(lo, hi, w float64, last int) (int, int) {
	first := clampIndex(int(math.Floor(lo/w)), last)
	end := clampIndex(int(math.Ceil(hi/w)), last)
	for first <= end && !overlaps(float64(first)*w, float64(first+1)*w, lo, hi) {
		first++
	}
	for end >= first && !overlaps(float64(end)*w, float64(end+1)*w, lo, hi) {
		end--
	}
	return first, end
}

func clampIndex(i, last int) int {
	if i < 0 {
		return 0
	}
	if i > last {
		return last
	}
	return i
}
