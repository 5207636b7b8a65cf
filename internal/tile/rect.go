package tile

import (
	"math"

	"github.com/paulmach/orb"
)

// ReferenceZoom is the zoom level at which one map point equals one tile
// pixel.
const ReferenceZoom = 20

// Rect is an axis-aligned rectangle in map points: x grows east, y grows
// south, and the world spans tileSize*2^ReferenceZoom points on each axis.
type Rect = orb.Bound

func NewRect(minX, minY, maxX, maxY float64) Rect {
	return Rect{
		Min: orb.Point{minX, minY},
		Max: orb.Point{maxX, maxY},
	}
}

// WorldTileWidth returns the width in map points of one tile at zoom.
func WorldTileWidth(zoom, tileSize int) float64 {
	return float64(tileSize) * math.Exp2(float64(ReferenceZoom-zoom))
}

// MapRectForTile returns the map-point rectangle covered by c.
func MapRectForTile(c Coordinate, tileSize int) Rect {
	w := WorldTileWidth(c.Z, tileSize)
	return NewRect(float64(c.X)*w, float64(c.Y)*w, float64(c.X+1)*w, float64(c.Y+1)*w)
}

// TileForMapRect returns the tile containing the origin of r at zoom.
func TileForMapRect(r Rect, zoom, tileSize int) Coordinate {
	w := WorldTileWidth(zoom, tileSize)
	return Coordinate{
		X: int(math.Floor(r.Min[0] / w)),
		Y: int(math.Floor(r.Min[1] / w)),
		Z: zoom,
	}
}

// ZoomLevelForZoomScale converts a renderer zoom scale (screen points per map
// point) to the nearest tile zoom level, never below zero.
func ZoomLevelForZoomScale(scale float64) int {
	if scale <= 0 {
		return 0
	}
	z := ReferenceZoom + int(math.Floor(math.Log2(scale)+0.5))
	if z < 0 {
		return 0
	}
	return z
}

// Intersects reports whether a and b share interior area. Edges that only
// touch do not count. A degenerate b (a point or a line) intersects a when it
// lies inside a's half-open extent.
func Intersects(a, b Rect) bool {
	return overlaps(a.Min[0], a.Max[0], b.Min[0], b.Max[0]) &&
		overlaps(a.Min[1], a.Max[1], b.Min[1], b.Max[1])
}

func overlaps(aMin, aMax, bMin, bMax float64) bool {
	if bMin == bMax {
		return aMin <= bMin && bMin < aMax
	}
	return bMin < aMax && aMin < bMax
}
