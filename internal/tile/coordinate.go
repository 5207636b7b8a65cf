// Package tile holds the tile-coordinate arithmetic of the overlay: coordinates,
// map-point rectangles, grid computation and per-frame URL templates.
package tile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Coordinate addresses one tile by column, row and zoom. It is a comparable
// value and is used directly as a map and cache key.
type Coordinate struct {
	X int
	Y int
	Z int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// MapTile converts the coordinate to its orb representation.
func (c Coordinate) MapTile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// GeoBound returns the lon/lat bound of the tile.
func (c Coordinate) GeoBound() orb.Bound {
	return c.MapTile().Bound()
}

// Ancestor returns the tile at zoom z that contains c. If z is not coarser
// than c.Z, c is returned unchanged.
func (c Coordinate) Ancestor(z int) Coordinate {
	if z >= c.Z || z < 0 {
		return c
	}

	t := c.MapTile()
	for int(t.Z) > z {
		t = t.Parent()
	}

	return Coordinate{X: int(t.X), Y: int(t.Y), Z: int(t.Z)}
}
