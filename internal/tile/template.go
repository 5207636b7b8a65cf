package tile

import (
	"strconv"
	"strings"
)

// Resolve substitutes {x}, {y} and {z} in template with the coordinate, and
// {frame} with the frame index. It never touches the network and the same
// inputs always give the same URL.
func Resolve(template string, c Coordinate, frame int) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(c.X),
		"{y}", strconv.Itoa(c.Y),
		"{z}", strconv.Itoa(c.Z),
		"{frame}", strconv.Itoa(frame),
	)
	return r.Replace(template)
}

// ResolveAll returns one URL per frame template for c.
func ResolveAll(templates []string, c Coordinate) []string {
	urls := make([]string, len(templates))
	for i, t := range templates {
		urls[i] = Resolve(t, c, i)
	}
	return urls
}
