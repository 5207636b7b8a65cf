// Package cache stores raw tile bytes keyed by their fetch URL.
package cache

import "context"

type TileCacheKey string

type TileCacheValue []byte

// TileCache is a byte repository. Get reports a miss with exists == false and
// a nil error.
type TileCache interface {
	Get(context.Context, TileCacheKey) (TileCacheValue, bool, error)
	Set(context.Context, TileCacheKey, TileCacheValue) error
}
