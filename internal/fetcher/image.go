package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/jaennil/guide_helper/backend/tileanim/pkg/metrics"
)

var (
	ErrBadResponseCode = errors.New("bad response code")
	ErrNoImageData     = errors.New("no image data")
)

// StatusError is returned for a non-success response. It matches
// ErrBadResponseCode with errors.Is.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrBadResponseCode, e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrBadResponseCode
}

// Image is a fetched tile body that decoded as a raster image.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode checks that data is a raster image in one of the registered formats.
func Decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, ErrNoImageData
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrNoImageData, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Image{}, ErrNoImageData
	}

	return Image{
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Load fetches url through f and decodes the body.
func Load(ctx context.Context, f Fetcher, url string) (Image, error) {
	start := time.Now()
	data, status, err := f.Fetch(ctx, url)
	metrics.TileFetchLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return Image{}, err
	}
	if !successful(status) {
		metrics.TileFetches.WithLabelValues("bad_status").Inc()
		return Image{}, &StatusError{URL: url, Code: status}
	}

	img, err := Decode(data)
	if err != nil {
		metrics.TileFetches.WithLabelValues("no_image").Inc()
		return Image{}, err
	}

	metrics.TileFetches.WithLabelValues("ok").Inc()
	return img, nil
}
