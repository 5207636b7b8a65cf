package animation

import (
	"errors"
	"fmt"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/fetcher"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/scheduler"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
)

// ErrorKind classifies the failures reported to the host.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNoFrames
	KindInvalidZoomLevel
	KindBadResponseCode
	KindNoImageData
	KindCancelled
	KindTooManyTiles
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoFrames:
		return "NoFrames"
	case KindInvalidZoomLevel:
		return "InvalidZoomLevel"
	case KindBadResponseCode:
		return "BadResponseCode"
	case KindNoImageData:
		return "NoImageData"
	case KindCancelled:
		return "Cancelled"
	case KindTooManyTiles:
		return "TooManyTiles"
	default:
		return "Unknown"
	}
}

var (
	ErrNoFrames         = scheduler.ErrNoFrames
	ErrInvalidZoomLevel = tile.ErrInvalidZoomLevel
	ErrTooManyTiles     = tile.ErrTooManyTiles
	ErrBadResponseCode  = fetcher.ErrBadResponseCode
	ErrNoImageData      = fetcher.ErrNoImageData
	ErrCancelled        = errors.New("loading cancelled")

	ErrAlreadyAnimating = errors.New("already animating")
	ErrInvalidFrame     = errors.New("frame index out of range")
)

// OverlayError is the error handed to completion callbacks and returned from
// engine operations.
type OverlayError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *OverlayError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *OverlayError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, looking through wrapped errors.
func KindOf(err error) ErrorKind {
	var oe *OverlayError
	if errors.As(err, &oe) {
		return oe.Kind
	}

	switch {
	case errors.Is(err, ErrNoFrames):
		return KindNoFrames
	case errors.Is(err, ErrInvalidZoomLevel):
		return KindInvalidZoomLevel
	case errors.Is(err, ErrBadResponseCode):
		return KindBadResponseCode
	case errors.Is(err, ErrNoImageData):
		return KindNoImageData
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrTooManyTiles):
		return KindTooManyTiles
	default:
		return KindUnknown
	}
}

func wrap(err error, url string) *OverlayError {
	oe := &OverlayError{
		Kind: KindOf(err),
		URL:  url,
		Err:  err,
	}
	var se *fetcher.StatusError
	if errors.As(err, &se) {
		oe.StatusCode = se.Code
	}
	return oe
}
