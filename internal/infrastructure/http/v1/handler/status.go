package handler

import (
	"fmt"
	"sync"

	"github.com/jaennil/guide_helper/backend/tileanim/internal/animation"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
)

// StatusObserver logs engine notifications and keeps the latest outcome for
// the status endpoint.
type StatusObserver struct {
	logger logger.Logger

	mu        sync.Mutex
	lastLoad  string
	lastError string
}

func NewStatusObserver(l logger.Logger) *StatusObserver {
	return &StatusObserver{
		logger: l,
	}
}

var (
	_ animation.Observer     = (*StatusObserver)(nil)
	_ animation.TileObserver = (*StatusObserver)(nil)
)

func (s *StatusObserver) OnStateChanged(prev, cur animation.State) {
	s.logger.Info("animation state changed", "from", prev.String(), "to", cur.String())
}

func (s *StatusObserver) OnFrameAdvanced(frame int) {
	s.logger.Debug("animation frame advanced", "frame", frame)
}

func (s *StatusObserver) OnError(kind animation.ErrorKind, msg string) {
	s.mu.Lock()
	s.lastError = fmt.Sprintf("%s: %s", kind, msg)
	s.mu.Unlock()
}

func (s *StatusObserver) OnTileLoaded(c tile.Coordinate) {
	s.logger.Debug("static tile loaded", "z", c.Z, "x", c.X, "y", c.Y)
}

// LoadFinished records the outcome of a fetch batch.
func (s *StatusObserver) LoadFinished(ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok {
		s.lastLoad = "completed"
		return
	}
	s.lastLoad = "failed"
	if err != nil {
		s.lastLoad = fmt.Sprintf("failed: %v", err)
	}
}

func (s *StatusObserver) Last() (load, err string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoad, s.lastError
}
