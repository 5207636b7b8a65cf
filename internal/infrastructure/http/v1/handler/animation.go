package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/animation"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
)

func (h *Handler) Status(c *gin.Context) {
	lastLoad, lastError := h.status.Last()

	resp := dto.AnimationStatusResponse{
		State:          h.animator.State().String(),
		CurrentFrame:   h.animator.CurrentFrame(),
		NumberOfFrames: h.animator.NumberOfFrames(),
		LoadedFrames:   h.animator.LoadedFrames(),
		LastLoad:       lastLoad,
		LastError:      lastError,
	}

	h.RespondWithJSON(c, http.StatusOK, "animation status", resp)
}

func (h *Handler) Fetch(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	var req dto.ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "failed to decode request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, err)
		return
	}

	rect := tile.NewRect(req.MinX, req.MinY, req.MaxX, req.MaxY)
	err := h.animator.FetchTiles(rect, req.Zoom,
		func(frame int) {
			l.Debug("animation frame loaded", "frame", frame)
		},
		h.status.LoadFinished,
	)
	if err != nil {
		h.respondWithAnimationError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusAccepted, "loading started", nil)
}

func (h *Handler) Start(c *gin.Context) {
	if err := h.animator.StartAnimating(); err != nil {
		h.respondWithAnimationError(c, err)
		return
	}
	h.RespondWithJSON(c, http.StatusOK, "animation started", nil)
}

func (h *Handler) Pause(c *gin.Context) {
	h.animator.PauseAnimating()
	h.RespondWithJSON(c, http.StatusOK, "animation paused", nil)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.animator.CancelLoading()
	h.RespondWithJSON(c, http.StatusOK, "loading cancelled", nil)
}

func (h *Handler) Frame(c *gin.Context) {
	var req dto.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "failed to decode request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.animator.MoveToFrame(c.Request.Context(), *req.Index, req.Continuous); err != nil {
		h.respondWithAnimationError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "moved to frame", gin.H{"frame": *req.Index})
}

func (h *Handler) Templates(c *gin.Context) {
	var req dto.TemplatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "failed to decode request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, err)
		return
	}

	h.animator.SetTemplateURLs(req.URLs)
	h.RespondWithJSON(c, http.StatusOK, "templates replaced", gin.H{"frames": len(req.URLs)})
}

func (h *Handler) CanAnimate(c *gin.Context) {
	req, ok := h.bindViewportQuery(c)
	if !ok {
		return
	}

	rect := tile.NewRect(req.MinX, req.MinY, req.MaxX, req.MaxY)
	resp := dto.CanAnimateResponse{
		CanAnimate: h.animator.CanAnimate(rect, req.Zoom),
	}
	h.RespondWithJSON(c, http.StatusOK, "can animate", resp)
}

func (h *Handler) CachedTiles(c *gin.Context) {
	req, ok := h.bindViewportQuery(c)
	if !ok {
		return
	}

	rect := tile.NewRect(req.MinX, req.MinY, req.MaxX, req.MaxY)
	resp := dto.CachedTilesResponse{
		Animation: toCachedTiles(h.animator.CachedTiles(rect, req.Zoom)),
		Static:    toCachedTiles(h.animator.CachedStaticTiles(rect, req.Zoom)),
	}
	h.RespondWithJSON(c, http.StatusOK, "cached tiles", resp)
}

func (h *Handler) bindViewportQuery(c *gin.Context) (dto.ViewportRequest, bool) {
	var req dto.ViewportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid viewport query", nil)
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

func (h *Handler) respondWithAnimationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, animation.ErrInvalidFrame),
		animation.KindOf(err) == animation.KindInvalidZoomLevel,
		animation.KindOf(err) == animation.KindTooManyTiles:
		h.RespondWithError(c, http.StatusBadRequest, err)
	case errors.Is(err, animation.ErrAlreadyAnimating),
		animation.KindOf(err) == animation.KindNoFrames:
		h.RespondWithError(c, http.StatusConflict, err)
	default:
		h.RespondWithInternalServerError(c)
	}
}

func toCachedTiles(snaps []animation.Snapshot) []dto.CachedTile {
	tiles := make([]dto.CachedTile, 0, len(snaps))
	for _, s := range snaps {
		t := dto.CachedTile{
			Z:     s.Coordinate.Z,
			X:     s.Coordinate.X,
			Y:     s.Coordinate.Y,
			Frame: s.Frame,
		}
		if s.Image != nil {
			t.Format = s.Image.Format
		}
		tiles = append(tiles, t)
	}
	return tiles
}
