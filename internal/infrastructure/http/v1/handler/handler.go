package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/animation"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
)

const (
	internalServerErrorText = "the server encountered an error and could not process your request"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Animator is the part of the animation engine the HTTP surface drives.
type Animator interface {
	FetchTiles(rect tile.Rect, zoom int, onProgress func(int), onComplete func(bool, error)) error
	StartAnimating() error
	PauseAnimating()
	CancelLoading()
	MoveToFrame(ctx context.Context, frame int, continuous bool) error
	CanAnimate(rect tile.Rect, zoom int) bool
	SetTemplateURLs(urls []string)
	TileAt(c tile.Coordinate) (animation.Snapshot, bool)
	StaticTile(ctx context.Context, c tile.Coordinate) (animation.Snapshot, error)
	CachedTiles(rect tile.Rect, zoom int) []animation.Snapshot
	CachedStaticTiles(rect tile.Rect, zoom int) []animation.Snapshot
	State() animation.State
	CurrentFrame() int
	NumberOfFrames() int
	LoadedFrames() int
}

type Handler struct {
	validate *validator.Validate
	animator Animator
	status   *StatusObserver
}

func NewHandler(v *validator.Validate, a Animator, s *StatusObserver) *Handler {
	return &Handler{
		validate: v,
		animator: a,
		status:   s,
	}
}

func (h *Handler) RespondWithInternalServerError(c *gin.Context) {
	h.RespondWithJSON(c, http.StatusInternalServerError, internalServerErrorText, nil)
}

func (h *Handler) RespondWithJSON(c *gin.Context, code int, message string, data any) {
	success := code < 400

	r := response{
		Success: success,
		Message: message,
		Data:    data,
	}

	c.JSON(code, r)
}

func (h *Handler) RespondWithError(c *gin.Context, code int, err error) {
	h.RespondWithJSON(c, code, err.Error(), nil)
}
