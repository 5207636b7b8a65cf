package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/tileanim/internal/tile"
	"github.com/jaennil/guide_helper/backend/tileanim/pkg/logger"
)

// Tile serves the best image available for the coordinate in the current
// state. A miss answers 404 and, while stopped, starts a background fetch.
// With ?wait=true a stopped overlay fetches the tile before answering.
func (h *Handler) Tile(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	strX := c.Param("x")
	strY := c.Param("y")
	strZ := c.Param("z")

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "x should be integer", nil)
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "y should be integer", nil)
		return
	}

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "z should be integer", nil)
		return
	}

	if z < 0 || z > tile.ReferenceZoom || x < 0 || y < 0 || x >= 1<<z || y >= 1<<z {
		h.RespondWithJSON(c, http.StatusBadRequest, "tile outside the world", nil)
		return
	}

	coord := tile.Coordinate{X: x, Y: y, Z: z}

	snap, ok := h.animator.TileAt(coord)
	if !ok && c.Query("wait") == "true" && !h.animator.State().UsesAnimationSet() {
		snap, err = h.animator.StaticTile(c.Request.Context(), coord)
		ok = err == nil && snap.Image != nil
		if err != nil {
			l.Warn("failed to fetch static tile", "tile", coord.String(), "error", err)
		}
	}

	if !ok {
		h.RespondWithJSON(c, http.StatusNotFound, "tile not loaded", nil)
		return
	}

	c.Header("X-Tile-Frame", strconv.Itoa(snap.Frame))
	c.Header("X-Tile-Coordinate", snap.Coordinate.String())
	c.Data(http.StatusOK, "image/"+snap.Image.Format, snap.Image.Data)
}
