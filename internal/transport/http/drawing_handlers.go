package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/export"
	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/stroke"
	"github.com/okultahta/tahta-server/internal/whiteboard"
)

const maxExportSide = 4096

// DrawingHandlers serves the caller's drawing.
type DrawingHandlers struct {
	drawings store.DrawingStore
	sessions *whiteboard.StoreAdapter
	canvas   config.CanvasConfig
	log      *zerolog.Logger
}

// NewDrawingHandlers creates drawing handlers. Replaces go through sessions,
// which persists them and notifies subscribers.
func NewDrawingHandlers(drawings store.DrawingStore, sessions *whiteboard.StoreAdapter, canvas config.CanvasConfig, logger *zerolog.Logger) *DrawingHandlers {
	return &DrawingHandlers{
		drawings: drawings,
		sessions: sessions,
		canvas:   canvas,
		log:      logger,
	}
}

// DrawingResponse represents a drawing in API responses.
type DrawingResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Data      []stroke.Stroke `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReplaceDrawingRequest is the body of PUT /api/drawing.
type ReplaceDrawingRequest struct {
	Data []stroke.Stroke `json:"data"`
}

// Get returns the caller's drawing.
// GET /api/drawing
func (h *DrawingHandlers) Get(c *gin.Context) {
	d, ok := h.callerDrawing(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toDrawingResponse(d))
}

// Create returns the caller's drawing, creating an empty one if needed.
// POST /api/drawing
func (h *DrawingHandlers) Create(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	d, err := h.drawings.GetDrawingByUser(c.Request.Context(), uid)
	if err == nil {
		c.JSON(http.StatusOK, toDrawingResponse(d))
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to get drawing")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	d, err = h.drawings.CreateDrawing(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to create drawing")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", uid).Str("session_id", d.ID).Msg("drawing created")
	c.JSON(http.StatusCreated, toDrawingResponse(d))
}

// Replace overwrites the caller's stroke list and notifies subscribers.
// PUT /api/drawing
func (h *DrawingHandlers) Replace(c *gin.Context) {
	var req ReplaceDrawingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid replace request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	for i, s := range req.Data {
		if err := s.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("stroke %d: %v", i, err)})
			return
		}
	}
	if req.Data == nil {
		req.Data = []stroke.Stroke{}
	}

	d, ok := h.callerDrawing(c)
	if !ok {
		return
	}

	updated, err := h.sessions.ReplaceDrawing(c.Request.Context(), d.ID, req.Data)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "drawing not found"})
			return
		}
		h.log.Error().Err(err).Str("session_id", d.ID).Msg("failed to replace strokes")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Str("session_id", updated.ID).Int("strokes", len(updated.Strokes)).Msg("drawing replaced")
	c.JSON(http.StatusOK, toDrawingResponse(updated))
}

// ExportPNG renders the caller's drawing as a PNG image.
// GET /api/drawing/export.png?width=&height=
func (h *DrawingHandlers) ExportPNG(c *gin.Context) {
	h.export(c, "image/png", "drawing.png", func(buf *bytes.Buffer, d *store.Drawing, w, hgt int) error {
		return export.PNG(buf, d.Strokes, w, hgt)
	})
}

// ExportPDF renders the caller's drawing onto a PDF page.
// GET /api/drawing/export.pdf?width=&height=
func (h *DrawingHandlers) ExportPDF(c *gin.Context) {
	title := c.GetString(ContextKeyUsername)
	h.export(c, "application/pdf", "drawing.pdf", func(buf *bytes.Buffer, d *store.Drawing, w, hgt int) error {
		return export.PDF(buf, d.Strokes, w, hgt, title)
	})
}

func (h *DrawingHandlers) export(c *gin.Context, contentType, filename string, encode func(*bytes.Buffer, *store.Drawing, int, int) error) {
	width, ok := sizeParam(c, "width", h.canvas.Width)
	if !ok {
		return
	}
	height, ok := sizeParam(c, "height", h.canvas.Height)
	if !ok {
		return
	}

	d, ok := h.callerDrawing(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := encode(&buf, d, width, height); err != nil {
		h.log.Error().Err(err).Str("session_id", d.ID).Str("format", contentType).Msg("export failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "export failed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (h *DrawingHandlers) callerDrawing(c *gin.Context) (*store.Drawing, bool) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil, false
	}

	d, err := h.drawings.GetDrawingByUser(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "drawing not found"})
			return nil, false
		}
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to get drawing")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return nil, false
	}
	return d, true
}

func sizeParam(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxExportSide {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("%s must be between 1 and %d", name, maxExportSide)})
		return 0, false
	}
	return n, true
}

func toDrawingResponse(d *store.Drawing) DrawingResponse {
	strokes := d.Strokes
	if strokes == nil {
		strokes = []stroke.Stroke{}
	}
	return DrawingResponse{
		ID:        d.ID,
		UserID:    d.UserID,
		Data:      strokes,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
