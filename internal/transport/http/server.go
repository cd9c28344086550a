package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/whiteboard"
)

// NewServer builds the HTTP server with the REST API and the realtime endpoint.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	drawingHandlers := NewDrawingHandlers(st, whiteboard.NewStoreAdapter(st, hub), cfg.Canvas, logger)

	api := router.Group("/api")
	{
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		{
			protected.GET("/me", apiHandlers.Me)

			protected.GET("/drawing", drawingHandlers.Get)
			protected.POST("/drawing", drawingHandlers.Create)
			protected.PUT("/drawing", drawingHandlers.Replace)
			protected.GET("/drawing/export.png", drawingHandlers.ExportPNG)
			protected.GET("/drawing/export.pdf", drawingHandlers.ExportPDF)
		}
	}

	// The upgrade path bypasses gin so the hijacked connection owns its headers.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, authService, st, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
