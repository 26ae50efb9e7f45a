// Package server exposes the dream journal over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/at-ishikawa/dreamjournal/internal/config"
	"github.com/at-ishikawa/dreamjournal/internal/dream"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server holds the echo instance and the dependencies of its handlers.
type Server struct {
	cfg    config.ServerConfig
	echo   *echo.Echo
	logger zerolog.Logger
	db     Pinger
	dreams dream.Repository
}

// New builds the echo instance with middleware and routes registered.
func New(cfg config.ServerConfig, logger zerolog.Logger, db Pinger, dreams dream.Repository) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:    cfg,
		echo:   e,
		logger: logger,
		db:     db,
		dreams: dreams,
	}
	e.HTTPErrorHandler = s.errorHandler

	e.Use(
		RequestID(),
		ContextLogger(logger),
		RequestLogger(),
		middleware.Recover(),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowCredentials: true,
			AllowMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
			},
			ExposeHeaders: []string{RequestIDHeader},
		}),
	)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/status", s.status)

	dreams := s.echo.Group("/dreams")
	dreams.GET("", Handle(http.StatusOK, s.listDreams))
	dreams.GET("/by-emotion/:label", Handle(http.StatusOK, s.findDreamsByEmotion))
	dreams.GET("/:id", Handle(http.StatusOK, s.getDream))
	dreams.POST("", Handle(http.StatusCreated, s.createDream))
	dreams.PUT("/:id", Handle(http.StatusOK, s.updateDream))
	dreams.DELETE("/:id", Handle(http.StatusOK, s.deleteDream))
}

// Handler returns the root handler, accepting HTTP/2 without TLS.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.echo, &http2.Server{})
}

// HTTPServer builds an *http.Server listening on the configured port.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
	}
}

type statusResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) status(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		GetLogger(c).Warn().Err(err).Msg("database ping failed")
		return c.JSON(http.StatusServiceUnavailable, statusResponse{Status: "degraded", Database: "unreachable"})
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "ok", Database: "ok"})
}
