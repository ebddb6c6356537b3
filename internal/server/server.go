// Package server exposes the avatar engine over HTTP for previews.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	flagavatar "github.com/menta2k/flag-avatar"
	"github.com/menta2k/flag-avatar/internal/config"
)

// Server is a stateless preview server
type Server struct {
	engine *flagavatar.Engine
	cfg    *config.Config
	logger *zap.Logger
}

// New creates a Server. cfg supplies the defaults for parameters a request
// leaves out.
func New(engine *flagavatar.Engine, cfg *config.Config, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, cfg: cfg, logger: logger}
}

// Router builds the gin engine with all routes
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(s.logger))
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = int64(s.cfg.Server.MaxUploadMB) << 20

	r.GET("/healthz", s.Healthz)

	api := r.Group("/api")
	{
		api.GET("/flags", s.ListFlags)
		api.GET("/limits", s.Limits)
		api.POST("/render", s.Render)
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("preview server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down preview server")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("took", time.Since(start)))
	}
}
