// Package server is the daemon's HTTP status surface.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/collector"
	"github.com/danmuck/dataplex/internal/observability"
	"github.com/danmuck/dataplex/internal/sinks"
)

const Version = "0.1.0"

// Source is what the status routes read from.
type Source interface {
	Status() collector.Status
	Latest() (sinks.Reading, bool)
}

type Server struct {
	station string
	addr    string
	source  Source
	started time.Time
	router  *gin.Engine
}

func New(station, addr string, source Source, corsOrigins []string) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(station))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{station: station, addr: addr, source: source, started: time.Now(), router: r}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.station,
			"version": Version,
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Status())
	})

	s.router.GET("/readings/latest", func(c *gin.Context) {
		r, ok := s.source.Latest()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no reading yet"})
			return
		}
		c.JSON(http.StatusOK, r)
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Serve listens on the configured address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("server.Serve listening")
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
