package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAddr     = ":3001"
	shutdownTimeout = 5 * time.Second
)

// RawCaller performs authenticated engine requests. *client.EngineClient
// satisfies it.
type RawCaller interface {
	HasCredential() bool
	Raw(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error)
}

// Server proxies browser requests to the trading engine so the API key stays
// on the server.
type Server struct {
	engine RawCaller
	addr   string
	router *gin.Engine
	log    zerolog.Logger
}

// New creates a proxy server for engine on addr (DefaultAddr when empty).
func New(engine RawCaller, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		engine: engine,
		addr:   addr,
		log:    log.With().Str("component", "proxy-server").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConf.AllowHeaders = []string{"Content-Type", "Authorization"}
	r.Use(cors.New(corsConf))

	r.Use(metricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	api.POST("/bridge", s.bridge)

	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error().Err(err).Msg("failed to stop http server")
		return err
	}
	s.log.Info().Msg("http server stopped gracefully")
	return nil
}
