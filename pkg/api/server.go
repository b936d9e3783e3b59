// Package api exposes a local HTTP diagnostics endpoint for a running chat
// client: connection state, key fingerprint, and recent history. It is meant
// to bind to loopback only.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/termchat/termchat-client/pkg/client"
	"github.com/termchat/termchat-client/pkg/storage"
)

// Connection is the slice of the client connection the server reports on.
type Connection interface {
	State() client.ConnectionState
	Connected() bool
}

// HistoryReader reads stored messages for the history endpoint.
type HistoryReader interface {
	Recent(n int) ([]storage.Entry, error)
	Count() (int, error)
}

// Config holds diagnostics server configuration.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:7800".
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default diagnostics server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:7800",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server serves the diagnostics API for one connection.
type Server struct {
	conn        Connection
	history     HistoryReader
	fingerprint string
	serverURL   string
	startedAt   time.Time

	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	log        zerolog.Logger
}

// NewServer creates a diagnostics server. history may be nil when the client
// runs without persistence.
func NewServer(conn Connection, history HistoryReader, fingerprint, serverURL string, cfg Config, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	s := &Server{
		conn:        conn,
		history:     history,
		fingerprint: fingerprint,
		serverURL:   serverURL,
		startedAt:   time.Now(),
		router:      router,
		cfg:         cfg,
		log:         logger.With().Str("component", "diagnostics").Logger(),
	}

	router.Use(s.loggingMiddleware())
	router.Use(gin.Recovery())

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/history", s.handleHistory)
	}

	// Health check endpoint (outside versioning)
	s.router.GET("/health", s.handleHealth)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("diagnostics server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop shuts the server down outside of Start's context.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.Debug().
			Int("status", c.Writer.Status()).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
