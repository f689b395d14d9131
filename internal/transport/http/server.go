package httptransport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Server serves the router on a TCP address
type Server struct {
	engine     *gin.Engine
	listenAddr string
	logger     *zap.Logger

	mu  sync.Mutex
	srv *http.Server
}

// NewServer wraps a router built from deps
func NewServer(listenAddr string, deps Dependencies) *Server {
	gin.SetMode(gin.ReleaseMode)
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		engine:     NewRouter(deps),
		listenAddr: listenAddr,
		logger:     deps.Logger,
	}
}

// Engine returns the underlying router
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return fmt.Errorf("http server already started")
	}

	s.srv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		// classification batches run inside a request
		WriteTimeout: 10 * time.Minute,
	}
	srv := s.srv

	s.logger.Info("Starting HTTP server", zap.String("address", s.listenAddr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop drains in-flight requests and closes the listener
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
