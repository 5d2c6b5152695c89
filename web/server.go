// Package web exposes the node's control API, health and metrics endpoints
// and a websocket JPEG preview.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pi-camera-node/camera"
	"pi-camera-node/config"
)

// Server is the HTTP control surface for the camera pipeline.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server

	pipeline *camera.Pipeline
	hub      *PreviewHub
	handlers *Handlers
	registry *prometheus.Registry
}

// NewServer creates a web server controlling pipeline. The registry backs
// the /metrics endpoint; pass the one the pipeline metrics registered with.
func NewServer(cfg *config.Config, pipeline *camera.Pipeline, hub *PreviewHub, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		hub:      hub,
		registry: registry,
	}
	s.handlers = NewHandlers(cfg, pipeline, logger)
	return s
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.Int("port", s.config.Server.WebPort))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.BindIP, s.config.Server.WebPort),
		Handler:      s.addMiddleware(s.routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server error", zap.Error(err))
		}
	}()

	s.logger.Info("Web server started", zap.String("address", s.httpServer.Addr))
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/start", s.handlers.HandleStart)
	mux.HandleFunc("/api/stop", s.handlers.HandleStop)
	mux.HandleFunc("/api/status", s.handlers.HandleStatus)
	mux.HandleFunc("/api/config", s.handlers.HandleConfig)
	mux.HandleFunc("/health", s.handlers.HandleHealth)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWS)
	}

	return mux
}

// addMiddleware wraps the handler with CORS headers and request logging.
func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler.ServeHTTP(lw, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", lw.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("Stopping web server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", zap.Error(err))
		return err
	}

	s.logger.Info("Web server stopped")
	return nil
}
