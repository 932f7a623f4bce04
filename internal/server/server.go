package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shinji-kodama/secureqr/internal/barcode"
	"github.com/shinji-kodama/secureqr/internal/config"
	"github.com/shinji-kodama/secureqr/internal/metrics"
	"github.com/shinji-kodama/secureqr/internal/secureqr"
)

// limiterCleanupInterval is how often idle per-client limiters are dropped.
const limiterCleanupInterval = time.Minute

// Server is the secureqr HTTP API.
type Server struct {
	cfg     *config.Config
	log     *logrus.Logger
	decoder *secureqr.Decoder
	scanner *barcode.Scanner
	metrics *metrics.Metrics
	limiter *RateLimiter
	clients *clientResolver
	handler http.Handler
}

// New wires the router, middleware and handlers.
func New(cfg *config.Config, logger *logrus.Logger, decoder *secureqr.Decoder) *Server {
	s := &Server{
		cfg:     cfg,
		log:     logger,
		decoder: decoder,
		scanner: barcode.NewScanner(),
		metrics: metrics.New(),
	}
	// Validate has already rejected unparseable entries.
	trusted, _ := cfg.Server.TrustedProxyPrefixes()
	s.clients = &clientResolver{trusted: trusted}
	if cfg.RateLimit.Enabled() {
		s.limiter = NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
	}
	s.handler = s.routes()
	return s
}

// routes builds the handler chain.
//
// Outer middleware (recover, client address, request id, access log) wraps
// the router so it also sees 404/405 responses. Metrics run on every
// matched route; rate limiting and the body limit apply to the decoding
// endpoints only, so health checks and scrapes are never throttled.
func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	router.Use(s.metrics.Middleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.cfg.Metrics.Enabled {
		router.Handle(s.cfg.Metrics.Path, s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.NewRoute().Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.Use(bodyLimit(s.cfg.Server.MaxUploadBytes))
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/decode", s.handleDecode).Methods(http.MethodPost)

	var h http.Handler = router
	h = accessLog(s.log)(h)
	h = requestID(h)
	h = realIP(s.clients)(h)
	h = recoverPanics(s.log)(h)
	return h
}

// Handler returns the complete HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx
// is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
// within the configured shutdown timeout. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
	}

	if s.limiter != nil {
		go s.limiter.RunCleanup(ctx, limiterCleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.WithField("addr", ln.Addr().String()).Info("secureqr listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
