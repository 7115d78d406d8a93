package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dropforge/merkledrop-go/pkg/distributor"
	"github.com/dropforge/merkledrop-go/pkg/logger"
)

// Server exposes the distributor over HTTP.
//
// Endpoints:
//
//	POST /fund          - authority tops up custody (signed)
//	POST /claim         - recipient redeems an entitlement (signed, rate limited)
//	GET  /status        - campaign snapshot
//	GET  /claim/status  - per-recipient claim lookup (?recipient=0x...)
//	GET  /healthz       - liveness probe
//
// Callers never present credentials directly: each mutating request carries a
// secp256k1 signature over the operation's canonical digest and the server
// recovers the caller address from it.
type Server struct {
	dist       *distributor.Distributor
	logger     *zap.Logger
	limiter    *rate.Limiter
	httpServer *http.Server
}

// Config holds the server's runtime settings.
type Config struct {
	Port int

	// ClaimRateLimit caps /claim requests per second across all callers.
	// Zero disables limiting.
	ClaimRateLimit float64

	Logger *zap.Logger
}

// NewServer creates a new server instance over the given distributor.
func NewServer(cfg Config, dist *distributor.Distributor) *Server {
	log := cfg.Logger
	if log == nil {
		log, _ = logger.NewLogger(&logger.LoggerConfig{Debug: false})
	}

	s := &Server{
		dist:   dist,
		logger: log,
	}

	if cfg.ClaimRateLimit > 0 {
		// Burst of one second's worth of requests, minimum 1
		burst := int(cfg.ClaimRateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ClaimRateLimit), burst)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/fund", s.handleFund)
	mux.HandleFunc("/claim", s.handleClaim)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/claim/status", s.handleClaimStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
