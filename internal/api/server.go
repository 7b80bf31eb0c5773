// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/whale-scanner/internal/chains"
	"github.com/whale-scanner/internal/datasource"
	"github.com/whale-scanner/internal/insight"
	"github.com/whale-scanner/internal/logging"
	"github.com/whale-scanner/internal/monitor"
)

// Service interfaces for dependency injection and testing

// AggregatorInterface defines the interface for multi-chain whale aggregation
type AggregatorInterface interface {
	Aggregate(ctx context.Context, req monitor.AggregateRequest) (*monitor.AggregateResult, error)
}

// SummarizerInterface defines the interface for insight generation
type SummarizerInterface interface {
	Summarize(ctx context.Context, input insight.Input) (string, error)
}

// ClientFactoryInterface builds scoped data source clients for the
// peripheral address endpoints
type ClientFactoryInterface interface {
	NewClient() datasource.Client
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	aggregator AggregatorInterface
	summarizer SummarizerInterface
	clients    ClientFactoryInterface
	registry   *chains.Registry
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Rate limiting (per client IP)
	RequestsPerMinute int
	Burst             int

	// Request defaults and response bounds
	DefaultMinValueUSD float64
	DefaultTimeRange   string
	ResponsePageSize   int
	TopWhales          int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	aggregator AggregatorInterface,
	summarizer SummarizerInterface,
	clients ClientFactoryInterface,
	registry *chains.Registry,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		aggregator: aggregator,
		summarizer: summarizer,
		clients:    clients,
		registry:   registry,
		config:     config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Create rate limiter
	rateLimiter := NewRateLimiter(s.config.RequestsPerMinute, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Chain registry
	api.HandleFunc("/chains", s.handleGetChains).Methods("GET")

	// Whale detection endpoints
	api.HandleFunc("/whales", s.handleGetWhales).Methods("GET")
	api.HandleFunc("/whales/summary", s.handleGetWhalesSummary).Methods("GET")

	// Address metadata endpoint
	api.HandleFunc("/address/{address}", s.handleGetAddress).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "whale-scanner",
		"chains":  s.registry.Len(),
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
