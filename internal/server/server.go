// Package server exposes the decision API over HTTP and the cookie
// sign-in surface.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gatehouse/go-core/internal/engine"
	"github.com/gatehouse/go-core/internal/policy"
	"github.com/gatehouse/go-core/pkg/types"
)

// Config configures the decision API server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
}

// DefaultConfig returns the default API server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodySize:  1 * 1024 * 1024, // 1MB
	}
}

// Server is the decision and admin API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	service    *engine.Service
	registry   *policy.Registry
	metrics    http.Handler
	config     Config
}

// New creates the API server. The metrics handler is optional.
func New(cfg Config, service *engine.Service, registry *policy.Registry, metricsHandler http.Handler, logger *zap.Logger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("authorization service is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("policy registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		service:  service,
		registry: registry,
		metrics:  metricsHandler,
		config:   cfg,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.maxBodySizeMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/authorize", s.authorize).Methods("POST")
	api.HandleFunc("/policies", s.listPolicies).Methods("GET")
	api.HandleFunc("/policies/{name}", s.getPolicy).Methods("GET")
	api.HandleFunc("/health", s.healthCheck).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting decision API server", zap.String("addr", s.config.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping decision API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the underlying router for testing.
func (s *Server) Router() *mux.Router {
	return s.router
}

// AuthorizeRequest is the decision API request body.
type AuthorizeRequest struct {
	Policy    string                 `json:"policy"`
	Principal *types.Principal       `json:"principal"`
	Resource  map[string]interface{} `json:"resource,omitempty"`
}

// AuthorizeResponse is the decision API response body.
type AuthorizeResponse struct {
	Policy  string `json:"policy"`
	Allowed bool   `json:"allowed"`
}

// authorize handles POST /api/v1/authorize. Unknown policies and failed
// requirements are ordinary denies; only handler failures surface as 500s.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_JSON",
			"Invalid JSON payload", err.Error())
		return
	}
	if req.Policy == "" {
		s.respondError(w, http.StatusBadRequest, "MISSING_POLICY",
			"Field 'policy' is required", "")
		return
	}

	var resource interface{}
	if req.Resource != nil {
		resource = req.Resource
	}

	allowed, err := s.service.AuthorizeName(r.Context(), req.Principal, resource, req.Policy)
	if err != nil {
		s.logger.Error("Authorization evaluation failed",
			zap.String("policy", req.Policy),
			zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "EVALUATION_FAILED",
			"Authorization evaluation failed", err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, AuthorizeResponse{
		Policy:  req.Policy,
		Allowed: allowed,
	})
}

// listPolicies returns the registered policy names.
func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	names := s.registry.Names()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"policies": names,
		"count":    len(names),
	})
}

// getPolicy returns a summary of one policy.
func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p, ok := s.registry.Get(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, "POLICY_NOT_FOUND",
			fmt.Sprintf("Policy '%s' not found", name), "")
		return
	}

	kinds := make([]string, 0, len(p.Requirements()))
	for _, req := range p.Requirements() {
		kinds = append(kinds, req.Kind())
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":         p.Name(),
		"requirements": kinds,
		"schemes":      p.AuthenticationSchemes(),
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"policies": s.registry.Count(),
	})
}

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := apiResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
