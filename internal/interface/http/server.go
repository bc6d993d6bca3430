// Package http implements the JSON API and the chat event stream used by the
// mobile app, plus the admin endpoint called by the matching process.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/companion-hub/companion-hub/internal/application/command"
	"github.com/companion-hub/companion-hub/internal/application/query"
	"github.com/companion-hub/companion-hub/internal/application/saga"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/interface/http/handlers"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout time.Duration

	// Zero disables the write deadline, which chat streams need.
	WriteTimeout time.Duration

	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int64

	AllowedOrigins []string

	// Requests per minute per client. Zero disables limiting.
	RateLimitPerMinute int

	// Interval between keep-alive comments on chat streams.
	StreamHeartbeat time.Duration

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       64 << 10,
		AllowedOrigins:     []string{"*"},
		RateLimitPerMinute: 120,
		StreamHeartbeat:    25 * time.Second,
		Version:            "v1",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// FeatureGate reports whether a feature is on for a user.
type FeatureGate interface {
	IsEnabled(featureName, userID string) bool
}

// RateLimiter counts requests per client identifier.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// Dependencies contains everything the handlers call.
type Dependencies struct {
	// Commands (CQRS write side)
	RegisterProfile   *command.RegisterProfileHandler
	SaveMentorProfile *command.SaveMentorProfileHandler
	AssignMentor      *command.AssignMentorHandler
	Companion         *command.CompanionHandler
	Rewards           *command.RewardHandler
	SendMessage       *command.SendMessageHandler
	Onboarding        *saga.OnboardingSaga

	// Queries (CQRS read side)
	GetProfile         *query.GetProfileHandler
	GetHome            *query.GetHomeHandler
	GetCompanion       *query.GetCompanionHandler
	GetShop            *query.GetShopHandler
	GetAssignedMentor  *query.GetAssignedMentorHandler
	GetMentorDashboard *query.GetMentorDashboardHandler
	GetHistory         *query.GetHistoryHandler
	WatchConversation  *query.WatchConversationHandler

	// Rules render companion cards in command responses.
	Rules companion.Rules

	Tokens   *handlers.TokenVerifier
	AdminKey *handlers.AdminKeyAuth

	// Nil uses an in-process limiter.
	Limiter RateLimiter

	// Nil enables every feature.
	Features FeatureGate

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger

	limiter RateLimiter
	local   *localRateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.config.StreamHeartbeat <= 0 {
		s.config.StreamHeartbeat = 25 * time.Second
	}
	if s.config.MaxBodyBytes <= 0 {
		s.config.MaxBodyBytes = 64 << 10
	}

	if config.RateLimitPerMinute > 0 {
		s.limiter = deps.Limiter
		if s.limiter == nil {
			s.local = newLocalRateLimiter(config.RateLimitPerMinute, time.Minute)
			s.limiter = s.local
		}
	}

	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:           s.config.Address(),
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /live", s.handleLive)

	// ─────────────────────────────────────────────────────────────────────────
	// Profile & Onboarding
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/me", s.user(s.handleRegister))
	s.router.Handle("GET /api/v1/me", s.user(s.handleGetProfile))
	s.router.Handle("GET /api/v1/me/home", s.user(s.handleGetHome))
	s.router.Handle("PUT /api/v1/me/focus", s.user(s.handleConfirmFocus))
	s.router.Handle("PUT /api/v1/me/companion", s.user(s.handleSelectCompanion))
	s.router.Handle("PUT /api/v1/me/mentor-profile", s.user(s.handleSaveMentorProfile))
	s.router.Handle("GET /api/v1/me/mentor", s.user(s.handleGetAssignedMentor))
	s.router.Handle("GET /api/v1/mentor/dashboard", s.user(s.handleMentorDashboard))

	// ─────────────────────────────────────────────────────────────────────────
	// Companion & Shop
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/me/companion", s.user(s.handleGetCompanion))
	s.router.Handle("POST /api/v1/me/companion/feed", s.user(s.handleFeed))
	s.router.Handle("POST /api/v1/me/companion/level-up", s.user(s.handleLevelUp))
	s.router.Handle("GET /api/v1/shop", s.user(s.feature(FeatureShop, s.handleGetShop)))
	s.router.Handle("POST /api/v1/shop/purchase", s.user(s.feature(FeatureShop, s.handlePurchase)))

	// ─────────────────────────────────────────────────────────────────────────
	// Chat
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("POST /api/v1/chats/{peerID}/messages", s.user(s.handleSendMessage))
	s.router.Handle("GET /api/v1/chats/{peerID}/messages", s.user(s.handleGetHistory))
	s.router.Handle("GET /api/v1/chats/{peerID}/stream", s.user(s.feature(FeatureChatStream, s.handleStream)))

	// ─────────────────────────────────────────────────────────────────────────
	// Wellness
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("GET /api/v1/resources", s.user(s.handleListResources))
	s.router.Handle("GET /api/v1/lessons/{id}", s.user(s.feature(FeatureLessons, s.handleGetLesson)))
	s.router.Handle("POST /api/v1/lessons/{id}/attempts", s.user(s.feature(FeatureLessons, s.handleStartLesson)))
	s.router.Handle("POST /api/v1/lessons/{id}/attempts/{attemptID}/complete", s.user(s.feature(FeatureLessons, s.handleCompleteLesson)))
	s.router.Handle("GET /api/v1/checkins/questions", s.user(s.feature(FeatureCheckins, s.handleCheckinForm)))
	s.router.Handle("POST /api/v1/checkins", s.user(s.feature(FeatureCheckins, s.handleSubmitCheckin)))

	// ─────────────────────────────────────────────────────────────────────────
	// Admin (matching process)
	// ─────────────────────────────────────────────────────────────────────────
	s.router.Handle("PUT /admin/v1/assignments", s.admin(s.handleAssignMentor))
}

// Feature flag names gated at the HTTP layer.
const (
	FeatureChatStream = "chat.stream"
	FeatureShop       = "economy.shop"
	FeatureLessons    = "wellness.lessons"
	FeatureCheckins   = "wellness.checkins"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router with all middleware.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	chain := []handlers.MiddlewareFunc{
		s.requestIDMiddleware,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		s.corsMiddleware,
		handlers.SecurityHeadersMiddleware,
		handlers.NoCacheMiddleware,
	}
	if s.limiter != nil {
		chain = append(chain, s.rateLimitMiddleware)
	}
	chain = append(chain, handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))
	return handlers.Chain(chain...)(handler)
}

// requestIDMiddleware adds a unique request ID and a request-scoped logger.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
			logger.String("ip", getClientIP(r)),
		}
		if rw.ctx != nil {
			if userID, ok := handlers.UserIDFromContext(rw.ctx); ok {
				fields = append(fields, logger.UserID(userID))
			}
		}

		log := logger.FromContext(r.Context())
		if rw.statusCode >= http.StatusInternalServerError {
			log.Warn("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(r.Context()).Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, o := range s.config.AllowedOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, Last-Event-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware limits per client IP. A failing limiter lets the
// request through.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/live" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}

		ok, err := s.limiter.Allow(r.Context(), getClientIP(r))
		if err != nil {
			logger.FromContext(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
			ok = true
		}
		if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// user requires a valid bearer token and puts its claims in the context.
func (s *Server) user(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Tokens == nil {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication is not configured")
			return
		}
		tok, err := handlers.BearerToken(r)
		if err != nil {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Missing bearer token")
			return
		}
		claims, err := s.deps.Tokens.Verify(tok)
		if err != nil {
			writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		ctx := handlers.WithClaims(r.Context(), claims)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(logger.UserID(claims.Subject)))
		if rw, ok := w.(*responseWriter); ok {
			rw.ctx = ctx
		}
		h(w, r.WithContext(ctx))
	})
}

// admin requires the matching process's API key.
func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AdminKey == nil || !s.deps.AdminKey.IsValid(r.Header.Get(s.deps.AdminKey.HeaderName())) {
			writeJSONError(w, r, http.StatusUnauthorized, "invalid_api_key", "Invalid admin key")
			return
		}
		h(w, r)
	})
}

// feature answers 404 when the feature is off for the caller.
func (s *Server) feature(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.enabled(r.Context(), name) {
			writeJSONError(w, r, http.StatusNotFound, "feature_disabled", "This feature is not available")
			return
		}
		h(w, r)
	}
}

func (s *Server) enabled(ctx context.Context, name string) bool {
	if s.deps.Features == nil {
		return true
	}
	userID, _ := handlers.UserIDFromContext(ctx)
	return s.deps.Features.IsEnabled(name, userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. Open chat streams end when
// their request contexts are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.local != nil {
		s.local.Stop()
	}

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: getRequestID(r.Context()),
	})
}

// writeJSONError writes an error JSON response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES AND FUNCTIONS
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// responseWriter captures the status code and, once authenticated, the
// request context so the access log can name the user.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	ctx         context.Context
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush on the real writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// getRequestID extracts the request ID from context.
func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
