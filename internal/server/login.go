package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gatehouse/go-core/internal/cookie"
	"github.com/gatehouse/go-core/internal/oauth"
	"github.com/gatehouse/go-core/internal/session"
	"github.com/gatehouse/go-core/pkg/types"
)

// SessionRecorder counts session authentication outcomes. Implemented by
// the Prometheus metrics.
type SessionRecorder interface {
	RecordSessionHit()
	RecordSessionMiss()
}

// LoginConfig configures the sign-in surface.
type LoginConfig struct {
	Addr string

	// OAuthClientID and OAuthRedirectBase enable the external login
	// redirect endpoints when both are set.
	OAuthClientID     string
	OAuthRedirectBase string
}

// LoginServer serves sign-in, sign-out and whoami over the cookie
// session manager, plus external login redirects.
type LoginServer struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
	sessions   *session.Manager
	states     *oauth.StateCodec
	recorder   SessionRecorder
	config     LoginConfig
}

// NewLoginServer creates the sign-in surface. The state codec and
// recorder are optional.
func NewLoginServer(cfg LoginConfig, sessions *session.Manager, states *oauth.StateCodec, recorder SessionRecorder, logger *zap.Logger) *LoginServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &LoginServer{
		engine:   engine,
		logger:   logger,
		sessions: sessions,
		states:   states,
		recorder: recorder,
		config:   cfg,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	return s
}

func (s *LoginServer) setupRoutes() {
	s.engine.Use(s.requestLogger())

	auth := s.engine.Group("/v1/auth")
	auth.POST("/sign-in", s.signIn)
	auth.POST("/sign-out", s.signOut)
	auth.GET("/whoami", s.whoAmI)
	auth.GET("/external/:provider", s.externalRedirect)
}

// Start starts the HTTP server.
func (s *LoginServer) Start() error {
	s.logger.Info("Starting login server", zap.String("addr", s.config.Addr))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *LoginServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping login server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying handler for testing.
func (s *LoginServer) Handler() http.Handler {
	return s.engine
}

func (s *LoginServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}

// SignInRequest establishes a session for the given identity. Credential
// verification happens upstream; this surface only mints the session.
type SignInRequest struct {
	Subject string   `json:"subject" binding:"required"`
	Name    string   `json:"name"`
	Roles   []string `json:"roles"`
}

// signIn handles POST /v1/auth/sign-in.
func (s *LoginServer) signIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sign-in request"})
		return
	}

	claims := []types.Claim{{Type: types.ClaimTypeSubject, Value: req.Subject}}
	if req.Name != "" {
		claims = append(claims, types.Claim{Type: types.ClaimTypeName, Value: req.Name})
	}
	for _, role := range req.Roles {
		claims = append(claims, types.Claim{Type: types.ClaimTypeRole, Value: role})
	}
	principal := types.NewPrincipal(types.NewIdentity(session.SchemeCookie, claims...))

	cc := cookie.NewHTTPContext(c.Request, c.Writer.Header())
	ticket, err := s.sessions.SignIn(c.Request.Context(), cc, principal)
	if err != nil {
		s.logger.Error("Sign-in failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to establish session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": ticket.ID,
		"expires_at": ticket.ExpiresAt,
	})
}

// signOut handles POST /v1/auth/sign-out. Always succeeds for requests
// without a session.
func (s *LoginServer) signOut(c *gin.Context) {
	cc := cookie.NewHTTPContext(c.Request, c.Writer.Header())
	if err := s.sessions.SignOut(c.Request.Context(), cc); err != nil {
		s.logger.Error("Sign-out failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signed_out": true})
}

// whoAmI handles GET /v1/auth/whoami.
func (s *LoginServer) whoAmI(c *gin.Context) {
	cc := cookie.NewHTTPContext(c.Request, c.Writer.Header())
	ticket, err := s.sessions.Authenticate(c.Request.Context(), cc)
	if err != nil {
		if s.recorder != nil {
			s.recorder.RecordSessionMiss()
		}
		switch {
		case errors.Is(err, session.ErrNoSession):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
		case errors.Is(err, session.ErrTicketExpired),
			errors.Is(err, session.ErrInvalidTicket),
			errors.Is(err, session.ErrSessionNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "session not valid"})
		default:
			s.logger.Error("Session authentication failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		}
		return
	}

	if s.recorder != nil {
		s.recorder.RecordSessionHit()
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": ticket.ID,
		"scheme":     ticket.Scheme,
		"principal":  ticket.Principal,
		"expires_at": ticket.ExpiresAt,
	})
}

// externalRedirect handles GET /v1/auth/external/:provider by redirecting
// to the provider's authorization endpoint with a sealed state.
func (s *LoginServer) externalRedirect(c *gin.Context) {
	if s.states == nil || s.config.OAuthClientID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "external login not configured"})
		return
	}

	name := c.Param("provider")
	provider, ok := oauth.Providers[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	returnURL := c.Query("return_url")
	if returnURL == "" {
		returnURL = "/"
	}

	state, err := s.states.Issue(provider.Name, returnURL)
	if err != nil {
		s.logger.Error("Failed to issue oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue state"})
		return
	}

	target, err := provider.BuildAuthorizationURL(oauth.AuthorizationRequest{
		ClientID:    s.config.OAuthClientID,
		RedirectURI: s.config.OAuthRedirectBase + provider.CallbackPath,
		State:       state,
	})
	if err != nil {
		s.logger.Error("Failed to build authorization URL", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build redirect"})
		return
	}

	c.Redirect(http.StatusFound, target)
}
