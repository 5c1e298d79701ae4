// Package api exposes the operator HTTP surface: health, metrics, connection
// management, the OAuth connect flow, and on-demand tenant syncs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tradewatch/tradewatch/internal/config"
	apperrors "github.com/tradewatch/tradewatch/internal/errors"
	"github.com/tradewatch/tradewatch/internal/ingest"
	"github.com/tradewatch/tradewatch/internal/metrics"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/store"
	"github.com/tradewatch/tradewatch/internal/token"
)

// Server is the ops HTTP server.
type Server struct {
	router     *gin.Engine
	config     config.ServerConfig
	apiConfig  config.APIConfig
	store      store.Store
	runner     *ingest.Runner
	connector  *token.Connector
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	httpServer *http.Server
}

// Router returns the gin router for testing purposes.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer builds the ops server and wires its routes.
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, st store.Store, runner *ingest.Runner, connector *token.Connector, m *metrics.Metrics, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		config:    cfg,
		apiConfig: apiCfg,
		store:     st,
		runner:    runner,
		connector: connector,
		metrics:   m,
		logger:    logger,
	}
	s.router.HandleMethodNotAllowed = true

	s.router.Use(gin.Recovery())
	s.router.Use(bodyLimitMiddleware(1 << 20))
	s.router.Use(s.requestLog())

	s.setupRoutes()
	return s
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(
				c.FullPath(), c.Request.Method, strconv.Itoa(status),
			).Inc()
		}
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	}
}

func (s *Server) setupRoutes() {
	// Health and metrics are unauthenticated.
	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	// The provider redirects here; it cannot carry our API key.
	s.router.GET("/oauth/callback", s.handleOAuthCallback)

	auth := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)
	ops := s.router.Group("")
	ops.Use(auth)
	{
		ops.GET("/connections", s.handleListConnections)
		ops.GET("/connections/:tenant", s.handleGetConnection)
		ops.DELETE("/connections/:tenant", s.handleDeleteConnection)
		ops.POST("/connections/:tenant/connect", s.handleConnect)
		ops.POST("/connections/:tenant/sync", s.handleSync)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// connectionView is the redacted representation returned by the API. Token
// material never leaves the process.
type connectionView struct {
	TenantID     string            `json:"tenant_id"`
	Provider     string            `json:"provider"`
	AccountID    string            `json:"account_id,omitempty"`
	Scopes       string            `json:"scopes"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	TokenVersion int64             `json:"token_version"`
	NeedsReauth  bool              `json:"needs_reauth"`
	ReauthReason string            `json:"reauth_reason,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func viewOf(conn *models.OAuthConnection) connectionView {
	return connectionView{
		TenantID:     conn.TenantID,
		Provider:     string(conn.Provider),
		AccountID:    conn.AccountID,
		Scopes:       conn.Scopes,
		ExpiresAt:    conn.ExpiresAt,
		TokenVersion: conn.TokenVersion,
		NeedsReauth:  conn.NeedsReauth(),
		ReauthReason: conn.ReauthReason(),
		Metadata:     conn.Metadata,
		UpdatedAt:    conn.UpdatedAt,
	}
}

func (s *Server) handleListConnections(c *gin.Context) {
	conns, err := s.store.ListConnections()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "store_error", Message: err.Error(), Code: http.StatusInternalServerError})
		return
	}
	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, viewOf(conn))
	}
	c.JSON(http.StatusOK, gin.H{"connections": views, "count": len(views)})
}

func (s *Server) handleGetConnection(c *gin.Context) {
	tenant := c.Param("tenant")
	conn, ok := s.store.GetConnection(tenant, models.ProviderFieldServe)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "no connection for tenant " + tenant, Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, viewOf(conn))
}

func (s *Server) handleDeleteConnection(c *gin.Context) {
	tenant := c.Param("tenant")
	if !s.store.DeleteConnection(tenant, models.ProviderFieldServe) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "no connection for tenant " + tenant, Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": tenant})
}

func (s *Server) handleConnect(c *gin.Context) {
	tenant := c.Param("tenant")
	authURL, state := s.connector.AuthURL(tenant)
	c.JSON(http.StatusOK, gin.H{"auth_url": authURL, "state": state})
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "state and code are required", Code: http.StatusBadRequest})
		return
	}

	conn, err := s.connector.Exchange(c.Request.Context(), state, code)
	if err != nil {
		s.logger.Error().Err(err).Msg("oauth callback exchange failed")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "exchange_failed", Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	c.JSON(http.StatusOK, viewOf(conn))
}

func (s *Server) handleSync(c *gin.Context) {
	tenant := c.Param("tenant")

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "since must be RFC 3339", Code: http.StatusBadRequest})
			return
		}
		since = parsed
	}

	result, err := s.runner.SyncTenant(c.Request.Context(), tenant, since)
	if err != nil {
		var nc *apperrors.ErrNotConnected
		if errors.As(err, &nc) {
			c.JSON(http.StatusConflict, gin.H{"error": "not_connected", "reason": nc.Reason, "result": result})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "sync_failed", Message: err.Error(), Code: http.StatusBadGateway})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("ops server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- &apperrors.ErrServerStart{Addr: addr, Err: err}
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return &apperrors.ErrServerShutdown{Err: err}
	}
	s.logger.Info().Msg("ops server stopped")
	return nil
}
