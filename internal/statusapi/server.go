// Package statusapi serves the operator-facing status snapshot: per-engine
// health, open positions, and the global risk monitor's state. Grounded on
// internal/api/server.go's gin-engine-plus-CORS setup, trimmed from the
// teacher's 700-line multi-tenant router down to the two read-only routes
// this single-operator engine needs.
package statusapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tradecore/internal/logging"
	"tradecore/internal/orchestrator"
)

// Config controls where the status server listens.
type Config struct {
	Port           int
	Host           string
	ProductionMode bool
}

// Server is the minimal HTTP status endpoint.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        Config
	orch       *orchestrator.Orchestrator
}

// NewServer constructs a Server reporting on orch's supervised engines.
func NewServer(cfg Config, orch *orchestrator.Orchestrator) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	s := &Server{router: router, cfg: cfg, orch: orch}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/status", s.handleStatus)
}

// handleHealth is a liveness probe for the status server process itself,
// independent of any engine's health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

type engineStatusView struct {
	Name              string    `json:"name"`
	Status            string    `json:"status"`
	LastHeartbeat     time.Time `json:"last_heartbeat"`
	HeartbeatAgeSec   float64   `json:"heartbeat_age_seconds"`
	RestartCount      int       `json:"restart_count"`
	LastError         string    `json:"last_error,omitempty"`
	OpenPositionCount int       `json:"open_position_count"`
}

// handleStatus returns the per-engine status snapshot: status, last error,
// and heartbeat age, plus the aggregate position count and the global risk
// monitor's state.
func (s *Server) handleStatus(c *gin.Context) {
	now := time.Now()
	health := s.orch.Health()
	positions := s.orch.Positions()

	perEngineCount := make(map[string]int)
	for _, p := range positions {
		perEngineCount[p.Engine]++
	}

	engines := make([]engineStatusView, 0, len(health))
	for name, h := range health {
		engines = append(engines, engineStatusView{
			Name:              name,
			Status:            string(h.Status),
			LastHeartbeat:     h.LastHeartbeat,
			HeartbeatAgeSec:   now.Sub(h.LastHeartbeat).Seconds(),
			RestartCount:      h.RestartCount,
			LastError:         h.LastError,
			OpenPositionCount: perEngineCount[name],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"engines":        engines,
		"total_positions": len(positions),
		"risk":           s.orch.RiskSnapshot(),
	})
}

// Start runs the HTTP server, blocking until it exits.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logging.Component("statusapi").Info().Str("addr", addr).Msg("status server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
