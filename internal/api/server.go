package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"kis-trading-bot/config"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/scanner"
	"kis-trading-bot/internal/settings"
	"kis-trading-bot/internal/trader"
)

// TradeHistory reads back persisted trades for the API
type TradeHistory interface {
	RecentTrades(ctx context.Context, limit int) ([]trader.Trade, error)
}

// Server is the HTTP control surface: engine state, candidate and
// holding views, runtime toggles, and a websocket stream.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	hub        *WSHub

	engine *scanner.Engine
	book   *trader.Book
	clock  *market.Clock
	gates  settings.Store
	trades TradeHistory // may be nil when the database is disabled

	logger *logging.Logger
}

// NewServer wires the control API. trades may be nil.
func NewServer(cfg config.ServerConfig, engine *scanner.Engine, book *trader.Book, clock *market.Clock, gates settings.Store, trades TradeHistory) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		hub:    NewWSHub(),
		engine: engine,
		book:   book,
		clock:  clock,
		gates:  gates,
		trades: trades,
		logger: logging.WithComponent("api"),
	}
	s.routes()

	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/state", s.handleState)
		api.GET("/candidates", s.handleCandidates)
		api.GET("/holdings", s.handleHoldings)
		api.GET("/trades", s.handleTrades)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings/:key", s.handleSetSetting)
		api.POST("/scan/pause", s.handlePause)
		api.POST("/scan/resume", s.handleResume)
	}
	s.router.GET("/ws", s.handleWebSocket)
}

// Run serves until the context is cancelled, then drains connections.
// The websocket hub and the state broadcaster run alongside.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.broadcastState(ctx)

	// Mirror engine logs onto the websocket stream
	logging.AddSink(func(e logging.Entry) {
		s.hub.BroadcastJSON("log", e)
	})

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// requestLogger tags every request with a trace id and logs it
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, logger := logging.WithTraceContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logger.WithComponent("http").Info("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) stateSnapshot() gin.H {
	now := time.Now()
	ledger := s.book.Ledger()

	openMarkets := make([]string, 0, 4)
	for _, id := range s.clock.OpenMarkets(now) {
		openMarkets = append(openMarkets, string(id))
	}

	return gin.H{
		"paused":        s.engine.Paused(),
		"open_markets":  openMarkets,
		"total_cash":    ledger.TotalCashKRW,
		"used_budget":   ledger.Used,
		"committed":     ledger.Committed,
		"candidates":    len(s.book.Candidates()),
		"holdings":      len(s.book.Holdings()),
		"time":          now.UTC(),
	}
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.stateSnapshot())
}

func (s *Server) handleCandidates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"candidates": s.book.Candidates()})
}

func (s *Server) handleHoldings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"holdings": s.book.Holdings()})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.trades == nil {
		c.JSON(http.StatusOK, gin.H{"trades": []trader.Trade{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	trades, err := s.trades.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"settings": s.gates.All(c.Request.Context())})
}

type setSettingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetSetting(c *gin.Context) {
	key := c.Param("key")
	if _, known := settings.Defaults[key]; !known {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown setting %q", key)})
		return
	}

	var req setSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.gates.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info("setting changed", "key", key, "enabled", req.Enabled)
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": req.Enabled})
}

func (s *Server) handlePause(c *gin.Context) {
	s.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.engine.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// broadcastState pushes the engine snapshot to websocket clients on a
// fixed beat.
func (s *Server) broadcastState(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.BroadcastJSON("state", s.stateSnapshot())
		}
	}
}
