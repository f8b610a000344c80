package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perptrader/internal/engine"
	"perptrader/internal/events"
	"perptrader/internal/governor"
	"perptrader/internal/market"
	"perptrader/internal/monitor"
)

// Server is the presentation boundary: HTTP intents in, snapshots and
// websocket pushes out.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Engine    *engine.Engine
	Governor  *governor.Governor
	Data      *market.Data
	Metrics   *monitor.SystemMetrics
	Logs      *LogBuffer
	JWTSecret string
	Meta      SystemMeta

	started time.Time
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbols     []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, eng *engine.Engine, gov *governor.Governor, data *market.Data, metrics *monitor.SystemMetrics, logs *LogBuffer, jwtSecret string, meta SystemMeta) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Engine:    eng,
		Governor:  gov,
		Data:      data,
		Metrics:   metrics,
		Logs:      logs,
		JWTSecret: jwtSecret,
		Meta:      meta,
		started:   time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.POST("/session", s.createSession)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/positions", s.getPositions)
			protected.POST("/positions", s.openPosition)
			protected.DELETE("/positions/:id", s.closePosition)

			protected.GET("/history", s.getHistory)
			protected.GET("/account", s.getAccount)
			protected.GET("/signals", s.getSignals)
			protected.GET("/logs", s.getLogs)
			protected.GET("/book/:symbol", s.getBook)

			protected.GET("/settings", s.getSettings)
			protected.PUT("/settings", s.updateSettings)
			protected.POST("/scan", s.triggerScan)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
