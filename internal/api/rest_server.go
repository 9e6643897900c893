package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/tile-movement/internal/auth"
	"github.com/annel0/tile-movement/internal/logging"
	"github.com/annel0/tile-movement/internal/middleware"
	"github.com/annel0/tile-movement/internal/movement"
	"github.com/annel0/tile-movement/internal/world"
)

// World то, что админ API читает из планировщика движения
type World interface {
	Snapshots() []movement.Snapshot
	Entity(id world.EntityID) (*movement.Entity, bool)
	Len() int
}

// Sessions управление подключёнными персонажами
type Sessions interface {
	Kick(id world.EntityID) error
	OnlineCount() int
}

// Config конфигурация REST сервера
type Config struct {
	Addr       string // адрес для запуска сервера
	World      World
	Sessions   Sessions
	Issuer     *auth.TokenIssuer
	Admin      auth.AdminCredentials
	Registerer prometheus.Registerer // nil: метрики HTTP не регистрируются
	Gatherer   prometheus.Gatherer   // источник для /metrics
}

// RestServer админский REST API
type RestServer struct {
	router   *gin.Engine
	http     *http.Server
	world    World
	sessions Sessions
	issuer   *auth.TokenIssuer
	admin    auth.AdminCredentials
	metrics  *ServerMetrics
	logger   *logging.Logger
}

// NewRestServer создает REST API сервер
func NewRestServer(cfg Config) (*RestServer, error) {
	if cfg.World == nil || cfg.Sessions == nil {
		return nil, errors.New("api: world and sessions are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Issuer == nil {
		issuer, err := auth.NewTokenIssuer("", time.Hour)
		if err != nil {
			return nil, err
		}
		cfg.Issuer = issuer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // без стандартного logger
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("admin_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("admin_api", cfg.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, cfg.Gatherer)

	rs := &RestServer{
		router:   router,
		world:    cfg.World,
		sessions: cfg.Sessions,
		issuer:   cfg.Issuer,
		admin:    cfg.Admin,
		metrics:  NewServerMetrics(),
		logger:   logging.GetComponentLogger(logging.ComponentAPI),
	}
	rs.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	rs.setupRoutes()
	return rs, nil
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/entities", rs.handleEntities)
		protected.GET("/entities/:id", rs.handleEntity)

		admin := protected.Group("/")
		admin.Use(rs.adminMiddleware())
		admin.DELETE("/entities/:id", rs.handleKick)
	}
}

// LoginRequest запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// GenericResponse общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// WorldStats состояние мира для /api/stats
type WorldStats struct {
	Entities     int    `json:"entities"`
	Online       int    `json:"online"`
	QueuedMoves  int    `json:"queued_moves"`
	DroppedMoves uint64 `json:"dropped_moves"`
}

// StatsResponse тело /api/stats
type StatsResponse struct {
	Process ProcessStats `json:"process"`
	World   WorldStats   `json:"world"`
}

func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}
	if !rs.admin.Check(req.Username, req.Password) {
		rs.logger.Warn("Failed admin login for %q from %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}
	token, err := rs.issuer.Issue(req.Username, true)
	if err != nil {
		rs.logger.Error("Failed to issue token: %v", err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token, Message: "Вход выполнен"})
}

func (rs *RestServer) handleStats(c *gin.Context) {
	ws := WorldStats{Entities: rs.world.Len(), Online: rs.sessions.OnlineCount()}
	for _, s := range rs.world.Snapshots() {
		ws.QueuedMoves += s.Pending
		ws.DroppedMoves += s.Dropped
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data:    StatsResponse{Process: rs.metrics.Snapshot(), World: ws},
	})
}

// handleEntities список сущностей; ?map=N оставляет одну карту
func (rs *RestServer) handleEntities(c *gin.Context) {
	snaps := rs.world.Snapshots()
	if m := c.Query("map"); m != "" {
		mapID, err := strconv.ParseUint(m, 10, 16)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный номер карты"})
			return
		}
		filtered := snaps[:0]
		for _, s := range snaps {
			if s.Position.Map == uint16(mapID) {
				filtered = append(filtered, s)
			}
		}
		snaps = filtered
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "OK", Data: snaps})
}

func (rs *RestServer) handleEntity(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	e, found := rs.world.Entity(id)
	if !found {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Сущность не найдена"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "OK", Data: e.Snapshot()})
}

func (rs *RestServer) handleKick(c *gin.Context) {
	id, ok := entityID(c)
	if !ok {
		return
	}
	if err := rs.sessions.Kick(id); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Message: err.Error()})
		return
	}
	rs.logger.Info("Entity %d kicked by %s", id, c.GetString("username"))
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Отключён"})
}

func entityID(c *gin.Context) (world.EntityID, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный ID сущности"})
		return 0, false
	}
	return world.EntityID(v), true
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"time":     time.Now().Unix(),
		"entities": rs.world.Len(),
	})
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер; блокирует до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("🌐 Admin API listening on %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
