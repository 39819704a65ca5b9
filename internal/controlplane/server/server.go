// Package server 提供控制面 HTTP API：会话启停、统计查询与运行时配置调整
package server

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gogale/internal/activitylog"
	"github.com/betbot/gogale/internal/engine"
)

var log = logrus.WithField("component", "controlplane")

// ActivityReader 活动日志查询端（可选）
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]activitylog.Event, error)
}

// Server 控制面服务
type Server struct {
	engine   *engine.Engine
	activity ActivityReader // 可为 nil
	httpSrv  *http.Server
}

// New 创建控制面服务
func New(eng *engine.Engine, activity ActivityReader) *Server {
	return &Server{engine: eng, activity: activity}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api/bot")
	api.POST("/start", s.handleStart)
	api.POST("/stop", s.handleStop)
	api.GET("/stats", s.handleStats)
	api.GET("/signal", s.handleSignal)
	api.GET("/config", s.handleConfigGet)
	api.PATCH("/config", s.handleConfigPatch)
	api.GET("/activity", s.handleActivity)

	return r
}

// Start 启动 HTTP 服务（非阻塞）
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("🌐 控制面监听 %s", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("控制面服务异常退出: %v", err)
		}
	}()
}

// Shutdown 优雅关闭 HTTP 服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStart(c *gin.Context) {
	if s.engine.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "引擎已在运行"})
		return
	}
	// 会话生命周期独立于单个 HTTP 请求
	if err := s.engine.Start(context.Background()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	if !s.engine.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "引擎未在运行"})
		return
	}
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.engine.GetStats()
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{
			"running":           false,
			"emergency_stopped": s.engine.IsEmergencyStopped(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running":            s.engine.IsRunning(),
		"emergency_stopped":  s.engine.IsEmergencyStopped(),
		"stats":              stats,
		"active_contract":    s.engine.ActiveContract(),
		"active_cycle":       s.engine.ActiveCycle(),
		"remaining_cooldown": s.engine.RemainingCooldown().String(),
	})
}

func (s *Server) handleSignal(c *gin.Context) {
	sig := s.engine.GetLastSignal()
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "尚无信号"})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) handleConfigGet(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetConfig())
}

func (s *Server) handleConfigPatch(c *gin.Context) {
	var patch engine.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体: " + err.Error()})
		return
	}
	cfg, err := s.engine.UpdateConfig(patch)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleActivity(c *gin.Context) {
	if s.activity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "活动日志未启用"})
		return
	}
	limit := 50
	events, err := s.activity.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
