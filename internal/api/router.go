// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/config"
	"github.com/Corphon/StoryPlayerMCP/internal/di"
	"github.com/Corphon/StoryPlayerMCP/internal/services"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	graphService, ok := container.Get("graph").(*services.GraphService)
	if !ok {
		return nil, fmt.Errorf("剧本图服务未正确初始化")
	}

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	generationService, ok := container.Get("generation").(*services.GenerationService)
	if !ok {
		return nil, fmt.Errorf("生成服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	// 创建API处理器 - 只传递从容器获取的服务
	handler := NewHandler(
		graphService,
		sessionService,
		exportService,
		generationService,
		configService,
		statsService,
	)

	// 创建路由
	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// 启用CORS和指标采集
	r.Use(corsMiddleware())
	r.Use(metricsMiddleware())

	// WebSocket 支持
	r.GET("/ws/session/:id", handler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		// ===============================
		// 剧本图相关路由
		// ===============================
		graphsGroup := api.Group("/graphs")
		{
			graphsGroup.GET("", handler.GetGraphs)
			graphsGroup.POST("", handler.ImportGraph)
			graphsGroup.POST("/generate", GenerationRateLimit(), handler.GenerateGraph)
			graphsGroup.GET("/:id", handler.GetGraph)
			graphsGroup.DELETE("/:id", handler.DeleteGraph)
			graphsGroup.GET("/:id/export", handler.ExportGraph)
		}

		// ===============================
		// 会话相关路由
		// ===============================
		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.GET("", handler.ListSessions)
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.POST("/resume", handler.ResumeSession)
			sessionsGroup.GET("/:id", handler.GetSession)
			sessionsGroup.POST("/:id/choice", SubmitRateLimit(), handler.SubmitChoice)
			sessionsGroup.POST("/:id/back", handler.GoBackSession)
			sessionsGroup.GET("/:id/snapshot", handler.SnapshotSession)
			sessionsGroup.GET("/:id/export", handler.ExportSession)
			sessionsGroup.DELETE("/:id", handler.DeleteSession)
		}

		// ===============================
		// 设置相关路由
		// ===============================
		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("", handler.GetSettings)
			settingsGroup.POST("", handler.SaveSettings)
		}

		// ===============================
		// 统计与健康检查
		// ===============================
		api.GET("/stats", handler.GetStats)
		api.GET("/metrics", handler.GetMetrics)

		configGroup := api.Group("/config")
		{
			configGroup.GET("/health", handler.GetConfigHealth)
		}

		// WebSocket 管理路由
		wsGroup := api.Group("/ws")
		{
			wsGroup.GET("/status", handler.GetWebSocketStatus)
			wsGroup.POST("/cleanup", handler.CleanupWebSocketConnections)
		}
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// metricsMiddleware 记录每个请求的耗时和状态码
func metricsMiddleware() gin.HandlerFunc {
	playMetrics := utils.NewPlayMetrics()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		playMetrics.RecordAPIRequest(endpoint, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
