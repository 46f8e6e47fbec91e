// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/api"
	"github.com/Corphon/StoryPlayerMCP/internal/config"
	"github.com/Corphon/StoryPlayerMCP/internal/di"
	"github.com/Corphon/StoryPlayerMCP/internal/services"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// httpServer 抽象HTTP服务器，便于测试时替换
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例，持有配置、路由和HTTP服务器
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   httpServer
	stopChan chan os.Signal
}

var (
	instance *App
	mu       sync.Mutex
)

// GetApp 获取应用单例
func GetApp() *App {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 按依赖顺序初始化整个应用：
// 配置 -> 日志 -> 服务 -> 路由
func Initialize() error {
	baseConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if err := createDirectories(baseConfig); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		return fmt.Errorf("初始化配置系统失败: %w", err)
	}

	app := GetApp()
	app.config = config.GetCurrentConfig()

	if err := initLogger(app.config.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router

	return nil
}

// InitServices 创建核心服务并注册到依赖注入容器。
// 注册顺序即依赖顺序：graph -> session -> stats -> export -> generation。
func InitServices() error {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	container := di.GetContainer()

	lockManager := services.NewLockManager()
	container.Register("locks", lockManager)

	graphService := services.NewGraphService(cfg.GraphsDir)
	container.Register("graph", graphService)

	sessionService, err := services.NewSessionService(
		filepath.Join(cfg.DataDir, "sessions"), graphService, lockManager)
	if err != nil {
		return fmt.Errorf("创建会话服务失败: %w", err)
	}
	container.Register("session", sessionService)

	statsService := services.NewStatsService(filepath.Join(cfg.DataDir, "stats"))
	sessionService.SetStatsService(statsService)
	container.Register("stats", statsService)

	exportService := services.NewExportService(graphService, sessionService, cfg.ExportDir)
	container.Register("export", exportService)

	generationService := services.NewGenerationService(graphService)
	container.Register("generation", generationService)

	container.Register("config", services.NewConfigService())

	return nil
}

// initLogger 初始化日志系统，日志文件按日期命名
func initLogger(logDir string) error {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("app_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// Run 启动HTTP服务器并阻塞直到收到终止信号
func Run() error {
	app := GetApp()
	if app.config == nil {
		return fmt.Errorf("应用未初始化")
	}

	if app.server == nil {
		app.server = &http.Server{
			Addr:         ":" + app.config.Port,
			Handler:      app.router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	utils.GetLogger().Info("服务器已启动", map[string]interface{}{
		"port": app.config.Port,
	})

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("启动服务器失败: %w", err)
	case sig := <-app.stopChan:
		utils.GetLogger().Info("收到终止信号，正在关闭服务器", map[string]interface{}{
			"signal": sig.String(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭服务器失败: %w", err)
	}

	app.cleanup()
	return nil
}

// cleanup 释放持有后台资源的服务
func (a *App) cleanup() {
	container := di.GetContainer()

	if statsService, ok := container.Get("stats").(*services.StatsService); ok && statsService != nil {
		statsService.Close()
	}
	if lockManager, ok := container.Get("locks").(*services.LockManager); ok && lockManager != nil {
		lockManager.Stop()
	}
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 返回全局依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 判断应用是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// createDirectories 创建运行所需的目录结构
func createDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.GraphsDir,
		filepath.Join(cfg.DataDir, "sessions"),
		filepath.Join(cfg.DataDir, "stats"),
		cfg.ExportDir,
		cfg.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	return nil
}
