// cmd/server/main.go
package main

import (
	"fmt"
	"log"

	"github.com/Corphon/StoryPlayerMCP/internal/app"
	"github.com/Corphon/StoryPlayerMCP/internal/config"
	"github.com/Corphon/StoryPlayerMCP/internal/di"
)

func main() {
	log.Println("🚀 启动 StoryPlayerMCP 服务器...")

	// 1. 初始化整个应用（配置 -> 目录 -> 日志 -> 服务 -> 路由）
	if err := app.Initialize(); err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	cfg := config.GetCurrentConfig()
	log.Printf("✅ 配置加载完成，端口: %s", cfg.Port)
	log.Printf("✅ 服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 2. 健康检查
	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 3. 启动服务器并阻塞到收到终止信号
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	log.Printf("🔗 访问地址: http://localhost:%s/api/graphs", cfg.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器运行失败: %v", err)
	}

	log.Println("✅ 服务器优雅关闭完成")
}

// 健康检查函数
func performHealthCheck() error {
	container := di.GetContainer()

	// 检查关键服务是否已注册
	criticalServices := []string{"graph", "session", "export", "config"}

	for _, serviceName := range criticalServices {
		if service := container.Get(serviceName); service == nil {
			return fmt.Errorf("关键服务未注册: %s", serviceName)
		}
	}

	log.Println("✅ 服务健康检查通过")
	return nil
}
