// internal/services/generation_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/config"
	"github.com/Corphon/StoryPlayerMCP/internal/llm"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// GenerationService 调用剧本生成提供者产出新的剧本图
// 提供者返回的原始文本可能带代码块标记或被截断，
// 统一经过GraphService的导入路径做修复、解析和校验。
type GenerationService struct {
	GraphService *GraphService
	provider     llm.Provider
	logger       *utils.Logger
}

// NewGenerationService 创建生成服务
// 按配置解析提供者，未配置或解析失败时生成功能不可用。
func NewGenerationService(graphService *GraphService) *GenerationService {
	service := &GenerationService{
		GraphService: graphService,
		logger:       utils.ForComponent("generation_service"),
	}

	cfg := config.GetCurrentConfig()
	if cfg.GeneratorProvider != "" {
		provider, err := llm.DefaultRegistry.GetProvider(cfg.GeneratorProvider, cfg.GeneratorConfig)
		if err != nil {
			service.logger.Warn("generator provider unavailable", map[string]interface{}{
				"provider": cfg.GeneratorProvider,
				"error":    err.Error(),
			})
		} else {
			service.provider = provider
		}
	}

	return service
}

// IsReady 生成功能是否可用
func (s *GenerationService) IsReady() bool {
	return s.provider != nil
}

// SetProvider 替换当前提供者（设置更新时调用）
func (s *GenerationService) SetProvider(provider llm.Provider) {
	s.provider = provider
}

// GenerateGraph 生成一个新的剧本图并入库
// 返回入库后的图和导入过程产生的修复警告。
func (s *GenerationService) GenerateGraph(ctx context.Context, req llm.ScriptRequest) (*models.StoryGraph, []string, error) {
	if s.provider == nil {
		return nil, nil, fmt.Errorf("剧本生成提供者未配置")
	}

	started := time.Now()
	resp, err := s.provider.GenerateScript(ctx, req)
	if err != nil {
		utils.NewPlayMetrics().RecordError("generation_failed", "generation_service")
		return nil, nil, fmt.Errorf("生成剧本失败: %w", err)
	}
	utils.NewPlayMetrics().RecordGenerationRequest(resp.ProviderName, resp.ModelName, resp.TokensUsed, time.Since(started))

	graph, warnings, err := s.GraphService.ImportGraph([]byte(resp.RawText))
	if err != nil {
		s.logger.Error("generated script rejected", map[string]interface{}{
			"provider": resp.ProviderName,
			"error":    err.Error(),
		})
		return nil, warnings, err
	}

	s.logger.Info("graph generated", map[string]interface{}{
		"graph_id":    graph.ID,
		"provider":    resp.ProviderName,
		"scene_count": len(graph.Scenes),
		"warnings":    len(warnings),
		"elapsed_ms":  time.Since(started).Milliseconds(),
	})

	return graph, warnings, nil
}
