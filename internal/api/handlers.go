// internal/api/handlers.go
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/config"
	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/llm"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/services"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	// 核心服务
	GraphService      *services.GraphService      // 剧本图服务
	SessionService    *services.SessionService    // 会话服务
	ExportService     *services.ExportService     // 导出服务
	GenerationService *services.GenerationService // 剧本生成服务
	ConfigService     *services.ConfigService     // 配置服务
	StatsService      *services.StatsService      // 统计服务
	WebSocketHandler  *WebSocketHandler           // WebSocket 处理器
	Response          *ResponseHelper             // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	graphService *services.GraphService,
	sessionService *services.SessionService,
	exportService *services.ExportService,
	generationService *services.GenerationService,
	configService *services.ConfigService,
	statsService *services.StatsService,
) *Handler {
	return &Handler{
		GraphService:      graphService,
		SessionService:    sessionService,
		ExportService:     exportService,
		GenerationService: generationService,
		ConfigService:     configService,
		StatsService:      statsService,
		WebSocketHandler:  NewWebSocketHandler(),
		Response:          NewResponseHelper(),
	}
}

// CreateSessionRequest 创建会话的请求结构
type CreateSessionRequest struct {
	GraphID      string `json:"graph_id"`       // 图库中的剧本图ID
	StartSceneID string `json:"start_scene_id"` // 可选，覆盖默认起始场景
}

// SubmitChoiceRequest 提交选择的请求结构
type SubmitChoiceRequest struct {
	ChoiceID string `json:"choice_id"` // 当前场景内的选择ID
}

// GenerateGraphRequest 生成剧本图的请求结构
type GenerateGraphRequest struct {
	Theme      string `json:"theme"`       // 剧本主题
	Prompt     string `json:"prompt"`      // 附加提示
	SceneCount int    `json:"scene_count"` // 期望场景数量
}

// SaveSettingsRequest 保存设置的请求结构
type SaveSettingsRequest struct {
	GeneratorProvider string            `json:"generator_provider"`
	GeneratorConfig   map[string]string `json:"generator_config"`
	DebugMode         *bool             `json:"debug_mode,omitempty"`
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// PaginationMeta 分页元数据
type PaginationMeta struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// PaginatedResponse 带分页的响应
type PaginatedResponse struct {
	*APIResponse
	Meta *PaginationMeta `json:"meta,omitempty"`
}

// ------------------------------------------------
// respondDomainError 把内部错误映射为HTTP响应
func (h *Handler) respondDomainError(c *gin.Context, err error) {
	switch {
	case apperrors.IsGraphParseError(err):
		h.Response.UnprocessableEntity(c, ErrorGraphParseFailed, "剧本文本无法解析", err.Error())
	case apperrors.IsDanglingReferenceError(err):
		h.Response.UnprocessableEntity(c, ErrorDanglingReference, "剧本图引用了不存在的场景", err.Error())
	case apperrors.IsNotFoundError(err):
		h.Response.Error(c, http.StatusNotFound, ErrorNotFound, err.Error())
	case apperrors.IsConflictError(err):
		h.Response.Conflict(c, err.Error())
	case apperrors.IsValidationError(err):
		h.Response.BadRequest(c, err.Error())
	default:
		h.Response.InternalError(c, "内部错误", err.Error())
	}
}

// ========================================
// 剧本图处理器
// ========================================

// GetGraphs 获取图库中所有剧本图的摘要
func (h *Handler) GetGraphs(c *gin.Context) {
	summaries, err := h.GraphService.ListGraphs()
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, summaries)
}

// GetGraph 获取单个剧本图
func (h *Handler) GetGraph(c *gin.Context) {
	graphID := c.Param("id")

	graph, err := h.GraphService.LoadGraph(graphID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, graph)
}

// ImportGraph 导入剧本文本
// 请求体为原始剧本文本，可能带代码块标记或被截断，导入路径会尽力修复。
func (h *Handler) ImportGraph(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Response.BadRequest(c, "读取请求体失败", err.Error())
		return
	}
	if len(raw) == 0 {
		h.Response.BadRequest(c, "剧本文本不能为空")
		return
	}

	graph, warnings, err := h.GraphService.ImportGraph(raw)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Created(c, gin.H{
		"graph":    graph,
		"warnings": warnings,
	}, "剧本图导入成功")
}

// DeleteGraph 删除剧本图
func (h *Handler) DeleteGraph(c *gin.Context) {
	graphID := c.Param("id")

	if err := h.GraphService.DeleteGraph(graphID); err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"graph_id": graphID}, "剧本图已删除")
}

// ExportGraph 导出剧本图
func (h *Handler) ExportGraph(c *gin.Context) {
	graphID := c.Param("id")
	format := c.DefaultQuery("format", "json")

	if h.ExportService == nil {
		h.Response.InternalError(c, "导出服务未初始化")
		return
	}

	result, err := h.ExportService.ExportGraph(graphID, format)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "剧本图", err.Error())
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed, "导出剧本图失败", err.Error())
		return
	}

	h.Response.ExportResponse(c, result, format)
}

// GenerateGraph 调用生成提供者产出新的剧本图
func (h *Handler) GenerateGraph(c *gin.Context) {
	var req GenerateGraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if h.GenerationService == nil || !h.GenerationService.IsReady() {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorGeneratorUnavailable,
			"剧本生成提供者未配置", "请先在设置中配置生成提供者")
		return
	}

	graph, warnings, err := h.GenerationService.GenerateGraph(c.Request.Context(), llm.ScriptRequest{
		Theme:      req.Theme,
		Prompt:     req.Prompt,
		SceneCount: req.SceneCount,
	})
	if err != nil {
		if apperrors.IsGraphParseError(err) || apperrors.IsDanglingReferenceError(err) {
			h.respondDomainError(c, err)
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorGenerationFailed, "生成剧本失败", err.Error())
		return
	}

	h.Response.Created(c, gin.H{
		"graph":    graph,
		"warnings": warnings,
	}, "剧本图生成成功")
}

// ========================================
// 会话处理器
// ========================================

// ListSessions 列出所有已持久化的会话
func (h *Handler) ListSessions(c *gin.Context) {
	ids, err := h.SessionService.ListSessions()
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"session_ids": ids})
}

// CreateSession 开启新的播放会话
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if req.GraphID == "" {
		h.Response.BadRequest(c, "缺少剧本图ID")
		return
	}

	view, err := h.SessionService.StartSession(req.GraphID, req.StartSceneID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Created(c, view, "会话创建成功")
}

// GetSession 获取会话当前场景视图
func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")

	view, err := h.SessionService.CurrentView(sessionID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, view)
}

// SubmitChoice 提交一个选择
func (h *Handler) SubmitChoice(c *gin.Context) {
	sessionID := c.Param("id")

	var req SubmitChoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	if req.ChoiceID == "" {
		h.Response.BadRequest(c, "缺少选择ID")
		return
	}

	view, err := h.SessionService.SubmitChoice(sessionID, req.ChoiceID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	// 推送场景切换事件到该会话的WebSocket连接
	h.WebSocketHandler.broadcastSceneChanged(sessionID, req.ChoiceID, view)

	h.Response.Success(c, view)
}

// GoBackSession 回退到上一个场景
func (h *Handler) GoBackSession(c *gin.Context) {
	sessionID := c.Param("id")

	view, err := h.SessionService.GoBack(sessionID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.WebSocketHandler.broadcastSceneChanged(sessionID, "", view)

	h.Response.Success(c, view)
}

// SnapshotSession 生成会话快照
func (h *Handler) SnapshotSession(c *gin.Context) {
	sessionID := c.Param("id")

	snapshot, err := h.SessionService.Snapshot(sessionID)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, snapshot)
}

// ResumeSession 从快照恢复会话
func (h *Handler) ResumeSession(c *gin.Context) {
	var snapshot models.SessionSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		h.Response.BadRequest(c, "快照格式错误", err.Error())
		return
	}

	view, err := h.SessionService.Resume(&snapshot)
	if err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, view, "会话恢复成功")
}

// DeleteSession 删除会话
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")

	if err := h.SessionService.DeleteSession(sessionID); err != nil {
		h.respondDomainError(c, err)
		return
	}

	h.Response.Success(c, gin.H{"session_id": sessionID}, "会话已删除")
}

// ExportSession 导出会话快照
func (h *Handler) ExportSession(c *gin.Context) {
	sessionID := c.Param("id")
	format := c.DefaultQuery("format", "json")

	if h.ExportService == nil {
		h.Response.InternalError(c, "导出服务未初始化")
		return
	}

	result, err := h.ExportService.ExportSession(sessionID, format)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			h.Response.NotFound(c, "会话", err.Error())
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed, "导出会话失败", err.Error())
		return
	}

	h.Response.ExportResponse(c, result, format)
}

// ========================================
// WebSocket 处理器
// ========================================

// SessionWebSocket 处理会话 WebSocket 连接
func (h *Handler) SessionWebSocket(c *gin.Context) {
	h.WebSocketHandler.SessionWebSocket(c)
}

// BroadcastToSession 提供外部调用的广播方法
func (h *Handler) BroadcastToSession(sessionID string, message map[string]interface{}) {
	wsManager.BroadcastToSession(sessionID, message)
}

// GetWebSocketStatus 获取 WebSocket 连接状态（调试用）
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	status := wsManager.GetStatus()
	status["ping_timeout_seconds"] = int(wsManager.pingTimeout.Seconds())
	status["timestamp"] = time.Now().Format(time.RFC3339)

	c.JSON(http.StatusOK, status)
}

// CleanupWebSocketConnections 手动触发连接清理
func (h *Handler) CleanupWebSocketConnections(c *gin.Context) {
	wsManager.cleanupExpiredConnections()
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "连接清理已执行",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ========================================
// 设置与统计处理器
// ========================================

// GetSettings 获取当前设置
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()

	// 不回传提供者密钥
	maskedConfig := make(map[string]string, len(cfg.GeneratorConfig))
	for key, value := range cfg.GeneratorConfig {
		if key == "api_key" && value != "" {
			maskedConfig[key] = "******"
			continue
		}
		maskedConfig[key] = value
	}

	h.Response.Success(c, gin.H{
		"port":               cfg.Port,
		"debug_mode":         cfg.DebugMode,
		"generator_provider": cfg.GeneratorProvider,
		"generator_config":   maskedConfig,
		"available_providers": llm.GetAvailableProviders(),
	})
}

// SaveSettings 保存设置
func (h *Handler) SaveSettings(c *gin.Context) {
	var req SaveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}

	if req.GeneratorProvider != "" {
		if err := h.ConfigService.UpdateGeneratorConfig(req.GeneratorProvider, req.GeneratorConfig); err != nil {
			h.Response.InternalError(c, "保存生成器配置失败", err.Error())
			return
		}

		// 热更新生成服务的提供者
		if h.GenerationService != nil {
			provider, err := llm.DefaultRegistry.GetProvider(req.GeneratorProvider, req.GeneratorConfig)
			if err == nil {
				h.GenerationService.SetProvider(provider)
			}
		}
	}

	if req.DebugMode != nil {
		if err := h.ConfigService.SetDebugMode(*req.DebugMode); err != nil {
			h.Response.InternalError(c, "保存调试模式失败", err.Error())
			return
		}
	}

	h.Response.Success(c, nil, "设置已保存")
}

// GetStats 获取播放统计
func (h *Handler) GetStats(c *gin.Context) {
	if h.StatsService == nil {
		h.Response.InternalError(c, "统计服务未初始化")
		return
	}

	h.Response.Success(c, h.StatsService.GetPlayStats())
}

// GetMetrics 返回运行时指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetConfigHealth 配置健康检查
func (h *Handler) GetConfigHealth(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorConfigNotLoaded, "配置未加载")
		return
	}

	h.Response.Success(c, gin.H{
		"healthy":             true,
		"data_dir":            cfg.DataDir != "",
		"graphs_dir":          cfg.GraphsDir != "",
		"generator_available": h.GenerationService != nil && h.GenerationService.IsReady(),
	})
}
