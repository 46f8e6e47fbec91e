// internal/services/export_service.go
package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/parser"
)

// ExportService 导出剧本图和会话快照
type ExportService struct {
	GraphService   *GraphService
	SessionService *SessionService
	ExportDir      string
}

func NewExportService(graphService *GraphService, sessionService *SessionService, exportDir string) *ExportService {
	if exportDir == "" {
		exportDir = filepath.Join("data", "exports")
	}
	return &ExportService{
		GraphService:   graphService,
		SessionService: sessionService,
		ExportDir:      exportDir,
	}
}

// Export相关方法--------------------------
// ExportGraph 导出剧本图
func (s *ExportService) ExportGraph(graphID string, format string) (*models.ExportResult, error) {
	// 1. 验证输入参数
	if graphID == "" {
		return nil, fmt.Errorf("剧本图ID不能为空")
	}

	format = strings.ToLower(format)
	if !isSupportedFormat(format) {
		return nil, fmt.Errorf("不支持的导出格式: %s，支持的格式: [json yaml]", format)
	}

	// 2. 获取剧本图数据
	graph, err := s.GraphService.LoadGraph(graphID)
	if err != nil {
		return nil, fmt.Errorf("加载剧本图失败: %w", err)
	}

	// 3. 根据格式生成内容
	content, err := marshalExport(graph, format)
	if err != nil {
		return nil, fmt.Errorf("格式化导出内容失败: %w", err)
	}

	title := graphID
	if graph.Meta != nil && graph.Meta.Title != "" {
		title = graph.Meta.Title
	}

	// 4. 创建导出结果
	result := &models.ExportResult{
		ExportID:    uuid.NewString(),
		Kind:        "graph",
		Format:      format,
		Title:       title,
		Content:     content,
		GeneratedAt: time.Now(),
	}

	// 5. 保存到导出目录
	filePath, fileSize, err := s.saveExportFile(result, graphID)
	if err != nil {
		return nil, fmt.Errorf("保存导出文件失败: %w", err)
	}

	result.FilePath = filePath
	result.FileSize = fileSize

	return result, nil
}

// ExportSession 导出会话快照
// 快照内嵌完整剧本图，导出文件可直接用于恢复会话。
func (s *ExportService) ExportSession(sessionID string, format string) (*models.ExportResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("会话ID不能为空")
	}

	format = strings.ToLower(format)
	if !isSupportedFormat(format) {
		return nil, fmt.Errorf("不支持的导出格式: %s，支持的格式: [json yaml]", format)
	}

	snapshot, err := s.SessionService.Snapshot(sessionID)
	if err != nil {
		return nil, fmt.Errorf("生成会话快照失败: %w", err)
	}

	content, err := marshalExport(snapshot, format)
	if err != nil {
		return nil, fmt.Errorf("格式化导出内容失败: %w", err)
	}

	title := sessionID
	if snapshot.Graph != nil && snapshot.Graph.Meta != nil && snapshot.Graph.Meta.Title != "" {
		title = fmt.Sprintf("%s - %s", snapshot.Graph.Meta.Title, sessionID)
	}

	result := &models.ExportResult{
		ExportID:    uuid.NewString(),
		Kind:        "session",
		Format:      format,
		Title:       title,
		Content:     content,
		GeneratedAt: time.Now(),
	}

	filePath, fileSize, err := s.saveExportFile(result, sessionID)
	if err != nil {
		return nil, fmt.Errorf("保存导出文件失败: %w", err)
	}

	result.FilePath = filePath
	result.FileSize = fileSize

	return result, nil
}

// ImportSnapshot 从导出的快照内容恢复会话
// 同时接受JSON和YAML格式。
func (s *ExportService) ImportSnapshot(content []byte) (*models.SessionView, error) {
	if len(content) == 0 {
		return nil, errors.NewGraphParseError("快照内容为空", "", nil)
	}

	var snapshot models.SessionSnapshot
	if err := json.Unmarshal(content, &snapshot); err != nil {
		// 尝试YAML路径：先转成通用结构再经JSON解码，
		// 以便快照内嵌图走自定义的JSON反序列化逻辑
		var generic interface{}
		if yamlErr := yaml.Unmarshal(content, &generic); yamlErr == nil {
			jsonData, jsonErr := json.Marshal(normalizeYAMLValue(generic))
			if jsonErr != nil {
				return nil, errors.NewGraphParseError("快照无法解析", string(content), jsonErr)
			}
			if err := json.Unmarshal(jsonData, &snapshot); err != nil {
				return nil, errors.NewGraphParseError("快照无法解析", string(content), err)
			}
			return s.SessionService.Resume(&snapshot)
		}

		// 严格解析失败后走修复路径，截断或带围栏的导出件在这里恢复。
		// 修复后丢失内嵌图说明截断发生在图内部，仍按解析失败处理。
		repaired := parser.Repair(string(content))
		if err := json.Unmarshal([]byte(repaired), &snapshot); err != nil || snapshot.Graph == nil {
			return nil, errors.NewGraphParseError("快照无法解析", string(content), err)
		}
	}

	return s.SessionService.Resume(&snapshot)
}

// 辅助函数
func isSupportedFormat(format string) bool {
	return format == "json" || format == "yaml"
}

func marshalExport(value interface{}, format string) (string, error) {
	switch format {
	case "yaml":
		// YAML按JSON标签序列化，保证与JSON导出字段一致
		jsonData, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		var generic interface{}
		if err := json.Unmarshal(jsonData, &generic); err != nil {
			return "", err
		}
		data, err := yaml.Marshal(generic)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// normalizeYAMLValue 把yaml解码出的map[interface{}]interface{}转成JSON兼容结构
func normalizeYAMLValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(v))
		for key, item := range v {
			converted[fmt.Sprintf("%v", key)] = normalizeYAMLValue(item)
		}
		return converted
	case map[string]interface{}:
		for key, item := range v {
			v[key] = normalizeYAMLValue(item)
		}
		return v
	case []interface{}:
		for i, item := range v {
			v[i] = normalizeYAMLValue(item)
		}
		return v
	default:
		return value
	}
}

func (s *ExportService) saveExportFile(result *models.ExportResult, subjectID string) (string, int64, error) {
	// 创建导出目录
	exportDir := filepath.Join(s.ExportDir, result.Kind+"s")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", 0, fmt.Errorf("创建导出目录失败: %w", err)
	}

	// 生成文件名
	timestamp := result.GeneratedAt.Format("20060102_150405")
	safeID := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(subjectID)
	fileName := fmt.Sprintf("%s_%s.%s", safeID, timestamp, result.Format)

	filePath := filepath.Join(exportDir, fileName)

	// 写入文件
	if err := os.WriteFile(filePath, []byte(result.Content), 0644); err != nil {
		return "", 0, fmt.Errorf("写入导出文件失败: %w", err)
	}

	// 获取文件大小
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("获取文件信息失败: %w", err)
	}

	return filePath, fileInfo.Size(), nil
}
