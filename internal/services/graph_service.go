// internal/services/graph_service.go
package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/parser"
	"github.com/Corphon/StoryPlayerMCP/internal/storage"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// GraphService 管理剧本图库的业务逻辑
// 每个剧本图以 {BaseDir}/{graphID}.json 形式落盘。
type GraphService struct {
	BaseDir    string
	Normalizer *parser.Normalizer
	FileCache  *storage.FileCacheService

	// 并发控制
	graphLocks sync.Map // graphID -> *sync.RWMutex
	logger     *utils.Logger
}

// storedGraph 落盘格式，剧本图加上库管理的时间戳
type storedGraph struct {
	Graph     *models.StoryGraph `json:"graph"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ---------------------------------------------------
// NewGraphService 创建剧本图服务
func NewGraphService(baseDir string) *GraphService {
	if baseDir == "" {
		baseDir = filepath.Join("data", "graphs")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		fmt.Printf("警告: 创建剧本图目录失败: %v\n", err)
	}

	return &GraphService{
		BaseDir:    baseDir,
		Normalizer: parser.NewNormalizer(),
		FileCache:  storage.NewFileCacheService(100, 5*time.Minute),
		logger:     utils.ForComponent("graph_service"),
	}
}

// 获取剧本图锁
func (s *GraphService) getGraphLock(graphID string) *sync.RWMutex {
	value, _ := s.graphLocks.LoadOrStore(graphID, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (s *GraphService) graphPath(graphID string) string {
	// 清理ID中的路径分隔符，防止目录穿越
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(graphID)
	return filepath.Join(s.BaseDir, safe+".json")
}

// ImportGraph 导入原始剧本文本
// 文本先经过规范化解析（含修复），再做引用校验，最后落盘。
func (s *GraphService) ImportGraph(raw []byte) (*models.StoryGraph, []string, error) {
	result, err := s.Normalizer.NormalizeWithWarnings(raw)
	if err != nil {
		return nil, nil, err
	}

	graph := result.Graph
	if err := s.ValidateGraph(graph); err != nil {
		return nil, result.Warnings, err
	}

	if err := s.SaveGraph(graph); err != nil {
		return nil, result.Warnings, err
	}

	return graph, result.Warnings, nil
}

// SaveGraph 保存剧本图，ID为空时自动分配
func (s *GraphService) SaveGraph(graph *models.StoryGraph) error {
	if graph == nil {
		return errors.NewValidationError("剧本图不能为空", nil)
	}
	if graph.ID == "" {
		graph.ID = uuid.NewString()
	}

	lock := s.getGraphLock(graph.ID)
	lock.Lock()
	defer lock.Unlock()

	path := s.graphPath(graph.ID)

	now := time.Now()
	stored := &storedGraph{
		Graph:     graph,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 保留首次创建时间
	var existing storedGraph
	if err := s.FileCache.ReadFile(path, &existing); err == nil && !existing.CreatedAt.IsZero() {
		stored.CreatedAt = existing.CreatedAt
	}

	if err := s.FileCache.WriteFile(path, stored); err != nil {
		return errors.WrapError(err, "保存剧本图失败", errors.ErrorTypeStorage)
	}

	s.logger.Info("graph saved", map[string]interface{}{
		"graph_id":    graph.ID,
		"scene_count": len(graph.Scenes),
	})
	return nil
}

// LoadGraph 加载剧本图
func (s *GraphService) LoadGraph(graphID string) (*models.StoryGraph, error) {
	if graphID == "" {
		return nil, errors.NewValidationError("剧本图ID不能为空", nil)
	}

	lock := s.getGraphLock(graphID)
	lock.RLock()
	defer lock.RUnlock()

	path := s.graphPath(graphID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("剧本图不存在: "+graphID, nil)
	}

	var stored storedGraph
	if err := s.FileCache.ReadFile(path, &stored); err != nil {
		return nil, errors.WrapError(err, "读取剧本图失败", errors.ErrorTypeStorage)
	}
	if stored.Graph == nil {
		return nil, errors.NewNotFoundError("剧本图不存在: "+graphID, nil)
	}

	stored.Graph.ID = graphID
	return stored.Graph, nil
}

// ListGraphs 列出库中所有剧本图的摘要，按标题排序
func (s *GraphService) ListGraphs() ([]models.GraphSummary, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.GraphSummary{}, nil
		}
		return nil, errors.WrapError(err, "读取剧本图目录失败", errors.ErrorTypeStorage)
	}

	summaries := make([]models.GraphSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		graphID := strings.TrimSuffix(entry.Name(), ".json")

		var stored storedGraph
		if err := s.FileCache.ReadFile(filepath.Join(s.BaseDir, entry.Name()), &stored); err != nil {
			s.logger.Warn("skip unreadable graph file", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if stored.Graph == nil {
			continue
		}

		// 裸场景映射形式导入的剧本图没有meta
		title, theme := "", ""
		if stored.Graph.Meta != nil {
			title = stored.Graph.Meta.Title
			theme = stored.Graph.Meta.Theme
		}

		summaries = append(summaries, models.GraphSummary{
			ID:         graphID,
			Title:      title,
			Theme:      theme,
			SceneCount: len(stored.Graph.Scenes),
			CreatedAt:  stored.CreatedAt,
			UpdatedAt:  stored.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Title != summaries[j].Title {
			return summaries[i].Title < summaries[j].Title
		}
		return summaries[i].ID < summaries[j].ID
	})

	return summaries, nil
}

// DeleteGraph 删除剧本图
func (s *GraphService) DeleteGraph(graphID string) error {
	if graphID == "" {
		return errors.NewValidationError("剧本图ID不能为空", nil)
	}

	lock := s.getGraphLock(graphID)
	lock.Lock()
	defer lock.Unlock()

	path := s.graphPath(graphID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("剧本图不存在: "+graphID, nil)
		}
		return errors.WrapError(err, "删除剧本图失败", errors.ErrorTypeStorage)
	}

	s.FileCache.DeleteFromCache(path)
	s.graphLocks.Delete(graphID)

	s.logger.Info("graph deleted", map[string]interface{}{"graph_id": graphID})
	return nil
}

// ValidateGraph 校验剧本图中的场景引用
// 选项的next与failNext必须指向已存在的场景，起始场景必须可解析。
func (s *GraphService) ValidateGraph(graph *models.StoryGraph) error {
	if graph == nil || len(graph.Scenes) == 0 {
		return errors.NewGraphParseError("剧本图中没有任何场景", "", nil)
	}

	if graph.StartSceneID() == "" {
		return errors.NewGraphParseError("无法确定起始场景", "", nil)
	}

	// 按场景ID排序遍历，保证报错顺序稳定
	ids := make([]string, 0, len(graph.Scenes))
	for id := range graph.Scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		scene := graph.Scenes[id]
		for _, choice := range scene.Choices {
			if choice.Next == "" {
				return errors.NewGraphParseError(
					fmt.Sprintf("场景 %s 的选项 %s 缺少next目标", id, choice.ID), "", nil)
			}
			if graph.Scene(choice.Next) == nil {
				return errors.NewDanglingReferenceError(choice.Next, id, choice.ID)
			}
			if choice.FailNext != "" && graph.Scene(choice.FailNext) == nil {
				return errors.NewDanglingReferenceError(choice.FailNext, id, choice.ID)
			}
		}
	}

	return nil
}
