// internal/services/stats_service.go
package services

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// StatsService 提供播放统计功能
type StatsService struct {
	BasePath    string            // 统计数据存储路径
	statsFile   string            // 统计文件名
	mutex       sync.Mutex        // 用于数据访问的互斥锁
	cachedStats *models.PlayStats // 缓存的统计数据

	// 批量保存控制
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration
}

// ------------------------------------
// NewStatsService 创建统计服务实例
func NewStatsService(basePath string) *StatsService {
	if basePath == "" {
		basePath = filepath.Join("data", "stats")
	}

	// 确保统计数据目录存在
	if err := os.MkdirAll(basePath, 0755); err != nil {
		fmt.Printf("Warning: Failed to create stats directory: %v\n", err)
	}

	service := &StatsService{
		BasePath:     basePath,
		statsFile:    filepath.Join(basePath, "play_stats.json"),
		saveInterval: 30 * time.Second,
	}

	service.startPeriodicSave()

	return service
}

// initStatsUnlocked 初始化统计数据（无锁版本）
func (s *StatsService) initStatsUnlocked() {
	// 尝试加载现有数据
	if loadedStats, err := s.loadStats(); err == nil {
		s.cachedStats = loadedStats
		return
	}

	// 加载失败或文件不存在，创建新的统计数据
	s.cachedStats = newEmptyStats()

	if err := s.saveStats(s.cachedStats); err != nil {
		fmt.Printf("警告: 保存初始统计数据失败: %v\n", err)
	}
}

func newEmptyStats() *models.PlayStats {
	return &models.PlayStats{
		PerGraph:    make(map[string]int),
		LastUpdated: time.Now(),
	}
}

// loadStats 从文件加载统计数据
func (s *StatsService) loadStats() (*models.PlayStats, error) {
	data, err := os.ReadFile(s.statsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats file: %w", err)
	}

	var stats models.PlayStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse stats data: %w", err)
	}

	// 确保映射已初始化
	if stats.PerGraph == nil {
		stats.PerGraph = make(map[string]int)
	}

	return &stats, nil
}

// saveStats 保存统计数据到文件
func (s *StatsService) saveStats(stats *models.PlayStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}

	// 使用临时文件确保原子性写入
	tempFile := s.statsFile + ".tmp"

	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp stats file: %w", err)
	}

	// 原子性重命名
	if err := os.Rename(tempFile, s.statsFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to replace stats file: %w", err)
	}

	return nil
}

// GetPlayStats 获取播放统计
func (s *StatsService) GetPlayStats() *models.PlayStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cachedStats == nil {
		s.initStatsUnlocked()
	}

	// 返回深度副本
	return &models.PlayStats{
		SessionsStarted:   s.cachedStats.SessionsStarted,
		SessionsCompleted: s.cachedStats.SessionsCompleted,
		SessionsFaulted:   s.cachedStats.SessionsFaulted,
		ChoicesSubmitted:  s.cachedStats.ChoicesSubmitted,
		GoBackCount:       s.cachedStats.GoBackCount,
		PerGraph:          copyIntMap(s.cachedStats.PerGraph),
		LastUpdated:       s.cachedStats.LastUpdated,
	}
}

// 简化的映射复制
func copyIntMap(original map[string]int) map[string]int {
	if original == nil {
		return make(map[string]int)
	}

	copied := make(map[string]int, len(original))
	maps.Copy(copied, original)
	return copied
}

// RecordSessionStarted 记录新会话
func (s *StatsService) RecordSessionStarted(graphID string) {
	s.record(func(stats *models.PlayStats) {
		stats.SessionsStarted++
		if graphID != "" {
			stats.PerGraph[graphID]++
		}
	})
}

// RecordSessionCompleted 记录抵达终点的会话
func (s *StatsService) RecordSessionCompleted(graphID string) {
	s.record(func(stats *models.PlayStats) {
		stats.SessionsCompleted++
	})
}

// RecordSessionFaulted 记录进入故障状态的会话
func (s *StatsService) RecordSessionFaulted(graphID string) {
	s.record(func(stats *models.PlayStats) {
		stats.SessionsFaulted++
	})
}

// RecordChoiceSubmitted 记录一次成功的选择提交
func (s *StatsService) RecordChoiceSubmitted(graphID string) {
	s.record(func(stats *models.PlayStats) {
		stats.ChoicesSubmitted++
	})
}

// RecordGoBack 记录一次回退
func (s *StatsService) RecordGoBack(graphID string) {
	s.record(func(stats *models.PlayStats) {
		stats.GoBackCount++
	})
}

// record 在互斥锁保护下更新统计并标记待保存
func (s *StatsService) record(update func(*models.PlayStats)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cachedStats == nil {
		s.initStatsUnlocked()
	}

	update(s.cachedStats)
	s.cachedStats.LastUpdated = time.Now()

	// 标记为需要保存，但不立即保存
	s.isDirty = true

	if time.Since(s.lastSaveTime) > s.saveInterval {
		if err := s.saveStatsImmediate(); err != nil {
			fmt.Printf("警告: 保存统计数据失败: %v\n", err)
		}
	}
}

// 立即保存（私有方法）
func (s *StatsService) saveStatsImmediate() error {
	if !s.isDirty {
		return nil
	}

	err := s.saveStats(s.cachedStats)
	if err == nil {
		s.isDirty = false
		s.lastSaveTime = time.Now()
	}
	return err
}

// 定时保存机制
func (s *StatsService) startPeriodicSave() {
	go func() {
		ticker := time.NewTicker(s.saveInterval)
		defer ticker.Stop()

		for range ticker.C {
			s.mutex.Lock()
			if s.isDirty {
				if err := s.saveStatsImmediate(); err != nil {
					fmt.Printf("警告: 定时保存统计数据失败: %v\n", err)
				}
			}
			s.mutex.Unlock()
		}
	}()
}

// ResetStats 重置统计数据（仅用于测试或管理目的）
func (s *StatsService) ResetStats() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	newStats := newEmptyStats()

	if err := s.saveStats(newStats); err != nil {
		return err
	}

	s.cachedStats = newStats
	return nil
}

// 关闭方法，确保数据保存
func (s *StatsService) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isDirty {
		return s.saveStatsImmediate()
	}
	return nil
}
