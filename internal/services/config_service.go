// internal/services/config_service.go
package services

import (
	"errors"
	"sync"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/config"
)

// ConfigService 提供配置管理功能
type ConfigService struct {
	// 缓存最近获取的配置，减少反复访问底层存储
	cachedConfig *config.AppConfig

	// 配置变更历史记录
	changeHistory []ConfigChangeRecord

	// 互斥锁保护内部状态
	mu sync.RWMutex
}

// ConfigChangeRecord 配置变更记录
type ConfigChangeRecord struct {
	Timestamp time.Time
	Section   string
	OldValue  interface{}
	NewValue  interface{}
}

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		changeHistory: make([]ConfigChangeRecord, 0, 100),
		cachedConfig:  config.GetCurrentConfig(),
	}
}

// GetCurrentConfig 获取当前配置
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cachedConfig == nil {
		s.cachedConfig = config.GetCurrentConfig()
	}

	return s.cachedConfig
}

// UpdateGeneratorConfig 更新剧本生成提供者和配置
func (s *ConfigService) UpdateGeneratorConfig(provider string, configMap map[string]string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}

	s.mu.RLock()
	var oldProvider string
	if s.cachedConfig != nil {
		oldProvider = s.cachedConfig.GeneratorProvider
	}
	s.mu.RUnlock()

	// 调用底层配置更新函数
	err := config.UpdateGeneratorConfig(provider, configMap)
	if err == nil {
		s.mu.Lock()
		s.cachedConfig = config.GetCurrentConfig()
		s.mu.Unlock()

		s.recordChange("剧本生成提供者", oldProvider, provider)
	}

	return err
}

// SaveConfig 保存当前配置
func (s *ConfigService) SaveConfig() error {
	return config.SaveConfig()
}

// GetGeneratorProvider 获取当前剧本生成提供者
func (s *ConfigService) GetGeneratorProvider() string {
	return s.GetCurrentConfig().GeneratorProvider
}

// GetGeneratorConfig 获取剧本生成配置
func (s *ConfigService) GetGeneratorConfig() map[string]string {
	return s.GetCurrentConfig().GeneratorConfig
}

// SetDebugMode 设置调试模式
func (s *ConfigService) SetDebugMode(enabled bool) error {
	cfg := s.GetCurrentConfig()
	old := cfg.DebugMode
	cfg.DebugMode = enabled

	if err := config.SaveConfig(); err != nil {
		return err
	}

	s.recordChange("调试模式", old, enabled)
	return nil
}

// GetChangeHistory 获取配置变更历史
func (s *ConfigService) GetChangeHistory(limit int) []ConfigChangeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.changeHistory) {
		limit = len(s.changeHistory)
	}

	// 返回最近的变更记录
	history := make([]ConfigChangeRecord, limit)
	startIdx := len(s.changeHistory) - limit
	copy(history, s.changeHistory[startIdx:])

	return history
}

// recordChange 记录配置变更
func (s *ConfigService) recordChange(section string, oldValue, newValue interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := ConfigChangeRecord{
		Timestamp: time.Now(),
		Section:   section,
		OldValue:  oldValue,
		NewValue:  newValue,
	}

	// 限制历史记录数量，避免无限增长
	if len(s.changeHistory) >= 1000 {
		s.changeHistory = s.changeHistory[1:]
	}

	s.changeHistory = append(s.changeHistory, record)
}
