// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的剧本生成提供者")

// ScriptRequest 剧本生成请求的标准化参数
type ScriptRequest struct {
	Theme       string                 `json:"theme"`
	Prompt      string                 `json:"prompt,omitempty"`
	SceneCount  int                    `json:"scene_count,omitempty"`
	Temperature float32                `json:"temperature,omitempty"`
	Model       string                 `json:"model,omitempty"`
	ExtraParams map[string]interface{} `json:"extra_params,omitempty"`
}

// ScriptResponse 剧本生成响应
// RawText 是提供者返回的原始文本，可能包含代码块标记或被截断，
// 调用方需要通过解析器做规范化处理。
type ScriptResponse struct {
	RawText      string `json:"raw_text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider 定义所有剧本生成提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 生成剧本原始文本
	GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResponse, error)
}

// Registry 提供者注册表
type Registry struct {
	providers map[string]func() Provider
}

// 全局注册表
var DefaultRegistry = &Registry{
	providers: make(map[string]func() Provider),
}

// Register 注册一个新的生成提供者
func (r *Registry) Register(name string, factory func() Provider) {
	r.providers[name] = factory
}

// GetProvider 获取指定名称的提供者实例
func (r *Registry) GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := r.providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}

	return provider, nil
}

// GetAvailableProviders 返回所有已注册的提供者名称
func (r *Registry) GetAvailableProviders() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

func GetAvailableProviders() []string {
	return DefaultRegistry.GetAvailableProviders()
}
