// internal/llm/mock.go
package llm

import (
	"context"
	"fmt"
)

// MockProvider 本地模拟提供者，离线环境与测试使用。
// 返回固定结构的小型剧本，故意带代码块标记以演练解析器的修复路径。
type MockProvider struct {
	name string
}

func init() {
	DefaultRegistry.Register("mock", func() Provider {
		return &MockProvider{name: "mock"}
	})
}

// Initialize 实现Provider接口
func (p *MockProvider) Initialize(config map[string]string) error {
	if alias, ok := config["name"]; ok && alias != "" {
		p.name = alias
	}
	return nil
}

// GetName 实现Provider接口
func (p *MockProvider) GetName() string {
	return p.name
}

// GenerateScript 实现Provider接口
func (p *MockProvider) GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResponse, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	theme := req.Theme
	if theme == "" {
		theme = "adventure"
	}

	raw := fmt.Sprintf("```json\n"+
		`{
  "meta": {"title": "Mock Story", "theme": %q, "start": "1-1"},
  "scenes": {
    "1-1": {
      "id": "1-1",
      "setting": "a quiet village square",
      "dialogue": [["narrator", "The journey begins."]],
      "choices": [
        {"id": "go", "text": "Set out on the road", "delta": {"courage": 1}, "next": "1-2"},
        {"id": "stay", "text": "Stay home", "next": "1-3"}
      ]
    },
    "1-2": {
      "id": "1-2",
      "setting": "the open road",
      "dialogue": [["narrator", "Adventure awaits."]],
      "choices": null
    },
    "1-3": {
      "id": "1-3",
      "setting": "home",
      "dialogue": [["narrator", "Some stories end where they start."]],
      "choices": null
    }
  }
}`+"\n```",
		theme)

	return &ScriptResponse{
		RawText:      raw,
		FinishReason: "stop",
		ModelName:    "mock-1",
		ProviderName: p.name,
	}, nil
}
