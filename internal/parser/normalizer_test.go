// internal/parser/normalizer_test.go
package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
)

// TestNormalizeSceneMap 测试规范的场景映射形态
func TestNormalizeSceneMap(t *testing.T) {
	raw := `{
		"1-1": {
			"setting": "雨夜的巷口",
			"dialogue": [["旁白", "你站在巷口。"], ["铃", "要进去吗？"]],
			"choices": [
				{"id": "go", "text": "走进去", "delta": {"courage": 1}, "next": "1-2"},
				{"id": "stay", "text": "留在原地", "next": "1-3"}
			]
		},
		"1-2": {"dialogue": [["旁白", "巷子深处。"]], "choices": null},
		"1-3": {"dialogue": [["旁白", "你转身离开。"]]}
	}`

	graph, err := NewNormalizer().Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, graph.Scenes, 3)

	scene := graph.Scenes["1-1"]
	require.NotNil(t, scene)
	assert.Equal(t, "1-1", scene.ID)
	assert.Equal(t, "雨夜的巷口", scene.Setting)
	require.Len(t, scene.Dialogue, 2)
	assert.Equal(t, "旁白", scene.Dialogue[0].Speaker)
	assert.Equal(t, "你站在巷口。", scene.Dialogue[0].Text)
	require.Len(t, scene.Choices, 2)
	assert.Equal(t, map[string]int{"courage": 1}, scene.Choices[0].Delta)

	// choices 为 null 或缺失的场景都是终点
	assert.True(t, graph.Scenes["1-2"].IsTerminal())
	assert.True(t, graph.Scenes["1-3"].IsTerminal())
}

// TestNormalizeWrapped 测试带 meta 的包装形态
func TestNormalizeWrapped(t *testing.T) {
	raw := `{
		"meta": {"title": "雨巷", "theme": "mystery", "start": "1-1"},
		"exported_at": "2025-01-01T00:00:00Z",
		"scenes": {
			"1-1": {"dialogue": [["旁白", "开场。"]], "choices": [{"id": "go", "text": "前进", "next": "1-2"}]},
			"1-2": {"dialogue": []}
		}
	}`

	graph, err := NewNormalizer().Normalize([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, graph.Meta)
	assert.Equal(t, "雨巷", graph.Meta.Title)
	assert.Equal(t, "1-1", graph.Meta.Start)
	assert.Equal(t, "1-1", graph.StartSceneID())
	assert.Len(t, graph.Scenes, 2)
}

// TestNormalizeSceneList 测试旧版有序场景列表
func TestNormalizeSceneList(t *testing.T) {
	raw := `[
		{"id": "a", "dialogue": [["n", "first"]], "choices": [{"id": "c1", "text": "go", "next": "b"}]},
		{"id": "b", "dialogue": [["n", "second"]]}
	]`

	graph, err := NewNormalizer().Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, graph.Scenes, 2)
	assert.Equal(t, "a", graph.Scenes["a"].ID)
	// 列表形态没有 start 标记，入口取字典序最小的场景ID
	assert.Equal(t, "a", graph.StartSceneID())
}

// TestNormalizeSceneIDMismatch 场景ID与映射键不一致时以键为准并产生警告
func TestNormalizeSceneIDMismatch(t *testing.T) {
	raw := `{"intro": {"id": "wrong", "dialogue": []}}`

	result, err := NewNormalizer().NormalizeWithWarnings([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "intro", result.Graph.Scenes["intro"].ID)
	require.NotEmpty(t, result.Warnings)
}

// TestNormalizeRepairedInput 测试代码块围栏、尾随逗号和截断的修复
func TestNormalizeRepairedInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{
			name: "代码块围栏",
			raw:  "```json\n{\"a\": {\"dialogue\": [[\"n\", \"hi\"]]}}\n```",
		},
		{
			name: "尾随逗号",
			raw:  `{"a": {"dialogue": [["n", "hi"]],},}`,
		},
		{
			name: "裸键名",
			raw:  `{a: {dialogue: [["n", "hi"]]}}`,
		},
		{
			name: "截断的对象",
			raw:  `{"a": {"dialogue": [["n", "hi"`,
		},
		{
			name: "围栏外的说明文字",
			raw:  "好的，这是生成的剧本：\n```json\n{\"a\": {\"dialogue\": []}}\n```\n希望你喜欢！",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			graph, err := NewNormalizer().Normalize([]byte(tc.raw))
			require.NoError(t, err)
			require.NotNil(t, graph.Scenes["a"])
		})
	}
}

// TestNormalizeUnparseable 修复后仍无法解析时返回 GraphParseError 并保留原文
func TestNormalizeUnparseable(t *testing.T) {
	raw := "这根本不是一个剧本"

	_, err := NewNormalizer().Normalize([]byte(raw))
	require.Error(t, err)
	require.True(t, apperrors.IsGraphParseError(err))

	var parseErr *apperrors.GraphParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, raw, parseErr.RawText)
}

// TestNormalizeEmptyInput 空输入返回 GraphParseError
func TestNormalizeEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "{}"} {
		_, err := NewNormalizer().Normalize([]byte(raw))
		assert.True(t, apperrors.IsGraphParseError(err), "输入 %q 应该返回解析错误", raw)
	}
}

// TestNormalizeValue 已解析的对象走相同的校验路径
func TestNormalizeValue(t *testing.T) {
	value := map[string]interface{}{
		"start": map[string]interface{}{
			"dialogue": [][]string{{"n", "hi"}},
		},
	}

	graph, err := NewNormalizer().NormalizeValue(value)
	require.NoError(t, err)
	assert.NotNil(t, graph.Scenes["start"])
}

// TestNormalizeExplicitEmptyChoices 显式空选择数组归一为 nil
func TestNormalizeExplicitEmptyChoices(t *testing.T) {
	raw := `{"end": {"dialogue": [], "choices": []}}`

	graph, err := NewNormalizer().Normalize([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, graph.Scenes["end"].Choices)
	assert.True(t, graph.Scenes["end"].IsTerminal())
}
