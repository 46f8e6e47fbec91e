// internal/player/resolver_test.go
package player

import (
	"testing"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// makeTestGraph 构造结算与导航测试共用的小型剧本图
func makeTestGraph() *models.StoryGraph {
	return &models.StoryGraph{
		ID: "test-graph",
		Meta: &models.GraphMeta{
			Title: "测试剧本",
			Start: "1-1",
		},
		Scenes: map[string]*models.Scene{
			"1-1": {
				ID:      "1-1",
				Setting: "巷口",
				Dialogue: []models.DialogueLine{
					{Speaker: "旁白", Text: "你站在巷口。"},
				},
				Choices: []*models.Choice{
					{ID: "go", Text: "走进去", Delta: map[string]int{"courage": 1}, Next: "2a"},
					{ID: "sneak", Text: "偷偷绕后", Condition: map[string]int{"stealth": 2}, Next: "2a", FailNext: "2b"},
					{ID: "leave", Text: "离开", Next: "end"},
				},
			},
			"2a": {
				ID:       "2a",
				Dialogue: []models.DialogueLine{{Speaker: "旁白", Text: "巷子深处。"}},
				Choices: []*models.Choice{
					{ID: "finish", Text: "结束", Next: "end"},
				},
			},
			"2b": {
				ID:       "2b",
				Dialogue: []models.DialogueLine{{Speaker: "旁白", Text: "你被发现了。"}},
				Choices: []*models.Choice{
					{ID: "finish", Text: "结束", Next: "end"},
				},
			},
			"end": {
				ID:       "end",
				Dialogue: []models.DialogueLine{{Speaker: "旁白", Text: "完。"}},
			},
		},
	}
}

// TestResolveChoiceNoCondition 无条件的选择直接走 next 并应用增量
func TestResolveChoiceNoCondition(t *testing.T) {
	graph := makeTestGraph()
	scene := graph.Scenes["1-1"]
	store := NewStateStore()

	result, err := store.ResolveChoice(graph, scene, scene.FindChoice("go"))
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if result.NextSceneID != "2a" {
		t.Errorf("应推进到 2a，实际: %s", result.NextSceneID)
	}
	if !result.ConditionMet || result.UsedFailNext {
		t.Errorf("无条件选择: ConditionMet=%v UsedFailNext=%v", result.ConditionMet, result.UsedFailNext)
	}
	if result.State.Relationships["courage"] != 1 {
		t.Errorf("增量应已应用: %v", result.State.Relationships)
	}
}

// TestResolveChoiceConditionSatisfied 条件满足时走 next
func TestResolveChoiceConditionSatisfied(t *testing.T) {
	graph := makeTestGraph()
	scene := graph.Scenes["1-1"]

	state := models.NewPlayerState()
	state.Skills["stealth"] = 2
	store := NewStateStoreFrom(state)

	result, err := store.ResolveChoice(graph, scene, scene.FindChoice("sneak"))
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if result.NextSceneID != "2a" || result.UsedFailNext {
		t.Errorf("条件满足应走 next: next=%s usedFail=%v", result.NextSceneID, result.UsedFailNext)
	}
}

// TestResolveChoiceConditionFailed 条件不满足时走 failNext，增量仍然应用
func TestResolveChoiceConditionFailed(t *testing.T) {
	graph := makeTestGraph()
	scene := graph.Scenes["1-1"]
	scene.FindChoice("sneak").Delta = map[string]int{"courage": -1}
	store := NewStateStore()

	result, err := store.ResolveChoice(graph, scene, scene.FindChoice("sneak"))
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}

	if result.NextSceneID != "2b" || !result.UsedFailNext {
		t.Errorf("条件不满足应走 failNext: next=%s usedFail=%v", result.NextSceneID, result.UsedFailNext)
	}
	if result.ConditionMet {
		t.Error("ConditionMet 应为 false")
	}
	// 增量不受条件结果门控
	if result.State.Relationships["courage"] != -1 {
		t.Errorf("失败分支的增量也应应用: %v", result.State.Relationships)
	}
}

// TestResolveChoiceConditionFailedNoFailNext 没有 failNext 的条件从不阻断前进
func TestResolveChoiceConditionFailedNoFailNext(t *testing.T) {
	graph := makeTestGraph()
	scene := graph.Scenes["1-1"]
	choice := scene.FindChoice("sneak")
	choice.FailNext = ""
	store := NewStateStore()

	result, err := store.ResolveChoice(graph, scene, choice)
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	if result.NextSceneID != "2a" || result.UsedFailNext {
		t.Errorf("无 failNext 时应回落到 next: next=%s usedFail=%v", result.NextSceneID, result.UsedFailNext)
	}
}

// TestResolveChoiceDanglingTarget 选定目标不存在时报悬空引用，且状态完全不变
func TestResolveChoiceDanglingTarget(t *testing.T) {
	graph := makeTestGraph()
	scene := graph.Scenes["1-1"]
	choice := &models.Choice{ID: "broken", Text: "坏的", Delta: map[string]int{"courage": 7}, Next: "nowhere"}

	store := NewStateStore()
	_, err := store.ResolveChoice(graph, scene, choice)
	if err == nil {
		t.Fatal("应返回悬空引用错误")
	}
	if !apperrors.IsDanglingReferenceError(err) {
		t.Errorf("错误类型应为悬空引用: %v", err)
	}
	// 先验证目标再应用增量：失败时状态必须原封不动
	if got := store.Get(models.NamespaceRelationships, "courage"); got != 0 {
		t.Errorf("失败的结算不应改动状态，courage=%d", got)
	}
}
