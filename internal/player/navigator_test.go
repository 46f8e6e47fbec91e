// internal/player/navigator_test.go
package player

import (
	"testing"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// TestNewNavigatorStartScene 入口场景：显式指定 > meta.start > 字典序最小
func TestNewNavigatorStartScene(t *testing.T) {
	graph := makeTestGraph()

	nav, err := NewNavigator(graph, "")
	if err != nil {
		t.Fatalf("创建导航器失败: %v", err)
	}
	if nav.Session().CurrentSceneID != "1-1" {
		t.Errorf("应从 meta.start 开始，实际: %s", nav.Session().CurrentSceneID)
	}

	nav, err = NewNavigator(graph, "2a")
	if err != nil {
		t.Fatalf("显式入口创建失败: %v", err)
	}
	if nav.Session().CurrentSceneID != "2a" {
		t.Errorf("应从显式入口开始，实际: %s", nav.Session().CurrentSceneID)
	}

	if _, err = NewNavigator(graph, "nowhere"); !apperrors.IsNotFoundError(err) {
		t.Errorf("不存在的入口应报未找到错误: %v", err)
	}

	graph.Meta.Start = ""
	nav, err = NewNavigator(graph, "")
	if err != nil {
		t.Fatalf("无 start 标记创建失败: %v", err)
	}
	if nav.Session().CurrentSceneID != "1-1" {
		t.Errorf("无标记时应取字典序最小的场景ID，实际: %s", nav.Session().CurrentSceneID)
	}
}

// TestNavigatorSubmitFlow 一次完整回合：取视图、提交选择、推进场景
func TestNavigatorSubmitFlow(t *testing.T) {
	nav, err := NewNavigator(makeTestGraph(), "")
	if err != nil {
		t.Fatalf("创建导航器失败: %v", err)
	}

	view, err := nav.Current()
	if err != nil {
		t.Fatalf("取视图失败: %v", err)
	}
	if view.SceneID != "1-1" || view.Ended || view.CanGoBack {
		t.Errorf("初始视图异常: %+v", view)
	}
	if nav.Status() != models.StatusAwaitingChoice {
		t.Errorf("取走视图后应进入 awaiting_choice，实际: %s", nav.Status())
	}

	view, err = nav.Submit("go")
	if err != nil {
		t.Fatalf("提交选择失败: %v", err)
	}
	if view.SceneID != "2a" {
		t.Errorf("应推进到 2a，实际: %s", view.SceneID)
	}
	if !view.CanGoBack {
		t.Error("推进一步后应可回退")
	}

	session := nav.Session()
	if len(session.History) != 1 || session.History[0] != "1-1" {
		t.Errorf("历史栈应为 [1-1]，实际: %v", session.History)
	}
	if session.State.Relationships["courage"] != 1 {
		t.Errorf("增量应已提交: %v", session.State.Relationships)
	}
}

// TestNavigatorTerminalScene 进入终点场景后会话结束，继续提交被拒绝
func TestNavigatorTerminalScene(t *testing.T) {
	nav, _ := NewNavigator(makeTestGraph(), "")

	view, err := nav.Submit("leave")
	if err != nil {
		t.Fatalf("提交选择失败: %v", err)
	}
	if !view.Ended || view.Choices != nil {
		t.Errorf("终点场景视图异常: %+v", view)
	}
	if !nav.IsEnded() || nav.Status() != models.StatusEnded {
		t.Errorf("会话应已结束，状态: %s", nav.Status())
	}

	if _, err = nav.Submit("leave"); !apperrors.IsConflictError(err) {
		t.Errorf("结束后的提交应报冲突: %v", err)
	}
}

// TestNavigatorUnknownChoice 无效的选择ID不是图错误，会话保持原状
func TestNavigatorUnknownChoice(t *testing.T) {
	nav, _ := NewNavigator(makeTestGraph(), "")

	if _, err := nav.Submit("nonsense"); !apperrors.IsNotFoundError(err) {
		t.Errorf("未知选择应报未找到: %v", err)
	}
	if nav.IsFaulted() {
		t.Error("未知选择不应使会话故障")
	}
	if nav.Session().CurrentSceneID != "1-1" {
		t.Errorf("场景不应推进，实际: %s", nav.Session().CurrentSceneID)
	}
}

// TestNavigatorGoBack 回退是只读回溯：场景回去，状态保留
func TestNavigatorGoBack(t *testing.T) {
	nav, _ := NewNavigator(makeTestGraph(), "")

	if err := nav.GoBack(); !apperrors.IsValidationError(err) {
		t.Errorf("空历史的回退应报校验错误: %v", err)
	}

	if _, err := nav.Submit("go"); err != nil {
		t.Fatalf("提交选择失败: %v", err)
	}
	if err := nav.GoBack(); err != nil {
		t.Fatalf("回退失败: %v", err)
	}

	session := nav.Session()
	if session.CurrentSceneID != "1-1" {
		t.Errorf("应回到 1-1，实际: %s", session.CurrentSceneID)
	}
	if len(session.History) != 0 {
		t.Errorf("历史栈应被弹空，实际: %v", session.History)
	}
	// 不重放增量：已应用的变量变化保留
	if session.State.Relationships["courage"] != 1 {
		t.Errorf("回退不应回滚状态: %v", session.State.Relationships)
	}
}

// TestNavigatorDanglingReferenceFaults 悬空引用使会话进入 Faulted 终态
func TestNavigatorDanglingReferenceFaults(t *testing.T) {
	graph := makeTestGraph()
	graph.Scenes["1-1"].Choices[0].Next = "nowhere"
	nav, _ := NewNavigator(graph, "")

	_, err := nav.Submit("go")
	if !apperrors.IsDanglingReferenceError(err) {
		t.Fatalf("应报悬空引用: %v", err)
	}
	if !nav.IsFaulted() {
		t.Fatal("会话应进入 faulted")
	}
	// 状态未变
	if nav.Session().State.Relationships["courage"] != 0 {
		t.Errorf("失败的回合不应改动状态: %v", nav.Session().State.Relationships)
	}

	// Faulted 是终态：后续操作一律拒绝
	if _, err = nav.Submit("leave"); !apperrors.IsConflictError(err) {
		t.Errorf("故障后的提交应报冲突: %v", err)
	}
	if err = nav.GoBack(); !apperrors.IsConflictError(err) {
		t.Errorf("故障后的回退应报冲突: %v", err)
	}
	if _, err = nav.Current(); !apperrors.IsConflictError(err) {
		t.Errorf("故障后的取视图应报冲突: %v", err)
	}
}

// TestNavigatorChoiceAvailability 视图标记门槛未达的选择，但不隐藏它们
func TestNavigatorChoiceAvailability(t *testing.T) {
	nav, _ := NewNavigator(makeTestGraph(), "")

	view, err := nav.Current()
	if err != nil {
		t.Fatalf("取视图失败: %v", err)
	}
	if len(view.Choices) != 3 {
		t.Fatalf("三个选择都应出现在视图中，实际: %d", len(view.Choices))
	}
	for _, choice := range view.Choices {
		switch choice.ID {
		case "sneak":
			if choice.Available {
				t.Error("stealth 门槛未达，sneak 应标记为不可用")
			}
		default:
			if !choice.Available {
				t.Errorf("无条件选择 %s 应可用", choice.ID)
			}
		}
	}
}

// TestResumeNavigator 从保存的会话重建：场景、历史与状态原样恢复
func TestResumeNavigator(t *testing.T) {
	graph := makeTestGraph()
	state := models.NewPlayerState()
	state.Relationships["courage"] = 2

	session := &models.Session{
		ID:             "restored",
		GraphID:        graph.ID,
		CurrentSceneID: "2a",
		History:        []string{"1-1"},
		State:          state,
	}

	nav, err := ResumeNavigator(graph, session)
	if err != nil {
		t.Fatalf("恢复失败: %v", err)
	}
	if nav.Session().CurrentSceneID != "2a" {
		t.Errorf("应恢复到 2a，实际: %s", nav.Session().CurrentSceneID)
	}
	if nav.Status() != models.StatusReady {
		t.Errorf("非终点场景恢复后应为 ready，实际: %s", nav.Status())
	}

	// 恢复后可以继续回退
	if err := nav.GoBack(); err != nil {
		t.Fatalf("恢复后回退失败: %v", err)
	}
	if nav.Session().CurrentSceneID != "1-1" {
		t.Errorf("回退应回到 1-1，实际: %s", nav.Session().CurrentSceneID)
	}

	// 保存的场景不存在时拒绝恢复
	bad := &models.Session{ID: "bad", CurrentSceneID: "nowhere", State: models.NewPlayerState()}
	if _, err := ResumeNavigator(graph, bad); !apperrors.IsNotFoundError(err) {
		t.Errorf("悬空的保存场景应报未找到: %v", err)
	}
}
