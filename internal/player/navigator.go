// internal/player/navigator.go
package player

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// Navigator 是播放引擎的顶层状态机：
//
//	Loading → Ready(scene) → AwaitingChoice(scene) → Transitioning
//	        → Ready(next) | Ended | Faulted
//
// 它持有当前场景指针、向后导航用的历史栈，并独占一份玩家状态。
// 引擎运行在单协程事件循环上；每回合同步执行。
// 回合是原子单位：一次提交要么完整生效（状态已变、场景已推进），
// 要么完全失败（状态不变，进入 Faulted）。互斥锁只用来实现
// 单活动回合规则：宿主并发提交时拒绝第二个，而不是交错执行。
type Navigator struct {
	graph   *models.StoryGraph
	session *models.Session
	store   *StateStore
	logger  *utils.Logger

	mu sync.Mutex
}

// NewNavigator 用已归一化的图开启新会话。
// startSceneID 为空时，入口取图声明的 start 标记，否则取字典序最小的场景ID。
// 显式给出的 startSceneID 必须存在于图中。
func NewNavigator(graph *models.StoryGraph, startSceneID string) (*Navigator, error) {
	if graph == nil || len(graph.Scenes) == 0 {
		return nil, apperrors.NewValidationError("story graph is empty", nil)
	}

	if startSceneID == "" {
		startSceneID = graph.StartSceneID()
	}
	if graph.Scene(startSceneID) == nil {
		return nil, apperrors.NewNotFoundError("start scene not found: "+startSceneID, nil)
	}

	now := time.Now()
	session := &models.Session{
		ID:             uuid.NewString(),
		GraphID:        graph.ID,
		Graph:          graph,
		CurrentSceneID: startSceneID,
		History:        []string{},
		State:          models.NewPlayerState(),
		Status:         models.StatusLoading,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	nav := &Navigator{
		graph:   graph,
		session: session,
		store:   NewStateStore(),
		logger:  utils.GetLogger(),
	}
	nav.enterScene(startSceneID)
	return nav, nil
}

// ResumeNavigator 从已反序列化的会话重建导航器。
// 图必须已经过归一化；玩家状态整体载入（Replace 路径，仅限此处）。
func ResumeNavigator(graph *models.StoryGraph, session *models.Session) (*Navigator, error) {
	if graph == nil || len(graph.Scenes) == 0 {
		return nil, apperrors.NewValidationError("story graph is empty", nil)
	}
	if session == nil {
		return nil, apperrors.NewValidationError("session is nil", nil)
	}
	if graph.Scene(session.CurrentSceneID) == nil {
		return nil, apperrors.NewNotFoundError("saved scene not found: "+session.CurrentSceneID, nil)
	}

	store := NewStateStore()
	store.Replace(session.State)
	session.State = store.State()
	session.Graph = graph
	if session.History == nil {
		session.History = []string{}
	}

	nav := &Navigator{
		graph:   graph,
		session: session,
		store:   store,
		logger:  utils.GetLogger(),
	}
	nav.enterScene(session.CurrentSceneID)
	return nav, nil
}

// Session 返回导航器独占的会话值
func (n *Navigator) Session() *models.Session {
	return n.session
}

// Graph 返回只读的故事图引用
func (n *Navigator) Graph() *models.StoryGraph {
	return n.graph
}

// Status 返回当前状态机状态
func (n *Navigator) Status() models.SessionStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.Status
}

// IsEnded 报告会话是否到达本幕终点
func (n *Navigator) IsEnded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.Status == models.StatusEnded
}

// IsFaulted 报告会话是否已进入不可恢复状态
func (n *Navigator) IsFaulted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.session.Status == models.StatusFaulted
}

// Current 返回当前场景的UI视图：对白与选择列表（终点场景为 null）。
// Ready 场景在视图被取走后进入 AwaitingChoice。
func (n *Navigator) Current() (*models.SessionView, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session.Status == models.StatusFaulted {
		return nil, apperrors.NewConflictError("session is faulted", nil)
	}

	if n.session.Status == models.StatusReady {
		n.session.Status = models.StatusAwaitingChoice
	}
	return n.viewLocked()
}

// Submit 提交一个选择并推进到下一个场景。
// Transitioning 期间的并发提交被拒绝（冲突错误），不会交错执行。
// 悬空引用使会话进入 Faulted；Faulted 是终态，会话只能放弃或重开。
func (n *Navigator) Submit(choiceID string) (*models.SessionView, error) {
	if !n.mu.TryLock() {
		return nil, apperrors.NewConflictError("a turn is already in progress", nil)
	}
	defer n.mu.Unlock()

	switch n.session.Status {
	case models.StatusEnded:
		return nil, apperrors.NewConflictError("session has ended", nil)
	case models.StatusFaulted:
		return nil, apperrors.NewConflictError("session is faulted", nil)
	}

	scene := n.graph.Scene(n.session.CurrentSceneID)
	if scene == nil {
		n.faultLocked()
		return nil, apperrors.NewDanglingReferenceError(n.session.CurrentSceneID, "", "")
	}

	choice := scene.FindChoice(choiceID)
	if choice == nil {
		// 无效的选择ID不是图错误，会话保持原状
		return nil, apperrors.NewNotFoundError("choice not found: "+choiceID, nil)
	}

	n.session.Status = models.StatusTransitioning

	result, err := n.store.ResolveChoice(n.graph, scene, choice)
	if err != nil {
		// 回合完全失败：状态未变，进入 Faulted，错误原样上抛
		n.faultLocked()
		return nil, err
	}

	// 回合完整生效：提交状态、压栈历史、推进场景
	n.session.State = result.State
	n.session.History = append(n.session.History, scene.ID)
	n.session.CurrentSceneID = result.NextSceneID
	n.enterScene(result.NextSceneID)

	return n.viewLocked()
}

// GoBack 弹出历史栈并回到上一个场景。
// 只读回退：不重放条件与增量，已应用的变量变化全部保留。
func (n *Navigator) GoBack() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.session.Status == models.StatusFaulted {
		return apperrors.NewConflictError("session is faulted", nil)
	}
	if len(n.session.History) == 0 {
		return apperrors.NewValidationError("history is empty", nil)
	}

	last := len(n.session.History) - 1
	prev := n.session.History[last]
	n.session.History = n.session.History[:last]

	if n.graph.Scene(prev) == nil {
		n.faultLocked()
		return apperrors.NewDanglingReferenceError(prev, "", "")
	}

	n.session.CurrentSceneID = prev
	n.enterScene(prev)
	return nil
}

// Fault 由外部把会话标记为不可恢复（如持久化失败）
func (n *Navigator) Fault() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faultLocked()
}

// enterScene 进入场景后的状态归位：终点场景直接 Ended，否则 Ready。
// 调用方必须已验证场景存在。
func (n *Navigator) enterScene(sceneID string) {
	scene := n.graph.Scene(sceneID)
	if scene != nil && scene.IsTerminal() {
		n.session.Status = models.StatusEnded
	} else {
		n.session.Status = models.StatusReady
	}
	n.session.UpdatedAt = time.Now()
}

func (n *Navigator) faultLocked() {
	n.session.Status = models.StatusFaulted
	n.session.UpdatedAt = time.Now()
	n.logger.Error("session faulted", map[string]interface{}{
		"session_id": n.session.ID,
		"scene_id":   n.session.CurrentSceneID,
	})
}

// viewLocked 在持锁状态下构造视图（Submit 返回用）
func (n *Navigator) viewLocked() (*models.SessionView, error) {
	scene := n.graph.Scene(n.session.CurrentSceneID)
	if scene == nil {
		n.faultLocked()
		return nil, apperrors.NewDanglingReferenceError(n.session.CurrentSceneID, "", "")
	}

	view := &models.SessionView{
		SessionID: n.session.ID,
		SceneID:   scene.ID,
		Setting:   scene.Setting,
		Dialogue:  scene.Dialogue,
		Ended:     scene.IsTerminal(),
		CanGoBack: len(n.session.History) > 0,
		Status:    n.session.Status,
	}
	for _, choice := range scene.Choices {
		view.Choices = append(view.Choices, models.ChoiceView{
			ID:        choice.ID,
			Text:      choice.Text,
			Available: n.store.EvalCondition(choice.Condition),
		})
	}
	return view, nil
}
