// internal/models/session.go
package models

import (
	"time"
)

// SessionStatus 表示导航控制器的状态机状态
type SessionStatus string

const (
	StatusLoading       SessionStatus = "loading"
	StatusReady         SessionStatus = "ready"
	StatusAwaitingChoice SessionStatus = "awaiting_choice"
	StatusTransitioning SessionStatus = "transitioning"
	StatusEnded         SessionStatus = "ended"
	StatusFaulted       SessionStatus = "faulted"
)

// Session 表示一次进行中或可恢复的播放实例。
// Graph 为只读引用（图可被多个会话复用）；History 仅用于向后导航，
// 不用于重放副作用。PlayerState 由唯一的导航控制器独占。
type Session struct {
	ID             string        `json:"id"`
	GraphID        string        `json:"graph_id,omitempty"`
	Graph          *StoryGraph   `json:"-"`
	CurrentSceneID string        `json:"current_scene_id"`
	History        []string      `json:"history"`
	State          *PlayerState  `json:"player_state"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SessionSnapshot 是持久化/导出的线格式：
// 内嵌完整故事图，使快照可以独立于图库恢复。
type SessionSnapshot struct {
	Version        int          `json:"version"`
	SessionID      string       `json:"session_id"`
	GraphID        string       `json:"graph_id,omitempty"`
	Graph          *StoryGraph  `json:"graph"`
	CurrentSceneID string       `json:"current_scene_id"`
	History        []string     `json:"history"`
	State          *PlayerState `json:"player_state"`
	SavedAt        time.Time    `json:"saved_at"`
}

// SnapshotVersion 是当前快照格式版本
const SnapshotVersion = 1

// ChoiceView 是展示给UI层的选择视图。
// Available 标记门槛条件当前是否满足（仅供展示，不阻止提交）。
type ChoiceView struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Available bool   `json:"available"`
}

// SessionView 是 currentView 返回的UI视图：
// 当前场景的对白与选择列表（终点场景时 Choices 为 null）。
type SessionView struct {
	SessionID string         `json:"session_id"`
	SceneID   string         `json:"scene_id"`
	Setting   string         `json:"setting,omitempty"`
	Dialogue  []DialogueLine `json:"dialogue"`
	Choices   []ChoiceView   `json:"choices"`
	Ended     bool           `json:"ended"`
	CanGoBack bool           `json:"can_go_back"`
	Status    SessionStatus  `json:"status"`
}
