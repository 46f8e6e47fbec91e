// internal/services/session_service.go
package services

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/parser"
	"github.com/Corphon/StoryPlayerMCP/internal/player"
	"github.com/Corphon/StoryPlayerMCP/internal/storage"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// SessionService 管理播放会话的生命周期和持久化
// 活跃会话保留在内存中的导航控制器里，每次状态变更后同步写快照，
// 进程重启后可以从快照惰性恢复。
type SessionService struct {
	GraphService *GraphService
	Store        *storage.KVStore
	Locks        *LockManager
	Stats        *StatsService

	// 活跃会话的导航控制器
	navigators map[string]*player.Navigator
	navMutex   sync.RWMutex

	logger *utils.Logger
}

// ---------------------------------------------------
// NewSessionService 创建会话服务
func NewSessionService(baseDir string, graphService *GraphService, locks *LockManager) (*SessionService, error) {
	if baseDir == "" {
		baseDir = filepath.Join("data", "sessions")
	}
	if locks == nil {
		locks = NewLockManager()
	}

	store, err := storage.NewKVStore(baseDir)
	if err != nil {
		return nil, errors.WrapError(err, "创建会话存储失败", errors.ErrorTypeStorage)
	}

	return &SessionService{
		GraphService: graphService,
		Store:        store,
		Locks:        locks,
		navigators:   make(map[string]*player.Navigator),
		logger:       utils.ForComponent("session_service"),
	}, nil
}

// SetStatsService 注入统计服务（可选依赖）
func (s *SessionService) SetStatsService(stats *StatsService) {
	s.Stats = stats
}

// StartSession 基于图库中的剧本图开启新会话
// startSceneID 为空时使用图声明的起始场景。
func (s *SessionService) StartSession(graphID, startSceneID string) (*models.SessionView, error) {
	if s.GraphService == nil {
		return nil, errors.NewProcessingError("剧本图服务未初始化", nil)
	}

	graph, err := s.GraphService.LoadGraph(graphID)
	if err != nil {
		return nil, err
	}

	return s.startWithGraph(graph, startSceneID)
}

// StartSessionWithGraph 基于已解析的剧本图开启新会话（不要求图已入库）
func (s *SessionService) StartSessionWithGraph(graph *models.StoryGraph, startSceneID string) (*models.SessionView, error) {
	return s.startWithGraph(graph, startSceneID)
}

func (s *SessionService) startWithGraph(graph *models.StoryGraph, startSceneID string) (*models.SessionView, error) {
	nav, err := player.NewNavigator(graph, startSceneID)
	if err != nil {
		return nil, err
	}

	sessionID := nav.Session().ID

	s.navMutex.Lock()
	s.navigators[sessionID] = nav
	s.navMutex.Unlock()

	if err := s.persist(nav); err != nil {
		s.navMutex.Lock()
		delete(s.navigators, sessionID)
		s.navMutex.Unlock()
		return nil, err
	}

	if s.Stats != nil {
		s.Stats.RecordSessionStarted(graph.ID)
	}
	s.logger.Info("session started", map[string]interface{}{
		"session_id": sessionID,
		"graph_id":   graph.ID,
		"scene_id":   nav.Session().CurrentSceneID,
	})

	view, err := nav.Current()
	if err != nil {
		return nil, err
	}
	if s.Stats != nil && nav.IsEnded() {
		// 起始场景就是终点的情况
		s.Stats.RecordSessionCompleted(graph.ID)
	}
	return view, nil
}

// CurrentView 返回会话当前场景的视图
func (s *SessionService) CurrentView(sessionID string) (*models.SessionView, error) {
	nav, err := s.getNavigator(sessionID)
	if err != nil {
		return nil, err
	}

	var view *models.SessionView
	err = s.Locks.ExecuteWithSessionReadLock(sessionID, func() error {
		var innerErr error
		view, innerErr = nav.Current()
		return innerErr
	})
	return view, err
}

// SubmitChoice 提交一个选择并推进会话
// 同一会话同时只允许一个进行中的回合，并发提交立即拒绝。
func (s *SessionService) SubmitChoice(sessionID, choiceID string) (*models.SessionView, error) {
	nav, err := s.getNavigator(sessionID)
	if err != nil {
		return nil, err
	}

	var view *models.SessionView
	acquired, err := s.Locks.TryExecuteWithSessionLock(sessionID, func() error {
		var innerErr error
		view, innerErr = nav.Submit(choiceID)

		// 无论成败都持久化，故障状态也要落盘
		if persistErr := s.persist(nav); persistErr != nil {
			s.logger.Error("persist after submit failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      persistErr.Error(),
			})
		}
		return innerErr
	})
	if !acquired {
		return nil, errors.NewConflictError("会话有进行中的回合", nil)
	}
	if err != nil {
		if s.Stats != nil && nav.IsFaulted() {
			s.Stats.RecordSessionFaulted(nav.Session().GraphID)
		}
		return nil, err
	}

	if s.Stats != nil {
		s.Stats.RecordChoiceSubmitted(nav.Session().GraphID)
		if nav.IsEnded() {
			s.Stats.RecordSessionCompleted(nav.Session().GraphID)
		}
	}
	utils.NewPlayMetrics().RecordTurn(nav.Session().GraphID, "choice")
	return view, nil
}

// GoBack 回退到上一个场景
// 只做只读回溯，不重放任何选择的副作用，玩家状态保持不变。
func (s *SessionService) GoBack(sessionID string) (*models.SessionView, error) {
	nav, err := s.getNavigator(sessionID)
	if err != nil {
		return nil, err
	}

	var view *models.SessionView
	acquired, err := s.Locks.TryExecuteWithSessionLock(sessionID, func() error {
		if innerErr := nav.GoBack(); innerErr != nil {
			return innerErr
		}
		if persistErr := s.persist(nav); persistErr != nil {
			s.logger.Error("persist after goback failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      persistErr.Error(),
			})
		}
		var innerErr error
		view, innerErr = nav.Current()
		return innerErr
	})
	if !acquired {
		return nil, errors.NewConflictError("会话有进行中的回合", nil)
	}
	if err != nil {
		return nil, err
	}

	if s.Stats != nil {
		s.Stats.RecordGoBack(nav.Session().GraphID)
	}
	utils.NewPlayMetrics().RecordTurn(nav.Session().GraphID, "go_back")
	return view, nil
}

// IsEnded 检查会话是否已到达终点场景
func (s *SessionService) IsEnded(sessionID string) (bool, error) {
	nav, err := s.getNavigator(sessionID)
	if err != nil {
		return false, err
	}
	return nav.IsEnded(), nil
}

// Snapshot 生成会话的可序列化快照
// 快照内嵌完整剧本图，可独立于图库恢复。
func (s *SessionService) Snapshot(sessionID string) (*models.SessionSnapshot, error) {
	nav, err := s.getNavigator(sessionID)
	if err != nil {
		return nil, err
	}

	var snapshot *models.SessionSnapshot
	err = s.Locks.ExecuteWithSessionReadLock(sessionID, func() error {
		snapshot = buildSnapshot(nav)
		return nil
	})
	return snapshot, err
}

// Resume 从快照恢复会话
// 恢复后的会话定位到快照记录的场景，历史与玩家状态原样载入。
func (s *SessionService) Resume(snapshot *models.SessionSnapshot) (*models.SessionView, error) {
	if snapshot == nil {
		return nil, errors.NewValidationError("快照不能为空", nil)
	}
	if snapshot.Version > models.SnapshotVersion {
		return nil, errors.NewValidationError("不支持的快照版本", nil)
	}
	if snapshot.Graph == nil {
		return nil, errors.NewValidationError("快照缺少剧本图", nil)
	}

	// 快照内嵌图按外来输入对待，走与导入相同的规范化校验路径
	rawGraph, err := json.Marshal(snapshot.Graph)
	if err != nil {
		return nil, errors.NewGraphParseError("快照内嵌图无法序列化", "", err)
	}
	graph, err := parser.NewNormalizer().Normalize(rawGraph)
	if err != nil {
		return nil, err
	}
	if graph.ID == "" {
		graph.ID = snapshot.GraphID
	}

	session := &models.Session{
		ID:             snapshot.SessionID,
		GraphID:        snapshot.GraphID,
		CurrentSceneID: snapshot.CurrentSceneID,
		History:        snapshot.History,
		State:          snapshot.State,
	}

	nav, err := player.ResumeNavigator(graph, session)
	if err != nil {
		return nil, err
	}

	s.navMutex.Lock()
	s.navigators[session.ID] = nav
	s.navMutex.Unlock()

	if err := s.persist(nav); err != nil {
		return nil, err
	}

	s.logger.Info("session resumed", map[string]interface{}{
		"session_id": session.ID,
		"scene_id":   session.CurrentSceneID,
	})
	return nav.Current()
}

// ListSessions 列出所有已持久化的会话ID
func (s *SessionService) ListSessions() ([]string, error) {
	keys, err := s.Store.Keys("")
	if err != nil {
		return nil, errors.WrapError(err, "读取会话列表失败", errors.ErrorTypeStorage)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteSession 删除会话及其持久化快照
func (s *SessionService) DeleteSession(sessionID string) error {
	s.navMutex.Lock()
	delete(s.navigators, sessionID)
	s.navMutex.Unlock()

	s.Locks.ReleaseSessionLock(sessionID)

	if err := s.Store.Remove(sessionID); err != nil {
		return errors.WrapError(err, "删除会话快照失败", errors.ErrorTypeStorage)
	}

	s.logger.Info("session deleted", map[string]interface{}{"session_id": sessionID})
	return nil
}

// getNavigator 获取会话的导航控制器，不在内存时从快照惰性恢复
func (s *SessionService) getNavigator(sessionID string) (*player.Navigator, error) {
	if sessionID == "" {
		return nil, errors.NewValidationError("会话ID不能为空", nil)
	}

	s.navMutex.RLock()
	nav, exists := s.navigators[sessionID]
	s.navMutex.RUnlock()
	if exists {
		return nav, nil
	}

	// 尝试从持久化快照恢复
	data, err := s.Store.Get(sessionID)
	if err != nil {
		if err == storage.ErrKeyNotFound {
			return nil, errors.NewNotFoundError("会话不存在: "+sessionID, nil)
		}
		return nil, errors.WrapError(err, "读取会话快照失败", errors.ErrorTypeStorage)
	}

	var snapshot models.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.WrapError(err, "解析会话快照失败", errors.ErrorTypeStorage)
	}
	if snapshot.Graph == nil {
		return nil, errors.NewStorageError("会话快照缺少剧本图: "+sessionID, nil)
	}

	session := &models.Session{
		ID:             snapshot.SessionID,
		GraphID:        snapshot.GraphID,
		CurrentSceneID: snapshot.CurrentSceneID,
		History:        snapshot.History,
		State:          snapshot.State,
	}

	nav, err = player.ResumeNavigator(snapshot.Graph, session)
	if err != nil {
		return nil, err
	}

	s.navMutex.Lock()
	// 双重检查，避免并发恢复覆盖
	if existing, ok := s.navigators[sessionID]; ok {
		nav = existing
	} else {
		s.navigators[sessionID] = nav
	}
	s.navMutex.Unlock()

	return nav, nil
}

// persist 将导航控制器当前状态写入快照存储
func (s *SessionService) persist(nav *player.Navigator) error {
	snapshot := buildSnapshot(nav)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.WrapError(err, "序列化会话快照失败", errors.ErrorTypeStorage)
	}

	if err := s.Store.Set(snapshot.SessionID, data); err != nil {
		return errors.WrapError(err, "写入会话快照失败", errors.ErrorTypeStorage)
	}
	return nil
}

func buildSnapshot(nav *player.Navigator) *models.SessionSnapshot {
	session := nav.Session()

	history := make([]string, len(session.History))
	copy(history, session.History)

	return &models.SessionSnapshot{
		Version:        models.SnapshotVersion,
		SessionID:      session.ID,
		GraphID:        session.GraphID,
		Graph:          nav.Graph(),
		CurrentSceneID: session.CurrentSceneID,
		History:        history,
		State:          session.State.Clone(),
		SavedAt:        time.Now(),
	}
}
