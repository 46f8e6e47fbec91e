// internal/player/state.go
package player

import (
	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// StateStore 持有一次会话的三个数值变量命名空间（关系、物品、技能）。
// 增量合并是纯函数式的：每次 ApplyDelta 产生新状态，旧状态不被修改，
// 因此先 {a:+1} 再 {a:+1} 与一次 {a:+2} 等价，且与顺序无关。
// 合并绝不丢弃已有键：只有增量点名的键会变化。
type StateStore struct {
	state  *models.PlayerState
	logger *utils.Logger
}

// NewStateStore 创建持有空状态的存储
func NewStateStore() *StateStore {
	return &StateStore{
		state:  models.NewPlayerState(),
		logger: utils.GetLogger(),
	}
}

// NewStateStoreFrom 从已有状态创建存储（恢复存档时使用）
func NewStateStoreFrom(state *models.PlayerState) *StateStore {
	return &StateStore{
		state:  state.Normalized(),
		logger: utils.GetLogger(),
	}
}

// State 返回当前状态（调用方不得直接修改）
func (s *StateStore) State() *models.PlayerState {
	return s.state
}

// Get 返回指定命名空间中某个键的值，未知键为 0
func (s *StateStore) Get(ns models.Namespace, key string) int {
	m := s.state.NamespaceMap(ns)
	if m == nil {
		return 0
	}
	return m[key]
}

// Lookup 按固定优先级（关系 → 物品 → 技能）跨命名空间查找变量。
// 线格式的条件/增量键不带命名空间前缀，第一个包含该键的命名空间胜出；
// 三处都不存在时值为 0，返回的 found 为 false。
func (s *StateStore) Lookup(key string) (value int, ns models.Namespace, found bool) {
	for _, candidate := range models.NamespacePrecedence {
		m := s.state.NamespaceMap(candidate)
		if v, ok := m[key]; ok {
			return v, candidate, true
		}
	}
	return 0, "", false
}

// ApplyDelta 把增量加到当前状态上并返回新状态（纯合并，不改旧状态）。
// 每个键按 Lookup 的优先级路由到所在命名空间；三处都没有的键
// 落入关系命名空间并产生 StateMergeWarning，而不是被静默丢弃。
func (s *StateStore) ApplyDelta(delta map[string]int) *models.PlayerState {
	next, warnings := s.applyDelta(delta)
	for _, w := range warnings {
		s.logger.Warn(w.Error(), map[string]interface{}{"component": "state_store"})
	}
	s.state = next
	return next
}

// ApplyDeltaWithWarnings 同 ApplyDelta，但把警告返回给调用方
func (s *StateStore) ApplyDeltaWithWarnings(delta map[string]int) (*models.PlayerState, []*apperrors.StateMergeWarning) {
	next, warnings := s.applyDelta(delta)
	s.state = next
	return next, warnings
}

func (s *StateStore) applyDelta(delta map[string]int) (*models.PlayerState, []*apperrors.StateMergeWarning) {
	next := s.state.Clone()
	if len(delta) == 0 {
		return next, nil
	}

	var warnings []*apperrors.StateMergeWarning
	for key, adjustment := range delta {
		_, ns, found := s.Lookup(key)
		if !found {
			ns = models.NamespaceRelationships
			warnings = append(warnings, &apperrors.StateMergeWarning{
				Variable:  key,
				Namespace: string(ns),
				Context:   "delta",
			})
		}
		next.NamespaceMap(ns)[key] += adjustment
	}
	return next, warnings
}

// Replace 整体替换状态。仅在恢复存档时使用，绝不在会话中途调用。
func (s *StateStore) Replace(state *models.PlayerState) {
	s.state = state.Normalized()
}
