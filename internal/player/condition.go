// internal/player/condition.go
package player

import (
	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
)

// EvalCondition 判定选择的门槛条件是否满足。
// 条件缺失（nil 或空）恒为满足；否则对每个 (变量, 门槛) 要求
// 当前值 >= 门槛，全部成立才算满足（合取）。
// 变量按 StateStore.Lookup 的跨命名空间优先级取值，未知变量按 0 处理
// 并产生 StateMergeWarning，生成图里的笔误应让作者看见。
func (s *StateStore) EvalCondition(condition map[string]int) bool {
	ok, warnings := s.evalCondition(condition)
	for _, w := range warnings {
		s.logger.Warn(w.Error(), map[string]interface{}{"component": "condition"})
	}
	return ok
}

// EvalConditionWithWarnings 同 EvalCondition，但把警告返回给调用方
func (s *StateStore) EvalConditionWithWarnings(condition map[string]int) (bool, []*apperrors.StateMergeWarning) {
	return s.evalCondition(condition)
}

func (s *StateStore) evalCondition(condition map[string]int) (bool, []*apperrors.StateMergeWarning) {
	if len(condition) == 0 {
		return true, nil
	}

	satisfied := true
	var warnings []*apperrors.StateMergeWarning
	for key, threshold := range condition {
		value, ns, found := s.Lookup(key)
		if !found {
			warnings = append(warnings, &apperrors.StateMergeWarning{
				Variable:  key,
				Namespace: string(ns),
				Context:   "condition",
			})
		}
		if value < threshold {
			satisfied = false
			// 继续扫描，把所有未知变量的警告收齐
		}
	}
	return satisfied, warnings
}
