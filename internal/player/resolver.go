// internal/player/resolver.go
package player

import (
	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// ResolveResult 是一次选择结算的输出
type ResolveResult struct {
	State        *models.PlayerState // 结算后的新玩家状态
	NextSceneID  string              // 选定的下一个场景ID
	ConditionMet bool                // 门槛条件是否满足（无条件时为 true）
	UsedFailNext bool                // 是否走了 failNext 分支
}

// ResolveChoice 结算一个选择。确定性，无任何隐藏随机：
//
//  1. 求值门槛条件；
//  2. 满足或无条件时选 next；不满足时选 failNext（若有），否则回落到 next
//     （没有 failNext 的条件从不阻断前进）；
//  3. 无论走哪个分支，都把增量应用到玩家状态（增量不受条件结果门控，
//     作者要门控效果就在失败分支的目标场景里省略增量）。
//
// 选定目标在图中不存在时返回 DanglingReferenceError，且玩家状态保持不变：
// 一次结算要么完整生效，要么完全不生效。
func (s *StateStore) ResolveChoice(graph *models.StoryGraph, scene *models.Scene, choice *models.Choice) (*ResolveResult, error) {
	conditionMet := s.EvalCondition(choice.Condition)

	target := choice.Next
	usedFail := false
	if !conditionMet && len(choice.Condition) > 0 && choice.FailNext != "" {
		target = choice.FailNext
		usedFail = true
	}

	// 先验证目标再应用增量，保证失败时状态不变
	if graph.Scene(target) == nil {
		return nil, apperrors.NewDanglingReferenceError(target, scene.ID, choice.ID)
	}

	next := s.ApplyDelta(choice.Delta)

	return &ResolveResult{
		State:        next,
		NextSceneID:  target,
		ConditionMet: conditionMet,
		UsedFailNext: usedFail,
	}, nil
}
