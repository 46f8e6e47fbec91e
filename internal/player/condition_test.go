// internal/player/condition_test.go
package player

import (
	"testing"

	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// TestEvalConditionAbsent 条件缺失恒为满足
func TestEvalConditionAbsent(t *testing.T) {
	store := NewStateStore()

	if !store.EvalCondition(nil) {
		t.Error("nil 条件应恒为满足")
	}
	if !store.EvalCondition(map[string]int{}) {
		t.Error("空条件应恒为满足")
	}
}

// TestEvalConditionThreshold 单变量门槛按 >= 比较
func TestEvalConditionThreshold(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["trust"] = 2
	store := NewStateStoreFrom(state)

	cases := []struct {
		threshold int
		want      bool
	}{
		{1, true},
		{2, true}, // 刚好达到门槛
		{3, false},
		{0, true},
		{-1, true},
	}
	for _, tc := range cases {
		if got := store.EvalCondition(map[string]int{"trust": tc.threshold}); got != tc.want {
			t.Errorf("trust=2 对门槛 %d 应为 %v，实际: %v", tc.threshold, tc.want, got)
		}
	}
}

// TestEvalConditionConjunctive 多变量条件是合取：任何一项不满足即整体不满足
func TestEvalConditionConjunctive(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["trust"] = 3
	state.Skills["stealth"] = 1
	store := NewStateStoreFrom(state)

	if !store.EvalCondition(map[string]int{"trust": 2, "stealth": 1}) {
		t.Error("两项都满足时整体应满足")
	}
	if store.EvalCondition(map[string]int{"trust": 2, "stealth": 5}) {
		t.Error("stealth 不满足时整体应不满足")
	}
}

// TestEvalConditionUnknownVariable 未知变量按 0 处理并产生警告
func TestEvalConditionUnknownVariable(t *testing.T) {
	store := NewStateStore()

	ok, warnings := store.EvalConditionWithWarnings(map[string]int{"ghost": 1})
	if ok {
		t.Error("未知变量按 0 处理，门槛 1 不应满足")
	}
	if len(warnings) != 1 || warnings[0].Variable != "ghost" {
		t.Errorf("应产生指向 ghost 的警告，实际: %v", warnings)
	}

	// 0 门槛对未知变量仍满足（0 >= 0）
	ok, _ = store.EvalConditionWithWarnings(map[string]int{"ghost": 0})
	if !ok {
		t.Error("未知变量对门槛 0 应满足")
	}
}

// TestEvalConditionMonotonic 已满足的条件在非负增量后保持满足
func TestEvalConditionMonotonic(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["trust"] = 2
	state.Skills["stealth"] = 1
	store := NewStateStoreFrom(state)

	condition := map[string]int{"trust": 2, "stealth": 1}
	if !store.EvalCondition(condition) {
		t.Fatal("初始状态应满足条件")
	}

	deltas := []map[string]int{
		{"trust": 0},
		{"trust": 1},
		{"trust": 3, "stealth": 2},
	}
	for _, delta := range deltas {
		next := NewStateStoreFrom(store.ApplyDelta(delta))
		if !store.EvalCondition(condition) {
			t.Errorf("应用增量不应改变原状态的判定: %v", delta)
		}
		if !next.EvalCondition(condition) {
			t.Errorf("非负增量 %v 后条件应保持满足", delta)
		}
		store = next
	}
}

// TestEvalConditionCrossNamespace 条件变量按跨命名空间优先级取值
func TestEvalConditionCrossNamespace(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["key"] = 0
	state.Inventory["key"] = 5
	store := NewStateStoreFrom(state)

	// 关系命名空间在先，值为 0，门槛 1 不满足
	if store.EvalCondition(map[string]int{"key": 1}) {
		t.Error("关系命名空间的 key=0 应遮蔽物品命名空间的 key=5")
	}
}
