// internal/player/state_test.go
package player

import (
	"testing"

	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

// TestLookupPrecedence 跨命名空间查找按 关系 → 物品 → 技能 的固定优先级
func TestLookupPrecedence(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["karma"] = 1
	state.Skills["karma"] = 9
	state.Inventory["key"] = 2
	store := NewStateStoreFrom(state)

	value, ns, found := store.Lookup("karma")
	if !found || ns != models.NamespaceRelationships || value != 1 {
		t.Errorf("karma 应取关系命名空间的值 1，实际: value=%d ns=%s found=%v", value, ns, found)
	}

	value, ns, found = store.Lookup("key")
	if !found || ns != models.NamespaceInventory || value != 2 {
		t.Errorf("key 应取物品命名空间的值 2，实际: value=%d ns=%s found=%v", value, ns, found)
	}

	if _, _, found = store.Lookup("missing"); found {
		t.Error("未知变量不应被找到")
	}
	if got := store.Get(models.NamespaceSkills, "missing"); got != 0 {
		t.Errorf("未知键应为 0，实际: %d", got)
	}
}

// TestApplyDeltaRouting 增量按查找优先级路由到变量所在的命名空间
func TestApplyDeltaRouting(t *testing.T) {
	state := models.NewPlayerState()
	state.Inventory["coin"] = 3
	state.Skills["stealth"] = 1
	store := NewStateStoreFrom(state)

	next := store.ApplyDelta(map[string]int{"coin": -2, "stealth": 4})

	if next.Inventory["coin"] != 1 {
		t.Errorf("coin 应为 1，实际: %d", next.Inventory["coin"])
	}
	if next.Skills["stealth"] != 5 {
		t.Errorf("stealth 应为 5，实际: %d", next.Skills["stealth"])
	}
	if len(next.Relationships) != 0 {
		t.Errorf("关系命名空间不应被触碰: %v", next.Relationships)
	}
}

// TestApplyDeltaUnknownKey 三个命名空间都没有的键落入关系命名空间并产生警告
func TestApplyDeltaUnknownKey(t *testing.T) {
	store := NewStateStore()

	next, warnings := store.ApplyDeltaWithWarnings(map[string]int{"brand_new": 2})

	if next.Relationships["brand_new"] != 2 {
		t.Errorf("新键应落入关系命名空间，实际: %v", next.Relationships)
	}
	if len(warnings) != 1 {
		t.Fatalf("应产生 1 条合并警告，实际: %d", len(warnings))
	}
	if warnings[0].Variable != "brand_new" {
		t.Errorf("警告应指向 brand_new，实际: %s", warnings[0].Variable)
	}
}

// TestApplyDeltaPureMerge 合并是纯函数式的：旧状态不被修改，且与拆分方式无关
func TestApplyDeltaPureMerge(t *testing.T) {
	initial := models.NewPlayerState()
	initial.Relationships["trust"] = 1

	storeA := NewStateStoreFrom(initial.Clone())
	storeA.ApplyDelta(map[string]int{"trust": 1})
	storeA.ApplyDelta(map[string]int{"trust": 1})

	storeB := NewStateStoreFrom(initial.Clone())
	storeB.ApplyDelta(map[string]int{"trust": 2})

	if a, b := storeA.Get(models.NamespaceRelationships, "trust"), storeB.Get(models.NamespaceRelationships, "trust"); a != b || a != 3 {
		t.Errorf("两次 +1 应等价于一次 +2: a=%d b=%d", a, b)
	}
	if initial.Relationships["trust"] != 1 {
		t.Errorf("初始状态不应被修改，实际: %d", initial.Relationships["trust"])
	}
}

// TestApplyDeltaKeepsOtherKeys 合并绝不丢弃增量没点名的键
func TestApplyDeltaKeepsOtherKeys(t *testing.T) {
	state := models.NewPlayerState()
	state.Relationships["trust"] = 5
	state.Inventory["rope"] = 1
	store := NewStateStoreFrom(state)

	next := store.ApplyDelta(map[string]int{"trust": -1})

	if next.Relationships["trust"] != 4 {
		t.Errorf("trust 应为 4，实际: %d", next.Relationships["trust"])
	}
	if next.Inventory["rope"] != 1 {
		t.Errorf("rope 不应受影响，实际: %d", next.Inventory["rope"])
	}
}

// TestReplaceNormalizes 整体替换会补齐缺失的命名空间映射
func TestReplaceNormalizes(t *testing.T) {
	store := NewStateStore()
	store.Replace(&models.PlayerState{Relationships: map[string]int{"trust": 2}})

	if store.State().Inventory == nil || store.State().Skills == nil {
		t.Error("缺失的命名空间映射应被补齐")
	}
	if got := store.Get(models.NamespaceRelationships, "trust"); got != 2 {
		t.Errorf("替换后的值应保留，实际: %d", got)
	}
}
