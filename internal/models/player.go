// internal/models/player.go
package models

// Namespace 表示玩家状态的变量命名空间
type Namespace string

const (
	NamespaceRelationships Namespace = "relationships"
	NamespaceInventory     Namespace = "inventory"
	NamespaceSkills        Namespace = "skills"
)

// NamespacePrecedence 是跨命名空间变量查找的固定优先级。
// 线格式里的条件/增量键不带命名空间前缀，按此顺序取第一个包含该键的
// 命名空间（关系 → 物品 → 技能）。这是格式本身的歧义，规则必须固定。
var NamespacePrecedence = []Namespace{
	NamespaceRelationships,
	NamespaceInventory,
	NamespaceSkills,
}

// PlayerState 表示一次会话中随故事推进的三个独立数值命名空间。
// 缺失的键隐式为 0。只能由选择结算逻辑通过增量修改，
// 或在恢复存档时整体替换。
type PlayerState struct {
	Relationships map[string]int `json:"relationships"`
	Inventory     map[string]int `json:"inventory"`
	Skills        map[string]int `json:"skills"`
}

// NewPlayerState 创建空的玩家状态
func NewPlayerState() *PlayerState {
	return &PlayerState{
		Relationships: make(map[string]int),
		Inventory:     make(map[string]int),
		Skills:        make(map[string]int),
	}
}

// Clone 返回深拷贝
func (ps *PlayerState) Clone() *PlayerState {
	if ps == nil {
		return NewPlayerState()
	}

	clone := NewPlayerState()
	for k, v := range ps.Relationships {
		clone.Relationships[k] = v
	}
	for k, v := range ps.Inventory {
		clone.Inventory[k] = v
	}
	for k, v := range ps.Skills {
		clone.Skills[k] = v
	}
	return clone
}

// NamespaceMap 返回指定命名空间的底层映射，未知命名空间返回 nil
func (ps *PlayerState) NamespaceMap(ns Namespace) map[string]int {
	switch ns {
	case NamespaceRelationships:
		return ps.Relationships
	case NamespaceInventory:
		return ps.Inventory
	case NamespaceSkills:
		return ps.Skills
	default:
		return nil
	}
}

// normalize 确保所有映射非 nil（反序列化后可能缺失）
func (ps *PlayerState) normalize() {
	if ps.Relationships == nil {
		ps.Relationships = make(map[string]int)
	}
	if ps.Inventory == nil {
		ps.Inventory = make(map[string]int)
	}
	if ps.Skills == nil {
		ps.Skills = make(map[string]int)
	}
}

// Normalized 返回保证映射非 nil 的状态（原地修复）
func (ps *PlayerState) Normalized() *PlayerState {
	if ps == nil {
		return NewPlayerState()
	}
	ps.normalize()
	return ps
}
