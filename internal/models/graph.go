// internal/models/graph.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StoryGraph 表示一个完整的可玩单元（一幕）。
// 场景映射无序；入口场景由 Meta.Start 或字典序最小的场景ID决定。
type StoryGraph struct {
	ID     string            `json:"id,omitempty"`
	Meta   *GraphMeta        `json:"meta,omitempty"`
	Scenes map[string]*Scene `json:"scenes"`
}

// GraphMeta 表示故事图的可选元数据块
type GraphMeta struct {
	Title     string   `json:"title,omitempty"`
	Theme     string   `json:"theme,omitempty"`     // 主题标签
	Start     string   `json:"start,omitempty"`     // 显式入口场景ID
	Variables []string `json:"variables,omitempty"` // 声明的变量名
}

// Scene 表示故事图中的一个节点：对白加可选的分支选择。
// Choices 为 nil 表示该场景是本幕的终点。
type Scene struct {
	ID       string         `json:"id"`
	Setting  string         `json:"setting,omitempty"` // 背景描述，由外部渲染器消费
	Dialogue []DialogueLine `json:"dialogue"`
	Choices  []*Choice      `json:"choices"`
}

// IsTerminal 报告该场景是否没有出边
func (s *Scene) IsTerminal() bool {
	return len(s.Choices) == 0
}

// FindChoice 按ID查找选择，未找到返回 nil
func (s *Scene) FindChoice(choiceID string) *Choice {
	for _, c := range s.Choices {
		if c.ID == choiceID {
			return c
		}
	}
	return nil
}

// sceneAlias 处理历史导出格式中的字段别名（bg vs setting）
type sceneAlias struct {
	ID       string         `json:"id"`
	Setting  string         `json:"setting"`
	BG       string         `json:"bg"`
	Dialogue []DialogueLine `json:"dialogue"`
	Choices  []*Choice      `json:"choices"`
}

// UnmarshalJSON 接受 "setting" 或旧版 "bg" 字段
func (s *Scene) UnmarshalJSON(data []byte) error {
	var alias sceneAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	s.ID = alias.ID
	s.Setting = alias.Setting
	if s.Setting == "" {
		s.Setting = alias.BG
	}
	s.Dialogue = alias.Dialogue
	s.Choices = alias.Choices
	return nil
}

// DialogueLine 表示一行对白。
// 线格式是 [speaker, text] 两元组；为容错也接受对象形式。
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// MarshalJSON 按线格式输出 [speaker, text]
func (d DialogueLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{d.Speaker, d.Text})
}

// UnmarshalJSON 接受 [speaker, text] 两元组或 {speaker, text} 对象
func (d *DialogueLine) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err == nil {
		switch len(pair) {
		case 2:
			d.Speaker, d.Text = pair[0], pair[1]
			return nil
		case 1:
			// 只有文本，没有说话人
			d.Speaker, d.Text = "", pair[0]
			return nil
		case 0:
			return fmt.Errorf("empty dialogue entry")
		default:
			// 多余元素并入文本
			d.Speaker = pair[0]
			d.Text = strings.Join(pair[1:], " ")
			return nil
		}
	}

	var obj struct {
		Speaker string `json:"speaker"`
		Name    string `json:"name"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("dialogue entry is neither pair nor object: %w", err)
	}

	d.Speaker = obj.Speaker
	if d.Speaker == "" {
		d.Speaker = obj.Name
	}
	d.Text = obj.Text
	return nil
}

// Choice 表示玩家可选的一条出边。
// Condition 是各变量最小值的合取门槛；不满足且存在 FailNext 时走 FailNext。
// Delta 在选择时无条件地加到玩家状态上（不受条件结果影响）。
type Choice struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Delta     map[string]int `json:"delta,omitempty"`
	Condition map[string]int `json:"condition,omitempty"`
	Next      string         `json:"next"`
	FailNext  string         `json:"failNext,omitempty"`
}

// choiceAlias 处理历史导出格式中的 fail_next 别名
type choiceAlias struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Delta     map[string]int `json:"delta"`
	Condition map[string]int `json:"condition"`
	Next      string         `json:"next"`
	FailNext  string         `json:"failNext"`
	FailSnake string         `json:"fail_next"`
}

// UnmarshalJSON 接受 "failNext" 或旧版 "fail_next" 字段
func (c *Choice) UnmarshalJSON(data []byte) error {
	var alias choiceAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	c.ID = alias.ID
	c.Text = alias.Text
	c.Delta = alias.Delta
	c.Condition = alias.Condition
	c.Next = alias.Next
	c.FailNext = alias.FailNext
	if c.FailNext == "" {
		c.FailNext = alias.FailSnake
	}
	return nil
}

// StartSceneID 返回图的入口场景ID：
// 优先使用 Meta.Start（且必须存在于图中），否则取字典序最小的场景ID。
func (g *StoryGraph) StartSceneID() string {
	if g.Meta != nil && g.Meta.Start != "" {
		if _, ok := g.Scenes[g.Meta.Start]; ok {
			return g.Meta.Start
		}
	}

	first := ""
	for id := range g.Scenes {
		if first == "" || id < first {
			first = id
		}
	}
	return first
}

// Scene 按ID返回场景，未找到返回 nil
func (g *StoryGraph) Scene(sceneID string) *Scene {
	if g == nil || g.Scenes == nil {
		return nil
	}
	return g.Scenes[sceneID]
}
