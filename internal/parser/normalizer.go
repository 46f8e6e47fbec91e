// internal/parser/normalizer.go
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

// Normalizer 把历史上出现过的几种故事图形态归一为唯一的规范内存表示。
// 识别三种形态：
//
//	(a) 场景ID到场景的直接映射（当前规范形态）
//	(b) 旧版有序场景列表，每个场景自带 id 字段
//	(c) 带 meta 与无关导出元数据的包装对象，需解包
//
// 输入先经过一次尽力修复（repair.go），修复加解析都失败时返回
// GraphParseError 并保留原始文本。松散类型的数据不会越过此边界。
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer 创建图归一化器
func NewNormalizer() *Normalizer {
	return &Normalizer{
		logger: utils.GetLogger(),
	}
}

// Result 是一次归一化的输出：规范图加非致命警告
type Result struct {
	Graph    *models.StoryGraph
	Warnings []string
}

// Normalize 解析并归一化原始文本，返回规范 StoryGraph。
// 警告（场景ID与键不一致等）记入日志，不视为失败。
func (n *Normalizer) Normalize(raw []byte) (*models.StoryGraph, error) {
	result, err := n.NormalizeWithWarnings(raw)
	if err != nil {
		return nil, err
	}
	return result.Graph, nil
}

// NormalizeWithWarnings 同 Normalize，但把警告一并返回给调用方
func (n *Normalizer) NormalizeWithWarnings(raw []byte) (*Result, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, apperrors.NewGraphParseError("empty input", string(raw), nil)
	}

	// 先尝试严格解析，失败再走修复路径
	doc, err := decodeDocument([]byte(text))
	if err != nil {
		repaired := Repair(text)
		if repaired == "" {
			return nil, apperrors.NewGraphParseError("input is not structured text", string(raw), err)
		}
		doc, err = decodeDocument([]byte(repaired))
		if err != nil {
			return nil, apperrors.NewGraphParseError("repair and parse both failed", string(raw), err)
		}
	}

	result, err := n.buildGraph(doc, string(raw))
	if err != nil {
		return nil, err
	}

	for _, w := range result.Warnings {
		n.logger.Warn(w, map[string]interface{}{"component": "normalizer"})
	}
	return result, nil
}

// NormalizeValue 归一化一个已解析的对象（如生成服务直接产出的结构）。
// 走与文本输入相同的校验路径。
func (n *Normalizer) NormalizeValue(v interface{}) (*models.StoryGraph, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.NewGraphParseError("value is not serializable", "", err)
	}
	return n.Normalize(data)
}

// document 是形态判定用的中间表示
type document struct {
	raw       []byte
	isArray   bool
	topObject map[string]json.RawMessage
}

// decodeDocument 只判定顶层形态，不展开场景
func decodeDocument(data []byte) (*document, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		// 旧版列表形态，此处只验证是合法数组
		var probe []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
			return nil, err
		}
		return &document{raw: []byte(trimmed), isArray: true}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, err
	}
	return &document{raw: []byte(trimmed), topObject: obj}, nil
}

// buildGraph 把判定后的文档展开为规范图并做结构校验
func (n *Normalizer) buildGraph(doc *document, original string) (*Result, error) {
	result := &Result{}

	switch {
	case doc.isArray:
		scenes, warnings, err := decodeSceneList(doc.raw)
		if err != nil {
			return nil, apperrors.NewGraphParseError("legacy scene list is malformed", original, err)
		}
		result.Graph = &models.StoryGraph{Scenes: scenes}
		result.Warnings = warnings

	case doc.topObject != nil:
		if rawScenes, ok := doc.topObject["scenes"]; ok {
			// 包装形态：取 scenes 与可选 meta，忽略其余导出元数据
			graph, warnings, err := decodeWrapped(doc.topObject, rawScenes, original)
			if err != nil {
				return nil, err
			}
			result.Graph = graph
			result.Warnings = warnings
		} else {
			scenes, warnings, err := decodeSceneMap(doc.raw)
			if err != nil {
				return nil, apperrors.NewGraphParseError("scene mapping is malformed", original, err)
			}
			result.Graph = &models.StoryGraph{Scenes: scenes}
			result.Warnings = warnings
		}

	default:
		return nil, apperrors.NewGraphParseError("unrecognized document shape", original, nil)
	}

	if len(result.Graph.Scenes) == 0 {
		return nil, apperrors.NewGraphParseError("graph contains no scenes", original, nil)
	}

	normalizeTerminalScenes(result.Graph)
	return result, nil
}

// decodeWrapped 处理 {meta, scenes, ...} 包装形态
func decodeWrapped(top map[string]json.RawMessage, rawScenes json.RawMessage, original string) (*models.StoryGraph, []string, error) {
	graph := &models.StoryGraph{}

	if rawMeta, ok := top["meta"]; ok {
		var meta models.GraphMeta
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, nil, apperrors.NewGraphParseError("meta block is malformed", original, err)
		}
		graph.Meta = &meta
	}
	if rawID, ok := top["id"]; ok {
		// 图ID可选，类型错误不致命
		_ = json.Unmarshal(rawID, &graph.ID)
	}

	trimmed := strings.TrimSpace(string(rawScenes))
	var scenes map[string]*models.Scene
	var warnings []string
	var err error
	if strings.HasPrefix(trimmed, "[") {
		scenes, warnings, err = decodeSceneList(rawScenes)
	} else {
		scenes, warnings, err = decodeSceneMap(rawScenes)
	}
	if err != nil {
		return nil, nil, apperrors.NewGraphParseError("wrapped scenes block is malformed", original, err)
	}

	graph.Scenes = scenes
	return graph, warnings, nil
}

// decodeSceneMap 解析场景ID到场景的映射，并把场景ID与键对齐
func decodeSceneMap(data []byte) (map[string]*models.Scene, []string, error) {
	var scenes map[string]*models.Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, nil, err
	}

	var warnings []string
	for key, scene := range scenes {
		if scene == nil {
			return nil, nil, fmt.Errorf("scene %q is null", key)
		}
		if key == "" {
			return nil, nil, fmt.Errorf("scene mapping contains an empty key")
		}
		// 键为准：ID缺失或不一致时修正为键，记警告而非失败
		if scene.ID != key {
			if scene.ID != "" {
				warnings = append(warnings,
					fmt.Sprintf("scene id %q does not match mapping key %q, corrected to key", scene.ID, key))
			}
			scene.ID = key
		}
	}
	return scenes, warnings, nil
}

// decodeSceneList 把旧版有序场景列表转换为映射形态
func decodeSceneList(data []byte) (map[string]*models.Scene, []string, error) {
	var list []*models.Scene
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, nil, err
	}

	scenes := make(map[string]*models.Scene, len(list))
	var warnings []string
	for i, scene := range list {
		if scene == nil {
			return nil, nil, fmt.Errorf("scene at index %d is null", i)
		}
		if scene.ID == "" {
			return nil, nil, fmt.Errorf("scene at index %d has no id", i)
		}
		if _, dup := scenes[scene.ID]; dup {
			warnings = append(warnings,
				fmt.Sprintf("duplicate scene id %q in legacy list, later entry wins", scene.ID))
		}
		scenes[scene.ID] = scene
	}
	return scenes, warnings, nil
}

// normalizeTerminalScenes 把显式空选择数组归一为缺省形态（nil）。
// 二者语义相同：场景是本幕终点。
func normalizeTerminalScenes(graph *models.StoryGraph) {
	for _, scene := range graph.Scenes {
		if scene.Choices != nil && len(scene.Choices) == 0 {
			scene.Choices = nil
		}
		if scene.Dialogue == nil {
			scene.Dialogue = []models.DialogueLine{}
		}
	}
}
