// internal/services/graph_service_test.go
package services

import (
	"os"
	"testing"

	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
)

func setupGraphTest(t *testing.T) *GraphService {
	tempDir, err := os.MkdirTemp("", "graph_service_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })
	return NewGraphService(tempDir)
}

const validGraphJSON = `{
	"meta": {"title": "rainy alley", "start": "1-1"},
	"scenes": {
		"1-1": {
			"dialogue": [["narrator", "you stand at the alley mouth"]],
			"choices": [
				{"id": "go", "text": "step in", "delta": {"courage": 1}, "next": "1-2"},
				{"id": "stay", "text": "stay put", "next": "1-3"}
			]
		},
		"1-2": {"dialogue": [["narrator", "deep in the alley"]]},
		"1-3": {"dialogue": [["narrator", "you walk away"]]}
	}
}`

// TestImportGraph 测试导入、落盘与读回
func TestImportGraph(t *testing.T) {
	service := setupGraphTest(t)

	graph, warnings, err := service.ImportGraph([]byte(validGraphJSON))
	if err != nil {
		t.Fatalf("导入失败: %v", err)
	}
	if graph.ID == "" {
		t.Fatal("导入的图应分配ID")
	}
	if len(warnings) != 0 {
		t.Errorf("规范输入不应产生警告: %v", warnings)
	}

	loaded, err := service.LoadGraph(graph.ID)
	if err != nil {
		t.Fatalf("读回失败: %v", err)
	}
	if len(loaded.Scenes) != 3 {
		t.Errorf("读回的场景数不对: %d", len(loaded.Scenes))
	}
	if loaded.Meta == nil || loaded.Meta.Title != "rainy alley" {
		t.Errorf("meta 丢失: %+v", loaded.Meta)
	}
}

// TestImportGraphRepaired 带围栏的输入经修复后也能导入
func TestImportGraphRepaired(t *testing.T) {
	service := setupGraphTest(t)

	raw := "```json\n" + validGraphJSON + "\n```"
	graph, _, err := service.ImportGraph([]byte(raw))
	if err != nil {
		t.Fatalf("修复后导入失败: %v", err)
	}
	if len(graph.Scenes) != 3 {
		t.Errorf("场景数不对: %d", len(graph.Scenes))
	}
}

// TestImportGraphDanglingReference 悬空引用在导入时即被拒绝
func TestImportGraphDanglingReference(t *testing.T) {
	service := setupGraphTest(t)

	raw := `{"a": {"dialogue": [], "choices": [{"id": "c", "text": "x", "next": "nowhere"}]}}`
	_, _, err := service.ImportGraph([]byte(raw))
	if !apperrors.IsDanglingReferenceError(err) {
		t.Errorf("应报悬空引用: %v", err)
	}
}

// TestImportGraphUnparseable 无法解析的输入返回 GraphParseError
func TestImportGraphUnparseable(t *testing.T) {
	service := setupGraphTest(t)

	_, _, err := service.ImportGraph([]byte("not a graph at all"))
	if !apperrors.IsGraphParseError(err) {
		t.Errorf("应报解析错误: %v", err)
	}
}

// TestValidateGraph 测试结构校验的各个分支
func TestValidateGraph(t *testing.T) {
	service := setupGraphTest(t)

	if err := service.ValidateGraph(&models.StoryGraph{}); !apperrors.IsGraphParseError(err) {
		t.Errorf("空图应报解析错误: %v", err)
	}

	// failNext 指向不存在的场景
	graph := &models.StoryGraph{
		Scenes: map[string]*models.Scene{
			"a": {ID: "a", Choices: []*models.Choice{
				{ID: "c", Text: "x", Condition: map[string]int{"k": 1}, Next: "b", FailNext: "ghost"},
			}},
			"b": {ID: "b"},
		},
	}
	if err := service.ValidateGraph(graph); !apperrors.IsDanglingReferenceError(err) {
		t.Errorf("悬空的 failNext 应报悬空引用: %v", err)
	}

	// next 为空
	graph.Scenes["a"].Choices[0].FailNext = "b"
	graph.Scenes["a"].Choices[0].Next = ""
	if err := service.ValidateGraph(graph); !apperrors.IsGraphParseError(err) {
		t.Errorf("空 next 应报解析错误: %v", err)
	}
}

// TestListAndDeleteGraphs 测试列举与删除
func TestListAndDeleteGraphs(t *testing.T) {
	service := setupGraphTest(t)

	first, _, err := service.ImportGraph([]byte(validGraphJSON))
	if err != nil {
		t.Fatalf("导入失败: %v", err)
	}
	if _, _, err := service.ImportGraph([]byte(`{"solo": {"dialogue": []}}`)); err != nil {
		t.Fatalf("导入失败: %v", err)
	}

	summaries, err := service.ListGraphs()
	if err != nil {
		t.Fatalf("列举失败: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("应列出 2 个图，实际: %d", len(summaries))
	}
	// 无meta的图排在前面（空标题），标题与场景数都应正常给出
	if summaries[0].Title != "" || summaries[0].SceneCount != 1 {
		t.Errorf("无meta图的摘要不对: %+v", summaries[0])
	}
	if summaries[1].Title != "rainy alley" {
		t.Errorf("有meta图的标题不对: %+v", summaries[1])
	}

	if err := service.DeleteGraph(first.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if _, err := service.LoadGraph(first.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("删除后加载应报未找到: %v", err)
	}

	summaries, _ = service.ListGraphs()
	if len(summaries) != 1 {
		t.Errorf("删除后应剩 1 个图，实际: %d", len(summaries))
	}
}

// TestListGraphsWithoutMeta 裸场景映射导入的图没有meta，列举不应出错
func TestListGraphsWithoutMeta(t *testing.T) {
	service := setupGraphTest(t)

	raw := `{"1-1": {"dialogue": [["narrator", "hi"]], "choices": null}}`
	graph, _, err := service.ImportGraph([]byte(raw))
	if err != nil {
		t.Fatalf("导入失败: %v", err)
	}
	if graph.Meta != nil {
		t.Fatalf("裸场景映射不应合成meta: %+v", graph.Meta)
	}

	summaries, err := service.ListGraphs()
	if err != nil {
		t.Fatalf("列举失败: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("应列出 1 个图，实际: %d", len(summaries))
	}
	if summaries[0].Title != "" || summaries[0].Theme != "" {
		t.Errorf("无meta图的标题与主题应为空: %+v", summaries[0])
	}
	if summaries[0].SceneCount != 1 {
		t.Errorf("场景数不对: %d", summaries[0].SceneCount)
	}
}

// TestLoadGraphMissing 加载不存在的图报未找到
func TestLoadGraphMissing(t *testing.T) {
	service := setupGraphTest(t)

	if _, err := service.LoadGraph("ghost"); !apperrors.IsNotFoundError(err) {
		t.Errorf("应报未找到: %v", err)
	}
}
