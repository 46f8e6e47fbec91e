// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Corphon/StoryPlayerMCP/internal/app"
	"github.com/Corphon/StoryPlayerMCP/internal/config"
	"github.com/Corphon/StoryPlayerMCP/internal/di"
	"github.com/Corphon/StoryPlayerMCP/internal/llm"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/services"
	"github.com/Corphon/StoryPlayerMCP/internal/utils"
)

func main() {
	fmt.Println("🚀 StoryPlayerMCP Console Player")
	fmt.Println("=================================")

	// 选择语言
	selectLanguage()

	// 初始化配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Printf("❌ 加载基础配置失败: %v", err)
		return
	}

	// 初始化日志系统
	logFile := fmt.Sprintf("logs/console_%s.log", time.Now().Format("2006-01-02"))
	if err := utils.InitLogger(logFile); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
		log.Println("继续运行...")
	} else {
		utils.GetLogger().Info("Console player starting", nil)
	}

	// 初始化环境
	if !initializeEnvironment(baseConfig) {
		return
	}

	for {
		showMenu()
		choice := getUserInput(T("input_prompt"))

		switch choice {
		case "1", "graphs":
			manageGraphs()
		case "2", "play":
			playStory()
		case "3", "resume":
			resumeSession()
		case "4", "generate", "ai":
			generateGraph()
		case "5", "export":
			exportData()
		case "6", "stats":
			viewStats()
		case "7", "config":
			viewConfig()
		case "8", "services":
			listServices()
		case "0", "quit", "exit":
			fmt.Println(T("goodbye"))
			return
		default:
			fmt.Println(T("invalid_choice"))
		}
		fmt.Println()
	}
}

// 显示菜单
func showMenu() {
	printBox("", fmt.Sprintf("%s\n  %s\n  %s\n  %s\n  %s\n  %s\n  %s\n  %s\n  %s\n  %s",
		T("menu_title"),
		T("menu_graphs"),
		T("menu_play"),
		T("menu_resume"),
		T("menu_generate"),
		T("menu_export"),
		T("menu_stats"),
		T("menu_config"),
		T("menu_services"),
		T("menu_exit")))
}

// 获取用户输入
func getUserInput(prompt string) string {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

// 获取用户输入 (带默认值)
func getUserInputWithDefault(prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [默认: %s]: ", prompt, defaultValue)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	input := strings.TrimSpace(scanner.Text())
	if input == "" {
		return defaultValue
	}
	return input
}

// 初始化项目环境
func initializeEnvironment(cfg *config.Config) bool {
	fmt.Println("🔧 正在初始化项目环境...")

	// 创建必要的目录
	dirs := []string{
		cfg.DataDir,
		cfg.GraphsDir,
		cfg.ExportDir,
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("❌ 创建目录失败 %s: %v", dir, err)
			return false
		}
	}

	// 初始化配置系统
	if err := config.InitConfig(cfg.DataDir); err != nil {
		log.Printf("❌ 初始化配置系统失败: %v", err)
		return false
	}

	// 初始化服务
	if err := app.InitServices(); err != nil {
		log.Printf("❌ 初始化服务失败: %v", err)
		return false
	}

	fmt.Println("✅ 项目环境初始化成功！")
	utils.GetLogger().Info("Environment initialized successfully", map[string]interface{}{
		"datadir": cfg.DataDir,
	})
	return true
}

// 1. 管理剧本图
func manageGraphs() {
	fmt.Println("📚 管理剧本图")
	container := di.GetContainer()
	graphService, ok := container.Get("graph").(*services.GraphService)
	if !ok {
		fmt.Println("❌ 剧本图服务不可用")
		return
	}

	for {
		printBox("", "1. 列出剧本图\n2. 导入剧本文件\n3. 查看剧本图\n4. 删除剧本图\n0. 返回")
		choice := getUserInput(T("input_prompt"))

		switch choice {
		case "1":
			listGraphs(graphService)
		case "2":
			importGraphFile(graphService)
		case "3":
			showGraph(graphService)
		case "4":
			graphID := getUserInput("请输入要删除的剧本图ID: ")
			if graphID == "" {
				continue
			}
			if confirm := getUserInput("确认删除? (y/N): "); confirm != "y" && confirm != "Y" {
				continue
			}
			if err := graphService.DeleteGraph(graphID); err != nil {
				fmt.Printf("❌ 删除失败: %v\n", err)
			} else {
				fmt.Println("✅ 已删除")
			}
		case "0":
			return
		default:
			fmt.Println(T("invalid_choice"))
		}
		fmt.Println()
	}
}

func listGraphs(graphService *services.GraphService) []models.GraphSummary {
	summaries, err := graphService.ListGraphs()
	if err != nil {
		fmt.Printf("❌ 获取剧本图列表失败: %v\n", err)
		return nil
	}
	if len(summaries) == 0 {
		fmt.Println("（暂无剧本图，先导入或生成一个）")
		return nil
	}

	var lines []string
	for i, summary := range summaries {
		title := summary.Title
		if title == "" {
			title = "(未命名)"
		}
		lines = append(lines, fmt.Sprintf("%d. %s  [%s]  场景数: %d", i+1, title, summary.ID, summary.SceneCount))
	}
	printBox("剧本图列表", strings.Join(lines, "\n"))
	return summaries
}

func importGraphFile(graphService *services.GraphService) {
	path := getUserInput("请输入剧本文件路径: ")
	if path == "" {
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("❌ 读取文件失败: %v\n", err)
		return
	}

	graph, warnings, err := graphService.ImportGraph(raw)
	if err != nil {
		fmt.Printf("❌ 导入失败: %v\n", err)
		return
	}

	for _, warning := range warnings {
		fmt.Printf("⚠️ %s\n", warning)
	}
	fmt.Printf("✅ 导入成功: %s (%d 个场景)\n", graph.ID, len(graph.Scenes))
}

func showGraph(graphService *services.GraphService) {
	graphID := getUserInput("请输入剧本图ID: ")
	if graphID == "" {
		return
	}

	graph, err := graphService.LoadGraph(graphID)
	if err != nil {
		fmt.Printf("❌ 加载剧本图失败: %v\n", err)
		return
	}

	var lines []string
	if graph.Meta != nil {
		lines = append(lines, fmt.Sprintf("标题: %s", graph.Meta.Title))
		if graph.Meta.Theme != "" {
			lines = append(lines, fmt.Sprintf("主题: %s", graph.Meta.Theme))
		}
		if graph.Meta.Start != "" {
			lines = append(lines, fmt.Sprintf("入口场景: %s", graph.Meta.Start))
		}
	}
	lines = append(lines, fmt.Sprintf("场景数: %d", len(graph.Scenes)))

	sceneIDs := make([]string, 0, len(graph.Scenes))
	for id := range graph.Scenes {
		sceneIDs = append(sceneIDs, id)
	}
	sort.Strings(sceneIDs)
	for _, id := range sceneIDs {
		scene := graph.Scenes[id]
		marker := ""
		if scene.IsTerminal() {
			marker = " (终点)"
		}
		lines = append(lines, fmt.Sprintf("  %s: %d 行对白, %d 个选择%s", id, len(scene.Dialogue), len(scene.Choices), marker))
	}
	printBox("剧本图 "+graphID, strings.Join(lines, "\n"))
}

// 2. 开始游玩
func playStory() {
	container := di.GetContainer()
	graphService, ok := container.Get("graph").(*services.GraphService)
	if !ok {
		fmt.Println("❌ 剧本图服务不可用")
		return
	}
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		fmt.Println("❌ 会话服务不可用")
		return
	}

	summaries := listGraphs(graphService)
	if len(summaries) == 0 {
		return
	}

	input := getUserInput("请选择剧本图 (编号或ID): ")
	if input == "" {
		return
	}
	graphID := input
	if index, err := strconv.Atoi(input); err == nil && index >= 1 && index <= len(summaries) {
		graphID = summaries[index-1].ID
	}

	startSceneID := getUserInputWithDefault("入口场景ID", "")
	view, err := sessionService.StartSession(graphID, startSceneID)
	if err != nil {
		fmt.Printf("❌ 开始会话失败: %v\n", err)
		return
	}

	fmt.Printf("🎮 会话已开始: %s\n", view.SessionID)
	playLoop(sessionService, view)
}

// playLoop 游玩主循环：渲染场景、提交选择、回退、存档
func playLoop(sessionService *services.SessionService, view *models.SessionView) {
	for {
		renderScene(view)

		if view.Ended {
			fmt.Println("🏁 本幕已结束。")
			return
		}
		if view.Status == models.StatusFaulted {
			fmt.Println("💥 会话出现故障，无法继续。")
			return
		}

		input := getUserInput("选择编号 (b=回退 s=存档 q=退出): ")
		switch input {
		case "":
			continue
		case "q", "quit":
			return
		case "b", "back":
			next, err := sessionService.GoBack(view.SessionID)
			if err != nil {
				fmt.Printf("⚠️ 回退失败: %v\n", err)
				continue
			}
			view = next
		case "s", "save":
			saveSnapshot(sessionService, view.SessionID)
		default:
			choiceID := input
			if index, err := strconv.Atoi(input); err == nil && index >= 1 && index <= len(view.Choices) {
				choiceID = view.Choices[index-1].ID
			}
			next, err := sessionService.SubmitChoice(view.SessionID, choiceID)
			if err != nil {
				fmt.Printf("⚠️ 提交选择失败: %v\n", err)
				// 故障是终态，刷新一下视图再判断
				if refreshed, viewErr := sessionService.CurrentView(view.SessionID); viewErr == nil {
					view = refreshed
				}
				continue
			}
			view = next
		}
		fmt.Println()
	}
}

// renderScene 渲染当前场景：背景、对白和选择列表
func renderScene(view *models.SessionView) {
	var lines []string
	if view.Setting != "" {
		lines = append(lines, "🎬 "+view.Setting, "")
	}
	for _, line := range view.Dialogue {
		if line.Speaker != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", line.Speaker, line.Text))
		} else {
			lines = append(lines, line.Text)
		}
	}
	printBox("场景 "+view.SceneID, strings.Join(lines, "\n"))

	if len(view.Choices) > 0 {
		var choiceLines []string
		for i, choice := range view.Choices {
			marker := "  "
			if !choice.Available {
				marker = "🔒"
			}
			choiceLines = append(choiceLines, fmt.Sprintf("%s %d. %s", marker, i+1, choice.Text))
		}
		printBox("", strings.Join(choiceLines, "\n"))
	}
}

func saveSnapshot(sessionService *services.SessionService, sessionID string) {
	snapshot, err := sessionService.Snapshot(sessionID)
	if err != nil {
		fmt.Printf("❌ 生成存档失败: %v\n", err)
		return
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		fmt.Printf("❌ 序列化存档失败: %v\n", err)
		return
	}

	defaultPath := fmt.Sprintf("snapshot_%s.json", time.Now().Format("20060102_150405"))
	path := getUserInputWithDefault("存档文件路径", defaultPath)
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Printf("❌ 写入存档失败: %v\n", err)
		return
	}
	fmt.Printf("✅ 存档已保存: %s\n", path)
}

// 3. 恢复会话
func resumeSession() {
	container := di.GetContainer()
	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		fmt.Println("❌ 会话服务不可用")
		return
	}

	printBox("", "1. 从已保存的会话继续\n2. 从存档文件恢复\n0. 返回")
	choice := getUserInput(T("input_prompt"))

	switch choice {
	case "1":
		sessionIDs, err := sessionService.ListSessions()
		if err != nil {
			fmt.Printf("❌ 获取会话列表失败: %v\n", err)
			return
		}
		if len(sessionIDs) == 0 {
			fmt.Println("（暂无已保存的会话）")
			return
		}
		var lines []string
		for i, id := range sessionIDs {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, id))
		}
		printBox("会话列表", strings.Join(lines, "\n"))

		input := getUserInput("请选择会话 (编号或ID): ")
		if input == "" {
			return
		}
		sessionID := input
		if index, err := strconv.Atoi(input); err == nil && index >= 1 && index <= len(sessionIDs) {
			sessionID = sessionIDs[index-1]
		}

		view, err := sessionService.CurrentView(sessionID)
		if err != nil {
			fmt.Printf("❌ 恢复会话失败: %v\n", err)
			return
		}
		playLoop(sessionService, view)

	case "2":
		path := getUserInput("请输入存档文件路径: ")
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("❌ 读取存档失败: %v\n", err)
			return
		}

		var snapshot models.SessionSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			fmt.Printf("❌ 解析存档失败: %v\n", err)
			return
		}

		view, err := sessionService.Resume(&snapshot)
		if err != nil {
			fmt.Printf("❌ 恢复会话失败: %v\n", err)
			return
		}
		fmt.Printf("🎮 会话已恢复: %s\n", view.SessionID)
		playLoop(sessionService, view)
	}
}

// 4. 生成剧本图
func generateGraph() {
	container := di.GetContainer()
	generationService, ok := container.Get("generation").(*services.GenerationService)
	if !ok {
		fmt.Println("❌ 生成服务不可用")
		return
	}
	if !generationService.IsReady() {
		fmt.Println("⚠️ 剧本生成提供者未配置。")
		fmt.Printf("可用提供者: %s\n", strings.Join(llm.GetAvailableProviders(), ", "))
		return
	}

	theme := getUserInputWithDefault("剧本主题", "adventure")
	sceneCountStr := getUserInputWithDefault("场景数量", "5")
	sceneCount, err := strconv.Atoi(sceneCountStr)
	if err != nil || sceneCount <= 0 {
		sceneCount = 5
	}

	fmt.Println("🤖 正在生成剧本，请稍候...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	graph, warnings, err := generationService.GenerateGraph(ctx, llm.ScriptRequest{
		Theme:      theme,
		SceneCount: sceneCount,
	})
	if err != nil {
		fmt.Printf("❌ 生成失败: %v\n", err)
		return
	}

	for _, warning := range warnings {
		fmt.Printf("⚠️ %s\n", warning)
	}
	fmt.Printf("✅ 生成成功: %s (%d 个场景)\n", graph.ID, len(graph.Scenes))
}

// 5. 导出
func exportData() {
	container := di.GetContainer()
	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		fmt.Println("❌ 导出服务不可用")
		return
	}

	kind := getUserInputWithDefault("导出类型 (graph/session)", "graph")
	id := getUserInput("请输入ID: ")
	if id == "" {
		return
	}
	format := getUserInputWithDefault("导出格式 (json/yaml)", "json")

	var result *models.ExportResult
	var err error
	switch kind {
	case "session":
		result, err = exportService.ExportSession(id, format)
	default:
		result, err = exportService.ExportGraph(id, format)
	}
	if err != nil {
		fmt.Printf("❌ 导出失败: %v\n", err)
		return
	}

	fmt.Printf("✅ 导出成功: %s (%d 字节)\n", result.FilePath, result.FileSize)
}

// 6. 查看统计
func viewStats() {
	container := di.GetContainer()
	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		fmt.Println("❌ 统计服务不可用")
		return
	}

	stats := statsService.GetPlayStats()
	lines := []string{
		fmt.Sprintf("开始的会话: %d", stats.SessionsStarted),
		fmt.Sprintf("完成的会话: %d", stats.SessionsCompleted),
		fmt.Sprintf("故障的会话: %d", stats.SessionsFaulted),
		fmt.Sprintf("提交的选择: %d", stats.ChoicesSubmitted),
		fmt.Sprintf("回退次数:   %d", stats.GoBackCount),
	}
	if len(stats.PerGraph) > 0 {
		lines = append(lines, "", "按剧本图统计:")
		graphIDs := make([]string, 0, len(stats.PerGraph))
		for id := range stats.PerGraph {
			graphIDs = append(graphIDs, id)
		}
		sort.Strings(graphIDs)
		for _, id := range graphIDs {
			lines = append(lines, fmt.Sprintf("  %s: %d", id, stats.PerGraph[id]))
		}
	}
	printBox("游玩统计", strings.Join(lines, "\n"))
}

// 7. 查看配置
func viewConfig() {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		fmt.Println("❌ 配置系统未初始化")
		return
	}

	provider := cfg.GeneratorProvider
	if provider == "" {
		provider = "(未配置)"
	}
	lines := []string{
		fmt.Sprintf("端口:       %s", cfg.Port),
		fmt.Sprintf("数据目录:   %s", cfg.DataDir),
		fmt.Sprintf("剧本目录:   %s", cfg.GraphsDir),
		fmt.Sprintf("导出目录:   %s", cfg.ExportDir),
		fmt.Sprintf("调试模式:   %v", cfg.DebugMode),
		fmt.Sprintf("生成提供者: %s", provider),
	}
	printBox("当前配置", strings.Join(lines, "\n"))
}

// 8. 列出已注册的服务
func listServices() {
	container := di.GetContainer()
	names := container.GetNames()
	if len(names) == 0 {
		fmt.Println("（暂无已注册的服务）")
		return
	}

	var lines []string
	for i, name := range names {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	printBox("已注册的服务", strings.Join(lines, "\n"))
}

// ===== 多语言支持 =====

var currentLanguage = "zh"

var translations = map[string]map[string]string{
	"zh": {
		"menu_title":     "📋 主菜单",
		"menu_graphs":    "1. 管理剧本图",
		"menu_play":      "2. 开始游玩",
		"menu_resume":    "3. 恢复会话",
		"menu_generate":  "4. 生成剧本图 (AI)",
		"menu_export":    "5. 导出剧本/会话",
		"menu_stats":     "6. 查看统计",
		"menu_config":    "7. 查看配置",
		"menu_services":  "8. 列出服务",
		"menu_exit":      "0. 退出",
		"input_prompt":   "请输入选项: ",
		"goodbye":        "👋 再见！",
		"invalid_choice": "❌ 无效的选项，请重试",
	},
	"en": {
		"menu_title":     "📋 Main Menu",
		"menu_graphs":    "1. Manage story graphs",
		"menu_play":      "2. Play a story",
		"menu_resume":    "3. Resume a session",
		"menu_generate":  "4. Generate a graph (AI)",
		"menu_export":    "5. Export graph/session",
		"menu_stats":     "6. View stats",
		"menu_config":    "7. View config",
		"menu_services":  "8. List services",
		"menu_exit":      "0. Exit",
		"input_prompt":   "Enter your choice: ",
		"goodbye":        "👋 Goodbye!",
		"invalid_choice": "❌ Invalid choice, please try again",
	},
}

func T(key string, args ...interface{}) string {
	text, exists := translations[currentLanguage][key]
	if !exists {
		text = translations["zh"][key]
	}
	if text == "" {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(text, args...)
	}
	return text
}

func selectLanguage() {
	choice := getUserInputWithDefault("Language / 语言 (zh/en)", "zh")
	if choice == "en" {
		currentLanguage = "en"
	}
}

// ===== 控制台渲染辅助 =====

const cliBoxMaxWidth = 90

func printBox(title, content string) {
	wrappedLines := wrapContentForBox(content, cliBoxMaxWidth)
	maxWidth := utf8.RuneCountInString(title)
	for _, line := range wrappedLines {
		if w := utf8.RuneCountInString(line); w > maxWidth {
			maxWidth = w
		}
	}
	if maxWidth < 0 {
		maxWidth = 0
	}
	border := strings.Repeat("─", maxWidth+2)
	fmt.Println("┌" + border + "┐")
	if title != "" {
		fmt.Printf("│ %s │\n", padRight(title, maxWidth))
		fmt.Println("├" + border + "┤")
	}
	if len(wrappedLines) == 0 {
		wrappedLines = []string{""}
	}
	for _, line := range wrappedLines {
		fmt.Printf("│ %s │\n", padRight(line, maxWidth))
	}
	fmt.Println("└" + border + "┘")
}

func wrapContentForBox(content string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{content}
	}
	var result []string
	for _, rawLine := range strings.Split(content, "\n") {
		line := strings.TrimRight(rawLine, " ")
		runes := []rune(line)
		for len(runes) > maxWidth {
			result = append(result, string(runes[:maxWidth]))
			runes = runes[maxWidth:]
		}
		result = append(result, string(runes))
	}
	return result
}

func padRight(text string, width int) string {
	current := utf8.RuneCountInString(text)
	if current >= width {
		return text
	}
	return text + strings.Repeat(" ", width-current)
}
