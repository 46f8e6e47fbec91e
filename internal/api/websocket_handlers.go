// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Corphon/StoryPlayerMCP/internal/di"
	apperrors "github.com/Corphon/StoryPlayerMCP/internal/errors"
	"github.com/Corphon/StoryPlayerMCP/internal/models"
	"github.com/Corphon/StoryPlayerMCP/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler 处理 WebSocket 相关的 HTTP 请求
// 每个连接绑定一个播放会话，推送场景切换、结局和故障事件。
type WebSocketHandler struct {
	sessionService *services.SessionService
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler() *WebSocketHandler {
	container := di.GetContainer()

	return &WebSocketHandler{
		sessionService: container.Get("session").(*services.SessionService),
	}
}

// SessionWebSocket 处理播放会话 WebSocket 连接
func (wh *WebSocketHandler) SessionWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		log.Printf("❌ WebSocket 连接失败：会话ID缺失")
		http.Error(c.Writer, "会话ID缺失", http.StatusBadRequest)
		return
	}

	// 连接前校验会话存在
	if _, err := wh.sessionService.CurrentView(sessionID); err != nil {
		log.Printf("❌ WebSocket 连接失败：%v", err)
		http.Error(c.Writer, "会话不存在", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ 会话 WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 创建客户端
	client := &WebSocketClient{
		conn:      &WebSocketConnWrapper{conn},
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		closed:    0,
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	// 注册客户端
	select {
	case wsManager.register <- client:
		// Success
	default:
		log.Printf("❌ 无法注册 WebSocket 客户端，注册通道已满")
		return
	}

	defer func() {
		// Unregister with timeout to prevent blocking
		done := make(chan bool, 1)
		go func() {
			wsManager.unregister <- client
			done <- true
		}()

		select {
		case <-done:
			// Successfully unregistered
		case <-time.After(5 * time.Second):
			log.Printf("⚠️ WebSocket 客户端注销超时")
		}
	}()

	// 启动读写协程
	go wh.handleWebSocketWrites(client)
	go wh.handleWebSocketReads(client)

	// 发送连接确认消息
	wh.sendWelcomeMessage(client, sessionID)

	// 等待连接关闭
	<-c.Request.Context().Done()
	log.Printf("📱 会话 %s 的 WebSocket 连接已关闭", sessionID)
}

// handleWebSocketReads 处理 WebSocket 读取
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient) {
	defer func() {
		if !client.IsClosed() {
			select {
			case wsManager.unregister <- client:
			case <-time.After(1 * time.Second):
				log.Printf("⚠️ 读取协程关闭时注销超时")
			}
		}
	}()

	// 设置读取超时和ping处理
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if client.IsClosed() {
			break
		}

		// 设置当前读取超时
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			break
		}

		// 解析JSON消息
		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("⚠️ JSON解析失败: %v", err)
			continue
		}

		// 更新活跃时间
		client.UpdatePing()

		// 处理收到的消息
		wh.handleMessage(client, message)
	}
}

// handleWebSocketWrites 处理 WebSocket 写入
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		// 标记关闭并安全关闭发送通道，多个协程可能同时走到这里
		atomic.CompareAndSwapInt32(&client.closed, 0, 1)
		func() {
			defer func() {
				if recover() != nil {
					// 通道已关闭，忽略
				}
			}()
			close(client.send)
		}()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed, send close message
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ WebSocket 写入失败: %v", err)
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ WebSocket ping 失败: %v", err)
				return
			}
			client.UpdatePing()
		}
	}
}

// handleMessage 处理收到的 WebSocket 消息
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, message map[string]interface{}) {
	msgType, ok := message["type"].(string)
	if !ok {
		log.Printf("⚠️ 收到无效的消息类型")
		return
	}

	switch msgType {
	case "submit_choice":
		wh.handleSubmitChoice(client, message)
	case "go_back":
		wh.handleGoBack(client)
	case "get_view":
		wh.handleGetView(client)
	case "ping":
		wh.handlePing(client)
	default:
		log.Printf("⚠️ 未知的消息类型: %s", msgType)
	}
}

// handleSubmitChoice 处理选择提交消息
func (wh *WebSocketHandler) handleSubmitChoice(client *WebSocketClient, message map[string]interface{}) {
	choiceID, ok := message["choice_id"].(string)
	if !ok || choiceID == "" {
		wh.sendError(client, "缺少选择ID")
		return
	}

	if wh.sessionService == nil {
		wh.sendError(client, "会话服务不可用")
		return
	}

	view, err := wh.sessionService.SubmitChoice(client.sessionID, choiceID)
	if err != nil {
		// 故障状态广播给会话的全部连接
		if isFaultedError(wh.sessionService, client.sessionID) {
			wsManager.BroadcastToSession(client.sessionID, map[string]interface{}{
				"type":       "session:faulted",
				"session_id": client.sessionID,
				"error":      err.Error(),
				"timestamp":  time.Now().Format(time.RFC3339),
			})
			return
		}
		wh.sendError(client, "提交选择失败: "+err.Error())
		return
	}

	wh.broadcastSceneChanged(client.sessionID, choiceID, view)
}

// handleGoBack 处理回退消息
func (wh *WebSocketHandler) handleGoBack(client *WebSocketClient) {
	if wh.sessionService == nil {
		wh.sendError(client, "会话服务不可用")
		return
	}

	view, err := wh.sessionService.GoBack(client.sessionID)
	if err != nil {
		wh.sendError(client, "回退失败: "+err.Error())
		return
	}

	wh.broadcastSceneChanged(client.sessionID, "", view)
}

// handleGetView 处理视图查询消息
func (wh *WebSocketHandler) handleGetView(client *WebSocketClient) {
	if wh.sessionService == nil {
		wh.sendError(client, "会话服务不可用")
		return
	}

	view, err := wh.sessionService.CurrentView(client.sessionID)
	if err != nil {
		wh.sendError(client, "获取视图失败: "+err.Error())
		return
	}

	client.SendMessage(map[string]interface{}{
		"type":      "session:view",
		"data":      view,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handlePing 处理ping消息
func (wh *WebSocketHandler) handlePing(client *WebSocketClient) {
	pong := map[string]interface{}{
		"type":      "pong",
		"timestamp": time.Now().Unix(),
	}

	client.SendMessage(pong)
}

// broadcastSceneChanged 向会话的所有连接广播场景切换事件
func (wh *WebSocketHandler) broadcastSceneChanged(sessionID, choiceID string, view *models.SessionView) {
	eventType := "session:scene_changed"
	if view.Ended {
		eventType = "session:ended"
	}

	event := map[string]interface{}{
		"type":       eventType,
		"session_id": sessionID,
		"data":       view,
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if choiceID != "" {
		event["choice_id"] = choiceID
	}

	wsManager.BroadcastToSession(sessionID, event)
}

// sendWelcomeMessage 发送欢迎消息
func (wh *WebSocketHandler) sendWelcomeMessage(client *WebSocketClient, sessionID string) {
	welcomeMsg := map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
		"message":    "WebSocket 连接已建立",
	}

	client.SendMessage(welcomeMsg)
}

// sendError 发送错误消息
func (wh *WebSocketHandler) sendError(client *WebSocketClient, errorMsg string) {
	errorResponse := map[string]interface{}{
		"type":      "error",
		"error":     errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if msgBytes, err := json.Marshal(errorResponse); err == nil {
		select {
		case client.send <- msgBytes:
		default:
			log.Printf("⚠️ 无法发送错误消息到客户端，队列已满")
		}
	}
}

// isFaultedError 检查会话是否已进入故障状态
func isFaultedError(sessionService *services.SessionService, sessionID string) bool {
	view, err := sessionService.CurrentView(sessionID)
	if err != nil {
		return apperrors.IsConflictError(err)
	}
	return view.Status == models.StatusFaulted
}
