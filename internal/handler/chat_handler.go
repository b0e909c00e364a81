package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"study-buddy-go/internal/model"
	"study-buddy-go/internal/service"
	"study-buddy-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	answerService service.AnswerService
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(answerService service.AnswerService) *ChatHandler {
	return &ChatHandler{answerService: answerService}
}

// chatIncoming 是 WebSocket 上行消息的格式。
// 纯文本消息等价于只含 question 的 JSON。
type chatIncoming struct {
	Type        string   `json:"type"`
	Question    string   `json:"question"`
	DocumentIDs []string `json:"documentIds"`
	NumContexts int      `json:"numContexts"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 同一连接上的消息共享一个会话，对话历史随 sessionId 延续。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	log.Infof("WebSocket 连接已建立, session: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		log.Infof("收到 WebSocket 消息: %s", string(message))

		incoming := chatIncoming{Question: string(message)}
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &incoming); err != nil {
				incoming = chatIncoming{Question: string(message)}
			}
		}

		// 停止指令：置位标志让正在进行的流式响应静默结束
		if incoming.Type == "stop" {
			key := sessionKey(conn)
			h.stopFlags.Store(key, true)
			resp := map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		// 清空指令：删除会话历史，后续提问重新开始
		if incoming.Type == "clear" {
			msg := "对话历史已清空"
			if err := h.answerService.ClearConversation(c.Request.Context(), sessionID); err != nil {
				log.Errorf("清空对话历史失败, session: %s, error: %v", sessionID, err)
				msg = "清空对话历史失败"
			}
			resp := map[string]interface{}{
				"type":      "clear",
				"message":   msg,
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		// 清除旧标志
		h.stopFlags.Delete(sessionKey(conn))

		req := model.QueryRequest{
			Question:    incoming.Question,
			DocumentIDs: incoming.DocumentIDs,
			NumContexts: incoming.NumContexts,
			SessionID:   sessionID,
		}
		if err := h.answerService.StreamResponse(c.Request.Context(), req, conn, shouldStop); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			errResp := map[string]string{"error": "AI服务暂时不可用，请稍后重试"}
			b, _ := json.Marshal(errResp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			// 错误时也发送 completion 通知，让前端收尾
			resp := map[string]interface{}{
				"type":      "completion",
				"status":    "finished",
				"message":   "响应已完成",
				"timestamp": time.Now().UnixMilli(),
				"date":      time.Now().Format("2006-01-02T15:04:05"),
			}
			cb, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, cb)
			break
		}
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
