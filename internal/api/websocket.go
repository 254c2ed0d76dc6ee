// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/VideoNarratorMCP/internal/services"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 进度流只读且不携带敏感数据，允许跨域订阅
		return true
	},
}

// ProgressWebSocket 通过WebSocket推送作业进度事件
// SSE端点的双向替代，适合浏览器之外的客户端
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	jobID := c.Param("jobID")

	tracker, exists := h.ProgressService.GetTracker(jobID)
	if !exists {
		h.Response.NotFound(c, "进度")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subscriber := tracker.Subscribe()
	defer tracker.Unsubscribe(subscriber)

	// 读循环只用于感知客户端断开
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-subscriber:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}

			if event.Stage == services.StageComplete || event.Stage == services.StageError {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "任务已结束"))
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
