package websocket

import (
	"context"
	"net/http"
	"time"

	"huddle-chat/internal/events"
	"huddle-chat/internal/services"
	"huddle-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades GET /ws/uploads/:session_id to a WebSocket that
// streams progress snapshots for that session.
type Handler struct {
	uploads *services.UploadService
	hub     *Hub
}

func NewHandler(uploads *services.UploadService, hub *Hub) *Handler {
	return &Handler{uploads: uploads, hub: hub}
}

func (h *Handler) Connect(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, err := h.uploads.GetUploadSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("upload session not found", "SESSION_NOT_FOUND"))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(conn, sessionID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.hub.Register(client)
	h.hub.Subscribe(client, events.UploadChannel(sessionID))
	go client.WriteLoop(ctx)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}

	h.hub.Unregister(client)
}
