package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trackvote/pkg/errs"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// Clients never send application messages; the read side only exists
	// to detect disconnects and answer pings.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

type Handler struct {
	gateway *Gateway
	log     *slog.Logger
}

func NewHandler(gateway *Gateway, log *slog.Logger) *Handler {
	return &Handler{gateway: gateway, log: log}
}

// HandleWebSocket upgrades the connection and streams the room's change
// signals to it until either side goes away.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	subID, events, err := h.gateway.Subscribe(roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errs.KindOf(err) == errs.KindNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.gateway.Unsubscribe(roomID, subID)
		h.log.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	userID := c.GetString("user_id") // set by auth middleware
	h.log.Debug("subscriber connected", "room_id", roomID, "user_id", userID)

	go h.writePump(conn, roomID, subID, events)
	h.readPump(conn, roomID, subID)
}

// readPump discards inbound frames and unsubscribes on the first read
// error, releasing gateway resources as soon as the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, roomID, subID uuid.UUID) {
	defer func() {
		h.gateway.Unsubscribe(roomID, subID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", "room_id", roomID, "error", err)
			}
			return
		}
	}
}

// writePump forwards gateway events and keeps the connection alive with
// pings. It exits when the subscriber channel is closed (unsubscribe or
// room close) or a write fails.
func (h *Handler) writePump(conn *websocket.Conn, roomID, subID uuid.UUID, events <-chan Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.gateway.Unsubscribe(roomID, subID)
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
