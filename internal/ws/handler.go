package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// BatchStarter starts probe batches in the background.
type BatchStarter interface {
	Start(ctx context.Context, batchID string, pluginIDs []string) batch.Started
}

// Handler manages WebSocket connections
type Handler struct {
	hub      *Hub
	batches  BatchStarter
	batchCtx context.Context
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler. Batches started by clients
// run under batchCtx.
func NewHandler(hub *Hub, batches BatchStarter, batchCtx context.Context, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	if batchCtx == nil {
		batchCtx = context.Background()
	}
	return &Handler{hub: hub, batches: batches, batchCtx: batchCtx, logger: logger}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(uuid.NewString())
	cl.deliver(Message{Type: TypeSystem, Message: "connected", Timestamp: time.Now().UnixMilli()})
	if !h.hub.join(cl) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go h.writePump(conn, cl)
	h.readPump(conn, cl)
}

// readPump handles client messages until the connection fails.
func (h *Handler) readPump(conn *websocket.Conn, cl *client) {
	defer func() {
		h.hub.leave(cl)
		conn.Close()
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client", cl.id), zap.Error(err))
			}
			return
		}
		h.hub.metrics.RecordWSMessage("in", msg.Type)

		if !cl.deliver(h.handle(msg)) {
			return
		}
	}
}

func (h *Handler) handle(msg Message) Message {
	now := time.Now().UnixMilli()
	switch msg.Type {
	case TypeStartBatch:
		started := h.batches.Start(h.batchCtx, msg.BatchID, msg.PluginIDs)
		return Message{
			Type:      TypeBatchStarted,
			BatchID:   started.BatchID,
			PluginIDs: started.PluginIDs,
			Timestamp: now,
		}
	case TypePing:
		return Message{Type: TypePong, Timestamp: now}
	default:
		return Message{Type: TypeError, Message: "unknown message type", Timestamp: now}
	}
}

// writePump is the only writer of conn.
func (h *Handler) writePump(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-cl.done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client", cl.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
