package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/probehost/internal/batch"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/logging"
	"github.com/GriffinCanCode/probehost/internal/infrastructure/monitoring"
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type      string              `json:"type"`
	BatchID   string              `json:"batchId,omitempty"`
	PluginIDs []string            `json:"pluginIds,omitempty"`
	Output    *batch.PluginOutput `json:"output,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

const (
	TypeStartBatch   = "start_batch"
	TypeBatchStarted = "probe:batch-started"
	TypeSystem       = "system"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

const sendBuffer = 256

// client is one connection's outbound queue. send is never closed; done
// tells the pumps the hub has let go of the client.
type client struct {
	id   string
	send chan Message
	done chan struct{}
	once sync.Once
}

func newClient(id string) *client {
	return &client{id: id, send: make(chan Message, sendBuffer), done: make(chan struct{})}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// deliver queues msg without blocking. It reports false when the client
// is gone or its queue is full.
func (c *client) deliver(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub fans batch events out to every connected client. It implements
// batch.Emitter.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	clients    map[*client]struct{}
	stopped    chan struct{}

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewHub creates a hub. Call Run before accepting connections.
func NewHub(logger *logging.Logger, metrics *monitoring.Metrics) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, sendBuffer),
		clients:    make(map[*client]struct{}),
		stopped:    make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.IncWSConnections()
			h.logger.Debug("websocket client connected", zap.String("client", c.id))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.deliver(msg) {
					h.logger.Warn("websocket client too slow, disconnecting", zap.String("client", c.id))
					h.drop(c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.metrics.DecWSConnections()
	h.logger.Debug("websocket client disconnected", zap.String("client", c.id))
}

// join registers c. It reports false once the hub has stopped.
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// leave unregisters c.
func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
	c.close()
}

// Emit queues a batch event for every client. Events are dropped when the
// hub is saturated.
func (h *Hub) Emit(e batch.Event) {
	msg := Message{
		Type:      string(e.Type),
		BatchID:   e.BatchID,
		Output:    e.Output,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case h.broadcast <- msg:
		h.metrics.RecordWSMessage("out", msg.Type)
	default:
		h.logger.Warn("websocket broadcast queue full, dropping event",
			zap.String("type", msg.Type),
			zap.String("batch_id", msg.BatchID))
	}
}
