package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rawblock/babel-engine/internal/telemetry"
)

// writeTimeout keeps one blocked client from hanging the whole hub.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the router CORS layer
	},
}

// Hub maintains the set of active stream clients and fans broadcasts out to
// them. Sampler finds and search completions flow through here.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	mutex     sync.Mutex
	log       *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		stop:      make(chan struct{}),
		log:       logger.Named("stream"),
	}
}

// Run delivers queued broadcasts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			return
		case message := <-h.broadcast:
			h.mutex.Lock()
			var failed []*websocket.Conn
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Warn("Stream write failed, dropping client", zap.Error(err))
					failed = append(failed, client)
				}
			}
			h.mutex.Unlock()
			for _, client := range failed {
				h.remove(client)
			}
		}
	}
}

// Stop terminates Run and closes every client connection. Idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.mutex.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		conns = append(conns, client)
	}
	h.mutex.Unlock()

	for _, client := range conns {
		h.remove(client)
	}
}

// Subscribe upgrades the request and registers the connection.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade stream connection", zap.Error(err))
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	telemetry.StreamClientConnected(1)
	h.log.Info("Stream client connected", zap.Int("clients", total))

	// Push-only socket; the read loop exists to notice disconnects.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Debug("Stream read error", zap.Error(err))
				}
				return
			}
		}
	}()
}

// Broadcast queues a payload for delivery to all connected clients. A full
// queue drops the payload instead of blocking the caller; the stream is a
// best-effort feed, not a durable log.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Debug("Stream queue full, dropping broadcast")
	}
}

// remove deregisters and closes a connection exactly once, so the gauge
// stays accurate when Run, Stop, and the read loop race on the same client.
func (h *Hub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	_, known := h.clients[conn]
	if known {
		delete(h.clients, conn)
	}
	remaining := len(h.clients)
	h.mutex.Unlock()

	if known {
		conn.Close()
		telemetry.StreamClientConnected(-1)
		h.log.Info("Stream client disconnected", zap.Int("clients", remaining))
	}
}
