package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/stockscanner/internal/workflow"
	"github.com/wonny/stockscanner/pkg/logger"
)

const (
	pingInterval = 45 * time.Second
	readTimeout  = 90 * time.Second
	clientBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Message is what /ws/signals clients receive
type Message struct {
	Type    string              `json:"type"` // history, signal
	Signal  *workflow.ScanItem  `json:"signal,omitempty"`
	History []workflow.ScanItem `json:"history,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	out  chan Message
}

// Hub fans scan signals out to websocket clients and replays recent ones
// to new connections. Slow clients drop messages instead of blocking scans.
// ⭐ SSOT: 신호 실시간 전파는 여기서만
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	history []workflow.ScanItem
	limit   int
	logger  *logger.Logger
}

// NewHub creates a hub keeping the last limit signals
func NewHub(limit int, log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		limit:   limit,
		logger:  log.Module("ws"),
	}
}

// Publish implements workflow.Publisher
func (h *Hub) Publish(item workflow.ScanItem) {
	h.mu.Lock()
	h.history = append(h.history, item)
	if h.limit > 0 && len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.mu.Unlock()

	h.broadcast(Message{Type: "signal", Signal: &item})
}

// Clients is the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []workflow.ScanItem {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]workflow.ScanItem, len(h.history))
	copy(out, h.history)
	return out
}

func (h *Hub) broadcast(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- m:
		default:
		}
	}
}

// ServeWS upgrades the connection and streams signals until the client leaves
// GET /ws/signals
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	cl := &wsClient{conn: conn, out: make(chan Message, clientBuffer)}
	cl.out <- Message{Type: "history", History: h.snapshot()}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writeLoop(cl, done)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		// 클라이언트 메시지는 무시, 연결 종료 감지용
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
}

func (h *Hub) writeLoop(cl *wsClient, done <-chan struct{}) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case m := <-cl.out:
			if err := cl.conn.WriteJSON(m); err != nil {
				return
			}
		case <-ping.C:
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
