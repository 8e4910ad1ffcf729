package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	// 느린 구독자는 버퍼가 차면 끊김
	sendBuffer = 8
)

// Store is the cache a Hub decorates
type Store interface {
	Put(ctx context.Context, rec *contracts.Recommendation) error
	Latest(ctx context.Context, strategyID string) (*contracts.Recommendation, bool, error)
}

// Message is the frame pushed to subscribers
type Message struct {
	Type           string                    `json:"type"`
	Recommendation *contracts.Recommendation `json:"recommendation"`
}

// Hub pushes every stored recommendation to websocket subscribers.
// It wraps a Store, so wiring it as the pipeline cache is enough to publish.
// ⭐ SSOT: 실시간 추천 브로드캐스트는 이 허브에서만
type Hub struct {
	store      Store
	strategyID string
	upgrader   websocket.Upgrader
	logger     *logger.Logger

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub in front of store
func NewHub(store Store, strategyID string, log *logger.Logger) *Hub {
	return &Hub{
		store:      store,
		strategyID: strategyID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  log.Component("realtime.hub"),
		clients: make(map[*subscriber]struct{}),
	}
}

// Put stores rec and broadcasts it when the store accepted it
func (h *Hub) Put(ctx context.Context, rec *contracts.Recommendation) error {
	if err := h.store.Put(ctx, rec); err != nil {
		return err
	}
	h.Broadcast(rec)
	return nil
}

// Latest delegates to the store
func (h *Hub) Latest(ctx context.Context, strategyID string) (*contracts.Recommendation, bool, error) {
	return h.store.Latest(ctx, strategyID)
}

// Broadcast sends rec to every subscriber without blocking
func (h *Hub) Broadcast(rec *contracts.Recommendation) {
	payload, err := json.Marshal(Message{Type: "recommendation", Recommendation: rec})
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode recommendation")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.clients {
		select {
		case s.send <- payload:
		default:
			h.dropLocked(s)
			h.logger.Warn("Dropped slow subscriber")
		}
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams recommendations.
// The cached latest recommendation, if any, is sent first.
// GET /ws/signal
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 가 이미 에러 응답을 씀
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	if rec, ok, err := h.store.Latest(r.Context(), h.strategyID); err == nil && ok {
		if payload, err := json.Marshal(Message{Type: "recommendation", Recommendation: rec}); err == nil {
			s.send <- payload
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithField("clients", count).Debug("Subscriber connected")

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for s := range h.clients {
		h.dropLocked(s)
	}
}

// dropLocked unregisters s; its writeLoop then closes the connection
func (h *Hub) dropLocked(s *subscriber) {
	if _, ok := h.clients[s]; !ok {
		return
	}
	delete(h.clients, s)
	close(s.send)
}

// readLoop only keeps the read deadline alive and detects disconnects
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(s)
		h.mu.Unlock()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
