package fakeapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Envelope is the frame written to live subscribers.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type subscriber struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub fans live events out to every authenticated websocket subscriber.
type Hub struct {
	issuer   *Issuer
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	mirror      func(event string, data []byte)
}

// NewHub creates a hub accepting credentials signed by issuer.
func NewHub(issuer *Issuer, log logrus.FieldLogger) *Hub {
	return &Hub{
		issuer: issuer,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades an authenticated request to a live subscription. The
// credential is read from the Authorization header or the token query value.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = ExtractTokenFromHeader(r.Header.Get("Authorization"))
	}
	claims, err := h.issuer.ValidateToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Live upgrade failed")
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer), userID: claims.UserID}
	h.add(sub)
	h.log.WithField("user_id", claims.UserID).Debug("Live subscriber connected")

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.remove(sub)
		sub.conn.Close()
		h.log.WithField("user_id", sub.userID).Debug("Live subscriber disconnected")
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast pushes event with data to every subscriber. Slow subscribers miss
// frames rather than block the caller.
func (h *Hub) Broadcast(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("Failed to marshal live event")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("Failed to marshal live frame")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.mirror != nil {
		h.mirror(event, raw)
	}
	for sub := range h.subscribers {
		select {
		case sub.send <- frame:
		default:
			h.log.WithFields(logrus.Fields{"event": event, "user_id": sub.userID}).Warn("Live subscriber too slow, frame dropped")
		}
	}
}

// Mirror forwards every broadcast event and its JSON payload to fn, in addition
// to the websocket subscribers. A nil fn stops mirroring.
func (h *Hub) Mirror(fn func(event string, data []byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirror = fn
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}
