package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mentormatch/server/internal/metrics"
	"mentormatch/server/internal/presence"
)

// Event is the envelope for every frame pushed to clients. Receivers switch
// on the event name; getOnlineUsers carries the full online set, not a delta.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub owns every live client and keeps the presence registry in step with
// them. The caller authenticates the upgrade request before Serve runs, so an
// unauthenticated socket never reaches the registry.
type Hub struct {
	registry *presence.Registry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHub(registry *presence.Registry, allowedOrigins []string) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &Hub{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header.
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		clients: make(map[string]*Client),
	}
}

// Serve upgrades the request and runs the connection until the peer
// disconnects. userID is the already-authenticated identity.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register(client)

	go client.writePump()
	client.readPump(h)
	return nil
}

// register and unregister keep the registry mutation, the online snapshot,
// and the per-client enqueue inside one critical section: snapshots reach
// every send buffer in mutation order, so the last frame a client applies is
// always the current online set.
func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.registry.Register(client.userID, client.id)
	stale := h.enqueueAllLocked(h.onlineFrameLocked())
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	log.Printf("websocket connected handle=%s user=%s", client.id, client.userID)

	h.evict(stale)
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, live := h.clients[client.id]; !live {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	h.registry.Unregister(client.id)
	stale := h.enqueueAllLocked(h.onlineFrameLocked())
	h.mu.Unlock()

	if client.conn != nil {
		_ = client.conn.Close()
	}
	metrics.LiveConnections.Dec()
	log.Printf("websocket disconnected handle=%s user=%s", client.id, client.userID)

	h.evict(stale)
}

// SendToUser pushes an event to every live handle of userID. A handle whose
// buffer is full is treated as dead and evicted so the registry self-heals.
func (h *Hub) SendToUser(userID, event string, payload any) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("websocket marshal error event=%s: %v", event, err)
		return
	}

	var stale []*Client
	h.mu.Lock()
	for _, handleID := range h.registry.HandlesOf(userID) {
		client, ok := h.clients[handleID]
		if !ok {
			continue
		}
		select {
		case client.send <- frame:
			metrics.MessagesDelivered.Inc()
		default:
			stale = append(stale, client)
		}
	}
	h.mu.Unlock()

	h.evict(stale)
}

// BroadcastAll pushes an event to every live handle of every user.
func (h *Hub) BroadcastAll(event string, payload any) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		log.Printf("websocket marshal error event=%s: %v", event, err)
		return
	}

	h.mu.Lock()
	stale := h.enqueueAllLocked(frame)
	h.mu.Unlock()

	h.evict(stale)
}

// enqueueAllLocked writes frame to every live send buffer. Caller holds h.mu.
// Clients whose buffer is full are returned for eviction after the lock is
// released.
func (h *Hub) enqueueAllLocked(frame []byte) []*Client {
	if frame == nil {
		return nil
	}
	var stale []*Client
	for _, client := range h.clients {
		select {
		case client.send <- frame:
		default:
			stale = append(stale, client)
		}
	}
	return stale
}

// onlineFrameLocked marshals the current online set. Caller holds h.mu.
func (h *Hub) onlineFrameLocked() []byte {
	frame, err := marshalEvent("getOnlineUsers", h.registry.OnlineUserIDs())
	if err != nil {
		log.Printf("websocket marshal error event=getOnlineUsers: %v", err)
		return nil
	}
	return frame
}

func (h *Hub) evict(stale []*Client) {
	for _, client := range stale {
		h.unregister(client)
	}
}

func marshalEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(Event{Event: event, Data: payload})
}
