package core

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mafiadial/mafia-night-server/model"
)

// Client is one websocket connection. Writes are serialized on the
// client's own mutex; reads happen only on the connection's read loop.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex

	playerID    string
	roomCode    string
	spectatorOK bool
	publicRooms map[string]struct{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:        conn,
		publicRooms: make(map[string]struct{}),
	}
}

func (c *Client) send(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode event", "event", event, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(model.Envelope{Event: event, Data: raw}); err != nil {
		slog.Debug("failed to write event", "event", event, "error", err)
	}
}

func (c *Client) close() {
	_ = c.conn.Close()
}

// Hub routes outbound events to connections. It implements the
// notifier the room logic publishes through.
type Hub struct {
	mu      sync.RWMutex
	players map[string]*Client             // player id -> connection
	members map[string]map[string]struct{} // room code -> player ids
	public  map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		players: make(map[string]*Client),
		members: make(map[string]map[string]struct{}),
		public:  make(map[string]map[*Client]struct{}),
	}
}

// Bind associates a connection with a player seat in a room. A second
// connection for the same player replaces the first.
func (h *Hub) Bind(c *Client, code, playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.players[playerID]; ok && prev != c {
		prev.close()
	}
	c.playerID = playerID
	c.roomCode = code
	h.players[playerID] = c
	if h.members[code] == nil {
		h.members[code] = make(map[string]struct{})
	}
	h.members[code][playerID] = struct{}{}
}

// SubscribePublic adds the connection to a room's spectator feed.
func (h *Hub) SubscribePublic(c *Client, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.public[code] == nil {
		h.public[code] = make(map[*Client]struct{})
	}
	h.public[code][c] = struct{}{}
	c.publicRooms[code] = struct{}{}
}

// Drop removes the connection from the hub. Returns the player binding
// so the caller can report the disconnect, if there was one.
func (h *Hub) Drop(c *Client) (code, playerID string, bound bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomCode := range c.publicRooms {
		if subs, ok := h.public[roomCode]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.public, roomCode)
			}
		}
	}
	if c.playerID == "" {
		return "", "", false
	}
	// A reconnect may have replaced this binding already.
	if current, ok := h.players[c.playerID]; !ok || current != c {
		return "", "", false
	}
	delete(h.players, c.playerID)
	if ids, ok := h.members[c.roomCode]; ok {
		delete(ids, c.playerID)
		if len(ids) == 0 {
			delete(h.members, c.roomCode)
		}
	}
	return c.roomCode, c.playerID, true
}

// ToPlayer sends one event to a single player, if connected.
func (h *Hub) ToPlayer(playerID string, event string, data any) {
	h.mu.RLock()
	c, ok := h.players[playerID]
	h.mu.RUnlock()
	if ok {
		c.send(event, data)
	}
}

// ToRoom sends one event to every connected member of the room.
func (h *Hub) ToRoom(code string, event string, data any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.members[code]))
	for playerID := range h.members[code] {
		if c, ok := h.players[playerID]; ok {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.send(event, data)
	}
}

// ToPublic sends one event to the room's public spectators.
func (h *Hub) ToPublic(code string, event string, data any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.public[code]))
	for c := range h.public[code] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.send(event, data)
	}
}
