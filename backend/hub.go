// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ttbt-io/lanekeeper/backend/bowling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Spectators only send small
	// control messages.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

var (
	// ErrHubBusy is returned when a game's request queue is full.
	ErrHubBusy = errors.New("hub is busy")
	// ErrNotParticipant is returned when a frame is posted for a player who
	// is not on the game's roster.
	ErrNotParticipant = errors.New("player is not participating in game")
)

// Message types for WebSocket communication
const (
	MsgTypeJoin    = "JOIN"
	MsgTypeGame    = "GAME"
	MsgTypeUpdate  = "UPDATE"
	MsgTypeDeleted = "DELETED"
	MsgTypePing    = "PING"
	MsgTypePong    = "PONG"
	MsgTypeError   = "ERROR"
)

// Message represents a WebSocket message
type Message struct {
	Type   string          `json:"type"`
	GameId string          `json:"gameId,omitempty"`
	Game   json.RawMessage `json:"game,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// HubRequest types
const (
	ReqTypeWSRegister = "WS_REGISTER"
	ReqTypeWSJoin     = "WS_JOIN"
	ReqTypeWSReply    = "WS_REPLY"
	ReqTypeHTTPLoad   = "HTTP_LOAD"
	ReqTypePostFrame  = "POST_FRAME"
	ReqTypeDelete     = "DELETE"
)

// HubRequest represents a request to the Hub
type HubRequest struct {
	Type     string
	Client   *wsClient        // For WS requests
	Message  Message          // For WS replies
	PlayerID string           // For frame posts
	Shots    [2]bowling.Shot  // For frame posts
	Reply    chan HubResponse // For HTTP requests
}

// HubResponse represents a response from the Hub
type HubResponse struct {
	Game  *Game
	Data  []byte // Game encoded as JSON
	Error error
}

// Hub owns one game. Every load, frame post and delete for the game runs on
// the hub's goroutine, one at a time, and accepted frames are broadcast to
// the game's spectators.
type Hub struct {
	gameId string

	// Registered clients.
	clients map[*wsClient]bool

	// Inbound requests
	requests chan HubRequest

	// Unregister requests from clients.
	unregister chan *wsClient

	// Closed when run returns.
	done chan struct{}

	// In-memory state. gameData is never modified in place; a new record
	// replaces it after every accepted change.
	gameData *Game
	data     []byte

	hm *HubManager
}

func newHub(gameId string, hm *HubManager) *Hub {
	return &Hub{
		gameId:     gameId,
		clients:    make(map[*wsClient]bool),
		requests:   make(chan HubRequest, 64),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		hm:         hm,
	}
}

func (h *Hub) run() {
	defer close(h.done)
	idleTimer := time.NewTicker(h.hm.idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case client := <-h.unregister:
			h.removeClient(client)
		case req := <-h.requests:
			h.handle(req)
		case <-idleTimer.C:
			if len(h.clients) == 0 && h.hm.removeIfIdle(h) {
				h.hm.debugf("Hub for game %s idle, stopping", h.gameId)
				return
			}
		}
	}
}

func (h *Hub) handle(req HubRequest) {
	if err := h.ensureLoaded(); err != nil {
		h.fail(req, err)
		return
	}

	switch req.Type {
	case ReqTypeWSRegister:
		if h.gameData.Status == StatusDeleted {
			h.fail(req, os.ErrNotExist)
			return
		}
		h.clients[req.Client] = true
		h.hm.spectators.Add(1)
	case ReqTypeWSJoin:
		if h.clients[req.Client] {
			h.send(req.Client, Message{Type: MsgTypeGame, GameId: h.gameId, Game: h.data})
		}
	case ReqTypeWSReply:
		if h.clients[req.Client] {
			h.send(req.Client, req.Message)
		}
	case ReqTypeHTTPLoad:
		if h.gameData.Status == StatusDeleted {
			h.fail(req, os.ErrNotExist)
			return
		}
		req.Reply <- HubResponse{Game: h.gameData, Data: h.data}
	case ReqTypePostFrame:
		h.handlePostFrame(req)
	case ReqTypeDelete:
		h.handleDelete(req)
	default:
		h.fail(req, fmt.Errorf("unknown hub request %q", req.Type))
	}
}

func (h *Hub) ensureLoaded() error {
	if h.gameData != nil {
		return nil
	}
	g, err := h.hm.gs.LoadGame(h.gameId)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Hub: Error loading game %s: %v", h.gameId, err)
		}
		return err
	}
	return h.setGame(g)
}

func (h *Hub) setGame(g *Game) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	h.gameData = g
	h.data = data
	return nil
}

// fail reports err to whoever sent req. A client whose registration failed
// is told why and disconnected.
func (h *Hub) fail(req HubRequest, err error) {
	if req.Reply != nil {
		req.Reply <- HubResponse{Error: err}
	}
	if req.Client == nil {
		return
	}
	msg := Message{Type: MsgTypeError, GameId: h.gameId, Error: "Server error loading game"}
	if errors.Is(err, os.ErrNotExist) {
		msg.Error = "Game not found"
	}
	if req.Type == ReqTypeWSRegister {
		select {
		case req.Client.send <- msg:
		default:
		}
		close(req.Client.send)
		return
	}
	if h.clients[req.Client] {
		h.send(req.Client, msg)
	}
}

func (h *Hub) handlePostFrame(req HubRequest) {
	g := h.gameData
	if g.Status == StatusDeleted {
		h.fail(req, os.ErrNotExist)
		return
	}
	if !g.HasPlayer(req.PlayerID) {
		h.fail(req, fmt.Errorf("%w: player %s is not participating in game %s", ErrNotParticipant, req.PlayerID, h.gameId))
		return
	}

	engine, err := g.Engine()
	if err != nil {
		log.Printf("Hub: game %s cannot be restored: %v", h.gameId, err)
		h.fail(req, err)
		return
	}
	if err := engine.PostFrame(req.PlayerID, req.Shots); err != nil {
		h.hm.debugf("Hub: frame %v for %s rejected in game %s: %v", req.Shots, req.PlayerID, h.gameId, err)
		h.fail(req, err)
		return
	}

	// Commit only once the store has accepted the new record.
	next := g.withEngine(engine)
	if err := h.hm.gs.SaveGameInMemory(next, h.hm.SyncWrites); err != nil {
		log.Printf("Hub: Error saving game %s: %v", h.gameId, err)
		h.fail(req, err)
		return
	}
	if err := h.setGame(next); err != nil {
		h.fail(req, err)
		return
	}
	h.hm.r.UpdateGame(*next)
	h.hm.metrics.RecordFrame()
	h.hm.debugf("Hub: game %s frame %v for %s, totals %v", h.gameId, req.Shots, req.PlayerID, next.Totals)

	h.broadcast(Message{Type: MsgTypeUpdate, GameId: h.gameId, Game: h.data})
	req.Reply <- HubResponse{Game: next, Data: h.data}
}

func (h *Hub) handleDelete(req HubRequest) {
	if h.gameData.Status == StatusDeleted {
		h.fail(req, os.ErrNotExist)
		return
	}
	tombstone, err := h.hm.gs.DeleteGame(h.gameId)
	if err != nil {
		log.Printf("Hub: Error deleting game %s: %v", h.gameId, err)
		h.fail(req, err)
		return
	}
	if err := h.setGame(tombstone); err != nil {
		h.fail(req, err)
		return
	}
	h.hm.r.UpdateGame(*tombstone)

	h.broadcast(Message{Type: MsgTypeDeleted, GameId: h.gameId})
	for client := range h.clients {
		h.removeClient(client)
	}
	req.Reply <- HubResponse{Game: tombstone, Data: h.data}
}

func (h *Hub) removeClient(client *wsClient) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.hm.spectators.Add(-1)
	}
}

// send queues msg for client, dropping clients that cannot keep up.
func (h *Hub) send(client *wsClient, msg Message) {
	select {
	case client.send <- msg:
	default:
		h.removeClient(client)
	}
}

func (h *Hub) broadcast(msg Message) {
	for client := range h.clients {
		h.send(client, msg)
	}
}

// HubManager manages the hubs of all games that are in use.
type HubManager struct {
	// SyncWrites saves every accepted frame to disk immediately instead of
	// leaving it for the next flush.
	SyncWrites bool

	gs          *GameStore
	r           *Registry
	metrics     *Metrics
	idleTimeout time.Duration
	debugf      func(string, ...any)

	mu         sync.Mutex
	hubs       map[string]*Hub
	spectators atomic.Int64
}

func NewHubManager(gs *GameStore, r *Registry, m *Metrics) *HubManager {
	return &HubManager{
		gs:          gs,
		r:           r,
		metrics:     m,
		idleTimeout: hubIdleTimeout,
		debugf:      func(string, ...any) {},
		hubs:        make(map[string]*Hub),
	}
}

// Submit queues req on the game's hub, starting the hub if needed. It
// returns ErrHubBusy instead of blocking when the queue is full.
func (hm *HubManager) Submit(gameId string, req HubRequest) (*Hub, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hub, ok := hm.hubs[gameId]
	if !ok {
		hub = newHub(gameId, hm)
		hm.hubs[gameId] = hub
		go hub.run()
	}

	select {
	case hub.requests <- req:
		return hub, nil
	default:
		log.Printf("Warning: Hub channel full for game %s", gameId)
		return hub, ErrHubBusy
	}
}

// removeIfIdle unregisters h unless requests are waiting for it. Submit
// holds the same lock, so no request can be queued after this returns true.
func (hm *HubManager) removeIfIdle(h *Hub) bool {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if len(h.requests) > 0 {
		return false
	}
	if hm.hubs[h.gameId] == h {
		delete(hm.hubs, h.gameId)
	}
	return true
}

// ActiveHubs is the number of games with a running hub.
func (hm *HubManager) ActiveHubs() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return len(hm.hubs)
}

// Spectators is the number of connected WebSocket clients.
func (hm *HubManager) Spectators() int64 {
	return hm.spectators.Load()
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Only the hub sends on it or
	// closes it.
	send chan Message
}

// request hands req to the hub. It gives up once the hub has stopped.
func (c *wsClient) request(req HubRequest) bool {
	select {
	case c.hub.requests <- req:
		return true
	case <-c.hub.done:
		return false
	}
}

// readPump pumps messages from the websocket connection to the hub.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			return
		}

		req := HubRequest{Type: ReqTypeWSReply, Client: c}
		switch msg.Type {
		case MsgTypeJoin:
			req.Type = ReqTypeWSJoin
		case MsgTypePing:
			req.Message = Message{Type: MsgTypePong}
		default:
			log.Printf("Unknown message type: %s", msg.Type)
			req.Message = Message{Type: MsgTypeError, Error: "Unknown message type"}
		}
		if !c.request(req) {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS handles websocket requests from spectators of one game.
func ServeWS(hm *HubManager, registry *Registry, w http.ResponseWriter, r *http.Request) {
	gameId := r.URL.Query().Get("gameId")
	if gameId == "" || !isValidUUID(gameId) {
		http.Error(w, "Invalid gameId", http.StatusBadRequest)
		return
	}
	if !registry.GameExists(gameId) {
		http.Error(w, "Not Found: Game not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan Message, 256)}
	hub, err := hm.Submit(gameId, HubRequest{Type: ReqTypeWSRegister, Client: client})
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"))
		conn.Close()
		return
	}
	client.hub = hub

	go client.writePump()
	go client.readPump()
}
