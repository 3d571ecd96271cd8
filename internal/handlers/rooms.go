package handlers

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bij27/hohm.studio/internal/models"
	"github.com/bij27/hohm.studio/internal/services"
	"github.com/bij27/hohm.studio/internal/session"
)

const roomSweepInterval = 5 * time.Minute

// yogaRoom pairs one desktop session screen with any number of phone
// remotes.
type yogaRoom struct {
	code      string
	createdAt time.Time
	desktop   *wsClient
	remotes   map[*wsClient]bool
	state     json.RawMessage
}

// RoomHub tracks active rooms and expires abandoned ones.
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[string]*yogaRoom
	ttl   time.Duration
}

func NewRoomHub(ttl time.Duration) *RoomHub {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RoomHub{
		rooms: make(map[string]*yogaRoom),
		ttl:   ttl,
	}
}

// generateCode picks an unused 4-digit code. Caller holds the lock.
func (h *RoomHub) generateCode() string {
	for {
		code := ""
		for i := 0; i < 4; i++ {
			code += string(rune('0' + rand.Intn(10)))
		}
		if _, taken := h.rooms[code]; !taken {
			return code
		}
	}
}

func (h *RoomHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// CreateRoom handles POST /api/rooms.
func (h *RoomHub) CreateRoom(w http.ResponseWriter, r *http.Request) {
	enableCORS(w)
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	code := h.generateCode()
	h.rooms[code] = &yogaRoom{
		code:      code,
		createdAt: time.Now(),
		remotes:   make(map[*wsClient]bool),
		state:     json.RawMessage(`{"status":"waiting"}`),
	}
	h.mu.Unlock()

	log.Printf("[ROOM] created: %s", code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"code": code})
}

// ServeWS handles /ws/room?code=NNNN&role=desktop|remote.
func (h *RoomHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	role := r.URL.Query().Get("role")
	if role != "desktop" && role != "remote" {
		http.Error(w, "role must be desktop or remote", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	room, ok := h.rooms[code]
	h.mu.RUnlock()
	if !ok {
		log.Printf("[ROOM] %s tried to join non-existent room: %s", role, code)
		http.Error(w, "Room not found", http.StatusNotFound)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	metrics := services.GetMetrics()
	metrics.IncrementWebSocketConnections()

	client := newWSClient(conn)
	go client.writePump()

	h.join(room, client, role)
	log.Printf("[ROOM] %s joined room %s", role, code)

	defer func() {
		h.leave(code, client)
		client.close()
		metrics.DecrementWebSocketConnections()
		log.Printf("[ROOM] %s left room %s", role, code)
	}()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		var msg models.RoomMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ROOM] %s read error in %s: %v", role, code, err)
				metrics.IncrementWebSocketErrors()
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		metrics.IncrementWebSocketMessages()

		if role == "desktop" {
			h.handleDesktop(code, msg)
		} else {
			h.handleRemote(code, msg)
		}
	}
}

func (h *RoomHub) join(room *yogaRoom, client *wsClient, role string) {
	h.mu.Lock()
	var state json.RawMessage
	if role == "desktop" {
		room.desktop = client
	} else {
		room.remotes[client] = true
		state = room.state
	}
	h.mu.Unlock()

	if role == "desktop" {
		h.broadcastToRemotes(room.code, models.RoomMessage{Type: "desktop_connected"})
	} else {
		// Late joiner catches up on the current state immediately.
		client.push(models.RoomMessage{Type: "state_sync", State: state})
	}
}

func (h *RoomHub) leave(code string, client *wsClient) {
	h.mu.Lock()
	room, ok := h.rooms[code]
	if !ok {
		h.mu.Unlock()
		return
	}
	wasDesktop := room.desktop == client
	if wasDesktop {
		room.desktop = nil
	} else {
		delete(room.remotes, client)
	}
	empty := room.desktop == nil && len(room.remotes) == 0
	if empty {
		delete(h.rooms, code)
	}
	h.mu.Unlock()

	if wasDesktop && !empty {
		h.broadcastToRemotes(code, models.RoomMessage{Type: "desktop_disconnected"})
	}
	if empty {
		log.Printf("[ROOM] removed empty room: %s", code)
	}
}

func (h *RoomHub) handleDesktop(code string, msg models.RoomMessage) {
	switch msg.Type {
	case "state_update":
		h.mu.Lock()
		room, ok := h.rooms[code]
		if ok && len(msg.State) > 0 {
			room.state = msg.State
		}
		h.mu.Unlock()
		if !ok {
			return
		}
		h.broadcastToRemotes(code, models.RoomMessage{Type: "state_sync", State: msg.State})

	case "pose_change":
		h.broadcastToRemotes(code, msg)

	default:
		log.Printf("[ROOM] unknown desktop message in %s: %q", code, msg.Type)
	}
}

func (h *RoomHub) handleRemote(code string, msg models.RoomMessage) {
	h.mu.RLock()
	room, ok := h.rooms[code]
	var desktop *wsClient
	if ok {
		desktop = room.desktop
	}
	h.mu.RUnlock()
	if desktop == nil {
		log.Printf("[ROOM] remote message but no desktop connected: %s", code)
		return
	}

	switch msg.Type {
	case "command":
		if _, err := session.ParseCommand(msg.Command); err != nil {
			log.Printf("[ROOM] %s: dropped %v", code, err)
			return
		}
		desktop.push(models.RoomMessage{Type: "command", Command: msg.Command})

	case "voice_volume", "ambient_volume":
		value := 50
		if msg.Value != nil {
			value = *msg.Value
		}
		desktop.push(models.RoomMessage{Type: msg.Type, Value: &value})

	case "ambient_track":
		track := msg.Track
		if track == "" {
			track = "forest"
		}
		desktop.push(models.RoomMessage{Type: "ambient_track", Track: track})

	default:
		// Legacy remotes send the bare command as the message type.
		if _, err := session.ParseCommand(msg.Type); err == nil {
			desktop.push(models.RoomMessage{Type: "command", Command: msg.Type})
		}
	}
}

// broadcastToRemotes mirrors a message to every remote in the room,
// dropping it for remotes whose send buffer is full.
func (h *RoomHub) broadcastToRemotes(code string, msg models.RoomMessage) {
	h.mu.RLock()
	room, ok := h.rooms[code]
	if !ok {
		h.mu.RUnlock()
		return
	}
	remotes := make([]*wsClient, 0, len(room.remotes))
	for remote := range room.remotes {
		remotes = append(remotes, remote)
	}
	h.mu.RUnlock()

	for _, remote := range remotes {
		remote.tryPush(msg)
	}
}

// Sweep removes rooms older than the TTL. Blocks until done is
// closed; run it in a goroutine.
func (h *RoomHub) Sweep(done <-chan struct{}) {
	ticker := time.NewTicker(roomSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-h.ttl)
			h.mu.Lock()
			var expired []*yogaRoom
			for code, room := range h.rooms {
				if room.createdAt.Before(cutoff) {
					expired = append(expired, room)
					delete(h.rooms, code)
				}
			}
			h.mu.Unlock()

			for _, room := range expired {
				log.Printf("[ROOM] expired: %s", room.code)
				if room.desktop != nil {
					room.desktop.close()
				}
				for remote := range room.remotes {
					remote.close()
				}
			}

		case <-done:
			return
		}
	}
}

// CloseAll shuts every connection down, for server shutdown.
func (h *RoomHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, room := range h.rooms {
		if room.desktop != nil {
			room.desktop.close()
		}
		for remote := range room.remotes {
			remote.close()
		}
		delete(h.rooms, code)
	}
}
