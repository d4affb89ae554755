package ws

import (
	"log/slog"
	"sync"
	"time"

	"duet/internal/metrics"
	"duet/internal/models"
)

const defaultQueueSize = 256

type member struct {
	userID string
	out    chan models.ServerEvent
}

// Hub is the room table of the gateway. It knows every live connection,
// the rooms each one is subscribed to and which users are online.
type Hub struct {
	// Map of connID -> member
	members map[string]*member

	// Map of room -> set of connIDs
	rooms map[string]map[string]struct{}

	presence  *presence
	queueSize int
	now       func() time.Time

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		members:   make(map[string]*member),
		rooms:     make(map[string]map[string]struct{}),
		presence:  newPresence(),
		queueSize: defaultQueueSize,
		now:       time.Now,
	}
}

// Register admits a connection: it joins the user's personal room, takes
// the presence slot and announces the user to everyone else. The returned
// channel is closed by Unregister.
func (h *Hub) Register(connID, userID string) chan models.ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.members[connID]; ok {
		return m.out
	}

	m := &member{
		userID: userID,
		out:    make(chan models.ServerEvent, h.queueSize),
	}
	h.members[connID] = m
	h.addToRoom(models.PersonalRoom(userID), connID)

	h.presence.connect(userID, connID)
	metrics.OnlineUsers.Set(float64(h.presence.count()))

	h.broadcastAll(models.ServerEvent{
		Type:   models.ServerEventUserOnline,
		UserID: userID,
	}, connID)

	return m.out
}

// Unregister drops the connection from every room and closes its channel.
// The user goes offline only if this connection still holds the presence
// slot. This differs from a plain remove-then-broadcast on every
// disconnect: when a newer connection of the same user took the slot, the
// older one leaves without a user-offline, since the user is still online
// through the newer one.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}

	for room, conns := range h.rooms {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.members, connID)
	close(m.out)

	if h.presence.disconnect(m.userID, connID) {
		metrics.OnlineUsers.Set(float64(h.presence.count()))
		h.broadcastAll(models.ServerEvent{
			Type:   models.ServerEventUserOffline,
			UserID: m.userID,
		}, connID)
	}
}

// JoinRoom subscribes the connection to chatID and tells the other
// members about it.
func (h *Hub) JoinRoom(connID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}
	h.addToRoom(chatID, connID)
	h.broadcastRoom(chatID, models.ServerEvent{
		Type:      models.ServerEventUserJoined,
		UserID:    m.userID,
		ChatID:    chatID,
		Timestamp: h.now().UnixMilli(),
	}, connID)
}

// LeaveRoom is the inverse of JoinRoom.
func (h *Hub) LeaveRoom(connID, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}
	if conns, ok := h.rooms[chatID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, chatID)
		}
	}
	h.broadcastRoom(chatID, models.ServerEvent{
		Type:      models.ServerEventUserLeft,
		UserID:    m.userID,
		ChatID:    chatID,
		Timestamp: h.now().UnixMilli(),
	}, connID)
}

// Typing relays a typing signal to the other members of chatID.
func (h *Hub) Typing(connID, chatID string, started bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m, ok := h.members[connID]
	if !ok {
		return
	}
	evt := models.ServerEvent{
		Type:   models.ServerEventUserStoppedTyping,
		UserID: m.userID,
		ChatID: chatID,
	}
	if started {
		evt.Type = models.ServerEventUserTyping
	}
	h.broadcastRoom(chatID, evt, connID)
}

// Publish fans a committed message out to its room, sender included.
// If the recipient has no connection in the room it is reached through
// its personal room instead.
func (h *Hub) Publish(msg models.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	evt := models.ServerEvent{
		Type:    models.ServerEventChatMessage,
		ChatID:  msg.ChatID,
		Message: &msg,
	}
	h.broadcastRoom(msg.ChatID, evt, "")

	peer, ok := models.Peer(msg.Sender.UserID(), msg.ChatID)
	if !ok || h.userInRoom(peer, msg.ChatID) {
		return
	}
	h.broadcastRoom(models.PersonalRoom(peer), evt, "")
}

// Online returns the ids of online users, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.online()
}

func (h *Hub) addToRoom(room, connID string) {
	conns, ok := h.rooms[room]
	if !ok {
		conns = make(map[string]struct{})
		h.rooms[room] = conns
	}
	conns[connID] = struct{}{}
}

func (h *Hub) userInRoom(userID, room string) bool {
	for connID := range h.rooms[room] {
		if h.members[connID].userID == userID {
			return true
		}
	}
	return false
}

// Must be called with h.mu held.
func (h *Hub) broadcastRoom(room string, evt models.ServerEvent, exceptConnID string) {
	for connID := range h.rooms[room] {
		if connID == exceptConnID {
			continue
		}
		h.deliver(connID, h.members[connID], evt)
	}
}

// Must be called with h.mu held.
func (h *Hub) broadcastAll(evt models.ServerEvent, exceptConnID string) {
	for connID, m := range h.members {
		if connID == exceptConnID {
			continue
		}
		h.deliver(connID, m, evt)
	}
}

func (h *Hub) deliver(connID string, m *member, evt models.ServerEvent) {
	select {
	case m.out <- evt:
	default:
		metrics.GatewayDroppedEvents.Inc()
		slog.Warn("dropping event for slow connection",
			"conn_id", connID, "user_id", m.userID, "type", evt.Type)
	}
}
