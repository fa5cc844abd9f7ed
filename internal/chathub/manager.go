package chathub

import (
	"log/slog"
	"sort"
	"sync"
)

// ManagerService is the per-process socket hub: which sockets are connected
// and which rooms each of them has joined. It implements dispatch.RoomSender.
type ManagerService struct {
	clients sync.Map // socketID -> *clientEntry
	rooms   sync.Map // roomID -> *roomMembers
	log     *slog.Logger
}

type clientEntry struct {
	client Client
	mu     sync.Mutex
	rooms  map[string]struct{}
	gone   bool
}

type roomMembers struct {
	mu      sync.RWMutex
	sockets map[string]Client
	// dead is set when the last socket leaves and the set is unlinked.
	dead bool
}

func NewManagerService(log *slog.Logger) *ManagerService {
	if log == nil {
		log = slog.Default()
	}
	return &ManagerService{log: log.With("component", "hub")}
}

func (m *ManagerService) Register(c Client) {
	m.clients.Store(c.ID(), &clientEntry{client: c, rooms: make(map[string]struct{})})
	m.log.Debug("client registered", "socket_id", c.ID(), "user_id", c.UserID())
}

// Unregister removes the socket from the hub and from all its rooms.
// It returns the client, or nil when the socket was not registered.
func (m *ManagerService) Unregister(socketID string) Client {
	v, ok := m.clients.LoadAndDelete(socketID)
	if !ok {
		return nil
	}
	entry := v.(*clientEntry)

	entry.mu.Lock()
	entry.gone = true
	rooms := make([]string, 0, len(entry.rooms))
	for roomID := range entry.rooms {
		rooms = append(rooms, roomID)
	}
	entry.rooms = nil
	entry.mu.Unlock()

	for _, roomID := range rooms {
		m.removeFromRoom(roomID, socketID)
	}
	m.log.Debug("client unregistered", "socket_id", socketID, "rooms", len(rooms))
	return entry.client
}

func (m *ManagerService) Client(socketID string) (Client, bool) {
	v, ok := m.clients.Load(socketID)
	if !ok {
		return nil, false
	}
	return v.(*clientEntry).client, true
}

func (m *ManagerService) ClientCount() int {
	n := 0
	m.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// JoinRoom subscribes the socket to room broadcasts. It reports false when
// the socket is not connected.
func (m *ManagerService) JoinRoom(socketID, roomID string) bool {
	v, ok := m.clients.Load(socketID)
	if !ok {
		return false
	}
	entry := v.(*clientEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.gone {
		return false
	}
	if _, joined := entry.rooms[roomID]; joined {
		return true
	}
	m.addToRoom(roomID, entry.client)
	entry.rooms[roomID] = struct{}{}
	return true
}

func (m *ManagerService) LeaveRoom(socketID, roomID string) bool {
	v, ok := m.clients.Load(socketID)
	if !ok {
		return false
	}
	entry := v.(*clientEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if _, joined := entry.rooms[roomID]; !joined {
		return false
	}
	delete(entry.rooms, roomID)
	m.removeFromRoom(roomID, socketID)
	return true
}

func (m *ManagerService) InRoom(socketID, roomID string) bool {
	v, ok := m.clients.Load(socketID)
	if !ok {
		return false
	}
	entry := v.(*clientEntry)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	_, joined := entry.rooms[roomID]
	return joined
}

// RoomsOf lists the rooms a socket has joined, sorted.
func (m *ManagerService) RoomsOf(socketID string) []string {
	v, ok := m.clients.Load(socketID)
	if !ok {
		return nil
	}
	entry := v.(*clientEntry)
	entry.mu.Lock()
	out := make([]string, 0, len(entry.rooms))
	for roomID := range entry.rooms {
		out = append(out, roomID)
	}
	entry.mu.Unlock()
	sort.Strings(out)
	return out
}

func (m *ManagerService) addToRoom(roomID string, c Client) {
	for {
		v, _ := m.rooms.LoadOrStore(roomID, &roomMembers{sockets: make(map[string]Client)})
		r := v.(*roomMembers)
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.sockets[c.ID()] = c
		r.mu.Unlock()
		return
	}
}

func (m *ManagerService) removeFromRoom(roomID, socketID string) {
	v, ok := m.rooms.Load(roomID)
	if !ok {
		return
	}
	r := v.(*roomMembers)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets, socketID)
	if len(r.sockets) == 0 && !r.dead {
		r.dead = true
		m.rooms.CompareAndDelete(roomID, r)
	}
}

// RoomMembers is a snapshot of the sockets in a room on this process.
func (m *ManagerService) RoomMembers(roomID string) []Client {
	v, ok := m.rooms.Load(roomID)
	if !ok {
		return nil
	}
	r := v.(*roomMembers)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Client, 0, len(r.sockets))
	for _, c := range r.sockets {
		out = append(out, c)
	}
	return out
}

// SendToRoom encodes v once and emits it to every socket of the room.
// Sockets whose buffer is full are disconnected. It returns how many sockets
// accepted the frame.
func (m *ManagerService) SendToRoom(roomID, event string, v any) int {
	payload, err := encodeEnvelope(event, v)
	if err != nil {
		m.log.Error("failed to encode room event", "room_id", roomID, "event", event, "error", err)
		return 0
	}

	sent := 0
	for _, c := range m.RoomMembers(roomID) {
		if c.Send(payload) {
			sent++
			continue
		}
		// Повільний клієнт: відключаємо, щоб не гальмувати кімнату
		m.log.Warn("client send buffer full, disconnecting", "socket_id", c.ID(), "room_id", roomID)
		m.Disconnect(c.ID())
	}
	return sent
}

func (m *ManagerService) SendToClient(socketID, event string, v any) bool {
	c, ok := m.Client(socketID)
	if !ok {
		return false
	}
	payload, err := encodeEnvelope(event, v)
	if err != nil {
		m.log.Error("failed to encode client event", "socket_id", socketID, "event", event, "error", err)
		return false
	}
	return c.Send(payload)
}

// Disconnect unregisters the socket and closes its connection.
func (m *ManagerService) Disconnect(socketID string) {
	if c := m.Unregister(socketID); c != nil {
		c.Close()
	}
}

// CloseAll disconnects every socket, used at shutdown.
func (m *ManagerService) CloseAll() {
	m.clients.Range(func(key, _ any) bool {
		m.Disconnect(key.(string))
		return true
	})
}
