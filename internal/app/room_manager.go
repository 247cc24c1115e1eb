package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

// RoomManager owns the room table. It only guards the map itself;
// per-room state is serialized inside each RoomService, so operations
// on different rooms proceed independently.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]core.RoomService)}
}

// Create allocates a fresh room with a collision-checked short id.
// This is the explicit creation path; joins use GetOrCreate.
func (m *RoomManager) Create() core.RoomService {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		room := domain.NewRoom()
		if _, exists := m.rooms[room.ID]; exists {
			continue
		}
		svc := core.NewRoomService(room)
		m.rooms[room.ID] = svc
		log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Msg("room created")
		return svc
	}
}

// Get looks a room up without creation side effects.
func (m *RoomManager) Get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

// GetOrCreate tolerates joins that race the explicit create call by
// creating the room on first use.
func (m *RoomManager) GetOrCreate(id domain.RoomID) core.RoomService {
	return m.getOrCreate(id, false)
}

// GetOrCreatePrivate backs the pairwise direct-message channels. The
// same id always resolves to the same room; private rooms are skipped
// by snapshots.
func (m *RoomManager) GetOrCreatePrivate(id domain.RoomID) core.RoomService {
	return m.getOrCreate(id, true)
}

func (m *RoomManager) getOrCreate(id domain.RoomID, private bool) core.RoomService {
	m.mu.RLock()
	room, ok := m.rooms[id]
	m.mu.RUnlock()
	if ok {
		return room
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, Private: private, CreatedAt: time.Now()})
	m.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Bool("private", private).Msg("room created implicitly on join")
	return room
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

// Rooms returns the current room services, for snapshotting.
func (m *RoomManager) Rooms() []core.RoomService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomService, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// RestoreRoom recreates a room from a snapshot. Members are live
// connections and do not survive a restart; only metadata and the
// message log come back.
func (m *RoomManager) RestoreRoom(id domain.RoomID, createdAt time.Time, msgs []domain.Message, joined []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[id]; exists {
		return
	}
	room := core.NewRoomService(&domain.Room{ID: id, CreatedAt: createdAt})
	room.ImportHistory(msgs)
	room.ImportRoster(joined)
	m.rooms[id] = room
}
