package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

type connEntry struct {
	Session core.MemberSession
	Name    string
	Rooms   map[domain.RoomID]struct{}
	Cancel  context.CancelFunc
}

// Registry tracks live connections and which rooms each one joined.
// The protocol allows one connection to hold several independent
// memberships; the disconnect sweep relies on this index.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnectionID]*connEntry)}
}

func (r *Registry) Bind(cid core.ConnectionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &connEntry{
		Session: sess,
		Name:    sess.Meta().Name,
		Rooms:   make(map[domain.RoomID]struct{}),
		Cancel:  cancel,
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("bound connection")
}

func (r *Registry) Unbind(cid core.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbound connection")
}

// SetName records the connection's display name. Member metadata is
// otherwise immutable after Bind; renames go through here so readers
// on other goroutines stay behind the registry lock.
func (r *Registry) SetName(cid core.ConnectionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok && name != "" {
		e.Name = name
	}
}

func (r *Registry) NameOf(cid core.ConnectionID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Name
	}
	return ""
}

func (r *Registry) GetSession(cid core.ConnectionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) AddRoom(cid core.ConnectionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok {
		e.Rooms[roomID] = struct{}{}
	}
}

func (r *Registry) RemoveRoom(cid core.ConnectionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[cid]; ok {
		delete(e.Rooms, roomID)
	}
}

// RoomsOf returns every room the connection currently belongs to.
func (r *Registry) RoomsOf(cid core.ConnectionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Rooms))
	for id := range e.Rooms {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Cancel(cid core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}
