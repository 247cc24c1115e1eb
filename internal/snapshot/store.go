// Package snapshot is the best-effort persistence collaborator: it
// periodically serializes the room table to a file and restores it at
// startup. It runs off the hot path and a failed save never affects
// message delivery.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatrelay/internal/app"
	"chatrelay/internal/domain"
)

type State struct {
	Rooms []RoomState `json:"rooms"`
}

type RoomState struct {
	ID        domain.RoomID    `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	Messages  []domain.Message `json:"messages"`
	Joined    []string         `json:"joined,omitempty"`
}

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the last snapshot. A missing file is a fresh start, not
// an error.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &st, nil
}

// Save writes atomically via a temp file so a crash mid-write cannot
// corrupt the previous snapshot.
func (s *Store) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Collect captures the current room table. Members are deliberately
// left out: they are live connections and meaningless after a restart.
// Private direct-message rooms are keyed by connection ids and are
// skipped for the same reason.
func Collect(rooms *app.RoomManager) *State {
	svcs := rooms.Rooms()
	st := &State{Rooms: make([]RoomState, 0, len(svcs))}
	for _, svc := range svcs {
		room := svc.Room()
		if room.Private {
			continue
		}
		st.Rooms = append(st.Rooms, RoomState{
			ID:        room.ID,
			CreatedAt: room.CreatedAt,
			Messages:  svc.Messages(),
			Joined:    svc.Roster(),
		})
	}
	return st
}

// Restore rebuilds the room table from a snapshot, with empty member
// lists.
func Restore(rooms *app.RoomManager, st *State) {
	for _, rs := range st.Rooms {
		rooms.RestoreRoom(rs.ID, rs.CreatedAt, rs.Messages, rs.Joined)
	}
}
