// Package domain contains entity without logic, just meta-data
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type RoomID string

// Room is a named group chat context. Membership and the message log
// live in the room service, not here. Private rooms back two-party
// direct-message channels and are never persisted.
type Room struct {
	ID        RoomID    `json:"id"`
	Private   bool      `json:"private,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRoomID returns an opaque short token: the first 8 hex chars of a
// UUID, uppercased. Collision checking is the room manager's job.
func NewRoomID() RoomID {
	return RoomID(strings.ToUpper(uuid.NewString()[:8]))
}

func NewRoom() *Room {
	return &Room{ID: NewRoomID(), CreatedAt: time.Now()}
}

// PrivateRoomID derives the direct-message channel id from the
// unordered pair of participant ids, so both ends land in the same
// room no matter who opened it.
func PrivateRoomID(a, b string) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(a + "-" + b)
}
