package core

import "chatrelay/internal/domain"

// Frame is a marshaled outbound event, relayed as-is.
type Frame []byte

// ConnectionID identifies one live client connection. It is allocated
// at upgrade time and reused by no other concurrent connection.
type ConnectionID string

// SignalConnection abstracts the system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a connection's identity and its transport
// endpoint. This is what rooms store and fan out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to callers.
// Delivery is best-effort, at-most-once per recipient.
type PublishResult struct {
	SentTo  int
	Dropped []ConnectionID
}

// RoomService is the core-facing API of a room. It owns the membership
// list, typing flags and the append-only message log, serialized behind
// one lock per room, and never touches adapter-owned resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []domain.Member
	Messages() []domain.Message

	// AddMember reports false when the connection is already a member;
	// re-joins must not duplicate the entry. The display name is taken
	// by value so membership never reads shared mutable metadata.
	AddMember(cid ConnectionID, name string, ms MemberSession) bool
	RemoveMember(cid ConnectionID) (domain.Member, bool)
	HasMember(cid ConnectionID) bool
	SetTyping(cid ConnectionID, typing bool) (domain.Member, bool)

	// MemberByName resolves a display name to a connection; names are
	// not unique, first match in join order wins.
	MemberByName(name string) (ConnectionID, MemberSession, bool)

	AppendMessage(msg domain.Message)
	ImportHistory(msgs []domain.Message)

	// RegisterJoin records a name on the room's join roster. The
	// roster is an append-only record of the REST join path, separate
	// from live membership, and persists with the room.
	RegisterJoin(name string)
	Roster() []string
	ImportRoster(names []string)

	SendTo(cid ConnectionID, data Frame) error
	Broadcast(data Frame) PublishResult
	BroadcastExcept(from ConnectionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}
