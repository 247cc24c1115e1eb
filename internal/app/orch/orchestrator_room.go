package orch

import (
	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

// JoinResult carries everything the adapter needs to emit the join
// events: the member snapshot goes to the joiner, the new member and
// count go to the room.
type JoinResult struct {
	Room     core.RoomService
	Member   domain.Member
	Members  []domain.Member
	Count    int
	Rejoined bool
}

// Departure describes one swept membership on leave/disconnect.
type Departure struct {
	Room   core.RoomService
	RoomID domain.RoomID
	Member domain.Member
	Count  int
}

// EndedCall pairs a released call with the connection that caused it.
type EndedCall struct {
	Call domain.CallSession
	By   core.ConnectionID
}

// Join adds the connection to the room, creating the room implicitly
// when the join races the explicit create call. Re-joining with the
// same connection is a no-op that re-emits the membership snapshot.
func (o *Orchestrator) Join(cid core.ConnectionID, roomID domain.RoomID, name string) (JoinResult, bool) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return JoinResult{}, false
	}
	o.Registry.SetName(cid, name)

	room := o.Rooms.GetOrCreate(roomID)
	added := room.AddMember(cid, o.Registry.NameOf(cid), sess)
	if added {
		o.Registry.AddRoom(cid, roomID)
	}

	var member domain.Member
	members := room.MembersSnapshot()
	for _, m := range members {
		if m.ID == string(cid) {
			member = m
			break
		}
	}

	log.Info().Str("module", "app.orch").Str("cid", string(cid)).Str("room", string(roomID)).Bool("rejoined", !added).Msg("join")
	return JoinResult{
		Room:     room,
		Member:   member,
		Members:  members,
		Count:    room.MemberCount(),
		Rejoined: !added,
	}, true
}

// JoinPrivate puts the connection into the two-party direct-message
// room for the given participant pair. No presence events are emitted
// for private rooms; the channel exists only to address messages.
func (o *Orchestrator) JoinPrivate(cid core.ConnectionID, userID, targetID string) (core.RoomService, bool) {
	sess, ok := o.Registry.GetSession(cid)
	if !ok {
		return nil, false
	}
	roomID := domain.PrivateRoomID(userID, targetID)
	room := o.Rooms.GetOrCreatePrivate(roomID)
	if room.AddMember(cid, o.Registry.NameOf(cid), sess) {
		o.Registry.AddRoom(cid, roomID)
	}
	log.Info().Str("module", "app.orch").Str("cid", string(cid)).Str("room", string(roomID)).Msg("private chat join")
	return room, true
}

// LeaveAll removes the connection from every room it was found in and
// reports each departure so remaining members can be notified.
func (o *Orchestrator) LeaveAll(cid core.ConnectionID) []Departure {
	var out []Departure
	for _, roomID := range o.Registry.RoomsOf(cid) {
		room, ok := o.Rooms.Get(roomID)
		if !ok {
			continue
		}
		member, removed := room.RemoveMember(cid)
		o.Registry.RemoveRoom(cid, roomID)
		if !removed {
			continue
		}
		out = append(out, Departure{
			Room:   room,
			RoomID: roomID,
			Member: member,
			Count:  room.MemberCount(),
		})
	}
	return out
}

// SetTyping flips the member's typing flag. Stale events from
// connections no longer in the room are silently dropped.
func (o *Orchestrator) SetTyping(roomID domain.RoomID, cid core.ConnectionID, typing bool) (domain.Member, core.RoomService, bool) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.Member{}, nil, false
	}
	member, ok := room.SetTyping(cid, typing)
	if !ok {
		return domain.Member{}, nil, false
	}
	return member, room, true
}
