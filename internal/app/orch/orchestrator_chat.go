package orch

import (
	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

type RouteOutcome int

const (
	RouteRoomMissing RouteOutcome = iota
	RouteBroadcast
	RoutePrivate
	RouteTargetMissing
)

// RouteResult is the routing decision for one message. Delivery stays
// with the adapter, which owns the wire encoding.
type RouteResult struct {
	Outcome RouteOutcome
	Room    core.RoomService
	Message domain.Message
	Target  core.ConnectionID
}

// RouteMessage appends the message to the room log and decides
// broadcast vs. private delivery. The append happens before routing,
// so the log order matches arrival order regardless of target
// resolution. Sending against an unknown room is dropped; message
// delivery never creates rooms.
func (o *Orchestrator) RouteMessage(roomID domain.RoomID, sender core.ConnectionID, msg domain.Message) RouteResult {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		log.Warn().Str("module", "app.orch").Str("room", string(roomID)).Msg("message for unknown room dropped")
		return RouteResult{Outcome: RouteRoomMissing, Message: msg}
	}

	room.AppendMessage(msg)

	if msg.IsPrivate && msg.TargetName != "" {
		target, _, found := room.MemberByName(msg.TargetName)
		if !found {
			log.Info().Str("module", "app.orch").Str("room", string(roomID)).Str("target", msg.TargetName).Msg("private target not found")
			return RouteResult{Outcome: RouteTargetMissing, Room: room, Message: msg}
		}
		return RouteResult{Outcome: RoutePrivate, Room: room, Message: msg, Target: target}
	}

	return RouteResult{Outcome: RouteBroadcast, Room: room, Message: msg}
}
