package signal

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/app/orch"
	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

func (ctl *Controller) handleSendMessage(cid core.ConnectionID, conn *wsConn, data []byte) {
	type sendPayload struct {
		Type        string          `json:"type"`
		RoomID      string          `json:"roomId"`
		Username    string          `json:"username"`
		Message     string          `json:"message"`
		MessageData *domain.Message `json:"messageData,omitempty"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}

	if !ctl.limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("message rate limit hit, dropped")
		return
	}

	// messageData, when present, is trusted verbatim for id, timestamp
	// and encoding; otherwise the payload is synthesized here.
	var msg domain.Message
	if p.MessageData != nil {
		msg = *p.MessageData
	} else {
		msg = domain.NewMessage(string(cid), p.Username, p.Message)
	}

	res := ctl.Orch.RouteMessage(domain.RoomID(p.RoomID), cid, msg)
	switch res.Outcome {
	case orch.RouteBroadcast:
		frame, err := marshalReceive(res.Message)
		if err != nil {
			return
		}
		res.Room.Broadcast(frame)

	case orch.RoutePrivate:
		frame, err := marshalReceive(res.Message)
		if err != nil {
			return
		}
		// Target plus a sender echo; a self-addressed message gets
		// exactly one copy.
		_ = res.Room.SendTo(res.Target, frame)
		if res.Target != cid {
			_ = conn.TrySend(frame)
		}

	case orch.RouteTargetMissing:
		ctl.sendJSON(conn, struct {
			Type            string         `json:"type"`
			Message         string         `json:"message"`
			OriginalMessage domain.Message `json:"originalMessage"`
		}{
			Type:            "privateMessageError",
			Message:         fmt.Sprintf("User %s not found", res.Message.TargetName),
			OriginalMessage: res.Message,
		})

	case orch.RouteRoomMissing:
		// Dropped; message delivery never creates rooms.
	}
}

func marshalReceive(msg domain.Message) (core.Frame, error) {
	b, err := json.Marshal(struct {
		Type    string         `json:"type"`
		Message domain.Message `json:"message"`
	}{
		Type:    "receiveMessage",
		Message: msg,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("marshal receiveMessage")
	}
	return b, err
}

func (ctl *Controller) handleTyping(cid core.ConnectionID, data []byte, typing bool) {
	type typingPayload struct {
		Type   string `json:"type"`
		RoomID string `json:"roomId"`
	}
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad typing payload")
		return
	}

	member, room, ok := ctl.Orch.SetTyping(domain.RoomID(p.RoomID), cid, typing)
	if !ok {
		// Stale typing event after disconnect; not an error.
		return
	}

	frame, err := json.Marshal(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		IsTyping bool   `json:"isTyping"`
	}{
		Type:     "userTyping",
		Username: member.Name,
		IsTyping: typing,
	})
	if err != nil {
		return
	}
	room.BroadcastExcept(cid, frame)
}
