package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

// Direct-message channels ride on pairwise private rooms keyed by the
// sorted participant ids. Joining one is silent: no usersList, no
// presence events, just an addressable channel.
func (ctl *Controller) handlePrivateJoin(cid core.ConnectionID, data []byte) {
	type joinPayload struct {
		Type     string `json:"type"`
		UserID   string `json:"userId"`
		TargetID string `json:"targetUserId"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" || p.TargetID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad private join payload")
		return
	}
	ctl.Orch.JoinPrivate(cid, p.UserID, p.TargetID)
}

// handlePrivateMessage relays the message payload verbatim to the pair
// room and echoes it to the sender. The echo goes out even when the
// counterpart never joined the channel.
func (ctl *Controller) handlePrivateMessage(cid core.ConnectionID, conn *wsConn, data []byte) {
	type sendPayload struct {
		Type       string          `json:"type"`
		SenderID   string          `json:"senderId"`
		ReceiverID string          `json:"receiverId"`
		Message    json.RawMessage `json:"message"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad private message payload")
		return
	}

	if !ctl.limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("private message rate limit hit, dropped")
		return
	}

	frame, err := json.Marshal(struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}{
		Type:    "privateMessage",
		Message: p.Message,
	})
	if err != nil {
		return
	}

	roomID := domain.PrivateRoomID(p.SenderID, p.ReceiverID)
	if room, ok := ctl.Orch.Rooms.Get(roomID); ok {
		room.BroadcastExcept(cid, frame)
	}
	_ = conn.TrySend(frame)
}

func (ctl *Controller) handlePrivateTyping(cid core.ConnectionID, data []byte, typing bool) {
	type typingPayload struct {
		Type     string `json:"type"`
		UserID   string `json:"userId"`
		TargetID string `json:"targetUserId"`
	}
	var p typingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad private typing payload")
		return
	}

	room, ok := ctl.Orch.Rooms.Get(domain.PrivateRoomID(p.UserID, p.TargetID))
	if !ok {
		return
	}
	frame, err := json.Marshal(struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		IsTyping bool   `json:"isTyping"`
	}{
		Type:     "userTyping",
		Username: p.UserID,
		IsTyping: typing,
	})
	if err != nil {
		return
	}
	room.BroadcastExcept(cid, frame)
}
