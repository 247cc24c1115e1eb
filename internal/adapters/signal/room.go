package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

func (ctl *Controller) handleJoinRoom(cid core.ConnectionID, conn *wsConn, data []byte) {
	type joinPayload struct {
		Type     string `json:"type"`
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
		return
	}

	res, ok := ctl.Orch.Join(cid, domain.RoomID(p.RoomID), p.Username)
	if !ok {
		return
	}

	// The joiner always gets the full membership snapshot, including
	// on an idempotent re-join.
	ctl.sendJSON(conn, struct {
		Type  string          `json:"type"`
		Users []domain.Member `json:"users"`
	}{
		Type:  "usersList",
		Users: res.Members,
	})

	if res.Rejoined {
		return
	}

	joined, err := json.Marshal(struct {
		Type string        `json:"type"`
		User domain.Member `json:"user"`
	}{
		Type: "userJoined",
		User: res.Member,
	})
	if err == nil {
		res.Room.BroadcastExcept(cid, joined)
	}

	count, err := json.Marshal(struct {
		Type  string `json:"type"`
		Count int    `json:"count"`
	}{
		Type:  "userCountUpdate",
		Count: res.Count,
	})
	if err == nil {
		res.Room.Broadcast(count)
	}
}

// handleDisconnect is the teardown path for graceful and abrupt closes
// alike: sweep every room, release every call, notify the remainders.
func (ctl *Controller) handleDisconnect(cid core.ConnectionID) {
	departures, ended := ctl.Orch.OnDisconnect(cid)
	ctl.limiter.Forget(cid)

	for _, dep := range departures {
		// Private channels have no presence surface; the sweep still
		// removed the membership.
		if dep.Room.Room().Private {
			continue
		}
		left, err := json.Marshal(struct {
			Type string        `json:"type"`
			User domain.Member `json:"user"`
		}{
			Type: "userLeft",
			User: dep.Member,
		})
		if err == nil {
			dep.Room.Broadcast(left)
		}

		count, err := json.Marshal(struct {
			Type  string `json:"type"`
			Count int    `json:"count"`
		}{
			Type:  "userCountUpdate",
			Count: dep.Count,
		})
		if err == nil {
			dep.Room.Broadcast(count)
		}
		log.Info().Str("module", "signal").Str("cid", string(cid)).Str("room", string(dep.RoomID)).Int("count", dep.Count).Msg("departure notified")
	}

	for _, e := range ended {
		ctl.notifyCallEnded(e.Call, e.By)
	}
}
