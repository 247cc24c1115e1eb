package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

func callEventName(mode domain.CallMode, suffix string) string {
	if mode == domain.CallAudio {
		return "audioCall" + suffix
	}
	return "videoCall" + suffix
}

func (ctl *Controller) handleCallRequest(cid core.ConnectionID, conn *wsConn, data []byte, mode domain.CallMode) {
	type requestPayload struct {
		Type       string `json:"type"`
		RoomID     string `json:"roomId"`
		TargetID   string `json:"targetUserId"`
		CallerName string `json:"callerName"`
	}
	var p requestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call request payload")
		return
	}
	callerName := ctl.callerName(cid, p.CallerName)

	type ringEvent struct {
		Type       string        `json:"type"`
		CallID     domain.CallID `json:"callId"`
		CallerID   string        `json:"callerId"`
		CallerName string        `json:"callerName"`
		RoomID     string        `json:"roomId,omitempty"`
	}

	if p.TargetID != "" {
		target := core.ConnectionID(p.TargetID)
		sess, ok := ctl.Orch.SessionOf(target)
		if !ok {
			// Reported to the initiator only, never silently dropped.
			ctl.sendCallFailed(conn, p.TargetID, "target not found")
			return
		}
		call, _ := ctl.Orch.Calls.Request(cid, callerName, target, mode)
		err := ctl.sendToSession(sess, ringEvent{
			Type:       callEventName(mode, "Request"),
			CallID:     call.ID,
			CallerID:   string(cid),
			CallerName: callerName,
			RoomID:     p.RoomID,
		})
		if err == nil {
			ctl.Orch.Calls.MarkRinging(call.ID)
		}
		return
	}

	// No explicit target: ring the whole room, one pairwise session
	// per callee.
	roomID := domain.RoomID(p.RoomID)
	room, ok := ctl.Orch.Rooms.Get(roomID)
	if !ok {
		ctl.sendJSON(conn, map[string]any{"type": "error", "error": "room not found"})
		return
	}
	var callees []core.ConnectionID
	for _, m := range room.MembersSnapshot() {
		if m.ID != string(cid) {
			callees = append(callees, core.ConnectionID(m.ID))
		}
	}
	for _, call := range ctl.Orch.Calls.RequestGroup(cid, callerName, roomID, callees, mode) {
		sess, ok := ctl.Orch.SessionOf(core.ConnectionID(call.CalleeID))
		if !ok {
			continue
		}
		err := ctl.sendToSession(sess, ringEvent{
			Type:       callEventName(mode, "Request"),
			CallID:     call.ID,
			CallerID:   string(cid),
			CallerName: callerName,
			RoomID:     p.RoomID,
		})
		if err == nil {
			ctl.Orch.Calls.MarkRinging(call.ID)
		}
	}
}

func (ctl *Controller) handleCallOffer(cid core.ConnectionID, conn *wsConn, data []byte, mode domain.CallMode) {
	type offerPayload struct {
		Type       string                    `json:"type"`
		RoomID     string                    `json:"roomId"`
		TargetID   string                    `json:"targetUserId"`
		CallerName string                    `json:"callerName"`
		Offer      webrtc.SessionDescription `json:"offer"`
	}
	var p offerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad offer payload")
		return
	}

	target := core.ConnectionID(p.TargetID)
	sess, ok := ctl.Orch.SessionOf(target)
	if !ok {
		ctl.sendCallFailed(conn, p.TargetID, "target not found")
		return
	}

	callerName := ctl.callerName(cid, p.CallerName)
	call := ctl.Orch.Calls.OnOffer(cid, callerName, target, mode)

	// The payload itself is relayed verbatim; only the envelope is
	// rewritten to name the sender.
	_ = ctl.sendToSession(sess, struct {
		Type       string                    `json:"type"`
		CallID     domain.CallID             `json:"callId"`
		Offer      webrtc.SessionDescription `json:"offer"`
		CallerID   string                    `json:"callerId"`
		CallerName string                    `json:"callerName"`
		RoomID     string                    `json:"roomId,omitempty"`
	}{
		Type:       callEventName(mode, "Offer"),
		CallID:     call.ID,
		Offer:      p.Offer,
		CallerID:   string(cid),
		CallerName: callerName,
		RoomID:     p.RoomID,
	})
}

func (ctl *Controller) handleCallAnswer(cid core.ConnectionID, data []byte, mode domain.CallMode) {
	type answerPayload struct {
		Type     string                    `json:"type"`
		TargetID string                    `json:"targetUserId"`
		Answer   webrtc.SessionDescription `json:"answer"`
	}
	var p answerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}

	target := core.ConnectionID(p.TargetID)
	sess, ok := ctl.Orch.SessionOf(target)
	if !ok {
		// Caller gone before the answer; stale, dropped.
		return
	}

	if _, ok := ctl.Orch.Calls.OnAnswer(cid, target, mode); !ok {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("answer without a tracked call, relayed anyway")
	}

	_ = ctl.sendToSession(sess, struct {
		Type       string                    `json:"type"`
		Answer     webrtc.SessionDescription `json:"answer"`
		AnswererID string                    `json:"answererId"`
	}{
		Type:       callEventName(mode, "Answer"),
		Answer:     p.Answer,
		AnswererID: string(cid),
	})
}

// handleCandidate forwards unconditionally and unordered: candidates
// are never buffered, validated or deduplicated, only addressed.
func (ctl *Controller) handleCandidate(cid core.ConnectionID, data []byte) {
	type candidatePayload struct {
		Type      string                  `json:"type"`
		TargetID  string                  `json:"targetUserId"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}

	sess, ok := ctl.Orch.SessionOf(core.ConnectionID(p.TargetID))
	if !ok {
		// Stale candidate after disconnect; dropped silently.
		return
	}
	_ = ctl.sendToSession(sess, struct {
		Type      string                  `json:"type"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
		SenderID  string                  `json:"senderId"`
	}{
		Type:      "iceCandidate",
		Candidate: p.Candidate,
		SenderID:  string(cid),
	})
}

// handleCallConnected records the transport-level acknowledgement
// that the peers established their connection.
func (ctl *Controller) handleCallConnected(cid core.ConnectionID, data []byte) {
	type connectedPayload struct {
		Type     string          `json:"type"`
		TargetID string          `json:"targetUserId"`
		Mode     domain.CallMode `json:"mode"`
	}
	var p connectedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad connected payload")
		return
	}
	if p.Mode == "" {
		p.Mode = domain.CallVideo
	}
	ctl.Orch.Calls.OnConnected(cid, core.ConnectionID(p.TargetID), p.Mode)
}

func (ctl *Controller) handleCallEnd(cid core.ConnectionID, data []byte, mode domain.CallMode) {
	type endPayload struct {
		Type     string `json:"type"`
		TargetID string `json:"targetUserId"`
		RoomID   string `json:"roomId"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call end payload")
		return
	}

	if p.TargetID != "" {
		target := core.ConnectionID(p.TargetID)
		if call, ok := ctl.Orch.Calls.End(cid, target, mode); ok {
			ctl.notifyCallEnded(call, cid)
			return
		}
		// No tracked session; relay the hang-up anyway.
		if sess, ok := ctl.Orch.SessionOf(target); ok {
			_ = ctl.sendToSession(sess, struct {
				Type     string `json:"type"`
				CallerID string `json:"callerId"`
			}{
				Type:     callEventName(mode, "End"),
				CallerID: string(cid),
			})
		}
		return
	}

	if p.RoomID == "" {
		return
	}
	roomID := domain.RoomID(p.RoomID)
	for _, call := range ctl.Orch.Calls.EndRoomFor(cid, roomID, mode) {
		ctl.notifyCallEnded(call, cid)
	}
	if room, ok := ctl.Orch.Rooms.Get(roomID); ok {
		frame, err := json.Marshal(struct {
			Type     string `json:"type"`
			CallerID string `json:"callerId"`
		}{
			Type:     callEventName(mode, "End"),
			CallerID: string(cid),
		})
		if err == nil {
			room.BroadcastExcept(cid, frame)
		}
	}
}

// notifyCallEnded tells the counterpart of a released call that it is
// over. by is the connection that caused the release.
func (ctl *Controller) notifyCallEnded(call domain.CallSession, by core.ConnectionID) {
	other := core.ConnectionID(call.CalleeID)
	if other == by {
		other = core.ConnectionID(call.CallerID)
	}
	sess, ok := ctl.Orch.SessionOf(other)
	if !ok {
		return
	}
	_ = ctl.sendToSession(sess, struct {
		Type     string `json:"type"`
		CallerID string `json:"callerId"`
	}{
		Type:     callEventName(call.Mode, "End"),
		CallerID: string(by),
	})
}

// onCallTimeout notifies the caller, and only the caller, exactly once
// per timed-out request.
func (ctl *Controller) onCallTimeout(call domain.CallSession) {
	sess, ok := ctl.Orch.SessionOf(core.ConnectionID(call.CallerID))
	if !ok {
		return
	}
	_ = ctl.sendToSession(sess, struct {
		Type     string          `json:"type"`
		CallID   domain.CallID   `json:"callId"`
		TargetID string          `json:"targetUserId"`
		Mode     domain.CallMode `json:"mode"`
	}{
		Type:     "callTimeout",
		CallID:   call.ID,
		TargetID: call.CalleeID,
		Mode:     call.Mode,
	})
}

func (ctl *Controller) sendCallFailed(conn *wsConn, targetID, reason string) {
	ctl.sendJSON(conn, struct {
		Type     string `json:"type"`
		TargetID string `json:"targetUserId"`
		Reason   string `json:"reason"`
	}{
		Type:     "callFailed",
		TargetID: targetID,
		Reason:   reason,
	})
}

func (ctl *Controller) callerName(cid core.ConnectionID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return ctl.Orch.Registry.NameOf(cid)
}
