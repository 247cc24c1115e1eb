package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cid core.ConnectionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.handleDisconnect(cid)
		c.Close()
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(cid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(cid core.ConnectionID, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "joinRoom":
		ctl.handleJoinRoom(cid, c, data)
	case "sendMessage":
		ctl.handleSendMessage(cid, c, data)
	case "typingStart":
		ctl.handleTyping(cid, data, true)
	case "typingStop":
		ctl.handleTyping(cid, data, false)
	case "joinPrivateChat":
		ctl.handlePrivateJoin(cid, data)
	case "sendPrivateMessage":
		ctl.handlePrivateMessage(cid, c, data)
	case "typingStartPrivate":
		ctl.handlePrivateTyping(cid, data, true)
	case "typingStopPrivate":
		ctl.handlePrivateTyping(cid, data, false)
	case "videoCallRequest":
		ctl.handleCallRequest(cid, c, data, domain.CallVideo)
	case "audioCallRequest":
		ctl.handleCallRequest(cid, c, data, domain.CallAudio)
	case "videoCallOffer":
		ctl.handleCallOffer(cid, c, data, domain.CallVideo)
	case "audioCallOffer":
		ctl.handleCallOffer(cid, c, data, domain.CallAudio)
	case "videoCallAnswer":
		ctl.handleCallAnswer(cid, data, domain.CallVideo)
	case "audioCallAnswer":
		ctl.handleCallAnswer(cid, data, domain.CallAudio)
	case "iceCandidate":
		ctl.handleCandidate(cid, data)
	case "callConnected":
		ctl.handleCallConnected(cid, data)
	case "videoCallEnd":
		ctl.handleCallEnd(cid, data, domain.CallVideo)
	case "audioCallEnd":
		ctl.handleCallEnd(cid, data, domain.CallAudio)
	case "ping":
		ctl.sendJSON(c, map[string]string{"type": "pong"})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// sendToSession marshals and forwards an event to another connection.
func (ctl *Controller) sendToSession(sess core.MemberSession, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendToSession marshal")
		return err
	}
	return sess.Signal().TrySend(b)
}
