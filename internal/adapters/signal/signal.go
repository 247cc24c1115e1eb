// Package signal is the WebSocket adapter: one connection actor per
// client, reading named events and relaying outbound events back. It
// owns the transport; all shared state goes through the orchestrator.
package signal

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatrelay/internal/app/orch"
	"chatrelay/internal/config"
	"chatrelay/internal/core"
	"chatrelay/internal/domain"
	"chatrelay/pkg/errors"
)

type Controller struct {
	Orch    *orch.Orchestrator
	cfg     *config.Config
	limiter *MessageRateLimiter
}

func NewController(o *orch.Orchestrator, cfg *config.Config) *Controller {
	ctl := &Controller{
		Orch:    o,
		cfg:     cfg,
		limiter: NewMessageRateLimiter(cfg.MessageRateLimit, cfg.MessageRateWindow),
	}
	o.Calls.SetTimeoutHandler(ctl.onCallTimeout)
	return ctl
}

// wsConn is the adapter-owned transport endpoint behind
// core.SignalConnection. Sends never block: a full buffer means the
// frame is dropped and the error reported to the caller.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.ErrBackpressure
	}
	select {
	case c.send <- f:
	default:
		return errors.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and starts the connection actor.
// The connection id is fresh per live connection; the cookie client
// token only identifies the browser across reconnects, for logging.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	cid := core.ConnectionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("cid", string(cid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	meta := domain.NewMember(string(cid), "guest")
	sess := core.NewMemberSession(meta, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(cid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}
