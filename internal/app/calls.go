package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

// TimeoutFunc is invoked off the orchestrator lock when a call rings
// out. The adapter uses it to notify the caller.
type TimeoutFunc func(call domain.CallSession)

type pairKey struct {
	mode   domain.CallMode
	lo, hi string
}

func newPairKey(mode domain.CallMode, a, b core.ConnectionID) pairKey {
	x, y := string(a), string(b)
	if y < x {
		x, y = y, x
	}
	return pairKey{mode: mode, lo: x, hi: y}
}

type callEntry struct {
	call  domain.CallSession
	timer *time.Timer

	// answered blocks a stale timer fire: Stop() reports false once the
	// timer's goroutine has started, and State alone cannot distinguish
	// an answer from an offer (both negotiate).
	answered bool
}

// CallOrchestrator tracks in-flight call negotiations and their
// lifecycle. It relays nothing itself; adapters forward payloads and
// report progress here. A session reaching a terminal state is
// released immediately.
type CallOrchestrator struct {
	mu        sync.Mutex
	calls     map[domain.CallID]*callEntry
	byPair    map[pairKey]domain.CallID
	timeout   time.Duration
	onTimeout TimeoutFunc
}

func NewCallOrchestrator(timeout time.Duration) *CallOrchestrator {
	return &CallOrchestrator{
		calls:   make(map[domain.CallID]*callEntry),
		byPair:  make(map[pairKey]domain.CallID),
		timeout: timeout,
	}
}

// SetTimeoutHandler must be called during wiring, before any call.
func (o *CallOrchestrator) SetTimeoutHandler(fn TimeoutFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTimeout = fn
}

// Request starts a direct call. If a live session for the pair already
// exists the existing one is returned and no second timer is armed.
func (o *CallOrchestrator) Request(caller core.ConnectionID, callerName string, callee core.ConnectionID, mode domain.CallMode) (domain.CallSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := newPairKey(mode, caller, callee)
	if id, ok := o.byPair[key]; ok {
		if e, ok := o.calls[id]; ok {
			return e.call, false
		}
	}
	call := domain.CallSession{
		ID:         domain.DirectCallID(mode, string(caller), string(callee)),
		Mode:       mode,
		Kind:       domain.CallDirect,
		State:      domain.CallRequesting,
		CallerID:   string(caller),
		CallerName: callerName,
		CalleeID:   string(callee),
		CreatedAt:  time.Now(),
	}
	o.store(key, call)
	log.Info().Str("module", "app.calls").Str("call", string(call.ID)).Str("mode", string(mode)).Msg("call requested")
	return call, true
}

// RequestGroup fans a room call out as independent pairwise sessions,
// one per callee, each with its own timeout.
func (o *CallOrchestrator) RequestGroup(caller core.ConnectionID, callerName string, roomID domain.RoomID, callees []core.ConnectionID, mode domain.CallMode) []domain.CallSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.CallSession, 0, len(callees))
	for _, callee := range callees {
		if callee == caller {
			continue
		}
		key := newPairKey(mode, caller, callee)
		if id, ok := o.byPair[key]; ok {
			if e, ok := o.calls[id]; ok {
				out = append(out, e.call)
				continue
			}
		}
		call := domain.CallSession{
			ID:         domain.GroupCallID(),
			Mode:       mode,
			Kind:       domain.CallGroup,
			State:      domain.CallRequesting,
			CallerID:   string(caller),
			CallerName: callerName,
			CalleeID:   string(callee),
			RoomID:     roomID,
			CreatedAt:  time.Now(),
		}
		o.store(key, call)
		out = append(out, call)
	}
	log.Info().Str("module", "app.calls").Str("room", string(roomID)).Int("legs", len(out)).Msg("group call requested")
	return out
}

// store must run under o.mu.
func (o *CallOrchestrator) store(key pairKey, call domain.CallSession) {
	id := call.ID
	entry := &callEntry{call: call}
	entry.timer = time.AfterFunc(o.timeout, func() { o.expire(id) })
	o.calls[id] = entry
	o.byPair[key] = id
}

// MarkRinging records that the ring notification reached the callee.
func (o *CallOrchestrator) MarkRinging(id domain.CallID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.calls[id]; ok && e.call.State == domain.CallRequesting {
		e.call.State = domain.CallRinging
	}
}

// OnOffer attaches a negotiation payload to the pair's call, creating
// one on the fly when the offer races ahead of the request.
func (o *CallOrchestrator) OnOffer(caller core.ConnectionID, callerName string, target core.ConnectionID, mode domain.CallMode) domain.CallSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := newPairKey(mode, caller, target)
	if id, ok := o.byPair[key]; ok {
		if e, ok := o.calls[id]; ok {
			if !e.call.State.Terminal() && e.call.State != domain.CallActive {
				e.call.State = domain.CallNegotiating
			}
			return e.call
		}
	}
	call := domain.CallSession{
		ID:         domain.DirectCallID(mode, string(caller), string(target)),
		Mode:       mode,
		Kind:       domain.CallDirect,
		State:      domain.CallNegotiating,
		CallerID:   string(caller),
		CallerName: callerName,
		CalleeID:   string(target),
		CreatedAt:  time.Now(),
	}
	o.store(key, call)
	return call
}

// OnAnswer cancels the request timeout. The call stays in negotiating
// until the transport-level acknowledgement arrives.
func (o *CallOrchestrator) OnAnswer(callee, caller core.ConnectionID, mode domain.CallMode) (domain.CallSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.pairEntry(mode, callee, caller)
	if !ok || e.call.State.Terminal() {
		return domain.CallSession{}, false
	}
	e.timer.Stop()
	e.answered = true
	if e.call.State != domain.CallActive {
		e.call.State = domain.CallNegotiating
	}
	return e.call, true
}

// OnConnected marks the call active. The acknowledgement originates at
// the transport layer between the two ends and is informational only;
// the relay cannot verify actual media flow.
func (o *CallOrchestrator) OnConnected(a, b core.ConnectionID, mode domain.CallMode) (domain.CallSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.pairEntry(mode, a, b)
	if !ok || e.call.State.Terminal() {
		return domain.CallSession{}, false
	}
	e.timer.Stop()
	e.answered = true
	e.call.State = domain.CallActive
	log.Info().Str("module", "app.calls").Str("call", string(e.call.ID)).Msg("call active")
	return e.call, true
}

// End terminates the pair's call: cancel, decline or hang-up all land
// here.
func (o *CallOrchestrator) End(a, b core.ConnectionID, mode domain.CallMode) (domain.CallSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.pairEntry(mode, a, b)
	if !ok {
		return domain.CallSession{}, false
	}
	call := o.release(e)
	return call, true
}

// EndAllFor releases every call the connection participates in and
// returns them so the adapter can notify the counterparts.
func (o *CallOrchestrator) EndAllFor(cid core.ConnectionID) []domain.CallSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.CallSession
	for _, e := range o.calls {
		if e.call.CallerID == string(cid) || e.call.CalleeID == string(cid) {
			out = append(out, o.release(e))
		}
	}
	return out
}

// EndRoomFor releases the group legs the connection initiated into a
// room, for room-wide call-end events.
func (o *CallOrchestrator) EndRoomFor(cid core.ConnectionID, roomID domain.RoomID, mode domain.CallMode) []domain.CallSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.CallSession
	for _, e := range o.calls {
		if e.call.Mode == mode && e.call.RoomID == roomID &&
			(e.call.CallerID == string(cid) || e.call.CalleeID == string(cid)) {
			out = append(out, o.release(e))
		}
	}
	return out
}

func (o *CallOrchestrator) Get(id domain.CallID) (domain.CallSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.calls[id]; ok {
		return e.call, true
	}
	return domain.CallSession{}, false
}

func (o *CallOrchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

// pairEntry must run under o.mu.
func (o *CallOrchestrator) pairEntry(mode domain.CallMode, a, b core.ConnectionID) (*callEntry, bool) {
	id, ok := o.byPair[newPairKey(mode, a, b)]
	if !ok {
		return nil, false
	}
	e, ok := o.calls[id]
	return e, ok
}

// release must run under o.mu.
func (o *CallOrchestrator) release(e *callEntry) domain.CallSession {
	e.timer.Stop()
	e.call.State = domain.CallEnded
	delete(o.calls, e.call.ID)
	delete(o.byPair, newPairKey(e.call.Mode, core.ConnectionID(e.call.CallerID), core.ConnectionID(e.call.CalleeID)))
	log.Info().Str("module", "app.calls").Str("call", string(e.call.ID)).Msg("call released")
	return e.call
}

func (o *CallOrchestrator) expire(id domain.CallID) {
	o.mu.Lock()
	e, ok := o.calls[id]
	if !ok || e.answered || e.call.State == domain.CallActive || e.call.State.Terminal() {
		// A fast answer can race the timer fire itself; once the answer
		// landed a stale fire must not produce a second terminal event.
		o.mu.Unlock()
		return
	}
	call := o.release(e)
	fn := o.onTimeout
	o.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call", string(call.ID)).Msg("call request timed out")
	if fn != nil {
		fn(call)
	}
}
