package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	CallID    string
	CallMode  string
	CallKind  string
	CallState string
)

const (
	CallAudio CallMode = "audio"
	CallVideo CallMode = "video"
)

const (
	CallDirect CallKind = "direct"
	CallGroup  CallKind = "group"
)

const (
	CallIdle        CallState = "idle"
	CallRequesting  CallState = "requesting"
	CallRinging     CallState = "ringing"
	CallNegotiating CallState = "negotiating"
	CallActive      CallState = "active"
	CallEnded       CallState = "ended"
)

// CallSession is one pairwise negotiation between a caller and a callee.
// Group calls hold one session per (initiator, callee) pair; the relay
// brokers each handshake independently and has no mesh awareness.
type CallSession struct {
	ID         CallID    `json:"callId"`
	Mode       CallMode  `json:"mode"`
	Kind       CallKind  `json:"kind"`
	State      CallState `json:"state"`
	CallerID   string    `json:"callerId"`
	CallerName string    `json:"callerName,omitempty"`
	CalleeID   string    `json:"calleeId"`
	RoomID     RoomID    `json:"roomId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DirectCallID derives a deterministic id from the unordered pair of
// connection ids, so both ends address the same session.
func DirectCallID(mode CallMode, a, b string) CallID {
	if b < a {
		a, b = b, a
	}
	return CallID(fmt.Sprintf("%s:%s:%s", mode, a, b))
}

// GroupCallID is generated fresh for each pairwise leg of a group call.
func GroupCallID() CallID {
	return CallID(uuid.NewString())
}

func (s CallState) Terminal() bool { return s == CallEnded }
