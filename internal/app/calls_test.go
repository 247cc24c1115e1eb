package app

import (
	"sync"
	"testing"
	"time"

	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

type timeoutRecorder struct {
	mu    sync.Mutex
	calls []domain.CallSession
}

func (r *timeoutRecorder) record(call domain.CallSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *timeoutRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *timeoutRecorder) first() domain.CallSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[0]
}

func newTestCalls(timeout time.Duration) (*CallOrchestrator, *timeoutRecorder) {
	o := NewCallOrchestrator(timeout)
	rec := &timeoutRecorder{}
	o.SetTimeoutHandler(rec.record)
	return o, rec
}

func TestCallRequestLifecycle(t *testing.T) {
	o, _ := newTestCalls(time.Minute)

	call, created := o.Request("a", "alice", "b", domain.CallVideo)
	if !created {
		t.Fatal("Request() did not create a call")
	}
	if call.State != domain.CallRequesting {
		t.Errorf("new call state = %s, want requesting", call.State)
	}
	if call.Kind != domain.CallDirect || call.Mode != domain.CallVideo {
		t.Errorf("call kind/mode = %s/%s, want direct/video", call.Kind, call.Mode)
	}

	// A second request for the same live pair reuses the session.
	again, created := o.Request("a", "alice", "b", domain.CallVideo)
	if created || again.ID != call.ID {
		t.Errorf("duplicate Request() = (%s, %v), want existing id without creation", again.ID, created)
	}

	o.MarkRinging(call.ID)
	got, ok := o.Get(call.ID)
	if !ok || got.State != domain.CallRinging {
		t.Errorf("after MarkRinging state = %s, want ringing", got.State)
	}

	ended, ok := o.End("b", "a", domain.CallVideo)
	if !ok || ended.State != domain.CallEnded {
		t.Fatalf("End() = (%s, %v), want ended call", ended.State, ok)
	}
	if _, ok := o.Get(call.ID); ok {
		t.Error("ended call still tracked")
	}
}

func TestCallDeterministicDirectID(t *testing.T) {
	a := domain.DirectCallID(domain.CallVideo, "x", "y")
	b := domain.DirectCallID(domain.CallVideo, "y", "x")
	if a != b {
		t.Errorf("DirectCallID is order-dependent: %s != %s", a, b)
	}
	if a == domain.DirectCallID(domain.CallAudio, "x", "y") {
		t.Error("audio and video call ids for the same pair collide")
	}
}

func TestCallTimeoutFiresOnce(t *testing.T) {
	o, rec := newTestCalls(30 * time.Millisecond)

	call, _ := o.Request("a", "alice", "b", domain.CallAudio)
	o.MarkRinging(call.ID)

	time.Sleep(120 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("timeout handler fired %d times, want exactly 1", rec.count())
	}
	if rec.first().CallerID != "a" {
		t.Errorf("timeout reported caller %s, want a", rec.first().CallerID)
	}
	if _, ok := o.Get(call.ID); ok {
		t.Error("timed-out call still tracked")
	}
}

func TestCallAnswerCancelsTimeout(t *testing.T) {
	o, rec := newTestCalls(40 * time.Millisecond)

	call, _ := o.Request("a", "alice", "b", domain.CallVideo)
	o.MarkRinging(call.ID)

	if _, ok := o.OnAnswer("b", "a", domain.CallVideo); !ok {
		t.Fatal("OnAnswer() did not find the ringing call")
	}

	time.Sleep(120 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("timeout fired after an answer, %d notices", rec.count())
	}

	got, ok := o.Get(call.ID)
	if !ok || got.State != domain.CallNegotiating {
		t.Errorf("answered call state = %s, want negotiating", got.State)
	}
}

func TestCallStaleTimerFireAfterAnswerIsIgnored(t *testing.T) {
	o, rec := newTestCalls(time.Minute)

	call, _ := o.Request("a", "alice", "b", domain.CallVideo)
	o.MarkRinging(call.ID)
	if _, ok := o.OnAnswer("b", "a", domain.CallVideo); !ok {
		t.Fatal("OnAnswer() did not find the ringing call")
	}

	// A timer that fired just before OnAnswer stopped it still runs
	// expire once it wins the lock; the answered call must survive.
	o.expire(call.ID)

	if rec.count() != 0 {
		t.Fatalf("stale timer fire produced %d timeout notices, want 0", rec.count())
	}
	got, ok := o.Get(call.ID)
	if !ok || got.State != domain.CallNegotiating {
		t.Errorf("answered call = (%s, %v), want negotiating and still tracked", got.State, ok)
	}
}

func TestCallConnectedMarksActive(t *testing.T) {
	o, rec := newTestCalls(40 * time.Millisecond)

	call, _ := o.Request("a", "alice", "b", domain.CallVideo)
	o.OnOffer("a", "alice", "b", domain.CallVideo)
	o.OnAnswer("b", "a", domain.CallVideo)

	got, ok := o.OnConnected("a", "b", domain.CallVideo)
	if !ok || got.State != domain.CallActive {
		t.Fatalf("OnConnected = (%s, %v), want active", got.State, ok)
	}

	time.Sleep(120 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("timeout fired on an active call")
	}
	if got, _ := o.Get(call.ID); got.State != domain.CallActive {
		t.Errorf("state = %s, want active to stick", got.State)
	}
}

func TestCallOfferWithoutRequestCreatesSession(t *testing.T) {
	o, _ := newTestCalls(time.Minute)

	call := o.OnOffer("a", "alice", "b", domain.CallAudio)
	if call.State != domain.CallNegotiating {
		t.Errorf("offer-first call state = %s, want negotiating", call.State)
	}
	if call.ID != domain.DirectCallID(domain.CallAudio, "a", "b") {
		t.Errorf("offer-first call got id %s, want deterministic pair id", call.ID)
	}
}

func TestGroupCallPairwiseSessions(t *testing.T) {
	o, _ := newTestCalls(time.Minute)

	callees := []core.ConnectionID{"b", "c", "d", "a"} // caller filtered out
	legs := o.RequestGroup("a", "alice", "ROOM1", callees, domain.CallVideo)
	if len(legs) != 3 {
		t.Fatalf("RequestGroup created %d legs, want 3", len(legs))
	}
	ids := make(map[domain.CallID]bool)
	for _, leg := range legs {
		if leg.Kind != domain.CallGroup || leg.RoomID != "ROOM1" || leg.CallerID != "a" {
			t.Errorf("leg %+v not a group leg from a into ROOM1", leg)
		}
		if ids[leg.ID] {
			t.Errorf("duplicate leg id %s", leg.ID)
		}
		ids[leg.ID] = true
	}

	// Each leg negotiates independently.
	if _, ok := o.OnAnswer("c", "a", domain.CallVideo); !ok {
		t.Error("pairwise leg a-c not addressable")
	}
	ended := o.EndRoomFor("a", "ROOM1", domain.CallVideo)
	if len(ended) != 3 {
		t.Errorf("EndRoomFor released %d legs, want 3", len(ended))
	}
	if o.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after room end, want 0", o.ActiveCount())
	}
}

func TestEndAllForReleasesEveryCall(t *testing.T) {
	o, rec := newTestCalls(50 * time.Millisecond)

	o.Request("a", "alice", "b", domain.CallVideo)
	o.Request("a", "alice", "c", domain.CallAudio)
	o.Request("d", "dave", "a", domain.CallVideo)
	o.Request("b", "bob", "c", domain.CallVideo) // unrelated

	ended := o.EndAllFor("a")
	if len(ended) != 3 {
		t.Fatalf("EndAllFor released %d calls, want 3", len(ended))
	}
	if o.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want the unrelated call to survive", o.ActiveCount())
	}

	// Released timers must not fire later.
	time.Sleep(120 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("timeout notices = %d, want 1 (only the surviving call)", rec.count())
	}
}
