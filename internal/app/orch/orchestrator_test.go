package orch

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/app"
	"chatrelay/internal/core"
	"chatrelay/internal/domain"
)

type nopConn struct{ frames []core.Frame }

func (c *nopConn) TrySend(f core.Frame) error { c.frames = append(c.frames, f); return nil }
func (c *nopConn) Close()                     {}

func newTestOrchestrator() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Calls:    app.NewCallOrchestrator(time.Minute),
	}
}

func connect(t *testing.T, o *Orchestrator, cid core.ConnectionID, name string) *nopConn {
	t.Helper()
	conn := &nopConn{}
	o.Registry.Bind(cid, core.NewMemberSession(domain.NewMember(string(cid), name), conn), nil)
	return conn
}

func TestJoinCreatesRoomImplicitly(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")

	res, ok := o.Join("c1", "ABCD1234", "alice")
	if !ok {
		t.Fatal("Join() failed for a bound connection")
	}
	if res.Rejoined {
		t.Error("first join reported as rejoin")
	}
	if res.Member.Name != "alice" || res.Member.ID != "c1" {
		t.Errorf("joined member = %+v, want alice/c1", res.Member)
	}
	if res.Count != 1 || len(res.Members) != 1 {
		t.Errorf("count/snapshot = %d/%d, want 1/1", res.Count, len(res.Members))
	}
	if _, ok := o.Rooms.Get("ABCD1234"); !ok {
		t.Error("join did not create the room")
	}
}

func TestJoinUnknownConnection(t *testing.T) {
	o := newTestOrchestrator()
	if _, ok := o.Join("ghost", "ABCD1234", "x"); ok {
		t.Error("Join() succeeded for an unbound connection")
	}
	if _, ok := o.Rooms.Get("ABCD1234"); ok {
		t.Error("failed join still created the room")
	}
}

func TestRejoinIsIdempotent(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")

	o.Join("c1", "R1", "alice")
	res, ok := o.Join("c1", "R1", "alice")
	if !ok || !res.Rejoined {
		t.Fatalf("second join = (rejoined=%v, ok=%v), want rejoin", res.Rejoined, ok)
	}
	if res.Count != 1 {
		t.Errorf("member count after rejoin = %d, want 1", res.Count)
	}
}

func TestDisconnectSweepsEveryRoom(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	connect(t, o, "c2", "bob")

	o.Join("c1", "ROOM-A", "alice")
	o.Join("c1", "ROOM-B", "alice")
	o.Join("c2", "ROOM-A", "bob")
	o.Calls.Request("c1", "alice", "c2", domain.CallVideo)

	departures, ended := o.OnDisconnect("c1")
	if len(departures) != 2 {
		t.Fatalf("disconnect swept %d rooms, want 2", len(departures))
	}
	for _, d := range departures {
		if d.Member.ID != "c1" || d.Member.Status != domain.StatusOffline {
			t.Errorf("departure member = %+v, want offline c1", d.Member)
		}
	}
	if len(ended) != 1 || ended[0].By != "c1" {
		t.Errorf("disconnect released %d calls, want the c1-c2 call", len(ended))
	}

	roomA, _ := o.Rooms.Get("ROOM-A")
	if roomA.HasMember("c1") || !roomA.HasMember("c2") {
		t.Error("ROOM-A membership after disconnect is wrong")
	}
	if _, ok := o.Registry.GetSession("c1"); ok {
		t.Error("connection still registered after disconnect")
	}
}

func TestDisconnectRunsStoredCancel(t *testing.T) {
	o := newTestOrchestrator()
	conn := &nopConn{}
	canceled := false
	o.Registry.Bind("c1", core.NewMemberSession(domain.NewMember("c1", "alice"), conn), func() { canceled = true })

	o.Join("c1", "R1", "alice")
	o.OnDisconnect("c1")
	if !canceled {
		t.Error("disconnect did not run the connection's cancel func")
	}
}

func TestJoinRecordsDisplayNameInRegistry(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "guest")

	o.Join("c1", "R1", "alice")
	if got := o.Registry.NameOf("c1"); got != "alice" {
		t.Errorf("NameOf after join = %q, want alice", got)
	}

	// An empty name keeps the last known one.
	res, _ := o.Join("c1", "R2", "")
	if res.Member.Name != "alice" {
		t.Errorf("join without a name produced member %q, want alice", res.Member.Name)
	}
}

func TestConcurrentJoinsAndNameReads(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "guest")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		roomID := domain.RoomID(fmt.Sprintf("ROOM000%d", i))
		go func() {
			defer wg.Done()
			o.Join("c1", roomID, "alice")
		}()
		go func() {
			defer wg.Done()
			_ = o.Registry.NameOf("c1")
		}()
	}
	wg.Wait()

	if got := o.Registry.NameOf("c1"); got != "alice" {
		t.Errorf("NameOf after concurrent joins = %q, want alice", got)
	}
}

func TestJoinPrivateSharesOnePairRoom(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	connect(t, o, "c2", "bob")

	roomA, ok := o.JoinPrivate("c1", "c1", "c2")
	if !ok {
		t.Fatal("JoinPrivate failed for a bound connection")
	}
	roomB, _ := o.JoinPrivate("c2", "c2", "c1")
	if roomA != roomB {
		t.Error("the two ends landed in different pair rooms")
	}
	if !roomA.Room().Private {
		t.Error("pair room not marked private")
	}
	if roomA.MemberCount() != 2 {
		t.Errorf("pair room has %d members, want 2", roomA.MemberCount())
	}

	// Disconnect sweeps the private membership like any other.
	departures, _ := o.OnDisconnect("c1")
	if len(departures) != 1 || !departures[0].Room.Room().Private {
		t.Fatalf("disconnect swept %d rooms, want the private one", len(departures))
	}
	if roomA.HasMember("c1") {
		t.Error("disconnected end still a pair room member")
	}
}

func TestRouteMessageBroadcast(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	o.Join("c1", "R1", "alice")

	msg := domain.NewMessage("c1", "alice", "hello room")
	res := o.RouteMessage("R1", "c1", msg)
	if res.Outcome != RouteBroadcast {
		t.Fatalf("outcome = %d, want broadcast", res.Outcome)
	}
	if got := res.Room.Messages(); len(got) != 1 || got[0].Content != msg.Content {
		t.Errorf("room log = %+v, want the routed message", got)
	}
}

func TestRouteMessagePrivate(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	connect(t, o, "c2", "bob")
	o.Join("c1", "R1", "alice")
	o.Join("c2", "R1", "bob")

	msg := domain.NewMessage("c2", "bob", "just for you")
	msg.IsPrivate = true
	msg.TargetName = "alice"

	res := o.RouteMessage("R1", "c2", msg)
	if res.Outcome != RoutePrivate {
		t.Fatalf("outcome = %d, want private", res.Outcome)
	}
	if res.Target != "c1" {
		t.Errorf("target = %s, want c1 (alice)", res.Target)
	}
	// Private messages land in the log too.
	if got := res.Room.Messages(); len(got) != 1 {
		t.Errorf("room log holds %d messages, want 1", len(got))
	}
}

func TestRouteMessageTargetMissing(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	o.Join("c1", "R1", "alice")

	msg := domain.NewMessage("c1", "alice", "anyone?")
	msg.IsPrivate = true
	msg.TargetName = "nobody"

	res := o.RouteMessage("R1", "c1", msg)
	if res.Outcome != RouteTargetMissing {
		t.Fatalf("outcome = %d, want target-missing", res.Outcome)
	}
	// Logged before routing, even when undeliverable.
	if got := res.Room.Messages(); len(got) != 1 {
		t.Errorf("room log holds %d messages, want 1", len(got))
	}
}

func TestRouteMessageUnknownRoomNeverCreates(t *testing.T) {
	o := newTestOrchestrator()
	res := o.RouteMessage("NOPE", "c1", domain.NewMessage("c1", "alice", "hi"))
	if res.Outcome != RouteRoomMissing {
		t.Fatalf("outcome = %d, want room-missing", res.Outcome)
	}
	if _, ok := o.Rooms.Get("NOPE"); ok {
		t.Error("message routing created a room")
	}
}

func TestSetTypingStaleConnection(t *testing.T) {
	o := newTestOrchestrator()
	connect(t, o, "c1", "alice")
	o.Join("c1", "R1", "alice")

	member, _, ok := o.SetTyping("R1", "c1", true)
	if !ok || !member.IsTyping {
		t.Fatalf("SetTyping for a member = (%+v, %v), want typing", member, ok)
	}
	if _, _, ok := o.SetTyping("R1", "stranger", true); ok {
		t.Error("SetTyping accepted a non-member connection")
	}
	if _, _, ok := o.SetTyping("GONE", "c1", true); ok {
		t.Error("SetTyping accepted an unknown room")
	}
}
