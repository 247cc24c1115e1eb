package core

import (
	"fmt"
	"sync"
	"testing"

	"chatrelay/internal/domain"
)

// fakeConn records every frame sent through it.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("send failed")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRoom() RoomService {
	return NewRoomService(&domain.Room{ID: "ROOM1"})
}

func addMember(t *testing.T, r RoomService, cid, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	sess := NewMemberSession(domain.NewMember(cid, name), conn)
	if !r.AddMember(ConnectionID(cid), name, sess) {
		t.Fatalf("AddMember(%s) reported duplicate on first join", cid)
	}
	return conn
}

func TestRoomMembershipOrderAndIdempotency(t *testing.T) {
	r := newTestRoom()

	names := []string{"alice", "bob", "carol"}
	for i, name := range names {
		addMember(t, r, fmt.Sprintf("c%d", i), name)
	}

	// Re-join must not duplicate the entry.
	rejoin := NewMemberSession(domain.NewMember("c1", "bob"), &fakeConn{})
	if r.AddMember("c1", "bob", rejoin) {
		t.Error("AddMember() accepted a duplicate connection")
	}

	members := r.MembersSnapshot()
	if len(members) != len(names) {
		t.Fatalf("MemberCount = %d, want %d", len(members), len(names))
	}
	for i, m := range members {
		if m.Name != names[i] {
			t.Errorf("members[%d].Name = %q, want %q (join order)", i, m.Name, names[i])
		}
		if m.Status != domain.StatusOnline {
			t.Errorf("members[%d].Status = %q, want online", i, m.Status)
		}
	}
}

func TestRoomRemoveMember(t *testing.T) {
	r := newTestRoom()
	addMember(t, r, "c0", "alice")
	addMember(t, r, "c1", "bob")

	member, ok := r.RemoveMember("c0")
	if !ok {
		t.Fatal("RemoveMember() did not find the member")
	}
	if member.Name != "alice" {
		t.Errorf("removed member Name = %q, want alice", member.Name)
	}
	if member.Status != domain.StatusOffline {
		t.Errorf("removed member Status = %q, want offline", member.Status)
	}
	if r.MemberCount() != 1 {
		t.Errorf("MemberCount after remove = %d, want 1", r.MemberCount())
	}
	if _, ok := r.RemoveMember("c0"); ok {
		t.Error("RemoveMember() found an already-removed member")
	}
}

func TestRoomMessageAppendOrder(t *testing.T) {
	r := newTestRoom()
	for i := 0; i < 50; i++ {
		r.AppendMessage(domain.Message{ID: fmt.Sprintf("m%d", i)})
	}
	msgs := r.Messages()
	if len(msgs) != 50 {
		t.Fatalf("Messages() len = %d, want 50", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("messages[%d].ID = %q, append order not preserved", i, m.ID)
		}
	}
}

func TestRoomMemberByNameFirstMatchWins(t *testing.T) {
	r := newTestRoom()
	addMember(t, r, "c0", "alice")
	addMember(t, r, "c1", "dup")
	addMember(t, r, "c2", "dup")

	cid, _, ok := r.MemberByName("dup")
	if !ok {
		t.Fatal("MemberByName() did not find existing name")
	}
	if cid != "c1" {
		t.Errorf("MemberByName(dup) = %s, want first joined c1", cid)
	}

	if _, _, ok := r.MemberByName("nobody"); ok {
		t.Error("MemberByName() found an absent name")
	}
}

func TestRoomSetTypingStaleConnection(t *testing.T) {
	r := newTestRoom()
	addMember(t, r, "c0", "alice")

	member, ok := r.SetTyping("c0", true)
	if !ok || !member.IsTyping {
		t.Errorf("SetTyping(member) = (%v, %v), want typing member", member.IsTyping, ok)
	}

	if _, ok := r.SetTyping("ghost", true); ok {
		t.Error("SetTyping() accepted a connection that is not a member")
	}
}

func TestRoomFanOutAddressing(t *testing.T) {
	r := newTestRoom()
	a := addMember(t, r, "c0", "alice")
	b := addMember(t, r, "c1", "bob")
	c := addMember(t, r, "c2", "carol")

	res := r.Broadcast(Frame("all"))
	if res.SentTo != 3 {
		t.Errorf("Broadcast SentTo = %d, want 3", res.SentTo)
	}

	res = r.BroadcastExcept("c1", Frame("not-bob"))
	if res.SentTo != 2 {
		t.Errorf("BroadcastExcept SentTo = %d, want 2", res.SentTo)
	}
	if b.count() != 1 {
		t.Errorf("excluded member received %d frames, want 1", b.count())
	}

	if err := r.SendTo("c2", Frame("only-carol")); err != nil {
		t.Errorf("SendTo() error = %v", err)
	}
	if a.count() != 2 || c.count() != 3 {
		t.Errorf("frame counts = alice %d carol %d, want 2 and 3", a.count(), c.count())
	}

	if err := r.SendTo("ghost", Frame("x")); err == nil {
		t.Error("SendTo(ghost) expected error, got nil")
	}
}

func TestRoomFanOutReportsDropped(t *testing.T) {
	r := newTestRoom()
	addMember(t, r, "c0", "alice")
	bad := &fakeConn{fail: true}
	r.AddMember("c1", "bob", NewMemberSession(domain.NewMember("c1", "bob"), bad))

	res := r.Broadcast(Frame("x"))
	if res.SentTo != 1 || len(res.Dropped) != 1 {
		t.Fatalf("Broadcast = sent %d dropped %d, want 1 and 1", res.SentTo, len(res.Dropped))
	}
	if res.Dropped[0] != "c1" {
		t.Errorf("Dropped[0] = %s, want c1", res.Dropped[0])
	}
}
