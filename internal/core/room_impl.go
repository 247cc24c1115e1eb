package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"chatrelay/internal/domain"
	"chatrelay/pkg/errors"
)

type memberEntry struct {
	member *domain.Member
	sess   MemberSession
}

// roomImpl is a threadsafe in-memory room. One lock per room keeps
// unrelated rooms independent; message append order equals arrival
// order at this lock. It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room

	mu       sync.RWMutex
	order    []ConnectionID
	byCID    map[ConnectionID]*memberEntry
	messages []domain.Message
	roster   []string
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		byCID: make(map[ConnectionID]*memberEntry),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *roomImpl) AddMember(cid ConnectionID, name string, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCID[cid]; ok {
		return false
	}
	// Each membership owns its own Member; the same connection joined
	// into two rooms must not share typing/status state between them.
	member := domain.NewMember(string(cid), name)
	r.byCID[cid] = &memberEntry{member: member, sess: ms}
	r.order = append(r.order, cid)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("cid", string(cid)).Str("name", member.Name).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(cid ConnectionID) (domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byCID[cid]
	if !ok {
		return domain.Member{}, false
	}
	delete(r.byCID, cid)
	for i, id := range r.order {
		if id == cid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	removed := *e.member
	removed.Status = domain.StatusOffline
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("cid", string(cid)).Msg("member removed")
	return removed, true
}

func (r *roomImpl) HasMember(cid ConnectionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byCID[cid]
	return ok
}

func (r *roomImpl) SetTyping(cid ConnectionID, typing bool) (domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byCID[cid]
	if !ok {
		// Stale event after disconnect; dropped, not an error.
		return domain.Member{}, false
	}
	e.member.IsTyping = typing
	return *e.member, true
}

func (r *roomImpl) MemberByName(name string) (ConnectionID, MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Display names are not unique; first match in join order wins.
	for _, cid := range r.order {
		if e := r.byCID[cid]; e.member.Name == name {
			return cid, e.sess, true
		}
	}
	return "", nil, false
}

func (r *roomImpl) MembersSnapshot() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(r.order))
	for _, cid := range r.order {
		out = append(out, *r.byCID[cid].member)
	}
	return out
}

func (r *roomImpl) AppendMessage(msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *roomImpl) ImportHistory(msgs []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msgs...)
}

func (r *roomImpl) RegisterJoin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = append(r.roster, name)
}

func (r *roomImpl) Roster() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.roster))
	copy(out, r.roster)
	return out
}

func (r *roomImpl) ImportRoster(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster = append(r.roster, names...)
}

func (r *roomImpl) Messages() []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *roomImpl) SendTo(cid ConnectionID, data Frame) error {
	r.mu.RLock()
	e, ok := r.byCID[cid]
	r.mu.RUnlock()
	if !ok {
		return errors.ErrNotAMember
	}
	return e.sess.Signal().TrySend(data)
}

func (r *roomImpl) Broadcast(data Frame) PublishResult {
	return r.fanOut("", data)
}

func (r *roomImpl) BroadcastExcept(from ConnectionID, data Frame) PublishResult {
	return r.fanOut(from, data)
}

func (r *roomImpl) fanOut(skip ConnectionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, cid := range r.order {
		if cid == skip {
			continue
		}
		if err := r.byCID[cid].sess.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("fan out")
	return res
}
