package domain

import "unicode/utf8"

type MemberStatus string

const (
	StatusOnline  MemberStatus = "online"
	StatusAway    MemberStatus = "away"
	StatusOffline MemberStatus = "offline"
)

const MaxDisplayNameLen = 36

// Member is one connection's presence inside a room. ID is the live
// connection id and is unusable after disconnect. Display names are not
// unique within a room.
type Member struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Status   MemberStatus `json:"status"`
	IsTyping bool         `json:"isTyping"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id, name string) *Member {
	if len(name) > MaxDisplayNameLen {
		// Cut on a rune boundary; a split rune would put invalid UTF-8
		// into every presence event.
		cut := MaxDisplayNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return &Member{ID: id, Name: name, Status: StatusOnline}
}
