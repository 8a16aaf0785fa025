// Package presence tracks who is connected to a conversation, who belongs to
// it, and who is typing.
package presence

import (
	"sort"

	"chatsync/models"
)

// Roster is the set of usernames currently connected to a conversation's
// push channel, plus the membership list for group conversations.
type Roster struct {
	online  map[string]struct{}
	members []models.User
}

func NewRoster() *Roster {
	return &Roster{online: make(map[string]struct{})}
}

// Join adds name; joining twice is a no-op. It reports whether the roster
// changed.
func (r *Roster) Join(name string) bool {
	if name == "" {
		return false
	}
	if _, ok := r.online[name]; ok {
		return false
	}
	r.online[name] = struct{}{}
	return true
}

// Leave removes name if present.
func (r *Roster) Leave(name string) bool {
	if _, ok := r.online[name]; !ok {
		return false
	}
	delete(r.online, name)
	return true
}

// Replace installs an authoritative snapshot, dropping anyone not in names.
func (r *Roster) Replace(names []string) {
	r.online = make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			r.online[name] = struct{}{}
		}
	}
}

func (r *Roster) IsOnline(name string) bool {
	_, ok := r.online[name]
	return ok
}

// Online lists connected usernames in sorted order.
func (r *Roster) Online() []string {
	out := make([]string, 0, len(r.online))
	for name := range r.online {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetMembers replaces the group membership list.
func (r *Roster) SetMembers(members []models.User) {
	r.members = append(r.members[:0:0], members...)
}

func (r *Roster) Members() []models.User {
	return append([]models.User(nil), r.members...)
}

// Offline returns members that are not currently connected, in membership
// order.
func (r *Roster) Offline() []models.User {
	var out []models.User
	for _, m := range r.members {
		if !r.IsOnline(m.Username) {
			out = append(out, m)
		}
	}
	return out
}
