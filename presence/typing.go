package presence

import (
	"sort"

	"chatsync/models"
)

// Typists is the set of remote participants currently typing. Events about
// the local user are ignored; local typing is reported by the debouncer.
type Typists struct {
	self   *models.Identity
	active map[string]struct{}
}

// NewTypists returns an empty set for self. self may be nil before sign-in.
func NewTypists(self *models.Identity) *Typists {
	return &Typists{self: self, active: make(map[string]struct{})}
}

// Apply records a remote typing event and reports whether the set changed.
func (t *Typists) Apply(user string, typing bool) bool {
	if user == "" || t.self.IsSelf(user) {
		return false
	}
	_, present := t.active[user]
	switch {
	case typing && !present:
		t.active[user] = struct{}{}
		return true
	case !typing && present:
		delete(t.active, user)
		return true
	}
	return false
}

// Forget drops a participant, e.g. when they leave the conversation.
func (t *Typists) Forget(user string) bool {
	return t.Apply(user, false)
}

// Clear empties the set. Called when the channel drops.
func (t *Typists) Clear() {
	t.active = make(map[string]struct{})
}

// Anyone is the single "someone is typing" flag a simple view renders.
func (t *Typists) Anyone() bool {
	return len(t.active) > 0
}

func (t *Typists) List() []string {
	out := make([]string, 0, len(t.active))
	for user := range t.active {
		out = append(out, user)
	}
	sort.Strings(out)
	return out
}
