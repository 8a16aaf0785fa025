// Package timeline merges live push messages and historical pages into one
// newest-first, duplicate-free message list.
package timeline

import (
	"sort"

	"chatsync/models"
)

// Timeline is an ordered, newest-first sequence of messages, unique by id.
// It is not safe for concurrent use; a view mutates it from its event loop.
type Timeline struct {
	messages []models.Message
	ids      map[int64]struct{}
}

func New() *Timeline {
	return &Timeline{ids: make(map[int64]struct{})}
}

// Seed replaces the whole timeline with a server snapshot. The snapshot is
// sorted newest-first; repeated ids keep their first occurrence.
func (t *Timeline) Seed(msgs []models.Message) (skipped int) {
	t.messages = t.messages[:0]
	t.ids = make(map[int64]struct{}, len(msgs))
	return t.appendSorted(msgs)
}

// Prepend puts a live message at the head. It reports false when the id is
// already present.
func (t *Timeline) Prepend(m models.Message) bool {
	if t.Contains(m.ID) {
		return false
	}
	t.ids[m.ID] = struct{}{}
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[1:], t.messages)
	t.messages[0] = m
	return true
}

// Append adds an older page at the tail and returns how many messages were
// skipped as duplicates.
func (t *Timeline) Append(page []models.Message) (skipped int) {
	return t.appendSorted(page)
}

func (t *Timeline) appendSorted(msgs []models.Message) int {
	sorted := make([]models.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Newer(sorted[j])
	})

	skipped := 0
	for _, m := range sorted {
		if _, ok := t.ids[m.ID]; ok {
			skipped++
			continue
		}
		t.ids[m.ID] = struct{}{}
		t.messages = append(t.messages, m)
	}
	return skipped
}

// Contains reports whether a message with id is present.
func (t *Timeline) Contains(id int64) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns a copy, newest first.
func (t *Timeline) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Oldest returns the tail message, if any.
func (t *Timeline) Oldest() (models.Message, bool) {
	if len(t.messages) == 0 {
		return models.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
