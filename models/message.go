package models

import (
	"time"
	"unicode/utf8"
)

// MaxMessageLength is the longest message body, in characters, the server stores.
const MaxMessageLength = 512

// Message is a chat message as serialized by the server. Direct messages
// carry ToUser; group messages leave it nil.
type Message struct {
	ID           int64     `json:"id"`
	Conversation string    `json:"conversation,omitempty"`
	FromUser     User      `json:"from_user"`
	ToUser       *User     `json:"to_user,omitempty"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
}

// Newer reports whether m sorts ahead of other in a newest-first timeline.
// Equal timestamps fall back to the server-assigned id.
func (m Message) Newer(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.After(other.Timestamp)
	}
	return m.ID > other.ID
}

// ContentLength counts characters rather than bytes.
func ContentLength(content string) int {
	return utf8.RuneCountInString(content)
}

// Page is one page of the historical message endpoint.
type Page struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Message `json:"results"`
}

// HasNext reports whether the server advertised a further page.
func (p *Page) HasNext() bool {
	return p != nil && p.Next != nil && *p.Next != ""
}
