package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"typing","user":"bob","typing":true}`))
	require.NoError(t, err)
	assert.Equal(t, EventTyping, frame.Type)

	var ev TypingEvent
	require.NoError(t, frame.Decode(&ev))
	assert.Equal(t, "bob", ev.User)
	assert.True(t, ev.Typing)
}

func TestDecodeFrame_Errors(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"user":"bob"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestSnapshotEvent_All(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"last_50_group_messages","group_messages":[{"id":1},{"id":2}],"has_more":true}`))
	require.NoError(t, err)

	var ev SnapshotEvent
	require.NoError(t, frame.Decode(&ev))
	assert.Len(t, ev.All(), 2)
	assert.True(t, ev.HasMore)
}

func TestDirectConversationName(t *testing.T) {
	assert.Equal(t, "alice__bob", DirectConversationName("bob", "alice"))
	assert.Equal(t, "alice__bob", DirectConversationName("alice", "bob"))
	assert.Equal(t, "bob", OtherParticipant("alice__bob", "alice"))
}

func TestFriendlyGroupName(t *testing.T) {
	assert.Equal(t, "Group chat with alice (2)", FriendlyGroupName("group_chat_with__alice__2"))
	assert.Equal(t, "lobby", FriendlyGroupName("lobby"))
}

func TestConversationRef(t *testing.T) {
	assert.Equal(t, "chats/alice__bob/", Direct("alice__bob").Route())
	assert.Equal(t, "group_chats/team/", Group("team").Route())

	assert.NoError(t, Group("team").Validate())
	assert.Error(t, Group("undefined").Validate())
	assert.Error(t, Direct("").Validate())
	assert.Error(t, ConversationRef{Kind: "channel", Name: "x"}.Validate())
}

func TestNewRead(t *testing.T) {
	assert.Equal(t, CommandReadMessages, NewRead(KindDirect).Type)
	assert.Equal(t, CommandReadGroupMessages, NewRead(KindGroup).Type)
}

func TestMessageNewer(t *testing.T) {
	now := time.Now()
	older := Message{ID: 1, Timestamp: now.Add(-time.Minute)}
	newer := Message{ID: 2, Timestamp: now}
	tie := Message{ID: 3, Timestamp: now}

	assert.True(t, newer.Newer(older))
	assert.False(t, older.Newer(newer))
	assert.True(t, tie.Newer(newer))
}

func TestContentLength(t *testing.T) {
	assert.Equal(t, 3, ContentLength("héé"))
}

func TestIdentity(t *testing.T) {
	var none *Identity
	assert.False(t, none.Valid())
	assert.False(t, none.IsSelf("alice"))

	id := &Identity{Username: "alice", Token: "t"}
	assert.True(t, id.Valid())
	assert.True(t, id.IsSelf("alice"))
	assert.False(t, id.IsSelf("bob"))
	assert.False(t, (&Identity{Username: " ", Token: "t"}).Valid())
}
