package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/database"
	"chatsync/models"
	"chatsync/realtime"
)

type memoryStore struct {
	mu       sync.Mutex
	identity *models.Identity
	failSave bool
}

func (s *memoryStore) Save(_ context.Context, id models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return errors.New("disk full")
	}
	s.identity = &id
	return nil
}

func (s *memoryStore) Load(context.Context) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil, database.ErrNoIdentity
	}
	id := *s.identity
	return &id, nil
}

func (s *memoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	return nil
}

func newEngine(t *testing.T, store *memoryStore) (*Engine, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	e := NewEngine(context.Background(), EngineOptions{
		Opener:  opener,
		History: &fakeHistory{},
		Store:   store,
	})
	t.Cleanup(e.Close)
	return e, opener
}

func TestEngine_StartWithoutIdentity(t *testing.T) {
	e, opener := newEngine(t, &memoryStore{})
	require.NoError(t, e.Start())

	assert.Nil(t, e.Identity())
	ch := opener.last(t)
	assert.Equal(t, NotificationsRoute, ch.route)
	assert.Equal(t, realtime.Uninstantiated, e.Notifications().Unread().Status)
}

func TestEngine_StartRestoresIdentity(t *testing.T) {
	store := &memoryStore{identity: &models.Identity{Username: "alice", Token: "t"}}
	e, opener := newEngine(t, store)
	require.NoError(t, e.Start())

	require.NotNil(t, e.Identity())
	assert.Equal(t, "alice", e.Identity().Username)
	assert.True(t, opener.last(t).identity.Valid())
}

func TestEngine_SignInAndOut(t *testing.T) {
	store := &memoryStore{}
	e, opener := newEngine(t, store)
	require.NoError(t, e.Start())
	before := opener.last(t)

	assert.ErrorIs(t, e.SignIn(models.Identity{Username: "alice"}), ErrInvalidIdentity)

	require.NoError(t, e.SignIn(*alice))
	assert.Equal(t, alice, store.identity)
	assert.Equal(t, alice, e.Identity())
	assert.True(t, before.isClosed())
	require.Eventually(t, func() bool { return opener.count() == 2 }, time.Second, time.Millisecond)

	v, err := e.Open(models.Direct("alice__bob"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return opener.count() == 3 }, time.Second, time.Millisecond)

	require.NoError(t, e.SignOut())
	assert.Nil(t, store.identity)
	assert.Nil(t, e.Identity())
	assert.Empty(t, e.Views())
	_, err = v.State()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_SignInStoreFailure(t *testing.T) {
	e, _ := newEngine(t, &memoryStore{failSave: true})
	require.NoError(t, e.Start())
	assert.Error(t, e.SignIn(*alice))
	assert.Nil(t, e.Identity())
}

func TestEngine_OpenReusesViews(t *testing.T) {
	e, _ := newEngine(t, &memoryStore{identity: alice})
	require.NoError(t, e.Start())

	a, err := e.Open(models.Direct("alice__bob"))
	require.NoError(t, err)
	b, err := e.Open(models.Direct("alice__bob"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = e.Open(models.Group("team"))
	require.NoError(t, err)
	assert.Equal(t, []models.ConversationRef{models.Direct("alice__bob"), models.Group("team")}, e.Views())

	_, err = e.Open(models.Direct(""))
	assert.Error(t, err)

	assert.True(t, e.CloseView(models.Direct("alice__bob")))
	assert.False(t, e.CloseView(models.Direct("alice__bob")))
	_, ok := e.View(models.Direct("alice__bob"))
	assert.False(t, ok)
}

func TestEngine_RedirectRekeysView(t *testing.T) {
	e, opener := newEngine(t, &memoryStore{identity: alice})
	require.NoError(t, e.Start())

	v, err := e.Open(models.Group(models.NewGroupName))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return opener.count() == 2 }, time.Second, time.Millisecond)

	ch := opener.last(t)
	ch.setStatus(realtime.Open)
	ch.push(t, `{"type":"redirect","url":"f00d"}`)

	require.Eventually(t, func() bool {
		got, ok := e.View(models.Group("f00d"))
		return ok && got == v
	}, time.Second, time.Millisecond)
	_, ok := e.View(models.Group(models.NewGroupName))
	assert.False(t, ok)
}

func TestEngine_RedirectOntoOpenViewClosesIt(t *testing.T) {
	e, opener := newEngine(t, &memoryStore{identity: alice})
	require.NoError(t, e.Start())

	existing, err := e.Open(models.Group("f00d"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return opener.count() == 2 }, time.Second, time.Millisecond)
	existingCh := opener.last(t)

	v, err := e.Open(models.Group(models.NewGroupName))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return opener.count() == 3 }, time.Second, time.Millisecond)
	newCh := opener.last(t)

	newCh.setStatus(realtime.Open)
	newCh.push(t, `{"type":"redirect","url":"f00d"}`)

	require.Eventually(t, func() bool {
		got, ok := e.View(models.Group("f00d"))
		return ok && got == v
	}, time.Second, time.Millisecond)
	require.Eventually(t, existingCh.isClosed, time.Second, time.Millisecond)
	_, err = existing.State()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []models.ConversationRef{models.Group("f00d")}, e.Views())

	require.Eventually(t, func() bool { return opener.count() == 4 }, time.Second, time.Millisecond)
	redirected := opener.last(t)
	assert.Equal(t, "group_chats/f00d/", redirected.route)

	e.Close()
	assert.True(t, redirected.isClosed())
	assert.Eventually(t, newCh.isClosed, time.Second, time.Millisecond)
	_, err = v.State()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_CloseRejectsOpen(t *testing.T) {
	e, _ := newEngine(t, &memoryStore{})
	require.NoError(t, e.Start())
	e.Close()

	_, err := e.Open(models.Direct("alice__bob"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, e.Notifications())
}
