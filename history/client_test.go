package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/middleware"
	"chatsync/models"
)

type request struct {
	path  string
	query string
	auth  string
}

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []request) {
	var mu sync.Mutex
	var seen []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, request{path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), seen...)
	}
}

func newClient(t *testing.T, baseURL string) *Client {
	id := &models.Identity{Username: "alice", Token: "tok"}
	c, err := NewClient(Options{
		BaseURL:  baseURL + "/api",
		Identity: middleware.IdentityFunc(func() *models.Identity { return id }),
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestMessages_DirectPage(t *testing.T) {
	next := "http://127.0.0.1:8000/api/messages/?conversation=alice__bob&page=3"
	srv, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.Page{
			Count: 45,
			Next:  &next,
			Results: []models.Message{
				{ID: 25, Content: "older"},
				{ID: 24, Content: "oldest"},
			},
		})
	})
	c := newClient(t, srv.URL)

	page, err := c.Messages(context.Background(), models.Direct("alice__bob"), 2)
	require.NoError(t, err)
	assert.True(t, page.HasNext())
	require.Len(t, page.Results, 2)
	assert.Equal(t, int64(25), page.Results[0].ID)

	assert.Equal(t, []request{{
		path:  "/api/messages/",
		query: "conversation=alice__bob&page=2",
		auth:  "Token tok",
	}}, seen())
}

func TestMessages_GroupPage(t *testing.T) {
	srv, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	})
	c := newClient(t, srv.URL)

	page, err := c.Messages(context.Background(), models.Group("team"), 4)
	require.NoError(t, err)
	assert.False(t, page.HasNext())

	got := seen()
	require.Len(t, got, 1)
	assert.Equal(t, "/api/group_messages/", got[0].path)
	assert.Equal(t, "group_conversation=team&page=4", got[0].query)
}

func TestMessages_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"past last page", http.StatusNotFound, ErrNotFound},
		{"server error", http.StatusInternalServerError, ErrStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			c := newClient(t, srv.URL)

			_, err := c.Messages(context.Background(), models.Direct("alice__bob"), 2)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMessages_RejectsBadInput(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1")

	_, err := c.Messages(context.Background(), models.Direct(""), 2)
	assert.Error(t, err)

	_, err = c.Messages(context.Background(), models.Direct("alice__bob"), 0)
	assert.Error(t, err)
}

func TestConversation(t *testing.T) {
	srv, seen := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c1","name":"team","members":[{"username":"alice"},{"username":"bob"}],"admin":{"username":"alice"}}`))
	})
	c := newClient(t, srv.URL)

	conv, err := c.Conversation(context.Background(), models.Group("team"))
	require.NoError(t, err)
	assert.Equal(t, "team", conv.Name)
	assert.Len(t, conv.Members, 2)
	require.NotNil(t, conv.Admin)
	assert.Equal(t, "alice", conv.Admin.Username)
	assert.Equal(t, "/api/group_conversations/team/", seen()[0].path)

	_, err = c.Conversation(context.Background(), models.Direct("alice__bob"))
	require.NoError(t, err)
	assert.Equal(t, "/api/conversations/alice__bob/", seen()[1].path)
}

func TestNewClient_Validation(t *testing.T) {
	src := middleware.IdentityFunc(func() *models.Identity { return nil })

	_, err := NewClient(Options{BaseURL: "ws://127.0.0.1:8000/api", Identity: src})
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "http://127.0.0.1:8000/api"})
	assert.Error(t, err)
}

func TestMessages_CancelledWhileThrottled(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"results":[]}`))
	})
	c, err := NewClient(Options{
		BaseURL:  srv.URL,
		Identity: middleware.IdentityFunc(func() *models.Identity { return nil }),
		Rate:     0.001,
		Burst:    1,
	})
	require.NoError(t, err)

	_, err = c.Messages(context.Background(), models.Direct("alice__bob"), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Messages(ctx, models.Direct("alice__bob"), 3)
	assert.Error(t, err)
}
