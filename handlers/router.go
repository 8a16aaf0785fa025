// Package handlers serves the local control API: a small HTTP surface that
// drives the engine the way a UI would, plus a websocket feed of view
// changes.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/chat"
	"chatsync/logger"
	"chatsync/metrics"
	"chatsync/middleware"
	"chatsync/models"
)

var (
	engine *chat.Engine
	log    = logger.Nop()
)

// Setup installs the engine the handlers drive.
func Setup(e *chat.Engine, l *logger.Logger) {
	engine = e
	log = logger.OrNop(l).WithField("component", "api")
}

// NewRouter builds the control API routes. Call Setup first. m may be nil.
func NewRouter(accessKey string, m *metrics.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.AccessKey(accessKey))

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/ws", HandleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", PutSession).Methods(http.MethodPut)
	api.HandleFunc("/session", DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/unread", GetUnread).Methods(http.MethodGet)
	api.HandleFunc("/views", GetViews).Methods(http.MethodGet)

	api.Handle("/me", middleware.Auth(engine)(http.HandlerFunc(GetMe))).Methods(http.MethodGet)

	for prefix, kind := range map[string]models.Kind{
		"/chats/{name}":       models.KindDirect,
		"/group_chats/{name}": models.KindGroup,
	} {
		api.HandleFunc(prefix, withRef(kind, OpenConversation)).Methods(http.MethodPost)
		api.HandleFunc(prefix, withRef(kind, CloseConversation)).Methods(http.MethodDelete)
		api.HandleFunc(prefix, withRef(kind, GetConversation)).Methods(http.MethodGet)
		api.HandleFunc(prefix+"/messages", withRef(kind, GetMessages)).Methods(http.MethodGet)
		api.HandleFunc(prefix+"/messages", withRef(kind, SendMessage)).Methods(http.MethodPost)
		api.HandleFunc(prefix+"/older", withRef(kind, LoadOlder)).Methods(http.MethodPost)
		api.HandleFunc(prefix+"/typing", withRef(kind, Keystroke)).Methods(http.MethodPost)
		api.HandleFunc(prefix+"/presence", withRef(kind, GetPresence)).Methods(http.MethodGet)
		if kind == models.KindGroup {
			api.HandleFunc(prefix+"/members", withRef(kind, AddMember)).Methods(http.MethodPost)
			api.HandleFunc(prefix+"/members/{user}", withRef(kind, RemoveMember)).Methods(http.MethodDelete)
		}
	}

	return r
}

type refHandler func(w http.ResponseWriter, r *http.Request, ref models.ConversationRef)

func withRef(kind models.Kind, next refHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ref := models.ConversationRef{Kind: kind, Name: mux.Vars(r)["name"]}
		if err := ref.Validate(); err != nil {
			http.Error(w, `{"error": "Invalid conversation"}`, http.StatusBadRequest)
			return
		}
		next(w, r, ref)
	}
}

// openView finds an open view or answers 404.
func openView(w http.ResponseWriter, ref models.ConversationRef) (*chat.ConversationView, bool) {
	v, ok := engine.View(ref)
	if !ok {
		http.Error(w, `{"error": "Conversation not open"}`, http.StatusNotFound)
		return nil, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", logger.Error(err))
	}
}
