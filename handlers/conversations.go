package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"chatsync/chat"
	"chatsync/models"
)

type addMemberRequest struct {
	Name string `json:"name"`
}

// GetUnread returns the unread counters and the notifications channel status.
func GetUnread(w http.ResponseWriter, r *http.Request) {
	n := engine.Notifications()
	if n == nil {
		http.Error(w, `{"error": "Engine stopped"}`, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, n.Unread())
}

// GetViews lists the open conversations.
func GetViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, engine.Views())
}

// OpenConversation opens (or returns) the view on ref.
func OpenConversation(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, err := engine.Open(ref)
	if err != nil {
		if errors.Is(err, chat.ErrClosed) {
			http.Error(w, `{"error": "Engine stopped"}`, http.StatusServiceUnavailable)
			return
		}
		http.Error(w, `{"error": "Invalid conversation"}`, http.StatusBadRequest)
		return
	}
	writeState(w, http.StatusCreated, v)
}

// CloseConversation closes the view on ref.
func CloseConversation(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	if !engine.CloseView(ref) {
		http.Error(w, `{"error": "Conversation not open"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetConversation returns the full view state.
func GetConversation(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, v)
}

// GetPresence returns who is online, the group members and who is typing.
func GetPresence(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	st, err := v.State()
	if err != nil {
		http.Error(w, `{"error": "Conversation closed"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, st.Presence)
}

// AddMember adds a user to a group conversation.
func AddMember(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeCommandResult(w, v.AddMember(req.Name))
}

// RemoveMember removes a user from a group conversation.
func RemoveMember(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeCommandResult(w, v.RemoveMember(mux.Vars(r)["user"]))
}

func writeState(w http.ResponseWriter, status int, v *chat.ConversationView) {
	st, err := v.State()
	if err != nil {
		http.Error(w, `{"error": "Conversation closed"}`, http.StatusNotFound)
		return
	}
	if st.Messages == nil {
		st.Messages = []models.Message{}
	}
	writeJSON(w, status, st)
}
