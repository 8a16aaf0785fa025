package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatsync/chat"
	"chatsync/logger"
	"chatsync/models"
	"chatsync/realtime"
	"chatsync/timeline"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

type messagesResponse struct {
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
	Fetching bool             `json:"fetching"`
}

// GetMessages returns the timeline, newest first.
func GetMessages(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	st, err := v.State()
	if err != nil {
		http.Error(w, `{"error": "Conversation closed"}`, http.StatusNotFound)
		return
	}
	if st.Messages == nil {
		st.Messages = []models.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{
		Messages: st.Messages,
		HasMore:  st.HasMore,
		Fetching: st.Fetching,
	})
}

// SendMessage submits a message. It shows up in the timeline once the server
// echoes it.
func SendMessage(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeCommandResult(w, v.Submit(req.Content))
}

// LoadOlder triggers a backward page fetch.
func LoadOlder(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": v.LoadOlder()})
}

// Keystroke reports local typing.
func Keystroke(w http.ResponseWriter, r *http.Request, ref models.ConversationRef) {
	v, ok := openView(w, ref)
	if !ok {
		return
	}
	writeCommandResult(w, v.Keystroke())
}

func writeCommandResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
	case errors.Is(err, timeline.ErrEmptyMessage):
		http.Error(w, `{"error": "Message is empty"}`, http.StatusBadRequest)
	case errors.Is(err, timeline.ErrMessageTooLong):
		http.Error(w, `{"error": "Message is too long"}`, http.StatusBadRequest)
	case errors.Is(err, chat.ErrNotGroup):
		http.Error(w, `{"error": "Not a group conversation"}`, http.StatusBadRequest)
	case errors.Is(err, chat.ErrNoMember):
		http.Error(w, `{"error": "Member name is required"}`, http.StatusBadRequest)
	case errors.Is(err, realtime.ErrNotOpen), errors.Is(err, realtime.ErrSendBuffer):
		http.Error(w, `{"error": "Channel not open"}`, http.StatusConflict)
	case errors.Is(err, chat.ErrClosed):
		http.Error(w, `{"error": "Conversation closed"}`, http.StatusNotFound)
	default:
		log.Warn("command failed", logger.Error(err))
		http.Error(w, `{"error": "Command failed"}`, http.StatusInternalServerError)
	}
}
