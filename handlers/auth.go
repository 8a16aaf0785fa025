package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chatsync/chat"
	"chatsync/logger"
	"chatsync/middleware"
	"chatsync/models"
)

type sessionRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// PutSession signs in with a username and a server-issued token. Every open
// view is closed and the notifications feed restarts under the new identity.
func PutSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	id := models.Identity{
		Username: strings.TrimSpace(req.Username),
		Token:    strings.TrimSpace(req.Token),
	}
	if err := engine.SignIn(id); err != nil {
		if errors.Is(err, chat.ErrInvalidIdentity) {
			http.Error(w, `{"error": "Username and token are required"}`, http.StatusBadRequest)
			return
		}
		log.Error("sign in failed", logger.Error(err))
		http.Error(w, `{"error": "Failed to store identity"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"username": id.Username})
}

// DeleteSession signs out.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := engine.SignOut(); err != nil {
		log.Error("sign out failed", logger.Error(err))
		http.Error(w, `{"error": "Failed to clear identity"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetMe returns the signed-in username. The token is never echoed.
func GetMe(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentityFromContext(r)
	if id == nil {
		http.Error(w, `{"error": "Not signed in"}`, http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": id.Username})
}
