package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
)

var (
	sessionStore = sessions.NewCookieStore([]byte(sessionSecret()))
	sessionName  = "campus-notify-session"
)

func sessionSecret() string {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return s
	}
	return "secret-key-change-in-production"
}

// RecipientFromRequest resolves the authenticated recipient from the
// session cookie. Authentication itself is external; this layer only
// reads the identity it established.
func RecipientFromRequest(r *http.Request) (int, bool) {
	session, _ := sessionStore.Get(r, sessionName)
	recipientID, ok := session.Values["recipient_id"].(int)
	if !ok || recipientID <= 0 {
		return 0, false
	}
	return recipientID, true
}

// RequireRecipient rejects requests without an established session.
func RequireRecipient(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := RecipientFromRequest(r); !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// BindSessionHandler is the handoff from the surrounding application's
// login flow: it binds an already-authenticated recipient id to the
// notification session cookie.
func (h *Handler) BindSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RecipientID int `json:"recipient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientID <= 0 {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	session, _ := sessionStore.Get(r, sessionName)
	session.Values["recipient_id"] = req.RecipientID
	if err := session.Save(r, w); err != nil {
		h.Log.Error().Err(err).Msg("failed to save session")
		http.Error(w, "Failed to save session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
