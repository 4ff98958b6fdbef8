package handlers

import (
	"encoding/json"
	"net/http"
)

// GetVAPIDKeyHandler returns the public VAPID key browsers need to
// register a push subscription.
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if h.Push == nil {
		http.Error(w, "Web push disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"publicKey": h.Push.PublicKey(),
	})
}

// SubscribePushHandler saves a browser push subscription for the
// recipient, used as the offline delivery fallback.
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if err := h.PushSubs.SavePushSubscription(r.Context(), recipientID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		h.Log.Error().Err(err).Msg("failed to save push subscription")
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
