package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"campus-notify-go/internal/hub"
	"campus-notify-go/internal/models"
	"campus-notify-go/internal/notify"
	"campus-notify-go/internal/store"
)

type Handler struct {
	Service  *notify.Service
	Hub      *hub.Hub
	Push     *notify.WebPushSender
	PushSubs store.PushSubscriptionStore
	Log      zerolog.Logger
}

func NewHandler(service *notify.Service, h *hub.Hub, push *notify.WebPushSender, pushSubs store.PushSubscriptionStore, log zerolog.Logger) *Handler {
	return &Handler{
		Service:  service,
		Hub:      h,
		Push:     push,
		PushSubs: pushSubs,
		Log:      log.With().Str("component", "http").Logger(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListNotificationsHandler returns one page of the recipient's
// notifications, newest first, plus the authoritative unread count.
func (h *Handler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, nextCursor, err := h.Service.List(r.Context(), recipientID, cursor, limit)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to list notifications")
		http.Error(w, "Failed to list notifications", http.StatusInternalServerError)
		return
	}

	count, err := h.Service.UnreadCount(r.Context(), recipientID)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to count unread")
		http.Error(w, "Failed to count unread", http.StatusInternalServerError)
		return
	}

	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"next_cursor":   nextCursor,
		"unread_count":  count,
	})
}

// UnreadCountHandler is the low-frequency poll target for disconnected
// clients.
func (h *Handler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.Service.UnreadCount(r.Context(), recipientID)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to count unread")
		http.Error(w, "Failed to count unread", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

// MarkReadHandler handles POST /api/notifications/{id}/read.
func (h *Handler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	idStr := strings.TrimSuffix(rest, "/read")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid notification id", http.StatusBadRequest)
		return
	}

	changed, err := h.Service.MarkRead(r.Context(), recipientID, id)
	if err != nil {
		h.Log.Error().Err(err).Int("id", id).Msg("failed to mark read")
		http.Error(w, "Failed to mark read", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "changed": changed})
}

// MarkAllReadHandler handles POST /api/notifications/read-all.
func (h *Handler) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recipientID, ok := RecipientFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.Service.MarkAllRead(r.Context(), recipientID)
	if err != nil {
		h.Log.Error().Err(err).Msg("failed to mark all read")
		http.Error(w, "Failed to mark all read", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

// PublishHandler is the producer endpoint the grievance, marks, notice
// and event modules call. Fire-and-forget: a 202 means the record is
// durable; push delivery is best effort.
func (h *Handler) PublishHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		RecipientID  int             `json:"recipient_id"`
		RecipientIDs []int           `json:"recipient_ids"`
		Category     models.Category `json:"category"`
		Title        string          `json:"title"`
		Body         string          `json:"body"`
		RelatedID    int             `json:"related_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Title == "" || !req.Category.Valid() {
		http.Error(w, "Missing title or category", http.StatusBadRequest)
		return
	}

	if len(req.RecipientIDs) > 0 {
		count, err := h.Service.BroadcastAnnouncement(r.Context(), req.RecipientIDs, req.Title, req.Body)
		if err != nil {
			h.Log.Error().Err(err).Msg("broadcast failed")
			http.Error(w, "Broadcast failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "count": count})
		return
	}

	if req.RecipientID <= 0 {
		http.Error(w, "Missing recipient", http.StatusBadRequest)
		return
	}

	n, err := h.Service.Publish(r.Context(), req.RecipientID, req.Category, req.Title, req.Body, req.RelatedID)
	if err != nil {
		h.Log.Error().Err(err).Msg("publish failed")
		http.Error(w, "Publish failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "id": n.ID})
}
