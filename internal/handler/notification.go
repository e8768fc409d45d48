package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/store"
)

type NotificationHandler struct {
	store  *store.NotificationStore
	logger *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: ns, logger: logger.With("component", "handler.notifications")}
}

// targetUser resolves the optional user_id query parameter. Reading another
// user's feed needs view capability on that user.
func targetUser(w http.ResponseWriter, r *http.Request, actor auth.Identity) (int64, bool) {
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return actor.UserID, true
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || uid <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return 0, false
	}
	if !auth.Authorize(actor, uid).View {
		writeError(w, http.StatusForbidden, "forbidden")
		return 0, false
	}
	return uid, true
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	uid, ok := targetUser(w, r, actor)
	if !ok {
		return
	}

	q := r.URL.Query()
	unreadOnly := q.Get("unread") == "true" || q.Get("unread") == "1"
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	items, err := h.store.List(r.Context(), uid, unreadOnly, limit)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to list notifications")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	uid, ok := targetUser(w, r, actor)
	if !ok {
		return
	}
	n, err := h.store.UnreadCount(r.Context(), uid)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to count notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.store.MarkRead(r.Context(), actor, id); err != nil {
		writeStoreError(w, h.logger, err, "failed to mark notification read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to mark notifications read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.store.Delete(r.Context(), actor, id); err != nil {
		writeStoreError(w, h.logger, err, "failed to delete notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
