package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/store"
)

type PreferenceHandler struct {
	store  *store.PreferenceStore
	logger *slog.Logger
}

func NewPreferenceHandler(ps *store.PreferenceStore, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{store: ps, logger: logger.With("component", "handler.preferences")}
}

func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	uid, ok := targetUser(w, r, actor)
	if !ok {
		return
	}
	pref, err := h.store.Get(r.Context(), uid)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// Update merges the request body over the stored flags. The store enforces
// manage capability, so an admin may read but not change another user's
// preferences.
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	uid, ok := targetUser(w, r, actor)
	if !ok {
		return
	}

	var patch model.PreferencePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	pref, err := h.store.Update(r.Context(), actor, uid, patch)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, pref)
}
