package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/showtrack/internal/provider"
)

type ProviderHandler struct {
	catalogue *provider.Catalogue
	logger    *slog.Logger
}

func NewProviderHandler(c *provider.Catalogue, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{catalogue: c, logger: logger.With("component", "handler.providers")}
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalogue.List(r.Context())
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to list providers")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type logoRequest struct {
	LogoURL string `json:"logo_url"`
}

func providerName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.PathValue("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "provider name is required")
		return "", false
	}
	return name, true
}

func (h *ProviderHandler) SetLogo(w http.ResponseWriter, r *http.Request) {
	name, ok := providerName(w, r)
	if !ok {
		return
	}
	var req logoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	url := strings.TrimSpace(req.LogoURL)
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		writeError(w, http.StatusBadRequest, "logo_url must be an http(s) URL")
		return
	}
	if err := h.catalogue.SetOverride(r.Context(), name, url); err != nil {
		writeStoreError(w, h.logger, err, "failed to set logo override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProviderHandler) ClearLogo(w http.ResponseWriter, r *http.Request) {
	name, ok := providerName(w, r)
	if !ok {
		return
	}
	if err := h.catalogue.ClearOverride(r.Context(), name); err != nil {
		writeStoreError(w, h.logger, err, "failed to clear logo override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProviderHandler) Remove(w http.ResponseWriter, r *http.Request) {
	name, ok := providerName(w, r)
	if !ok {
		return
	}
	if err := h.catalogue.Remove(r.Context(), name); err != nil {
		writeStoreError(w, h.logger, err, "failed to remove provider")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProviderHandler) Restore(w http.ResponseWriter, r *http.Request) {
	name, ok := providerName(w, r)
	if !ok {
		return
	}
	if err := h.catalogue.Restore(r.Context(), name); err != nil {
		writeStoreError(w, h.logger, err, "failed to restore provider")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
