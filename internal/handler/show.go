package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/showtrack/internal/metadata"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/provider"
	"github.com/dukerupert/showtrack/internal/reconcile"
	"github.com/dukerupert/showtrack/internal/store"
)

// Searcher looks up shows by title.
type Searcher interface {
	SearchTV(ctx context.Context, query string) ([]metadata.SearchResult, error)
}

type ShowHandler struct {
	shows     *store.ShowStore
	driver    *reconcile.Driver
	search    Searcher
	catalogue *provider.Catalogue
	region    string
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewShowHandler wires the show endpoints. search may be nil when no
// metadata API key is configured.
func NewShowHandler(ss *store.ShowStore, driver *reconcile.Driver, search Searcher, catalogue *provider.Catalogue, region string, logger *slog.Logger) *ShowHandler {
	return &ShowHandler{
		shows:     ss,
		driver:    driver,
		search:    search,
		catalogue: catalogue,
		region:    region,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("component", "handler.shows"),
	}
}

type showView struct {
	model.TrackedShow
	ProviderLogo string `json:"provider_logo,omitempty"`
}

type addShowRequest struct {
	ExternalID   int64  `json:"external_show_id" validate:"required,gt=0"`
	Title        string `json:"title" validate:"required,max=300"`
	ProviderName string `json:"provider_name" validate:"required,max=100"`
	Region       string `json:"region" validate:"omitempty,len=2,alpha"`
}

func (h *ShowHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	uid, ok := targetUser(w, r, actor)
	if !ok {
		return
	}

	shows, err := h.shows.ListByUser(r.Context(), uid)
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to list shows")
		return
	}

	views := make([]showView, 0, len(shows))
	for _, sh := range shows {
		v := showView{TrackedShow: sh}
		if h.catalogue != nil {
			logo, err := h.catalogue.LogoURL(r.Context(), sh.ProviderName)
			if err != nil {
				writeStoreError(w, h.logger, err, "failed to resolve provider logo")
				return
			}
			v.ProviderLogo = logo
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ShowHandler) Add(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	var req addShowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.ProviderName = provider.Normalize(strings.TrimSpace(req.ProviderName))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	region := strings.ToUpper(req.Region)
	if region == "" {
		region = h.region
	}

	sh, created, err := h.driver.AddShow(r.Context(), actor.UserID, model.TrackedShow{
		ExternalID:   req.ExternalID,
		Title:        req.Title,
		ProviderName: req.ProviderName,
		Region:       region,
	})
	if err != nil {
		writeStoreError(w, h.logger, err, "failed to add show")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sh)
}

func (h *ShowHandler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.driver.RemoveShow(r.Context(), actor, id); err != nil {
		writeStoreError(w, h.logger, err, "failed to remove show")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile re-checks the caller's shows now and returns the run report.
func (h *ShowHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	rep, err := h.driver.Reconcile(r.Context(), actor.UserID)
	if err != nil {
		writeStoreError(w, h.logger, err, "reconcile failed")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *ShowHandler) Search(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity(w, r); !ok {
		return
	}
	if h.search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	results, err := h.search.SearchTV(r.Context(), q)
	if err != nil {
		if errors.Is(err, metadata.ErrTransient) {
			h.logger.Warn("search failed", "query", q, "error", err)
			writeError(w, http.StatusBadGateway, "metadata provider unavailable")
			return
		}
		writeStoreError(w, h.logger, err, "search failed")
		return
	}
	if results == nil {
		results = []metadata.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return strings.ToLower(fe.Field()) + " failed " + fe.Tag()
}
