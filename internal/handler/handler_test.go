package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/database"
	"github.com/dukerupert/showtrack/internal/metadata"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/notify"
	"github.com/dukerupert/showtrack/internal/provider"
	"github.com/dukerupert/showtrack/internal/reconcile"
	"github.com/dukerupert/showtrack/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubFetcher struct {
	md  *metadata.Metadata
	err error
}

func (f *stubFetcher) Fetch(ctx context.Context, id int64) (*metadata.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.md
	cp.ID = id
	return &cp, nil
}

type stubSearcher struct {
	results []metadata.SearchResult
	err     error
	query   string
}

func (s *stubSearcher) SearchTV(ctx context.Context, q string) ([]metadata.SearchResult, error) {
	s.query = q
	return s.results, s.err
}

type fixture struct {
	mux      *http.ServeMux
	users    *store.UserStore
	notes    *store.NotificationStore
	prefs    *store.PreferenceStore
	shows    *store.ShowStore
	settings *store.SettingsStore
	fetcher  *stubFetcher
	search   *stubSearcher
	owner    auth.Identity
	other    auth.Identity
	admin    auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		users:    store.NewUserStore(db),
		notes:    store.NewNotificationStore(db),
		prefs:    store.NewPreferenceStore(db),
		shows:    store.NewShowStore(db),
		settings: store.NewSettingsStore(db),
		search:   &stubSearcher{},
	}
	lastAir := time.Now().AddDate(0, -2, 0)
	f.fetcher = &stubFetcher{md: &metadata.Metadata{
		Status:      "Returning Series",
		LastAirDate: &lastAir,
		Providers:   map[string][]metadata.Offer{"US": {{Name: "Netflix", AccessType: "flatrate"}}},
	}}

	ctx := context.Background()
	mk := func(email string, role model.Role) auth.Identity {
		u, err := f.users.Create(ctx, email, email, role)
		if err != nil {
			t.Fatalf("create user %s: %v", email, err)
		}
		return auth.Identity{UserID: u.ID, Role: u.Role}
	}
	f.owner = mk("owner@example.com", model.RoleUser)
	f.other = mk("other@example.com", model.RoleUser)
	f.admin = mk("admin@example.com", model.RoleAdmin)

	dispatcher := notify.New(f.prefs, f.notes, f.users, nil, notify.WithLogger(discard))
	driver := reconcile.New(f.shows, f.fetcher, dispatcher, reconcile.WithLogger(discard))
	catalogue := provider.NewCatalogue(f.settings)

	nh := NewNotificationHandler(f.notes, discard)
	ph := NewPreferenceHandler(f.prefs, discard)
	sh := NewShowHandler(f.shows, driver, f.search, catalogue, "US", discard)
	pv := NewProviderHandler(catalogue, discard)

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("GET /api/notifications", nh.List)
	f.mux.HandleFunc("GET /api/notifications/unread-count", nh.UnreadCount)
	f.mux.HandleFunc("POST /api/notifications/{id}/read", nh.MarkRead)
	f.mux.HandleFunc("POST /api/notifications/read-all", nh.MarkAllRead)
	f.mux.HandleFunc("DELETE /api/notifications/{id}", nh.Delete)
	f.mux.HandleFunc("GET /api/preferences", ph.Get)
	f.mux.HandleFunc("PATCH /api/preferences", ph.Update)
	f.mux.HandleFunc("GET /api/shows", sh.List)
	f.mux.HandleFunc("POST /api/shows", sh.Add)
	f.mux.HandleFunc("DELETE /api/shows/{id}", sh.Remove)
	f.mux.HandleFunc("POST /api/shows/reconcile", sh.Reconcile)
	f.mux.HandleFunc("GET /api/search", sh.Search)
	f.mux.HandleFunc("GET /api/providers", pv.List)
	f.mux.HandleFunc("PUT /api/providers/{name}/logo", pv.SetLogo)
	f.mux.HandleFunc("DELETE /api/providers/{name}/logo", pv.ClearLogo)
	f.mux.HandleFunc("DELETE /api/providers/{name}", pv.Remove)
	f.mux.HandleFunc("POST /api/providers/{name}/restore", pv.Restore)
	return f
}

func (f *fixture) do(t *testing.T, actor *auth.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if actor != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func (f *fixture) seedNotification(t *testing.T, userID int64, title string) int64 {
	t.Helper()
	id, err := f.notes.Append(context.Background(), &model.Notification{
		UserID: userID, Kind: model.KindNewEpisode, Title: title, SentInApp: true,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return id
}

func path(format string, id int64) string {
	return format + strconv.FormatInt(id, 10)
}

func TestNotificationsRequireIdentity(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, nil, "GET", "/api/notifications", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestNotificationListAndCount(t *testing.T) {
	f := newFixture(t)
	f.seedNotification(t, f.owner.UserID, "first")
	second := f.seedNotification(t, f.owner.UserID, "second")
	f.seedNotification(t, f.other.UserID, "not yours")

	rec := f.do(t, &f.owner, "GET", "/api/notifications", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	items := decode[[]model.Notification](t, rec)
	if len(items) != 2 {
		t.Fatalf("got %d notifications, want 2", len(items))
	}
	if items[0].ID != second {
		t.Errorf("newest first: got id %d, want %d", items[0].ID, second)
	}

	rec = f.do(t, &f.owner, "GET", "/api/notifications?limit=1", nil)
	if got := decode[[]model.Notification](t, rec); len(got) != 1 {
		t.Errorf("limit=1 returned %d items", len(got))
	}

	rec = f.do(t, &f.owner, "GET", "/api/notifications?limit=0", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}

	rec = f.do(t, &f.owner, "GET", "/api/notifications/unread-count", nil)
	if got := decode[map[string]int](t, rec); got["unread"] != 2 {
		t.Errorf("unread = %d, want 2", got["unread"])
	}
}

func TestNotificationListOtherUser(t *testing.T) {
	f := newFixture(t)
	f.seedNotification(t, f.owner.UserID, "hello")
	target := path("/api/notifications?user_id=", f.owner.UserID)

	if rec := f.do(t, &f.other, "GET", target, nil); rec.Code != http.StatusForbidden {
		t.Errorf("other user status = %d, want 403", rec.Code)
	}
	rec := f.do(t, &f.admin, "GET", target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rec.Code)
	}
	if got := decode[[]model.Notification](t, rec); len(got) != 1 {
		t.Errorf("admin sees %d notifications, want 1", len(got))
	}
}

func TestNotificationMarkRead(t *testing.T) {
	f := newFixture(t)
	id := f.seedNotification(t, f.owner.UserID, "hello")

	tests := []struct {
		name  string
		actor auth.Identity
		path  string
		want  int
	}{
		{"foreign", f.other, path("/api/notifications/", id) + "/read", http.StatusNotFound},
		{"unknown", f.owner, "/api/notifications/9999/read", http.StatusNotFound},
		{"bad id", f.owner, "/api/notifications/abc/read", http.StatusBadRequest},
		{"owner", f.owner, path("/api/notifications/", id) + "/read", http.StatusNoContent},
		{"again", f.owner, path("/api/notifications/", id) + "/read", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(t, &tt.actor, "POST", tt.path, nil); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	n, err := f.notes.UnreadCount(context.Background(), f.owner.UserID)
	if err != nil || n != 0 {
		t.Errorf("unread = %d, %v; want 0", n, err)
	}
}

func TestNotificationMarkAllRead(t *testing.T) {
	f := newFixture(t)
	f.seedNotification(t, f.owner.UserID, "a")
	f.seedNotification(t, f.owner.UserID, "b")
	f.seedNotification(t, f.other.UserID, "c")

	rec := f.do(t, &f.owner, "POST", "/api/notifications/read-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]int64](t, rec); got["updated"] != 2 {
		t.Errorf("updated = %d, want 2", got["updated"])
	}
	if n, _ := f.notes.UnreadCount(context.Background(), f.other.UserID); n != 1 {
		t.Errorf("other user's unread = %d, want 1", n)
	}
}

func TestNotificationDelete(t *testing.T) {
	f := newFixture(t)
	id := f.seedNotification(t, f.owner.UserID, "hello")
	target := path("/api/notifications/", id)

	if rec := f.do(t, &f.other, "DELETE", target, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", rec.Code)
	}
	if got, _ := f.notes.GetByID(context.Background(), id); got == nil {
		t.Fatal("forbidden delete must leave the record")
	}
	if rec := f.do(t, &f.owner, "DELETE", target, nil); rec.Code != http.StatusNoContent {
		t.Errorf("owner delete status = %d, want 204", rec.Code)
	}
	if rec := f.do(t, &f.owner, "DELETE", target, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestPreferencesGetAndPatch(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &f.owner, "GET", "/api/preferences", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	pref := decode[model.NotificationPreference](t, rec)
	if pref.Email.ShowAdded || !pref.InApp.ShowAdded {
		t.Errorf("unexpected defaults: %+v", pref)
	}

	rec = f.do(t, &f.owner, "PATCH", "/api/preferences", map[string]any{
		"email": map[string]bool{"show_added": true, "new_episode": false},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body)
	}
	pref = decode[model.NotificationPreference](t, rec)
	if !pref.Email.ShowAdded || pref.Email.NewEpisode || !pref.InApp.NewEpisode {
		t.Errorf("merge result: %+v", pref)
	}
}

func TestPreferencesPatchErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		actor auth.Identity
		path  string
		body  any
		want  int
	}{
		{"unknown kind", f.owner, "/api/preferences", map[string]any{"email": map[string]bool{"trailer": true}}, http.StatusBadRequest},
		{"unknown field", f.owner, "/api/preferences", map[string]any{"sms": map[string]bool{}}, http.StatusBadRequest},
		{"admin on other user", f.admin, path("/api/preferences?user_id=", f.owner.UserID), map[string]any{"email": map[string]bool{"show_added": true}}, http.StatusForbidden},
		{"other user", f.other, path("/api/preferences?user_id=", f.owner.UserID), map[string]any{"email": map[string]bool{"show_added": true}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(t, &tt.actor, "PATCH", tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	pref, err := f.prefs.Get(context.Background(), f.owner.UserID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pref.Email.ShowAdded {
		t.Error("failed patches must leave preferences untouched")
	}
}

func TestShowAddListRemove(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"external_show_id": 1399, "title": "Severance", "provider_name": "Apple TV Plus"}

	rec := f.do(t, &f.owner, "POST", "/api/shows", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body)
	}
	added := decode[model.TrackedShow](t, rec)
	if added.ProviderName != provider.Normalize("Apple TV Plus") {
		t.Errorf("provider = %q, want normalized name", added.ProviderName)
	}
	if added.Region != "US" {
		t.Errorf("region = %q, want US", added.Region)
	}
	if added.LastKnownCategory == "" {
		t.Error("initial check should classify the show")
	}

	rec = f.do(t, &f.owner, "POST", "/api/shows", body)
	if rec.Code != http.StatusOK {
		t.Errorf("duplicate add status = %d, want 200", rec.Code)
	}

	items, err := f.notes.List(context.Background(), f.owner.UserID, false, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(items) != 1 || items[0].Kind != model.KindShowAdded {
		t.Errorf("expected one show_added notification, got %+v", items)
	}

	rec = f.do(t, &f.owner, "GET", "/api/shows", nil)
	views := decode[[]showView](t, rec)
	if len(views) != 1 || views[0].ID != added.ID {
		t.Fatalf("list = %+v", views)
	}

	target := path("/api/shows/", added.ID)
	if rec := f.do(t, &f.other, "DELETE", target, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign remove status = %d, want 403", rec.Code)
	}
	if rec := f.do(t, &f.owner, "DELETE", target, nil); rec.Code != http.StatusNoContent {
		t.Errorf("remove status = %d, want 204", rec.Code)
	}
	if rec := f.do(t, &f.owner, "DELETE", target, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
}

func TestShowAddValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body any
	}{
		{"missing id", map[string]any{"title": "X", "provider_name": "Netflix"}},
		{"missing title", map[string]any{"external_show_id": 1, "provider_name": "Netflix"}},
		{"bad region", map[string]any{"external_show_id": 1, "title": "X", "provider_name": "Netflix", "region": "USA"}},
		{"not json", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(t, &f.owner, "POST", "/api/shows", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestShowReconcile(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, &f.owner, "POST", "/api/shows", map[string]any{
		"external_show_id": 1, "title": "Show", "provider_name": "Netflix",
	}); rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d", rec.Code)
	}

	f.fetcher.err = errors.Join(metadata.ErrTransient, errors.New("boom"))
	rec := f.do(t, &f.owner, "POST", "/api/shows/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d", rec.Code)
	}
	rep := decode[reconcile.Report](t, rec)
	if rep.Checked != 0 || rep.Errors != 1 {
		t.Errorf("report = %+v, want one error", rep)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	f.search.results = []metadata.SearchResult{{ID: 95396, Name: "Severance"}}

	rec := f.do(t, &f.owner, "GET", "/api/search?q=severance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[[]metadata.SearchResult](t, rec); len(got) != 1 || got[0].ID != 95396 {
		t.Errorf("results = %+v", got)
	}
	if f.search.query != "severance" {
		t.Errorf("query = %q", f.search.query)
	}

	if rec := f.do(t, &f.owner, "GET", "/api/search", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", rec.Code)
	}

	f.search.err = errors.Join(metadata.ErrTransient, errors.New("timeout"))
	if rec := f.do(t, &f.owner, "GET", "/api/search?q=x", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("transient status = %d, want 502", rec.Code)
	}
}

func TestProviderAdmin(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, &f.admin, "PUT", "/api/providers/Netflix/logo", map[string]string{"logo_url": "https://cdn.example.com/n.png"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set logo status = %d: %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, &f.admin, "PUT", "/api/providers/Netflix/logo", map[string]string{"logo_url": "ftp://x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad url status = %d, want 400", rec.Code)
	}

	entries := decode[[]provider.Entry](t, f.do(t, &f.admin, "GET", "/api/providers", nil))
	found := false
	for _, e := range entries {
		if e.Name == "netflix" {
			found = true
			if !e.Overridden || e.LogoURL != "https://cdn.example.com/n.png" {
				t.Errorf("netflix entry = %+v", e)
			}
		}
	}
	if !found {
		t.Fatal("netflix missing from catalogue")
	}

	if rec := f.do(t, &f.admin, "DELETE", "/api/providers/Netflix", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", rec.Code)
	}
	for _, e := range decode[[]provider.Entry](t, f.do(t, &f.admin, "GET", "/api/providers", nil)) {
		if e.Name == "netflix" {
			t.Error("removed provider still listed")
		}
	}

	if rec := f.do(t, &f.admin, "POST", "/api/providers/Netflix/restore", nil); rec.Code != http.StatusNoContent {
		t.Errorf("restore status = %d", rec.Code)
	}
	if rec := f.do(t, &f.admin, "DELETE", "/api/providers/Netflix/logo", nil); rec.Code != http.StatusNoContent {
		t.Errorf("clear logo status = %d", rec.Code)
	}
}
