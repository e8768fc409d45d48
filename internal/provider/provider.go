// Package provider normalizes streaming provider names and resolves their
// logos, honoring admin overrides and deletions.
package provider

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dukerupert/showtrack/internal/store"
)

const logoBase = "https://images.justwatch.com/icon/"

// builtinLogos maps lowercase provider names to logo URLs.
var builtinLogos = map[string]string{
	"netflix":            logoBase + "207360008/s100/netflix.webp",
	"amazon prime video": logoBase + "322992749/s100/amazonprime.webp",
	"prime video":        logoBase + "322992749/s100/amazonprime.webp",
	"hulu":               logoBase + "116305230/s100/hulu.webp",
	"disney plus":        logoBase + "313118777/s100/disneyplus.webp",
	"disney+":            logoBase + "313118777/s100/disneyplus.webp",
	"max":                logoBase + "332884837/s100/max.webp",
	"hbo max":            logoBase + "332884837/s100/max.webp",
	"paramount plus":     logoBase + "242706661/s100/paramountplus.webp",
	"paramount+":         logoBase + "242706661/s100/paramountplus.webp",
	"peacock":            logoBase + "194173870/s100/peacocktv.webp",
	"apple tv plus":      logoBase + "338253870/s100/appletvplus.webp",
	"apple tv+":          logoBase + "338253870/s100/appletvplus.webp",
	"showtime":           logoBase + "430999/s100/showtime.webp",
	"starz":              logoBase + "301254735/s100/starz.webp",
	"mgm plus":           logoBase + "302467394/s100/epix.webp",
	"amc+":               logoBase + "277399832/s100/amcplus.webp",
	"espn+":              logoBase + "147638348/s100/espn-plus.webp",
	"crunchyroll":        logoBase + "324213205/s100/crunchyroll.webp",
	"shudder":            logoBase + "2562359/s100/shudder.webp",
	"acorn tv":           logoBase + "151881328/s100/acorntv.webp",
	"discovery+":         logoBase + "240558410/s100/discoveryplusus.webp",
	"tubi":               logoBase + "313528601/s100/tubitv.webp",
	"pluto tv":           logoBase + "312204955/s100/plutotv.webp",
	"the roku channel":   logoBase + "76972041/s100/rokuchannel.webp",
	"plex":               logoBase + "301832745/s100/plex.webp",
	"fubotv":             logoBase + "316727345/s100/fubotv.webp",
	"sling tv":           logoBase + "430998/s100/sling-tv.webp",
	"fandango at home":   logoBase + "322380782/s100/vudu.webp",
	"google play movies": logoBase + "169478387/s100/play.webp",
	"microsoft store":    logoBase + "820542/s100/microsoft-store.webp",
}

// partialKeys holds builtin keys usable for substring matches, longest first.
var partialKeys = func() []string {
	var keys []string
	for k := range builtinLogos {
		if len(k) >= 4 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Normalize folds the many storefront variants of a provider into one name,
// e.g. "Netflix basic with Ads" to "Netflix". Unknown names are returned
// unchanged.
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.Contains(lower, "paramount"):
		return "Paramount+"
	case strings.Contains(lower, "disney"):
		return "Disney+"
	case strings.Contains(lower, "apple tv") && !strings.Contains(lower, "apple tv+") &&
		(strings.Contains(lower, "channel") || lower == "apple tv"):
		return "Apple TV+"
	case strings.Contains(lower, "amazon") || strings.Contains(lower, "prime video"):
		return "Prime Video"
	case strings.Contains(lower, "discovery"):
		return "Discovery+"
	case strings.Contains(lower, "hulu"):
		return "Hulu"
	case strings.Contains(lower, "netflix"):
		return "Netflix"
	case strings.Contains(lower, "peacock"):
		return "Peacock"
	case strings.Contains(lower, "fandango") && !strings.Contains(lower, "free"),
		strings.Contains(lower, "vudu"):
		return "Fandango At Home"
	case strings.Contains(lower, "hbo") && strings.Contains(lower, "max"), lower == "max":
		return "Max"
	case strings.Contains(lower, "google play"):
		return "Google Play Movies"
	case strings.Contains(lower, "microsoft"):
		return "Microsoft Store"
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == lower {
		// All lower case input, typically typed by hand.
		return cases.Title(language.Und).String(trimmed)
	}
	return trimmed
}

// Same reports whether two provider names refer to the same service.
func Same(a, b string) bool {
	return strings.EqualFold(Normalize(a), Normalize(b))
}

// Settings is the subset of store.SettingsStore the catalogue needs.
type Settings interface {
	GetAll(ctx context.Context, namespace string) (map[string]string, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
}

// Entry is one provider as shown to admins.
type Entry struct {
	Name       string `json:"name"`
	LogoURL    string `json:"logo_url"`
	Overridden bool   `json:"overridden"`
}

// Catalogue resolves logos and manages admin overrides.
type Catalogue struct {
	settings Settings
}

func NewCatalogue(settings Settings) *Catalogue {
	return &Catalogue{settings: settings}
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LogoURL returns the logo for name, or "" when none is known. An admin
// override wins over the builtin table.
func (c *Catalogue) LogoURL(ctx context.Context, name string) (string, error) {
	overrides, err := c.settings.GetAll(ctx, store.NamespaceLogoOverrides)
	if err != nil {
		return "", err
	}
	return resolve(key(name), overrides), nil
}

func resolve(k string, overrides map[string]string) string {
	if u, ok := overrides[k]; ok {
		return u
	}
	if u, ok := builtinLogos[k]; ok {
		return u
	}
	for _, pk := range partialKeys {
		if strings.Contains(k, pk) {
			return builtinLogos[pk]
		}
	}
	return ""
}

// List returns every known provider that has not been deleted, sorted by
// name. Overridden names not in the builtin table are included.
func (c *Catalogue) List(ctx context.Context) ([]Entry, error) {
	overrides, err := c.settings.GetAll(ctx, store.NamespaceLogoOverrides)
	if err != nil {
		return nil, err
	}
	deleted, err := c.settings.GetAll(ctx, store.NamespaceDeletedProviders)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(builtinLogos)+len(overrides))
	for k := range builtinLogos {
		names[k] = struct{}{}
	}
	for k := range overrides {
		names[k] = struct{}{}
	}

	entries := make([]Entry, 0, len(names))
	for k := range names {
		if _, gone := deleted[k]; gone {
			continue
		}
		_, over := overrides[k]
		entries = append(entries, Entry{Name: k, LogoURL: resolve(k, overrides), Overridden: over})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (c *Catalogue) SetOverride(ctx context.Context, name, logoURL string) error {
	return c.settings.Set(ctx, store.NamespaceLogoOverrides, key(name), strings.TrimSpace(logoURL))
}

func (c *Catalogue) ClearOverride(ctx context.Context, name string) error {
	return c.settings.Delete(ctx, store.NamespaceLogoOverrides, key(name))
}

// Remove hides a provider from List.
func (c *Catalogue) Remove(ctx context.Context, name string) error {
	return c.settings.Set(ctx, store.NamespaceDeletedProviders, key(name), "1")
}

func (c *Catalogue) Restore(ctx context.Context, name string) error {
	return c.settings.Delete(ctx, store.NamespaceDeletedProviders, key(name))
}
