// Package metadata fetches show status and watch providers from TMDB.
package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dukerupert/showtrack/internal/provider"
)

// ErrTransient marks a fetch failure the caller may retry on a later run.
var ErrTransient = errors.New("metadata temporarily unavailable")

// ErrUnknownShow is returned, wrapped with ErrTransient, when TMDB has no
// show with the requested id.
var ErrUnknownShow = errors.New("unknown show")

// Fetcher returns the current metadata for a show.
type Fetcher interface {
	Fetch(ctx context.Context, externalID int64) (*Metadata, error)
}

// Offer is one way to watch a show in a region.
type Offer struct {
	Name       string `json:"name"`
	AccessType string `json:"access_type"` // flatrate, rent, buy, ads, free
	LogoPath   string `json:"logo_path,omitempty"`
}

// Metadata is the provider-independent view of a show.
type Metadata struct {
	ID              int64
	Title           string
	Overview        string
	PosterPath      string
	Status          string
	InProduction    bool
	LastAirDate     *time.Time
	NextEpisodeDate *time.Time
	// Providers is keyed by upper-case region code.
	Providers map[string][]Offer
}

// Available reports whether the named provider offers the show in region
// through any access type.
func (m *Metadata) Available(region, name string) bool {
	for _, o := range m.Providers[strings.ToUpper(region)] {
		if provider.Same(o.Name, name) {
			return true
		}
	}
	return false
}

// SearchResult is one TV search hit.
type SearchResult struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Overview     string `json:"overview"`
	FirstAirDate string `json:"first_air_date"`
	PosterPath   string `json:"poster_path"`
}
