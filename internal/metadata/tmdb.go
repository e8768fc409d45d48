package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dukerupert/showtrack/internal/model"
)

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

var accessTypes = []string{"flatrate", "rent", "buy", "ads", "free"}

type tvDetails struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Overview         string `json:"overview"`
	PosterPath       string `json:"poster_path"`
	Status           string `json:"status"`
	InProduction     bool   `json:"in_production"`
	LastAirDate      string `json:"last_air_date"`
	NextEpisodeToAir *struct {
		AirDate string `json:"air_date"`
	} `json:"next_episode_to_air"`
	WatchProviders struct {
		Results map[string]map[string]json.RawMessage `json:"results"`
	} `json:"watch/providers"`
}

type providerItem struct {
	ProviderName string `json:"provider_name"`
	LogoPath     string `json:"logo_path"`
}

type searchResponse struct {
	Page    int            `json:"page"`
	Results []SearchResult `json:"results"`
}

// Client talks to the TMDB v3 API.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ Fetcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRateLimit paces outgoing requests. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a TMDB client.
func New(apiKey, baseURL, language string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("tmdb api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   strings.TrimSpace(language),
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(20), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch returns show details and watch providers in one request.
func (c *Client) Fetch(ctx context.Context, externalID int64) (*Metadata, error) {
	params := url.Values{}
	params.Set("append_to_response", "watch/providers")

	var d tvDetails
	if err := c.get(ctx, "/tv/"+strconv.FormatInt(externalID, 10), params, &d); err != nil {
		return nil, fmt.Errorf("fetch show %d: %w", externalID, err)
	}
	return d.toMetadata(), nil
}

// SearchTV searches TMDB for shows matching query.
func (c *Client) SearchTV(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", "false")
	params.Set("page", "1")

	var resp searchResponse
	if err := c.get(ctx, "/search/tv", params, &resp); err != nil {
		return nil, fmt.Errorf("search tv: %w", err)
	}
	return resp.Results, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limit wait: %w", ErrTransient, err)
		}
	}

	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	endpoint := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: execute request (latency=%v): %w", ErrTransient, latency, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrTransient, ErrUnknownShow)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: tmdb returned %d (latency=%v)", ErrTransient, resp.StatusCode, latency)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode tmdb response: %w", ErrTransient, err)
	}
	return nil
}

func parseAirDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func (d *tvDetails) toMetadata() *Metadata {
	m := &Metadata{
		ID:           d.ID,
		Title:        d.Name,
		Overview:     d.Overview,
		PosterPath:   d.PosterPath,
		Status:       d.Status,
		InProduction: d.InProduction,
		LastAirDate:  parseAirDate(d.LastAirDate),
		Providers:    make(map[string][]Offer),
	}
	if d.NextEpisodeToAir != nil {
		m.NextEpisodeDate = parseAirDate(d.NextEpisodeToAir.AirDate)
	}
	for region, block := range d.WatchProviders.Results {
		region = strings.ToUpper(region)
		for _, access := range accessTypes {
			raw, ok := block[access]
			if !ok {
				continue
			}
			var items []providerItem
			if err := json.Unmarshal(raw, &items); err != nil {
				continue
			}
			for _, it := range items {
				m.Providers[region] = append(m.Providers[region], Offer{
					Name:       it.ProviderName,
					AccessType: access,
					LogoPath:   it.LogoPath,
				})
			}
		}
	}
	return m
}
