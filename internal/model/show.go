package model

import (
	"time"

	"github.com/dukerupert/showtrack/internal/status"
)

// DateLayout is the calendar-date format used for air dates.
const DateLayout = "2006-01-02"

// TrackedShow is a (user, external show, provider) tuple the user follows.
// The status fields are written only by the reconciliation driver.
type TrackedShow struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	ExternalID      int64      `json:"external_show_id"`
	Title           string     `json:"title"`
	ProviderName    string     `json:"provider_name"`
	Region          string     `json:"region"`
	RawStatus       string     `json:"raw_status"`
	InProduction    bool       `json:"in_production"`
	OnProvider      bool       `json:"on_provider"`
	LastAirDate     *time.Time `json:"last_air_date"`
	NextEpisodeDate *time.Time `json:"next_episode_date"`

	LastKnownCategory   status.Category   `json:"last_known_category,omitempty"`
	LastKnownConfidence status.Confidence `json:"last_known_confidence,omitempty"`
	StatusMessage       string            `json:"status_message"`
	LastCheckedAt       *time.Time        `json:"last_checked_at"`
	CreatedAt           time.Time         `json:"created_at"`
}

// ShowStatus is the snapshot the driver persists after a check.
type ShowStatus struct {
	RawStatus       string
	InProduction    bool
	OnProvider      bool
	LastAirDate     *time.Time
	NextEpisodeDate *time.Time
	Category        status.Category
	Confidence      status.Confidence
	Message         string
	CheckedAt       time.Time
}
