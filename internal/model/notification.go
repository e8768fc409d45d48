package model

import "time"

// Kind is the semantic notification type used to key preferences.
type Kind string

const (
	KindNewEpisode    Kind = "new_episode"
	KindWeeklyPreview Kind = "weekly_preview"
	KindSeriesFinale  Kind = "series_finale"
	KindCancellation  Kind = "cancellation"
	KindShowAdded     Kind = "show_added"
)

// Kinds lists every notification kind in display order.
var Kinds = []Kind{
	KindNewEpisode,
	KindWeeklyPreview,
	KindSeriesFinale,
	KindCancellation,
	KindShowAdded,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Channel is a delivery surface for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "inapp"
)

type Notification struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	Kind             Kind       `json:"kind"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	RelatedShowID    *int64     `json:"related_show_id,omitempty"`
	RelatedShowTitle string     `json:"related_show_title,omitempty"`
	IsRead           bool       `json:"is_read"`
	SentEmail        bool       `json:"sent_email"`
	SentInApp        bool       `json:"sent_inapp"`
	CreatedAt        time.Time  `json:"created_at"`
	ReadAt           *time.Time `json:"read_at,omitempty"`
}
