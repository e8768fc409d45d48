package model

import "time"

// ChannelFlags holds one boolean per notification kind for a single channel.
type ChannelFlags struct {
	NewEpisode    bool `json:"new_episode"`
	WeeklyPreview bool `json:"weekly_preview"`
	SeriesFinale  bool `json:"series_finale"`
	Cancellation  bool `json:"cancellation"`
	ShowAdded     bool `json:"show_added"`
}

// Get returns the flag for k. Unknown kinds are reported as disabled.
func (f ChannelFlags) Get(k Kind) bool {
	switch k {
	case KindNewEpisode:
		return f.NewEpisode
	case KindWeeklyPreview:
		return f.WeeklyPreview
	case KindSeriesFinale:
		return f.SeriesFinale
	case KindCancellation:
		return f.Cancellation
	case KindShowAdded:
		return f.ShowAdded
	}
	return false
}

// Set updates the flag for k and reports whether k was known.
func (f *ChannelFlags) Set(k Kind, v bool) bool {
	switch k {
	case KindNewEpisode:
		f.NewEpisode = v
	case KindWeeklyPreview:
		f.WeeklyPreview = v
	case KindSeriesFinale:
		f.SeriesFinale = v
	case KindCancellation:
		f.Cancellation = v
	case KindShowAdded:
		f.ShowAdded = v
	default:
		return false
	}
	return true
}

// NotificationPreference is the per-user channel x kind matrix.
type NotificationPreference struct {
	ID        int64        `json:"id"`
	UserID    int64        `json:"user_id"`
	Email     ChannelFlags `json:"email"`
	InApp     ChannelFlags `json:"inapp"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DefaultPreference returns the implicit record for a user who has never
// saved preferences: everything on, except show-added emails.
func DefaultPreference(userID int64) NotificationPreference {
	return NotificationPreference{
		UserID: userID,
		Email: ChannelFlags{
			NewEpisode:    true,
			WeeklyPreview: true,
			SeriesFinale:  true,
			Cancellation:  true,
			ShowAdded:     false,
		},
		InApp: ChannelFlags{
			NewEpisode:    true,
			WeeklyPreview: true,
			SeriesFinale:  true,
			Cancellation:  true,
			ShowAdded:     true,
		},
	}
}

// Enabled reports whether kind k should be delivered on channel ch.
func (p NotificationPreference) Enabled(ch Channel, k Kind) bool {
	switch ch {
	case ChannelEmail:
		return p.Email.Get(k)
	case ChannelInApp:
		return p.InApp.Get(k)
	}
	return false
}

// PreferencePatch carries a partial update. Kinds absent from a map are left
// unchanged.
type PreferencePatch struct {
	Email map[Kind]bool `json:"email,omitempty"`
	InApp map[Kind]bool `json:"inapp,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PreferencePatch) Empty() bool {
	return len(p.Email) == 0 && len(p.InApp) == 0
}
