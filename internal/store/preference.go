package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/model"
)

// PreferenceStore holds one notification preference record per user.
type PreferenceStore struct {
	db    *sql.DB
	group singleflight.Group
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

const prefCols = `id, user_id,
	email_new_episode, email_weekly_preview, email_series_finale, email_cancellation, email_show_added,
	inapp_new_episode, inapp_weekly_preview, inapp_series_finale, inapp_cancellation, inapp_show_added,
	created_at, updated_at`

func scanPreference(scanner interface{ Scan(...any) error }) (*model.NotificationPreference, error) {
	var p model.NotificationPreference
	var e, i [5]int
	err := scanner.Scan(&p.ID, &p.UserID,
		&e[0], &e[1], &e[2], &e[3], &e[4],
		&i[0], &i[1], &i[2], &i[3], &i[4],
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Email = flagsFromInts(e)
	p.InApp = flagsFromInts(i)
	return &p, nil
}

func flagsFromInts(v [5]int) model.ChannelFlags {
	return model.ChannelFlags{
		NewEpisode:    v[0] == 1,
		WeeklyPreview: v[1] == 1,
		SeriesFinale:  v[2] == 1,
		Cancellation:  v[3] == 1,
		ShowAdded:     v[4] == 1,
	}
}

func flagArgs(f model.ChannelFlags) []any {
	return []any{
		boolToInt(f.NewEpisode),
		boolToInt(f.WeeklyPreview),
		boolToInt(f.SeriesFinale),
		boolToInt(f.Cancellation),
		boolToInt(f.ShowAdded),
	}
}

// Get returns the user's preferences, creating the default record on first
// access. Concurrent first reads for the same user share one creation.
func (s *PreferenceStore) Get(ctx context.Context, userID int64) (*model.NotificationPreference, error) {
	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return s.getOrCreate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*model.NotificationPreference)
	return &p, nil
}

func (s *PreferenceStore) load(ctx context.Context, q queryRower, userID int64) (*model.NotificationPreference, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+prefCols+` FROM notification_preferences WHERE user_id = ?`, userID)
	p, err := scanPreference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get preferences", err)
	}
	return p, nil
}

func (s *PreferenceStore) getOrCreate(ctx context.Context, userID int64) (*model.NotificationPreference, error) {
	p, err := s.load(ctx, s.db, userID)
	if err != nil || p != nil {
		return p, err
	}

	ok, err := userExists(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d does not exist", ErrInvalid, userID)
	}

	def := model.DefaultPreference(userID)
	args := append([]any{userID}, flagArgs(def.Email)...)
	args = append(args, flagArgs(def.InApp)...)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id,
			email_new_episode, email_weekly_preview, email_series_finale, email_cancellation, email_show_added,
			inapp_new_episode, inapp_weekly_preview, inapp_series_finale, inapp_cancellation, inapp_show_added)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		args...,
	)
	if err != nil {
		return nil, storageErr("create default preferences", err)
	}

	// Another writer may have won the insert; read whatever is stored.
	p, err = s.load(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, storageErr("create default preferences", sql.ErrNoRows)
	}
	return p, nil
}

// Update merges patch over the stored record and returns the full result.
func (s *PreferenceStore) Update(ctx context.Context, actor auth.Identity, userID int64, patch model.PreferencePatch) (*model.NotificationPreference, error) {
	for k := range patch.Email {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown notification kind %q", ErrInvalid, k)
		}
	}
	for k := range patch.InApp {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown notification kind %q", ErrInvalid, k)
		}
	}

	ok, err := userExists(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: user %d does not exist", ErrInvalid, userID)
	}
	if !auth.Authorize(actor, userID).Manage {
		return nil, fmt.Errorf("update preferences for user %d: %w", userID, ErrForbidden)
	}

	// Make sure a row exists before merging.
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("begin tx", err)
	}
	defer tx.Rollback()

	cur, err := s.load(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, storageErr("update preferences", sql.ErrNoRows)
	}
	for k, v := range patch.Email {
		cur.Email.Set(k, v)
	}
	for k, v := range patch.InApp {
		cur.InApp.Set(k, v)
	}

	args := append(flagArgs(cur.Email), flagArgs(cur.InApp)...)
	args = append(args, time.Now().UTC(), userID)
	_, err = tx.ExecContext(ctx,
		`UPDATE notification_preferences SET
			email_new_episode = ?, email_weekly_preview = ?, email_series_finale = ?, email_cancellation = ?, email_show_added = ?,
			inapp_new_episode = ?, inapp_weekly_preview = ?, inapp_series_finale = ?, inapp_cancellation = ?, inapp_show_added = ?,
			updated_at = ?
		 WHERE user_id = ?`,
		args...,
	)
	if err != nil {
		return nil, storageErr("update preferences", err)
	}

	updated, err := s.load(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageErr("commit preferences", err)
	}
	return updated, nil
}
