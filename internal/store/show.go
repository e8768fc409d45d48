package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/status"
)

type ShowStore struct {
	db *sql.DB
}

func NewShowStore(db *sql.DB) *ShowStore {
	return &ShowStore{db: db}
}

const showCols = `id, user_id, external_show_id, title, provider_name, region, raw_status,
	in_production, on_provider, last_air_date, next_episode_date,
	last_known_category, last_known_confidence, status_message, last_checked_at, created_at`

func scanShow(scanner interface{ Scan(...any) error }) (*model.TrackedShow, error) {
	var sh model.TrackedShow
	var inProd, onProv int
	var lastAir, nextEp, category, confidence sql.NullString
	var checked sql.NullTime
	err := scanner.Scan(
		&sh.ID, &sh.UserID, &sh.ExternalID, &sh.Title, &sh.ProviderName, &sh.Region, &sh.RawStatus,
		&inProd, &onProv, &lastAir, &nextEp,
		&category, &confidence, &sh.StatusMessage, &checked, &sh.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sh.InProduction = inProd == 1
	sh.OnProvider = onProv == 1
	sh.LastAirDate = parseDate(lastAir)
	sh.NextEpisodeDate = parseDate(nextEp)
	if category.Valid {
		sh.LastKnownCategory = status.Category(category.String)
	}
	if confidence.Valid {
		sh.LastKnownConfidence = status.Confidence(confidence.String)
	}
	if checked.Valid {
		t := checked.Time
		sh.LastCheckedAt = &t
	}
	return &sh, nil
}

func parseDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(model.DateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

// Add stores a tracked show. It reports created=false and returns the
// existing row when the (user, show, provider) tuple is already tracked.
func (s *ShowStore) Add(ctx context.Context, sh model.TrackedShow) (*model.TrackedShow, bool, error) {
	sh.Title = strings.TrimSpace(sh.Title)
	if sh.UserID == 0 || sh.ExternalID == 0 || sh.Title == "" {
		return nil, false, fmt.Errorf("%w: user, external show id and title are required", ErrInvalid)
	}
	if sh.Region == "" {
		sh.Region = "US"
	}
	ok, err := userExists(ctx, s.db, sh.UserID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("%w: user %d does not exist", ErrInvalid, sh.UserID)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_shows (user_id, external_show_id, title, provider_name, region)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, external_show_id, provider_name) DO NOTHING`,
		sh.UserID, sh.ExternalID, sh.Title, sh.ProviderName, sh.Region,
	)
	if err != nil {
		return nil, false, storageErr("insert tracked show", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, storageErr("insert tracked show", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+showCols+` FROM tracked_shows
		 WHERE user_id = ? AND external_show_id = ? AND provider_name = ?`,
		sh.UserID, sh.ExternalID, sh.ProviderName,
	)
	got, err := scanShow(row)
	if err != nil {
		return nil, false, storageErr("get tracked show", err)
	}
	return got, n > 0, nil
}

func (s *ShowStore) GetByID(ctx context.Context, id int64) (*model.TrackedShow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+showCols+` FROM tracked_shows WHERE id = ?`, id)
	sh, err := scanShow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get tracked show", err)
	}
	return sh, nil
}

func (s *ShowStore) ListByUser(ctx context.Context, userID int64) ([]model.TrackedShow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+showCols+` FROM tracked_shows WHERE user_id = ? ORDER BY title COLLATE NOCASE, id`,
		userID,
	)
	if err != nil {
		return nil, storageErr("list tracked shows", err)
	}
	defer rows.Close()
	return scanShows(rows)
}

// ListUserIDs returns every user that tracks at least one show.
func (s *ShowStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM tracked_shows ORDER BY user_id`)
	if err != nil {
		return nil, storageErr("list tracking users", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan user id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAiringBetween returns shows whose next episode falls within [from, to],
// ordered by user then air date.
func (s *ShowStore) ListAiringBetween(ctx context.Context, from, to time.Time) ([]model.TrackedShow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+showCols+` FROM tracked_shows
		 WHERE next_episode_date IS NOT NULL AND next_episode_date BETWEEN ? AND ?
		 ORDER BY user_id, next_episode_date, title COLLATE NOCASE`,
		from.Format(model.DateLayout), to.Format(model.DateLayout),
	)
	if err != nil {
		return nil, storageErr("list airing shows", err)
	}
	defer rows.Close()
	return scanShows(rows)
}

// UpdateStatus persists a full status snapshot.
func (s *ShowStore) UpdateStatus(ctx context.Context, id int64, st model.ShowStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_shows SET raw_status = ?, in_production = ?, on_provider = ?,
		 last_air_date = ?, next_episode_date = ?, last_known_category = ?, last_known_confidence = ?,
		 status_message = ?, last_checked_at = ?
		 WHERE id = ?`,
		st.RawStatus, boolToInt(st.InProduction), boolToInt(st.OnProvider),
		formatDate(st.LastAirDate), formatDate(st.NextEpisodeDate), string(st.Category), string(st.Confidence),
		st.Message, st.CheckedAt.UTC(), id,
	)
	if err != nil {
		return storageErr("update show status", err)
	}
	return nil
}

// Refresh updates the upstream snapshot and check time without touching the
// stored category.
func (s *ShowStore) Refresh(ctx context.Context, id int64, st model.ShowStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tracked_shows SET raw_status = ?, in_production = ?, on_provider = ?,
		 last_air_date = ?, next_episode_date = ?, last_known_confidence = ?,
		 status_message = ?, last_checked_at = ?
		 WHERE id = ?`,
		st.RawStatus, boolToInt(st.InProduction), boolToInt(st.OnProvider),
		formatDate(st.LastAirDate), formatDate(st.NextEpisodeDate), string(st.Confidence),
		st.Message, st.CheckedAt.UTC(), id,
	)
	if err != nil {
		return storageErr("refresh show", err)
	}
	return nil
}

func (s *ShowStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tracked_shows WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete tracked show", err)
	}
	return nil
}

func scanShows(rows *sql.Rows) ([]model.TrackedShow, error) {
	var shows []model.TrackedShow
	for rows.Next() {
		sh, err := scanShow(rows)
		if err != nil {
			return nil, storageErr("scan tracked show", err)
		}
		shows = append(shows, *sh)
	}
	return shows, rows.Err()
}
