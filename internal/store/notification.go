package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/showtrack/internal/auth"
	"github.com/dukerupert/showtrack/internal/model"
)

const defaultListLimit = 50

// NotificationStore is the per-user notification ledger.
type NotificationStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db, now: time.Now}
}

const notificationCols = `id, user_id, kind, title, body, related_show_id, related_show_title,
	is_read, sent_email, sent_inapp, created_at, read_at`

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var kind string
	var showID sql.NullInt64
	var showTitle sql.NullString
	var isRead, sentEmail, sentInApp int
	var readAt sql.NullTime
	err := scanner.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body, &showID, &showTitle,
		&isRead, &sentEmail, &sentInApp, &n.CreatedAt, &readAt)
	if err != nil {
		return nil, err
	}
	n.Kind = model.Kind(kind)
	if showID.Valid {
		id := showID.Int64
		n.RelatedShowID = &id
	}
	n.RelatedShowTitle = showTitle.String
	n.IsRead = isRead == 1
	n.SentEmail = sentEmail == 1
	n.SentInApp = sentInApp == 1
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}

// Append stores n and returns its id. CreatedAt defaults to the current time.
func (s *NotificationStore) Append(ctx context.Context, n *model.Notification) (int64, error) {
	if !n.Kind.Valid() {
		return 0, fmt.Errorf("%w: unknown notification kind %q", ErrInvalid, n.Kind)
	}
	if strings.TrimSpace(n.Title) == "" {
		return 0, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.CreatedAt = n.CreatedAt.UTC()

	var showID any
	if n.RelatedShowID != nil {
		showID = *n.RelatedShowID
	}
	var showTitle any
	if n.RelatedShowTitle != "" {
		showTitle = n.RelatedShowTitle
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, kind, title, body, related_show_id, related_show_title,
			is_read, sent_email, sent_inapp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		n.UserID, string(n.Kind), n.Title, n.Body, showID, showTitle,
		boolToInt(n.SentEmail), boolToInt(n.SentInApp), n.CreatedAt,
	)
	if err != nil {
		return 0, storageErr("append notification", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("last insert id", err)
	}
	n.ID = id
	n.IsRead = false
	n.ReadAt = nil
	return id, nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get notification", err)
	}
	return n, nil
}

// List returns the user's notifications, newest first. A non-positive limit
// uses the default page size.
func (s *NotificationStore) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `SELECT ` + notificationCols + ` FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, storageErr("list notifications", err)
	}
	defer rows.Close()

	var list []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, storageErr("scan notification", err)
		}
		list = append(list, *n)
	}
	return list, rows.Err()
}

func (s *NotificationStore) owner(ctx context.Context, id int64) (userID int64, isRead bool, err error) {
	var read int
	err = s.db.QueryRowContext(ctx, `SELECT user_id, is_read FROM notifications WHERE id = ?`, id).Scan(&userID, &read)
	if err == sql.ErrNoRows {
		return 0, false, fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, false, storageErr("get notification owner", err)
	}
	return userID, read == 1, nil
}

// MarkRead marks one notification read. Marking an already-read
// notification is a no-op. Notifications the actor cannot manage are
// reported as not found.
func (s *NotificationStore) MarkRead(ctx context.Context, actor auth.Identity, id int64) error {
	ownerID, isRead, err := s.owner(ctx, id)
	if err != nil {
		return err
	}
	if !auth.Authorize(actor, ownerID).Manage {
		return fmt.Errorf("notification %d: %w", id, ErrNotFound)
	}
	if isRead {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0`,
		s.now().UTC(), id,
	)
	if err != nil {
		return storageErr("mark notification read", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read and returns
// how many changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		s.now().UTC(), userID,
	)
	if err != nil {
		return 0, storageErr("mark all notifications read", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("mark all notifications read", err)
	}
	return n, nil
}

// Delete hard-deletes a notification owned by the actor.
func (s *NotificationStore) Delete(ctx context.Context, actor auth.Identity, id int64) error {
	ownerID, _, err := s.owner(ctx, id)
	if err != nil {
		return err
	}
	if !auth.Authorize(actor, ownerID).Manage {
		return fmt.Errorf("delete notification %d: %w", id, ErrForbidden)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ? AND user_id = ?`, id, ownerID)
	if err != nil {
		return storageErr("delete notification", err)
	}
	return nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&count)
	if err != nil {
		return 0, storageErr("count unread notifications", err)
	}
	return count, nil
}
