package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/dukerupert/showtrack/internal/model"
)

// ReminderStore is the dedupe ledger for scheduled reminders.
type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

// RecordSent records that a reminder was sent. It reports false when the
// reminder had already been recorded.
func (s *ReminderStore) RecordSent(ctx context.Context, userID int64, kind model.Kind, refID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sent_reminders (user_id, kind, reference_id, sent_at) VALUES (?, ?, ?, ?)`,
		userID, string(kind), refID, time.Now().UTC(),
	)
	if err != nil {
		return false, storageErr("record sent reminder", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("record sent reminder", err)
	}
	return n > 0, nil
}

// WasSent checks if a reminder was already sent.
func (s *ReminderStore) WasSent(ctx context.Context, userID int64, kind model.Kind, refID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sent_reminders WHERE user_id = ? AND kind = ? AND reference_id = ?`,
		userID, string(kind), refID,
	).Scan(&count)
	if err != nil {
		return false, storageErr("check sent reminder", err)
	}
	return count > 0, nil
}

// CleanupSent deletes reminder rows older than the given time.
func (s *ReminderStore) CleanupSent(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sent_reminders WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return 0, storageErr("cleanup sent reminders", err)
	}
	return result.RowsAffected()
}
