package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Settings namespaces.
const (
	NamespaceLogoOverrides    = "logo_overrides"
	NamespaceDeletedProviders = "deleted_providers"
)

// SettingsStore holds small namespaced key-value maps.
type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context, namespace, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE namespace = ? AND key = ?`, namespace, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %s/%q: %w", namespace, key, ErrNotFound)
	}
	if err != nil {
		return "", storageErr(fmt.Sprintf("get setting %s/%q", namespace, key), err)
	}
	return value, nil
}

func (s *SettingsStore) GetAll(ctx context.Context, namespace string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE namespace = ? ORDER BY key`, namespace)
	if err != nil {
		return nil, storageErr("get all settings", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, storageErr("scan setting", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (s *SettingsStore) Set(ctx context.Context, namespace, key, value string) error {
	if namespace == "" || key == "" {
		return fmt.Errorf("%w: namespace and key are required", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, key, value, time.Now().UTC(),
	)
	if err != nil {
		return storageErr(fmt.Sprintf("set setting %s/%q", namespace, key), err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *SettingsStore) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM settings WHERE namespace = ? AND key = ?`, namespace, key)
	if err != nil {
		return storageErr(fmt.Sprintf("delete setting %s/%q", namespace, key), err)
	}
	return nil
}
