// Package backup takes encrypted snapshots of the showtrack database and
// keeps them in S3-compatible object storage.
package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/showtrack/internal/metrics"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/store"
)

var (
	ErrNotConfigured = errors.New("backup not configured: bucket and credentials required")
	ErrNotFound      = errors.New("backup not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Manager runs backups, restores and retention cleanup.
type Manager struct {
	client s3Client
	bucket string
	prefix string
	db     *sql.DB
	store  *store.BackupStore
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(cfg S3Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) (*Manager, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	return newManager(newS3Client(cfg), cfg.Bucket, cfg.Prefix, db, bs, logger), nil
}

func newManager(client s3Client, bucket, prefix string, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		db:     db,
		store:  bs,
		logger: logger.With("component", "backup"),
		now:    time.Now,
	}
}

func checkPassphrase(p string) error {
	if len(p) < MinPassphraseLen {
		return fmt.Errorf("%w: passphrase must be at least %d characters", store.ErrInvalid, MinPassphraseLen)
	}
	return nil
}

// Run snapshots the database, encrypts it with passphrase and uploads it.
// The backup row records the outcome either way.
func (m *Manager) Run(ctx context.Context, passphrase string) (*model.Backup, error) {
	if err := checkPassphrase(passphrase); err != nil {
		return nil, err
	}

	key := path.Join(m.prefix, fmt.Sprintf("showtrack-%s.db.enc", m.now().UTC().Format("2006-01-02T150405Z")))
	record, err := m.store.Create(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.upload(ctx, record, passphrase)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("failed").Inc()
		if uerr := m.store.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "backup_id", record.ID, "error", uerr)
		}
		return nil, err
	}

	if err := m.store.MarkCompleted(ctx, record.ID, size); err != nil {
		return nil, err
	}
	metrics.BackupsTotal.WithLabelValues("completed").Inc()
	m.logger.Info("backup complete", "backup_id", record.ID, "key", key, "bytes", size)
	return m.store.GetByID(ctx, record.ID)
}

func (m *Manager) upload(ctx context.Context, record *model.Backup, passphrase string) (int64, error) {
	tmpDir, err := os.MkdirTemp("", "showtrack-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}

	encrypted := snapshot + ".enc"
	if err := EncryptFile(snapshot, encrypted, passphrase); err != nil {
		return 0, fmt.Errorf("encrypt: %w", err)
	}
	file, err := os.Open(encrypted)
	if err != nil {
		return 0, fmt.Errorf("open encrypted snapshot: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	if err := m.store.UpdateStatus(ctx, record.ID, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(record.ObjectKey),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return info.Size(), nil
}

// Restore downloads backup id, decrypts and integrity-checks it, and writes
// the database to dst. dst must not exist; the running database is never
// replaced in place.
func (m *Manager) Restore(ctx context.Context, id int64, passphrase, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("restore target %s already exists", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat restore target: %w", err)
	}

	record, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return fmt.Errorf("backup %d: %w", id, ErrNotFound)
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(record.ObjectKey),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	encrypted := dst + ".enc.partial"
	defer os.Remove(encrypted)
	if err := writeFile(encrypted, result.Body); err != nil {
		return fmt.Errorf("save download: %w", err)
	}

	tmp := dst + ".partial"
	defer os.Remove(tmp)
	if err := DecryptFile(encrypted, tmp, passphrase); err != nil {
		return err
	}

	if err := integrityCheck(ctx, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("move restored db: %w", err)
	}
	m.logger.Info("backup restored", "backup_id", id, "path", dst)
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func integrityCheck(ctx context.Context, dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup deletes backups older than retention and returns how many rows
// were removed. Object deletion failures are logged and skipped.
func (m *Manager) Cleanup(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	keys, err := m.store.DeleteOlderThan(ctx, m.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete backup object failed", "key", key, "error", err)
		}
	}
	return len(keys), nil
}
