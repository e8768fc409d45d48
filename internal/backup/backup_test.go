package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/showtrack/internal/database"
	"github.com/dukerupert/showtrack/internal/model"
	"github.com/dukerupert/showtrack/internal/store"
)

type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	m.deleted = append(m.deleted, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func setup(t *testing.T) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := newMockS3()
	m := newManager(client, "showtrack-backups", "nightly/", db, store.NewBackupStore(db), nil)
	return m, client, db
}

func TestNewManagerRequiresConfig(t *testing.T) {
	_, err := NewManager(S3Config{Bucket: "b"}, nil, nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRunUploadsEncryptedSnapshot(t *testing.T) {
	m, client, db := setup(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO users (email, name, token_hash) VALUES ('a@example.com', 'A', 'x')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	b, err := m.Run(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b.Status != model.BackupStatusCompleted || b.CompletedAt == nil {
		t.Errorf("backup = %+v", b)
	}
	if !strings.HasPrefix(b.ObjectKey, "nightly/showtrack-") {
		t.Errorf("object key = %q", b.ObjectKey)
	}

	data, ok := client.objects[b.ObjectKey]
	if !ok {
		t.Fatalf("object %q not uploaded", b.ObjectKey)
	}
	if int64(len(data)) != b.SizeBytes {
		t.Errorf("size = %d, uploaded %d", b.SizeBytes, len(data))
	}
	if bytes.HasPrefix(data, []byte("SQLite format 3")) {
		t.Error("uploaded object is not encrypted")
	}
}

func TestRunRejectsShortPassphrase(t *testing.T) {
	m, client, _ := setup(t)
	if _, err := m.Run(context.Background(), "short"); !errors.Is(err, store.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
	if len(client.objects) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestRunRecordsFailure(t *testing.T) {
	m, client, _ := setup(t)
	client.putErr = errors.New("bucket unreachable")
	ctx := context.Background()

	if _, err := m.Run(ctx, testPassphrase); err == nil {
		t.Fatal("expected error")
	}
	list, err := m.store.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("backups = %d, want 1", len(list))
	}
	if list[0].Status != model.BackupStatusFailed || !strings.Contains(list[0].ErrorMessage, "bucket unreachable") {
		t.Errorf("backup = %+v", list[0])
	}
}

func TestRestore(t *testing.T) {
	m, _, db := setup(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx,
		`INSERT INTO users (email, name, token_hash) VALUES ('restore@example.com', 'R', 'x')`); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	b, err := m.Run(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")

	if err := m.Restore(ctx, b.ID, "wrong passphrase!!", dst); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("wrong passphrase err = %v", err)
	}
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("failed restore left a file behind")
	}

	if err := m.Restore(ctx, b.ID, testPassphrase, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var email string
	if err := restored.QueryRowContext(ctx, `SELECT email FROM users`).Scan(&email); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if email != "restore@example.com" {
		t.Errorf("email = %q", email)
	}

	if err := m.Restore(ctx, b.ID, testPassphrase, dst); err == nil {
		t.Error("restore over an existing file should fail")
	}
}

func TestRestoreUnknownBackup(t *testing.T) {
	m, _, _ := setup(t)
	err := m.Restore(context.Background(), 99, testPassphrase, filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCleanup(t *testing.T) {
	m, client, _ := setup(t)
	ctx := context.Background()

	b, err := m.Run(ctx, testPassphrase)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	n, err := m.Cleanup(ctx, 24*time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("fresh Cleanup = %d, %v", n, err)
	}

	m.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = m.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if len(client.deleted) != 1 || client.deleted[0] != b.ObjectKey {
		t.Errorf("deleted objects = %v", client.deleted)
	}
	if got, _ := m.store.GetByID(ctx, b.ID); got != nil {
		t.Error("backup row should be gone")
	}
}
