package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/showtrack/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var role string
	err := scanner.Scan(&u.ID, &u.Email, &u.Name, &role, &u.TokenHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

const userCols = `id, email, name, role, token_hash, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, email, name string, role model.Role) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalid)
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, role) VALUES (?, ?, ?)`,
		email, strings.TrimSpace(name), string(role),
	)
	if err != nil {
		return nil, storageErr("insert user", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, storageErr("last insert id", err)
	}
	return s.GetByID(ctx, id)
}

// IssueToken generates a fresh API token for the user and stores its bcrypt
// hash. The plaintext token is only ever returned here.
func (s *UserStore) IssueToken(ctx context.Context, id int64) (string, error) {
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET token_hash = ? WHERE id = ?`, string(hash), id)
	if err != nil {
		return "", storageErr("store token", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return "", fmt.Errorf("issue token for user %d: %w", id, ErrNotFound)
	}
	return token, nil
}

// Authenticate returns the user when token matches the stored hash, or nil
// when the user is unknown or the token is wrong.
func (s *UserStore) Authenticate(ctx context.Context, id int64, token string) (*model.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	if u.TokenHash == "" || token == "" {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.TokenHash), []byte(token)); err != nil {
		return nil, nil
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user by email", err)
	}
	return u, nil
}

func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, storageErr("scan user", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Exists reports whether a user with the given id is present.
func (s *UserStore) Exists(ctx context.Context, id int64) (bool, error) {
	return userExists(ctx, s.db, id)
}

// EmailOf returns the user's email address.
func (s *UserStore) EmailOf(ctx context.Context, id int64) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, id).Scan(&addr)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", storageErr("get user email", err)
	}
	return addr, nil
}

// RoleOf implements auth.RoleProvider.
func (s *UserStore) RoleOf(ctx context.Context, id int64) (model.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id = ?`, id).Scan(&role)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", storageErr("get role", err)
	}
	return model.Role(role), nil
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete user", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func userExists(ctx context.Context, q queryRower, id int64) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&n); err != nil {
		return false, storageErr("check user", err)
	}
	return n > 0, nil
}
