// Package identity registers users and verifies their passwords.
package identity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMinPasswordLength = 8
	maxPasswordBytes         = 72 // bcrypt input limit

	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Options tunes the password policy.
type Options struct {
	MinPasswordLength int
	BcryptCost        int
}

// User is a registered account without its password hash.
type User struct {
	Username    string     `json:"username"`
	Roles       []string   `json:"roles"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Store keeps users in SQLite.
type Store struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(db *sql.DB, opts Options, logger *slog.Logger) *Store {
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = DefaultMinPasswordLength
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, opts: opts, logger: logger, now: time.Now}
}

// Register creates a user. It reports false, without error, when the username
// is taken or the password does not meet the policy.
func (s *Store) Register(ctx context.Context, username, password string, roles []string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, nil
	}
	if len(password) < s.opts.MinPasswordLength || len(password) > maxPasswordBytes {
		s.logger.Info("registration rejected by password policy", "username", username)
		return false, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	rolesJSON, err := json.Marshal(normalizeRoles(roles))
	if err != nil {
		return false, fmt.Errorf("encode roles: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO users(username, password_hash, roles, created_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(username) DO NOTHING;
`, username, string(hash), string(rolesJSON), s.now().UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		s.logger.Info("registration rejected, user exists", "username", username)
		return false, nil
	}
	return true, nil
}

// Authenticate checks a password. Unknown users and wrong passwords both
// report false without error.
func (s *Store) Authenticate(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)

	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT password_hash FROM users WHERE username = ?;", username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("compare password: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE users SET last_login_at = ? WHERE username = ?;",
		s.now().UTC().Format(timeLayout), username); err != nil {
		s.logger.Warn("failed to record login time", "username", username, "error", err)
	}
	return true, nil
}

// Get returns a user without its password hash.
func (s *Store) Get(ctx context.Context, username string) (*User, error) {
	var (
		u          User
		rolesJSON  string
		createdAtS string
		lastLogin  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT username, roles, created_at, last_login_at FROM users WHERE username = ?;
`, strings.TrimSpace(username)).Scan(&u.Username, &rolesJSON, &createdAtS, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtS); err != nil {
		return nil, fmt.Errorf("parse users.created_at: %w", err)
	}
	if lastLogin.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("parse users.last_login_at: %w", err)
		}
		u.LastLoginAt = &t
	}
	return &u, nil
}

// ErrUserNotFound is returned by Get for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
