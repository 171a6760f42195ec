package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema against ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates all tables and indexes if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, username, name, profile_img, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.ProfileImg,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) (*store.User, error) {
	query := `
		INSERT INTO users (username, name, profile_img, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, user.Username, user.Name, user.ProfileImg, user.PasswordHash, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// SearchUsers searches for users by username or display name.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	sqlQuery := `
		SELECT ` + userColumns + `
		FROM users
		WHERE username LIKE ? OR name LIKE ?
		ORDER BY username ASC
		LIMIT 20
	`
	pattern := "%" + query + "%"
	return s.queryUsers(ctx, sqlQuery, pattern, pattern)
}

func (s *SQLiteStore) queryUsers(ctx context.Context, query string, args ...any) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// ==== FollowStore implementation ====

// Follow creates the edge follower -> followee. Existing edges are left untouched.
func (s *SQLiteStore) Follow(ctx context.Context, followerID, followeeID int64) error {
	query := `
		INSERT OR IGNORE INTO follows (follower_id, followee_id, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, followerID, followeeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert follow: %w", err)
	}
	return nil
}

// Unfollow removes the edge follower -> followee if present.
func (s *SQLiteStore) Unfollow(ctx context.Context, followerID, followeeID int64) error {
	query := `DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`
	if _, err := s.db.ExecContext(ctx, query, followerID, followeeID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}

// ListFollowers returns users following userID.
func (s *SQLiteStore) ListFollowers(ctx context.Context, userID int64) ([]*store.User, error) {
	query := `
		SELECT u.id, u.username, u.name, u.profile_img, u.password_hash, u.created_at
		FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = ?
		ORDER BY u.username ASC
	`
	return s.queryUsers(ctx, query, userID)
}

// ListFollowing returns users userID follows.
func (s *SQLiteStore) ListFollowing(ctx context.Context, userID int64) ([]*store.User, error) {
	query := `
		SELECT u.id, u.username, u.name, u.profile_img, u.password_hash, u.created_at
		FROM follows f
		JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = ?
		ORDER BY u.username ASC
	`
	return s.queryUsers(ctx, query, userID)
}
