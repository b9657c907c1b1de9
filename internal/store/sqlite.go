package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/castle-console/internal/domain"
	"github.com/ashureev/castle-console/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeMaxRetries = 3
	writeRetryDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		token TEXT NOT NULL,
		username TEXT NOT NULL,
		role TEXT NOT NULL,
		expires_at INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSession retrieves the persisted session.
func (s *SQLiteStore) GetSession(ctx context.Context) (*domain.Session, error) {
	query := `SELECT token, username, role, expires_at, created_at FROM sessions WHERE id = 1`

	var session domain.Session
	var expiresAt sql.NullInt64
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query).Scan(
		&session.Token, &session.Username, &session.Role, &expiresAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if expiresAt.Valid {
		session.ExpiresAt = time.Unix(expiresAt.Int64, 0)
	}
	session.CreatedAt = time.Unix(createdAt, 0)

	return &session, nil
}

// SaveSession replaces the persisted session.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO sessions (id, token, username, role, expires_at, created_at)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		token = excluded.token,
		username = excluded.username,
		role = excluded.role,
		expires_at = excluded.expires_at,
		created_at = excluded.created_at`

	var expiresAt interface{}
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt.Unix()
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return s.write(ctx, "save session", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query,
			session.Token, session.Username, session.Role, expiresAt, createdAt.Unix(),
		); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes the persisted session.
func (s *SQLiteStore) DeleteSession(ctx context.Context) error {
	return s.write(ctx, "delete session", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = 1`); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// GetPreference returns a stored preference.
func (s *SQLiteStore) GetPreference(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, true, nil
}

// SetPreference creates or updates a preference.
func (s *SQLiteStore) SetPreference(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	return s.write(ctx, "set preference", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
			return fmt.Errorf("set preference %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// write runs a mutation under the writer lock, retrying SQLITE_BUSY.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func(context.Context) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return shared.RetryOnConflict(ctx, op, writeMaxRetries, writeRetryDelay, fn)
}
