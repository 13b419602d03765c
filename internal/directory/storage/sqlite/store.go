package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/avellar/userdir/internal/directory/storage"
	"github.com/avellar/userdir/internal/directory/storage/sqlite/migrations"
	"github.com/avellar/userdir/internal/platform/id"
	sqlitemigrate "github.com/avellar/userdir/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for the directory user set.
type Store struct {
	sqlDB *sql.DB
	newID func() (string, error)
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a directory SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, newID: id.NewID}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS, "")
}

// InsertUser persists one user row and returns the store-assigned id.
func (s *Store) InsertUser(ctx context.Context, record storage.UserRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeUserRecord(record)
	if err != nil {
		return "", err
	}
	if normalized.ID != "" {
		return "", fmt.Errorf("user id is assigned by the store")
	}

	userID, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("assign user id: %w", err)
	}

	var updatedAt sql.NullInt64
	if normalized.UpdatedAt != nil {
		updatedAt = sql.NullInt64{Int64: toMillis(*normalized.UpdatedAt), Valid: true}
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, email, name, age, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		userID,
		normalized.Email,
		normalized.Name,
		normalized.Age,
		toMillis(normalized.CreatedAt),
		updatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", storage.ErrConflict
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	return userID, nil
}

// GetUserByID loads one user row by id.
func (s *Store) GetUserByID(ctx context.Context, userID string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UserRecord{}, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.UserRecord{}, fmt.Errorf("user id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, name, age, created_at, updated_at
FROM users
WHERE id = ?
`, userID)
	record, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user by id: %w", err)
	}
	return record, nil
}

// GetUserByEmail loads one user row by its unique email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.UserRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.UserRecord{}, fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return storage.UserRecord{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, email, name, age, created_at, updated_at
FROM users
WHERE email = ?
`, email)
	record, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user by email: %w", err)
	}
	return record, nil
}

// ListUsers returns the complete live user set ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]storage.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, email, name, age, created_at, updated_at
FROM users
ORDER BY created_at ASC, id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var records []storage.UserRecord
	for rows.Next() {
		record, scanErr := scanUser(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan user row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return records, nil
}

// UpdateUser persists mutable attributes of one existing user row.
func (s *Store) UpdateUser(ctx context.Context, record storage.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeUserRecord(record)
	if err != nil {
		return err
	}
	if normalized.ID == "" {
		return fmt.Errorf("user id is required")
	}

	var updatedAt sql.NullInt64
	if normalized.UpdatedAt != nil {
		updatedAt = sql.NullInt64{Int64: toMillis(*normalized.UpdatedAt), Valid: true}
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users
SET name = ?, age = ?, updated_at = ?
WHERE id = ?
`,
		normalized.Name,
		normalized.Age,
		updatedAt,
		normalized.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUserByID removes one user row by id.
func (s *Store) DeleteUserByID(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type scanner func(dest ...any) error

func normalizeUserRecord(record storage.UserRecord) (storage.UserRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.Email = strings.TrimSpace(record.Email)
	record.Name = strings.TrimSpace(record.Name)
	if record.Email == "" {
		return storage.UserRecord{}, fmt.Errorf("email is required")
	}
	if record.Name == "" {
		return storage.UserRecord{}, fmt.Errorf("name is required")
	}
	if record.Age < 0 {
		return storage.UserRecord{}, fmt.Errorf("age must be non-negative")
	}
	if record.CreatedAt.IsZero() {
		return storage.UserRecord{}, fmt.Errorf("created_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	if record.UpdatedAt != nil {
		updatedAt := record.UpdatedAt.UTC()
		record.UpdatedAt = &updatedAt
	}
	return record, nil
}

func scanUser(scan scanner) (storage.UserRecord, error) {
	var record storage.UserRecord
	var createdAt int64
	var updatedAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.Email,
		&record.Name,
		&record.Age,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.UserRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	if updatedAt.Valid {
		value := fromMillis(updatedAt.Int64)
		record.UpdatedAt = &value
	}
	return record, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}
