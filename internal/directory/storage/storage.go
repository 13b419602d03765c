package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested user record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// UserRecord stores one durable user row.
type UserRecord struct {
	ID        string
	Email     string
	Name      string
	Age       int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// UserStore persists the authoritative user set. Email uniqueness is enforced
// here; the store is the only component allowed to enforce it.
type UserStore interface {
	InsertUser(ctx context.Context, record UserRecord) (string, error)
	GetUserByID(ctx context.Context, id string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)
	UpdateUser(ctx context.Context, record UserRecord) error
	DeleteUserByID(ctx context.Context, id string) error
}
