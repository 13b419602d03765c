// Package domain holds the directory user model and the orchestration
// service that keeps the durable store, the lookaside cache, and the event
// stream consistent.
package domain

import (
	"errors"
	"time"
)

// User is one directory member.
type User struct {
	ID        string
	Email     string
	Name      string
	Age       int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// ErrNotFound reports that no user matched the requested identity.
var ErrNotFound = errors.New("user not found")

// ErrEmailTaken reports that the requested email already belongs to a
// different user.
var ErrEmailTaken = errors.New("email already taken")

// ErrInvalidUser reports that the supplied attributes fail validation.
var ErrInvalidUser = errors.New("invalid user")
