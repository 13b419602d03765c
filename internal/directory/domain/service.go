package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the durable system of record for directory users. Implementations
// report ErrNotFound for missing identities and ErrEmailTaken when a unique
// email constraint rejects a write.
type Store interface {
	InsertUser(ctx context.Context, user User) (string, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, user User) error
	DeleteUserByID(ctx context.Context, userID string) error
}

// Cache is the lookaside cache over the store. All operations fail open, so
// none of them return errors; a failure is indistinguishable from a miss.
type Cache interface {
	Put(ctx context.Context, user User)
	GetByID(ctx context.Context, userID string) (User, bool)
	GetByEmail(ctx context.Context, email string) (User, bool)
	EvictByID(ctx context.Context, userID string)
	EvictByEmail(ctx context.Context, email string)
}

// EventPublisher emits lifecycle change events after successful mutations.
// Publishing is fire-and-forget from the caller's perspective.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, key string, message string)
}

// NewUser carries the caller-supplied attributes for user creation. The id
// and creation time are assigned by the service.
type NewUser struct {
	Email string
	Name  string
	Age   int
}

// UserUpdate carries the mutable attributes for an update. Email is part of
// the user's identity surface and cannot change.
type UserUpdate struct {
	Name string
	Age  int
}

// Service orchestrates the store, cache, and event stream for directory
// users. The store is authoritative; the cache and event stream follow
// successful store writes.
type Service struct {
	store  Store
	cache  Cache
	events EventPublisher
	clock  func() time.Time
	logf   func(string, ...any)
}

// NewService wires a directory service over its collaborators. The cache and
// publisher may be nil, which disables the respective side effects.
func NewService(store Store, cache Cache, events EventPublisher) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		events: events,
		clock:  time.Now,
		logf:   func(string, ...any) {},
	}
}

// SetLogger directs service diagnostics to logf.
func (s *Service) SetLogger(logf func(string, ...any)) {
	if s == nil || logf == nil {
		return
	}
	s.logf = logf
}

// CreateUser validates and persists a new user, primes the cache, and emits
// creation events. The email uniqueness check against the store is advisory;
// the insert itself is the authority and may still report ErrEmailTaken under
// races.
func (s *Service) CreateUser(ctx context.Context, input NewUser) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s == nil || s.store == nil {
		return User{}, fmt.Errorf("service is not configured")
	}

	input.Email = strings.TrimSpace(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if err := validateAttributes(input.Email, input.Name, input.Age); err != nil {
		return User{}, err
	}

	_, err := s.store.GetUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return User{}, ErrEmailTaken
	case errors.Is(err, ErrNotFound):
	default:
		s.logf("create user: advisory email check for %s: %v", input.Email, err)
	}

	user := User{
		Email:     input.Email,
		Name:      input.Name,
		Age:       input.Age,
		CreatedAt: s.clock().UTC(),
	}
	userID, err := s.store.InsertUser(ctx, user)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = userID

	if s.cache != nil {
		s.cache.Put(ctx, user)
	}
	s.publish(ctx, user.ID, "user created: "+user.Email)
	return user, nil
}

// GetUserByID reads one user, serving from the cache when possible and
// falling back to the store on a miss. Store hits repopulate the cache.
func (s *Service) GetUserByID(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s == nil || s.store == nil {
		return User{}, fmt.Errorf("service is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidUser)
	}

	if s.cache != nil {
		if user, ok := s.cache.GetByID(ctx, userID); ok {
			return user, nil
		}
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	if s.cache != nil {
		s.cache.Put(ctx, user)
	}
	return user, nil
}

// GetUserByEmail reads one user by its unique email with the same cache-aside
// behavior as GetUserByID.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s == nil || s.store == nil {
		return User{}, fmt.Errorf("service is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", ErrInvalidUser)
	}

	if s.cache != nil {
		if user, ok := s.cache.GetByEmail(ctx, email); ok {
			return user, nil
		}
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	if s.cache != nil {
		s.cache.Put(ctx, user)
	}
	return user, nil
}

// ListUsers returns the full user set straight from the store. The listing
// is never cached.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("service is not configured")
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUser replaces the mutable attributes of one existing user, refreshes
// the cache, and emits update events.
func (s *Service) UpdateUser(ctx context.Context, userID string, update UserUpdate) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s == nil || s.store == nil {
		return User{}, fmt.Errorf("service is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidUser)
	}

	current, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("load user for update: %w", err)
	}

	update.Name = strings.TrimSpace(update.Name)
	if err := validateAttributes(current.Email, update.Name, update.Age); err != nil {
		return User{}, err
	}

	updatedAt := s.clock().UTC()
	current.Name = update.Name
	current.Age = update.Age
	current.UpdatedAt = &updatedAt

	if err := s.store.UpdateUser(ctx, current); err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}

	if s.cache != nil {
		s.cache.Put(ctx, current)
	}
	s.publish(ctx, current.ID, "user updated: "+current.Email)
	return current, nil
}

// DeleteUser removes one user, evicts both cache entries, and emits deletion
// events. The email for the secondary eviction is captured before the row
// disappears.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.store == nil {
		return fmt.Errorf("service is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidUser)
	}

	current, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load user for delete: %w", err)
	}

	if err := s.store.DeleteUserByID(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	if s.cache != nil {
		s.cache.EvictByID(ctx, userID)
		s.cache.EvictByEmail(ctx, current.Email)
	}
	s.publish(ctx, userID, "user deleted: "+current.Email)
	return nil
}

func (s *Service) publish(ctx context.Context, key string, message string) {
	if s.events == nil {
		return
	}
	s.events.PublishLifecycle(ctx, key, message)
}

func validateAttributes(email string, name string, age int) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidUser)
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: email %q is malformed", ErrInvalidUser, email)
	}
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if age < 0 {
		return fmt.Errorf("%w: age must be non-negative", ErrInvalidUser)
	}
	return nil
}
