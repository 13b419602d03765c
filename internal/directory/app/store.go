package server

import (
	"context"
	"errors"

	"github.com/avellar/userdir/internal/directory/domain"
	"github.com/avellar/userdir/internal/directory/storage"
	"github.com/avellar/userdir/internal/platform/timeouts"
)

// domainStore adapts the storage record contract to the domain Store
// interface, translating storage sentinels into domain sentinels at the
// boundary. Every call is bounded by the store query timeout; a timed-out
// store call is a hard failure for the caller.
type domainStore struct {
	store storage.UserStore
}

func newDomainStore(store storage.UserStore) *domainStore {
	return &domainStore{store: store}
}

func (a *domainStore) InsertUser(ctx context.Context, user domain.User) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	userID, err := a.store.InsertUser(opCtx, toUserRecord(user))
	if err != nil {
		return "", mapStorageError(err)
	}
	return userID, nil
}

func (a *domainStore) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	record, err := a.store.GetUserByID(opCtx, userID)
	if err != nil {
		return domain.User{}, mapStorageError(err)
	}
	return toDomainUser(record), nil
}

func (a *domainStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	record, err := a.store.GetUserByEmail(opCtx, email)
	if err != nil {
		return domain.User{}, mapStorageError(err)
	}
	return toDomainUser(record), nil
}

func (a *domainStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	records, err := a.store.ListUsers(opCtx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	users := make([]domain.User, 0, len(records))
	for _, record := range records {
		users = append(users, toDomainUser(record))
	}
	return users, nil
}

func (a *domainStore) UpdateUser(ctx context.Context, user domain.User) error {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	return mapStorageError(a.store.UpdateUser(opCtx, toUserRecord(user)))
}

func (a *domainStore) DeleteUserByID(ctx context.Context, userID string) error {
	opCtx, cancel := context.WithTimeout(ctx, timeouts.StoreQuery)
	defer cancel()
	return mapStorageError(a.store.DeleteUserByID(opCtx, userID))
}

func toUserRecord(user domain.User) storage.UserRecord {
	return storage.UserRecord{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Age:       user.Age,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func toDomainUser(record storage.UserRecord) domain.User {
	return domain.User{
		ID:        record.ID,
		Email:     record.Email,
		Name:      record.Name,
		Age:       record.Age,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrEmailTaken
	}
	return err
}
