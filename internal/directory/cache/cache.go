// Package cache is the dual-key lookaside cache client for directory users.
//
// Users are cached under two independent key spaces: the primary entry maps a
// user id to the serialized user, the secondary entry maps the unique email to
// the user id. The two entries expire independently and are never written
// transactionally, so the secondary index may be stale; it is pure indirection
// and is always re-validated against the primary entry.
//
// Every operation fails open: an underlying error is logged and converted to
// a miss or no-op. The cache is an optimization and must never fail the
// caller's logical operation.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/avellar/userdir/internal/directory/domain"
	"github.com/avellar/userdir/internal/platform/kv"
	"github.com/avellar/userdir/internal/platform/timeouts"
)

const (
	userKeyPrefix      = "user:"
	userEmailKeyPrefix = "user:email:"
)

// DefaultTTL bounds how long cached user entries stay live.
const DefaultTTL = 30 * time.Minute

type cachedUser struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Age       int        `json:"age"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Client caches directory users in a TTL-bound key-value store.
type Client struct {
	kv        kv.Store
	ttl       time.Duration
	opTimeout time.Duration
	logf      func(string, ...any)
}

// NewClient constructs a cache client. A zero ttl selects DefaultTTL and a
// nil logf discards nothing (log.Printf is wired by the caller).
func NewClient(store kv.Store, ttl time.Duration, logf func(string, ...any)) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Client{
		kv:        store,
		ttl:       ttl,
		opTimeout: timeouts.CacheOp,
		logf:      logf,
	}
}

// Put writes the primary and secondary entries for one user. The two writes
// are independent; partial success leaves a stale or missing secondary index,
// which readers tolerate.
func (c *Client) Put(ctx context.Context, user domain.User) {
	if c == nil || c.kv == nil {
		return
	}
	user.ID = strings.TrimSpace(user.ID)
	user.Email = strings.TrimSpace(user.Email)
	if user.ID == "" || user.Email == "" {
		return
	}

	payload, err := json.Marshal(toCachedUser(user))
	if err != nil {
		c.logf("cache: marshal user %s: %v", user.ID, err)
		return
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.kv.Set(opCtx, userKeyPrefix+user.ID, string(payload), c.ttl); err != nil {
		c.logf("cache: put user %s: %v", user.ID, err)
	}
	if err := c.kv.Set(opCtx, userEmailKeyPrefix+user.Email, user.ID, c.ttl); err != nil {
		c.logf("cache: put user email index %s: %v", user.Email, err)
	}
}

// GetByID returns the cached user for id, or absent on miss, expiry, or any
// cache failure.
func (c *Client) GetByID(ctx context.Context, userID string) (domain.User, bool) {
	if c == nil || c.kv == nil {
		return domain.User{}, false
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, false
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	payload, ok, err := c.kv.Get(opCtx, userKeyPrefix+userID)
	if err != nil {
		c.logf("cache: get user %s: %v", userID, err)
		return domain.User{}, false
	}
	if !ok {
		return domain.User{}, false
	}

	var cached cachedUser
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		c.logf("cache: unmarshal user %s: %v", userID, err)
		return domain.User{}, false
	}
	return fromCachedUser(cached), true
}

// GetByEmail resolves the secondary email index to a user id and then loads
// the primary entry. A dangling secondary entry whose primary is gone yields
// absent, never stale data.
func (c *Client) GetByEmail(ctx context.Context, email string) (domain.User, bool) {
	if c == nil || c.kv == nil {
		return domain.User{}, false
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, false
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	userID, ok, err := c.kv.Get(opCtx, userEmailKeyPrefix+email)
	if err != nil {
		c.logf("cache: get user email index %s: %v", email, err)
		return domain.User{}, false
	}
	if !ok {
		return domain.User{}, false
	}
	return c.GetByID(ctx, userID)
}

// EvictByID removes the primary entry for id. The secondary index is left
// alone; callers needing both-key consistency evict both.
func (c *Client) EvictByID(ctx context.Context, userID string) {
	if c == nil || c.kv == nil {
		return
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	if _, err := c.kv.Delete(opCtx, userKeyPrefix+userID); err != nil {
		c.logf("cache: evict user %s: %v", userID, err)
	}
}

// EvictByEmail removes the secondary email index entry.
func (c *Client) EvictByEmail(ctx context.Context, email string) {
	if c == nil || c.kv == nil {
		return
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	if _, err := c.kv.Delete(opCtx, userEmailKeyPrefix+email); err != nil {
		c.logf("cache: evict user email index %s: %v", email, err)
	}
}

// SetRaw stores an arbitrary value under key with a caller-supplied ttl.
// A zero ttl selects the client default.
func (c *Client) SetRaw(ctx context.Context, key string, value string, ttl time.Duration) {
	if c == nil || c.kv == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.kv.Set(opCtx, key, value, ttl); err != nil {
		c.logf("cache: set raw %s: %v", key, err)
	}
}

// GetRaw returns the raw value stored under key.
func (c *Client) GetRaw(ctx context.Context, key string) (string, bool) {
	if c == nil || c.kv == nil {
		return "", false
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	value, ok, err := c.kv.Get(opCtx, key)
	if err != nil {
		c.logf("cache: get raw %s: %v", key, err)
		return "", false
	}
	return value, ok
}

// Delete removes key and reports whether a live entry existed.
func (c *Client) Delete(ctx context.Context, key string) bool {
	if c == nil || c.kv == nil {
		return false
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	deleted, err := c.kv.Delete(opCtx, key)
	if err != nil {
		c.logf("cache: delete %s: %v", key, err)
		return false
	}
	return deleted
}

// Exists reports whether a live entry is present under key.
func (c *Client) Exists(ctx context.Context, key string) bool {
	if c == nil || c.kv == nil {
		return false
	}

	opCtx, cancel := c.bound(ctx)
	defer cancel()
	ok, err := c.kv.Exists(opCtx, key)
	if err != nil {
		c.logf("cache: exists %s: %v", key, err)
		return false
	}
	return ok
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.opTimeout)
}

func toCachedUser(user domain.User) cachedUser {
	return cachedUser{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Age:       user.Age,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func fromCachedUser(cached cachedUser) domain.User {
	return domain.User{
		ID:        cached.ID,
		Email:     cached.Email,
		Name:      cached.Name,
		Age:       cached.Age,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}
}
