package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/samudra-erp/samudra-erp/internal/platform/httpx"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

// Snapshot is the session view handed to the evaluator. Once IsAuthenticated
// is true the user's roles and permissions are fully populated.
type Snapshot struct {
	User            *rbac.Principal
	IsAuthenticated bool
}

// UserLoader fetches the authoritative user record. It returns
// httpx.ErrNotFound for unknown or deactivated users.
type UserLoader interface {
	Record(ctx context.Context, userID string) (rbac.User, error)
}

// Provider hydrates and caches session snapshots. Cached records are only
// ever replaced wholesale.
type Provider struct {
	client *redis.Client
	loader UserLoader
	memo   *MenuMemo
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewProvider constructs a Provider.
func NewProvider(client *redis.Client, loader UserLoader, memo *MenuMemo, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Provider{client: client, loader: loader, memo: memo, ttl: ttl, logger: logger}
}

// Snapshot returns the snapshot for userID. An empty id or a user the loader
// no longer knows yields the unauthenticated snapshot.
func (p *Provider) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, nil
	}
	user, err := p.cached(ctx, userID)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	return p.hydrate(ctx, user), nil
}

// Refresh reloads the record from the loader and swaps the cached copy.
func (p *Provider) Refresh(ctx context.Context, userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, nil
	}
	if err := p.Invalidate(ctx, userID); err != nil {
		return Snapshot{}, err
	}
	return p.Snapshot(ctx, userID)
}

// Invalidate drops the cached record and the menu access memo for userID.
func (p *Provider) Invalidate(ctx context.Context, userID string) error {
	if err := p.client.Del(ctx, snapshotKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: invalidate snapshot: %w", err)
	}
	if p.memo != nil {
		if err := p.memo.Clear(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// Cached reports whether a snapshot record is cached for userID.
func (p *Provider) Cached(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, snapshotKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: exists: %w", err)
	}
	return n > 0, nil
}

func (p *Provider) hydrate(ctx context.Context, user rbac.User) Snapshot {
	user.MenuAccess = nil
	if p.memo != nil {
		memo, err := p.memo.Load(ctx, user.ID, user.Version)
		if err != nil {
			p.warn("load menu access memo", user.ID, err)
		} else if len(memo) > 0 {
			user.MenuAccess = memo
		}
	}
	return Snapshot{User: rbac.NewPrincipal(user), IsAuthenticated: true}
}

func (p *Provider) cached(ctx context.Context, userID string) (rbac.User, error) {
	raw, err := p.client.Get(ctx, snapshotKey(userID)).Bytes()
	switch {
	case err == nil:
		var user rbac.User
		jsonErr := json.Unmarshal(raw, &user)
		if jsonErr == nil && user.ID != "" {
			return user, nil
		}
		p.warn("discard corrupt snapshot", userID, jsonErr)
	case !errors.Is(err, redis.Nil):
		p.warn("read snapshot cache", userID, err)
	}

	v, err, _ := p.group.Do(userID, func() (any, error) {
		user, err := p.loader.Record(ctx, userID)
		if err != nil {
			return rbac.User{}, err
		}
		user.MenuAccess = nil
		user.Version = uuid.NewString()
		data, err := json.Marshal(user)
		if err != nil {
			return rbac.User{}, err
		}
		if err := p.client.Set(ctx, snapshotKey(userID), data, p.ttl).Err(); err != nil {
			p.warn("write snapshot cache", userID, err)
		}
		return user, nil
	})
	if err != nil {
		return rbac.User{}, err
	}
	return v.(rbac.User), nil
}

func (p *Provider) warn(msg, userID string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Warn(msg, slog.String("user", userID), slog.Any("error", err))
}

func snapshotKey(userID string) string {
	return "snapshot:" + userID
}
