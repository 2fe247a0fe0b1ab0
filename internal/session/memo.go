package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/samudra-erp/samudra-erp/internal/rbac"
)

const (
	memoKeyPrefix = "menu_access:"
	// memoVersionField holds the snapshot version the entries were computed for.
	memoVersionField = "_version"
)

// MenuMemo persists computed menu access per user as a Redis hash keyed by
// menu id. Entries are trusted verbatim until cleared or expired, and only by
// a session hydrated from the same snapshot version.
type MenuMemo struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMenuMemo constructs a MenuMemo.
func NewMenuMemo(client *redis.Client, ttl time.Duration) *MenuMemo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MenuMemo{client: client, ttl: ttl}
}

// Load returns the memoized access for userID computed against version. A
// memo written for another version is ignored.
func (m *MenuMemo) Load(ctx context.Context, userID, version string) (map[string]rbac.MenuAccess, error) {
	fields, err := m.client.HGetAll(ctx, memoKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: load memo: %w", err)
	}
	if len(fields) == 0 || fields[memoVersionField] != version {
		return nil, nil
	}
	out := make(map[string]rbac.MenuAccess, len(fields))
	for menuID, raw := range fields {
		if menuID == memoVersionField {
			continue
		}
		var access rbac.MenuAccess
		if err := json.Unmarshal([]byte(raw), &access); err != nil {
			continue
		}
		out[menuID] = access
	}
	return out, nil
}

// Store merges entries into the memo for version and refreshes its expiry.
// Entries left by a different version are replaced rather than merged.
func (m *MenuMemo) Store(ctx context.Context, userID, version string, entries map[string]rbac.MenuAccess) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(entries)+1)
	for menuID, access := range entries {
		data, err := json.Marshal(access)
		if err != nil {
			return err
		}
		values[menuID] = string(data)
	}
	values[memoVersionField] = version

	key := memoKey(userID)
	err := m.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, memoVersionField).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		stale := err == nil && current != version
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if stale {
				pipe.Del(ctx, key)
			}
			pipe.HSet(ctx, key, values)
			pipe.Expire(ctx, key, m.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("session: store memo: %w", err)
	}
	return nil
}

// Clear removes the memo for userID.
func (m *MenuMemo) Clear(ctx context.Context, userID string) error {
	if err := m.client.Del(ctx, memoKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: clear memo: %w", err)
	}
	return nil
}

// Users lists the user ids that currently have a memo.
func (m *MenuMemo) Users(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		users  []string
	)
	for {
		keys, next, err := m.client.Scan(ctx, cursor, memoKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("session: scan memo: %w", err)
		}
		for _, key := range keys {
			users = append(users, strings.TrimPrefix(key, memoKeyPrefix))
		}
		if next == 0 {
			return users, nil
		}
		cursor = next
	}
}

func memoKey(userID string) string {
	return memoKeyPrefix + userID
}
