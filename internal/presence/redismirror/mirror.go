// Package redismirror keeps a redis set in step with the hub's online users,
// so processes without a socket hub can answer "who is online".
package redismirror

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/socialchat-server/internal/core"
)

// DefaultKey is used when no key is configured.
const DefaultKey = "presence:online"

// Mirror implements core.PresenceSink on top of a redis set.
type Mirror struct {
	client *redis.Client
	key    string
}

var _ core.PresenceSink = (*Mirror)(nil)

// New connects to addr. The connection is lazy; Ping reports reachability.
func New(addr, key string) *Mirror {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}), key)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *Mirror {
	if key == "" {
		key = DefaultKey
	}
	return &Mirror{client: client, key: key}
}

// Key returns the redis key holding the online set.
func (m *Mirror) Key() string {
	return m.key
}

// Ping checks the redis connection.
func (m *Mirror) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// PublishPresence replaces the online set with the ids in entries.
func (m *Mirror) PublishPresence(ctx context.Context, entries []core.PresenceEntry) error {
	ids := members(entries)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.key)
		if len(ids) > 0 {
			pipe.SAdd(ctx, m.key, ids...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror presence to %s: %w", m.key, err)
	}
	return nil
}

// Online reads the mirrored set back.
func (m *Mirror) Online(ctx context.Context) ([]int64, error) {
	raw, err := m.client.SMembers(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence from %s: %w", m.key, err)
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse member %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases the redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

func members(entries []core.PresenceEntry) []any {
	ids := make([]any, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strconv.FormatInt(e.UserID, 10))
	}
	return ids
}
