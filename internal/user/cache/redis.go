// Package cache keeps a short-lived copy of each user's active flag and role in Redis so that
// access-token verification does not hit Postgres on every request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "authcore:user:status:"

// Status is the cached projection of a user.
type Status struct {
	Active bool
	Role   string
}

// NewRedisClient connects to a single Redis node and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("no Redis address provided")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// StatusCache stores Status entries with a fixed TTL.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache returns a cache backed by client. ttl <= 0 defaults to one minute.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatusCache{client: client, ttl: ttl}
}

func key(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// Get returns the cached status. found is false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, userID int64) (Status, bool, error) {
	v, err := c.client.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, fmt.Errorf("get user status: %w", err)
	}
	st, ok := decode(v)
	if !ok {
		return Status{}, false, nil
	}
	return st, true, nil
}

// Set stores st for userID.
func (c *StatusCache) Set(ctx context.Context, userID int64, st Status) error {
	if err := c.client.Set(ctx, key(userID), encode(st), c.ttl).Err(); err != nil {
		return fmt.Errorf("set user status: %w", err)
	}
	return nil
}

// Invalidate drops the entry for userID.
func (c *StatusCache) Invalidate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate user status: %w", err)
	}
	return nil
}

func encode(st Status) string {
	if st.Active {
		return "1:" + st.Role
	}
	return "0:" + st.Role
}

func decode(v string) (Status, bool) {
	flag, role, ok := strings.Cut(v, ":")
	if !ok || (flag != "0" && flag != "1") {
		return Status{}, false
	}
	return Status{Active: flag == "1", Role: role}, true
}
