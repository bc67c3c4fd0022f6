// redis.go -- go-redis backed pending-auth and result store.
//
// Sessions live under auth:<key> with a TTL matching their expiry; Redis drops abandoned
// ones on its own. Results for the redirect transport live under auth_result:<ticket>.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "auth:"
	resultKeyPrefix  = "auth_result:"
)

// putScript stores ARGV[1] under KEYS[1] for ARGV[2] ms unless the key is taken.
// Returns 1 when stored or when the existing value is identical, 0 on collision.
var putScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
end
if cur == ARGV[1] then
	return 1
end
return 0
`)

// RedisStore implements the pending-auth and result stores on Redis.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisClient parses redisURL, connects and pings.
// Call once at startup from main.go; the returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore wraps an already-connected client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// Close shuts down the Redis client and releases all resources.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Put stores session under key for ttl.
// Returns ErrSessionCollision if a different session already holds key.
func (s *RedisStore) Put(ctx context.Context, key string, session *AuthSession, ttl time.Duration) error {
	val, err := encodeSession(session)
	if err != nil {
		return err
	}

	stored, err := putScript.Run(ctx, s.rdb, []string{sessionKeyPrefix + key}, val, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("storing auth session: %w", err)
	}
	if stored == 0 {
		return ErrSessionCollision
	}
	return nil
}

// TakeIfValid atomically reads and deletes the session under key.
// Missing, expired and undecodable values are all ErrSessionNotFound.
func (s *RedisStore) TakeIfValid(ctx context.Context, key string) (*AuthSession, error) {
	raw, err := s.rdb.GetDel(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taking auth session: %w", err)
	}

	session, err := decodeSession(raw)
	if err != nil {
		return nil, err
	}
	// Key TTL and expiresAt can disagree by clock skew; expiresAt wins.
	if session.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// PutResult stores a delivery payload under ticket for ttl.
func (s *RedisStore) PutResult(ctx context.Context, ticket string, payload []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, resultKeyPrefix+ticket, payload, ttl).Err(); err != nil {
		return fmt.Errorf("storing auth result: %w", err)
	}
	return nil
}

// TakeResult reads and deletes the payload under ticket.
func (s *RedisStore) TakeResult(ctx context.Context, ticket string) ([]byte, error) {
	raw, err := s.rdb.GetDel(ctx, resultKeyPrefix+ticket).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("taking auth result: %w", err)
	}
	return raw, nil
}
