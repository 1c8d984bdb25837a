package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-sandbox/internal/core/ports"
)

const (
	defaultKeyPrefix = "lighthouse:session:"
	defaultTTL       = 15 * time.Minute
)

// Only the holder of the token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures the Redis-backed session locker.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	KeyPrefix   string
	TTL         time.Duration // upper bound on how long a crashed holder blocks a session
	DialTimeout time.Duration
}

// Redis is a SessionLocker shared by every replica pointing at the same
// Redis instance.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    logrus.FieldLogger
}

var _ ports.SessionLocker = (*Redis)(nil)

// NewRedis connects to Redis and verifies it is reachable.
func NewRedis(ctx context.Context, cfg RedisConfig, log logrus.FieldLogger) (*Redis, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{addr},
		Username:    strings.TrimSpace(cfg.Username),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
		MaxRetries:  2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	r := &Redis{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		log:    log.WithField("component", "lock.redis"),
	}
	if r.prefix == "" {
		r.prefix = defaultKeyPrefix
	}
	if r.ttl <= 0 {
		r.ttl = defaultTTL
	}
	return r, nil
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := r.prefix + key

	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %q: %w", redisKey, err)
	}
	if !ok {
		return nil, ports.ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := releaseScript.Run(context.Background(), r.client, []string{redisKey}, token).Err(); err != nil {
				r.log.WithError(err).WithField("key", redisKey).Warn("Failed to release session lock")
			}
		})
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
