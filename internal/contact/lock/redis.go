package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned when a release finds the key owned by someone else,
// typically because the TTL elapsed.
var ErrNotHeld = errors.New("lock not held")

const (
	defaultKeyPrefix   = "contact:lock:"
	defaultTTL         = 30 * time.Second
	defaultMaxInterval = 200 * time.Millisecond
	releaseTimeout     = 2 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a distributed keyed lock built on SET NX PX with an owner token.
// The TTL bounds how long a crashed holder can block others; it must exceed
// the reconciliation transaction timeout.
type Redis struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

type RedisOption func(*Redis)

func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		ttl:       defaultTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type heldKey struct {
	key   string
	token string
}

// Acquire polls with exponential backoff until every key is set or ctx ends.
// Keys already taken are released before returning an error.
func (r *Redis) Acquire(ctx context.Context, keys []string) (func(), error) {
	ordered := orderKeys(keys)
	held := make([]heldKey, 0, len(ordered))
	for _, key := range ordered {
		h, err := r.acquireOne(ctx, r.keyPrefix+key)
		if err != nil {
			r.releaseAll(held)
			return nil, err
		}
		held = append(held, h)
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		r.releaseAll(held)
	}, nil
}

func (r *Redis) acquireOne(ctx context.Context, key string) (heldKey, error) {
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = defaultMaxInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquire %s: %w", key, err))
		}
		if !ok {
			return errors.New("lock busy")
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return heldKey{}, err
	}
	return heldKey{key: key, token: token}, nil
}

func (r *Redis) releaseAll(held []heldKey) {
	// Release must run even when the caller's context is already done.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	for i := len(held) - 1; i >= 0; i-- {
		if err := r.release(ctx, held[i]); err != nil {
			r.logger.WarnContext(ctx, "failed to release reconciliation lock",
				"key", held[i].key,
				"error", err,
			)
		}
	}
}

func (r *Redis) release(ctx context.Context, h heldKey) error {
	n, err := releaseScript.Run(ctx, r.client, []string{h.key}, h.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
