/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runlock serializes scheduling runs that share a key, either inside
// one process or across instances through Redis.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/telemetry"
)

const (
	defaultKeyPrefix = "adsched:run:"
	defaultTTL       = 10 * time.Minute
)

// ErrLockHeld is returned when another run holds the key.
var ErrLockHeld = errors.New("run lock held")

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out leases per key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

func record(outcome string) {
	telemetry.RunLockAcquisitionsTotal.WithLabelValues(outcome).Inc()
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire fails fast with ErrLockHeld instead of waiting.
func (l *Local) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		record("held")
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	l.held[key] = struct{}{}
	record("acquired")
	return &localLease{owner: l, key: key}, nil
}

type localLease struct {
	owner *Local
	key   string
	once  sync.Once
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(func() {
		ll.owner.mu.Lock()
		delete(ll.owner.held, ll.key)
		ll.owner.mu.Unlock()
	})
	return nil
}

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	TTL        time.Duration
	InstanceID string
}

// Redis is a Locker backed by SET NX with a TTL. A held lease renews itself
// every TTL/3 until released so long runs keep the key.
type Redis struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    RedisConfig
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*Redis, error) {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", cfg.Addr).
		Str("instance_id", cfg.InstanceID).
		Dur("ttl", cfg.TTL).
		Msg("connected to Redis for run locking")

	return &Redis{
		client: client,
		logger: logger.With().Str("component", "runlock").Logger(),
		cfg:    cfg,
	}, nil
}

// Acquire takes the key or reports who holds it.
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	redisKey := r.cfg.KeyPrefix + key
	token := r.cfg.InstanceID + ":" + uuid.NewString()

	ok, err := r.client.SetNX(ctx, redisKey, token, r.cfg.TTL).Result()
	if err != nil {
		record("error")
		return nil, fmt.Errorf("set lock: %w", err)
	}
	if !ok {
		record("held")
		holder, err := r.client.Get(ctx, redisKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		return nil, fmt.Errorf("%w: %s by %s", ErrLockHeld, key, holder)
	}
	record("acquired")

	renewCtx, cancel := context.WithCancel(context.Background())
	lease := &redisLease{owner: r, key: redisKey, token: token, cancel: cancel, done: make(chan struct{})}
	go lease.renewLoop(renewCtx)

	r.logger.Debug().Str("key", key).Msg("acquired run lock")
	return lease, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

type redisLease struct {
	owner  *Redis
	key    string
	token  string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (l *redisLease) renewLoop(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(l.owner.cfg.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.owner.client, []string{l.key}, l.token, l.owner.cfg.TTL.Milliseconds()).Int()
			if err != nil {
				l.owner.logger.Warn().Err(err).Str("key", l.key).Msg("failed to renew run lock")
				continue
			}
			if n == 0 {
				l.owner.logger.Warn().Str("key", l.key).Msg("run lock lost")
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		l.cancel()
		<-l.done
		if rerr := releaseScript.Run(ctx, l.owner.client, []string{l.key}, l.token).Err(); rerr != nil {
			err = fmt.Errorf("release lock: %w", rerr)
			return
		}
		l.owner.logger.Debug().Str("key", l.key).Msg("released run lock")
	})
	return err
}
