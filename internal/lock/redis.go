package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL  = 2 * time.Minute
	DefaultWait = 45 * time.Second

	defaultPoll    = 100 * time.Millisecond
	defaultPrefix  = "docpipe:lock:"
	releaseTimeout = 5 * time.Second
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configures Redis. Zero values use the package defaults.
type RedisOptions struct {
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
	Prefix string
}

// Redis is a single-instance SET NX PX lock.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedis wraps client. logger may be nil.
func NewRedis(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *Redis {
	l := &Redis{client: client, ttl: opts.TTL, wait: opts.Wait, poll: opts.Poll, prefix: opts.Prefix, logger: logger}
	if l.ttl <= 0 {
		l.ttl = DefaultTTL
	}
	if l.wait < 0 {
		l.wait = 0
	} else if l.wait == 0 {
		l.wait = DefaultWait
	}
	if l.poll <= 0 {
		l.poll = defaultPoll
	}
	if l.prefix == "" {
		l.prefix = defaultPrefix
	}
	return l
}

// Acquire polls SET NX until it wins, the wait budget runs out
// (ErrNotAcquired) or ctx ends.
func (l *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", redisKey, err)
		}
		if ok {
			l.log().Debug("lock acquired", "key", redisKey)
			return l.releaser(redisKey, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNotAcquired
		}

		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Redis) releaser(redisKey, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.log().Warn("release lock", "key", redisKey, "error", err)
			}
		})
	}
}

func (l *Redis) log() *slog.Logger {
	if l != nil && l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

var _ Locker = (*Redis)(nil)
