package sessionlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a session lock shared by every process using the same Redis.
// The holder renews the key every ttl/3, so a long turn keeps its session
// while a holder that dies loses it after ttl.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedis creates a Redis-backed session locker. ttl bounds how long a
// crashed holder can keep a session locked.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		client: client,
		prefix: "docchat:session-lock:",
		ttl:    ttl,
		poll:   50 * time.Millisecond,
	}
}

// Lock polls SET NX until the session is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, sessionID string) (func(), error) {
	key := r.prefix + sessionID
	token := uuid.NewString()

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.Wrap(err, "acquiring session lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go r.renew(key, token, sessionID, stop, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				log.Warn().Err(err).Str("component", "sessionlock").Str("session_id", sessionID).Msg("failed to release session lock")
			}
		})
	}, nil
}

// renew extends the lock TTL until stop is closed or the lock is lost.
func (r *Redis) renew(key, token, sessionID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := log.With().Str("component", "sessionlock").Str("session_id", sessionID).Logger()

	interval := r.ttl / 3
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := renewScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("failed to renew session lock")
		case held == 0:
			logger.Warn().Msg("session lock expired before it was renewed")
			return
		}
	}
}
