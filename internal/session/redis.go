package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"eventhub/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore persists a session as two Redis keys sharing one TTL
type RedisStore struct {
	client    redis.Cmdable
	sessionID string
	ttl       time.Duration
	sealer    *Sealer
	logger    *logger.Logger
}

func NewRedisStore(client redis.Cmdable, sessionID string, ttl time.Duration, sealer *Sealer) *RedisStore {
	return &RedisStore{
		client:    client,
		sessionID: sessionID,
		ttl:       ttl,
		sealer:    sealer,
		logger:    logger.GetDefault(),
	}
}

// RedisFactory hands out RedisStores sharing one client
func RedisFactory(client redis.Cmdable, ttl time.Duration, sealer *Sealer) Factory {
	return func(sessionID string) Store {
		return NewRedisStore(client, sessionID, ttl, sealer)
	}
}

func (r *RedisStore) tokenKey() string { return keyPrefix + r.sessionID + ":" + TokenKey }
func (r *RedisStore) userKey() string  { return keyPrefix + r.sessionID + ":" + UserKey }

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	values, err := r.client.MGet(ctx, r.tokenKey(), r.userKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sealed, okToken := values[0].(string)
	rawUser, okUser := values[1].(string)
	if !okToken || !okUser {
		if okToken || okUser {
			r.discard(ctx)
		}
		return nil, ErrNoSession
	}

	token, err := r.sealer.Open(sealed)
	if err != nil {
		r.discard(ctx)
		return nil, ErrNoSession
	}

	var user User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		r.discard(ctx)
		return nil, ErrNoSession
	}
	return &Session{Token: token, User: user}, nil
}

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	sealed, err := r.sealer.Seal(s.Token)
	if err != nil {
		return fmt.Errorf("seal session token: %w", err)
	}
	userData, err := json.Marshal(s.User)
	if err != nil {
		return fmt.Errorf("marshal session user: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.tokenKey(), sealed, r.ttl)
		pipe.Set(ctx, r.userKey(), userData, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.tokenKey(), r.userKey()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// discard drops a half written or unreadable session
func (r *RedisStore) discard(ctx context.Context) {
	if err := r.Clear(ctx); err != nil {
		r.logger.ErrorWithContext(ctx, "Failed to discard unreadable session", err, map[string]interface{}{
			"session_id": r.sessionID,
		})
	}
}
