package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NasaVasa/pricewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pricewatch:session:"

// RedisStore keeps sessions as JSON values and lets redis expire them.
type RedisStore struct {
	rc  *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedis(rc *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rc: rc, ttl: ttl, now: time.Now}
}

// DialRedis parses url and verifies the server answers before returning.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rc := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rc, nil
}

func (s *RedisStore) Get(ctx context.Context, ownerID int64) (*domain.Session, error) {
	bs, err := s.rc.Get(ctx, key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(bs, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, domain.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess *domain.Session) error {
	now := s.now()
	stored := *sess
	if stored.ExpiresAt.IsZero() && s.ttl > 0 {
		stored.ExpiresAt = now.Add(s.ttl)
	}
	var ttl time.Duration
	if !stored.ExpiresAt.IsZero() {
		ttl = stored.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return s.Delete(ctx, sess.OwnerID)
		}
	}

	bs, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rc.Set(ctx, key(sess.OwnerID), bs, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, ownerID int64) error {
	if err := s.rc.Del(ctx, key(ownerID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rc.Close()
}

func key(ownerID int64) string {
	return keyPrefix + strconv.FormatInt(ownerID, 10)
}
