package presence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/gambit/go/internal/models"
)

const statusTTL = 24 * time.Hour

// StatusStore persists the friends-visible status of each user.
type StatusStore interface {
	GetStatus(ctx context.Context, userID uuid.UUID) (models.UserStatus, error)
	SetStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus) error
	ListStatuses(ctx context.Context) (map[uuid.UUID]models.UserStatus, error)
}

// RedisStatusStore keeps user statuses in redis so presence survives a
// process restart and can be shared across instances.
type RedisStatusStore struct {
	rdb *redis.Client
}

func NewRedisStatusStore(rdb *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{rdb: rdb}
}

func (s *RedisStatusStore) key(userID uuid.UUID) string {
	return "presence:user:" + userID.String()
}

// GetStatus returns the stored status, defaulting to offline when the key
// is missing or expired.
func (s *RedisStatusStore) GetStatus(ctx context.Context, userID uuid.UUID) (models.UserStatus, error) {
	raw, err := s.rdb.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return models.StatusOffline, nil
	}
	if err != nil {
		return models.StatusOffline, err
	}
	return models.UserStatus(raw), nil
}

func (s *RedisStatusStore) SetStatus(ctx context.Context, userID uuid.UUID, status models.UserStatus) error {
	if status == models.StatusOffline {
		return s.rdb.Del(ctx, s.key(userID)).Err()
	}
	return s.rdb.Set(ctx, s.key(userID), string(status), statusTTL).Err()
}

// ListStatuses scans every stored status. Used by startup reconciliation to
// find users left in a stale state by a crash.
func (s *RedisStatusStore) ListStatuses(ctx context.Context) (map[uuid.UUID]models.UserStatus, error) {
	statuses := make(map[uuid.UUID]models.UserStatus)
	iter := s.rdb.Scan(ctx, 0, "presence:user:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID, err := uuid.Parse(strings.TrimPrefix(key, "presence:user:"))
		if err != nil {
			continue
		}
		raw, err := s.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		statuses[userID] = models.UserStatus(raw)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return statuses, nil
}
