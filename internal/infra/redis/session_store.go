package redis

import (
	"context"
	"time"

	"forms-response-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// releaseScript deletes the session key only when it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionStore is a Redis implementation of app.SessionRegistry shared by every instance.
// Keys expire after ttl so a crashed instance cannot hold a group forever.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *SessionStore) Acquire(ctx context.Context, groupID, owner string) error {
	key := s.key(groupID)
	ok, err := s.client.SetNX(ctx, key, owner, s.ttl).Result()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	current, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; try once more.
		ok, err = s.client.SetNX(ctx, key, owner, s.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return domain.ErrSessionActive
	}
	if err != nil {
		return err
	}
	if current != owner {
		return domain.ErrSessionActive
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

func (s *SessionStore) Release(ctx context.Context, groupID, owner string) {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(groupID)}, owner).Err(); err != nil && err != redis.Nil {
		log.Warn().Err(err).Str("groupID", groupID).Msg("release session key")
	}
}

func (s *SessionStore) key(groupID string) string {
	return "forms:session:" + groupID
}
