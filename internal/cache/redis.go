package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signale une clé absente du cache.
var ErrMiss = errors.New("cache: clé absente")

// Store regroupe les usages Redis du service.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Client() *redis.Client { return s.rdb }

// --- Cache générique ---

// SetCache stocke une valeur dans le cache
func (s *Store) SetCache(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// GetCache récupère une valeur du cache, ErrMiss si absente
func (s *Store) GetCache(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// DeleteCache supprime des clés du cache
func (s *Store) DeleteCache(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// --- Rate Limiting ---

// IncrementRateLimit incrémente le compteur. La fenêtre démarre au premier appel.
func (s *Store) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// --- Dédup ---

// Seen indique si la clé de dédup a déjà été posée.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkSeen pose la clé de dédup. N'est appelé qu'après un traitement réussi.
func (s *Store) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}

// --- Pub/Sub ---

func (s *Store) Publish(ctx context.Context, channel string, payload any) error {
	return s.rdb.Publish(ctx, channel, payload).Err()
}

func (s *Store) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channel)
}

func Key(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
