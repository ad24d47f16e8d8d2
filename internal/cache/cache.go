package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetJSON lit et décode une entrée. ErrMiss si absente.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) error {
	b, err := s.GetCache(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// SetJSON encode et stocke une entrée avec son TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetCache(ctx, key, b, ttl)
}
