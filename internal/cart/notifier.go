package cart

import (
	"context"
	"encoding/json"
	"log"

	"vitrine_back_end/internal/cache"
)

type ChangeKind string

const (
	ChangeUpdated ChangeKind = "updated"
	ChangeCleared ChangeKind = "cleared"
)

// Change est publié sur cart:{id} après chaque mutation validée.
type Change struct {
	Type    ChangeKind `json:"type"`
	CartID  string     `json:"cart_id"`
	Version int64      `json:"version"`
}

type Notifier interface {
	CartChanged(ctx context.Context, change Change)
}

type NopNotifier struct{}

func (NopNotifier) CartChanged(context.Context, Change) {}

// RedisNotifier diffuse les changements via le pub/sub Redis pour que
// toutes les instances puissent pousser la mise à jour aux websockets.
type RedisNotifier struct {
	store *cache.Store
}

func NewRedisNotifier(store *cache.Store) *RedisNotifier {
	return &RedisNotifier{store: store}
}

func (n *RedisNotifier) CartChanged(ctx context.Context, change Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := n.store.Publish(ctx, cache.Key(cache.ChannelCart, change.CartID), payload); err != nil {
		log.Printf("⚠️ Publication changement panier %s impossible: %v", change.CartID, err)
	}
}

// Subscribe retourne les changements du panier jusqu'à l'annulation de ctx.
func (n *RedisNotifier) Subscribe(ctx context.Context, cartID string) (<-chan Change, error) {
	sub := n.store.Subscribe(ctx, cache.Key(cache.ChannelCart, cartID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan Change, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ch Change
				if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
					log.Printf("⚠️ Message panier illisible sur %s: %v", msg.Channel, err)
					continue
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
