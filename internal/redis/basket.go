// Package redis implements the basket store on top of a Redis key/value
// cache. Baskets are stored as JSON under a fixed TTL; there is no cross-key
// transaction and no optimistic locking.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/veloshop/checkout/internal/domain/basket"
)

const basketKeyPrefix = "basket:"

var _ basket.Store = (*BasketStore)(nil)

// BasketStore implements basket.Store backed by Redis.
type BasketStore struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewBasketStore returns a BasketStore using the given client. A zero ttl
// falls back to basket.TTL.
func NewBasketStore(client *goredis.Client, ttl time.Duration) *BasketStore {
	if ttl <= 0 {
		ttl = basket.TTL
	}
	return &BasketStore{client: client, ttl: ttl}
}

// Get returns the basket stored under id, or basket.ErrNotFound when the key
// is absent or has expired.
func (s *BasketStore) Get(ctx context.Context, id string) (*basket.Basket, error) {
	data, err := s.client.Get(ctx, basketKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, basket.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get basket %q", id)
	}

	var b basket.Basket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrapf(err, "decode basket %q", id)
	}
	return &b, nil
}

// Set stores the basket and refreshes its TTL.
func (s *BasketStore) Set(ctx context.Context, b *basket.Basket) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errors.Wrapf(err, "encode basket %q", b.ID)
	}

	if err := s.client.Set(ctx, basketKeyPrefix+b.ID, data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set basket %q", b.ID)
	}
	return nil
}

// Delete removes the basket. Deleting an absent key is not an error.
func (s *BasketStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, basketKeyPrefix+id).Err(); err != nil {
		return errors.Wrapf(err, "delete basket %q", id)
	}
	return nil
}
