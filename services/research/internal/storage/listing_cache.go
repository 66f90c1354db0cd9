package storage

import (
	"context"
	stderrors "errors"
	"time"

	"hhresearch/common/cache"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/models"
)

const listingKeyPrefix = "hh:listing:"

// ResultCache stores parsed listings by id. Get returns cache.ErrNotFound on
// a miss; any other error means the store itself failed.
type ResultCache interface {
	Get(ctx context.Context, id string) (*models.Listing, error)
	Put(ctx context.Context, listing *models.Listing) error
	Close() error
}

// KeyValueCache adapts a cache.Cache (file or redis) to ResultCache.
type KeyValueCache struct {
	store cache.Cache
	ttl   time.Duration
}

var _ ResultCache = (*KeyValueCache)(nil)

func NewKeyValueCache(store cache.Cache, ttl time.Duration) *KeyValueCache {
	return &KeyValueCache{store: store, ttl: ttl}
}

func (c *KeyValueCache) Get(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := c.store.Get(ctx, listingKeyPrefix+id, &listing); err != nil {
		if stderrors.Is(err, cache.ErrNotFound) {
			return nil, cache.ErrNotFound
		}
		return nil, errors.CacheIO("reading listing "+id, err)
	}
	return &listing, nil
}

func (c *KeyValueCache) Put(ctx context.Context, listing *models.Listing) error {
	if err := c.store.Set(ctx, listingKeyPrefix+listing.ID, listing, c.ttl); err != nil {
		return errors.CacheIO("writing listing "+listing.ID, err)
	}
	return nil
}

func (c *KeyValueCache) Close() error {
	return c.store.Close()
}
