package store

import (
	"context"

	"github.com/noah-isme/cabinet-quote/internal/cache"
	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/pricing"
)

// CachedPrices fronts a price source with a Redis JSON cache. Cache errors
// are logged and fall through to the source; empty results are not cached.
type CachedPrices struct {
	Next  pricing.PriceSource
	Cache *cache.Cache
}

// PriceRecords implements pricing.PriceSource.
func (c CachedPrices) PriceRecords(ctx context.Context, variantID, materialID string) ([]pricing.PriceRecord, error) {
	key := cache.KeyPrices(variantID, materialID)
	var cached []pricing.PriceRecord
	hit, err := c.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		obs.Logger(ctx).Warn().Err(err).Str("key", key).Msg("price cache read failed")
	}
	if hit && len(cached) > 0 {
		return cached, nil
	}

	records, err := c.Next.PriceRecords(ctx, variantID, materialID)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := c.Cache.SetJSON(ctx, key, records); err != nil {
			obs.Logger(ctx).Warn().Err(err).Str("key", key).Msg("price cache write failed")
		}
	}
	return records, nil
}
