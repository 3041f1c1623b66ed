package main

import (
	"context"
	"time"

	"github.com/noah-isme/cabinet-quote/internal/config"
	"github.com/noah-isme/cabinet-quote/internal/obs"
	"github.com/noah-isme/cabinet-quote/internal/store"
)

func main() {
	logger := obs.NewLogger("console", "info").With().Str("component", "seed").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, store.PoolConfig{URL: cfg.DatabaseURL, ApplicationName: "cabinet-quote-seed"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	res, err := store.Seed(ctx, pool, store.DemoSeedData())
	if err != nil {
		logger.Fatal().Err(err).Msg("seed catalog")
	}
	for sku, id := range res.Variants {
		logger.Info().Str("sku", sku).Str("variant_id", id).Msg("variant ready")
	}
	logger.Info().Int("products", res.Products).Int("prices", res.Prices).Int("customers", res.Customers).Msg("seeding completed")
}
