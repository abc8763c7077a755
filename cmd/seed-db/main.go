package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKeyPepper string
		keys         keyFlags
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file, optionally gzipped (.gz)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.Var(&keys, "key", "user API key as user:key or user:key:admin, repeatable")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}
	if len(keys) == 0 {
		if k := os.Getenv("KART_SEED_API_KEY"); k != "" {
			keys = append(keys, keySpec{User: "admin", Key: k, Admin: true})
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, []byte(apiKeyPepper), keys); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, pepper []byte, keys []keySpec) error {
	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading products file", slog.String("path", productsFile))
	products, err := readProducts(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		productRepo := postgres.NewProductRepository(tx)
		for _, p := range products {
			if err := productRepo.Upsert(ctx, p); err != nil {
				return err
			}
			slog.Info("upserted product", slog.Int64("id", p.ID), slog.String("name", p.Name))
		}
		if err := productRepo.SyncSequence(ctx); err != nil {
			return err
		}

		apikeyRepo := postgres.NewAPIKeyRepository(tx)
		for _, k := range keys {
			if err := apikeyRepo.UpsertUser(ctx, k.User, k.User); err != nil {
				return err
			}
			info := k.info(pepper)
			if err := apikeyRepo.UpsertAPIKey(ctx, info); err != nil {
				return err
			}
			slog.Info("upserted API key",
				slog.String("id", info.ID),
				slog.String("user", k.User),
				slog.Bool("admin", k.Admin),
			)
		}
		return nil
	})
}

func (k keySpec) info(pepper []byte) auth.APIKeyInfo {
	info := auth.APIKeyInfo{
		ID:      k.User + "-default",
		KeyHash: auth.HashKey(pepper, k.Key),
		UserID:  k.User,
		Name:    "Default key for " + k.User,
	}
	if k.Admin {
		info.Scopes = []string{auth.ScopeAdmin}
	}
	return info
}
