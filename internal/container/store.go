package container

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do"
	"github.com/serroba/filegate/internal/health"
	"github.com/serroba/filegate/internal/maintenance"
	"github.com/serroba/filegate/internal/quota"
	"github.com/serroba/filegate/internal/ratelimit"
	"github.com/serroba/filegate/internal/store"
	"github.com/serroba/filegate/internal/verification"
	"go.uber.org/zap"
)

// Store is the shared state behind markers, quota windows and cleanup.
type Store interface {
	quota.Store
	verification.MarkerStore
	maintenance.MarkerCleaner
	health.Checker
}

// StorePackage provides Store and ratelimit.Store for the configured backend.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		logger.Info("using store backend", zap.String("backend", opts.StoreBackend))

		switch opts.StoreBackend {
		case "redis":
			return store.NewRedisStore(do.MustInvoke[*Redis](i).Client), nil
		case "postgres":
			pg := store.NewPostgresStore(do.MustInvoke[*Postgres](i).Pool)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}

			return pg, nil
		default:
			return store.NewMemoryStore(), nil
		}
	})

	// Networked backends imply several instances, so request counters live in Redis.
	do.Provide(injector, func(i *do.Injector) (ratelimit.Store, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.StoreBackend == "memory" {
			return store.NewRateLimitMemoryStore(), nil
		}

		return store.NewRateLimitRedisStore(do.MustInvoke[*Redis](i).Client), nil
	})
}
