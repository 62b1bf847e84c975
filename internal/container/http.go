package container

import (
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/do"
	"github.com/serroba/filegate/internal/handlers"
	"github.com/serroba/filegate/internal/health"
	"github.com/serroba/filegate/internal/metrics"
	"github.com/serroba/filegate/internal/middleware"
	"github.com/serroba/filegate/internal/ratelimit"
	"github.com/serroba/filegate/internal/verification"
	"go.uber.org/zap"
)

// defaultLimit applies to endpoints that declare no limits of their own.
var defaultLimit = ratelimit.LimitConfig{Window: time.Minute, Max: 100}

// HTTPPackage provides the chi router and the huma API with every route registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*chi.Mux, error) {
		opts := do.MustInvoke[*Options](i)

		router := chi.NewMux()
		router.Use(chimiddleware.Recoverer)
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: strings.Split(opts.CORSOrigin, ","),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{"Retry-After", middleware.RequestIDHeader},
			MaxAge:         300,
		}))

		router.Handle("/metrics", metrics.Handler(metrics.NewRegistry()))

		return router, nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		router := do.MustInvoke[*chi.Mux](i)
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		engine := do.MustInvoke[*verification.Engine](i)

		api := humachi.New(router, huma.DefaultConfig("Filegate", "1.0.0"))

		limiter := ratelimit.NewLimiter(do.MustInvoke[ratelimit.Store](i), defaultLimit)
		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.RateLimiter(api, limiter, logger),
		)

		handlers.RegisterRoutes(api, handlers.NewVerificationHandler(
			engine,
			opts.BotURL(),
			do.MustInvoke[handlers.Publishers](i),
			logger.Named("http"),
		))

		healthHandler := health.NewHandler(map[string]health.Checker{
			"store":      do.MustInvoke[Store](i),
			"signingKey": engine,
		})
		health.RegisterRoutes(api, healthHandler)

		logger.Info("health checks registered", zap.Strings("checks", healthHandler.Names()))

		return api, nil
	})
}
