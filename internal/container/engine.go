package container

import (
	"fmt"
	"net/http"
	"time"

	"github.com/samber/do"
	"github.com/serroba/filegate/internal/maintenance"
	"github.com/serroba/filegate/internal/quota"
	"github.com/serroba/filegate/internal/shortener"
	"github.com/serroba/filegate/internal/subscription"
	"github.com/serroba/filegate/internal/telegram"
	"github.com/serroba/filegate/internal/token"
	"github.com/serroba/filegate/internal/verification"
	"go.uber.org/zap"
)

// EnginePackage provides the verification engine and its collaborators.
func EnginePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*token.Codec, error) {
		opts := do.MustInvoke[*Options](i)

		codec, err := token.NewCodec([]byte(opts.SigningKey))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}

		return codec, nil
	})

	do.Provide(injector, func(i *do.Injector) (shortener.Strategy, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		client, err := shortener.NewHTTPClient(opts.ShortenerProxy)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}

		return shortener.NewGateway(opts.ShortenerConfig(), client, logger.Named("shortener")), nil
	})

	do.Provide(injector, func(i *do.Injector) (subscription.MembershipChecker, error) {
		opts := do.MustInvoke[*Options](i)

		// Validation requires a bot token whenever channels are required.
		if opts.BotToken == "" {
			return nil, nil
		}

		return telegram.NewClient(&http.Client{Timeout: 10 * time.Second}, opts.TelegramAPIURL, opts.BotToken)
	})

	do.Provide(injector, func(i *do.Injector) (*verification.Engine, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		st := do.MustInvoke[Store](i)

		gate := subscription.NewGate(
			do.MustInvoke[subscription.MembershipChecker](i),
			parseDuration(opts.SubscriptionTimeout),
			logger.Named("subscription"),
		)

		return verification.NewEngine(
			opts.Settings(),
			do.MustInvoke[*token.Codec](i),
			do.MustInvoke[shortener.Strategy](i),
			gate,
			quota.NewLedger(st, time.Now),
			st,
			logger,
		)
	})
}

// MaintenancePackage provides the marker cleanup scheduler. It is not started here.
func MaintenancePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*maintenance.Scheduler, error) {
		opts := do.MustInvoke[*Options](i)

		return maintenance.NewScheduler(
			opts.MarkerCleanupSpec,
			do.MustInvoke[Store](i),
			do.MustInvoke[*zap.Logger](i),
		)
	})
}
