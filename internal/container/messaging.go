package container

import (
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/samber/do"
	"github.com/serroba/filegate/internal/delivery"
	"github.com/serroba/filegate/internal/events"
	"github.com/serroba/filegate/internal/handlers"
	"github.com/serroba/filegate/internal/messaging"
	"github.com/serroba/filegate/internal/telegram"
	"go.uber.org/zap"
)

// ConsumerGroupName is the Redis stream consumer group shared by deliverer instances.
const ConsumerGroupName = "deliverer"

// PublisherGroupPackage provides the stream publisher and the typed publishers built on it.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*Redis](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     client.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(injector, func(i *do.Injector) (handlers.Publishers, error) {
		publisher := do.MustInvoke[*messaging.PublisherGroup](i).Publisher()

		return handlers.Publishers{
			VerificationIssued: messaging.NewPublishFunc[events.VerificationIssuedEvent](publisher, events.TopicVerificationIssued),
			DownloadGranted:    messaging.NewPublishFunc[events.DownloadGrantedEvent](publisher, events.TopicDownloadGranted),
			RedemptionDenied:   messaging.NewPublishFunc[events.RedemptionDeniedEvent](publisher, events.TopicRedemptionDenied),
		}, nil
	})
}

// ConsumerGroupPackage provides the deliverer's consumer group: file delivery plus the audit log.
func ConsumerGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		client := do.MustInvoke[*Redis](i)
		cfg := do.MustInvoke[*DelivererConfig](i)
		logger := do.MustInvoke[*zap.Logger](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: ConsumerGroupName,
		}, messaging.NewZapLogger(logger))
		if err != nil {
			return nil, err
		}

		bot, err := telegram.NewClient(&http.Client{Timeout: 30 * time.Second}, cfg.TelegramAPIURL, cfg.BotToken)
		if err != nil {
			_ = subscriber.Close()

			return nil, err
		}

		deliverer := delivery.NewDeliverer(bot, cfg.StorageChannel, logger.Named("delivery"))
		audit := events.NewAuditLog(logger.Named("audit"))

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(
			messaging.NewConsumer[events.DownloadGrantedEvent](subscriber, events.TopicDownloadGranted, deliverer.DownloadGranted, logger),
			messaging.NewConsumer[events.VerificationIssuedEvent](subscriber, events.TopicVerificationIssued, audit.VerificationIssued, logger),
			messaging.NewConsumer[events.RedemptionDeniedEvent](subscriber, events.TopicRedemptionDenied, audit.RedemptionDenied, logger),
		)

		return group, nil
	})
}
