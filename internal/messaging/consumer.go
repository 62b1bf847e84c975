package messaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/serroba/filegate/internal/metrics"
	"go.uber.org/zap"
)

// Handler processes a single event. Returning an error redelivers it unless wrapped with Permanent.
type Handler[T any] func(ctx context.Context, event *T) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering. The message is acked and the error logged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError

	return errors.As(err, &p)
}

// Consumer subscribes to a topic and processes messages with a typed handler.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handler    Handler[T]
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewConsumer creates a new generic consumer for a specific event type.
func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handler Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handler:    handler,
		logger:     logger.With(zap.String("topic", topic)),
		done:       make(chan struct{}),
	}
}

// Topic returns the topic this consumer subscribes to.
func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start begins consuming messages from the topic.
func (c *Consumer[T]) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return err
	}

	go c.consumeLoop(ctx, msgs)

	return nil
}

func (c *Consumer[T]) consumeLoop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Consumer[T]) handleMessage(ctx context.Context, msg *message.Message) {
	correlationID := middleware.MessageCorrelationID(msg)
	logger := c.logger.With(
		zap.String("message_id", msg.UUID),
		zap.String("correlation_id", correlationID),
	)

	result := c.process(ContextWithCorrelationID(ctx, correlationID), msg, logger)
	metrics.EventsConsumedTotal.WithLabelValues(c.topic, result).Inc()

	if result == resultRetried {
		msg.Nack()

		return
	}

	msg.Ack()
}

const (
	resultHandled = "handled"
	resultDropped = "dropped"
	resultRetried = "retried"
)

func (c *Consumer[T]) process(ctx context.Context, msg *message.Message, logger *zap.Logger) string {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// A payload that cannot be decoded will never decode on redelivery.
		logger.Error("dropping undecodable event", zap.Error(err))

		return resultDropped
	}

	err := c.handler(ctx, &event)

	switch {
	case err == nil:
		logger.Debug("processed event")

		return resultHandled
	case IsPermanent(err):
		logger.Error("dropping event after permanent failure", zap.Error(err))

		return resultDropped
	default:
		logger.Warn("failed to handle event, will be redelivered", zap.Error(err))

		return resultRetried
	}
}

// Shutdown stops the consumer and waits for in-flight messages to complete.
func (c *Consumer[T]) Shutdown() error {
	if c.cancel != nil {
		c.cancel()
	}

	<-c.done

	return nil
}
