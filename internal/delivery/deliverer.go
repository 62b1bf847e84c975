package delivery

import (
	"context"
	"fmt"
	"strconv"

	"github.com/serroba/filegate/internal/events"
	"github.com/serroba/filegate/internal/messaging"
	"github.com/serroba/filegate/internal/telegram"
	"go.uber.org/zap"
)

// Sender is the subset of the Bot API used to hand files to users.
type Sender interface {
	CopyMessage(ctx context.Context, chatID, fromChatID string, messageID int64) error
	SendMessage(ctx context.Context, chatID, text string) error
}

// Deliverer sends granted files from the storage channel to the user's private chat.
type Deliverer struct {
	sender         Sender
	storageChannel string
	logger         *zap.Logger
}

// NewDeliverer creates a deliverer copying from storageChannel.
func NewDeliverer(sender Sender, storageChannel string, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		sender:         sender,
		storageChannel: storageChannel,
		logger:         logger.With(zap.String("component", "delivery")),
	}
}

// DownloadGranted delivers the file named by event.FileRef to event.UserID.
// Bot API rejections, such as a deleted source message or a user who blocked the bot,
// are marked permanent so the event is not redelivered.
func (d *Deliverer) DownloadGranted(ctx context.Context, event *events.DownloadGrantedEvent) error {
	messageID, err := strconv.ParseInt(event.FileRef, 10, 64)
	if err != nil {
		return messaging.Permanent(fmt.Errorf("file ref %q is not a message id: %w", event.FileRef, err))
	}

	if err = d.sender.CopyMessage(ctx, event.UserID, d.storageChannel, messageID); err != nil {
		if telegram.IsRejected(err) {
			return messaging.Permanent(err)
		}

		return err
	}

	d.logger.Info("file delivered",
		zap.String("userId", event.UserID),
		zap.String("fileRef", event.FileRef),
	)

	if event.Remaining >= 0 {
		note := fmt.Sprintf("Downloads left in this period: %d", event.Remaining)
		if err = d.sender.SendMessage(ctx, event.UserID, note); err != nil {
			d.logger.Warn("failed to send quota note", zap.String("userId", event.UserID), zap.Error(err))
		}
	}

	return nil
}
