package events

import (
	"context"

	"go.uber.org/zap"
)

// AuditLog writes verification lifecycle events to the structured log.
type AuditLog struct {
	logger *zap.Logger
}

// NewAuditLog creates an audit log writing to logger.
func NewAuditLog(logger *zap.Logger) *AuditLog {
	return &AuditLog{logger: logger.With(zap.String("component", "audit"))}
}

func (a *AuditLog) VerificationIssued(_ context.Context, event *VerificationIssuedEvent) error {
	a.logger.Info("verification issued",
		zap.String("userId", event.UserID),
		zap.String("fileRef", event.FileRef),
		zap.Bool("shortened", event.Shortened),
		zap.Time("expiresAt", event.ExpiresAt),
	)

	return nil
}

func (a *AuditLog) RedemptionDenied(_ context.Context, event *RedemptionDeniedEvent) error {
	a.logger.Info("redemption denied",
		zap.String("outcome", event.Outcome),
		zap.Strings("missing", event.Missing),
		zap.Int64("retryAfterSeconds", event.RetryAfter),
		zap.String("clientIp", event.ClientIP),
		zap.Time("deniedAt", event.DeniedAt),
	)

	return nil
}
