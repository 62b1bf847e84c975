package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/serroba/filegate/internal/events"
	"github.com/serroba/filegate/internal/messaging"
	"github.com/serroba/filegate/internal/quota"
	"github.com/serroba/filegate/internal/verification"
	"go.uber.org/zap"
)

// Engine is the verification authority behind the HTTP boundary.
type Engine interface {
	RequestVerification(ctx context.Context, userID, fileRef string) (*verification.Verification, error)
	Redeem(ctx context.Context, raw string) (*verification.Grant, error)
}

// Publishers groups the typed event publishers used by the handler.
type Publishers struct {
	VerificationIssued messaging.Publish[events.VerificationIssuedEvent]
	DownloadGranted    messaging.Publish[events.DownloadGrantedEvent]
	RedemptionDenied   messaging.Publish[events.RedemptionDeniedEvent]
}

// VerificationHandler serves issuance and redemption of verification links.
type VerificationHandler struct {
	engine  Engine
	botURL  string
	publish Publishers
	logger  *zap.Logger
}

// NewVerificationHandler creates a handler. botURL may be empty.
func NewVerificationHandler(engine Engine, botURL string, publish Publishers, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		engine:  engine,
		botURL:  botURL,
		publish: publish,
		logger:  logger,
	}
}

func (h *VerificationHandler) CreateVerification(
	ctx context.Context,
	req *CreateVerificationRequest,
) (*CreateVerificationResponse, error) {
	v, err := h.engine.RequestVerification(ctx, req.Body.UserID, req.Body.FileRef)
	if err != nil {
		if !verification.IsDenial(err) && !errors.Is(err, verification.ErrInvalidRequest) {
			h.logger.Error("failed to issue verification",
				zap.String("request_id", RequestMetaFromContext(ctx).RequestID),
				zap.Error(err),
			)
		}

		return nil, toHTTPError(err)
	}

	event := &events.VerificationIssuedEvent{
		UserID:    v.UserID,
		FileRef:   v.FileRef,
		Nonce:     v.Nonce,
		ShortURL:  v.ShortURL,
		Shortened: v.Shortened(),
		ExpiresAt: v.ExpiresAt,
	}

	if err = h.publish.VerificationIssued(ctx, event); err != nil {
		h.logger.Error("failed to publish verification issued event", zap.Error(err))
	}

	resp := &CreateVerificationResponse{}
	resp.Body.URL = v.ShortURL
	resp.Body.Shortened = v.Shortened()
	resp.Body.ExpiresAt = v.ExpiresAt

	return resp, nil
}

func (h *VerificationHandler) Redeem(ctx context.Context, req *RedeemRequest) (*RedeemResponse, error) {
	meta := RequestMetaFromContext(ctx)

	grant, err := h.engine.Redeem(ctx, req.Token)
	if err != nil {
		h.publishDenied(ctx, meta, err)

		return nil, toHTTPError(err)
	}

	event := &events.DownloadGrantedEvent{
		UserID:    grant.UserID,
		FileRef:   grant.FileRef,
		Nonce:     grant.Nonce,
		Remaining: grant.Remaining,
		GrantedAt: grant.GrantedAt,
	}

	// The token is already consumed; a lost event means the user re-requests verification.
	if err = h.publish.DownloadGranted(context.WithoutCancel(ctx), event); err != nil {
		h.logger.Error("failed to publish download granted event",
			zap.String("request_id", meta.RequestID),
			zap.String("user_id", grant.UserID),
			zap.String("file_ref", grant.FileRef),
			zap.Error(err),
		)
	}

	resp := &RedeemResponse{}
	resp.Body.Status = "granted"
	resp.Body.FileRef = grant.FileRef
	resp.Body.BotURL = h.botURL

	if grant.Remaining != quota.Unlimited {
		remaining := grant.Remaining
		resp.Body.Remaining = &remaining
	}

	return resp, nil
}

func (h *VerificationHandler) publishDenied(ctx context.Context, meta RequestMeta, err error) {
	if !verification.IsDenial(err) && !errors.Is(err, verification.ErrUpstreamUnavailable) {
		return
	}

	event := &events.RedemptionDeniedEvent{
		Outcome:   verification.Outcome(err),
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		DeniedAt:  time.Now(),
	}

	var (
		subErr   *verification.SubscriptionRequiredError
		quotaErr *verification.QuotaExceededError
	)

	if errors.As(err, &subErr) {
		event.Missing = subErr.Missing
	}

	if errors.As(err, &quotaErr) {
		event.RetryAfter = retryAfterSeconds(quotaErr)
	}

	if pubErr := h.publish.RedemptionDenied(ctx, event); pubErr != nil {
		h.logger.Warn("failed to publish redemption denied event", zap.Error(pubErr))
	}
}
