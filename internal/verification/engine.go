package verification

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/serroba/filegate/internal/metrics"
	"github.com/serroba/filegate/internal/quota"
	"github.com/serroba/filegate/internal/shortener"
	"github.com/serroba/filegate/internal/subscription"
	"github.com/serroba/filegate/internal/token"
	"go.uber.org/zap"
)

// Settings is the immutable engine configuration loaded at startup.
type Settings struct {
	// BaseURL is the public origin of the redemption endpoint.
	BaseURL            string
	VerificationPeriod time.Duration
	// DownloadLimit <= 0 disables the quota.
	DownloadLimit    int64
	QuotaPeriod      time.Duration
	RequiredChannels subscription.Requirement
}

func (s *Settings) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base url %q", ErrConfig, s.BaseURL)
	}

	if s.VerificationPeriod <= 0 {
		return fmt.Errorf("%w: verification period must be positive", ErrConfig)
	}

	if s.DownloadLimit > 0 && s.QuotaPeriod <= 0 {
		return fmt.Errorf("%w: quota period must be positive", ErrConfig)
	}

	return nil
}

// MarkerStore holds one-time-use markers keyed by token nonce.
type MarkerStore interface {
	Used(ctx context.Context, nonce string) (bool, error)
	// Claim atomically creates the marker; false means it already existed.
	Claim(ctx context.Context, nonce string, expiresAt time.Time) (bool, error)
	Release(ctx context.Context, nonce string) error
}

// SubscriptionChecker is satisfied by *subscription.Gate.
type SubscriptionChecker interface {
	Check(ctx context.Context, userID string, req subscription.Requirement) (subscription.Result, error)
}

// QuotaLedger is satisfied by *quota.Ledger.
type QuotaLedger interface {
	CheckAndIncrement(ctx context.Context, userID string, limit int64, period time.Duration) (quota.Decision, error)
}

// Verification is an issued, not yet redeemed, verification link.
type Verification struct {
	shortener.Link
	UserID    string
	FileRef   string
	Nonce     string
	ExpiresAt time.Time
}

// Grant is a successful redemption.
type Grant struct {
	UserID  string
	FileRef string
	Nonce   string
	// Remaining is quota.Unlimited when no quota is configured.
	Remaining int64
	GrantedAt time.Time
}

// Engine is the single authority deciding whether a download is permitted.
type Engine struct {
	settings *Settings
	codec    *token.Codec
	links    shortener.Strategy
	gate     SubscriptionChecker
	ledger   QuotaLedger
	markers  MarkerStore
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates settings and wires the engine's collaborators.
func NewEngine(
	settings *Settings,
	codec *token.Codec,
	links shortener.Strategy,
	gate SubscriptionChecker,
	ledger QuotaLedger,
	markers MarkerStore,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if settings == nil || codec == nil {
		return nil, fmt.Errorf("%w: settings and codec are required", ErrConfig)
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		settings: settings,
		codec:    codec,
		links:    links,
		gate:     gate,
		ledger:   ledger,
		markers:  markers,
		logger:   logger.With(zap.String("component", "verification")),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// RequestVerification issues a token for userID/fileRef and returns its outbound link.
// Unsubscribed users get a SubscriptionRequiredError and no token is issued.
func (e *Engine) RequestVerification(ctx context.Context, userID, fileRef string) (*Verification, error) {
	if userID == "" || fileRef == "" {
		return nil, ErrInvalidRequest
	}

	if err := e.checkSubscription(ctx, userID); err != nil {
		return nil, err
	}

	tok, err := e.codec.Issue(userID, fileRef, e.settings.VerificationPeriod)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	raw, err := e.codec.Serialize(tok)
	if err != nil {
		return nil, fmt.Errorf("serialize token: %w", err)
	}

	link := e.links.Shorten(ctx, e.redeemURL(raw))

	metrics.VerificationsIssuedTotal.Inc()
	e.logger.Info("verification issued",
		zap.String("user_id", userID),
		zap.String("file_ref", fileRef),
		zap.Bool("shortened", link.Shortened()),
		zap.Time("expires_at", tok.ExpiresAt),
	)

	return &Verification{
		Link:      link,
		UserID:    userID,
		FileRef:   fileRef,
		Nonce:     tok.Nonce,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// Redeem validates a returning click and, if every check passes, consumes the token.
// Checks run cheapest first: signature, expiry, replay, subscription, quota.
func (e *Engine) Redeem(ctx context.Context, raw string) (*Grant, error) {
	grant, err := e.redeem(ctx, raw)

	outcome := Outcome(err)
	metrics.RedemptionsTotal.WithLabelValues(outcome).Inc()

	switch outcome {
	case "granted":
		e.logger.Info("redemption granted",
			zap.String("user_id", grant.UserID),
			zap.String("file_ref", grant.FileRef),
			zap.Int64("remaining", grant.Remaining),
		)
	case "error":
		e.logger.Error("redemption failed", zap.Error(err))
	case "upstream_unavailable":
		e.logger.Warn("redemption could not verify subscription", zap.Error(err))
	default:
		e.logger.Debug("redemption denied", zap.String("outcome", outcome), zap.Error(err))
	}

	return grant, err
}

func (e *Engine) redeem(ctx context.Context, raw string) (*Grant, error) {
	tok, err := e.codec.Parse(raw)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if tok.Expired(now) {
		return nil, ErrExpired
	}

	used, err := e.markers.Used(ctx, tok.Nonce)
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}

	if used {
		return nil, ErrAlreadyUsed
	}

	if err = e.checkSubscription(ctx, tok.UserID); err != nil {
		return nil, err
	}

	// From here on store updates must not be abandoned halfway by a disconnecting client.
	commitCtx := context.WithoutCancel(ctx)

	claimed, err := e.markers.Claim(commitCtx, tok.Nonce, tok.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("claim marker: %w", err)
	}

	if !claimed {
		return nil, ErrAlreadyUsed
	}

	decision, err := e.ledger.CheckAndIncrement(commitCtx, tok.UserID, e.settings.DownloadLimit, e.settings.QuotaPeriod)
	if err != nil {
		e.release(commitCtx, tok.Nonce)

		return nil, err
	}

	if !decision.Allowed {
		e.release(commitCtx, tok.Nonce)

		return nil, &QuotaExceededError{RetryAfter: decision.RetryAfter}
	}

	return &Grant{
		UserID:    tok.UserID,
		FileRef:   tok.FileRef,
		Nonce:     tok.Nonce,
		Remaining: decision.Remaining,
		GrantedAt: now,
	}, nil
}

func (e *Engine) checkSubscription(ctx context.Context, userID string) error {
	if len(e.settings.RequiredChannels) == 0 {
		return nil
	}

	result, err := e.gate.Check(ctx, userID, e.settings.RequiredChannels)
	if err != nil {
		return err
	}

	if !result.Satisfied() {
		return &SubscriptionRequiredError{Missing: result.Missing}
	}

	return nil
}

// release drops a claim that did not end in a grant. A failed release leaves the
// token consumed, which only costs the user a fresh verification.
func (e *Engine) release(ctx context.Context, nonce string) {
	if err := e.markers.Release(ctx, nonce); err != nil {
		e.logger.Error("failed to release marker", zap.String("nonce", nonce), zap.Error(err))
	}
}

// Ping reports whether the signing key is loaded by round-tripping a probe token.
func (e *Engine) Ping(_ context.Context) error {
	tok, err := e.codec.Issue("probe", "probe", time.Minute)
	if err != nil {
		return err
	}

	raw, err := e.codec.Serialize(tok)
	if err != nil {
		return err
	}

	_, err = e.codec.Parse(raw)

	return err
}

func (e *Engine) redeemURL(raw string) string {
	return strings.TrimRight(e.settings.BaseURL, "/") + "/verify/" + url.PathEscape(raw)
}

// IsDenial reports whether err is a user-facing denial rather than an internal failure.
func IsDenial(err error) bool {
	var (
		subErr   *SubscriptionRequiredError
		quotaErr *QuotaExceededError
	)

	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.As(err, &subErr) ||
		errors.As(err, &quotaErr)
}
