package verification

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/serroba/filegate/internal/subscription"
	"github.com/serroba/filegate/internal/token"
)

var (
	ErrConfig         = errors.New("invalid verification config")
	ErrInvalidRequest = errors.New("user id and file ref are required")
	ErrExpired        = errors.New("verification token expired")
	ErrAlreadyUsed    = errors.New("verification token already used")

	ErrMalformedToken      = token.ErrMalformedToken
	ErrInvalidSignature    = token.ErrInvalidSignature
	ErrUpstreamUnavailable = subscription.ErrUpstreamUnavailable
)

// SubscriptionRequiredError lists the channels the user must join before retrying.
type SubscriptionRequiredError struct {
	Missing []string
}

func (e *SubscriptionRequiredError) Error() string {
	return "subscription required: " + strings.Join(e.Missing, ", ")
}

// QuotaExceededError carries the time until the user's next quota window.
type QuotaExceededError struct {
	RetryAfter time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("download quota exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// Outcome is a short label for err, used in logs and metrics.
func Outcome(err error) string {
	var (
		subErr   *SubscriptionRequiredError
		quotaErr *QuotaExceededError
	)

	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAlreadyUsed):
		return "already_used"
	case errors.As(err, &subErr):
		return "subscription_required"
	case errors.As(err, &quotaErr):
		return "quota_exceeded"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "error"
	}
}
