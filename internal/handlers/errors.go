package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/filegate/internal/verification"
)

// toHTTPError maps engine outcomes onto user-facing statuses.
func toHTTPError(err error) error {
	var (
		subErr   *verification.SubscriptionRequiredError
		quotaErr *verification.QuotaExceededError
	)

	switch {
	case errors.Is(err, verification.ErrMalformedToken), errors.Is(err, verification.ErrInvalidRequest):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, verification.ErrInvalidSignature):
		return huma.Error401Unauthorized("verification link is not valid")
	case errors.Is(err, verification.ErrExpired):
		return huma.Error410Gone("verification link has expired, request a new one")
	case errors.Is(err, verification.ErrAlreadyUsed):
		return huma.Error409Conflict("verification link was already used")
	case errors.As(err, &subErr):
		details := make([]error, 0, len(subErr.Missing))
		for _, channel := range subErr.Missing {
			details = append(details, &huma.ErrorDetail{
				Message:  "join this channel and try again",
				Location: "channels",
				Value:    channel,
			})
		}

		return huma.Error403Forbidden("subscription required", details...)
	case errors.As(err, &quotaErr):
		seconds := retryAfterSeconds(quotaErr)

		return huma.ErrorWithHeaders(
			huma.Error429TooManyRequests(fmt.Sprintf("download limit reached, try again in %d seconds", seconds)),
			http.Header{"Retry-After": {strconv.FormatInt(seconds, 10)}},
		)
	case errors.Is(err, verification.ErrUpstreamUnavailable):
		return huma.Error503ServiceUnavailable("could not verify channel membership, try again shortly")
	default:
		return huma.Error500InternalServerError("internal server error")
	}
}

func retryAfterSeconds(err *verification.QuotaExceededError) int64 {
	return int64(math.Ceil(err.RetryAfter.Seconds()))
}
