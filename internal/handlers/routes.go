package handlers

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/filegate/internal/ratelimit"
)

// RegisterRoutes registers verification routes with per-endpoint rate limits.
func RegisterRoutes(api huma.API, h *VerificationHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-verification",
		Method:        http.MethodPost,
		Path:          "/verifications",
		Summary:       "Issue verification link",
		Description:   "Issues a one-time verification link for a user and file, shortened when a provider is configured.",
		Tags:          []string{"Verification"},
		DefaultStatus: http.StatusCreated,
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{
					{Window: time.Minute, Max: 20},
				},
			},
		},
	}, h.CreateVerification)

	huma.Register(api, huma.Operation{
		OperationID: "redeem-verification",
		Method:      http.MethodGet,
		Path:        "/verify/{token}",
		Summary:     "Redeem verification link",
		Description: "Validates a verification token and grants the download when every check passes.",
		Tags:        []string{"Verification"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{
				Limits: []ratelimit.LimitConfig{
					{Window: time.Minute, Max: 60},
				},
			},
		},
	}, h.Redeem)
}
