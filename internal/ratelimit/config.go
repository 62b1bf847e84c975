package ratelimit

import (
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// LimitConfig allows at most Max requests per client within a sliding Window.
type LimitConfig struct {
	Window time.Duration
	Max    int64
}

// EndpointConfig is attached to huma operations through their Metadata.
type EndpointConfig struct {
	// Limits replaces the limiter defaults for this endpoint when non-empty.
	Limits []LimitConfig
	// Disabled skips rate limiting entirely, e.g. for health probes.
	Disabled bool
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
