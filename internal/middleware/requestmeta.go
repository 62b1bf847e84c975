package middleware

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/serroba/filegate/internal/handlers"
	"github.com/serroba/filegate/internal/messaging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestMeta attaches a request id, client IP and user-agent to the request context
// and echoes the request id back to the client.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		requestID := ctx.Header(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		meta := handlers.RequestMeta{
			RequestID: requestID,
			ClientIP:  clientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		newCtx = messaging.ContextWithCorrelationID(newCtx, requestID)

		ctx.SetHeader(RequestIDHeader, requestID)
		next(huma.WithContext(ctx, newCtx))
	}
}
