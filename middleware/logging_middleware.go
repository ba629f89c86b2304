package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sdr-rpc/message"
)

// LoggingMiddleware logs one line per request with its outcome and duration.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.String("kind", string(req.Kind)),
				zap.String("name", req.Name),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.DataLen != nil || resp.Bulk != nil {
				fields = append(fields, zap.Int("bulk", len(resp.Bulk)))
			}
			if !resp.Succeeded() {
				logger.Warn("request failed", append(fields,
					zap.String("code", string(resp.Code)),
					zap.String("error", resp.Error))...)
				return resp
			}
			logger.Debug("request served", fields...)
			return resp
		}
	}
}
