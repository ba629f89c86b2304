package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sdr-rpc/message"
)

// RetryMiddleware repeats a request whose device failure is marked transient,
// backing off exponentially from baseDelay. Other failures return at once.
func RetryMiddleware(logger *zap.Logger, maxRetries int, baseDelay time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			resp := next(ctx, req)
			for i := 0; i < maxRetries; i++ {
				if !resp.Failed(message.CodeDeviceError) || !resp.Transient {
					return resp
				}
				logger.Info("retrying request",
					zap.String("name", req.Name),
					zap.Int("attempt", i+1),
					zap.String("error", resp.Error))

				timer := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					timer.Stop()
					return resp
				case <-timer.C:
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}
