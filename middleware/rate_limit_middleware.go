package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"sdr-rpc/message"
)

// RateLimitMiddleware refuses requests beyond r per second (token bucket with
// the given burst). Refused requests never reach the device.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			if !limiter.Allow() {
				return message.NewNAK(message.CodeRateLimited, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
