package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sdr-rpc/message"
)

// RecoveryMiddleware turns a panic in the handler into an internal failure
// response so one bad request cannot take the connection down.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) (resp *message.Message) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.String("name", req.Name),
						zap.Any("panic", r),
						zap.Stack("stack"))
					resp = message.NewFailure(message.CodeInternal, fmt.Sprintf("internal error: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
