package middleware

import (
	"context"
	"time"

	"sdr-rpc/message"
)

// TimeoutMiddleware answers with a timeout failure if the handler has not
// returned within timeout. The device call itself cannot be interrupted and
// finishes in the background; its result is discarded.
//
// The next request may therefore arrive while that call is still running.
// The server serializes device calls, so such a request waits for the
// abandoned call to finish rather than reaching the device alongside it.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Message) *message.Message {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Message, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewFailure(message.CodeTimeout, "request timed out")
			}
		}
	}
}
