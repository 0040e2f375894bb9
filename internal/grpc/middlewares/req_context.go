package middleware

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader is the metadata key a caller may use to supply its own id.
const RequestIDHeader = "x-request-id"

// ContextMiddleware tags every request with an id, reusing the caller's
// x-request-id when present.
func ContextMiddleware(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	requestID := incomingRequestID(ctx)
	if requestID == "" {
		requestID = generateRequestID()
	}
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return handler(ctx, req)
}

// RequestIDFromContext returns the id set by ContextMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(RequestIDHeader); len(values) > 0 {
		return values[0]
	}
	return ""
}

func generateRequestID() string {
	return uuid.NewString()
}
