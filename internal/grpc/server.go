package server

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	middleware "github.com/tejusbharadwaj/simdash/internal/grpc/middlewares"
	"github.com/tejusbharadwaj/simdash/internal/metrics"
)

// ServerConfig holds configuration options for the gRPC server
type ServerConfig struct {
	RateLimit      float64 // Requests per second
	RateLimitBurst int     // Maximum burst size for rate limiting
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		RateLimit:      5.0, // 5 requests per second
		RateLimitBurst: 10,  // Burst of 10 requests
	}
}

// SetupServer builds the status server: the health service behind the
// request-id, rate limiting, logging and metrics interceptors. collector may
// be nil.
func SetupServer(health *HealthChecker, config ServerConfig, collector *metrics.Collector, logger logrus.FieldLogger) (*grpc.Server, error) {
	if config.RateLimit <= 0 || config.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("rate limit and burst must be positive")
	}

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.ContextMiddleware, // Add request ID first
		middleware.NewRateLimitingInterceptor(config.RateLimit, config.RateLimitBurst), // Rate limit early
		middleware.NewLoggingInterceptor(logger), // Log all requests (with request ID)
	}
	if collector != nil {
		interceptors = append(interceptors, middleware.NewMetricsInterceptor(collector.Requests, collector.Latency))
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(chainUnaryInterceptors(interceptors...)),
	)
	grpc_health_v1.RegisterHealthServer(server, health)

	return server, nil
}

// chainUnaryInterceptors creates a single interceptor from multiple interceptors
func chainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			interceptor := interceptors[i]
			chainedInterceptor := chain
			chain = func(currentCtx context.Context, currentReq interface{}) (interface{}, error) {
				return interceptor(currentCtx, currentReq, info, chainedInterceptor)
			}
		}
		return chain(ctx, req)
	}
}
