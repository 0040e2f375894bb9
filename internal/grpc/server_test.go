package server_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tejusbharadwaj/simdash/internal/controller"
	"github.com/tejusbharadwaj/simdash/internal/controller/mocks"
	server "github.com/tejusbharadwaj/simdash/internal/grpc"
	"github.com/tejusbharadwaj/simdash/internal/metrics"
	"github.com/tejusbharadwaj/simdash/internal/models"
)

const bufSize = 1024 * 1024

func startServer(t *testing.T, health *server.HealthChecker, collector *metrics.Collector) grpc_health_v1.HealthClient {
	t.Helper()
	logger, _ := test.NewNullLogger()

	srv, err := server.SetupServer(health, server.DefaultServerConfig(), collector, logger)
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	go func() {
		_ = srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		lis.Close()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func TestHealthCheck(t *testing.T) {
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	health := server.NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	client := startServer(t, health, collector)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	_, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "unknown"})
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Requests.WithLabelValues("Check", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Requests.WithLabelValues("Check", "NotFound")))
}

func TestHealthWatch(t *testing.T) {
	health := server.NewHealthChecker()
	client := startServer(t, health, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Watch(ctx, &grpc_health_v1.HealthCheckRequest{Service: server.SimulationService})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, resp.Status)

	health.SetServingStatus(server.SimulationService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	resp, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestSetupServerRejectsInvalidConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	srv, err := server.SetupServer(server.NewHealthChecker(), server.ServerConfig{}, nil, logger)
	require.Error(t, err)
	require.Nil(t, srv)
}

func TestServingStatus(t *testing.T) {
	tests := []struct {
		phase controller.Phase
		want  grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{controller.PhaseIdle, grpc_health_v1.HealthCheckResponse_SERVING},
		{controller.PhaseUploading, grpc_health_v1.HealthCheckResponse_SERVING},
		{controller.PhaseRunning, grpc_health_v1.HealthCheckResponse_SERVING},
		{controller.PhaseCompleted, grpc_health_v1.HealthCheckResponse_SERVING},
		{controller.PhaseFailed, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.phase.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, server.ServingStatus(tt.phase))
		})
	}
}

func TestMirrorController(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	transport := mocks.NewMockTransport(mockCtrl)
	transport.EXPECT().
		Submit(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("connection refused"))

	logger, _ := test.NewNullLogger()
	ctrl := controller.New(transport, controller.DefaultConfig(), controller.WithLogger(logger))
	defer ctrl.Close()

	health := server.NewHealthChecker()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.MirrorController(ctx, ctrl, health, logger)
		close(done)
	}()

	checkStatus := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: server.SimulationService})
		if err != nil {
			return grpc_health_v1.HealthCheckResponse_UNKNOWN
		}
		return resp.Status
	}

	require.Eventually(t, func() bool {
		return checkStatus() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ctrl.Submit(models.SimulationRequest{
		Weather:    &models.FileHandle{Name: "weather.epw", Data: []byte("LOCATION")},
		Dimensions: models.Dimensions{Length: 1, Width: 1, Height: 1},
	}))

	require.Eventually(t, func() bool {
		return checkStatus() == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ctrl.Reset())
	require.Eventually(t, func() bool {
		return checkStatus() == grpc_health_v1.HealthCheckResponse_SERVING
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
