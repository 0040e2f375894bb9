package server

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tejusbharadwaj/simdash/internal/controller"
)

// SimulationService is the health service name that mirrors the run state.
const SimulationService = "simdash.Simulation"

// ServingStatus maps a run phase to a health status. Only a failed run is
// reported as NOT_SERVING.
func ServingStatus(phase controller.Phase) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if phase == controller.PhaseFailed {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// MirrorController keeps the SimulationService status in step with ctrl until
// ctx is done.
func MirrorController(ctx context.Context, ctrl *controller.Controller, health *HealthChecker, logger logrus.FieldLogger) {
	changes, release := ctrl.Subscribe()
	defer release()

	last := ctrl.State().Phase()
	health.SetServingStatus(SimulationService, ServingStatus(last))

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
		}

		phase := ctrl.State().Phase()
		if phase == last {
			continue
		}
		logger.WithFields(logrus.Fields{
			"from": last.String(),
			"to":   phase.String(),
		}).Debug("Run phase changed")
		last = phase
		health.SetServingStatus(SimulationService, ServingStatus(phase))
	}
}
