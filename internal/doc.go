// Package simdash is a client for a remote building energy simulation
// service.
//
// # Architecture
//
// The client is structured into several key packages:
//   - api: HTTP client for the simulation service (submit, fetch results)
//   - controller: Run lifecycle state machine and result polling
//   - parser: Extraction of the temperature series from result payloads
//   - app: Terminal dashboard built on bubbletea
//   - scheduler: Recurring simulation runs
//   - database: TimescaleDB storage for completed series
//   - grpc: Health service reporting the state of the current run
//   - metrics: Prometheus collectors
//   - config: YAML and environment configuration
//
// Key Features
//
//   - Run Lifecycle:
//     A run moves Idle -> Uploading -> Running -> Completed or Failed and
//     back to Idle on reset. Only one run is active at a time.
//
//   - Polling:
//     Results are polled at a fixed interval. A 404 means the run is still
//     going; any other error or a service detail message fails the run.
//
//   - Result Formats:
//     Structured JSON samples and delimited text tables are both accepted.
//     Table timestamps are kept exactly as the service wrote them.
//
// Example Usage
//
//	client, _ := api.NewClient(api.DefaultClientConfig(), logger)
//	ctrl := controller.New(client, controller.DefaultConfig())
//	defer ctrl.Close()
//
//	if err := ctrl.Submit(req); err != nil {
//	    return err
//	}
//	state, err := ctrl.Wait(ctx)
//
// For more information about specific packages, see their respective
// documentation.
package simdash
