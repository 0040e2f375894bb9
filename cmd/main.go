package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/tejusbharadwaj/simdash/internal/api"
	"github.com/tejusbharadwaj/simdash/internal/app"
	"github.com/tejusbharadwaj/simdash/internal/config"
	"github.com/tejusbharadwaj/simdash/internal/controller"
	"github.com/tejusbharadwaj/simdash/internal/database"
	server "github.com/tejusbharadwaj/simdash/internal/grpc"
	"github.com/tejusbharadwaj/simdash/internal/metrics"
	"github.com/tejusbharadwaj/simdash/internal/models"
	"github.com/tejusbharadwaj/simdash/internal/parser"
	"github.com/tejusbharadwaj/simdash/internal/scheduler"
)

// Command simdash submits building energy simulations to a remote service,
// follows them to completion and shows the resulting temperature series.
//
// Modes:
//   - Interactive dashboard (-tui)
//   - One-shot run from flags (-weather with -idf or dimensions), or -attach to
//     follow a run submitted elsewhere; the series is printed as JSON
//   - Scheduled runs (-schedule or schedule.spec in the config file), each
//     stored in TimescaleDB when database.enabled is set
//
// Usage:
//
//	simdash [flags]
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
//	-tui
//	      run the interactive dashboard
//	-idf string
//	      building model file
//	-weather string
//	      weather file
//	-length, -width, -height float
//	      building dimensions in meters, used without -idf
//	-attach string
//	      follow an existing run id instead of submitting
//	-schedule string
//	      cron spec for recurring runs
func main() {
	cfg := parseFlags()

	appConfig, err := loadConfig(cfg.ConfigPath, cfg.ConfigExplicit)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Schedule != "" {
		appConfig.Schedule.Spec = cfg.Schedule
	}

	logger, closeLog, err := setupLogger(appConfig.Logging, cfg.TUI)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	if err := run(cfg, appConfig, logger); err != nil {
		logger.WithError(err).Error("simdash exited with error")
		closeLog()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type Config struct {
	ConfigPath     string
	ConfigExplicit bool
	TUI            bool
	BuildingModel  string
	Weather        string
	Length         float64
	Width          float64
	Height         float64
	Attach         string
	Schedule       string
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "config.yaml", "Path to the config file")
	flag.BoolVar(&cfg.TUI, "tui", false, "Run the interactive dashboard")
	flag.StringVar(&cfg.BuildingModel, "idf", "", "Building model file")
	flag.StringVar(&cfg.Weather, "weather", "", "Weather file")
	flag.Float64Var(&cfg.Length, "length", 0, "Building length in meters")
	flag.Float64Var(&cfg.Width, "width", 0, "Building width in meters")
	flag.Float64Var(&cfg.Height, "height", 0, "Building height in meters")
	flag.StringVar(&cfg.Attach, "attach", "", "Follow an existing run id")
	flag.StringVar(&cfg.Schedule, "schedule", "", "Cron spec for recurring runs")

	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			cfg.ConfigExplicit = true
		}
	})
	return cfg
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setupLogger builds the logger from config. The dashboard owns the terminal,
// so in TUI mode logs go to logging.file or nowhere.
func setupLogger(cfg config.LoggingConfig, tui bool) (*logrus.Logger, func(), error) {
	logger := logrus.New()
	closer := func() {}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, closer, err
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, closer, err
		}
		logger.SetOutput(f)
		closer = func() { f.Close() }
	case tui:
		logger.SetOutput(io.Discard)
	default:
		logger.SetOutput(os.Stderr)
	}
	return logger, closer, nil
}

func run(cfg *Config, appConfig *config.Config, logger *logrus.Logger) error {
	// Create a context that will be canceled on shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:        appConfig.Service.URL,
		Timeout:        appConfig.Service.Timeout,
		RateLimit:      appConfig.Service.RateLimit,
		RateLimitBurst: appConfig.Service.RateLimitBurst,
		CacheSize:      appConfig.Service.CacheSize,
	}, logger)
	if err != nil {
		return err
	}

	ctrl := controller.New(client,
		controller.Config{
			PollInterval:    appConfig.Poll.Interval,
			MaxPollDuration: appConfig.Poll.MaxDuration,
		},
		controller.WithLogger(logger),
		controller.WithMetrics(collector),
		controller.WithParser(parser.New(appConfig.Results.TimestampColumn, appConfig.Results.ValueColumn)),
	)
	defer ctrl.Close()

	var repo database.SeriesRepository
	if appConfig.Database.Enabled {
		pg, err := database.NewPostgresRepo(appConfig.Database.ConnString())
		if err != nil {
			return fmt.Errorf("failed to create repository: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pg
	}

	if port := appConfig.Server.MetricsPort; port > 0 {
		stop := serveMetrics(port, registry, logger)
		defer stop()
	}
	if port := appConfig.Server.GRPCPort; port > 0 {
		srv, err := serveStatus(ctx, port, ctrl, collector, logger)
		if err != nil {
			return err
		}
		go handleShutdown(ctx, srv, logger)
	}

	switch {
	case cfg.TUI:
		return runDashboard(ctrl)
	case cfg.Attach != "" || cfg.Weather != "" || cfg.BuildingModel != "":
		return runOnce(ctx, cfg, ctrl, repo, logger)
	case appConfig.Schedule.Spec != "":
		return runScheduled(ctx, appConfig.Schedule, ctrl, repo, logger)
	default:
		flag.Usage()
		return errors.New("nothing to do: pass -tui, -weather, -attach or -schedule")
	}
}

func runDashboard(ctrl *controller.Controller) error {
	program := tea.NewProgram(app.NewModel(ctrl), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// runOnce submits or attaches to one run, waits for it and prints the series.
func runOnce(ctx context.Context, cfg *Config, ctrl *controller.Controller, repo database.SeriesRepository, logger *logrus.Logger) error {
	if cfg.Attach != "" {
		if err := ctrl.Attach(cfg.Attach); err != nil {
			return err
		}
	} else {
		req, err := scheduler.FileRequest(config.ScheduleConfig{
			BuildingModel: cfg.BuildingModel,
			Weather:       cfg.Weather,
			Length:        cfg.Length,
			Width:         cfg.Width,
			Height:        cfg.Height,
		})()
		if err != nil {
			return err
		}
		if err := ctrl.Submit(req); err != nil {
			return err
		}
	}

	state, err := ctrl.Wait(ctx)
	if err != nil {
		return err
	}

	switch st := state.(type) {
	case controller.Completed:
		if repo != nil {
			if err := repo.SaveSeries(ctx, st.RunID, st.Series); err != nil {
				return err
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID string          `json:"run_id"`
			Data  []models.Sample `json:"data"`
		}{st.RunID, st.Series})
	case controller.Failed:
		return fmt.Errorf("simulation failed: %s", st.Err)
	default:
		logger.WithField("phase", state.Phase().String()).Warn("Run ended without results")
		return nil
	}
}

func runScheduled(ctx context.Context, cfg config.ScheduleConfig, ctrl *controller.Controller, repo database.SeriesRepository, logger *logrus.Logger) error {
	sched := scheduler.NewScheduler(ctx, ctrl, scheduler.FileRequest(cfg), repo, logger)
	if err := sched.Start(cfg.Spec); err != nil {
		return err
	}
	logger.WithField("schedule", cfg.Spec).Info("Scheduler started")

	<-ctx.Done()
	logger.Info("Stopping scheduler")
	sched.Stop()
	return nil
}

func serveMetrics(port int, registry *prometheus.Registry, logger *logrus.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("port", port).Info("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func serveStatus(ctx context.Context, port int, ctrl *controller.Controller, collector *metrics.Collector, logger *logrus.Logger) (*grpc.Server, error) {
	health := server.NewHealthChecker()
	health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	go server.MirrorController(ctx, ctrl, health, logger)

	srv, err := server.SetupServer(health, server.DefaultServerConfig(), collector, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server: %w", err)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"port": port,
	}).Info("Starting gRPC status server")

	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.WithError(err).Error("gRPC server stopped")
		}
	}()
	return srv, nil
}

// Handle graceful shutdown
func handleShutdown(ctx context.Context, srv *grpc.Server, logger *logrus.Logger) {
	<-ctx.Done()

	logger.Info("Gracefully stopping server...")
	srv.GracefulStop()
	logger.Info("Server stopped")
}
