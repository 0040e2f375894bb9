package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/simdash/internal/config"
	"github.com/tejusbharadwaj/simdash/internal/controller"
	"github.com/tejusbharadwaj/simdash/internal/database"
	"github.com/tejusbharadwaj/simdash/internal/models"
)

// RequestSource builds the request submitted on every tick.
type RequestSource func() (models.SimulationRequest, error)

// FileRequest reads the building model and weather files named in cfg.
// Files are read on every call so edits between runs are picked up.
func FileRequest(cfg config.ScheduleConfig) RequestSource {
	return func() (models.SimulationRequest, error) {
		req := models.SimulationRequest{
			Dimensions: models.Dimensions{
				Length: cfg.Length,
				Width:  cfg.Width,
				Height: cfg.Height,
			},
		}
		if cfg.Weather != "" {
			weather, err := models.LoadFile(cfg.Weather)
			if err != nil {
				return req, err
			}
			req.Weather = weather
		}
		if cfg.BuildingModel != "" {
			model, err := models.LoadFile(cfg.BuildingModel)
			if err != nil {
				return req, err
			}
			req.BuildingModel = model
		}
		return req, nil
	}
}

// Scheduler submits a simulation on a cron schedule and stores every
// completed series in the repository, if one is configured.
type Scheduler struct {
	ctx     context.Context
	ctrl    *controller.Controller
	source  RequestSource
	repo    database.SeriesRepository
	logger  *logrus.Logger
	cron    *cron.Cron
	timeout time.Duration
}

// NewScheduler creates a scheduler. repo may be nil.
func NewScheduler(ctx context.Context, ctrl *controller.Controller, source RequestSource, repo database.SeriesRepository, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:     ctx,
		ctrl:    ctrl,
		source:  source,
		repo:    repo,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: 2 * time.Hour,
	}
}

// Start registers the job under spec and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	s.cron.Start()
	return nil
}

// runOnce performs one scheduled simulation from submission to storage.
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if _, err := s.Run(ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled simulation failed")
	}
}

// Run submits one simulation, waits for it to finish and stores the series.
// A controller left Completed or Failed by the previous run is reset first.
func (s *Scheduler) Run(ctx context.Context) (controller.RunState, error) {
	if s.ctrl.State().Phase().Terminal() {
		if err := s.ctrl.Reset(); err != nil {
			return s.ctrl.State(), err
		}
	}

	req, err := s.source()
	if err != nil {
		return s.ctrl.State(), fmt.Errorf("failed to build request: %w", err)
	}
	if err := s.ctrl.Submit(req); err != nil {
		return s.ctrl.State(), err
	}

	state, err := s.ctrl.Wait(ctx)
	if err != nil {
		return state, err
	}

	switch st := state.(type) {
	case controller.Completed:
		s.logger.WithFields(logrus.Fields{
			"run_id":  st.RunID,
			"samples": len(st.Series),
		}).Info("Scheduled simulation completed")
		if s.repo != nil {
			if err := s.repo.SaveSeries(ctx, st.RunID, st.Series); err != nil {
				return state, fmt.Errorf("failed to store series: %w", err)
			}
		}
	case controller.Failed:
		return state, fmt.Errorf("run %q failed: %s", st.RunID, st.Err)
	}
	return state, nil
}

// Stop the scheduler and wait for a running job to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
