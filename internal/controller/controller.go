//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/transport.go -package=mocks . Transport

// Package controller drives one simulation run at a time through its
// lifecycle:
//
//	Idle -> Uploading -> Running -> Completed | Failed -> (Reset) -> Idle
//
// The controller owns the run state. Callers read snapshots with State and are
// told about changes through Changed; they never mutate the state directly.
//
// Every background completion (upload finished, poll tick answered) is tagged
// with the epoch of the run that issued it. A completion whose epoch or phase
// no longer matches is stale and is dropped, so a Reset or Cancel racing with
// an in-flight request can never be overwritten by its answer.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/simdash/internal/api"
	"github.com/tejusbharadwaj/simdash/internal/metrics"
	"github.com/tejusbharadwaj/simdash/internal/models"
	"github.com/tejusbharadwaj/simdash/internal/parser"
)

// Messages shown when the service gives no detail of its own.
const (
	SubmitFailedMessage = "Failed to start simulation"
	FetchFailedMessage  = "Error fetching results"
	TimeoutMessage      = "timed out waiting for simulation results"
)

// Transport is the remote simulation service.
//
// FetchResults must fail with an error matching api.ErrNotFound while the run
// has no results yet.
type Transport interface {
	Submit(ctx context.Context, req models.SimulationRequest, progress func(int)) (string, error)
	FetchResults(ctx context.Context, runID string) (models.RawResult, error)
}

// Config holds the polling tunables.
type Config struct {
	PollInterval time.Duration
	// MaxPollDuration bounds how long a run may stay Running. Zero disables the bound.
	MaxPollDuration time.Duration
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		MaxPollDuration: 15 * time.Minute,
	}
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics records submissions, polls and run durations.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithParser replaces the default EnergyPlus result parser.
func WithParser(p *parser.Parser) Option {
	return func(c *Controller) { c.parser = p }
}

// Controller is safe for concurrent use.
type Controller struct {
	transport Transport
	parser    *parser.Parser
	cfg       Config
	logger    logrus.FieldLogger
	metrics   *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     RunState
	epoch     uint64
	startedAt time.Time
	stopPoll  context.CancelFunc
	done      chan struct{}
	closed    bool

	changed chan struct{}

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// New returns an Idle controller. Non-positive intervals fall back to DefaultConfig.
func New(transport Transport, cfg Config, opts ...Option) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollDuration < 0 {
		cfg.MaxPollDuration = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		transport: transport,
		parser:    parser.New("", ""),
		cfg:       cfg,
		logger:    logrus.StandardLogger(),
		ctx:       ctx,
		cancel:    cancel,
		state:     Idle{},
		changed:   make(chan struct{}, 1),
		subs:      make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the current run state.
func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// Changed receives a value after the state changes. Consecutive changes may be
// coalesced into one notification, so readers should call State on receipt.
func (c *Controller) Changed() <-chan struct{} {
	return c.changed
}

// Subscribe returns an additional change channel with the same coalescing
// behaviour as Changed, for readers that must not steal notifications from
// each other. The returned func releases it.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
	}
}

// Submit validates req and starts uploading it. It returns a *ValidationError
// for an incomplete request and ErrInvalidState unless the controller is Idle;
// in both cases nothing changes.
func (c *Controller) Submit(req models.SimulationRequest) error {
	c.mu.Lock()
	if err := c.checkPhase("submit", PhaseIdle); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := Validate(req); err != nil {
		c.mu.Unlock()
		c.metrics.ObserveSubmission("rejected")
		return err
	}

	epoch := c.begin(Uploading{Progress: 0})
	c.wg.Add(1)
	c.mu.Unlock()

	c.metrics.ObserveSubmission("accepted")
	c.logger.WithFields(logrus.Fields{
		"building_model": req.BuildingModel.Present(),
		"weather":        req.Weather.Name,
	}).Info("Submitting simulation")
	c.notify()

	go c.upload(epoch, req)
	return nil
}

// Attach starts polling a run that was submitted elsewhere.
func (c *Controller) Attach(runID string) error {
	runID = strings.TrimSpace(runID)

	c.mu.Lock()
	if err := c.checkPhase("attach", PhaseIdle); err != nil {
		c.mu.Unlock()
		return err
	}
	if runID == "" {
		c.mu.Unlock()
		return &ValidationError{Reason: ReasonRunIDRequired}
	}
	epoch := c.begin(Running{RunID: runID})
	c.startPolling(epoch, runID)
	c.mu.Unlock()

	c.logger.WithField("run_id", runID).Info("Attached to simulation run")
	c.notify()
	return nil
}

// Reset returns a Completed or Failed controller to Idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if err := c.checkPhase("reset", PhaseCompleted, PhaseFailed); err != nil {
		c.mu.Unlock()
		return err
	}
	c.epoch++
	c.state = Idle{}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Cancel stops polling a Running run and returns to Idle. The simulation
// itself keeps running on the service.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if err := c.checkPhase("cancel", PhaseRunning); err != nil {
		c.mu.Unlock()
		return err
	}
	runID := RunIDOf(c.state)
	c.epoch++
	c.finish(Idle{})
	c.mu.Unlock()

	c.logger.WithField("run_id", runID).Info("Stopped polling simulation run")
	c.notify()
	return nil
}

// Wait blocks until the current run leaves Uploading/Running or ctx is done,
// then returns the state at that moment.
func (c *Controller) Wait(ctx context.Context) (RunState, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
	return c.State(), nil
}

// Close stops all background work and waits for it to exit. The last state
// stays readable; every other operation returns ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Controller) upload(epoch uint64, req models.SimulationRequest) {
	defer c.wg.Done()

	runID, err := c.transport.Submit(c.ctx, req, func(percent int) {
		c.setProgress(epoch, percent)
	})

	c.mu.Lock()
	if !c.current(epoch, PhaseUploading) {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.WithError(err).Error("Simulation submission failed")
		c.metrics.ObserveSubmission("failed")
		c.finish(Failed{Err: describe(err, SubmitFailedMessage)})
		c.mu.Unlock()
		c.notify()
		return
	}

	c.state = Running{RunID: runID}
	c.startPolling(epoch, runID)
	c.mu.Unlock()

	c.logger.WithField("run_id", runID).Info("Simulation running")
	c.notify()
}

func (c *Controller) setProgress(epoch uint64, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	c.mu.Lock()
	if !c.current(epoch, PhaseUploading) {
		c.mu.Unlock()
		return
	}
	// The bar never moves backwards within one submission.
	if up := c.state.(Uploading); percent <= up.Progress {
		c.mu.Unlock()
		return
	}
	c.state = Uploading{Progress: percent}
	c.mu.Unlock()
	c.notify()
}

// startPolling must be called with c.mu held.
func (c *Controller) startPolling(epoch uint64, runID string) {
	pollCtx, stop := context.WithCancel(c.ctx)
	c.stopPoll = stop
	c.wg.Add(1)
	go c.poll(pollCtx, epoch, runID)
}

func (c *Controller) poll(ctx context.Context, epoch uint64, runID string) {
	defer c.wg.Done()

	// The wait restarts after each answer, so a slow fetch never shortens
	// the gap before the next one.
	wait := time.NewTimer(c.cfg.PollInterval)
	defer wait.Stop()

	var deadline <-chan time.Time
	if c.cfg.MaxPollDuration > 0 {
		timer := time.NewTimer(c.cfg.MaxPollDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			c.expire(epoch)
			return
		case <-wait.C:
		}

		raw, err := c.transport.FetchResults(ctx, runID)
		if ctx.Err() != nil {
			return
		}
		if c.applyResult(epoch, attempt, raw, err) {
			return
		}
		wait.Reset(c.cfg.PollInterval)
	}
}

// applyResult folds one poll answer into the state and reports whether
// polling is over.
func (c *Controller) applyResult(epoch uint64, attempt int, raw models.RawResult, err error) bool {
	c.mu.Lock()
	if !c.current(epoch, PhaseRunning) {
		c.mu.Unlock()
		return true
	}
	runID := RunIDOf(c.state)

	if errors.Is(err, api.ErrNotFound) {
		c.mu.Unlock()
		c.metrics.ObservePoll(metrics.PollNotReady)
		return false
	}

	log := c.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"attempt": attempt,
	})
	if err != nil {
		log.WithError(err).Error("Fetching simulation results failed")
		c.finish(Failed{RunID: runID, Err: describe(err, FetchFailedMessage)})
		c.mu.Unlock()
		c.metrics.ObservePoll(metrics.PollError)
		c.notify()
		return true
	}

	series := c.parser.Parse(raw)
	if len(series) == 0 {
		c.mu.Unlock()
		c.metrics.ObservePoll(metrics.PollEmpty)
		return false
	}

	c.finish(Completed{RunID: runID, Series: series})
	c.mu.Unlock()

	log.WithField("samples", len(series)).Info("Simulation completed")
	c.metrics.ObservePoll(metrics.PollCompleted)
	c.notify()
	return true
}

func (c *Controller) expire(epoch uint64) {
	c.mu.Lock()
	if !c.current(epoch, PhaseRunning) {
		c.mu.Unlock()
		return
	}
	runID := RunIDOf(c.state)
	c.finish(Failed{RunID: runID, Err: TimeoutMessage})
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"run_id":  runID,
		"timeout": c.cfg.MaxPollDuration.String(),
	}).Warn("Gave up waiting for simulation results")
	c.notify()
}

// begin starts a new run in state s. Must be called with c.mu held.
func (c *Controller) begin(s RunState) uint64 {
	c.epoch++
	c.state = s
	c.startedAt = time.Now()
	c.done = make(chan struct{})
	return c.epoch
}

// finish ends the active run with state s. Must be called with c.mu held.
func (c *Controller) finish(s RunState) {
	c.state = s
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if s.Phase().Terminal() {
		c.metrics.ObserveRun(s.Phase().String(), time.Since(c.startedAt))
	}
}

// current reports whether a completion tagged with epoch still applies.
func (c *Controller) current(epoch uint64, phase Phase) bool {
	return !c.closed && c.epoch == epoch && c.state.Phase() == phase
}

func (c *Controller) checkPhase(op string, allowed ...Phase) error {
	if c.closed {
		return ErrClosed
	}
	phase := c.state.Phase()
	for _, p := range allowed {
		if phase == p {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, phase)
}

func (c *Controller) notify() {
	signal(c.changed)

	c.subMu.Lock()
	for ch := range c.subs {
		signal(ch)
	}
	c.subMu.Unlock()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func describe(err error, fallback string) string {
	if detail := api.Detail(err); detail != "" {
		return detail
	}
	return fallback
}
