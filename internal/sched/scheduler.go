// Package sched runs the trainer on a configurable cadence. One goroutine
// owns the timer; settings changes arrive over a reconfigure channel rather
// than by polling shared state, so the loop needs no locks around its own
// bookkeeping. Training runs are single-flight: a fire that lands while a
// run is still in progress is skipped, not queued.
package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"alertguard/internal/ml"
	"alertguard/internal/storage"

	"github.com/rs/zerolog/log"
)

// ErrTrainingInProgress is returned when a manual trigger lands while a
// training run is active. The caller may retry later; nothing is queued.
var ErrTrainingInProgress = errors.New("training already in progress")

// TrainFunc executes one training run.
type TrainFunc func(ctx context.Context) (ml.TrainingResult, error)

// Status describes the scheduler for the API surface.
type Status struct {
	Running  bool       `json:"running"`
	Enabled  bool       `json:"enabled"`
	NextFire *time.Time `json:"next_fire_time"`
}

// Scheduler owns the retraining timer loop.
type Scheduler struct {
	train    TrainFunc
	reconfig chan storage.Settings
	running  atomic.Bool

	mu       sync.Mutex
	enabled  bool
	nextFire time.Time
}

// New creates a scheduler around the given training function.
func New(train TrainFunc) *Scheduler {
	return &Scheduler{
		train:    train,
		reconfig: make(chan storage.Settings, 4),
	}
}

// Start launches the timer loop with the given initial settings. The loop
// exits when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, initial storage.Settings) {
	go s.loop(ctx, initial)
}

// Reconfigure delivers updated settings to the loop. Any pending (not yet
// fired) timer is canceled and re-armed with the new interval; a run already
// in progress is not interrupted. Never blocks the caller: with the channel
// full and contended, the update is dropped with a warning and the loop keeps
// the newest event already queued.
func (s *Scheduler) Reconfigure(settings storage.Settings) {
	select {
	case s.reconfig <- settings:
		return
	default:
	}

	// Drain one stale event and retry, still without blocking.
	select {
	case <-s.reconfig:
	default:
	}
	select {
	case s.reconfig <- settings:
	default:
		log.Warn().Msg("scheduler busy, settings update not queued")
	}
}

// RunNow triggers a training run immediately, bypassing the timer. It still
// respects single-flight: a trigger while a run is active is rejected with
// ErrTrainingInProgress. Errors from a manual run surface to the caller.
func (s *Scheduler) RunNow(ctx context.Context) (ml.TrainingResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return ml.TrainingResult{}, ErrTrainingInProgress
	}
	defer s.running.Store(false)
	return s.train(ctx)
}

// Status reports the current scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running: s.running.Load(),
		Enabled: s.enabled,
	}
	if s.enabled && !s.nextFire.IsZero() {
		t := s.nextFire
		st.NextFire = &t
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, settings storage.Settings) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	arm := func() {
		interval := settings.RetrainInterval()
		s.mu.Lock()
		s.enabled = settings.SchedulerEnabled
		if settings.SchedulerEnabled {
			s.nextFire = time.Now().Add(interval)
			timer.Reset(interval)
			log.Info().Dur("interval", interval).Time("next_fire", s.nextFire).Msg("retraining scheduled")
		} else {
			s.nextFire = time.Time{}
			log.Info().Msg("retraining disabled in settings")
		}
		s.mu.Unlock()
	}
	disarm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		s.mu.Lock()
		s.nextFire = time.Time{}
		s.mu.Unlock()
	}

	arm()
	for {
		select {
		case <-ctx.Done():
			disarm()
			return

		case updated := <-s.reconfig:
			disarm()
			settings = updated
			arm()

		case <-timer.C:
			s.mu.Lock()
			s.nextFire = time.Time{}
			s.mu.Unlock()

			if s.running.CompareAndSwap(false, true) {
				s.fire(ctx)
				s.running.Store(false)
			} else {
				// Single-flight: skip this fire, the next regular interval
				// is the next opportunity.
				log.Warn().Msg("scheduled retraining skipped, run already in progress")
			}
			arm()
		}
	}
}

// fire runs one scheduled training cycle. Failures are logged and swallowed;
// the loop continues at the next interval.
func (s *Scheduler) fire(ctx context.Context) {
	log.Info().Msg("running scheduled retraining")
	result, err := s.train(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled retraining failed")
		return
	}
	log.Info().
		Bool("promoted", result.Promoted).
		Str("version", result.VersionID).
		Str("message", result.Message).
		Msg("scheduled retraining finished")
}
