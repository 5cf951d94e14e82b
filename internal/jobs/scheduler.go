package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-lead-radar/internal/logging"
)

// ErrAlreadyRunning is returned by Trigger when the job has a run in flight.
var ErrAlreadyRunning = errors.New("job already running")

// Scheduler triggers jobs on their own tickers and on demand. A job never has
// two runs in flight; different jobs run independently.
type Scheduler struct {
	runner    *Runner
	intervals map[string]time.Duration
	logger    logging.Logger

	mu       sync.Mutex
	inflight map[string]string // job -> run id
	last     map[string]Result
	wg       sync.WaitGroup
}

func NewScheduler(runner *Runner, intervals map[string]time.Duration, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{
		runner:    runner,
		intervals: intervals,
		logger:    logger,
		inflight:  make(map[string]string),
		last:      make(map[string]Result),
	}
}

// Start launches one ticker per scheduled job. Tickers stop with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	for job, every := range s.intervals {
		if every <= 0 || !s.runner.Has(job) {
			s.logger.WithField("job", job).Warn("⚠️ Skipping schedule entry")
			continue
		}
		s.logger.WithFields(logging.Fields{"job": job, "every": every.String()}).Info("⏰ Scheduled job")
		job, every := job, every
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := s.Trigger(ctx, job, 0); errors.Is(err, ErrAlreadyRunning) {
						s.logger.WithField("job", job).Info("⏭️ Previous run still in flight, skipping tick")
					}
				}
			}
		}()
	}
}

// Trigger starts job asynchronously and returns its run id.
func (s *Scheduler) Trigger(ctx context.Context, job string, limit int) (string, error) {
	if !s.runner.Has(job) {
		return "", fmt.Errorf("%w: %q", ErrUnknownJob, job)
	}

	s.mu.Lock()
	if _, busy := s.inflight[job]; busy {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	runID := uuid.NewString()
	s.inflight[job] = runID
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.runner.run(ctx, runID, job, limit)
		s.mu.Lock()
		delete(s.inflight, job)
		s.last[job] = res
		s.mu.Unlock()
	}()
	return runID, nil
}

// Running reports the run id in flight for job, if any.
func (s *Scheduler) Running(job string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.inflight[job]
	return id, ok
}

// Last returns the most recent finished result of job.
func (s *Scheduler) Last(job string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[job]
	return r, ok
}

// Wait blocks until every started run has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
