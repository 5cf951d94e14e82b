package health

import (
	"context"
	"fmt"
	"time"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusStale       Status = "stale"
	StatusFailing     Status = "failing"
	StatusUnavailable Status = "unavailable" // adapter not implemented or not configured
	StatusNeverRun    Status = "never_run"
)

// Healthy reports whether the status needs no attention.
func (s Status) Healthy() bool {
	return s == StatusOK || s == StatusUnavailable
}

type JobStatus struct {
	Job         string         `json:"job"`
	Status      Status         `json:"status"`
	LastRun     *time.Time     `json:"last_run,omitempty"`
	LastSuccess *time.Time     `json:"last_success,omitempty"`
	LastOutcome models.Outcome `json:"last_outcome,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Counts      models.Counts  `json:"counts"`
}

type Report struct {
	CheckedAt time.Time   `json:"checked_at"`
	Healthy   bool        `json:"healthy"`
	Jobs      []JobStatus `json:"jobs"`
}

// Unhealthy returns the jobs needing attention.
func (r Report) Unhealthy() []JobStatus {
	var out []JobStatus
	for _, j := range r.Jobs {
		if !j.Status.Healthy() {
			out = append(out, j)
		}
	}
	return out
}

type HeartbeatReader interface {
	LatestHeartbeats(ctx context.Context) ([]models.Heartbeat, error)
	LastSuccess(ctx context.Context) (map[string]time.Time, error)
}

// ReportSender delivers a report to a human, e.g. over Telegram.
type ReportSender interface {
	SendHealthReport(ctx context.Context, report Report) error
}

// ExpectedJobs lists every job the checker watches: each source plus the classifier.
func ExpectedJobs() []string {
	jobs := make([]string, 0, len(models.AllSources())+1)
	for _, src := range models.AllSources() {
		jobs = append(jobs, string(src))
	}
	return append(jobs, models.JobClassifier)
}

type Checker struct {
	store      HeartbeatReader
	recorder   *Recorder
	sender     ReportSender
	jobs       []string
	staleAfter time.Duration
	logger     logging.Logger
	now        func() time.Time
}

// NewChecker builds the health-check job. recorder and sender may be nil.
func NewChecker(store HeartbeatReader, recorder *Recorder, sender ReportSender, staleAfter time.Duration, logger logging.Logger) *Checker {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checker{
		store:      store,
		recorder:   recorder,
		sender:     sender,
		jobs:       ExpectedJobs(),
		staleAfter: staleAfter,
		logger:     logger.WithField("job", models.JobHealth),
		now:        time.Now,
	}
}

// Evaluate builds a report from the stored heartbeats without side effects.
func (c *Checker) Evaluate(ctx context.Context) (Report, error) {
	latest, err := c.store.LatestHeartbeats(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("latest heartbeats: %w", err)
	}
	successes, err := c.store.LastSuccess(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("last success: %w", err)
	}

	byJob := make(map[string]models.Heartbeat, len(latest))
	for _, hb := range latest {
		byJob[hb.Job] = hb
	}

	now := c.now().UTC()
	report := Report{CheckedAt: now, Healthy: true}
	for _, job := range c.jobs {
		js := JobStatus{Job: job}
		hb, ran := byJob[job]
		success, succeeded := successes[job]

		if ran {
			finished := hb.FinishedAt
			js.LastRun = &finished
			js.LastOutcome = hb.Outcome
			js.LastError = hb.Error
			js.Counts = hb.Counts
		}
		if succeeded {
			js.LastSuccess = &success
		}

		switch {
		case !ran:
			js.Status = StatusNeverRun
		case hb.Outcome == models.OutcomeUnavailable:
			js.Status = StatusUnavailable
		case succeeded && now.Sub(success) <= c.staleAfter:
			js.Status = StatusOK
		case succeeded:
			js.Status = StatusStale
		default:
			js.Status = StatusFailing
		}

		if !js.Status.Healthy() {
			report.Healthy = false
		}
		report.Jobs = append(report.Jobs, js)
	}
	return report, nil
}

// Check runs the health-check job: evaluate, log, notify when something is
// unhealthy, and record its own heartbeat.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	started := c.now().UTC()
	report, err := c.Evaluate(ctx)

	hb := models.Heartbeat{Job: models.JobHealth, Outcome: models.OutcomeSuccess, StartedAt: started}
	if err != nil {
		c.logger.WithError(err).Error("❌ Health check failed")
		hb.Outcome = models.OutcomeFailure
		hb.Error = err.Error()
	} else {
		for _, js := range report.Jobs {
			entry := c.logger.WithFields(logging.Fields{"checked_job": js.Job, "status": js.Status})
			switch js.Status {
			case StatusOK:
				entry.Info("✅ Job healthy")
			case StatusUnavailable:
				entry.Info("⏸️ Job not implemented or not configured")
			default:
				entry.WithField("last_error", js.LastError).Warn("⚠️ Job needs attention")
			}
		}
		hb.Counts.Failed = len(report.Unhealthy())

		if !report.Healthy && c.sender != nil {
			if err := c.sender.SendHealthReport(ctx, report); err != nil {
				c.logger.WithError(err).Warn("⚠️ Failed to send health report")
			}
		}
	}

	if c.recorder != nil {
		hb.FinishedAt = c.now().UTC()
		if recErr := c.recorder.Record(context.WithoutCancel(ctx), hb); recErr != nil && err == nil {
			err = recErr
		}
	}
	return report, err
}
