package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-lead-radar/internal/classifier"
	"go-lead-radar/internal/coordinator"
	"go-lead-radar/internal/health"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

var ErrUnknownJob = errors.New("unknown job")

// Result is what a job reports back to whoever triggered it.
type Result struct {
	RunID      string         `json:"run_id"`
	Job        string         `json:"job"`
	Outcome    models.Outcome `json:"outcome"`
	Counts     models.Counts  `json:"counts"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// SourceRunner runs one adapter across every business.
type SourceRunner interface {
	RunSource(ctx context.Context, adapter scraper.Adapter, limit int) coordinator.BatchResult
}

type ClassifierRunner interface {
	Run(ctx context.Context, limit int) classifier.RunResult
}

type HealthRunner interface {
	Check(ctx context.Context) (health.Report, error)
}

// Runner maps job names to the pipeline pieces behind them.
type Runner struct {
	sources    SourceRunner
	adapters   map[models.Source]scraper.Adapter
	limits     map[models.Source]int
	classifier ClassifierRunner
	checker    HealthRunner
	logger     logging.Logger
	now        func() time.Time
}

func NewRunner(sources SourceRunner, adapters []scraper.Adapter, classifier ClassifierRunner, checker HealthRunner, logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Runner{
		sources:    sources,
		adapters:   make(map[models.Source]scraper.Adapter, len(adapters)),
		limits:     make(map[models.Source]int),
		classifier: classifier,
		checker:    checker,
		logger:     logger,
		now:        time.Now,
	}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// SetLimit sets the default fetch limit of one source job.
func (r *Runner) SetLimit(source models.Source, limit int) {
	r.limits[source] = limit
}

// Jobs lists the triggerable job names in a stable order.
func (r *Runner) Jobs() []string {
	var names []string
	for _, src := range models.AllSources() {
		if _, ok := r.adapters[src]; ok {
			names = append(names, string(src))
		}
	}
	if r.classifier != nil {
		names = append(names, models.JobClassifier)
	}
	if r.checker != nil {
		names = append(names, models.JobHealth)
	}
	return names
}

func (r *Runner) Has(name string) bool {
	for _, j := range r.Jobs() {
		if j == name {
			return true
		}
	}
	return false
}

// Run executes one job by name. The only error is ErrUnknownJob; run failures
// are reported in the result and have already been recorded as heartbeats.
func (r *Runner) Run(ctx context.Context, name string, limit int) (Result, error) {
	if !r.Has(name) {
		return Result{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownJob, name, r.Jobs())
	}
	return r.run(ctx, uuid.NewString(), name, limit), nil
}

func (r *Runner) run(ctx context.Context, runID, name string, limit int) (res Result) {
	res = Result{RunID: runID, Job: name, StartedAt: r.now().UTC()}
	log := r.logger.WithFields(logging.Fields{"job": name, "run_id": runID})

	defer func() {
		if p := recover(); p != nil {
			log.Errorf("💥 Job panicked: %v", p)
			res.Outcome = models.OutcomeFailure
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.FinishedAt = r.now().UTC()
	}()

	log.Info("▶️ Starting job")
	switch name {
	case models.JobClassifier:
		out := r.classifier.Run(ctx, limit)
		res.Outcome, res.Counts = out.Outcome, out.Counts
		res.Error = errString(out.Err)
	case models.JobHealth:
		report, err := r.checker.Check(ctx)
		res.Outcome = models.OutcomeSuccess
		if err != nil {
			res.Outcome = models.OutcomeFailure
			res.Error = err.Error()
		}
		res.Counts.Failed = len(report.Unhealthy())
	default:
		src := models.Source(name)
		if limit <= 0 {
			limit = r.limits[src]
		}
		batch := r.sources.RunSource(ctx, r.adapters[src], limit)
		res.Outcome, res.Counts = batch.Outcome, batch.Counts
		res.Error = errString(batch.Err)
	}
	log.WithField("outcome", res.Outcome).Info("🏁 Job finished")
	return res
}

// RunAll runs every source job in parallel; jobs never wait on each other.
func (r *Runner) RunAll(ctx context.Context, limit int) []Result {
	var (
		mu      sync.Mutex
		results []Result
	)
	g := new(errgroup.Group)
	for _, src := range models.AllSources() {
		if _, ok := r.adapters[src]; !ok {
			continue
		}
		src := src
		g.Go(func() error {
			res := r.run(ctx, uuid.NewString(), string(src), limit)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Job < results[j].Job })
	return results
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
