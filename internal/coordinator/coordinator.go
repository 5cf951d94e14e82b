// Package coordinator drives one (business, source) run end to end:
// fetch, filter, dedup, persist, record. Failures stop at this boundary.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-lead-radar/internal/database"
	"go-lead-radar/internal/dedup"
	"go-lead-radar/internal/filter"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

type State string

const (
	StatePending    State = "pending"
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Store is what a run needs from storage.
type Store interface {
	database.BusinessSource
	InsertPost(ctx context.Context, post *models.Post) error
}

type HeartbeatRecorder interface {
	Record(ctx context.Context, hb models.Heartbeat) error
}

type Config struct {
	RunTimeout   time.Duration
	Workers      int // businesses processed in parallel per source
	DefaultLimit int
	MaxAge       time.Duration
}

// RunResult is the outcome of one (business, source) run. Counts.Skipped is
// the number of fetched candidates dropped as too old or irrelevant.
type RunResult struct {
	BusinessID string
	Source     models.Source
	State      State
	Outcome    models.Outcome
	Counts     models.Counts
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// BatchResult aggregates every business run of one source invocation.
type BatchResult struct {
	Source  models.Source
	Outcome models.Outcome
	Counts  models.Counts
	Runs    []RunResult
	Err     error
}

type Coordinator struct {
	store    Store
	matcher  *filter.Matcher
	dedup    *dedup.Deduplicator
	recorder HeartbeatRecorder
	cfg      Config
	logger   logging.Logger
	now      func() time.Time
}

func New(store Store, matcher *filter.Matcher, dd *dedup.Deduplicator, recorder HeartbeatRecorder, cfg Config, logger logging.Logger) *Coordinator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if matcher == nil {
		matcher = filter.NewMatcher(filter.PolicyAll)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		store:    store,
		matcher:  matcher,
		dedup:    dd,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one business against one adapter. It always returns a result
// and records exactly one heartbeat, whatever happens inside.
func (c *Coordinator) Run(ctx context.Context, business models.Business, adapter scraper.Adapter, limit int) (res RunResult) {
	if limit <= 0 {
		limit = c.cfg.DefaultLimit
	}
	source := adapter.Name()
	res = RunResult{
		BusinessID: business.ID,
		Source:     source,
		State:      StatePending,
		StartedAt:  c.now().UTC(),
	}
	log := c.logger.WithFields(logging.Fields{"source": string(source), "business": business.Slug})

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Outcome = models.OutcomeFailure
			res.Err = fmt.Errorf("panic in %s run: %v", source, r)
		}
		res.FinishedAt = c.now().UTC()
		c.logResult(log, res)
		c.recordHeartbeat(ctx, res)
	}()

	keywords := business.KeywordTexts()
	if len(keywords) == 0 {
		log.Info("💤 Business has no keywords, nothing to fetch")
		res.State = StateDone
		res.Outcome = models.OutcomeSuccess
		return res
	}

	if err := adapter.Available(runCtx); err != nil {
		if scraper.IsUnavailable(err) {
			res.State = StateDone
			res.Outcome = models.OutcomeUnavailable
			res.Err = err
			return res
		}
		return c.fail(runCtx, res, fmt.Errorf("availability check: %w", err))
	}

	res.State = StateFetching
	log.WithFields(logging.Fields{"keywords": len(keywords), "policy": c.matcher.Policy()}).Info("🚀 Fetching")
	candidates, err := adapter.Fetch(runCtx, keywords, limit)
	if err != nil {
		return c.fail(runCtx, res, err)
	}
	res.Counts.Fetched = len(candidates)

	res.State = StateFiltering
	recent, _ := filter.Recent(candidates, c.now(), c.cfg.MaxAge)
	matches := c.matcher.Filter(recent, keywords)
	res.Counts.Kept = len(matches)
	res.Counts.Skipped = len(candidates) - len(matches)

	res.State = StatePersisting
	for _, m := range matches {
		if err := runCtx.Err(); err != nil {
			return c.fail(runCtx, res, err)
		}
		if err := c.persist(runCtx, business, source, m, &res.Counts); err != nil {
			return c.fail(runCtx, res, err)
		}
	}

	res.State = StateDone
	res.Outcome = models.OutcomeSuccess
	return res
}

func (c *Coordinator) persist(ctx context.Context, business models.Business, source models.Source, m filter.Match, counts *models.Counts) error {
	cand := m.Candidate
	if c.dedup != nil {
		isNew, err := c.dedup.IsNew(ctx, source, cand.ExternalID)
		if err != nil {
			// the unique constraint on insert still guards us
			c.logger.WithError(err).WithField("source", string(source)).Debug("Dedup lookup failed, relying on insert")
		} else if !isNew {
			counts.Duplicates++
			return nil
		}
	}

	post := &models.Post{
		Source:     source,
		ExternalID: cand.ExternalID,
		BusinessID: business.ID,
		Keywords:   m.Keywords,
		Author:     cand.Author,
		Title:      cand.Title,
		Body:       cand.Body,
		URL:        cand.URL,
		Community:  cand.Community,
		PostedAt:   cand.PostedAt,
	}
	err := c.store.InsertPost(ctx, post)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		counts.Duplicates++
	case err != nil:
		return fmt.Errorf("insert %s/%s: %w", source, cand.ExternalID, err)
	default:
		counts.Stored++
	}
	if c.dedup != nil {
		c.dedup.MarkSeen(source, cand.ExternalID)
	}
	return nil
}

// fail moves the run to failed; a hit deadline is reported as a timeout.
// Posts stored before the failure stay stored.
func (c *Coordinator) fail(runCtx context.Context, res RunResult, err error) RunResult {
	res.State = StateFailed
	res.Err = err
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.Outcome = models.OutcomeTimeout
		res.Err = fmt.Errorf("run timed out after %s: %w", c.cfg.RunTimeout, err)
	} else {
		res.Outcome = models.OutcomeFailure
	}
	return res
}

func (c *Coordinator) logResult(log logging.Logger, res RunResult) {
	entry := log.WithFields(logging.Fields{
		"state":      res.State,
		"outcome":    res.Outcome,
		"fetched":    res.Counts.Fetched,
		"kept":       res.Counts.Kept,
		"stored":     res.Counts.Stored,
		"duplicates": res.Counts.Duplicates,
	})
	switch res.Outcome {
	case models.OutcomeSuccess:
		entry.Info("✅ Run finished")
	case models.OutcomeUnavailable:
		entry.WithError(res.Err).Info("⏸️ Source unavailable, skipped")
	default:
		entry.WithError(res.Err).Error("❌ Run failed")
	}
}

func (c *Coordinator) recordHeartbeat(ctx context.Context, res RunResult) {
	if c.recorder == nil {
		return
	}
	hb := models.Heartbeat{
		Job:        string(res.Source),
		Source:     res.Source,
		BusinessID: res.BusinessID,
		Outcome:    res.Outcome,
		Counts:     res.Counts,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		hb.Error = res.Err.Error()
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	// recorder logs its own failures
	_ = c.recorder.Record(recCtx, hb)
}

// RunSource runs every active business against one adapter with bounded
// parallelism. It never aborts early: each business gets its own result.
func (c *Coordinator) RunSource(ctx context.Context, adapter scraper.Adapter, limit int) BatchResult {
	source := adapter.Name()
	batch := BatchResult{Source: source}
	started := c.now().UTC()
	log := c.logger.WithField("source", string(source))

	businesses, err := c.store.ListBusinesses(ctx)
	if err != nil {
		batch.Outcome = models.OutcomeFailure
		batch.Err = fmt.Errorf("list businesses: %w", err)
		log.WithError(err).Error("❌ Could not list businesses")
		c.recordJobHeartbeat(ctx, source, started, batch)
		return batch
	}
	if len(businesses) == 0 {
		batch.Outcome = models.OutcomeSuccess
		log.Info("💤 No active businesses")
		c.recordJobHeartbeat(ctx, source, started, batch)
		return batch
	}

	if c.dedup != nil {
		if n := c.dedup.Prune(); n > 0 {
			log.WithField("expired", n).Debug("Pruned dedup cache")
		}
	}

	batch.Runs = make([]RunResult, len(businesses))
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)
	for i, b := range businesses {
		i, b := i, b
		g.Go(func() error {
			r := c.Run(ctx, b, adapter, limit)
			mu.Lock()
			batch.Runs[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	batch.Outcome, batch.Counts, batch.Err = aggregate(batch.Runs)
	return batch
}

// aggregate folds run results: unavailable when every run was, failure when
// no run succeeded, success otherwise. Counts.Failed is the number of failed runs.
func aggregate(runs []RunResult) (models.Outcome, models.Counts, error) {
	var counts models.Counts
	var errs []error
	succeeded, unavailable := 0, 0
	for _, r := range runs {
		counts.Add(r.Counts)
		switch r.Outcome {
		case models.OutcomeSuccess:
			succeeded++
		case models.OutcomeUnavailable:
			unavailable++
		default:
			counts.Failed++
			if r.Err != nil {
				errs = append(errs, fmt.Errorf("business %s: %w", r.BusinessID, r.Err))
			}
		}
	}

	switch {
	case len(runs) > 0 && unavailable == len(runs):
		return models.OutcomeUnavailable, counts, runs[0].Err
	case succeeded == 0 && counts.Failed > 0:
		return models.OutcomeFailure, counts, errors.Join(errs...)
	default:
		return models.OutcomeSuccess, counts, errors.Join(errs...)
	}
}

func (c *Coordinator) recordJobHeartbeat(ctx context.Context, source models.Source, started time.Time, batch BatchResult) {
	if c.recorder == nil {
		return
	}
	hb := models.Heartbeat{
		Job:        string(source),
		Source:     source,
		Outcome:    batch.Outcome,
		StartedAt:  started,
		FinishedAt: c.now().UTC(),
	}
	if batch.Err != nil {
		hb.Error = batch.Err.Error()
	}
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	_ = c.recorder.Record(recCtx, hb)
}
