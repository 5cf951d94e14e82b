package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/errgroup"

	"go-lead-radar/internal/ai"
	"go-lead-radar/internal/database"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

// Store is the slice of storage the stage reads and writes.
type Store interface {
	database.BusinessSource
	ListPending(ctx context.Context, limit int) ([]models.Post, error)
	AttachAnalysis(ctx context.Context, postID string, analysis models.Analysis) error
}

type HeartbeatRecorder interface {
	Record(ctx context.Context, hb models.Heartbeat) error
}

// Alerter is told about analyses at or above the alert threshold.
type Alerter interface {
	NotifyOpportunity(ctx context.Context, post models.Post, business models.Business, analysis models.Analysis) error
}

type Config struct {
	BatchSize      int
	Workers        int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	CallTimeout    time.Duration
	RunTimeout     time.Duration
	AlertThreshold int
}

func (c *Config) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = 15 * c.BaseDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
}

// RunResult summarises one classification batch.
type RunResult struct {
	Outcome models.Outcome
	Counts  models.Counts
	Err     error
}

// Stage scores pending posts with a language model and attaches the analysis.
type Stage struct {
	client   ai.Client
	store    Store
	recorder HeartbeatRecorder
	alerter  Alerter
	cfg      Config
	retry    retrypolicy.RetryPolicy[json.RawMessage]
	logger   logging.Logger
	now      func() time.Time
}

// NewStage wires the stage. recorder and alerter may be nil.
func NewStage(client ai.Client, store Store, recorder HeartbeatRecorder, alerter Alerter, cfg Config, logger logging.Logger) *Stage {
	cfg.withDefaults()
	if logger == nil {
		logger = logging.Discard()
	}

	policy := retrypolicy.NewBuilder[json.RawMessage]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ json.RawMessage, err error) bool {
			// a malformed answer will come back malformed again
			return ai.IsTransient(err)
		}).
		ReturnLastFailure().
		Build()

	return &Stage{
		client:   client,
		store:    store,
		recorder: recorder,
		alerter:  alerter,
		cfg:      cfg,
		retry:    policy,
		logger:   logger.WithField("job", models.JobClassifier),
		now:      time.Now,
	}
}

// Classify asks the model about one post. It returns the analysis, the number
// of retries spent and a *ai.ModelError when no valid analysis was produced.
func (s *Stage) Classify(ctx context.Context, post models.Post, business models.Business) (models.Analysis, int, error) {
	prompt := BuildPrompt(post, business)

	attempts := 0
	raw, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (json.RawMessage, error) {
		attempts++
		if attempts > 1 {
			s.logger.WithFields(logging.Fields{"post_id": post.ID, "attempt": attempts}).Warn("🔁 Retrying model call")
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()
		return s.client.Complete(callCtx, prompt, AnalysisSchema)
	})
	retries := max(attempts-1, 0)
	if err != nil {
		var me *ai.ModelError
		if !errors.As(err, &me) {
			err = &ai.ModelError{Kind: ai.KindTransient, Err: err}
		}
		return models.Analysis{}, retries, err
	}

	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return models.Analysis{}, retries, err
	}
	analysis.PostID = post.ID
	analysis.Model = s.client.Model()
	analysis.ClassifiedAt = s.now().UTC()
	return analysis, retries, nil
}

// Run classifies up to limit pending posts (the configured batch size when
// limit <= 0). Failures stay inside the result; exactly one heartbeat is recorded.
func (s *Stage) Run(ctx context.Context, limit int) (result RunResult) {
	startedAt := s.now().UTC()
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = models.OutcomeFailure
			result.Err = fmt.Errorf("classifier panic: %v", r)
		}
		s.recordHeartbeat(ctx, startedAt, result)
	}()

	businesses, err := s.store.ListBusinesses(runCtx)
	if err != nil {
		return s.finish(runCtx, result, fmt.Errorf("list businesses: %w", err))
	}
	byID := make(map[string]models.Business, len(businesses))
	for _, b := range businesses {
		byID[b.ID] = b
	}

	pending, err := s.store.ListPending(runCtx, limit)
	if err != nil {
		return s.finish(runCtx, result, fmt.Errorf("list pending: %w", err))
	}
	result.Counts.Fetched = len(pending)
	if len(pending) == 0 {
		s.logger.Info("💤 No pending posts")
		return s.finish(runCtx, result, nil)
	}
	s.logger.WithField("pending", len(pending)).Info("🧠 Classifying pending posts")

	var (
		mu      sync.Mutex
		lastErr error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for _, post := range pending {
		if runCtx.Err() != nil {
			break
		}
		post := post
		g.Go(func() error {
			c, err := s.classifyOne(runCtx, post, byID)
			mu.Lock()
			result.Counts.Add(c)
			if err != nil {
				lastErr = err
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return s.finish(runCtx, result, lastErr)
}

func (s *Stage) classifyOne(ctx context.Context, post models.Post, businesses map[string]models.Business) (models.Counts, error) {
	var c models.Counts
	log := s.logger.WithFields(logging.Fields{"post_id": post.ID, "source": string(post.Source)})

	business, ok := businesses[post.BusinessID]
	if !ok {
		log.WithField("business", post.BusinessID).Warn("⚠️ Business no longer active, skipping post")
		c.Skipped++
		return c, nil
	}

	analysis, retries, err := s.Classify(ctx, post, business)
	c.Retries += retries
	if err != nil {
		log.WithError(err).WithField("kind", ai.KindOf(err)).Warn("❌ Classification failed, post stays pending")
		c.Failed++
		return c, fmt.Errorf("post %s: %w", post.ID, err)
	}

	switch err := s.store.AttachAnalysis(ctx, post.ID, analysis); {
	case errors.Is(err, database.ErrAlreadyClassified):
		log.Debug("Post already classified, skipping")
		c.Skipped++
		return c, nil
	case errors.Is(err, database.ErrNotFound):
		log.Warn("⚠️ Post vanished before analysis was written")
		c.Skipped++
		return c, nil
	case err != nil:
		log.WithError(err).Error("❌ Failed to store analysis")
		c.Failed++
		return c, fmt.Errorf("post %s: store analysis: %w", post.ID, err)
	}

	c.Classified++
	log.WithFields(logging.Fields{"score": analysis.Score, "post_type": analysis.PostType}).Info("✅ Classified post")

	if s.alerter != nil && s.cfg.AlertThreshold > 0 && analysis.Score >= s.cfg.AlertThreshold {
		if err := s.alerter.NotifyOpportunity(ctx, post, business, analysis); err != nil {
			log.WithError(err).Warn("⚠️ Failed to send opportunity alert")
		}
	}
	return c, nil
}

// finish derives the outcome. A batch where every attempted post failed is a
// failure; partial failures still count as success and show up in the counts.
func (s *Stage) finish(runCtx context.Context, result RunResult, err error) RunResult {
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Outcome = models.OutcomeTimeout
		result.Err = fmt.Errorf("classification timed out after %s", s.cfg.RunTimeout)
	case err != nil && result.Counts.Classified == 0 && result.Counts.Skipped == 0:
		result.Outcome = models.OutcomeFailure
		result.Err = err
	default:
		result.Outcome = models.OutcomeSuccess
		result.Err = err
	}
	return result
}

func (s *Stage) recordHeartbeat(ctx context.Context, startedAt time.Time, result RunResult) {
	hb := models.Heartbeat{
		Job:        models.JobClassifier,
		Outcome:    result.Outcome,
		Counts:     result.Counts,
		StartedAt:  startedAt,
		FinishedAt: s.now().UTC(),
	}
	if result.Err != nil {
		hb.Error = result.Err.Error()
	}

	s.logger.WithFields(logging.Fields{
		"outcome":    result.Outcome,
		"classified": result.Counts.Classified,
		"failed":     result.Counts.Failed,
		"retries":    result.Counts.Retries,
		"skipped":    result.Counts.Skipped,
	}).Info("🏁 Classification run finished")

	if s.recorder == nil {
		return
	}
	// the run context may already be cancelled; the heartbeat must still land
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.recorder.Record(recCtx, hb); err != nil {
		s.logger.WithError(err).Error("❌ Failed to record heartbeat")
	}
}
