package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/textutil"
)

const maxErrorRunes = 1000

// HeartbeatWriter is the append-only storage behind the recorder.
type HeartbeatWriter interface {
	RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error
}

// Recorder appends one heartbeat per run. It never reads before writing, so
// concurrent jobs cannot contend on it.
type Recorder struct {
	store   HeartbeatWriter
	metrics *Metrics
	logger  logging.Logger
	now     func() time.Time
}

func NewRecorder(store HeartbeatWriter, metrics *Metrics, logger logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// Record fills ID and timestamps when missing and appends the heartbeat.
func (r *Recorder) Record(ctx context.Context, hb models.Heartbeat) error {
	if hb.ID == "" {
		hb.ID = uuid.NewString()
	}
	if hb.FinishedAt.IsZero() {
		hb.FinishedAt = r.now().UTC()
	}
	if hb.StartedAt.IsZero() {
		hb.StartedAt = hb.FinishedAt
	}
	if hb.Outcome == "" {
		hb.Outcome = models.OutcomeFailure
	}
	hb.Error = textutil.Truncate(hb.Error, maxErrorRunes)

	r.metrics.Observe(hb)

	if err := r.store.RecordHeartbeat(ctx, hb); err != nil {
		r.logger.WithError(err).WithFields(logging.Fields{"job": hb.Job, "outcome": hb.Outcome}).
			Error("❌ Failed to record heartbeat")
		return fmt.Errorf("record heartbeat %s: %w", hb.Job, err)
	}
	return nil
}
