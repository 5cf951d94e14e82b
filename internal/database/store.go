package database

import (
	"context"
	"errors"
	"time"

	"go-lead-radar/internal/models"
)

var (
	// ErrDuplicate is returned by InsertPost when (source, external id) already exists.
	// It is an expected outcome, not a fault.
	ErrDuplicate = errors.New("post already exists")
	// ErrAlreadyClassified is returned by AttachAnalysis when the post has an analysis.
	ErrAlreadyClassified = errors.New("post already classified")
	ErrNotFound          = errors.New("not found")
)

// BusinessSource is the read-only view of businesses and their keywords.
type BusinessSource interface {
	// ListBusinesses returns active businesses with their keywords.
	ListBusinesses(ctx context.Context) ([]models.Business, error)
}

type PostStore interface {
	// InsertPost persists a new post, filling ID and CapturedAt. Returns ErrDuplicate
	// when the (source, external id) pair is already stored.
	InsertPost(ctx context.Context, post *models.Post) error
	PostExists(ctx context.Context, source models.Source, externalID string) (bool, error)
	// ListPending returns posts of active businesses without an analysis,
	// oldest captured first.
	ListPending(ctx context.Context, limit int) ([]models.Post, error)
	// AttachAnalysis writes the analysis once; later writes return ErrAlreadyClassified.
	AttachAnalysis(ctx context.Context, postID string, analysis models.Analysis) error
}

// HeartbeatStore is append-only from the core's point of view.
type HeartbeatStore interface {
	RecordHeartbeat(ctx context.Context, hb models.Heartbeat) error
	// ListHeartbeats returns the newest heartbeats first; an empty job lists all jobs.
	ListHeartbeats(ctx context.Context, job string, limit int) ([]models.Heartbeat, error)
	// LatestHeartbeats returns the newest heartbeat of every job.
	LatestHeartbeats(ctx context.Context) ([]models.Heartbeat, error)
	// LastSuccess returns, per job, the finish time of its newest successful run.
	LastSuccess(ctx context.Context) (map[string]time.Time, error)
}

type Store interface {
	BusinessSource
	PostStore
	HeartbeatStore
}
