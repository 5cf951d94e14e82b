package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/models"
)

func TestMemoryStore_InsertPostIsUniquePerSource(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	first := &models.Post{Source: models.SourceReddit, ExternalID: "abc", BusinessID: "a"}
	require.NoError(t, store.InsertPost(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CapturedAt.IsZero())

	err := store.InsertPost(ctx, &models.Post{Source: models.SourceReddit, ExternalID: "abc", BusinessID: "b"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// same id on another platform is a different post
	require.NoError(t, store.InsertPost(ctx, &models.Post{Source: models.SourceTwitter, ExternalID: "abc"}))

	exists, err := store.PostExists(ctx, models.SourceReddit, "abc")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Len(t, store.Posts(), 2)
}

func TestMemoryStore_ConcurrentInsertsStoreOnce(t *testing.T) {
	store := NewMemoryStore(nil)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		stored     int
		duplicates int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InsertPost(context.Background(), &models.Post{Source: models.SourceHackerNews, ExternalID: "42"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stored++
			case errors.Is(err, ErrDuplicate):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, stored)
	assert.Equal(t, 19, duplicates)
}

func TestMemoryStore_PendingAndAnalysis(t *testing.T) {
	store := NewMemoryStore([]models.Business{{ID: "a", Active: true}})
	ctx := context.Background()

	var ids []string
	for _, ext := range []string{"1", "2", "3"} {
		p := &models.Post{Source: models.SourceReddit, ExternalID: ext, BusinessID: "a"}
		require.NoError(t, store.InsertPost(ctx, p))
		ids = append(ids, p.ID)
	}

	pending, err := store.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID, "oldest first")
	assert.Equal(t, ids[1], pending[1].ID)

	require.NoError(t, store.AttachAnalysis(ctx, ids[0], models.Analysis{Score: 7}))
	assert.ErrorIs(t, store.AttachAnalysis(ctx, ids[0], models.Analysis{Score: 2}), ErrAlreadyClassified)
	assert.ErrorIs(t, store.AttachAnalysis(ctx, "missing", models.Analysis{}), ErrNotFound)

	a, ok := store.Analysis(ids[0])
	require.True(t, ok)
	assert.Equal(t, 7, a.Score, "first analysis is never overwritten")

	pending, err = store.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID)
}

func TestMemoryStore_PendingSkipsInactiveBusinesses(t *testing.T) {
	store := NewMemoryStore([]models.Business{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertPost(ctx, &models.Post{Source: models.SourceReddit, ExternalID: fmt.Sprintf("old-%d", i), BusinessID: "b"}))
	}
	require.NoError(t, store.InsertPost(ctx, &models.Post{Source: models.SourceReddit, ExternalID: "orphan", BusinessID: "gone"}))
	fresh := &models.Post{Source: models.SourceReddit, ExternalID: "fresh", BusinessID: "a"}
	require.NoError(t, store.InsertPost(ctx, fresh))

	pending, err := store.ListPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
}

func TestMemoryStore_ListBusinessesOnlyActive(t *testing.T) {
	store := NewMemoryStore([]models.Business{
		{ID: "a", Active: true},
		{ID: "b", Active: false},
	})
	businesses, err := store.ListBusinesses(context.Background())
	require.NoError(t, err)
	require.Len(t, businesses, 1)
	assert.Equal(t, "a", businesses[0].ID)
}

func TestMemoryStore_Heartbeats(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	record := func(job string, outcome models.Outcome, at time.Time) {
		require.NoError(t, store.RecordHeartbeat(ctx, models.Heartbeat{Job: job, Outcome: outcome, FinishedAt: at}))
	}
	record("reddit", models.OutcomeSuccess, base)
	record("reddit", models.OutcomeFailure, base.Add(time.Hour))
	record("twitter", models.OutcomeUnavailable, base.Add(2*time.Hour))

	all, err := store.ListHeartbeats(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "twitter", all[0].Job, "newest first")

	reddit, err := store.ListHeartbeats(ctx, "reddit", 1)
	require.NoError(t, err)
	require.Len(t, reddit, 1)
	assert.Equal(t, models.OutcomeFailure, reddit[0].Outcome)

	latest, err := store.LatestHeartbeats(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "reddit", latest[0].Job)
	assert.Equal(t, models.OutcomeFailure, latest[0].Outcome)

	last, err := store.LastSuccess(ctx)
	require.NoError(t, err)
	assert.Equal(t, base, last["reddit"])
	_, ok := last["twitter"]
	assert.False(t, ok)
}
