package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/models"
)

type fakeStore struct {
	stored map[string]bool
	calls  int
	err    error
}

func (f *fakeStore) PostExists(_ context.Context, source models.Source, externalID string) (bool, error) {
	f.calls++
	return f.stored[key(source, externalID)], f.err
}

func TestIsNew_FallsBackToStore(t *testing.T) {
	store := &fakeStore{stored: map[string]bool{key(models.SourceReddit, "t3_old"): true}}
	d := NewDeduplicator(store, time.Hour)
	ctx := context.Background()

	isNew, err := d.IsNew(ctx, models.SourceReddit, "t3_old")
	require.NoError(t, err)
	assert.False(t, isNew)

	// second lookup is served from the cache
	isNew, err = d.IsNew(ctx, models.SourceReddit, "t3_old")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 1, store.calls)

	isNew, err = d.IsNew(ctx, models.SourceReddit, "t3_new")
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestIsNew_SourceScoped(t *testing.T) {
	d := NewDeduplicator(nil, time.Hour)
	d.MarkSeen(models.SourceTwitter, "1")

	isNew, err := d.IsNew(context.Background(), models.SourceTwitter, "1")
	require.NoError(t, err)
	assert.False(t, isNew)

	isNew, err = d.IsNew(context.Background(), models.SourceHackerNews, "1")
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestIsNew_ExpiredEntriesAreRechecked(t *testing.T) {
	store := &fakeStore{stored: map[string]bool{}}
	d := NewDeduplicator(store, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.MarkSeen(models.SourceReddit, "x")
	now = now.Add(2 * time.Hour)

	isNew, err := d.IsNew(context.Background(), models.SourceReddit, "x")
	require.NoError(t, err)
	assert.True(t, isNew, "store no longer has it and the cache entry expired")
	assert.Equal(t, 1, store.calls)
}

func TestIsNew_StoreError(t *testing.T) {
	d := NewDeduplicator(&fakeStore{err: errors.New("db down")}, time.Hour)
	_, err := d.IsNew(context.Background(), models.SourceReddit, "x")
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	d := NewDeduplicator(nil, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.MarkSeen(models.SourceReddit, "a")
	now = now.Add(30 * time.Minute)
	d.MarkSeen(models.SourceReddit, "b")
	now = now.Add(45 * time.Minute)

	assert.Equal(t, 1, d.Prune())
	assert.Equal(t, 1, d.Len())
}
