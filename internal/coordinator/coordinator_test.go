package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/database"
	"go-lead-radar/internal/dedup"
	"go-lead-radar/internal/filter"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

// fakeAdapter returns canned candidates, or an error, per business keyword set.
type fakeAdapter struct {
	source      models.Source
	unavailable bool
	candidates  []scraper.RawCandidate
	errFor      map[string]error // first keyword -> error
	panicFor    string
	block       bool

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() models.Source { return f.source }

func (f *fakeAdapter) Available(context.Context) error {
	if f.unavailable {
		return scraper.Unavailable(f.source, "not implemented: token missing")
	}
	return nil
}

func (f *fakeAdapter) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, scraper.Transient(f.source, ctx.Err())
	}
	if keywords[0] == f.panicFor {
		panic("parser exploded")
	}
	if err, ok := f.errFor[keywords[0]]; ok {
		return nil, err
	}
	if limit > 0 && len(f.candidates) > limit {
		return f.candidates[:limit], nil
	}
	return f.candidates, nil
}

func (f *fakeAdapter) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type storeRecorder struct{ store *database.MemoryStore }

func (r storeRecorder) Record(ctx context.Context, hb models.Heartbeat) error {
	return r.store.RecordHeartbeat(ctx, hb)
}

func business(id string, keywords ...string) models.Business {
	b := models.Business{ID: id, Slug: id, Name: id, Active: true}
	for _, kw := range keywords {
		b.Keywords = append(b.Keywords, models.Keyword{BusinessID: id, Text: kw})
	}
	return b
}

func newCoordinator(store *database.MemoryStore, cfg Config) *Coordinator {
	return New(store, filter.NewMatcher(filter.PolicyAll), dedup.NewDeduplicator(store, time.Hour),
		storeRecorder{store}, cfg, logging.Discard())
}

var freightPosts = []scraper.RawCandidate{
	{ExternalID: "t3_a", Title: "Freight rates doubled", URL: "https://r/a"},
	{ExternalID: "t3_b", Title: "My cat", Body: "unrelated", URL: "https://r/b"},
	{ExternalID: "t3_c", Body: "any freight broker recommendations?", URL: "https://r/c"},
}

func TestRun_StoresFilteredCandidates(t *testing.T) {
	store := database.NewMemoryStore(nil)
	c := newCoordinator(store, Config{})
	adapter := &fakeAdapter{source: models.SourceReddit, candidates: freightPosts}

	res := c.Run(context.Background(), business("acme", "freight"), adapter, 10)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.Counts{Fetched: 3, Kept: 2, Stored: 2, Skipped: 1}, res.Counts)

	posts := store.Posts()
	require.Len(t, posts, 2)
	assert.Equal(t, "t3_a", posts[0].ExternalID, "persisted in filter order")
	assert.Equal(t, "t3_c", posts[1].ExternalID)
	assert.Equal(t, []string{"freight"}, posts[0].Keywords)
	assert.Equal(t, "acme", posts[0].BusinessID)

	hbs, _ := store.ListHeartbeats(context.Background(), "reddit", 0)
	require.Len(t, hbs, 1)
	assert.Equal(t, "acme", hbs[0].BusinessID)
	assert.Equal(t, 2, hbs[0].Counts.Stored)
}

func TestRun_SecondRunCountsDuplicates(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceReddit, candidates: freightPosts}
	b := business("acme", "freight")

	newCoordinator(store, Config{}).Run(context.Background(), b, adapter, 10)
	// fresh coordinator: empty dedup cache, the store answers
	res := newCoordinator(store, Config{}).Run(context.Background(), b, adapter, 10)

	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 0, res.Counts.Stored)
	assert.Equal(t, 2, res.Counts.Duplicates)
	assert.Len(t, store.Posts(), 2)
}

func TestRun_InsertDuplicateIsNotAFailure(t *testing.T) {
	store := database.NewMemoryStore(nil)
	// no dedup cache: the unique constraint must catch the repeat
	c := New(store, nil, nil, storeRecorder{store}, Config{}, nil)
	adapter := &fakeAdapter{source: models.SourceHackerNews, candidates: []scraper.RawCandidate{
		{ExternalID: "hn_1", Title: "freight tech"},
		{ExternalID: "hn_1", Title: "freight tech again"},
	}}

	res := c.Run(context.Background(), business("acme", "freight"), adapter, 0)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, res.Counts.Stored)
	assert.Equal(t, 1, res.Counts.Duplicates)
}

func TestRun_Unavailable(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceTwitter, unavailable: true}

	res := newCoordinator(store, Config{}).Run(context.Background(), business("acme", "freight"), adapter, 10)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, models.OutcomeUnavailable, res.Outcome)
	assert.Zero(t, adapter.fetchCalls())

	hbs, _ := store.ListHeartbeats(context.Background(), "twitter", 0)
	require.Len(t, hbs, 1)
	assert.Equal(t, models.OutcomeUnavailable, hbs[0].Outcome)
	assert.Contains(t, hbs[0].Error, "not implemented")
}

func TestRun_ZeroKeywords(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceReddit, candidates: freightPosts}

	res := newCoordinator(store, Config{}).Run(context.Background(), business("empty"), adapter, 10)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, models.Counts{}, res.Counts)
	assert.Zero(t, adapter.fetchCalls())
	hbs, _ := store.ListHeartbeats(context.Background(), "", 0)
	assert.Len(t, hbs, 1)
}

func TestRun_Timeout(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceTikTok, block: true}

	res := newCoordinator(store, Config{RunTimeout: 20 * time.Millisecond}).
		Run(context.Background(), business("acme", "freight"), adapter, 10)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, models.OutcomeTimeout, res.Outcome)
	hbs, _ := store.ListHeartbeats(context.Background(), "tiktok", 0)
	require.Len(t, hbs, 1)
	assert.Equal(t, models.OutcomeTimeout, hbs[0].Outcome)
}

func TestRun_PanicIsRecovered(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceReddit, panicFor: "boom"}

	res := newCoordinator(store, Config{}).Run(context.Background(), business("acme", "boom"), adapter, 10)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, models.OutcomeFailure, res.Outcome)
	assert.ErrorContains(t, res.Err, "parser exploded")
	hbs, _ := store.ListHeartbeats(context.Background(), "reddit", 0)
	assert.Len(t, hbs, 1)
}

func TestRunSource_IsolatesFailures(t *testing.T) {
	store := database.NewMemoryStore([]models.Business{
		business("acme", "freight"),
		business("broken", "auth"),
		business("crashy", "boom"),
		business("other", "freight", "broker"),
	})
	adapter := &fakeAdapter{
		source:     models.SourceReddit,
		candidates: freightPosts,
		errFor:     map[string]error{"auth": scraper.Permanent(models.SourceReddit, errors.New("401 unauthorized"))},
		panicFor:   "boom",
	}

	batch := newCoordinator(store, Config{Workers: 2}).RunSource(context.Background(), adapter, 10)

	assert.Equal(t, models.OutcomeSuccess, batch.Outcome, "partial failure is the steady state")
	require.Len(t, batch.Runs, 4)
	byBusiness := map[string]RunResult{}
	for _, r := range batch.Runs {
		byBusiness[r.BusinessID] = r
	}
	assert.Equal(t, models.OutcomeSuccess, byBusiness["acme"].Outcome)
	assert.Equal(t, models.OutcomeFailure, byBusiness["broken"].Outcome)
	assert.Equal(t, models.OutcomeFailure, byBusiness["crashy"].Outcome)
	assert.Equal(t, models.OutcomeSuccess, byBusiness["other"].Outcome)
	assert.Equal(t, 2, batch.Counts.Failed)
	assert.Equal(t, 2, batch.Counts.Stored, "the first business to store a post wins it")

	hbs, _ := store.ListHeartbeats(context.Background(), "reddit", 0)
	assert.Len(t, hbs, 4, "one heartbeat per business run")
	assert.ErrorContains(t, batch.Err, "401 unauthorized")
}

func TestRunSource_AllUnavailable(t *testing.T) {
	store := database.NewMemoryStore([]models.Business{business("a", "x"), business("b", "y")})
	adapter := &fakeAdapter{source: models.SourceInstagram, unavailable: true}

	batch := newCoordinator(store, Config{}).RunSource(context.Background(), adapter, 0)
	assert.Equal(t, models.OutcomeUnavailable, batch.Outcome)
}

func TestRunSource_NoBusinesses(t *testing.T) {
	store := database.NewMemoryStore(nil)
	adapter := &fakeAdapter{source: models.SourceHackerNews}

	batch := newCoordinator(store, Config{}).RunSource(context.Background(), adapter, 0)
	assert.Equal(t, models.OutcomeSuccess, batch.Outcome)
	assert.Zero(t, adapter.fetchCalls())

	hbs, _ := store.ListHeartbeats(context.Background(), "hackernews", 0)
	require.Len(t, hbs, 1)
	assert.Empty(t, hbs[0].BusinessID)
}

type brokenBusinesses struct{ *database.MemoryStore }

func (brokenBusinesses) ListBusinesses(context.Context) ([]models.Business, error) {
	return nil, errors.New("connection refused")
}

func TestRunSource_ListFailureRecordsJobHeartbeat(t *testing.T) {
	mem := database.NewMemoryStore(nil)
	c := New(brokenBusinesses{mem}, nil, nil, storeRecorder{mem}, Config{}, nil)

	batch := c.RunSource(context.Background(), &fakeAdapter{source: models.SourceReddit}, 0)
	assert.Equal(t, models.OutcomeFailure, batch.Outcome)

	hbs, _ := mem.ListHeartbeats(context.Background(), "reddit", 0)
	require.Len(t, hbs, 1)
	assert.Equal(t, models.OutcomeFailure, hbs[0].Outcome)
	assert.Contains(t, hbs[0].Error, "connection refused")
}

func TestRun_DropsOldCandidates(t *testing.T) {
	store := database.NewMemoryStore(nil)
	c := newCoordinator(store, Config{MaxAge: 7 * 24 * time.Hour})
	adapter := &fakeAdapter{source: models.SourceHackerNews, candidates: []scraper.RawCandidate{
		{ExternalID: "hn_old", Title: "freight startup", PostedAt: time.Now().Add(-30 * 24 * time.Hour)},
		{ExternalID: "hn_new", Title: "freight startup", PostedAt: time.Now().Add(-time.Hour)},
	}}

	res := c.Run(context.Background(), business("acme", "freight"), adapter, 10)
	assert.Equal(t, models.Counts{Fetched: 2, Kept: 1, Stored: 1, Skipped: 1}, res.Counts)
}
