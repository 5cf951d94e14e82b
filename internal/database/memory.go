package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-lead-radar/internal/models"
)

// MemoryStore is an in-process Store with the same uniqueness guarantees as
// the PostgreSQL repository. Data is lost when the process exits.
type MemoryStore struct {
	mu         sync.Mutex
	businesses []models.Business
	posts      []models.Post
	byKey      map[string]int // source|external id -> index into posts
	analyses   map[string]models.Analysis
	heartbeats []models.Heartbeat
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(businesses []models.Business) *MemoryStore {
	return &MemoryStore{
		businesses: businesses,
		byKey:      make(map[string]int),
		analyses:   make(map[string]models.Analysis),
		now:        time.Now,
	}
}

func postKey(source models.Source, externalID string) string {
	return string(source) + "|" + externalID
}

func (m *MemoryStore) ListBusinesses(_ context.Context) ([]models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Business, 0, len(m.businesses))
	for _, b := range m.businesses {
		if b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertPost(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := postKey(post.Source, post.ExternalID)
	if _, exists := m.byKey[key]; exists {
		return ErrDuplicate
	}
	post.ID = uuid.NewString()
	// strictly increasing capture times keep oldest-first ordering stable
	post.CapturedAt = m.now()
	if n := len(m.posts); n > 0 && !post.CapturedAt.After(m.posts[n-1].CapturedAt) {
		post.CapturedAt = m.posts[n-1].CapturedAt.Add(time.Nanosecond)
	}
	m.byKey[key] = len(m.posts)
	m.posts = append(m.posts, *post)
	return nil
}

func (m *MemoryStore) PostExists(_ context.Context, source models.Source, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.byKey[postKey(source, externalID)]
	return exists, nil
}

func (m *MemoryStore) ListPending(_ context.Context, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[string]bool, len(m.businesses))
	for _, b := range m.businesses {
		active[b.ID] = b.Active
	}

	var out []models.Post
	for _, p := range m.posts {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, done := m.analyses[p.ID]; done || !active[p.BusinessID] {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) AttachAnalysis(_ context.Context, postID string, analysis models.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	for _, p := range m.posts {
		if p.ID == postID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}
	if _, exists := m.analyses[postID]; exists {
		return ErrAlreadyClassified
	}
	analysis.PostID = postID
	m.analyses[postID] = analysis
	return nil
}

// Analysis returns the stored analysis of a post.
func (m *MemoryStore) Analysis(postID string) (models.Analysis, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[postID]
	return a, ok
}

// Posts returns a copy of every stored post in insertion order.
func (m *MemoryStore) Posts() []models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Post(nil), m.posts...)
}

func (m *MemoryStore) RecordHeartbeat(_ context.Context, hb models.Heartbeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats = append(m.heartbeats, hb)
	return nil
}

func (m *MemoryStore) ListHeartbeats(_ context.Context, job string, limit int) ([]models.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Heartbeat
	for i := len(m.heartbeats) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if job == "" || m.heartbeats[i].Job == job {
			out = append(out, m.heartbeats[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestHeartbeats(_ context.Context) ([]models.Heartbeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	latest := make(map[string]models.Heartbeat)
	for _, hb := range m.heartbeats {
		if cur, ok := latest[hb.Job]; !ok || !hb.FinishedAt.Before(cur.FinishedAt) {
			latest[hb.Job] = hb
		}
	}
	out := make([]models.Heartbeat, 0, len(latest))
	for _, hb := range latest {
		out = append(out, hb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out, nil
}

func (m *MemoryStore) LastSuccess(_ context.Context) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time)
	for _, hb := range m.heartbeats {
		if hb.Outcome != models.OutcomeSuccess {
			continue
		}
		if hb.FinishedAt.After(out[hb.Job]) {
			out[hb.Job] = hb.FinishedAt
		}
	}
	return out, nil
}
