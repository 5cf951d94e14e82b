package dedup

import (
	"context"
	"sync"
	"time"

	"go-lead-radar/internal/models"
)

// ExistenceChecker is the storage lookup behind the cache.
type ExistenceChecker interface {
	PostExists(ctx context.Context, source models.Source, externalID string) (bool, error)
}

// Deduplicator remembers (source, external id) pairs already stored. The
// cache only saves storage round trips; the unique constraint on insert is
// what actually prevents duplicate rows.
type Deduplicator struct {
	mu    sync.Mutex
	store ExistenceChecker
	ttl   time.Duration
	seen  map[string]time.Time
	now   func() time.Time
}

func NewDeduplicator(store ExistenceChecker, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Deduplicator{
		store: store,
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		now:   time.Now,
	}
}

func key(source models.Source, externalID string) string {
	return string(source) + "|" + externalID
}

// IsNew reports whether the pair has not been stored yet.
func (d *Deduplicator) IsNew(ctx context.Context, source models.Source, externalID string) (bool, error) {
	k := key(source, externalID)

	d.mu.Lock()
	at, cached := d.seen[k]
	if cached && d.now().Sub(at) > d.ttl {
		delete(d.seen, k)
		cached = false
	}
	d.mu.Unlock()
	if cached {
		return false, nil
	}

	if d.store == nil {
		return true, nil
	}
	exists, err := d.store.PostExists(ctx, source, externalID)
	if err != nil {
		return false, err
	}
	if exists {
		d.MarkSeen(source, externalID)
	}
	return !exists, nil
}

// MarkSeen records a pair as stored.
func (d *Deduplicator) MarkSeen(source models.Source, externalID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key(source, externalID)] = d.now()
}

// Prune drops expired entries and returns how many were removed.
func (d *Deduplicator) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-d.ttl)
	removed := 0
	for k, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, k)
			removed++
		}
	}
	return removed
}

func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
