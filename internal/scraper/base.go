// Define an interface for all source adapters
// The coordinator only depends on Adapter, never on a concrete source

package scraper

import (
	"context"
	"strings"
	"time"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
)

// RawCandidate is a fetched item in source-neutral shape, before filtering.
type RawCandidate struct {
	ExternalID string
	Author     string
	Title      string
	Body       string
	URL        string
	Community  string
	PostedAt   time.Time
}

// Text is what the relevance filter matches against.
func (c RawCandidate) Text() string {
	return strings.TrimSpace(c.Title + " " + c.Body)
}

// Adapter defines what every platform adapter must implement
type Adapter interface {
	// Name is the platform the adapter reads from
	Name() models.Source

	// Available returns nil when the adapter can operate, or an unavailable
	// *SourceError (missing credentials, browser disabled, ...).
	Available(ctx context.Context) error

	// Fetch returns at most limit candidates for the keywords. Errors are
	// *SourceError values classified as transient or permanent.
	Fetch(ctx context.Context, keywords []string, limit int) ([]RawCandidate, error)
}

// KeywordFetch fetches candidates for a single keyword.
type KeywordFetch func(ctx context.Context, keyword string) ([]RawCandidate, error)

// CollectPerKeyword runs fetch for each keyword until limit candidates are
// gathered, dropping repeated external ids. A permanent error stops the run;
// transient errors on some keywords are tolerated as long as one keyword
// succeeds.
func CollectPerKeyword(ctx context.Context, keywords []string, limit int, logger logging.Logger, fetch KeywordFetch) ([]RawCandidate, error) {
	var (
		out       []RawCandidate
		seen      = make(map[string]bool)
		lastErr   error
		succeeded int
	)
	for _, kw := range keywords {
		if limit > 0 && len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		found, err := fetch(ctx, kw)
		if err != nil {
			if !IsTransient(err) {
				return out, err
			}
			logger.WithError(err).WithField("keyword", kw).Warn("⚠️ Keyword search failed, continuing")
			lastErr = err
			continue
		}
		succeeded++

		for _, c := range found {
			if c.ExternalID == "" || seen[c.ExternalID] {
				continue
			}
			seen[c.ExternalID] = true
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		logger.WithField("keyword", kw).Debugf("🔎 %d results", len(found))
	}

	if succeeded == 0 && lastErr != nil {
		return out, lastErr
	}
	return out, nil
}

type disabledAdapter struct {
	source models.Source
}

// Disabled returns an adapter that always reports itself unavailable. Used for
// sources switched off in config so they still show up in health reports.
func Disabled(source models.Source) Adapter {
	return disabledAdapter{source: source}
}

func (d disabledAdapter) Name() models.Source { return d.source }

func (d disabledAdapter) Available(context.Context) error {
	return Unavailable(d.source, "disabled in config")
}

func (d disabledAdapter) Fetch(context.Context, []string, int) ([]RawCandidate, error) {
	return nil, Unavailable(d.source, "disabled in config")
}
