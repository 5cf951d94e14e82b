package filter

import (
	"time"

	"go-lead-radar/internal/scraper"
)

// Recent keeps candidates posted within maxAge of now. Candidates without a
// known date are kept. A non-positive maxAge keeps everything.
func Recent(candidates []scraper.RawCandidate, now time.Time, maxAge time.Duration) ([]scraper.RawCandidate, int) {
	if maxAge <= 0 {
		return candidates, 0
	}
	cutoff := now.Add(-maxAge)
	kept := make([]scraper.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.PostedAt.IsZero() && c.PostedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, c)
	}
	return kept, len(candidates) - len(kept)
}
