package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

const searchPage = `<html><body>
<div class="thing" data-fullname="t3_abc" data-author="alice" data-subreddit="logistics" data-timestamp="1767225600000">
  <a class="title" href="/r/logistics/comments/abc/x/">We need better supply chain software</a>
  <div class="expando"><div class="usertext-body"><p>Our spreadsheets are dying.</p></div></div>
  <a class="comments" href="https://old.reddit.com/r/logistics/comments/abc/x/?utm_source=share">12 comments</a>
</div>
<div class="thing" data-fullname="t3_def" data-author="bob" data-subreddit="army">
  <a class="title" href="/r/army/comments/def/y/">Chain of command issues</a>
</div>
<div class="thing" data-fullname="t3_empty"><a class="title"></a></div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	posts, err := ParseSearchResults([]byte(searchPage), now)
	require.NoError(t, err)
	require.Len(t, posts, 2, "items without a title are skipped")

	first := posts[0]
	assert.Equal(t, "t3_abc", first.ExternalID)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "logistics", first.Community)
	assert.Equal(t, "Our spreadsheets are dying.", first.Body)
	assert.Equal(t, "https://www.reddit.com/r/logistics/comments/abc/x/", first.URL)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), first.PostedAt)

	second := posts[1]
	assert.Equal(t, "https://www.reddit.com/r/army/comments/def/y/", second.URL, "falls back to the title link")
	assert.Equal(t, now, second.PostedAt)
}

func TestParseSearchResults_TruncatesBody(t *testing.T) {
	html := fmt.Sprintf(`<div class="thing" data-fullname="t3_long"><a class="title">t</a><div class="usertext-body">%s</div></div>`,
		strings.Repeat("a", 6000))
	posts, err := ParseSearchResults([]byte(html), time.Now())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Len(t, posts[0].Body, maxBodyRunes)
}

func TestParseSearchResults_IDFallbackIsStable(t *testing.T) {
	html := []byte(`<div class="thing" data-author="x"><a class="title">Same title</a></div>`)
	a, err := ParseSearchResults(html, time.Now())
	require.NoError(t, err)
	b, err := ParseSearchResults(html, time.Now())
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.True(t, strings.HasPrefix(a[0].ExternalID, "reddit_"))
	assert.Equal(t, a[0].ExternalID, b[0].ExternalID)
}

func newTestScraper(srv *httptest.Server) *RedditScraper {
	fetcher := scraper.NewFetcher(models.SourceReddit, scraper.FetcherConfig{
		Timeout: time.Second, MaxRetries: 1, BaseDelay: time.Millisecond,
	}, srv.Client(), nil)
	return NewRedditScraper(srv.URL, fetcher, nil)
}

func TestRedditScraper_Fetch(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "new", r.URL.Query().Get("sort"))
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	s := newTestScraper(srv)
	require.NoError(t, s.Available(context.Background()))

	posts, err := s.Fetch(context.Background(), []string{"supply chain software", "freight"}, 10)
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []string{"supply chain software", "freight"}, queries)
	mu.Unlock()
	assert.Len(t, posts, 2, "same posts across keywords are returned once")
}

func TestRedditScraper_FetchHonoursLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	posts, err := newTestScraper(srv).Fetch(context.Background(), []string{"a", "b"}, 1)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestRedditScraper_FetchBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestScraper(srv).Fetch(context.Background(), []string{"a"}, 10)
	require.Error(t, err)
	assert.Equal(t, scraper.KindPermanent, scraper.KindOf(err))
}
