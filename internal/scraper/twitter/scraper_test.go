package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

func newTestScraper(t *testing.T, token string, handler http.HandlerFunc) *TwitterScraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fetcher := scraper.NewFetcher(models.SourceTwitter, scraper.FetcherConfig{
		Timeout: time.Second, MaxRetries: 2, BaseDelay: time.Millisecond,
	}, srv.Client(), nil)
	return NewTwitterScraper(srv.URL, token, fetcher, nil)
}

func TestQuery(t *testing.T) {
	assert.Equal(t, `"supply chain software" -is:retweet`, Query("supply  chain software"))
	assert.Equal(t, `freight -is:retweet`, Query("freight"))
}

func TestTwitterScraper_UnavailableWithoutToken(t *testing.T) {
	s := newTestScraper(t, "", func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})
	err := s.Available(context.Background())
	require.Error(t, err)
	assert.True(t, scraper.IsUnavailable(err))
	assert.Contains(t, err.Error(), "not implemented")
}

func TestTwitterScraper_Fetch(t *testing.T) {
	s := newTestScraper(t, "tw-token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer tw-token", r.Header.Get("Authorization"))
		assert.Equal(t, "10", r.URL.Query().Get("max_results"), "limit is raised to the API minimum")
		fmt.Fprint(w, `{
		  "data":[
		    {"id":"1","text":"anyone know good supply chain software?","author_id":"u1","created_at":"2026-01-01T00:00:00.000Z"},
		    {"id":"2","text":"no author","author_id":"u9","created_at":"2026-01-02T00:00:00.000Z"}
		  ],
		  "includes":{"users":[{"id":"u1","username":"opsguy"}]}
		}`)
	})

	posts, err := s.Fetch(context.Background(), []string{"supply chain software"}, 5)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "twitter_1", posts[0].ExternalID)
	assert.Equal(t, "opsguy", posts[0].Author)
	assert.Equal(t, "https://x.com/opsguy/status/1", posts[0].URL)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), posts[0].PostedAt)
	assert.Equal(t, "https://twitter.com/i/web/status/2", posts[1].URL)
}

func TestTwitterScraper_RateLimitedThenOK(t *testing.T) {
	var calls atomic.Int32
	s := newTestScraper(t, "tw-token", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"3","text":"hi"}]}`)
	})

	posts, err := s.Fetch(context.Background(), []string{"hi"}, 10)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTwitterScraper_RejectedToken(t *testing.T) {
	s := newTestScraper(t, "expired", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := s.Fetch(context.Background(), []string{"hi", "there"}, 10)
	assert.Equal(t, scraper.KindPermanent, scraper.KindOf(err))
}
