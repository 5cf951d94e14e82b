package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"

	// recent search accepts 10..100 results per page
	minResults = 10
	maxResults = 100
)

type searchResponse struct {
	Data []struct {
		ID        string    `json:"id"`
		Text      string    `json:"text"`
		AuthorID  string    `json:"author_id"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
}

// TwitterScraper queries the X API v2 recent search endpoint with an app
// bearer token.
type TwitterScraper struct {
	baseURL string
	token   string
	fetcher *scraper.Fetcher
	logger  logging.Logger
}

func NewTwitterScraper(baseURL, token string, fetcher *scraper.Fetcher, logger logging.Logger) *TwitterScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TwitterScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		fetcher: fetcher,
		logger:  logger.WithField("source", string(models.SourceTwitter)),
	}
}

func (s *TwitterScraper) Name() models.Source {
	return models.SourceTwitter
}

func (s *TwitterScraper) Available(context.Context) error {
	if s.token == "" {
		return scraper.Unavailable(models.SourceTwitter, "not implemented: TWITTER_BEARER_TOKEN is not configured")
	}
	return nil
}

func (s *TwitterScraper) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	if err := s.Available(ctx); err != nil {
		return nil, err
	}
	return scraper.CollectPerKeyword(ctx, keywords, limit, s.logger, func(ctx context.Context, keyword string) ([]scraper.RawCandidate, error) {
		return s.search(ctx, keyword, limit)
	})
}

// Query builds the search expression: phrases are quoted, retweets dropped.
func Query(keyword string) string {
	kw := strings.Join(strings.Fields(keyword), " ")
	if strings.Contains(kw, " ") {
		kw = strconv.Quote(kw)
	}
	return kw + " -is:retweet"
}

func (s *TwitterScraper) search(ctx context.Context, keyword string, limit int) ([]scraper.RawCandidate, error) {
	n := min(max(limit, minResults), maxResults)

	q := url.Values{}
	q.Set("query", Query(keyword))
	q.Set("max_results", strconv.Itoa(n))
	q.Set("tweet.fields", "created_at,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "username")

	header := http.Header{"Authorization": []string{"Bearer " + s.token}}
	var resp searchResponse
	if err := s.fetcher.GetJSON(ctx, s.baseURL+"/tweets/search/recent?"+q.Encode(), header, &resp); err != nil {
		return nil, err
	}

	usernames := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		usernames[u.ID] = u.Username
	}

	out := make([]scraper.RawCandidate, 0, len(resp.Data))
	for _, tw := range resp.Data {
		if tw.ID == "" {
			continue
		}
		author := usernames[tw.AuthorID]
		link := "https://twitter.com/i/web/status/" + tw.ID
		if author != "" {
			link = fmt.Sprintf("https://x.com/%s/status/%s", author, tw.ID)
		}
		out = append(out, scraper.RawCandidate{
			ExternalID: "twitter_" + tw.ID,
			Author:     author,
			Body:       tw.Text,
			URL:        link,
			PostedAt:   tw.CreatedAt.UTC(),
		})
	}
	return out, nil
}
