package reddit

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
	"go-lead-radar/internal/textutil"
)

const (
	DefaultBaseURL = "https://old.reddit.com"
	maxBodyRunes   = 5000
)

// RedditScraper searches old.reddit.com, whose server rendered HTML is far
// easier to parse than the new client.
type RedditScraper struct {
	baseURL string
	fetcher *scraper.Fetcher
	logger  logging.Logger
	now     func() time.Time
}

func NewRedditScraper(baseURL string, fetcher *scraper.Fetcher, logger logging.Logger) *RedditScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RedditScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.WithField("source", string(models.SourceReddit)),
		now:     time.Now,
	}
}

func (s *RedditScraper) Name() models.Source {
	return models.SourceReddit
}

// Available is always nil: public search needs no credentials.
func (s *RedditScraper) Available(context.Context) error {
	return nil
}

func (s *RedditScraper) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	return scraper.CollectPerKeyword(ctx, keywords, limit, s.logger, s.search)
}

func (s *RedditScraper) search(ctx context.Context, keyword string) ([]scraper.RawCandidate, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s&sort=new&t=week", s.baseURL, url.QueryEscape(keyword))
	body, err := s.fetcher.Get(ctx, searchURL, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, err
	}
	posts, err := ParseSearchResults(body, s.now())
	if err != nil {
		return nil, scraper.Permanent(models.SourceReddit, err)
	}
	return posts, nil
}

// ParseSearchResults extracts posts from an old reddit search page. Items
// without a title are skipped.
func ParseSearchResults(html []byte, now time.Time) ([]scraper.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var posts []scraper.RawCandidate
	doc.Find("div.thing").Each(func(_ int, thing *goquery.Selection) {
		titleEl := thing.Find("a.title, a.search-title").First()
		title := strings.TrimSpace(titleEl.Text())
		if title == "" {
			return
		}

		author := thing.AttrOr("data-author", "")
		fullname := thing.AttrOr("data-fullname", "")
		if fullname == "" {
			// no stable id: key on title and author
			fullname = "reddit_" + strconv.FormatUint(hash(title+author), 36)
		}

		body := strings.TrimSpace(thing.Find(".usertext-body, .search-result-body").First().Text())

		link := thing.Find("a.comments, a.search-comments").First().AttrOr("href", "")
		if link == "" {
			link = thing.AttrOr("data-url", titleEl.AttrOr("href", ""))
		}

		posts = append(posts, scraper.RawCandidate{
			ExternalID: fullname,
			Author:     author,
			Title:      title,
			Body:       textutil.Truncate(body, maxBodyRunes),
			URL:        normalizePermalink(link),
			Community:  thing.AttrOr("data-subreddit", ""),
			PostedAt:   postedAt(thing, now),
		})
	})
	return posts, nil
}

// normalizePermalink makes relative links absolute and drops tracking params.
func normalizePermalink(link string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "/") {
		link = "https://www.reddit.com" + link
	}
	if i := strings.IndexByte(link, '?'); i >= 0 {
		link = link[:i]
	}
	return strings.Replace(link, "://old.reddit.com", "://www.reddit.com", 1)
}

func postedAt(thing *goquery.Selection, now time.Time) time.Time {
	if ms, err := strconv.ParseInt(thing.AttrOr("data-timestamp", ""), 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	if dt, ok := thing.Find("time[datetime]").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, dt); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

func hash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
