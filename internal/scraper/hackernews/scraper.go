package hackernews

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
	"go-lead-radar/internal/textutil"
)

const (
	DefaultBaseURL = "https://hn.algolia.com/api/v1"
	itemURL        = "https://news.ycombinator.com/item?id="
	maxBodyRunes   = 5000
)

type searchResponse struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	ObjectID   string `json:"objectID"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Author     string `json:"author"`
	StoryText  string `json:"story_text"`
	CreatedAtI int64  `json:"created_at_i"`
}

// HackerNewsScraper uses the Algolia search API, which filters server side
// instead of walking the newest story ids one item at a time.
type HackerNewsScraper struct {
	baseURL string
	fetcher *scraper.Fetcher
	logger  logging.Logger
}

func NewHackerNewsScraper(baseURL string, fetcher *scraper.Fetcher, logger logging.Logger) *HackerNewsScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &HackerNewsScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.WithField("source", string(models.SourceHackerNews)),
	}
}

func (s *HackerNewsScraper) Name() models.Source {
	return models.SourceHackerNews
}

func (s *HackerNewsScraper) Available(context.Context) error {
	return nil
}

func (s *HackerNewsScraper) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	return scraper.CollectPerKeyword(ctx, keywords, limit, s.logger, func(ctx context.Context, keyword string) ([]scraper.RawCandidate, error) {
		return s.search(ctx, keyword, limit)
	})
}

func (s *HackerNewsScraper) search(ctx context.Context, keyword string, limit int) ([]scraper.RawCandidate, error) {
	q := url.Values{}
	q.Set("query", keyword)
	q.Set("tags", "story")
	if limit > 0 {
		q.Set("hitsPerPage", fmt.Sprint(limit))
	}

	var resp searchResponse
	if err := s.fetcher.GetJSON(ctx, s.baseURL+"/search_by_date?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := make([]scraper.RawCandidate, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if h.ObjectID == "" || h.Title == "" {
			continue
		}
		link := h.URL
		if link == "" {
			link = itemURL + h.ObjectID
		}
		out = append(out, scraper.RawCandidate{
			ExternalID: "hn_" + h.ObjectID,
			Author:     h.Author,
			Title:      h.Title,
			Body:       textutil.Truncate(PlainText(h.StoryText), maxBodyRunes),
			URL:        link,
			PostedAt:   time.Unix(h.CreatedAtI, 0).UTC(),
		})
	}
	return out, nil
}

// PlainText turns HN story markup into text. Paragraph and line breaks become
// newlines and entities are decoded.
func PlainText(markup string) string {
	if !strings.ContainsAny(markup, "<&") {
		return strings.TrimSpace(markup)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}
	doc.Find("p, br").BeforeHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
