package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// clockworks~tiktok-scraper
	actorID = "clockworks~tiktok-scraper"
)

type actorInput struct {
	Hashtags       []string `json:"hashtags"`
	ResultsPerPage int      `json:"resultsPerPage"`
}

type video struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	WebVideoURL   string `json:"webVideoUrl"`
	CreateTimeISO string `json:"createTimeISO"`
	CreateTime    int64  `json:"createTime"`
	AuthorMeta    struct {
		Name string `json:"name"`
	} `json:"authorMeta"`
	Hashtags []struct {
		Name string `json:"name"`
	} `json:"hashtags"`
	SearchHashtag struct {
		Name string `json:"name"`
	} `json:"searchHashtag"`
}

// TikTokScraper runs the Apify TikTok actor synchronously and reads its
// dataset. TikTok has no usable public search API.
type TikTokScraper struct {
	baseURL string
	token   string
	fetcher *scraper.Fetcher
	logger  logging.Logger
	now     func() time.Time
}

func NewTikTokScraper(baseURL, token string, fetcher *scraper.Fetcher, logger logging.Logger) *TikTokScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TikTokScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		fetcher: fetcher,
		logger:  logger.WithField("source", string(models.SourceTikTok)),
		now:     time.Now,
	}
}

func (s *TikTokScraper) Name() models.Source {
	return models.SourceTikTok
}

func (s *TikTokScraper) Available(context.Context) error {
	if s.token == "" {
		return scraper.Unavailable(models.SourceTikTok, "not implemented: APIFY_API_TOKEN is not configured")
	}
	return nil
}

// Hashtag turns a keyword into a TikTok hashtag name: "#Supply Chain" -> "supplychain".
func Hashtag(keyword string) string {
	tag := strings.TrimLeft(strings.TrimSpace(keyword), "#")
	return strings.ToLower(strings.Join(strings.Fields(tag), ""))
}

func (s *TikTokScraper) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	if err := s.Available(ctx); err != nil {
		return nil, err
	}

	var tags []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		if tag := Hashtag(kw); tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil, nil
	}

	perTag := 30
	if limit > 0 {
		perTag = max(1, limit/len(tags))
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?%s",
		s.baseURL, actorID, url.Values{"format": []string{"json"}}.Encode())
	header := http.Header{"Authorization": []string{"Bearer " + s.token}}

	var items []video
	if err := s.fetcher.PostJSON(ctx, endpoint, header, actorInput{Hashtags: tags, ResultsPerPage: perTag}, &items); err != nil {
		return nil, err
	}
	s.logger.WithField("hashtags", tags).Infof("🎵 Actor returned %d videos", len(items))

	out := make([]scraper.RawCandidate, 0, len(items))
	for _, v := range items {
		if v.ID == "" {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.toCandidate(v))
	}
	return out, nil
}

func (s *TikTokScraper) toCandidate(v video) scraper.RawCandidate {
	link := v.WebVideoURL
	if link == "" {
		if v.AuthorMeta.Name != "" {
			link = fmt.Sprintf("https://www.tiktok.com/@%s/video/%s", v.AuthorMeta.Name, v.ID)
		} else {
			link = "https://www.tiktok.com/video/" + v.ID
		}
	}

	posted := s.now().UTC()
	if t, err := time.Parse(time.RFC3339, v.CreateTimeISO); err == nil {
		posted = t.UTC()
	} else if v.CreateTime > 0 {
		posted = time.Unix(v.CreateTime, 0).UTC()
	}

	// hashtags are part of the searchable text
	body := v.Text
	for _, h := range v.Hashtags {
		if h.Name != "" && !strings.Contains(strings.ToLower(body), "#"+strings.ToLower(h.Name)) {
			body += " #" + h.Name
		}
	}

	return scraper.RawCandidate{
		ExternalID: "tiktok_" + v.ID,
		Author:     v.AuthorMeta.Name,
		Body:       strings.TrimSpace(body),
		URL:        link,
		Community:  v.SearchHashtag.Name,
		PostedAt:   posted,
	}
}
