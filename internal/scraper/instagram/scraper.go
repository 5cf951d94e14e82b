package instagram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"go-lead-radar/internal/browser"
	"go-lead-radar/internal/logging"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/scraper"
	"go-lead-radar/internal/textutil"
)

const (
	DefaultBaseURL = "https://www.instagram.com"
	maxPostsPerTag = 20
	maxTagLength   = 50
	maxBodyRunes   = 5000
)

// ContextOpener opens browser contexts; *browser.PlaywrightManager satisfies it.
type ContextOpener interface {
	NewContext(cookies []playwright.OptionalCookie) (playwright.BrowserContext, error)
}

type Config struct {
	Enabled       bool
	BaseURL       string
	CookiesFile   string
	RatePerSecond float64
	Timeout       time.Duration
}

// InstagramScraper reads hashtag explore pages with a logged-in headless
// browser. Instagram offers no public search API.
type InstagramScraper struct {
	cfg         Config
	browser     ContextOpener
	limiter     *rate.Limiter
	screenshots *browser.ScreenshotDebugger
	logger      logging.Logger
	now         func() time.Time
}

func NewInstagramScraper(cfg Config, opener ContextOpener, screenshots *browser.ScreenshotDebugger, logger logging.Logger) *InstagramScraper {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &InstagramScraper{
		cfg:         cfg,
		browser:     opener,
		limiter:     rate.NewLimiter(limit, 1),
		screenshots: screenshots,
		logger:      logger.WithField("source", string(models.SourceInstagram)),
		now:         time.Now,
	}
}

func (s *InstagramScraper) Name() models.Source {
	return models.SourceInstagram
}

func (s *InstagramScraper) Available(context.Context) error {
	if !s.cfg.Enabled || s.browser == nil {
		return scraper.Unavailable(models.SourceInstagram, "not implemented: browser sources are disabled")
	}
	if s.cfg.CookiesFile == "" {
		return scraper.Unavailable(models.SourceInstagram, "not implemented: no cookies file configured")
	}
	if _, err := os.Stat(s.cfg.CookiesFile); err != nil {
		return scraper.Unavailable(models.SourceInstagram, fmt.Sprintf("not implemented: cookies file %s: %v", s.cfg.CookiesFile, err))
	}
	return nil
}

// Hashtags converts keywords to hashtag names. Multi-word phrases and overlong
// tags are not hashtags and are skipped.
func Hashtags(keywords []string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || strings.ContainsAny(kw, " \t") {
			continue
		}
		tag := strings.ToLower(strings.TrimLeft(kw, "#"))
		if tag == "" || len(tag) > maxTagLength || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

func (s *InstagramScraper) Fetch(ctx context.Context, keywords []string, limit int) ([]scraper.RawCandidate, error) {
	if err := s.Available(ctx); err != nil {
		return nil, err
	}
	tags := Hashtags(keywords)
	if len(tags) == 0 {
		s.logger.Info("ℹ️ No hashtag-shaped keywords, skipping")
		return nil, nil
	}

	cookies, err := browser.LoadCookies(s.cfg.CookiesFile)
	if err != nil {
		return nil, scraper.Unavailable(models.SourceInstagram, fmt.Sprintf("not implemented: %v", err))
	}
	bctx, err := s.browser.NewContext(cookies)
	if err != nil {
		return nil, scraper.Transient(models.SourceInstagram, err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, scraper.Transient(models.SourceInstagram, fmt.Errorf("could not create page: %w", err))
	}
	defer page.Close()

	return scraper.CollectPerKeyword(ctx, tags, limit, s.logger, func(ctx context.Context, tag string) ([]scraper.RawCandidate, error) {
		return s.scrapeTag(ctx, page, tag)
	})
}

func (s *InstagramScraper) scrapeTag(ctx context.Context, page playwright.Page, tag string) ([]scraper.RawCandidate, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, scraper.Transient(models.SourceInstagram, err)
	}

	tagURL := fmt.Sprintf("%s/explore/tags/%s/", s.cfg.BaseURL, url.PathEscape(tag))
	s.logger.WithField("tag", tag).Info("🏷️ Visiting hashtag page")
	if _, err := page.Goto(tagURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.Timeout.Milliseconds())),
	}); err != nil {
		return nil, scraper.Transient(models.SourceInstagram, fmt.Errorf("load %s: %w", tagURL, err))
	}

	if title, _ := page.Title(); IsLoginWall(page.URL(), title) {
		s.capture(page, "instagram_blocked_"+tag, "Instagram login wall or challenge")
		return nil, scraper.Transient(models.SourceInstagram, scraper.ErrBlocked)
	}

	if _, err := page.WaitForSelector("a[href*='/p/'], a[href*='/reel/']", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		// hashtag without posts, or a layout we do not recognise
		s.capture(page, "instagram_empty_"+tag, "No posts found on hashtag page")
		return nil, nil
	}

	if err := browser.ScrollToLoad(ctx, page, 3); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.WithError(err).Warn("⚠️ Scrolling failed, using what is loaded")
	}

	raw, err := page.Evaluate(tileScript)
	if err != nil {
		return nil, scraper.Transient(models.SourceInstagram, fmt.Errorf("read tiles: %w", err))
	}

	candidates := TilesToCandidates(ParseTiles(raw), tag, s.cfg.BaseURL, s.now())
	out := make([]scraper.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		meta, err := s.readPost(ctx, page, c.URL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			s.logger.WithError(err).WithField("url", c.URL).Warn("⚠️ Could not read post, skipping")
			continue
		}
		out = append(out, meta.Apply(c))
	}
	return out, nil
}

// readPost opens a post page and returns its caption metadata.
func (s *InstagramScraper) readPost(ctx context.Context, page playwright.Page, postURL string) (PostMeta, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return PostMeta{}, err
	}
	if _, err := page.Goto(postURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.Timeout.Milliseconds())),
	}); err != nil {
		return PostMeta{}, fmt.Errorf("load %s: %w", postURL, err)
	}
	if title, _ := page.Title(); IsLoginWall(page.URL(), title) {
		return PostMeta{}, scraper.ErrBlocked
	}
	raw, err := page.Evaluate(postScript)
	if err != nil {
		return PostMeta{}, fmt.Errorf("read post meta: %w", err)
	}
	return ParsePostMeta(raw), nil
}

func (s *InstagramScraper) capture(page playwright.Page, name, message string) {
	if s.screenshots == nil {
		return
	}
	_, _ = s.screenshots.Capture(page, name, message)
}

const tileScript = `() => Array.from(document.querySelectorAll("a[href*='/p/'], a[href*='/reel/']")).map(a => ({ href: a.getAttribute('href') || '' }))`

const postScript = `() => {
  const meta = p => { const el = document.querySelector('meta[property="' + p + '"]'); return el ? (el.getAttribute('content') || '') : ''; };
  const t = document.querySelector('time[datetime]');
  return { description: meta('og:description'), title: meta('og:title'), datetime: t ? (t.getAttribute('datetime') || '') : '' };
}`

// Tile is one grid entry of a hashtag page.
type Tile struct {
	Href string
}

// ParseTiles converts the value returned by tileScript.
func ParseTiles(raw any) []Tile {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	tiles := make([]Tile, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if href, _ := m["href"].(string); href != "" {
			tiles = append(tiles, Tile{Href: href})
		}
	}
	return tiles
}

// Shortcode extracts the post id from "/p/<code>/" or "/reel/<code>/" links.
func Shortcode(href string) (string, error) {
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if (parts[i] == "p" || parts[i] == "reel") && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", errors.New("no shortcode in link")
}

// PostMeta is what a post page exposes about its caption.
type PostMeta struct {
	Author   string
	Caption  string
	PostedAt time.Time
}

var (
	// "12 likes, 3 comments - someuser on January 2, 2026: "caption"."
	descriptionRe = regexp.MustCompile(`(?s)^(?:.*? - )?([A-Za-z0-9._]+) on [^:"]+: "(.*)"\.?\s*$`)
	// "someuser on Instagram: "caption""
	titleRe = regexp.MustCompile(`(?s)^(.+?) on Instagram: "(.*)"\s*$`)
)

// ParsePostMeta converts the value returned by postScript.
func ParsePostMeta(raw any) PostMeta {
	m, ok := raw.(map[string]any)
	if !ok {
		return PostMeta{}
	}
	desc, _ := m["description"].(string)
	title, _ := m["title"].(string)
	datetime, _ := m["datetime"].(string)

	var meta PostMeta
	if sm := descriptionRe.FindStringSubmatch(strings.TrimSpace(desc)); sm != nil {
		meta.Author, meta.Caption = sm[1], sm[2]
	} else if sm := titleRe.FindStringSubmatch(strings.TrimSpace(title)); sm != nil {
		meta.Author, meta.Caption = sm[1], sm[2]
	}
	meta.Caption = textutil.Truncate(strings.TrimSpace(meta.Caption), maxBodyRunes)
	if t, err := time.Parse(time.RFC3339, datetime); err == nil {
		meta.PostedAt = t.UTC()
	}
	return meta
}

// Apply fills a candidate from its post page. The capture time stays when the
// page shows no date.
func (p PostMeta) Apply(c scraper.RawCandidate) scraper.RawCandidate {
	c.Author = p.Author
	c.Body = p.Caption
	if !p.PostedAt.IsZero() {
		c.PostedAt = p.PostedAt
	}
	return c
}

// TilesToCandidates keeps at most maxPostsPerTag unique posts. Captions are
// read from the post pages afterwards; the tag is kept only as the community.
func TilesToCandidates(tiles []Tile, tag, baseURL string, now time.Time) []scraper.RawCandidate {
	var out []scraper.RawCandidate
	seen := make(map[string]bool)
	for _, t := range tiles {
		if len(out) >= maxPostsPerTag {
			break
		}
		code, err := Shortcode(t.Href)
		if err != nil || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, scraper.RawCandidate{
			ExternalID: "instagram_" + code,
			URL:        fmt.Sprintf("%s/p/%s/", baseURL, code),
			Community:  tag,
			PostedAt:   now.UTC(),
		})
	}
	return out
}

// IsLoginWall reports whether Instagram redirected to a login or challenge page.
func IsLoginWall(pageURL, title string) bool {
	u := strings.ToLower(pageURL)
	if strings.Contains(u, "/accounts/login") || strings.Contains(u, "/challenge") {
		return true
	}
	t := strings.ToLower(title)
	return strings.Contains(t, "login") || strings.Contains(t, "log in")
}
