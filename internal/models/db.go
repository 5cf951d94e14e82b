package models

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies one monitored social platform.
type Source string

const (
	SourceReddit     Source = "reddit"
	SourceTwitter    Source = "twitter"
	SourceHackerNews Source = "hackernews"
	SourceTikTok     Source = "tiktok"
	SourceInstagram  Source = "instagram"
)

// AllSources returns every supported source in a stable order.
func AllSources() []Source {
	return []Source{SourceReddit, SourceTwitter, SourceHackerNews, SourceTikTok, SourceInstagram}
}

func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSources() {
		if src == known {
			return src, nil
		}
	}
	return "", fmt.Errorf("unknown source %q", s)
}

type Business struct {
	ID          string    `json:"id" yaml:"id"`
	Slug        string    `json:"slug" yaml:"slug"`
	Name        string    `json:"name" yaml:"name"`
	Domain      string    `json:"domain,omitempty" yaml:"domain"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Keywords    []Keyword `json:"keywords" yaml:"keywords"`
	Active      bool      `json:"active" yaml:"active"`
}

// KeywordTexts returns the raw keyword phrases of the business.
func (b Business) KeywordTexts() []string {
	out := make([]string, 0, len(b.Keywords))
	for _, k := range b.Keywords {
		if strings.TrimSpace(k.Text) != "" {
			out = append(out, k.Text)
		}
	}
	return out
}

type Keyword struct {
	ID          string `json:"id" yaml:"id"`
	BusinessID  string `json:"business_id" yaml:"business_id"`
	Text        string `json:"keyword" yaml:"keyword"`
	Category    string `json:"category,omitempty" yaml:"category"`
	SuggestedBy string `json:"suggested_by,omitempty" yaml:"suggested_by"` // model that proposed it, if any
}

type Post struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	ExternalID string    `json:"external_id"`
	BusinessID string    `json:"business_id"`
	Keywords   []string  `json:"keywords"`
	Author     string    `json:"author,omitempty"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body,omitempty"`
	URL        string    `json:"url"`
	Community  string    `json:"community,omitempty"` // subreddit, hashtag, ...
	PostedAt   time.Time `json:"posted_at"`
	CapturedAt time.Time `json:"captured_at"`
}

// Text is the searchable content of the post.
func (p Post) Text() string {
	return strings.TrimSpace(p.Title + " " + p.Body)
}

const (
	ScoreMin = 0
	ScoreMax = 10
)

type PostType string

const (
	PostTypePainPoint             PostType = "pain_point"
	PostTypeQuestion              PostType = "question"
	PostTypeRecommendationRequest PostType = "recommendation_request"
	PostTypeCompetitorComplaint   PostType = "competitor_complaint"
	PostTypeOther                 PostType = "other"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

type Analysis struct {
	PostID              string    `json:"post_id"`
	Score               int       `json:"relevance_score"`
	Rationale           string    `json:"rationale"`
	PostType            PostType  `json:"post_type"`
	PainScore           int       `json:"pain_score"`
	Urgency             Urgency   `json:"urgency"`
	KeywordsFound       []string  `json:"keywords_found"`
	CompetitorMentioned *string   `json:"competitor_mentioned,omitempty"`
	SuggestedResponse   *string   `json:"suggested_response,omitempty"`
	Model               string    `json:"model"`
	ClassifiedAt        time.Time `json:"classified_at"`
}

// Outcome is the tagged result of one run.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnavailable Outcome = "unavailable"
)

type Counts struct {
	Fetched    int `json:"fetched"`
	Kept       int `json:"kept"`
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Classified int `json:"classified"`
	Failed     int `json:"failed"`
	Retries    int `json:"retries"`
	Skipped    int `json:"skipped"`
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Fetched += other.Fetched
	c.Kept += other.Kept
	c.Stored += other.Stored
	c.Duplicates += other.Duplicates
	c.Classified += other.Classified
	c.Failed += other.Failed
	c.Retries += other.Retries
	c.Skipped += other.Skipped
}

// Heartbeat is one append-only audit record of a run.
type Heartbeat struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Source     Source    `json:"source,omitempty"`
	BusinessID string    `json:"business_id,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Counts     Counts    `json:"counts"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

const (
	JobClassifier = "classifier"
	JobHealth     = "health"
)
