package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go-lead-radar/internal/ai"
	"go-lead-radar/internal/models"
)

// modelResponse mirrors AnalysisSchema. Pointers tell a missing field from a zero value.
type modelResponse struct {
	RelevanceScore      *float64 `json:"relevance_score"`
	Reasoning           string   `json:"reasoning"`
	PostType            string   `json:"post_type"`
	PainScore           *float64 `json:"pain_score"`
	Urgency             string   `json:"urgency"`
	KeywordsFound       []string `json:"keywords_found"`
	CompetitorMentioned *string  `json:"competitor_mentioned"`
	SuggestedResponse   *string  `json:"suggested_response"`
}

// ParseAnalysis validates a model answer. Anything that cannot become a
// trustworthy analysis is returned as a malformed *ai.ModelError.
func ParseAnalysis(raw json.RawMessage) (models.Analysis, error) {
	var resp modelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.Analysis{}, ai.Malformed(fmt.Errorf("parse analysis: %w", err))
	}

	if resp.RelevanceScore == nil {
		return models.Analysis{}, ai.Malformed(errors.New("relevance_score is missing"))
	}
	score := *resp.RelevanceScore
	if score != float64(int(score)) {
		return models.Analysis{}, ai.Malformed(fmt.Errorf("relevance_score %v is not an integer", score))
	}
	if score < models.ScoreMin || score > models.ScoreMax {
		return models.Analysis{}, ai.Malformed(fmt.Errorf("relevance_score %v outside %d..%d", score, models.ScoreMin, models.ScoreMax))
	}

	rationale := strings.TrimSpace(resp.Reasoning)
	if rationale == "" {
		return models.Analysis{}, ai.Malformed(errors.New("reasoning is empty"))
	}

	pain := 0
	if resp.PainScore != nil {
		pain = clamp(int(*resp.PainScore), models.ScoreMin, models.ScoreMax)
	}

	keywords := make([]string, 0, len(resp.KeywordsFound))
	for _, kw := range resp.KeywordsFound {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return models.Analysis{
		Score:               int(score),
		Rationale:           rationale,
		PostType:            normalizePostType(resp.PostType),
		PainScore:           pain,
		Urgency:             normalizeUrgency(resp.Urgency),
		KeywordsFound:       keywords,
		CompetitorMentioned: nullable(resp.CompetitorMentioned),
		SuggestedResponse:   nullable(resp.SuggestedResponse),
	}, nil
}

func normalizePostType(s string) models.PostType {
	switch pt := models.PostType(strings.ToLower(strings.TrimSpace(s))); pt {
	case models.PostTypePainPoint, models.PostTypeQuestion, models.PostTypeRecommendationRequest, models.PostTypeCompetitorComplaint:
		return pt
	default:
		return models.PostTypeOther
	}
}

func normalizeUrgency(s string) models.Urgency {
	switch u := models.Urgency(strings.ToLower(strings.TrimSpace(s))); u {
	case models.UrgencyHigh, models.UrgencyMedium:
		return u
	default:
		return models.UrgencyLow
	}
}

// nullable treats blank strings and the literal "null" the model sometimes writes as absent.
func nullable(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
		return nil
	}
	return &v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
