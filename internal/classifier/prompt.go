package classifier

import (
	"fmt"
	"strings"

	"go-lead-radar/internal/ai"
	"go-lead-radar/internal/models"
	"go-lead-radar/internal/textutil"
)

const maxPromptBody = 4000

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// BuildPrompt renders the classification prompt for one post and the business it was captured for.
func BuildPrompt(post models.Post, business models.Business) string {
	body := textutil.Shorten(post.Body, maxPromptBody, "...")

	domain := business.Domain
	if domain == "" {
		domain = "no domain"
	}
	description := business.Description
	if description == "" {
		description = "No description"
	}

	var sb strings.Builder
	sb.WriteString("You are analyzing a social media post to determine if it is a business opportunity.\n\n")
	sb.WriteString("POST:\n")
	fmt.Fprintf(&sb, "Source: %s\n", post.Source)
	fmt.Fprintf(&sb, "Community: %s\n", orNA(post.Community))
	fmt.Fprintf(&sb, "Title: %s\n", orNA(post.Title))
	fmt.Fprintf(&sb, "Body: %s\n", orNA(body))
	fmt.Fprintf(&sb, "Author: %s\n", orNA(post.Author))
	if len(post.Keywords) > 0 {
		fmt.Fprintf(&sb, "Matched keywords: %s\n", strings.Join(post.Keywords, ", "))
	}

	sb.WriteString("\nBUSINESS:\n")
	fmt.Fprintf(&sb, "%s (%s) - %s\n", business.Name, domain, description)
	if kws := business.KeywordTexts(); len(kws) > 0 {
		fmt.Fprintf(&sb, "Tracked keywords: %s\n", strings.Join(kws, ", "))
	}

	sb.WriteString(`
Return JSON only, no other text:
{
  "relevance_score": 0-10,
  "post_type": "pain_point|question|recommendation_request|competitor_complaint|other",
  "pain_score": 0-10,
  "urgency": "high|medium|low",
  "keywords_found": ["keyword1", "keyword2"],
  "competitor_mentioned": "competitor name or null",
  "suggested_response": "helpful response suggestion or null",
  "reasoning": "brief explanation"
}

Be conservative with scores. Only 7+ if genuine business opportunity.`)
	return sb.String()
}

// AnalysisSchema is the JSON schema the model is asked to follow.
var AnalysisSchema = ai.Schema{
	Name: "post_analysis",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"relevance_score": map[string]any{"type": "integer", "minimum": models.ScoreMin, "maximum": models.ScoreMax},
			"reasoning":       map[string]any{"type": "string"},
			"post_type": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.PostTypePainPoint),
					string(models.PostTypeQuestion),
					string(models.PostTypeRecommendationRequest),
					string(models.PostTypeCompetitorComplaint),
					string(models.PostTypeOther),
				},
			},
			"pain_score":           map[string]any{"type": "integer", "minimum": models.ScoreMin, "maximum": models.ScoreMax},
			"urgency":              map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			"keywords_found":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"competitor_mentioned": map[string]any{"type": []string{"string", "null"}},
			"suggested_response":   map[string]any{"type": []string{"string", "null"}},
		},
		"required": []string{
			"relevance_score", "reasoning", "post_type", "pain_score", "urgency",
			"keywords_found", "competitor_mentioned", "suggested_response",
		},
		"additionalProperties": false,
	},
}
