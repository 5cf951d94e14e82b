package classifier

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lead-radar/internal/ai"
	"go-lead-radar/internal/models"
)

func TestParseAnalysis(t *testing.T) {
	a, err := ParseAnalysis(json.RawMessage(validAnswer))
	require.NoError(t, err)
	assert.Equal(t, 8, a.Score)
	assert.Equal(t, "asks for a tool we sell", a.Rationale)
	assert.Equal(t, models.PostTypeRecommendationRequest, a.PostType)
	assert.Equal(t, models.UrgencyHigh, a.Urgency)
	assert.Equal(t, []string{"freight"}, a.KeywordsFound)
	assert.Nil(t, a.CompetitorMentioned)
	require.NotNil(t, a.SuggestedResponse)
	assert.Equal(t, "Try us", *a.SuggestedResponse)
}

func TestParseAnalysis_Malformed(t *testing.T) {
	tests := map[string]string{
		"not json":         `relevant, 8/10`,
		"missing score":    `{"reasoning": "x"}`,
		"score too high":   `{"relevance_score": 11, "reasoning": "x"}`,
		"negative score":   `{"relevance_score": -1, "reasoning": "x"}`,
		"fractional score": `{"relevance_score": 7.5, "reasoning": "x"}`,
		"score as string":  `{"relevance_score": "8", "reasoning": "x"}`,
		"empty rationale":  `{"relevance_score": 5, "reasoning": "   "}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnalysis(json.RawMessage(raw))
			require.Error(t, err)
			assert.Equal(t, ai.KindMalformed, ai.KindOf(err))
		})
	}
}

func TestParseAnalysis_NormalisesLooseFields(t *testing.T) {
	raw := `{"relevance_score": 0, "reasoning": "spam", "post_type": "Rant", "pain_score": 14,
"urgency": "URGENT", "keywords_found": ["", " crm "], "competitor_mentioned": "null", "suggested_response": ""}`
	a, err := ParseAnalysis(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, models.PostTypeOther, a.PostType)
	assert.Equal(t, models.UrgencyLow, a.Urgency)
	assert.Equal(t, models.ScoreMax, a.PainScore)
	assert.Equal(t, []string{"crm"}, a.KeywordsFound)
	assert.Nil(t, a.CompetitorMentioned)
	assert.Nil(t, a.SuggestedResponse)
}

func TestBuildPrompt(t *testing.T) {
	post := models.Post{Source: models.SourceReddit, Community: "r/logistics", Title: "Need a TMS", Keywords: []string{"freight"}}
	p := BuildPrompt(post, acme)

	assert.Contains(t, p, "Source: reddit")
	assert.Contains(t, p, "Community: r/logistics")
	assert.Contains(t, p, "Body: N/A")
	assert.Contains(t, p, "Acme Freight (no domain) - No description")
	assert.Contains(t, p, "Tracked keywords: freight")
	assert.Contains(t, p, "Only 7+ if genuine business opportunity")
}

func TestBuildPrompt_LongBodyCutOnRuneBoundary(t *testing.T) {
	post := models.Post{Source: models.SourceReddit, Title: "t", Body: strings.Repeat("a", maxPromptBody-1) + "ü and more"}
	p := BuildPrompt(post, acme)

	assert.True(t, utf8.ValidString(p))
	assert.Contains(t, p, strings.Repeat("a", maxPromptBody-1)+"ü...")
	assert.NotContains(t, p, "and more")
}
