package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-lead-radar/internal/textutil"
)

const (
	DefaultAPIURL = "https://openrouter.ai/api/v1"
	DefaultModel  = "google/gemini-flash-1.5"
)

// OpenAIClient talks to any OpenAI compatible chat completions endpoint
// (OpenRouter by default, Groq works too).
type OpenAIClient struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIClient(apiURL, apiKey, model string, httpClient *http.Client) *OpenAIClient {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if model == "" {
		model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

func (c *OpenAIClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one user prompt and returns the JSON object of the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, &ModelError{Kind: KindPermanent, Err: errors.New("api key is not configured")}
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.3, // low temperature for consistent scores
		MaxTokens:   1000,
	}
	if schema.Definition != nil {
		reqBody.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: schema.Name, Strict: true, Schema: schema.Definition},
		}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ModelError{Kind: KindPermanent, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &ModelError{Kind: KindPermanent, Err: fmt.Errorf("failed to create http request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "lead-radar")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// network errors and deadlines are worth another attempt
		return nil, &ModelError{Kind: KindTransient, Err: fmt.Errorf("http request failed: %w", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &ModelError{Kind: KindTransient, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ModelError{
			Kind:       statusKind(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("API returned: %s", textutil.Shorten(string(bodyBytes), 200, "...")),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, Malformed(fmt.Errorf("failed to decode response: %w", err))
	}
	if chatResp.Error != nil {
		return nil, &ModelError{Kind: KindTransient, Err: fmt.Errorf("API error: %s", chatResp.Error.Message)}
	}
	if len(chatResp.Choices) == 0 {
		return nil, Malformed(errors.New("no choices returned"))
	}

	content := cleanMarkdownJSON(chatResp.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, Malformed(fmt.Errorf("content is not JSON (length %d)", len(content)))
	}
	return json.RawMessage(content), nil
}

func statusKind(status int) ErrorKind {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return KindTransient
	default:
		return KindPermanent
	}
}

// cleanMarkdownJSON removes code fences and any chatter around the JSON object.
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "{") {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start >= 0 && end > start {
			content = content[start : end+1]
		}
	}
	return content
}

