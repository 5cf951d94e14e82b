package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func TestComplete_Success(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(chatReply("```json\n{\"relevance_score\": 8}\n```")))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "key", "test-model", srv.Client())
	raw, err := c.Complete(context.Background(), "hello", Schema{Name: "analysis", Definition: map[string]any{"type": "object"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"relevance_score": 8}`, string(raw))

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 0.3, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_schema", got.ResponseFormat.Type)
	assert.Equal(t, "analysis", got.ResponseFormat.JSONSchema.Name)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestComplete_ErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, want: KindTransient},
		{name: "server error", status: http.StatusBadGateway, body: `oops`, want: KindTransient},
		{name: "request timeout", status: http.StatusRequestTimeout, body: ``, want: KindTransient},
		{name: "bad key", status: http.StatusUnauthorized, body: `{}`, want: KindPermanent},
		{name: "unknown model", status: http.StatusNotFound, body: `{}`, want: KindPermanent},
		{name: "no choices", status: http.StatusOK, body: `{"choices": []}`, want: KindMalformed},
		{name: "prose answer", status: http.StatusOK, body: chatReply("I think this is relevant."), want: KindMalformed},
		{name: "broken envelope", status: http.StatusOK, body: `{"choices": [`, want: KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOpenAIClient(srv.URL, "key", "", srv.Client())
			_, err := c.Complete(context.Background(), "p", Schema{})
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestComplete_LongErrorBodyStaysValidUTF8(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(strings.Repeat("x", 199) + "€ rest of the error"))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "key", "", srv.Client())
	_, err := c.Complete(context.Background(), "p", Schema{})
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.Contains(t, err.Error(), "€...")
}

func TestComplete_MissingKeyIsPermanent(t *testing.T) {
	c := NewOpenAIClient("http://127.0.0.1:0", "", "", nil)
	_, err := c.Complete(context.Background(), "p", Schema{})
	assert.Equal(t, KindPermanent, KindOf(err))
	assert.Equal(t, DefaultModel, c.Model())
}

func TestComplete_TimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewOpenAIClient(srv.URL, "key", "", srv.Client())
	_, err := c.Complete(ctx, "p", Schema{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCleanMarkdownJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON("Sure! {\"a\":1} Hope that helps"))
	assert.Equal(t, `{"a":1}`, cleanMarkdownJSON(`  {"a":1}  `))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindPermanent, KindOf(assert.AnError))
	assert.Equal(t, KindMalformed, KindOf(Malformed(assert.AnError)))
}
