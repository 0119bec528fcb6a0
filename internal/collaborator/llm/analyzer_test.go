package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/model"
)

func newServer(t *testing.T, content string, status int) (*httptest.Server, *openai.ChatCompletionRequest) {
	t.Helper()
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "test-model",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestAnalyze(t *testing.T) {
	srv, req := newServer(t, `{"is_quote_request": true, "extracted_entities": {"client_name": "ACME"}}`, http.StatusOK)
	a := NewAnalyzer(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})

	got, err := a.Analyze(context.Background(), model.EmailPayload{
		Subject:         "Demande de devis",
		Body:            "5 x ITEM-A",
		SenderEmail:     "buyer@acme.fr",
		AttachmentTexts: []string{"ITEM-B;2"},
	})
	require.NoError(t, err)
	assert.True(t, got.IsQuoteRequest)
	assert.Equal(t, "ACME", got.ExtractedEntities["client_name"])

	assert.Equal(t, "test-model", req.Model)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "5 x ITEM-A")
	assert.Contains(t, req.Messages[1].Content, "ITEM-B;2")
}

func TestAnalyzeUpstreamError(t *testing.T) {
	srv, _ := newServer(t, "", http.StatusInternalServerError)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	a := &Analyzer{client: openai.NewClientWithConfig(cfg), model: "test-model"}

	_, err := a.Analyze(context.Background(), model.EmailPayload{Body: "x"})
	assert.Error(t, err)
}

func TestParseAnalysis(t *testing.T) {
	got, err := parseAnalysis("```json\n{\"is_quote_request\": false}\n```")
	require.NoError(t, err)
	assert.False(t, got.IsQuoteRequest)
	assert.NotNil(t, got.ExtractedEntities)

	_, err = parseAnalysis("not json")
	assert.Error(t, err)
}

func TestUserPromptBoundsAttachments(t *testing.T) {
	big := make([]byte, maxAttachmentChars+100)
	for i := range big {
		big[i] = 'a'
	}
	prompt := userPrompt(model.EmailPayload{Body: "b", AttachmentTexts: []string{string(big), "second"}})
	assert.NotContains(t, prompt, "second")
	assert.Less(t, len(prompt), maxAttachmentChars+200)
}
