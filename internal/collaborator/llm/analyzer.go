// Package llm implements email analysis on an OpenAI-compatible chat API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"mail-to-quote-go/internal/collaborator"
	"mail-to-quote-go/internal/config"
	"mail-to-quote-go/internal/model"
)

const systemPrompt = `You read B2B emails sent to a sales desk.
Decide whether the email asks for a price quote and extract its commercial content.
Answer with a single JSON object:
{"is_quote_request": bool,
 "extracted_entities": {"client_name": string, "products": [{"reference": string, "description": string, "quantity": number}], "delivery_date": string, "notes": string}}
Use null for unknown values. Do not add any text outside the JSON object.`

// maxAttachmentChars bounds the attachment text sent to the model.
const maxAttachmentChars = 8000

// Analyzer classifies emails with a chat completion model
type Analyzer struct {
	client *openai.Client
	model  string
}

// NewAnalyzer creates an analyzer from the LLM configuration
func NewAnalyzer(cfg config.LLMConfig) *Analyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &Analyzer{client: openai.NewClientWithConfig(clientCfg), model: modelName}
}

// Analyze asks the model for a JSON reading of the email.
func (a *Analyzer) Analyze(ctx context.Context, email model.EmailPayload) (*collaborator.Analysis, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(email)},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	logrus.WithFields(logrus.Fields{
		"model":  resp.Model,
		"tokens": resp.Usage.TotalTokens,
	}).Debug("Email analyzed")

	return parseAnalysis(resp.Choices[0].Message.Content)
}

func userPrompt(email model.EmailPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\n", email.SenderName, email.SenderEmail)
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)

	remaining := maxAttachmentChars
	for i, text := range email.AttachmentTexts {
		if remaining <= 0 {
			break
		}
		if len(text) > remaining {
			text = text[:remaining]
		}
		remaining -= len(text)
		fmt.Fprintf(&b, "\n\n--- Attachment %d ---\n%s", i+1, text)
	}
	return b.String()
}

// parseAnalysis accepts the JSON object on its own or wrapped in a code fence.
func parseAnalysis(content string) (*collaborator.Analysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var analysis collaborator.Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &analysis); err != nil {
		return nil, fmt.Errorf("invalid analysis json: %w", err)
	}
	if analysis.ExtractedEntities == nil {
		analysis.ExtractedEntities = map[string]any{}
	}
	return &analysis, nil
}
