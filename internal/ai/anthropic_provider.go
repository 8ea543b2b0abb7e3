package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	url        string
	header     http.Header
	model      string
	httpClient *http.Client
}

// NewAnthropicProvider creates a provider targeting the Anthropic API.
// baseURL is the API root, e.g. https://api.anthropic.com.
func NewAnthropicProvider(baseURL, apiKey, model string, httpClient *http.Client) *AnthropicProvider {
	header := http.Header{}
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", anthropicVersion)
	return &AnthropicProvider{
		url:        strings.TrimRight(baseURL, "/") + "/v1/messages",
		header:     header,
		model:      model,
		httpClient: httpClient,
	}
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends prompt as a single user message and returns the concatenated
// text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var reply messagesResponse
	err := postJSON(ctx, p.httpClient, p.url, p.header, messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}, &reply)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("llm returned no text")
	}
	return strings.TrimSpace(sb.String()), nil
}
