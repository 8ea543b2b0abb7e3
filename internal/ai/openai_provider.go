package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	url        string
	header     http.Header
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider targeting the OpenAI API or any
// server that speaks the same protocol. baseURL includes the version path,
// e.g. https://api.openai.com/v1.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	return &OpenAIProvider{
		url:        strings.TrimRight(baseURL, "/") + "/chat/completions",
		header:     header,
		model:      model,
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

// Complete sends prompt as a single user message at temperature 0 and
// returns the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var reply chatResponse
	err := postJSON(ctx, p.httpClient, p.url, p.header, chatRequest{
		Model:     p.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	}, &reply)
	if err != nil {
		return "", err
	}
	if reply.Error != nil {
		return "", reply.Error
	}
	if len(reply.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return strings.TrimSpace(reply.Choices[0].Message.Content), nil
}
