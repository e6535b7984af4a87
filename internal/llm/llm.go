// Package llm implements AI pairing collaborators on top of hosted
// language models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/pairwise/internal/llm/prompts"
	"github.com/pavelanni/pairwise/internal/model"
)

const (
	providerOpenAI = "openai"
	maxTokens      = 2000
	temperature    = 0.3
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// PairStudents asks the model to pair the roster in req.
func (c *Client) PairStudents(ctx context.Context, req model.AIPairingRequest) (*model.AIPairingResponse, error) {
	prompt, err := prompts.BuildPairingPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build pairing prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, &CollaboratorError{Provider: providerOpenAI, Err: fmt.Errorf("chat completion: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return nil, &CollaboratorError{Provider: providerOpenAI, Err: errors.New("LLM returned no choices")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "provider", providerOpenAI, "raw", raw)

	out, err := ParsePairingResponse(raw)
	if err != nil {
		return nil, withProvider(err, providerOpenAI)
	}
	out.Model = c.model
	if resp.Model != "" {
		out.Model = resp.Model
	}
	out.Provider = providerOpenAI
	return out, nil
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return &CollaboratorError{Provider: providerOpenAI, Err: fmt.Errorf("list models: %w", err)}
	}
	return nil
}
