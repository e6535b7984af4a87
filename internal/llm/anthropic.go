package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pavelanni/pairwise/internal/llm/prompts"
	"github.com/pavelanni/pairwise/internal/model"
)

const (
	providerAnthropic     = "anthropic"
	defaultAnthropicModel = "claude-3-haiku-20240307"
)

// AnthropicClient pairs students with the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic client. baseURL is optional.
func NewAnthropic(baseURL, apiKey, modelName string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client, model: modelName}, nil
}

// PairStudents asks the model to pair the roster in req.
func (c *AnthropicClient) PairStudents(ctx context.Context, req model.AIPairingRequest) (*model.AIPairingResponse, error) {
	prompt, err := prompts.BuildPairingPrompt(req)
	if err != nil {
		return nil, fmt.Errorf("build pairing prompt: %w", err)
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: prompts.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
			},
		},
	})
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	raw, err := anthropicText(msg)
	if err != nil {
		return nil, err
	}
	slog.Debug("LLM response", "provider", providerAnthropic, "raw", raw)

	out, err := ParsePairingResponse(raw)
	if err != nil {
		return nil, withProvider(err, providerAnthropic)
	}
	out.Model = string(msg.Model)
	if out.Model == "" {
		out.Model = c.model
	}
	out.Provider = providerAnthropic
	return out, nil
}

func anthropicText(msg *anthropic.Message) (string, error) {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &CollaboratorError{Provider: providerAnthropic, Err: errors.New("no text content in response")}
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return &CollaboratorError{Provider: providerAnthropic, Err: fmt.Errorf("rate limited: %w", err)}
		case apiErr.StatusCode >= 500:
			return &CollaboratorError{Provider: providerAnthropic, Err: fmt.Errorf("provider unavailable: %w", err)}
		}
	}
	return &CollaboratorError{Provider: providerAnthropic, Err: err}
}
