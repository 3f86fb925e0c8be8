// Package genai wraps the OpenAI chat completion API as the agent's
// generation capability. It exposes the two call shapes the agent needs:
// stage rendering with a history window, and narrow field-scoped extraction.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"300"`
	Temperature         float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client implements contract.TextGenerator and contract.FieldExtractor.
type Client struct {
	api         openaisdk.Client
	model       openaisdk.ChatModel
	temperature float64
	maxTokens   int64
}

// NewClient builds a generation client. A missing API key returns nil: the
// capability is simply unavailable and callers fall back to templates and
// deterministic extraction.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	maxTokens := cfg.MaxCompletionTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}

	return &Client{
		api:         openaisdk.NewClient(opts...),
		model:       openaisdk.ChatModel(model),
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}
}

// Generate renders stage-appropriate text from the persona, the bounded
// history window and the caller's latest utterance.
func (c *Client) Generate(ctx context.Context, req contractx.GenerateRequest) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if sys := strings.TrimSpace(req.System); sys != "" {
		messages = append(messages, openaisdk.SystemMessage(sys))
	}
	for _, turn := range req.History {
		switch turn.Role {
		case contractx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(turn.Content))
		case contractx.RoleSystem:
			messages = append(messages, openaisdk.SystemMessage(turn.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(turn.Content))
		}
	}
	if msg := strings.TrimSpace(req.UserMessage); msg != "" {
		messages = append(messages, openaisdk.UserMessage(msg))
	}

	completion, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openaisdk.Float(c.temperature),
		MaxTokens:   openaisdk.Int(c.maxTokens),
	})
	if err != nil {
		return "", classify(err)
	}

	content := completionContent(completion)
	if content == "" {
		return "", contractx.NewGenerationError(contractx.FailureUnavailable, errors.New("empty completion"))
	}
	return content, nil
}

// ExtractField runs the field-scoped extraction prompt at temperature zero
// with a small token cap. The raw reply is returned for the extraction
// engine to parse and validate.
func (c *Client) ExtractField(ctx context.Context, req contractx.ExtractFieldRequest) (string, error) {
	completion, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    []openaisdk.ChatCompletionMessageParamUnion{openaisdk.UserMessage(req.Prompt)},
		Temperature: openaisdk.Float(0),
		MaxTokens:   openaisdk.Int(100),
	})
	if err != nil {
		return "", classify(err)
	}

	content := completionContent(completion)
	if content == "" {
		return "", contractx.NewGenerationError(contractx.FailureUnavailable, fmt.Errorf("empty completion for field=%s", req.Field))
	}
	return content, nil
}

func completionContent(completion *openaisdk.ChatCompletion) string {
	if completion == nil || len(completion.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content)
}

// classify maps transport errors onto the generation failure taxonomy.
func classify(err error) *contractx.GenerationError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return contractx.NewGenerationError(contractx.FailureTimeout, err)
	}

	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return contractx.NewGenerationError(kindForStatus(apiErr.StatusCode), err)
	}
	return contractx.NewGenerationError(contractx.FailureUnavailable, err)
}

func kindForStatus(status int) contractx.FailureKind {
	switch status {
	case 429:
		return contractx.FailureRateLimited
	case 401, 403:
		return contractx.FailureInvalidKey
	case 408:
		return contractx.FailureTimeout
	default:
		return contractx.FailureUnavailable
	}
}
