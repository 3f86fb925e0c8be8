package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	genaix "github.com/biancassilva/pharmacy-sales-chatbot/pkg/genai"
)

// Role selects which side of the generation capability a config is for.
type Role string

const (
	// RoleExtractor is the field-scoped extraction call shape.
	RoleExtractor Role = "extractor"
	// RoleComposer is the stage-rendering call shape.
	RoleComposer Role = "composer"
)

// Config carries the shared model settings plus per-role overrides. An empty
// API key is legal: the agent runs in full fallback mode.
type Config struct {
	BaseURL             string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey              string        `envconfig:"API_KEY" split_words:"true"`
	Model               string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	MaxCompletionTokens int64         `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"300"`
	Timeout             time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	ExtractorModel       string  `envconfig:"EXTRACTOR_MODEL" split_words:"true"`
	ComposerModel        string  `envconfig:"COMPOSER_MODEL" split_words:"true"`
	ExtractorTemperature float64 `envconfig:"EXTRACTOR_TEMPERATURE" split_words:"true" default:"0"`
	ComposerTemperature  float64 `envconfig:"COMPOSER_TEMPERATURE" split_words:"true" default:"0.7"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", contractx.ErrValidation)
	}
	return nil
}

// GenAIFor resolves the generation client config for one role.
func (c Config) GenAIFor(role Role) genaix.Config {
	model := strings.TrimSpace(c.Model)
	temperature := c.ComposerTemperature

	switch role {
	case RoleExtractor:
		if v := strings.TrimSpace(c.ExtractorModel); v != "" {
			model = v
		}
		temperature = c.ExtractorTemperature
	case RoleComposer:
		if v := strings.TrimSpace(c.ComposerModel); v != "" {
			model = v
		}
	}

	return genaix.Config{
		BaseURL:             strings.TrimSpace(c.BaseURL),
		APIKey:              strings.TrimSpace(c.APIKey),
		Model:               model,
		MaxCompletionTokens: c.MaxCompletionTokens,
		Temperature:         temperature,
		Timeout:             c.Timeout,
	}
}
