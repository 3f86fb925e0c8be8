package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	promptx "github.com/biancassilva/pharmacy-sales-chatbot/agent/prompt"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

// aiTier extracts a field through the generation capability with a
// field-scoped JSON prompt. Replies that cannot be parsed or fail validation
// count as tier failures, not fatal errors.
type aiTier struct {
	extractor contractx.FieldExtractor
	prompts   promptx.PromptSet
}

func (aiTier) Name() string { return "ai" }

func (t aiTier) Extract(ctx context.Context, field contractx.FieldKey, utterance string) (statex.FieldValue, error) {
	reply, err := t.extractor.ExtractField(ctx, contractx.ExtractFieldRequest{
		Field:     field,
		Prompt:    t.prompts.RenderExtractField(field, utterance),
		Utterance: utterance,
	})
	if err != nil {
		return statex.FieldValue{}, err
	}

	candidate, err := parseFieldReply(field, reply)
	if err != nil {
		return statex.FieldValue{}, err
	}
	if candidate == nil {
		return statex.FieldValue{}, ErrNoValue
	}
	return validateValue(field, candidate)
}

// parseFieldReply decodes the structured reply, tolerating markdown code
// fences around the JSON object.
func parseFieldReply(field contractx.FieldKey, reply string) (any, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid extraction reply: %v", contractx.ErrValidation, err)
	}
	return parsed[string(field)], nil
}
