// Package compose renders caller-facing text for every conversation stage,
// delegating to the generation capability when available and selecting from
// static templates when it is not. A Composer never mutates session state.
package compose

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	promptx "github.com/biancassilva/pharmacy-sales-chatbot/agent/prompt"
)

type Config struct {
	BotName       string `envconfig:"BOT_NAME" split_words:"true" default:"Alex"`
	HistoryWindow int    `envconfig:"HISTORY_WINDOW" split_words:"true" default:"10"`
}

type Composer struct {
	generator     contractx.TextGenerator
	prompts       promptx.PromptSet
	botName       string
	historyWindow int
}

// New builds a Composer. A nil generator means every render uses templates.
func New(generator contractx.TextGenerator, prompts promptx.PromptSet, cfg Config) *Composer {
	botName := strings.TrimSpace(cfg.BotName)
	if botName == "" {
		botName = "Alex"
	}
	window := cfg.HistoryWindow
	if window <= 0 {
		window = 10
	}
	return &Composer{
		generator:     generator,
		prompts:       prompts,
		botName:       botName,
		historyWindow: window,
	}
}

// HistoryWindow is the number of recent turns a generation request may see.
func (c *Composer) HistoryWindow() int {
	return c.historyWindow
}

// Greeting renders the call-opening line. Greetings are always templated so
// the caller hears something immediately, whatever the generation
// capability is doing.
func (c *Composer) Greeting(rec *contractx.CallerRecord) string {
	if rec == nil {
		return c.prompts.RenderGreetingLead(c.botName)
	}
	return c.prompts.RenderGreetingCustomer(rec.Name, rec.Location, strconv.Itoa(rec.RxVolume))
}

// FreeTurn renders a free-form reply for the given stage. A generation
// failure of any kind switches this single call to the stage template; the
// session is never aborted.
func (c *Composer) FreeTurn(ctx context.Context, stage string, rec contractx.CallerRecord, history []contractx.Turn, userMessage string) string {
	if c.generator == nil {
		return c.stageFallback(stage)
	}

	if len(history) > c.historyWindow {
		history = history[len(history)-c.historyWindow:]
	}
	reply, err := c.generator.Generate(ctx, contractx.GenerateRequest{
		System:      c.prompts.System,
		Stage:       stage,
		Record:      rec,
		History:     history,
		UserMessage: userMessage,
	})
	if err != nil {
		log.Warn().Str("stage", stage).Err(err).Msg("generation failed, using template")
		return c.stageFallback(stage)
	}
	if strings.TrimSpace(reply) == "" {
		return c.stageFallback(stage)
	}
	return reply
}

func (c *Composer) stageFallback(stage string) string {
	if text, ok := stageFallbacks[stage]; ok {
		return text
	}
	return genericFallback
}

// FieldPrompt asks for one field, rephrasing on repeated attempts so the
// caller is not handed the same sentence twice.
func (c *Composer) FieldPrompt(field contractx.FieldKey, attempt int) string {
	variants := fieldPrompts[field]
	if len(variants) == 0 {
		return defaultFieldPrompt
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(variants) {
		attempt = len(variants) - 1
	}
	return variants[attempt]
}

// SolutionBenefits returns the benefits pitch for the record's volume tier.
func (c *Composer) SolutionBenefits(rxVolume int) string {
	switch {
	case rxVolume >= contractx.HighVolumeThreshold:
		return highVolumeBenefits
	case rxVolume >= 500:
		return midVolumeBenefits
	default:
		return starterBenefits
	}
}

func (c *Composer) FollowUpOptions() string {
	return followUpOptions
}

func (c *Composer) CallbackOffer() string {
	return callbackOffer
}

func (c *Composer) AskEmail() string {
	return askEmail
}

// SuccessfulClosing confirms a completed follow-up action.
func (c *Composer) SuccessfulClosing(actionTaken, expectedOutcome, pharmacyName string) string {
	if strings.TrimSpace(pharmacyName) == "" {
		pharmacyName = "your pharmacy"
	}
	return fmt.Sprintf(`Perfect! I've %s. You should %s.

Thank you for calling Pharmesol today. We're excited about the opportunity to help %s optimize your pharmacy operations.

Is there anything else I can help you with today?`, actionTaken, expectedOutcome, pharmacyName)
}

func (c *Composer) GeneralClosing() string {
	return generalClosing
}

func (c *Composer) AnythingElse() string {
	return anythingElse
}

// Apology is the caller-facing line for internal trouble; it never exposes
// error detail.
func (c *Composer) Apology() string {
	return apology
}
