// Package extract converts free-text caller utterances into structured lead
// fields. It prefers the AI tier and falls back to deterministic parsing,
// downgrading a session permanently after repeated AI failures so settled
// fields are never re-asked.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	promptx "github.com/biancassilva/pharmacy-sales-chatbot/agent/prompt"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

// ErrNoValue signals that no value for the target field could be extracted
// from the utterance. The caller re-prompts; nothing is fatal.
var ErrNoValue = errors.New("no value extracted")

// DefaultAIFailureThreshold is the number of consecutive AI-tier failures
// after which a session downgrades to deterministic extraction for good.
const DefaultAIFailureThreshold = 3

type Config struct {
	AIFailureThreshold int `envconfig:"AI_FAILURE_THRESHOLD" split_words:"true" default:"3"`
}

// Tier is one extraction strategy. Both tiers sit behind this interface so
// the downgrade policy lives in exactly one place.
type Tier interface {
	Name() string
	Extract(ctx context.Context, field contractx.FieldKey, utterance string) (statex.FieldValue, error)
}

// Engine is the two-tier extraction engine. One Engine serves many sessions
// concurrently; all per-session policy state lives on the Session.
type Engine struct {
	ai        Tier
	det       Tier
	threshold int
}

// NewEngine builds the engine. A nil extractor means the AI tier is
// unavailable and every session is deterministic from the first turn.
func NewEngine(extractor contractx.FieldExtractor, prompts promptx.PromptSet, cfg Config) *Engine {
	threshold := cfg.AIFailureThreshold
	if threshold <= 0 {
		threshold = DefaultAIFailureThreshold
	}

	e := &Engine{
		det:       deterministicTier{},
		threshold: threshold,
	}
	if extractor != nil {
		e.ai = aiTier{extractor: extractor, prompts: prompts}
	}
	return e
}

// newEngineWithTiers wires explicit tiers; used by tests.
func newEngineWithTiers(ai, det Tier, threshold int) *Engine {
	if threshold <= 0 {
		threshold = DefaultAIFailureThreshold
	}
	return &Engine{ai: ai, det: det, threshold: threshold}
}

// Mode reports which tier the session currently uses.
func (e *Engine) Mode(sess *statex.Session) string {
	if e.aiActive(sess) {
		return "ai"
	}
	return "deterministic"
}

func (e *Engine) aiActive(sess *statex.Session) bool {
	return e.ai != nil && !sess.AIDowngraded()
}

// Extract targets exactly one field of the session's lead record. On
// success the field is filled on the lead and its failure counter resets.
// On failure the field's counter is bumped and ErrNoValue is returned.
//
// A field already filled is left untouched: corrections to settled fields
// are out of scope and the utterance is ignored for that field.
func (e *Engine) Extract(ctx context.Context, sess *statex.Session, field contractx.FieldKey, utterance string) (statex.FieldValue, error) {
	lead := sess.Lead()
	if lead.Status(field) == statex.FieldFilled {
		return statex.FieldValue{}, fmt.Errorf("%w: %s", statex.ErrFieldFilled, field)
	}

	if e.aiActive(sess) {
		val, err := e.ai.Extract(ctx, field, utterance)
		if err == nil {
			sess.ResetAIFailures()
			return e.fill(sess, field, val, "ai")
		}

		failures := sess.RecordAIFailure()
		log.Warn().Str("field", string(field)).Int("ai_failures", failures).Err(err).
			Msg("ai extraction failed")
		if failures >= e.threshold {
			sess.MarkAIDowngraded()
			log.Warn().Str("call_id", sess.CallID).Int("threshold", e.threshold).
				Msg("downgrading session to deterministic extraction")
		}
	}

	val, err := e.det.Extract(ctx, field, utterance)
	if err != nil {
		attempts := sess.RecordFieldFailure(field)
		log.Debug().Str("field", string(field)).Int("field_failures", attempts).
			Msg("no value extracted")
		return statex.FieldValue{}, fmt.Errorf("%w: field=%s", ErrNoValue, field)
	}
	return e.fill(sess, field, val, "deterministic")
}

func (e *Engine) fill(sess *statex.Session, field contractx.FieldKey, val statex.FieldValue, tier string) (statex.FieldValue, error) {
	if err := sess.Lead().Fill(field, val); err != nil {
		return statex.FieldValue{}, err
	}
	sess.ResetFieldFailures(field)
	log.Info().Str("field", string(field)).Str("tier", tier).Msg("field extracted")
	return val, nil
}
