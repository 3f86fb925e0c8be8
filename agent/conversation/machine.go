// Package conversation drives one inbound sales call through its stages:
// greeting, information collection, solution discussion, follow-up offer,
// scheduling and closing. One Machine owns one session; concurrent calls
// use independent Machines and share nothing but the process log sink.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	composex "github.com/biancassilva/pharmacy-sales-chatbot/agent/compose"
	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	extractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/extract"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

var (
	ErrCallNotStarted     = errors.New("call not started")
	ErrCallAlreadyStarted = errors.New("call already started")
)

// Deps are the machine's collaborators. Directory, engine, composer and
// actions are required.
type Deps struct {
	Directory contractx.Directory
	Engine    *extractx.Engine
	Composer  *composex.Composer
	Actions   contractx.ActionDispatcher
}

type handlerFunc func(ctx context.Context, utterance string) (string, error)

// Machine is the per-call conversation state machine. It is not safe for
// concurrent use; a session handles one utterance at a time.
type Machine struct {
	directory contractx.Directory
	engine    *extractx.Engine
	composer  *composex.Composer
	actions   contractx.ActionDispatcher

	session          *statex.Session
	handlers         map[statex.Stage]handlerFunc
	emailOverride    string
	awaitingEmail    bool
	solutionsPitched bool

	now func() time.Time
}

func New(deps Deps) (*Machine, error) {
	if deps.Directory == nil {
		return nil, errors.New("directory client is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("extraction engine is required")
	}
	if deps.Composer == nil {
		return nil, errors.New("response composer is required")
	}
	if deps.Actions == nil {
		return nil, errors.New("action dispatcher is required")
	}

	m := &Machine{
		directory: deps.Directory,
		engine:    deps.Engine,
		composer:  deps.Composer,
		actions:   deps.Actions,
		now:       time.Now,
	}
	m.handlers = map[statex.Stage]handlerFunc{
		statex.StageCollectingInfo:      m.handleCollectingInfo,
		statex.StageDiscussingSolutions: m.handleDiscussingSolutions,
		statex.StageFollowUpOffer:       m.handleFollowUpOffer,
		statex.StageScheduling:          m.handleScheduling,
		statex.StageClosing:             m.handleClosing,
	}
	return m, nil
}

// StartCall looks the caller up in the directory and produces the greeting.
// Any lookup failure, transient exhaustion or malformed record routes the
// session into information collection as a new lead; starting a call never
// fails on the directory's account.
func (m *Machine) StartCall(ctx context.Context, phoneNumber string) (string, error) {
	if m.session != nil {
		return "", ErrCallAlreadyStarted
	}
	now := m.now()
	m.session = statex.NewSession(uuid.NewString(), phoneNumber, now)

	var greeting string
	rec, err := m.directory.Lookup(ctx, phoneNumber)
	switch {
	case err == nil:
		m.session.SetCaller(rec)
		if terr := m.session.Transition(statex.StageDiscussingSolutions, now); terr != nil {
			return "", terr
		}
		greeting = m.composer.Greeting(rec)

	case errors.Is(err, contractx.ErrNotFound):
		if terr := m.session.Transition(statex.StageCollectingInfo, now); terr != nil {
			return "", terr
		}
		greeting = m.composer.Greeting(nil)

	default:
		// Exhausted transients and malformed records both degrade to the
		// new-lead path after logging; the caller still gets a greeting.
		log.Error().Str("call_id", m.session.CallID).Err(err).
			Msg("directory lookup failed, treating caller as new lead")
		if terr := m.session.Transition(statex.StageCollectingInfo, now); terr != nil {
			return "", terr
		}
		greeting = m.composer.Greeting(nil)
	}

	m.session.AppendTurn(contractx.RoleSystem, fmt.Sprintf("Call started from phone number: %s", phoneNumber))
	m.session.AppendTurn(contractx.RoleAssistant, greeting)
	log.Info().Str("call_id", m.session.CallID).Str("stage", string(m.session.Stage())).
		Bool("known_caller", rec != nil).Msg("call started")
	return greeting, nil
}

// HandleMessage processes one caller utterance to completion: state
// transition, extraction and rendering. Internal failures produce a graceful
// apology, never an aborted session.
func (m *Machine) HandleMessage(ctx context.Context, utterance string) (string, error) {
	if m.session == nil {
		return "", ErrCallNotStarted
	}

	m.session.AppendTurn(contractx.RoleUser, utterance)

	// StartCall always transitions out of greeting, so every message
	// arrives at a stage with a handler.
	var reply string
	var err error
	if handler, ok := m.handlers[m.session.Stage()]; ok {
		reply, err = handler(ctx, utterance)
	} else {
		err = fmt.Errorf("no handler for stage %q", m.session.Stage())
	}
	if err != nil {
		log.Error().Str("call_id", m.session.CallID).Str("stage", string(m.session.Stage())).
			Err(err).Msg("turn handling failed")
		reply = m.composer.Apology()
	}

	m.session.AppendTurn(contractx.RoleAssistant, reply)
	m.session.Touch(m.now())
	return reply, nil
}

// Session exposes the machine's session for inspection.
func (m *Machine) Session() *statex.Session {
	return m.session
}

// Summary returns the read-only session snapshot.
func (m *Machine) Summary() statex.Summary {
	if m.session == nil {
		return statex.Summary{}
	}
	return m.session.Summary()
}

func (m *Machine) handleCollectingInfo(ctx context.Context, utterance string) (string, error) {
	lead := m.session.Lead()

	field, ok := lead.NextMissing()
	if !ok {
		return m.moveToSolutions()
	}
	lead.MarkPending(field)

	if _, err := m.engine.Extract(ctx, m.session, field, utterance); err != nil {
		if !errors.Is(err, extractx.ErrNoValue) {
			return "", err
		}
		// Re-prompt for the same field, rephrased by how often it failed.
		return m.composer.FieldPrompt(field, m.session.FieldFailures(field)), nil
	}

	if lead.Complete() {
		return m.moveToSolutions()
	}

	next, _ := lead.NextMissing()
	lead.MarkPending(next)
	return m.composer.FieldPrompt(next, 0), nil
}

func (m *Machine) moveToSolutions() (string, error) {
	if err := m.session.Transition(statex.StageDiscussingSolutions, m.now()); err != nil {
		return "", err
	}
	rec := m.session.Record()
	log.Info().Str("call_id", m.session.CallID).Int("rx_volume", rec.RxVolume).
		Msg("record complete, discussing solutions")
	m.solutionsPitched = true
	return m.composer.SolutionBenefits(rec.RxVolume), nil
}

func (m *Machine) handleDiscussingSolutions(ctx context.Context, utterance string) (string, error) {
	// A known caller enters this stage straight from the greeting; the
	// first turn pitches the benefits for the record's volume tier, the
	// same pitch a completed lead hears on arriving here.
	if !m.solutionsPitched {
		m.solutionsPitched = true
		return m.composer.SolutionBenefits(m.session.Record().RxVolume), nil
	}

	if containsAny(utterance, "yes", "interested", "more", "information", "details", "sure") {
		if err := m.session.Transition(statex.StageFollowUpOffer, m.now()); err != nil {
			return "", err
		}
		return m.composer.FollowUpOptions(), nil
	}
	return m.composer.FreeTurn(ctx, string(statex.StageDiscussingSolutions), m.session.Record(),
		m.session.HistoryWindow(m.composer.HistoryWindow()), utterance), nil
}

func (m *Machine) handleFollowUpOffer(ctx context.Context, utterance string) (string, error) {
	if m.awaitingEmail {
		if addr, ok := extractx.Email(utterance); ok {
			m.awaitingEmail = false
			m.emailOverride = addr
			return m.dispatchEmail(ctx)
		}
		return m.composer.AskEmail(), nil
	}

	switch {
	case containsAny(utterance, "email", "mail", "send"):
		if m.emailOnRecord() == "" {
			m.awaitingEmail = true
			return m.composer.AskEmail(), nil
		}
		return m.dispatchEmail(ctx)

	case containsAny(utterance, "call", "callback", "consultation", "phone"):
		if err := m.session.Transition(statex.StageScheduling, m.now()); err != nil {
			return "", err
		}
		return m.composer.CallbackOffer(), nil

	case containsAny(utterance, "no", "not", "nothing", "goodbye", "bye"):
		if err := m.session.Transition(statex.StageClosing, m.now()); err != nil {
			return "", err
		}
		return m.composer.GeneralClosing(), nil

	default:
		return m.composer.FreeTurn(ctx, string(statex.StageFollowUpOffer), m.session.Record(),
			m.session.HistoryWindow(m.composer.HistoryWindow()), utterance), nil
	}
}

func (m *Machine) dispatchEmail(ctx context.Context) (string, error) {
	rec := m.recordForAction()
	outcome, err := m.actions.Dispatch(ctx, contractx.ActionRequest{
		Kind:   contractx.ActionEmail,
		Record: rec,
	})
	if err != nil {
		log.Error().Str("call_id", m.session.CallID).Err(err).Msg("email dispatch failed")
	}
	m.session.RecordOutcome(outcome)

	if terr := m.session.Transition(statex.StageClosing, m.now()); terr != nil {
		return "", terr
	}
	if !outcome.Success {
		return m.composer.GeneralClosing(), nil
	}
	return m.composer.SuccessfulClosing(
		"sent you detailed information via email",
		"receive the email within the next few minutes",
		rec.Name,
	), nil
}

func (m *Machine) handleScheduling(ctx context.Context, utterance string) (string, error) {
	rec := m.recordForAction()
	outcome, err := m.actions.Dispatch(ctx, contractx.ActionRequest{
		Kind:   contractx.ActionCallback,
		Record: rec,
		Params: map[string]string{"preferred_time": preferredTime(utterance)},
	})
	if err != nil {
		log.Error().Str("call_id", m.session.CallID).Err(err).Msg("callback dispatch failed")
	}
	m.session.RecordOutcome(outcome)

	// Dispatch success and failure are both terminal for scheduling.
	if terr := m.session.Transition(statex.StageClosing, m.now()); terr != nil {
		return "", terr
	}
	if !outcome.Success {
		return m.composer.GeneralClosing(), nil
	}
	return m.composer.SuccessfulClosing(
		"scheduled a consultation call for you",
		"receive a confirmation email with the details",
		rec.Name,
	), nil
}

func (m *Machine) handleClosing(_ context.Context, utterance string) (string, error) {
	if containsAny(utterance, "no", "nothing", "goodbye", "bye", "thanks", "thank") {
		return m.composer.GeneralClosing(), nil
	}
	return m.composer.AnythingElse(), nil
}

func (m *Machine) emailOnRecord() string {
	if m.emailOverride != "" {
		return m.emailOverride
	}
	return strings.TrimSpace(m.session.Record().Email)
}

// recordForAction is the record snapshot handed to the dispatcher, with an
// address captured mid-call taking precedence over an empty record field.
func (m *Machine) recordForAction() contractx.CallerRecord {
	rec := m.session.Record()
	if rec.Email == "" && m.emailOverride != "" {
		rec.Email = m.emailOverride
	}
	return rec
}

var timeKeywords = []string{
	"tomorrow", "next week",
	"monday", "tuesday", "wednesday", "thursday", "friday",
	"morning", "afternoon", "evening",
}

// preferredTime pulls a scheduling preference out of the utterance,
// defaulting to tomorrow afternoon.
func preferredTime(utterance string) string {
	lower := strings.ToLower(utterance)
	for _, keyword := range timeKeywords {
		if strings.Contains(lower, keyword) {
			return keyword + " at 2 PM"
		}
	}
	return defaultPreferredTime
}

const defaultPreferredTime = "tomorrow at 2 PM"

func containsAny(utterance string, keywords ...string) bool {
	lower := strings.ToLower(utterance)
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
