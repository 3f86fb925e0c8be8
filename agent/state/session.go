package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

// Stage is the conversation's current phase. Progression is a graph, not a
// line: greeting branches on lookup outcome, follow-up branches on caller
// intent, and closing is terminal.
type Stage string

const (
	StageGreeting            Stage = "greeting"
	StageCollectingInfo      Stage = "collecting_info"
	StageDiscussingSolutions Stage = "discussing_solutions"
	StageFollowUpOffer       Stage = "follow_up_offer"
	StageScheduling          Stage = "scheduling"
	StageClosing             Stage = "closing"
)

// allowedTransitions is the transition table keyed by source stage.
// StageClosing has no outgoing edges.
var allowedTransitions = map[Stage][]Stage{
	StageGreeting:            {StageCollectingInfo, StageDiscussingSolutions},
	StageCollectingInfo:      {StageDiscussingSolutions},
	StageDiscussingSolutions: {StageFollowUpOffer},
	StageFollowUpOffer:       {StageScheduling, StageClosing},
	StageScheduling:          {StageClosing},
	StageClosing:             {},
}

var (
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrFieldFilled       = errors.New("field already filled")
	ErrUnknownField      = errors.New("unknown field")
	ErrIncompleteRecord  = errors.New("record incomplete for stage")
)

// FieldStatus tracks the lifecycle of one lead field.
type FieldStatus string

const (
	FieldUnset   FieldStatus = "unset"
	FieldPending FieldStatus = "pending"
	FieldFilled  FieldStatus = "filled"
)

// FieldValue is the extracted value for one field. Volume carries the parsed
// integer for rx_volume; all other fields use Text.
type FieldValue struct {
	Status FieldStatus
	Text   string
	Volume int
}

// TextValue builds a filled text field value.
func TextValue(text string) FieldValue {
	return FieldValue{Status: FieldFilled, Text: text}
}

// VolumeValue builds a filled rx volume value.
func VolumeValue(n int) FieldValue {
	return FieldValue{Status: FieldFilled, Volume: n}
}

// LeadRecord is the structured record built incrementally for an unknown
// caller. Filled fields are sticky: Fill refuses to overwrite them.
type LeadRecord struct {
	fields map[contractx.FieldKey]FieldValue
}

func NewLeadRecord() *LeadRecord {
	fields := make(map[contractx.FieldKey]FieldValue, len(contractx.CollectionOrder))
	for _, key := range contractx.CollectionOrder {
		fields[key] = FieldValue{Status: FieldUnset}
	}
	return &LeadRecord{fields: fields}
}

func (l *LeadRecord) Status(key contractx.FieldKey) FieldStatus {
	v, ok := l.fields[key]
	if !ok {
		return FieldUnset
	}
	return v.Status
}

func (l *LeadRecord) Value(key contractx.FieldKey) (FieldValue, bool) {
	v, ok := l.fields[key]
	return v, ok && v.Status == FieldFilled
}

// MarkPending notes that the field has been asked for. Filled fields are
// left untouched.
func (l *LeadRecord) MarkPending(key contractx.FieldKey) {
	v, ok := l.fields[key]
	if !ok || v.Status == FieldFilled {
		return
	}
	v.Status = FieldPending
	l.fields[key] = v
}

// Fill sets a field value. A field already filled returns ErrFieldFilled;
// corrections to settled fields are out of scope.
func (l *LeadRecord) Fill(key contractx.FieldKey, v FieldValue) error {
	cur, ok := l.fields[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if cur.Status == FieldFilled {
		return fmt.Errorf("%w: %s", ErrFieldFilled, key)
	}
	v.Status = FieldFilled
	l.fields[key] = v
	return nil
}

// Complete reports whether every required field is filled.
func (l *LeadRecord) Complete() bool {
	for _, key := range contractx.CollectionOrder {
		if l.Status(key) != FieldFilled {
			return false
		}
	}
	return true
}

// NextMissing returns the first field, in collection order, that is still
// unset or pending.
func (l *LeadRecord) NextMissing() (contractx.FieldKey, bool) {
	for _, key := range contractx.CollectionOrder {
		if l.Status(key) != FieldFilled {
			return key, true
		}
	}
	return "", false
}

// FilledFields lists filled fields in collection order.
func (l *LeadRecord) FilledFields() []contractx.FieldKey {
	filled := make([]contractx.FieldKey, 0, len(contractx.CollectionOrder))
	for _, key := range contractx.CollectionOrder {
		if l.Status(key) == FieldFilled {
			filled = append(filled, key)
		}
	}
	return filled
}

// Snapshot assembles a CallerRecord from the filled fields. Unfilled fields
// take their documented defaults.
func (l *LeadRecord) Snapshot(phone string) contractx.CallerRecord {
	rec := contractx.CallerRecord{ID: "lead", Phone: phone}
	if v, ok := l.Value(contractx.FieldPharmacyName); ok {
		rec.Name = v.Text
	}
	if v, ok := l.Value(contractx.FieldLocation); ok {
		rec.Location = v.Text
	}
	if v, ok := l.Value(contractx.FieldRxVolume); ok {
		rec.RxVolume = v.Volume
	}
	if v, ok := l.Value(contractx.FieldContactPerson); ok {
		rec.ContactPerson = v.Text
	}
	if v, ok := l.Value(contractx.FieldEmail); ok {
		rec.Email = v.Text
	}
	return rec
}

const (
	// maxHistoryTurns bounds the in-memory transcript.
	maxHistoryTurns = 50
)

// Session holds the state of one inbound call: current stage, the caller or
// lead record, the bounded transcript and the extraction failure counters.
// A Session has a single owner and is processed sequentially; it is never
// shared across concurrent calls.
type Session struct {
	CallID string
	Phone  string

	stage  Stage
	caller *contractx.CallerRecord
	lead   *LeadRecord

	history   []contractx.Turn
	turnCount int

	fieldFailures         map[contractx.FieldKey]int
	consecutiveAIFailures int
	aiDowngraded          bool

	outcomes []contractx.ActionOutcome

	StartedAt time.Time
	UpdatedAt time.Time
}

func NewSession(callID, phone string, now time.Time) *Session {
	return &Session{
		CallID:        callID,
		Phone:         phone,
		stage:         StageGreeting,
		lead:          NewLeadRecord(),
		fieldFailures: make(map[contractx.FieldKey]int, len(contractx.CollectionOrder)),
		StartedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}
}

func (s *Session) Stage() Stage {
	return s.stage
}

// Transition moves the session to the target stage if the transition table
// allows it. Closing is terminal: every transition out of it fails.
func (s *Session) Transition(to Stage, now time.Time) error {
	for _, allowed := range allowedTransitions[s.stage] {
		if allowed == to {
			s.stage = to
			s.Touch(now)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.stage, to)
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// SetCaller attaches the directory record for a recognized caller.
func (s *Session) SetCaller(rec *contractx.CallerRecord) {
	s.caller = rec
}

func (s *Session) Caller() *contractx.CallerRecord {
	return s.caller
}

func (s *Session) Lead() *LeadRecord {
	return s.lead
}

// Record returns the best available record snapshot: the directory record
// when the caller is known, otherwise the lead built so far.
func (s *Session) Record() contractx.CallerRecord {
	if s.caller != nil {
		return *s.caller
	}
	return s.lead.Snapshot(s.Phone)
}

// AppendTurn records one utterance, keeping only the most recent
// maxHistoryTurns entries.
func (s *Session) AppendTurn(role contractx.Role, content string) {
	s.history = append(s.history, contractx.Turn{Role: role, Content: content})
	s.turnCount++
	if len(s.history) > maxHistoryTurns {
		s.history = s.history[len(s.history)-maxHistoryTurns:]
	}
}

// HistoryWindow returns up to n most recent turns.
func (s *Session) HistoryWindow(n int) []contractx.Turn {
	if n <= 0 || len(s.history) == 0 {
		return nil
	}
	if len(s.history) <= n {
		return append([]contractx.Turn(nil), s.history...)
	}
	return append([]contractx.Turn(nil), s.history[len(s.history)-n:]...)
}

func (s *Session) TurnCount() int {
	return s.turnCount
}

// RecordFieldFailure bumps the extraction failure counter for one field and
// returns the new count. The counter never decreases except through
// ResetFieldFailures on a successful fill.
func (s *Session) RecordFieldFailure(key contractx.FieldKey) int {
	s.fieldFailures[key]++
	return s.fieldFailures[key]
}

func (s *Session) ResetFieldFailures(key contractx.FieldKey) {
	delete(s.fieldFailures, key)
}

func (s *Session) FieldFailures(key contractx.FieldKey) int {
	return s.fieldFailures[key]
}

// RecordAIFailure bumps the consecutive AI-tier failure counter.
func (s *Session) RecordAIFailure() int {
	s.consecutiveAIFailures++
	return s.consecutiveAIFailures
}

// ResetAIFailures clears the consecutive counter after an AI-tier success.
// It has no effect once the session is downgraded.
func (s *Session) ResetAIFailures() {
	if s.aiDowngraded {
		return
	}
	s.consecutiveAIFailures = 0
}

func (s *Session) ConsecutiveAIFailures() int {
	return s.consecutiveAIFailures
}

// MarkAIDowngraded latches the session into deterministic extraction.
// The downgrade is one-way for the remainder of the session.
func (s *Session) MarkAIDowngraded() {
	s.aiDowngraded = true
}

func (s *Session) AIDowngraded() bool {
	return s.aiDowngraded
}

func (s *Session) RecordOutcome(o contractx.ActionOutcome) {
	s.outcomes = append(s.outcomes, o)
}

func (s *Session) Outcomes() []contractx.ActionOutcome {
	return append([]contractx.ActionOutcome(nil), s.outcomes...)
}

// Validate checks the session invariants: a known stage and, from
// DiscussingSolutions onward, a fully filled record.
func (s *Session) Validate() error {
	if _, ok := allowedTransitions[s.stage]; !ok {
		return fmt.Errorf("unknown stage %q", s.stage)
	}
	switch s.stage {
	case StageDiscussingSolutions, StageFollowUpOffer, StageScheduling, StageClosing:
		if s.caller == nil && !s.lead.Complete() {
			return fmt.Errorf("%w: stage=%s", ErrIncompleteRecord, s.stage)
		}
	}
	return nil
}

// Summary is a read-only snapshot for logging and observability.
type Summary struct {
	CallID         string                    `json:"call_id"`
	Stage          Stage                     `json:"stage"`
	KnownCaller    bool                      `json:"known_caller"`
	FilledFields   []contractx.FieldKey      `json:"filled_fields"`
	TurnCount      int                       `json:"turn_count"`
	AIDowngraded   bool                      `json:"ai_downgraded"`
	ActionOutcomes []contractx.ActionOutcome `json:"action_outcomes,omitempty"`
}

func (s *Session) Summary() Summary {
	filled := s.lead.FilledFields()
	if s.caller != nil {
		filled = append([]contractx.FieldKey(nil), contractx.CollectionOrder...)
	}
	return Summary{
		CallID:         s.CallID,
		Stage:          s.stage,
		KnownCaller:    s.caller != nil,
		FilledFields:   filled,
		TurnCount:      s.turnCount,
		AIDowngraded:   s.aiDowngraded,
		ActionOutcomes: s.Outcomes(),
	}
}
