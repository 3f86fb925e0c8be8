package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

func newTestSession() *Session {
	return NewSession("call-1", "+15551234567", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from Stage
		to   Stage
		ok   bool
	}{
		{StageGreeting, StageCollectingInfo, true},
		{StageGreeting, StageDiscussingSolutions, true},
		{StageGreeting, StageScheduling, false},
		{StageCollectingInfo, StageDiscussingSolutions, true},
		{StageCollectingInfo, StageClosing, false},
		{StageDiscussingSolutions, StageFollowUpOffer, true},
		{StageDiscussingSolutions, StageCollectingInfo, false},
		{StageFollowUpOffer, StageScheduling, true},
		{StageFollowUpOffer, StageClosing, true},
		{StageScheduling, StageClosing, true},
		{StageClosing, StageGreeting, false},
		{StageClosing, StageClosing, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			t.Parallel()

			s := newTestSession()
			s.stage = tc.from
			err := s.Transition(tc.to, time.Now())
			if tc.ok && err != nil {
				t.Fatalf("expected transition %s -> %s to succeed, got %v", tc.from, tc.to, err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition for %s -> %s, got %v", tc.from, tc.to, err)
				}
				if s.Stage() != tc.from {
					t.Fatalf("failed transition must not move the stage, got %s", s.Stage())
				}
			}
		})
	}
}

func TestClosingIsTerminal(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	s.stage = StageClosing
	for _, to := range []Stage{StageGreeting, StageCollectingInfo, StageDiscussingSolutions, StageFollowUpOffer, StageScheduling} {
		if err := s.Transition(to, time.Now()); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected closing to be terminal, transition to %s gave %v", to, err)
		}
	}
}

func TestLeadRecordFillIsSticky(t *testing.T) {
	t.Parallel()

	l := NewLeadRecord()
	if err := l.Fill(contractx.FieldPharmacyName, TextValue("Sunset Pharmacy")); err != nil {
		t.Fatalf("first fill failed: %v", err)
	}
	err := l.Fill(contractx.FieldPharmacyName, TextValue("Other Name"))
	if !errors.Is(err, ErrFieldFilled) {
		t.Fatalf("expected ErrFieldFilled on second fill, got %v", err)
	}
	v, ok := l.Value(contractx.FieldPharmacyName)
	if !ok || v.Text != "Sunset Pharmacy" {
		t.Fatalf("filled value was overwritten: %+v", v)
	}
}

func TestLeadRecordFillUnknownField(t *testing.T) {
	t.Parallel()

	l := NewLeadRecord()
	if err := l.Fill("favorite_color", TextValue("blue")); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestNextMissingFollowsCollectionOrder(t *testing.T) {
	t.Parallel()

	l := NewLeadRecord()
	for _, want := range contractx.CollectionOrder {
		got, ok := l.NextMissing()
		if !ok || got != want {
			t.Fatalf("expected next missing %s, got %s ok=%v", want, got, ok)
		}
		l.MarkPending(got)
		if got, _ := l.NextMissing(); got != want {
			t.Fatalf("pending field must still count as missing, got %s", got)
		}
		var err error
		if want == contractx.FieldRxVolume {
			err = l.Fill(want, VolumeValue(800))
		} else {
			err = l.Fill(want, TextValue("value"))
		}
		if err != nil {
			t.Fatalf("fill %s failed: %v", want, err)
		}
	}
	if !l.Complete() {
		t.Fatal("expected record to be complete")
	}
	if _, ok := l.NextMissing(); ok {
		t.Fatal("complete record must have no missing field")
	}
}

func TestSnapshotDefaults(t *testing.T) {
	t.Parallel()

	l := NewLeadRecord()
	rec := l.Snapshot("+15550000000")
	if rec.ID != "lead" {
		t.Fatalf("expected snapshot id lead, got %q", rec.ID)
	}
	if rec.Phone != "+15550000000" {
		t.Fatalf("expected snapshot phone preserved, got %q", rec.Phone)
	}
	if rec.RxVolume != 0 || rec.Name != "" || rec.Email != "" {
		t.Fatalf("expected zero defaults, got %+v", rec)
	}

	if err := l.Fill(contractx.FieldRxVolume, VolumeValue(1500)); err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if got := l.Snapshot("x").RxVolume; got != 1500 {
		t.Fatalf("expected snapshot volume 1500, got %d", got)
	}
}

func TestHistoryWindowAndBound(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	for i := 0; i < maxHistoryTurns+10; i++ {
		s.AppendTurn(contractx.RoleUser, fmt.Sprintf("turn %d", i))
	}
	if s.TurnCount() != maxHistoryTurns+10 {
		t.Fatalf("turn count must keep counting past the bound, got %d", s.TurnCount())
	}

	window := s.HistoryWindow(10)
	if len(window) != 10 {
		t.Fatalf("expected window of 10, got %d", len(window))
	}
	if got := window[len(window)-1].Content; got != fmt.Sprintf("turn %d", maxHistoryTurns+9) {
		t.Fatalf("window must end at the most recent turn, got %q", got)
	}

	all := s.HistoryWindow(maxHistoryTurns * 2)
	if len(all) != maxHistoryTurns {
		t.Fatalf("transcript must be bounded at %d turns, got %d", maxHistoryTurns, len(all))
	}
}

func TestAIFailureLatch(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	s.RecordAIFailure()
	s.RecordAIFailure()
	if got := s.ConsecutiveAIFailures(); got != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", got)
	}
	s.ResetAIFailures()
	if got := s.ConsecutiveAIFailures(); got != 0 {
		t.Fatalf("expected reset to zero, got %d", got)
	}

	s.RecordAIFailure()
	s.MarkAIDowngraded()
	if !s.AIDowngraded() {
		t.Fatal("expected session downgraded")
	}
	// The downgrade is one way: a later success must not clear it.
	s.ResetAIFailures()
	if !s.AIDowngraded() {
		t.Fatal("downgrade must survive a failure-counter reset")
	}
}

func TestFieldFailureCounters(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	if got := s.RecordFieldFailure(contractx.FieldLocation); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := s.RecordFieldFailure(contractx.FieldLocation); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := s.FieldFailures(contractx.FieldRxVolume); got != 0 {
		t.Fatalf("counters must be per field, got %d", got)
	}
	s.ResetFieldFailures(contractx.FieldLocation)
	if got := s.FieldFailures(contractx.FieldLocation); got != 0 {
		t.Fatalf("expected reset to zero, got %d", got)
	}
}

func TestValidateRequiresRecordPastCollection(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	s.stage = StageDiscussingSolutions
	if err := s.Validate(); !errors.Is(err, ErrIncompleteRecord) {
		t.Fatalf("expected ErrIncompleteRecord, got %v", err)
	}

	s.SetCaller(&contractx.CallerRecord{ID: "1", Phone: "+15551234567"})
	if err := s.Validate(); err != nil {
		t.Fatalf("known caller must satisfy the invariant, got %v", err)
	}
}

func TestRecordPrefersCaller(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	if err := s.Lead().Fill(contractx.FieldPharmacyName, TextValue("Lead Pharmacy")); err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if got := s.Record().Name; got != "Lead Pharmacy" {
		t.Fatalf("expected lead snapshot, got %q", got)
	}

	s.SetCaller(&contractx.CallerRecord{ID: "9", Name: "HealthFirst", Phone: "+15551234567"})
	if got := s.Record().Name; got != "HealthFirst" {
		t.Fatalf("expected caller record to win, got %q", got)
	}
}

func TestSummaryFilledFieldsIsACopy(t *testing.T) {
	t.Parallel()

	s := newTestSession()
	s.SetCaller(&contractx.CallerRecord{ID: "3", Name: "HealthFirst", Phone: "+15551234567"})

	filled := s.Summary().FilledFields
	if len(filled) != len(contractx.CollectionOrder) {
		t.Fatalf("expected all fields for a known caller, got %v", filled)
	}

	filled[0] = contractx.FieldEmail
	if got := contractx.CollectionOrder[0]; got != contractx.FieldPharmacyName {
		t.Fatalf("mutating the summary corrupted the collection order, got %q", got)
	}
}
