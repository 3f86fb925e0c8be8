package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	actionsx "github.com/biancassilva/pharmacy-sales-chatbot/agent/actions"
	composex "github.com/biancassilva/pharmacy-sales-chatbot/agent/compose"
	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
	extractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/extract"
	promptx "github.com/biancassilva/pharmacy-sales-chatbot/agent/prompt"
	statex "github.com/biancassilva/pharmacy-sales-chatbot/agent/state"
)

type fakeDirectory struct {
	rec   *contractx.CallerRecord
	err   error
	calls int
}

func (f *fakeDirectory) Lookup(_ context.Context, _ string) (*contractx.CallerRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.rec == nil {
		return nil, contractx.ErrNotFound
	}
	rec := *f.rec
	return &rec, nil
}

// newTestMachine wires a machine with a deterministic-only engine, a
// template-only composer and the in-memory dispatcher.
func newTestMachine(t *testing.T, dir contractx.Directory) (*Machine, *actionsx.Dispatcher) {
	t.Helper()

	prompts := promptx.LoadPromptSet()
	dispatcher := actionsx.NewDispatcher()
	m, err := New(Deps{
		Directory: dir,
		Engine:    extractx.NewEngine(nil, prompts, extractx.Config{}),
		Composer:  composex.New(nil, prompts, composex.Config{}),
		Actions:   dispatcher,
	})
	if err != nil {
		t.Fatalf("new machine failed: %v", err)
	}
	return m, dispatcher
}

func say(t *testing.T, m *Machine, utterance string) string {
	t.Helper()
	reply, err := m.HandleMessage(context.Background(), utterance)
	if err != nil {
		t.Fatalf("HandleMessage(%q) failed: %v", utterance, err)
	}
	if strings.TrimSpace(reply) == "" {
		t.Fatalf("HandleMessage(%q) returned an empty reply", utterance)
	}
	return reply
}

func TestStartCallKnownCaller(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "1", Name: "HealthFirst Pharmacy", Phone: "+1-555-123-4567",
		Location: "Austin", RxVolume: 1500, Email: "ops@healthfirst.com",
	}}
	m, _ := newTestMachine(t, dir)

	greeting, err := m.StartCall(context.Background(), "+1-555-123-4567")
	if err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if !strings.Contains(greeting, "HealthFirst Pharmacy") {
		t.Fatalf("greeting must reference the caller by name: %q", greeting)
	}
	if got := m.Session().Stage(); got != statex.StageDiscussingSolutions {
		t.Fatalf("known caller must skip collection, got stage %s", got)
	}
}

func TestKnownCallerHighVolumePitch(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "1", Name: "HealthFirst Pharmacy", Phone: "+1-555-123-4567",
		Location: "Austin", RxVolume: 1500, Email: "ops@healthfirst.com",
	}}
	m, _ := newTestMachine(t, dir)

	greeting, err := m.StartCall(context.Background(), "+1-555-123-4567")
	if err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if !strings.Contains(greeting, "HealthFirst Pharmacy") {
		t.Fatalf("greeting must reference the pharmacy name: %q", greeting)
	}

	// The first discussion turn pitches the high volume tier, whatever
	// the caller opens with.
	reply := say(t, m, "Our current system keeps falling over during refill rushes.")
	if !strings.Contains(reply, "high-volume pharmacies") {
		t.Fatalf("volume 1500 must hear the high volume pitch, got %q", reply)
	}
	if got := m.Session().Stage(); got != statex.StageDiscussingSolutions {
		t.Fatalf("pitch must not leave the stage, got %s", got)
	}

	reply = say(t, m, "Yes, that sounds interesting")
	if got := m.Session().Stage(); got != statex.StageFollowUpOffer {
		t.Fatalf("readiness after the pitch must move to follow-up, got %s", got)
	}
	if !strings.Contains(reply, "What would work best for you?") {
		t.Fatalf("expected the follow-up options, got %q", reply)
	}
}

func TestStartCallNewLead(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, &fakeDirectory{})

	greeting, err := m.StartCall(context.Background(), "+1-555-999-9999")
	if err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if strings.TrimSpace(greeting) == "" {
		t.Fatal("expected a greeting")
	}
	if got := m.Session().Stage(); got != statex.StageCollectingInfo {
		t.Fatalf("unknown caller must enter collection, got stage %s", got)
	}
}

func TestStartCallDirectoryFailureDegradesToNewLead(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{contractx.ErrTransient, contractx.ErrMalformedResponse} {
		m, _ := newTestMachine(t, &fakeDirectory{err: fmt.Errorf("wrapped: %w", cause)})

		greeting, err := m.StartCall(context.Background(), "+1-555-123-4567")
		if err != nil {
			t.Fatalf("directory failure must not fail the call: %v", err)
		}
		if strings.TrimSpace(greeting) == "" {
			t.Fatal("expected a greeting despite the failure")
		}
		if got := m.Session().Stage(); got != statex.StageCollectingInfo {
			t.Fatalf("expected collection stage, got %s", got)
		}
	}
}

func TestStartCallTwice(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, &fakeDirectory{})
	if _, err := m.StartCall(context.Background(), "+15551234567"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	if _, err := m.StartCall(context.Background(), "+15551234567"); !errors.Is(err, ErrCallAlreadyStarted) {
		t.Fatalf("expected ErrCallAlreadyStarted, got %v", err)
	}
}

func TestHandleMessageBeforeStart(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, &fakeDirectory{})
	if _, err := m.HandleMessage(context.Background(), "hello"); !errors.Is(err, ErrCallNotStarted) {
		t.Fatalf("expected ErrCallNotStarted, got %v", err)
	}
}

func TestNewLeadFullFlowToCallback(t *testing.T) {
	t.Parallel()

	m, dispatcher := newTestMachine(t, &fakeDirectory{})
	if _, err := m.StartCall(context.Background(), "555-999-9999"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	say(t, m, "My pharmacy is Sunset Pharmacy")
	if got := m.Session().Lead().Status(contractx.FieldPharmacyName); got != statex.FieldFilled {
		t.Fatalf("expected pharmacy name filled, got %s", got)
	}
	if got := m.Session().Stage(); got != statex.StageCollectingInfo {
		t.Fatalf("one field must not leave collection, got %s", got)
	}

	say(t, m, "We're located in San Diego")
	say(t, m, "We process about 800 prescriptions per month")
	say(t, m, "I'm Sarah Johnson, the pharmacy manager")

	reply := say(t, m, "My email is sarah@sunsetpharmacy.com")
	if got := m.Session().Stage(); got != statex.StageDiscussingSolutions {
		t.Fatalf("complete record must move to solutions, got %s", got)
	}
	if !strings.Contains(reply, "pharmacies of your size") {
		t.Fatalf("expected mid tier pitch for volume 800, got %q", reply)
	}

	reply = say(t, m, "Yes, we're very interested")
	if got := m.Session().Stage(); got != statex.StageFollowUpOffer {
		t.Fatalf("expected follow-up offer, got %s", got)
	}
	if !strings.Contains(reply, "What would work best for you?") {
		t.Fatalf("expected the follow-up options, got %q", reply)
	}

	reply = say(t, m, "A phone consultation would be great")
	if got := m.Session().Stage(); got != statex.StageScheduling {
		t.Fatalf("expected scheduling, got %s", got)
	}
	if !strings.Contains(reply, "follow-up call") {
		t.Fatalf("expected the callback offer, got %q", reply)
	}

	reply = say(t, m, "Tomorrow morning works for us")
	if got := m.Session().Stage(); got != statex.StageClosing {
		t.Fatalf("expected closing after scheduling, got %s", got)
	}
	if !strings.Contains(reply, "scheduled a consultation call") {
		t.Fatalf("expected scheduling confirmation, got %q", reply)
	}

	callbacks := dispatcher.CallbackHistory()
	if len(callbacks) != 1 {
		t.Fatalf("expected one callback scheduled, got %d", len(callbacks))
	}
	if callbacks[0].PreferredTime != "tomorrow at 2 PM" {
		t.Fatalf("expected the time keyword honored, got %q", callbacks[0].PreferredTime)
	}
	if callbacks[0].PharmacyName != "Sunset Pharmacy" {
		t.Fatalf("callback must carry the collected record, got %q", callbacks[0].PharmacyName)
	}

	outcomes := m.Summary().ActionOutcomes
	if len(outcomes) != 1 || !outcomes[0].Success {
		t.Fatalf("expected one successful outcome on the session, got %+v", outcomes)
	}
}

func TestCollectionRepromptsOnFailure(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, &fakeDirectory{})
	if _, err := m.StartCall(context.Background(), "555-999-9999"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	first := say(t, m, "well um not sure what you mean by all of that honestly")
	second := say(t, m, "still just thinking about what you could possibly mean here")
	if first == second {
		t.Fatal("repeated failures must rephrase the question")
	}
	if got := m.Session().Stage(); got != statex.StageCollectingInfo {
		t.Fatalf("failed extraction must stay in collection, got %s", got)
	}
	if got := m.Session().Lead().Status(contractx.FieldPharmacyName); got == statex.FieldFilled {
		t.Fatal("nothing must be filled from gibberish")
	}
}

func TestKnownCallerEmailFlow(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "1", Name: "HealthFirst", Phone: "+15551234567",
		RxVolume: 1500, Email: "ops@healthfirst.com",
	}}
	m, dispatcher := newTestMachine(t, dir)
	if _, err := m.StartCall(context.Background(), "+15551234567"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	reply := say(t, m, "Hi, things have been busy over here")
	if !strings.Contains(reply, "high-volume pharmacies") {
		t.Fatalf("expected the volume pitch first, got %q", reply)
	}
	say(t, m, "Yes, tell me more")
	reply = say(t, m, "Email would be great, please send the details")
	if got := m.Session().Stage(); got != statex.StageClosing {
		t.Fatalf("expected closing after the email, got %s", got)
	}
	if !strings.Contains(reply, "sent you detailed information via email") {
		t.Fatalf("expected email confirmation, got %q", reply)
	}

	emails := dispatcher.EmailHistory()
	if len(emails) != 1 {
		t.Fatalf("expected one email, got %d", len(emails))
	}
	if emails[0].ToEmail != "ops@healthfirst.com" {
		t.Fatalf("expected the record address, got %q", emails[0].ToEmail)
	}
	if !strings.Contains(emails[0].Subject, "High Volume") {
		t.Fatalf("volume 1500 must get the high volume offer, got %q", emails[0].Subject)
	}
}

func TestFollowUpAsksForMissingEmail(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "2", Name: "CareWell", Phone: "+15554443333", RxVolume: 400,
	}}
	m, dispatcher := newTestMachine(t, dir)
	if _, err := m.StartCall(context.Background(), "+15554443333"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	reply := say(t, m, "Hello, we saw your ad")
	if !strings.Contains(reply, "We can help you:") {
		t.Fatalf("volume 400 must hear the starter pitch, got %q", reply)
	}
	say(t, m, "Sure, I'd like more details")
	reply = say(t, m, "Email works for us")
	if !strings.Contains(reply, "email address") {
		t.Fatalf("expected the agent to ask for an address, got %q", reply)
	}
	if got := m.Session().Stage(); got != statex.StageFollowUpOffer {
		t.Fatalf("must stay in follow-up while the address is missing, got %s", got)
	}

	reply = say(t, m, "you can use frontdesk@carewell.com")
	if got := m.Session().Stage(); got != statex.StageClosing {
		t.Fatalf("expected closing after the captured address, got %s", got)
	}
	if !strings.Contains(reply, "sent you detailed information via email") {
		t.Fatalf("expected confirmation, got %q", reply)
	}
	if got := dispatcher.EmailHistory()[0].ToEmail; got != "frontdesk@carewell.com" {
		t.Fatalf("expected the captured address, got %q", got)
	}
}

func TestClosingIsTerminal(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "1", Name: "HealthFirst", Phone: "+15551234567",
		RxVolume: 1500, Email: "ops@healthfirst.com",
	}}
	m, _ := newTestMachine(t, dir)
	if _, err := m.StartCall(context.Background(), "+15551234567"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	say(t, m, "hello there")
	say(t, m, "yes")
	say(t, m, "email please")

	say(t, m, "actually what about pricing?")
	if got := m.Session().Stage(); got != statex.StageClosing {
		t.Fatalf("closing must be terminal, got %s", got)
	}
	reply := say(t, m, "no that's all, goodbye")
	if !strings.Contains(reply, "Have a great day!") {
		t.Fatalf("expected the farewell, got %q", reply)
	}
	if got := m.Session().Stage(); got != statex.StageClosing {
		t.Fatalf("closing must be terminal, got %s", got)
	}
}

func TestDiscussingStaysWithoutReadinessSignal(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{rec: &contractx.CallerRecord{
		ID: "1", Name: "HealthFirst", Phone: "+15551234567", RxVolume: 1500,
	}}
	m, _ := newTestMachine(t, dir)
	if _, err := m.StartCall(context.Background(), "+15551234567"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}

	say(t, m, "hello")
	say(t, m, "hmm, our budget cycle only opens in Q3")
	if got := m.Session().Stage(); got != statex.StageDiscussingSolutions {
		t.Fatalf("no readiness signal must stay in discussion, got %s", got)
	}
}

func TestSummarySnapshot(t *testing.T) {
	t.Parallel()

	m, _ := newTestMachine(t, &fakeDirectory{})
	if got := m.Summary(); got.CallID != "" {
		t.Fatalf("summary before start must be zero, got %+v", got)
	}

	if _, err := m.StartCall(context.Background(), "555-999-9999"); err != nil {
		t.Fatalf("start call failed: %v", err)
	}
	say(t, m, "My pharmacy is Sunset Pharmacy")

	summary := m.Summary()
	if summary.CallID == "" {
		t.Fatal("expected a call id")
	}
	if summary.Stage != statex.StageCollectingInfo {
		t.Fatalf("unexpected stage %s", summary.Stage)
	}
	if summary.KnownCaller {
		t.Fatal("expected unknown caller")
	}
	if len(summary.FilledFields) != 1 || summary.FilledFields[0] != contractx.FieldPharmacyName {
		t.Fatalf("expected exactly the pharmacy name filled, got %v", summary.FilledFields)
	}
}
