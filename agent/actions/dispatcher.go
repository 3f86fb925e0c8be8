// Package actions executes follow-up actions for a call: sending the
// information email and scheduling the consultation callback. Delivery is
// mocked; the dispatcher records each request and reports an outcome with an
// opaque tracking identifier.
package actions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

const defaultPreferredTime = "tomorrow at 2 PM"

// EmailRecord is one mock-sent email.
type EmailRecord struct {
	TrackingID    string    `json:"tracking_id"`
	ToEmail       string    `json:"to_email"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	PharmacyName  string    `json:"pharmacy_name"`
	ContactPerson string    `json:"contact_person"`
	SentAt        time.Time `json:"sent_at"`
}

// CallbackRecord is one mock-scheduled callback.
type CallbackRecord struct {
	TrackingID    string    `json:"tracking_id"`
	PhoneNumber   string    `json:"phone_number"`
	PreferredTime string    `json:"preferred_time"`
	PharmacyName  string    `json:"pharmacy_name"`
	ContactPerson string    `json:"contact_person"`
	Notes         string    `json:"notes,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// Dispatcher is the mock action executor. One Dispatcher is shared by all
// concurrent call sessions, so its histories are mutex-guarded.
type Dispatcher struct {
	mu        sync.Mutex
	emails    []EmailRecord
	callbacks []CallbackRecord

	now func() time.Time
}

var _ contractx.ActionDispatcher = (*Dispatcher)(nil)

func NewDispatcher() *Dispatcher {
	return &Dispatcher{now: time.Now}
}

// Dispatch executes one follow-up action and reports the outcome.
func (d *Dispatcher) Dispatch(_ context.Context, req contractx.ActionRequest) (contractx.ActionOutcome, error) {
	switch req.Kind {
	case contractx.ActionEmail:
		return d.sendEmail(req), nil
	case contractx.ActionCallback:
		return d.scheduleCallback(req), nil
	default:
		return contractx.ActionOutcome{
			Kind:         req.Kind,
			Success:      false,
			Message:      fmt.Sprintf("unknown action kind %q", req.Kind),
			DispatchedAt: d.now().UTC(),
		}, fmt.Errorf("%w: unknown action kind %q", contractx.ErrValidation, req.Kind)
	}
}

func (d *Dispatcher) sendEmail(req contractx.ActionRequest) contractx.ActionOutcome {
	rec := req.Record
	to := strings.TrimSpace(rec.Email)
	if override := strings.TrimSpace(req.Params["to"]); override != "" {
		to = override
	}
	now := d.now().UTC()
	if to == "" {
		log.Warn().Str("pharmacy", rec.Name).Msg("email action without address")
		return contractx.ActionOutcome{
			Kind:         contractx.ActionEmail,
			Success:      false,
			Message:      "no email address on record",
			DispatchedAt: now,
		}
	}

	subject, body := emailContent(rec)
	email := EmailRecord{
		TrackingID:    uuid.NewString(),
		ToEmail:       to,
		Subject:       subject,
		Body:          body,
		PharmacyName:  rec.Name,
		ContactPerson: rec.ContactPerson,
		SentAt:        now,
	}

	d.mu.Lock()
	d.emails = append(d.emails, email)
	d.mu.Unlock()

	log.Info().Str("tracking_id", email.TrackingID).Str("to", to).Str("pharmacy", rec.Name).
		Msg("email dispatched")
	return contractx.ActionOutcome{
		Kind:         contractx.ActionEmail,
		Success:      true,
		TrackingID:   email.TrackingID,
		Message:      fmt.Sprintf("Email sent to %s at %s", orDefault(rec.ContactPerson, "the contact"), orDefault(rec.Name, "the pharmacy")),
		DispatchedAt: now,
	}
}

func (d *Dispatcher) scheduleCallback(req contractx.ActionRequest) contractx.ActionOutcome {
	rec := req.Record
	preferred := strings.TrimSpace(req.Params["preferred_time"])
	if preferred == "" {
		preferred = defaultPreferredTime
	}
	now := d.now().UTC()

	callback := CallbackRecord{
		TrackingID:    uuid.NewString(),
		PhoneNumber:   rec.Phone,
		PreferredTime: preferred,
		PharmacyName:  rec.Name,
		ContactPerson: rec.ContactPerson,
		Notes:         fmt.Sprintf("Consultation call for %s with Rx volume of %d", orDefault(rec.Name, "a new lead"), rec.RxVolume),
		ScheduledAt:   now,
	}

	d.mu.Lock()
	d.callbacks = append(d.callbacks, callback)
	d.mu.Unlock()

	log.Info().Str("tracking_id", callback.TrackingID).Str("preferred_time", preferred).
		Str("pharmacy", rec.Name).Msg("callback scheduled")
	return contractx.ActionOutcome{
		Kind:         contractx.ActionCallback,
		Success:      true,
		TrackingID:   callback.TrackingID,
		Message:      fmt.Sprintf("Callback scheduled for %s", preferred),
		DispatchedAt: now,
	}
}

// emailContent picks the welcome or the high-volume offer body.
func emailContent(rec contractx.CallerRecord) (string, string) {
	name := orDefault(rec.Name, "your pharmacy")
	contact := orDefault(rec.ContactPerson, "there")

	if rec.HighVolume() {
		subject := fmt.Sprintf("Special Offer for %s - High Volume Pharmacy Solutions", name)
		body := fmt.Sprintf(`Dear %s,

We noticed that %s processes %d prescriptions, making you a high-volume pharmacy that could greatly benefit from our advanced solutions.

As a high-volume pharmacy, you're eligible for:

- Priority implementation (2-week setup)
- Dedicated account manager
- Volume-based pricing discounts
- Advanced automation features
- Custom workflow optimization

Would you like to schedule a consultation to discuss how we can help streamline your operations?

Best regards,
The Pharmesol Team`, contact, name, rec.RxVolume)
		return subject, body
	}

	subject := fmt.Sprintf("Welcome to Pharmesol - Supporting %s", name)
	body := fmt.Sprintf(`Dear %s,

Thank you for your interest in Pharmesol! We're excited to help %s optimize your pharmacy operations.

Based on your current Rx volume of %d prescriptions, we can offer you:

- Advanced inventory management solutions
- Automated prescription processing
- Real-time analytics and reporting
- 24/7 technical support
- Custom integration with your existing systems

Our team will be in touch within 24 hours to discuss how we can best serve your pharmacy.

Best regards,
The Pharmesol Team`, contact, name, rec.RxVolume)
	return subject, body
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// EmailHistory returns a copy of the sent-email log.
func (d *Dispatcher) EmailHistory() []EmailRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EmailRecord(nil), d.emails...)
}

// CallbackHistory returns a copy of the scheduled-callback log.
func (d *Dispatcher) CallbackHistory() []CallbackRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]CallbackRecord(nil), d.callbacks...)
}

// ClearHistory drops both histories.
func (d *Dispatcher) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = nil
	d.callbacks = nil
}
