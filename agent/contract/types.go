package contract

import "time"

// CallerRecord is structured pharmacy data produced by a directory lookup,
// or assembled from a completed lead. Immutable once constructed.
type CallerRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Location      string `json:"location"`
	RxVolume      int    `json:"rx_volume"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// HighVolumeThreshold is the monthly prescription count at which a pharmacy
// qualifies for the high-volume program.
const HighVolumeThreshold = 1000

// HighVolume reports whether the record qualifies for high-volume benefits.
func (r CallerRecord) HighVolume() bool {
	return r.RxVolume >= HighVolumeThreshold
}

// FieldKey identifies one structured field collected during a call.
type FieldKey string

const (
	FieldPharmacyName  FieldKey = "pharmacy_name"
	FieldLocation      FieldKey = "location"
	FieldRxVolume      FieldKey = "rx_volume"
	FieldContactPerson FieldKey = "contact_person"
	FieldEmail         FieldKey = "email"
)

// CollectionOrder is the fixed order in which missing fields are requested.
var CollectionOrder = []FieldKey{
	FieldPharmacyName,
	FieldLocation,
	FieldRxVolume,
	FieldContactPerson,
	FieldEmail,
}

// Role marks the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the bounded conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the stage-rendering call shape of the generation
// capability: persona, record snapshot and a bounded history window.
type GenerateRequest struct {
	System      string
	Stage       string
	Record      CallerRecord
	History     []Turn
	UserMessage string
}

// ExtractFieldRequest is the narrower field-scoped call shape used by the
// extraction engine. Exactly one target field per request.
type ExtractFieldRequest struct {
	Field     FieldKey
	Prompt    string
	Utterance string
}

// ActionKind is a follow-up action type.
type ActionKind string

const (
	ActionEmail    ActionKind = "email"
	ActionCallback ActionKind = "callback"
)

// ActionRequest asks the dispatcher to execute one follow-up action.
type ActionRequest struct {
	Kind   ActionKind
	Record CallerRecord
	Params map[string]string
}

// ActionOutcome reports the result of a dispatched action. TrackingID is an
// opaque identifier for correlating with the downstream system.
type ActionOutcome struct {
	Kind         ActionKind `json:"kind"`
	Success      bool       `json:"success"`
	TrackingID   string     `json:"tracking_id"`
	Message      string     `json:"message"`
	DispatchedAt time.Time  `json:"dispatched_at"`
}
