package prompt

import (
	_ "embed"
	"strings"

	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/extract_field.txt
	extractFieldRaw string

	//go:embed template/greeting_customer.txt
	greetingCustomerRaw string

	//go:embed template/greeting_lead.txt
	greetingLeadRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	System           string
	ExtractField     string
	GreetingCustomer string
	GreetingLead     string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings. Safe to
// call concurrently; the embed is compile-time and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:           strings.TrimSpace(systemRaw),
		ExtractField:     strings.TrimSpace(extractFieldRaw),
		GreetingCustomer: strings.TrimSpace(greetingCustomerRaw),
		GreetingLead:     strings.TrimSpace(greetingLeadRaw),
	}
}

// fieldDescriptions and fieldExamples scope the extraction prompt to one
// target field.
var fieldDescriptions = map[contractx.FieldKey]string{
	contractx.FieldPharmacyName:  "business name, pharmacy name, or company name",
	contractx.FieldLocation:      "city, state, or address",
	contractx.FieldRxVolume:      "number representing monthly prescription volume",
	contractx.FieldContactPerson: "person's name or title",
	contractx.FieldEmail:         "email address",
}

var fieldExamples = map[contractx.FieldKey]string{
	contractx.FieldPharmacyName:  "Naturally, Natural Products, Main Street Pharmacy",
	contractx.FieldLocation:      "Orlando, New York, Los Angeles",
	contractx.FieldRxVolume:      "1000, 500, 2000",
	contractx.FieldContactPerson: "John Smith, My manager, Sarah Johnson",
	contractx.FieldEmail:         "john@pharmacy.com",
}

// RenderExtractField fills the field-scoped extraction prompt for one
// utterance and target field.
func (p PromptSet) RenderExtractField(field contractx.FieldKey, utterance string) string {
	description := fieldDescriptions[field]
	if description == "" {
		description = string(field)
	}
	examples := fieldExamples[field]
	if examples == "" {
		examples = "various"
	}

	return strings.NewReplacer(
		"{field}", string(field),
		"{utterance}", utterance,
		"{description}", description,
		"{examples}", examples,
	).Replace(p.ExtractField)
}

// RenderGreetingCustomer fills the known-caller greeting.
func (p PromptSet) RenderGreetingCustomer(name, location string, rxVolume string) string {
	if strings.TrimSpace(name) == "" {
		name = "your pharmacy"
	}
	if strings.TrimSpace(location) == "" {
		location = "your area"
	}
	return strings.NewReplacer(
		"{pharmacy_name}", name,
		"{location}", location,
		"{rx_volume}", rxVolume,
	).Replace(p.GreetingCustomer)
}

// RenderGreetingLead fills the new-lead greeting.
func (p PromptSet) RenderGreetingLead(botName string) string {
	if strings.TrimSpace(botName) == "" {
		botName = "Alex"
	}
	return strings.ReplaceAll(p.GreetingLead, "{bot_name}", botName)
}
