package compose

import (
	contractx "github.com/biancassilva/pharmacy-sales-chatbot/agent/contract"
)

// fieldPrompts holds the question variants for each collected field, indexed
// by how many times the field has already been asked. Repeated extraction
// failures rephrase the question instead of repeating it verbatim.
var fieldPrompts = map[contractx.FieldKey][]string{
	contractx.FieldPharmacyName: {
		"What's the name of your pharmacy?",
		"Sorry, I didn't quite catch that. Could you tell me your pharmacy's name?",
		"Let me try once more - what is your pharmacy called?",
	},
	contractx.FieldLocation: {
		"Where is your pharmacy located?",
		"I missed that - which city or area is your pharmacy in?",
		"Could you tell me again where your pharmacy is based?",
	},
	contractx.FieldRxVolume: {
		"How many prescriptions do you typically process each month?",
		"Roughly how many prescriptions a month do you handle? A ballpark number is fine.",
		"Just the number is fine - about how many prescriptions per month?",
	},
	contractx.FieldContactPerson: {
		"Who should I speak with about pharmacy management solutions?",
		"And who is the best person to contact about this?",
		"Could you give me the name of the person I should follow up with?",
	},
	contractx.FieldEmail: {
		"What's the best email address to send you information?",
		"Sorry, I didn't get that - could you spell out your email address?",
		"One more time, please: what email should I send the details to?",
	},
}

const defaultFieldPrompt = "Could you provide that information?"

const highVolumeBenefits = `For high-volume pharmacies like yours, we offer:
- Advanced automation that can save 20+ hours per week
- Real-time inventory management with predictive ordering
- Custom workflow optimization
- Priority support and dedicated account management
- Volume-based pricing that scales with your business`

const midVolumeBenefits = `For pharmacies of your size, we provide:
- Streamlined prescription processing
- Automated inventory tracking
- Comprehensive reporting and analytics
- Integration with major pharmacy systems
- 24/7 technical support`

const starterBenefits = `We can help you:
- Automate routine tasks
- Improve inventory management
- Enhance patient care coordination
- Reduce operational costs
- Scale as your business grows`

const followUpOptions = `I'd be happy to help you get started. We can:

1. Send you detailed information via email
2. Schedule a consultation call to discuss your specific needs

What would work best for you?`

const callbackOffer = `I'd love to schedule a more detailed consultation to discuss your specific needs. We can go through your current processes and show you exactly how Pharmesol can help optimize your operations.

What would be a good time for a follow-up call? I'm available most weekdays between 9 AM and 5 PM.`

const generalClosing = `Thank you for calling Pharmesol today. We appreciate your interest in our pharmacy management solutions.

If you have any questions or would like to follow up, please don't hesitate to call us back at 1-800-PHARMESOL.

Have a great day!`

const anythingElse = "Is there anything else I can help you with today?"

const solutionContinuation = "I'd be happy to help you get started. We can send you detailed information or schedule a consultation call. What would work best for you?"

const followUpClarify = "I can send you detailed information via email or schedule a consultation call. Which would you prefer?"

const askEmail = "I'd be happy to send you information. What's your email address?"

const apology = "I apologize, but I'm having a little trouble on my end. Could we try that again?"

// discussionFallback is the free-turn template per stage when the generation
// capability is unavailable for a call.
var stageFallbacks = map[string]string{
	"discussing_solutions": solutionContinuation,
	"follow_up_offer":      followUpClarify,
	"scheduling":           callbackOffer,
	"closing":              anythingElse,
}

const genericFallback = "I'm here to help you with pharmacy management solutions. How can I assist you today?"
