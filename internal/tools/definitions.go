package tools

import (
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

func str(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: description}
}

func function(name, description string, props map[string]jsonschema.Definition, required ...string) openai.Tool {
	if required == nil {
		required = []string{}
	}
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type:       jsonschema.Object,
				Properties: props,
				Required:   required,
			},
		},
	}
}

// Definitions declares every tool the assistant may call.
func Definitions() []openai.Tool {
	return []openai.Tool{
		function(NameGetServices,
			"List the consulting services and self-serve tools on offer, optionally filtered by category.",
			map[string]jsonschema.Definition{
				"category": str("Optional category such as tools, consulting or compliance."),
			}),
		function(NameGetPricing,
			"Get current prices for one service or tool. Always call this before quoting a price.",
			map[string]jsonschema.Definition{
				"tool_id": str("Service or tool id from get_services, e.g. resume-builder."),
			}, "tool_id"),
		function(NameGetContent,
			"Fetch FAQ or page copy by key, e.g. faq-refunds or faq-consultation.",
			map[string]jsonschema.Definition{
				"key": str("Content key."),
			}, "key"),
		function(NameGetBookingSlots,
			"List open consultation slots on a date, or for the coming week when no date is given.",
			map[string]jsonschema.Definition{
				"date": str("Optional date in YYYY-MM-DD format."),
			}),
		function(NameCreateLead,
			"Save the visitor's contact details once they have shared a name and email and agreed to be contacted.",
			map[string]jsonschema.Definition{
				"name":             str("Visitor's full name."),
				"email":            str("Visitor's email address."),
				"phone":            str("Phone number, if shared."),
				"company":          str("Company name, if shared."),
				"service_interest": str("Service the visitor is interested in."),
				"notes":            str("Short summary of the visitor's need."),
			}, "name", "email"),
		function(NameScheduleCall,
			"Request a consultation call. preferred_time should be a slot start from get_booking_slots when possible.",
			map[string]jsonschema.Definition{
				"name":           str("Visitor's full name."),
				"email":          str("Visitor's email address."),
				"phone":          str("Phone number, if shared."),
				"preferred_time": str("RFC 3339 slot start, or the visitor's stated preference."),
				"topic":          str("What the call is about."),
			}, "name", "email", "preferred_time"),
		function(NameCreatePaymentOrder,
			"Create a payment order so the visitor can buy a priced tool.",
			map[string]jsonschema.Definition{
				"tool_id": str("Tool id being purchased."),
				"email":   str("Buyer's email address."),
				"name":    str("Buyer's name, if shared."),
			}, "tool_id", "email"),
		function(NameSendWhatsAppOptIn,
			"Record that the visitor agreed to be contacted on WhatsApp.",
			map[string]jsonschema.Definition{
				"phone": str("WhatsApp number including country code."),
				"name":  str("Visitor's name, if shared."),
			}, "phone"),
	}
}
