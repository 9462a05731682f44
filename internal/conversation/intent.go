package conversation

import (
	"regexp"
	"strings"
)

// Intent is the coarse topic of a user message, used to pick quick replies.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentPricing  Intent = "pricing"
	IntentServices Intent = "services"
	IntentBooking  Intent = "booking"
	IntentPayment  Intent = "payment"
	IntentContact  Intent = "contact"
	IntentGeneral  Intent = "general"
)

// Order matters: the first matching rule wins.
var intentRules = []struct {
	intent  Intent
	pattern *regexp.Regexp
}{
	{IntentPayment, regexp.MustCompile(`\b(pay|payment|checkout|invoice|razorpay|card|upi)\b`)},
	{IntentPricing, regexp.MustCompile(`\b(price|prices|pricing|cost|costs|fee|fees|charge|charges|how much|rate|rates|quote)\b`)},
	{IntentBooking, regexp.MustCompile(`\b(book|booking|schedule|appointment|consultation|call|meeting|slot|slots|available|availability)\b`)},
	{IntentServices, regexp.MustCompile(`\b(service|services|offer|offering|help with|payroll|recruit|recruitment|hiring|compliance|policy|policies|training|resume|tool|tools)\b`)},
	{IntentContact, regexp.MustCompile(`\b(contact|email|phone|whatsapp|reach|human|agent|person|talk to)\b`)},
	{IntentGreeting, regexp.MustCompile(`^\s*(hi|hello|hey|hiya|namaste|good (morning|afternoon|evening))\b`)},
}

// Classify maps free text to an Intent. It has no side effects.
func Classify(text string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return IntentGeneral
	}
	for _, rule := range intentRules {
		if rule.pattern.MatchString(normalized) {
			return rule.intent
		}
	}
	return IntentGeneral
}

// QuickReplies returns the canned suggestion chips for an intent.
func QuickReplies(intent Intent) []string {
	switch intent {
	case IntentGreeting:
		return []string{"See services", "View pricing", "Book a consultation"}
	case IntentPricing:
		return []string{"Compare plans", "Buy a tool", "Talk to a human"}
	case IntentServices:
		return []string{"View pricing", "Book a consultation", "Use a calculator"}
	case IntentBooking:
		return []string{"Show open slots", "Schedule a call", "Chat on WhatsApp"}
	case IntentPayment:
		return []string{"View pricing", "Payment help", "Talk to a human"}
	case IntentContact:
		return []string{"Chat on WhatsApp", "Schedule a call", "Send an email"}
	default:
		return []string{"See services", "View pricing", "Talk to a human"}
	}
}

// RetryQuickReplies are offered after a completion failure.
func RetryQuickReplies() []string {
	return []string{"Try again", "Talk to a human", "See services"}
}
