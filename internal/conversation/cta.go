package conversation

import (
	"regexp"
	"strings"
)

// CTA is a call to action rendered under an assistant message.
type CTA struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

var ctaRules = []struct {
	pattern *regexp.Regexp
	cta     CTA
}{
	{regexp.MustCompile(`\b(price|prices|pricing|cost|costs|fee|fees|rs\.?|inr)\b|₹\s?\d`), CTA{Kind: "pricing", Label: "View services & pricing", Path: "/services"}},
	{regexp.MustCompile(`\b(book|booking|schedule|consultation|appointment)\b`), CTA{Kind: "booking", Label: "Book a consultation", Path: "/contact"}},
	{regexp.MustCompile(`\bwhats\s?app\b`), CTA{Kind: "whatsapp", Label: "Chat on WhatsApp", Path: "/whatsapp"}},
	{regexp.MustCompile(`\b(calculator|calculators|calculate|estimate)\b`), CTA{Kind: "calculator", Label: "Try our calculators", Path: "/calculators"}},
}

// ExtractCTA returns the first call to action suggested by an assistant
// message, or nil when none applies.
func ExtractCTA(message string) *CTA {
	text := strings.ToLower(message)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	for _, rule := range ctaRules {
		if rule.pattern.MatchString(text) {
			cta := rule.cta
			return &cta
		}
	}
	return nil
}
