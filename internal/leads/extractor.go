package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
)

// extractionTemperature is the closest to deterministic the OpenAI client can
// send: a zero temperature is omitted from the request body and the provider
// default of 1 applies.
const extractionTemperature = 0.01

const extractionPrompt = `You extract contact details from a chat between a website visitor and an HR-consulting assistant.
Return ONLY a JSON object with exactly these keys:
{"name": null, "email": null, "phone": null, "company": null, "position": null, "company_size": null, "industry": null, "service_interest": null, "budget": null, "timeline": null}
Use a string value for each detail the VISITOR stated about themselves and null for anything not stated.
company_size may be a headcount or a stage such as "startup". Never guess. No prose, no code fences.`

// Extracted is the contact record pulled from a conversation. Empty strings
// mean the field was absent.
type Extracted struct {
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Company         string `json:"company,omitempty"`
	Position        string `json:"position,omitempty"`
	CompanySize     string `json:"company_size,omitempty"`
	Industry        string `json:"industry,omitempty"`
	ServiceInterest string `json:"service_interest,omitempty"`
	Budget          string `json:"budget,omitempty"`
	Timeline        string `json:"timeline,omitempty"`
}

// Score applies the lead scoring rule to the extracted fields.
func (e *Extracted) Score() int {
	if e == nil {
		return 0
	}
	return Score(e.Email, e.Phone, e.Company, e.Position, e.Budget, e.Timeline)
}

// Extractor asks a completion model to summarize a conversation into a contact record.
type Extractor struct {
	client conversation.LLMClient
	model  string
}

func NewExtractor(client conversation.LLMClient, model string) *Extractor {
	if client == nil {
		panic("leads: llm client required")
	}
	return &Extractor{client: client, model: model}
}

// Extract runs one independent completion over history. A response that is not
// a JSON object yields ErrExtractionFailure.
func (e *Extractor) Extract(ctx context.Context, history []conversation.ChatMessage) (*Extracted, error) {
	var transcript strings.Builder
	for _, msg := range history {
		if msg.Role != conversation.ChatRoleUser && msg.Role != conversation.ChatRoleAssistant {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", msg.Role, strings.TrimSpace(msg.Content))
	}
	if transcript.Len() == 0 {
		return &Extracted{}, nil
	}

	resp, err := e.client.Complete(ctx, conversation.LLMRequest{
		Model:       e.model,
		System:      []string{extractionPrompt},
		Messages:    []conversation.ChatMessage{{Role: conversation.ChatRoleUser, Content: transcript.String()}},
		MaxTokens:   300,
		Temperature: extractionTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("leads: extraction call: %w", err)
	}
	return ParseExtraction(resp.Text)
}

// ParseExtraction decodes the model output, tolerating surrounding prose or
// code fences by taking the outermost braces.
func ParseExtraction(raw string) (*Extracted, error) {
	content := strings.TrimSpace(raw)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrExtractionFailure)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	out := &Extracted{
		Name:            field(fields, "name"),
		Email:           strings.ToLower(field(fields, "email")),
		Phone:           field(fields, "phone"),
		Company:         field(fields, "company"),
		Position:        field(fields, "position"),
		CompanySize:     field(fields, "company_size"),
		Industry:        field(fields, "industry"),
		ServiceInterest: field(fields, "service_interest"),
		Budget:          field(fields, "budget"),
		Timeline:        field(fields, "timeline"),
	}
	return out, nil
}

func field(fields map[string]any, key string) string {
	var value string
	switch v := fields[key].(type) {
	case string:
		value = v
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		value = strconv.FormatBool(v)
	default:
		return ""
	}
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "null", "n/a", "na", "none", "unknown":
		return ""
	}
	return value
}
