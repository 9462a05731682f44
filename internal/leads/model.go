package leads

import (
	"net/mail"
	"strings"
	"time"
)

// Lead sources and statuses.
const (
	SourceChatbot = "chatbot"
	SourceWebForm = "web_form"

	StatusNew = "new"
)

// Lead is a captured contact record for a prospective client.
type Lead struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Email           string     `json:"email,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Company         string     `json:"company,omitempty"`
	Position        string     `json:"position,omitempty"`
	CompanySize     string     `json:"company_size,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	ServiceInterest string     `json:"service_interest,omitempty"`
	Budget          string     `json:"budget,omitempty"`
	Timeline        string     `json:"timeline,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	Score           int        `json:"score"`
	Source          string     `json:"source"`
	Consent         bool       `json:"consent"`
	ConsentAt       *time.Time `json:"consent_at,omitempty"`
	Status          string     `json:"status"`
	SessionID       string     `json:"session_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	Phone           string     `json:"phone"`
	Company         string     `json:"company"`
	Position        string     `json:"position"`
	CompanySize     string     `json:"company_size"`
	Industry        string     `json:"industry"`
	ServiceInterest string     `json:"service_interest"`
	Budget          string     `json:"budget"`
	Timeline        string     `json:"timeline"`
	Notes           string     `json:"notes"`
	Source          string     `json:"source"`
	Consent         bool       `json:"consent"`
	ConsentAt       *time.Time `json:"-"`
	Status          string     `json:"-"`
	SessionID       string     `json:"-"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	if email := strings.TrimSpace(r.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return ErrInvalidEmail
		}
	}
	return nil
}

// normalize trims fields and applies defaults.
func (r *CreateLeadRequest) normalize(now time.Time) {
	for _, f := range []*string{
		&r.Name, &r.Email, &r.Phone, &r.Company, &r.Position, &r.CompanySize,
		&r.Industry, &r.ServiceInterest, &r.Budget, &r.Timeline, &r.Notes,
	} {
		*f = strings.TrimSpace(*f)
	}
	r.Email = strings.ToLower(r.Email)
	if r.Source == "" {
		r.Source = SourceWebForm
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
	if r.Consent && r.ConsentAt == nil {
		at := now.UTC()
		r.ConsentAt = &at
	}
}

func (r *CreateLeadRequest) toLead(id string, createdAt time.Time) *Lead {
	return &Lead{
		ID:              id,
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		Company:         r.Company,
		Position:        r.Position,
		CompanySize:     r.CompanySize,
		Industry:        r.Industry,
		ServiceInterest: r.ServiceInterest,
		Budget:          r.Budget,
		Timeline:        r.Timeline,
		Notes:           r.Notes,
		Score:           r.Score(),
		Source:          r.Source,
		Consent:         r.Consent,
		ConsentAt:       r.ConsentAt,
		Status:          r.Status,
		SessionID:       r.SessionID,
		CreatedAt:       createdAt,
	}
}

// Score is the additive qualification score of the contact fields present.
func (r *CreateLeadRequest) Score() int {
	return Score(r.Email, r.Phone, r.Company, r.Position, r.Budget, r.Timeline)
}

// Score returns +25 for email, +25 for phone, +15 each for company and
// position, +10 each for budget and timeline, capped at 100.
func Score(email, phone, company, position, budget, timeline string) int {
	weights := []struct {
		value  string
		weight int
	}{
		{email, 25},
		{phone, 25},
		{company, 15},
		{position, 15},
		{budget, 10},
		{timeline, 10},
	}
	score := 0
	for _, w := range weights {
		if strings.TrimSpace(w.value) != "" {
			score += w.weight
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// ListLeadsFilter narrows admin listings.
type ListLeadsFilter struct {
	Status   string
	Source   string
	MinScore int
	Limit    int
	Offset   int
}

func (f ListLeadsFilter) matches(l *Lead) bool {
	return (f.Status == "" || l.Status == f.Status) &&
		(f.Source == "" || l.Source == f.Source) &&
		l.Score >= f.MinScore
}
