package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

func TestCreateWebLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	notifier := &recordingNotifier{}
	handler := NewHandler(repo, notifier, logging.Default())

	reqBody := CreateLeadRequest{
		Name:            "Priya Sharma",
		Email:           "Priya@Example.com",
		Phone:           "+919876543210",
		Company:         "Acme Textiles",
		ServiceInterest: "payroll compliance",
		Source:          "chatbot",
		Consent:         true,
	}

	body, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/leads/web", bytes.NewReader(body))
	w := httptest.NewRecorder()

	handler.CreateWebLead(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}

	var lead Lead
	if err := json.NewDecoder(w.Body).Decode(&lead); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if lead.Email != "priya@example.com" {
		t.Errorf("expected normalized email, got %s", lead.Email)
	}
	if lead.Source != SourceWebForm {
		t.Errorf("expected source %s, got %s", SourceWebForm, lead.Source)
	}
	if lead.Score != 65 {
		t.Errorf("expected score 65, got %d", lead.Score)
	}
	if lead.ConsentAt == nil {
		t.Errorf("expected consent timestamp")
	}
	if len(notifier.leads) != 1 {
		t.Errorf("expected notifier to be called once, got %d", len(notifier.leads))
	}
}

func TestCreateWebLead_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"email":"a@example.com"}`},
		{"missing contact", `{"name":"John Doe"}`},
		{"bad email", `{"name":"John Doe","email":"not-an-email"}`},
		{"malformed json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewInMemoryRepository()
			handler := NewHandler(repo, nil, logging.Default())

			req := httptest.NewRequest(http.MethodPost, "/leads/web", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.CreateWebLead(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			if repo.Count() != 0 {
				t.Errorf("invalid lead must not be stored")
			}
		})
	}
}

func TestListLeads_Filters(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for _, req := range []*CreateLeadRequest{
		{Name: "Low", Email: "low@example.com", Source: SourceWebForm},
		{Name: "High", Email: "high@example.com", Phone: "98765", Company: "Acme", Source: SourceChatbot},
		{Name: "Mid", Email: "mid@example.com", Phone: "12345", Source: SourceChatbot},
	} {
		if _, err := repo.Create(ctx, req); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	handler := NewHandler(repo, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/leads?source=chatbot&min_score=60&limit=500", nil)
	w := httptest.NewRecorder()
	handler.ListLeads(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp ListLeadsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Count != 1 || resp.Leads[0].Name != "High" {
		t.Fatalf("expected only the high scoring chatbot lead, got %#v", resp.Leads)
	}
	if resp.Limit != 50 {
		t.Errorf("expected out of range limit to fall back to 50, got %d", resp.Limit)
	}
}

func TestCreateWebLead_ErrorBody(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/leads/web", strings.NewReader(`{"name":"John Doe"}`))
	w := httptest.NewRecorder()
	handler.CreateWebLead(w, req)

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "email or phone is required" {
		t.Errorf("unexpected error message %q", body["error"])
	}
}

func TestParseListFilter(t *testing.T) {
	tests := []struct {
		query string
		want  ListLeadsFilter
	}{
		{"", ListLeadsFilter{Limit: 50}},
		{"limit=20&offset=40", ListLeadsFilter{Limit: 20, Offset: 40}},
		{"limit=abc&offset=-1&min_score=101", ListLeadsFilter{Limit: 50}},
		{"status=+new+&source=web_form&min_score=30", ListLeadsFilter{Limit: 50, Status: "new", Source: "web_form", MinScore: 30}},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		if got := parseListFilter(q); got != tt.want {
			t.Errorf("parseListFilter(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestValidationErrorsWrapInvalidLead(t *testing.T) {
	for _, err := range []error{ErrInvalidName, ErrMissingContact, ErrInvalidEmail} {
		if !errors.Is(err, ErrInvalidLead) {
			t.Errorf("%v should wrap ErrInvalidLead", err)
		}
	}
}
