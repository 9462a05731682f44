package leads

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// Outcome is the result of one persist attempt.
type Outcome string

const (
	OutcomePersisted Outcome = "persisted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Notifier is told about every lead the persister writes.
type Notifier interface {
	LeadCaptured(ctx context.Context, lead *Lead) error
}

// Persister writes at most one chatbot lead per session for the life of the
// process. The processed set is in memory only: a restart or a second replica
// starts with an empty set.
type Persister struct {
	repo     Repository
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time

	mu        sync.Mutex
	processed map[string]struct{}
}

func NewPersister(repo Repository, notifier Notifier, logger *logging.Logger) *Persister {
	if repo == nil {
		panic("leads: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Persister{
		repo:      repo,
		notifier:  notifier,
		logger:    logger.Component("lead-persister"),
		now:       time.Now,
		processed: make(map[string]struct{}),
	}
}

// Processed reports whether the session already produced a persist attempt.
func (p *Persister) Processed(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.processed[sessionID]
	return ok
}

// Claim marks the session processed, returning false if it already was.
// Writers other than Persist, such as the create_lead tool, call it before
// storing a lead so each session yields at most one.
func (p *Persister) Claim(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.processed[sessionID]; ok {
		return false
	}
	p.processed[sessionID] = struct{}{}
	return true
}

// Persist writes the extracted lead. Records missing a name or an email are
// skipped without marking the session, so a later turn can complete them.
// A write failure still marks the session and returns OutcomeFailed with the
// error for logging.
func (p *Persister) Persist(ctx context.Context, sessionID string, extracted *Extracted) (Outcome, error) {
	if p.Processed(sessionID) {
		return OutcomeSkipped, nil
	}
	if extracted == nil || strings.TrimSpace(extracted.Name) == "" || strings.TrimSpace(extracted.Email) == "" {
		return OutcomeSkipped, nil
	}
	if !p.Claim(sessionID) {
		return OutcomeSkipped, nil
	}

	consentAt := p.now().UTC()
	req := &CreateLeadRequest{
		Name:            extracted.Name,
		Email:           extracted.Email,
		Phone:           extracted.Phone,
		Company:         extracted.Company,
		Position:        extracted.Position,
		CompanySize:     extracted.CompanySize,
		Industry:        extracted.Industry,
		ServiceInterest: extracted.ServiceInterest,
		Budget:          extracted.Budget,
		Timeline:        extracted.Timeline,
		Notes:           "Captured from chat session",
		Source:          SourceChatbot,
		Consent:         true,
		ConsentAt:       &consentAt,
		Status:          StatusNew,
		SessionID:       sessionID,
	}
	lead, err := p.repo.Create(ctx, req)
	if err != nil {
		p.logger.Error("failed to persist chatbot lead", "session_id", sessionID, "error", err)
		return OutcomeFailed, fmt.Errorf("leads: persist: %w", err)
	}

	p.logger.Info("chatbot lead persisted", "session_id", sessionID, "lead_id", lead.ID, "score", lead.Score)
	if p.notifier != nil {
		if err := p.notifier.LeadCaptured(ctx, lead); err != nil {
			p.logger.Warn("lead notification failed", "lead_id", lead.ID, "error", err)
		}
	}
	return OutcomePersisted, nil
}
