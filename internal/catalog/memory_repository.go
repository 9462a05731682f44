package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Seed is the initial data for a MemoryRepository.
type Seed struct {
	Services []Service
	Prices   []Price
	Content  []Content
	Slots    []Slot
}

type memorySlot struct {
	Slot
	booked bool
}

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	services []Service
	prices   []Price
	content  map[string]Content
	slots    []*memorySlot
	calls    []ScheduledCall
	optIns   []WhatsAppOptIn
	now      func() time.Time
}

func NewMemoryRepository(seed Seed) *MemoryRepository {
	repo := &MemoryRepository{
		services: append([]Service(nil), seed.Services...),
		prices:   append([]Price(nil), seed.Prices...),
		content:  make(map[string]Content, len(seed.Content)),
		now:      time.Now,
	}
	for _, c := range seed.Content {
		repo.content[strings.ToLower(c.Key)] = c
	}
	for _, s := range seed.Slots {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		repo.slots = append(repo.slots, &memorySlot{Slot: s})
	}
	sort.Slice(repo.slots, func(i, j int) bool { return repo.slots[i].StartsAt.Before(repo.slots[j].StartsAt) })
	return repo
}

func (r *MemoryRepository) ListServices(_ context.Context, category string) ([]Service, error) {
	category = strings.TrimSpace(category)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		if category == "" || strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListPricing(_ context.Context, toolID string) ([]Price, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Price
	for _, p := range r.prices {
		if strings.EqualFold(p.ToolID, strings.TrimSpace(toolID)) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AmountPaise < out[j].AmountPaise })
	return out, nil
}

func (r *MemoryRepository) GetContent(_ context.Context, key string) (*Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.content[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (r *MemoryRepository) ListOpenSlots(_ context.Context, day time.Time) ([]Slot, error) {
	now := r.now()
	from, to := slotWindow(day, now)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Slot{}
	for _, s := range r.slots {
		if s.booked || s.StartsAt.Before(from) || !s.StartsAt.Before(to) || s.StartsAt.Before(now) {
			continue
		}
		out = append(out, s.Slot)
	}
	return out, nil
}

func (r *MemoryRepository) ScheduleCall(_ context.Context, req ScheduleCallRequest) (*ScheduledCall, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	call := ScheduledCall{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(req.Name),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		PreferredTime: strings.TrimSpace(req.PreferredTime),
		Topic:         strings.TrimSpace(req.Topic),
		Status:        CallStatusRequested,
		SessionID:     req.SessionID,
		CreatedAt:     r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if start, ok := preferredSlotStart(req.PreferredTime); ok {
		for _, s := range r.slots {
			if !s.StartsAt.Equal(start) {
				continue
			}
			if s.booked {
				return nil, ErrSlotUnavailable
			}
			s.booked = true
			call.SlotID = s.ID
			call.Status = CallStatusConfirmed
			break
		}
	}
	r.calls = append(r.calls, call)
	return &call, nil
}

func (r *MemoryRepository) RecordWhatsAppOptIn(_ context.Context, req WhatsAppOptInRequest) (*WhatsAppOptIn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	optIn := WhatsAppOptIn{
		ID:        uuid.NewString(),
		Phone:     strings.TrimSpace(req.Phone),
		Name:      strings.TrimSpace(req.Name),
		SessionID: req.SessionID,
		CreatedAt: r.now().UTC(),
	}
	r.mu.Lock()
	r.optIns = append(r.optIns, optIn)
	r.mu.Unlock()
	return &optIn, nil
}

// ScheduledCalls returns stored call requests.
func (r *MemoryRepository) ScheduledCalls() []ScheduledCall {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ScheduledCall(nil), r.calls...)
}

// OptIns returns stored WhatsApp opt-ins.
func (r *MemoryRepository) OptIns() []WhatsAppOptIn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]WhatsAppOptIn(nil), r.optIns...)
}

// DefaultSeed is the development catalog used when no database is configured.
func DefaultSeed(now time.Time) Seed {
	seed := Seed{
		Services: []Service{
			{ID: "resume-builder", Category: "tools", Name: "Resume Builder", Description: "ATS-friendly resume review and rewrite."},
			{ID: "hr-policy-kit", Category: "tools", Name: "HR Policy Kit", Description: "Editable HR policy templates for Indian startups."},
			{ID: "recruitment", Category: "consulting", Name: "Recruitment Support", Description: "End-to-end hiring for early-stage teams."},
			{ID: "payroll-compliance", Category: "consulting", Name: "Payroll & Compliance", Description: "PF, ESI and payroll setup with monthly compliance."},
		},
		Prices: []Price{
			{ID: "p-resume-single", ToolID: "resume-builder", Tier: "single report", AmountPaise: 49900, Currency: "INR"},
			{ID: "p-resume-pro", ToolID: "resume-builder", Tier: "pro (3 revisions)", AmountPaise: 129900, Currency: "INR"},
			{ID: "p-policy-kit", ToolID: "hr-policy-kit", Tier: "starter", AmountPaise: 299900, Currency: "INR"},
		},
		Content: []Content{
			{Key: "faq-refunds", Title: "Refunds", Body: "Digital tools are refundable within 7 days if the download link has not been used.", UpdatedAt: now},
			{Key: "faq-consultation", Title: "Free consultation", Body: "The first 30-minute consultation is free for companies under 200 employees.", UpdatedAt: now},
		},
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for d := 1; d <= 5; d++ {
		for _, hour := range []int{11, 15} {
			start := day.AddDate(0, 0, d).Add(time.Duration(hour) * time.Hour)
			seed.Slots = append(seed.Slots, Slot{StartsAt: start, EndsAt: start.Add(30 * time.Minute)})
		}
	}
	return seed
}
