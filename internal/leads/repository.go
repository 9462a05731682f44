package leads

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores captured leads. PostgresRepository is the production
// implementation; InMemoryRepository backs development and tests.
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error)
}

type InMemoryRepository struct {
	mu    sync.RWMutex
	leads []Lead // insertion order
	now   func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{now: time.Now}
}

func (r *InMemoryRepository) Create(_ context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := r.now().UTC()
	req.normalize(now)
	lead := req.toLead(uuid.NewString(), now)

	r.mu.Lock()
	r.leads = append(r.leads, *lead)
	r.mu.Unlock()
	return lead, nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.leads, func(l Lead) bool { return l.ID == id })
	if i < 0 {
		return nil, ErrLeadNotFound
	}
	out := r.leads[i]
	return &out, nil
}

// List returns matching leads newest first, ties broken by insertion order.
func (r *InMemoryRepository) List(_ context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	r.mu.RLock()
	matched := make([]*Lead, 0, len(r.leads))
	for i := len(r.leads) - 1; i >= 0; i-- {
		if filter.matches(&r.leads[i]) {
			out := r.leads[i]
			matched = append(matched, &out)
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *Lead) int { return b.CreatedAt.Compare(a.CreatedAt) })

	if filter.Offset >= len(matched) {
		return []*Lead{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// Count returns the number of stored leads.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.leads)
}
