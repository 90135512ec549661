package reports

import (
	"context"
	"log"
	"sync"

	"catatusaha/backend/internal/domain"
)

// DetailFetcher resolves one transaction's line items and stored footer.
type DetailFetcher interface {
	TransactionDetail(ctx context.Context, kind domain.Kind, id string) (domain.TransactionDetail, error)
}

// Resolver holds the currently opened drill-down panel, if any. At most one
// detail is open at a time; opening a new one replaces the previous.
type Resolver struct {
	fetcher DetailFetcher

	mu      sync.Mutex
	current *domain.TransactionDetail
}

func NewResolver(fetcher DetailFetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// Open fetches the detail for the given transaction and makes it current.
// A fetch failure logs and leaves the panel in its previous state.
func (r *Resolver) Open(ctx context.Context, kind domain.Kind, id string) error {
	detail, err := r.fetcher.TransactionDetail(ctx, kind, id)
	if err != nil {
		log.Printf("[reports] drill-down fetch %s failed: %v", id, err)
		return err
	}

	r.mu.Lock()
	r.current = &detail
	r.mu.Unlock()
	return nil
}

// Close dismisses the open panel. Closing an already closed panel is a no-op.
func (r *Resolver) Close() {
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()
}

// Current returns the open detail, or false when nothing is open.
func (r *Resolver) Current() (domain.TransactionDetail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return domain.TransactionDetail{}, false
	}
	return *r.current, true
}
