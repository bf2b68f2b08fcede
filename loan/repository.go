/*
repository.go - In-memory Repository implementation

For testing and local development; the SQLite store implements the same
interface for production use.
*/
package loan

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/loan-engine/engine"
)

// MemoryRepository keeps products and loans in maps.
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[ProductID]Product
	loans    map[engine.LoanID]Loan
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[ProductID]Product),
		loans:    make(map[engine.LoanID]Loan),
	}
}

func (r *MemoryRepository) SaveProduct(_ context.Context, p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *MemoryRepository) GetProduct(_ context.Context, id ProductID) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *MemoryRepository) ListProducts(_ context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) SaveLoan(_ context.Context, l Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loans[l.ID] = l
	return nil
}

func (r *MemoryRepository) GetLoan(_ context.Context, id engine.LoanID) (Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loans[id]
	if !ok {
		return Loan{}, engine.ErrLoanNotFound
	}
	return l, nil
}

func (r *MemoryRepository) ListLoans(_ context.Context) ([]Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Loan, 0, len(r.loans))
	for _, l := range r.loans {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
