/*
service.go - Posting orchestration for loans

PURPOSE:
  The service is the single entry point for mutating a loan. It loads the
  ledger, runs the engine's posting pipeline, and persists the resulting
  delta atomically. Reads (balances, schedule, transactions) are served
  from the same derived state.

CONCURRENCY:
  One logical writer per loan. A per-loan mutex serializes posting cycles
  so two commands against the same loan can never interleave their
  reverse/replay work; commands against different loans run concurrently.

ATOMICITY:
  The whole posting cycle delta (transactions, withdrawals, relations,
  journal, schedule) commits through Store.WithTx. A fatal invariant
  violation inside the pipeline aborts before anything persists.

SEE ALSO:
  - engine/replay.go: the pipeline this service drives
  - store/sqlite: the production store
*/
package loan

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/loan-engine/engine"
)

// =============================================================================
// REPOSITORY - Product and loan records
// =============================================================================

// Repository persists products and loan records. The transaction log itself
// goes through engine.Store.
type Repository interface {
	SaveProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	SaveLoan(ctx context.Context, l Loan) error
	GetLoan(ctx context.Context, id engine.LoanID) (Loan, error)
	ListLoans(ctx context.Context) ([]Loan, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates posting and reads for all loans.
type Service struct {
	store engine.TxStore
	repo  Repository
	clock engine.Clock

	mu    sync.Mutex
	locks map[engine.LoanID]*sync.Mutex
}

// NewService builds a service. A nil clock defaults to the system clock.
func NewService(store engine.TxStore, repo Repository, clock engine.Clock) *Service {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &Service{
		store: store,
		repo:  repo,
		clock: clock,
		locks: make(map[engine.LoanID]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing one loan's posting cycles.
func (s *Service) lockFor(id engine.LoanID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// =============================================================================
// PRODUCT AND LOAN LIFECYCLE
// =============================================================================

// CreateProduct validates and stores a product.
func (s *Service) CreateProduct(ctx context.Context, p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.SaveProduct(ctx, p)
}

func (s *Service) GetProduct(ctx context.Context, id ProductID) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// OpenLoan creates a loan account under an existing product.
func (s *Service) OpenLoan(ctx context.Context, l Loan) (Loan, error) {
	if l.ID == "" {
		l.ID = engine.LoanID(engine.NewTransactionID())
	}
	if l.Currency == "" {
		l.Currency = "USD"
	}
	if _, err := s.repo.GetProduct(ctx, l.ProductID); err != nil {
		return Loan{}, err
	}
	if err := s.repo.SaveLoan(ctx, l); err != nil {
		return Loan{}, err
	}
	return l, nil
}

func (s *Service) GetLoan(ctx context.Context, id engine.LoanID) (Loan, error) {
	return s.repo.GetLoan(ctx, id)
}

func (s *Service) ListLoans(ctx context.Context) ([]Loan, error) {
	return s.repo.ListLoans(ctx)
}

// =============================================================================
// POSTING
// =============================================================================

// Post runs one posting cycle against a loan and persists it atomically.
func (s *Service) Post(ctx context.Context, loanID engine.LoanID, cmd engine.PostingCommand) (*engine.PostingOutcome, error) {
	lock := s.lockFor(loanID)
	lock.Lock()
	defer lock.Unlock()

	ldgr, product, err := s.loadLedger(ctx, loanID)
	if err != nil {
		return nil, err
	}

	coord := engine.NewCoordinator(product.Terms(), product.RefundGate())
	outcome, err := coord.Post(ldgr, cmd)
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(st engine.Store) error {
		if err := st.AppendTransaction(ctx, outcome.Posted); err != nil {
			return err
		}
		for _, tx := range outcome.Synthetic {
			if err := st.AppendTransaction(ctx, tx); err != nil {
				return err
			}
		}
		if len(outcome.Withdrawn) > 0 {
			if err := st.MarkWithdrawn(ctx, loanID, outcome.Withdrawn); err != nil {
				return err
			}
		}
		if len(outcome.NewRelations) > 0 {
			if err := st.SaveRelations(ctx, loanID, outcome.NewRelations); err != nil {
				return err
			}
		}
		if err := st.ReplaceJournal(ctx, loanID, outcome.Journal); err != nil {
			return err
		}
		return st.ReplaceSchedule(ctx, loanID, outcome.Schedule)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting posting cycle: %w", err)
	}
	return outcome, nil
}

// loadLedger rebuilds the working ledger of a loan from storage.
func (s *Service) loadLedger(ctx context.Context, loanID engine.LoanID) (*engine.Ledger, Product, error) {
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return nil, Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, l.ProductID)
	if err != nil {
		return nil, Product{}, err
	}

	txs, err := s.store.LoadTransactions(ctx, loanID)
	if err != nil {
		return nil, Product{}, err
	}
	withdrawn, err := s.store.LoadWithdrawn(ctx, loanID)
	if err != nil {
		return nil, Product{}, err
	}
	relations, err := s.store.LoadRelations(ctx, loanID)
	if err != nil {
		return nil, Product{}, err
	}
	return engine.NewLedger(loanID, product.Terms(), txs, withdrawn, relations), product, nil
}

// =============================================================================
// READS
// =============================================================================

// TransactionView is a transaction with its derived flags.
type TransactionView struct {
	engine.Transaction
	Withdrawn bool
	Replayed  bool
}

// Position is a loan with its derived balances and status.
type Position struct {
	Loan     Loan
	Product  Product
	Balances engine.Balances
	Status   LoanStatus
}

// PositionAsOf derives the loan's balances at a date. A zero date means
// today.
func (s *Service) PositionAsOf(ctx context.Context, loanID engine.LoanID, asOf engine.BusinessDate) (Position, error) {
	ldgr, product, err := s.loadLedger(ctx, loanID)
	if err != nil {
		return Position{}, err
	}
	l, err := s.repo.GetLoan(ctx, loanID)
	if err != nil {
		return Position{}, err
	}
	if asOf.IsZero() {
		asOf = s.clock.Today()
	}
	balances := ldgr.Balances(asOf)
	return Position{Loan: l, Product: product, Balances: balances, Status: StatusFor(balances)}, nil
}

// Transactions returns the loan's full log with withdrawn/replayed flags,
// in ledger order.
func (s *Service) Transactions(ctx context.Context, loanID engine.LoanID) ([]TransactionView, error) {
	ldgr, _, err := s.loadLedger(ctx, loanID)
	if err != nil {
		return nil, err
	}
	replayed := make(map[engine.TransactionID]bool)
	for _, r := range ldgr.Relations() {
		if r.Kind == engine.RelationReplayed {
			replayed[r.From] = true
		}
	}
	var out []TransactionView
	for _, tx := range ldgr.All() {
		out = append(out, TransactionView{
			Transaction: tx,
			Withdrawn:   ldgr.IsWithdrawn(tx.ID),
			Replayed:    replayed[tx.ID],
		})
	}
	return out, nil
}

// Schedule returns the loan's current amortization schedule.
func (s *Service) Schedule(ctx context.Context, loanID engine.LoanID) ([]engine.InstallmentPeriod, error) {
	if _, err := s.repo.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.store.LoadSchedule(ctx, loanID)
}

// TransactionRelations returns the relations touching one transaction.
func (s *Service) TransactionRelations(ctx context.Context, id engine.TransactionID) ([]engine.Relation, error) {
	if _, err := s.store.GetTransaction(ctx, id); err != nil {
		return nil, err
	}
	return s.store.RelationsFor(ctx, id)
}

// TransactionJournal returns the journal entries of one transaction.
func (s *Service) TransactionJournal(ctx context.Context, id engine.TransactionID) ([]engine.JournalEntry, error) {
	if _, err := s.store.GetTransaction(ctx, id); err != nil {
		return nil, err
	}
	return s.store.JournalFor(ctx, id)
}
