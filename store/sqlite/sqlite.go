/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.TxStore (transaction log, relations, journal, schedule)
  and loan.Repository (products, loans) using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table takes INSERTs only, plus a single-column UPDATE
  flipping the withdrawn flag. Amounts, dates and kinds are never updated
  and rows are never deleted; corrections happen through replay, not edits.
  The journal and schedule tables hold derived data and are replaced
  whenever a posting cycle regenerates them.

KEY TABLES:
  products:              Loan product configurations
  loans:                 Loan account records
  transactions:          Immutable ledger (withdrawn flag only mutation)
  transaction_relations: REPLAYED tags and refund pairings
  journal_entries:       Derived double-entry postings
  schedule_periods:      Derived amortization schedule

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery is cleaner.

USAGE:
  st, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/loan"
)

// Store implements engine.TxStore and loan.Repository using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Products
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		day_count TEXT NOT NULL,
		rest TEXT NOT NULL,
		multi_tranche BOOLEAN NOT NULL DEFAULT FALSE,
		max_tranche_count INTEGER NOT NULL DEFAULT 0,
		refund_kinds TEXT NOT NULL DEFAULT ''
	);

	-- Loans
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		external_ref TEXT,
		currency TEXT NOT NULL DEFAULT 'USD'
	);

	CREATE INDEX IF NOT EXISTS idx_loans_product ON loans(product_id);

	-- Transactions (append-only ledger; withdrawn is the only mutable column)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		withdrawn BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Hot path: rebuilding a loan's ledger in order
	CREATE INDEX IF NOT EXISTS idx_transactions_loan_order
		ON transactions(loan_id, effective_date, sequence);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind
		ON transactions(kind);

	-- Relations (REPLAYED tags, refund pairings)
	CREATE TABLE IF NOT EXISTS transaction_relations (
		loan_id TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		kind TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relations_loan ON transaction_relations(loan_id);
	CREATE INDEX IF NOT EXISTS idx_relations_from ON transaction_relations(from_id);
	CREATE INDEX IF NOT EXISTS idx_relations_to ON transaction_relations(to_id);

	-- Journal entries (derived, replaced per transaction on replay)
	CREATE TABLE IF NOT EXISTS journal_entries (
		loan_id TEXT NOT NULL,
		transaction_id TEXT NOT NULL,
		account TEXT NOT NULL,
		side TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_tx ON journal_entries(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_journal_loan ON journal_entries(loan_id);

	-- Amortization schedule (derived, replaced per loan on replay)
	CREATE TABLE IF NOT EXISTS schedule_periods (
		loan_id TEXT NOT NULL,
		period_index INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		due_date TEXT NOT NULL,
		principal_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		fee_due TEXT NOT NULL,
		penalty_due TEXT NOT NULL,
		outstanding_after TEXT NOT NULL,
		PRIMARY KEY (loan_id, period_index)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer lets the same statement helpers run against *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTION LOG (engine.Store interface)
// =============================================================================

func (s *Store) AppendTransaction(ctx context.Context, tx engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, db execer, tx engine.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO transactions (id, loan_id, kind, amount, effective_date, sequence, withdrawn)
		VALUES (?, ?, ?, ?, ?, ?, FALSE)
	`,
		string(tx.ID),
		string(tx.LoanID),
		string(tx.Kind),
		tx.Amount.String(),
		tx.EffectiveDate.String(),
		tx.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (s *Store) LoadTransactions(ctx context.Context, loanID engine.LoanID) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTransactions(ctx, s.db, loanID)
}

func loadTransactions(ctx context.Context, db execer, loanID engine.LoanID) ([]engine.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, loan_id, kind, amount, effective_date, sequence
		FROM transactions
		WHERE loan_id = ?
		ORDER BY effective_date ASC, sequence ASC
	`, string(loanID))
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []engine.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (engine.Transaction, error) {
	var (
		tx            engine.Transaction
		amount        string
		effectiveDate string
	)
	if err := rows.Scan(&tx.ID, &tx.LoanID, &tx.Kind, &amount, &effectiveDate, &tx.Sequence); err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return tx, fmt.Errorf("failed to parse amount: %w", err)
	}
	tx.Amount = d
	date, err := engine.ParseDate(effectiveDate)
	if err != nil {
		return tx, fmt.Errorf("failed to parse effective date: %w", err)
	}
	tx.EffectiveDate = date
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id engine.TransactionID) (engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db execer, id engine.TransactionID) (engine.Transaction, error) {
	var (
		tx            engine.Transaction
		amount        string
		effectiveDate string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, loan_id, kind, amount, effective_date, sequence
		FROM transactions WHERE id = ?
	`, string(id)).Scan(&tx.ID, &tx.LoanID, &tx.Kind, &amount, &effectiveDate, &tx.Sequence)
	if err == sql.ErrNoRows {
		return tx, engine.ErrTransactionNotFound
	}
	if err != nil {
		return tx, err
	}
	tx.Amount = engine.MustDecimal(amount)
	tx.EffectiveDate, err = engine.ParseDate(effectiveDate)
	return tx, err
}

func (s *Store) MarkWithdrawn(ctx context.Context, loanID engine.LoanID, ids []engine.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markWithdrawn(ctx, s.db, loanID, ids)
}

func markWithdrawn(ctx context.Context, db execer, loanID engine.LoanID, ids []engine.TransactionID) error {
	for _, id := range ids {
		if _, err := db.ExecContext(ctx,
			`UPDATE transactions SET withdrawn = TRUE WHERE id = ? AND loan_id = ?`,
			string(id), string(loanID),
		); err != nil {
			return fmt.Errorf("failed to mark transaction withdrawn: %w", err)
		}
	}
	return nil
}

func (s *Store) LoadWithdrawn(ctx context.Context, loanID engine.LoanID) ([]engine.TransactionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadWithdrawn(ctx, s.db, loanID)
}

func loadWithdrawn(ctx context.Context, db execer, loanID engine.LoanID) ([]engine.TransactionID, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id FROM transactions WHERE loan_id = ? AND withdrawn = TRUE`,
		string(loanID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []engine.TransactionID
	for rows.Next() {
		var id engine.TransactionID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// RELATIONS
// =============================================================================

func (s *Store) SaveRelations(ctx context.Context, loanID engine.LoanID, rels []engine.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRelations(ctx, s.db, loanID, rels)
}

func saveRelations(ctx context.Context, db execer, loanID engine.LoanID, rels []engine.Relation) error {
	for _, r := range rels {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO transaction_relations (loan_id, from_id, to_id, kind)
			VALUES (?, ?, ?, ?)
		`, string(loanID), string(r.From), string(r.To), string(r.Kind)); err != nil {
			return fmt.Errorf("failed to save relation: %w", err)
		}
	}
	return nil
}

func (s *Store) LoadRelations(ctx context.Context, loanID engine.LoanID) ([]engine.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelations(ctx, s.db,
		`SELECT from_id, to_id, kind FROM transaction_relations WHERE loan_id = ?`,
		string(loanID))
}

func (s *Store) RelationsFor(ctx context.Context, id engine.TransactionID) ([]engine.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelations(ctx, s.db,
		`SELECT from_id, to_id, kind FROM transaction_relations WHERE from_id = ? OR to_id = ?`,
		string(id), string(id))
}

func queryRelations(ctx context.Context, db execer, query string, args ...any) ([]engine.Relation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []engine.Relation
	for rows.Next() {
		var r engine.Relation
		if err := rows.Scan(&r.From, &r.To, &r.Kind); err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// =============================================================================
// JOURNAL
// =============================================================================

func (s *Store) ReplaceJournal(ctx context.Context, loanID engine.LoanID, entries []engine.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceJournal(ctx, s.db, loanID, entries)
}

func replaceJournal(ctx context.Context, db execer, loanID engine.LoanID, entries []engine.JournalEntry) error {
	touched := make(map[engine.TransactionID]bool)
	for _, e := range entries {
		touched[e.TransactionID] = true
	}
	for id := range touched {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM journal_entries WHERE transaction_id = ?`, string(id)); err != nil {
			return fmt.Errorf("failed to clear journal: %w", err)
		}
	}
	for _, e := range entries {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO journal_entries (loan_id, transaction_id, account, side, amount)
			VALUES (?, ?, ?, ?, ?)
		`, string(loanID), string(e.TransactionID), string(e.Account), string(e.Side), e.Amount.String()); err != nil {
			return fmt.Errorf("failed to save journal entry: %w", err)
		}
	}
	return nil
}

func (s *Store) JournalFor(ctx context.Context, id engine.TransactionID) ([]engine.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, account, side, amount
		FROM journal_entries WHERE transaction_id = ?
		ORDER BY side ASC, account ASC
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.JournalEntry
	for rows.Next() {
		var (
			e      engine.JournalEntry
			amount string
		)
		if err := rows.Scan(&e.TransactionID, &e.Account, &e.Side, &amount); err != nil {
			return nil, err
		}
		e.Amount = engine.MustDecimal(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCHEDULE
// =============================================================================

func (s *Store) ReplaceSchedule(ctx context.Context, loanID engine.LoanID, periods []engine.InstallmentPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceSchedule(ctx, s.db, loanID, periods)
}

func replaceSchedule(ctx context.Context, db execer, loanID engine.LoanID, periods []engine.InstallmentPeriod) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM schedule_periods WHERE loan_id = ?`, string(loanID)); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	for _, p := range periods {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO schedule_periods
			(loan_id, period_index, from_date, due_date, principal_due, interest_due, fee_due, penalty_due, outstanding_after)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			string(loanID), p.Index, p.FromDate.String(), p.DueDate.String(),
			p.PrincipalDue.String(), p.InterestDue.String(),
			p.FeeDue.String(), p.PenaltyDue.String(), p.OutstandingAfter.String(),
		); err != nil {
			return fmt.Errorf("failed to save schedule period: %w", err)
		}
	}
	return nil
}

func (s *Store) LoadSchedule(ctx context.Context, loanID engine.LoanID) ([]engine.InstallmentPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT period_index, from_date, due_date, principal_due, interest_due, fee_due, penalty_due, outstanding_after
		FROM schedule_periods WHERE loan_id = ?
		ORDER BY period_index ASC
	`, string(loanID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedule(rows)
}

func scanSchedule(rows *sql.Rows) ([]engine.InstallmentPeriod, error) {
	var periods []engine.InstallmentPeriod
	for rows.Next() {
		var p engine.InstallmentPeriod
		var fromDate, dueDate string
		var principal, interest, fee, penalty, outstanding string
		if err := rows.Scan(&p.Index, &fromDate, &dueDate, &principal, &interest, &fee, &penalty, &outstanding); err != nil {
			return nil, err
		}
		var err error
		if p.FromDate, err = engine.ParseDate(fromDate); err != nil {
			return nil, err
		}
		if p.DueDate, err = engine.ParseDate(dueDate); err != nil {
			return nil, err
		}
		p.PrincipalDue = engine.MustDecimal(principal)
		p.InterestDue = engine.MustDecimal(interest)
		p.FeeDue = engine.MustDecimal(fee)
		p.PenaltyDue = engine.MustDecimal(penalty)
		p.OutstandingAfter = engine.MustDecimal(outstanding)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes Store calls through an open *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) AppendTransaction(ctx context.Context, tx engine.Transaction) error {
	return appendTransaction(ctx, ts.tx, tx)
}

func (ts *txStore) LoadTransactions(ctx context.Context, loanID engine.LoanID) ([]engine.Transaction, error) {
	return loadTransactions(ctx, ts.tx, loanID)
}

func (ts *txStore) GetTransaction(ctx context.Context, id engine.TransactionID) (engine.Transaction, error) {
	return getTransaction(ctx, ts.tx, id)
}

func (ts *txStore) MarkWithdrawn(ctx context.Context, loanID engine.LoanID, ids []engine.TransactionID) error {
	return markWithdrawn(ctx, ts.tx, loanID, ids)
}

func (ts *txStore) LoadWithdrawn(ctx context.Context, loanID engine.LoanID) ([]engine.TransactionID, error) {
	return loadWithdrawn(ctx, ts.tx, loanID)
}

func (ts *txStore) SaveRelations(ctx context.Context, loanID engine.LoanID, rels []engine.Relation) error {
	return saveRelations(ctx, ts.tx, loanID, rels)
}

func (ts *txStore) LoadRelations(ctx context.Context, loanID engine.LoanID) ([]engine.Relation, error) {
	return queryRelations(ctx, ts.tx,
		`SELECT from_id, to_id, kind FROM transaction_relations WHERE loan_id = ?`,
		string(loanID))
}

func (ts *txStore) RelationsFor(ctx context.Context, id engine.TransactionID) ([]engine.Relation, error) {
	return queryRelations(ctx, ts.tx,
		`SELECT from_id, to_id, kind FROM transaction_relations WHERE from_id = ? OR to_id = ?`,
		string(id), string(id))
}

func (ts *txStore) ReplaceJournal(ctx context.Context, loanID engine.LoanID, entries []engine.JournalEntry) error {
	return replaceJournal(ctx, ts.tx, loanID, entries)
}

func (ts *txStore) JournalFor(ctx context.Context, id engine.TransactionID) ([]engine.JournalEntry, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT transaction_id, account, side, amount
		FROM journal_entries WHERE transaction_id = ?
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.JournalEntry
	for rows.Next() {
		var (
			e      engine.JournalEntry
			amount string
		)
		if err := rows.Scan(&e.TransactionID, &e.Account, &e.Side, &amount); err != nil {
			return nil, err
		}
		e.Amount = engine.MustDecimal(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (ts *txStore) ReplaceSchedule(ctx context.Context, loanID engine.LoanID, periods []engine.InstallmentPeriod) error {
	return replaceSchedule(ctx, ts.tx, loanID, periods)
}

func (ts *txStore) LoadSchedule(ctx context.Context, loanID engine.LoanID) ([]engine.InstallmentPeriod, error) {
	rows, err := ts.tx.QueryContext(ctx, `
		SELECT period_index, from_date, due_date, principal_due, interest_due, fee_due, penalty_due, outstanding_after
		FROM schedule_periods WHERE loan_id = ?
		ORDER BY period_index ASC
	`, string(loanID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedule(rows)
}

// =============================================================================
// PRODUCT AND LOAN RECORDS (loan.Repository interface)
// =============================================================================

func (s *Store) SaveProduct(ctx context.Context, p loan.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kinds := make([]string, len(p.InterestRefundKinds))
	for i, k := range p.InterestRefundKinds {
		kinds[i] = string(k)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products
		(id, name, annual_rate, term_months, day_count, rest, multi_tranche, max_tranche_count, refund_kinds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			annual_rate = excluded.annual_rate,
			term_months = excluded.term_months,
			day_count = excluded.day_count,
			rest = excluded.rest,
			multi_tranche = excluded.multi_tranche,
			max_tranche_count = excluded.max_tranche_count,
			refund_kinds = excluded.refund_kinds
	`,
		string(p.ID), p.Name, p.AnnualRate.String(), p.TermMonths,
		string(p.DayCount), string(p.Rest),
		p.MultiTranche, p.MaxTrancheCount, strings.Join(kinds, ","),
	)
	return err
}

func (s *Store) GetProduct(ctx context.Context, id loan.ProductID) (loan.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, annual_rate, term_months, day_count, rest, multi_tranche, max_tranche_count, refund_kinds
		FROM products WHERE id = ?
	`, string(id))
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return loan.Product{}, loan.ErrProductNotFound
	}
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]loan.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, annual_rate, term_months, day_count, rest, multi_tranche, max_tranche_count, refund_kinds
		FROM products ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []loan.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (loan.Product, error) {
	var (
		p     loan.Product
		rate  string
		kinds string
	)
	if err := row.Scan(&p.ID, &p.Name, &rate, &p.TermMonths, &p.DayCount, &p.Rest,
		&p.MultiTranche, &p.MaxTrancheCount, &kinds); err != nil {
		return p, err
	}
	p.AnnualRate = engine.MustDecimal(rate)
	if kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			p.InterestRefundKinds = append(p.InterestRefundKinds, engine.TransactionKind(k))
		}
	}
	return p, nil
}

func (s *Store) SaveLoan(ctx context.Context, l loan.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loans (id, product_id, external_ref, currency)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			external_ref = excluded.external_ref
	`, string(l.ID), string(l.ProductID), l.ExternalRef, l.Currency)
	return err
}

func (s *Store) GetLoan(ctx context.Context, id engine.LoanID) (loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var l loan.Loan
	err := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, external_ref, currency FROM loans WHERE id = ?`,
		string(id)).Scan(&l.ID, &l.ProductID, &l.ExternalRef, &l.Currency)
	if err == sql.ErrNoRows {
		return loan.Loan{}, engine.ErrLoanNotFound
	}
	return l, err
}

func (s *Store) ListLoans(ctx context.Context) ([]loan.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, external_ref, currency FROM loans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []loan.Loan
	for rows.Next() {
		var l loan.Loan
		if err := rows.Scan(&l.ID, &l.ProductID, &l.ExternalRef, &l.Currency); err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"journal_entries", "schedule_periods", "transaction_relations", "transactions", "loans", "products"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
