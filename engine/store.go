/*
store.go - Persistence interfaces for the transaction log

PURPOSE:
  Defines what the engine needs from storage: append transactions, mark
  synthetic transactions withdrawn, record relations, and persist the
  derived journal and schedule. Implementations live elsewhere
  (engine/store for in-memory, store/sqlite for SQLite).

APPEND-ONLY CONTRACT:
  Transactions are inserted and never updated or deleted. Withdrawal is a
  flag, not a delete: superseded synthetics stay queryable for audit. The
  journal and schedule are derived data and MAY be replaced, since they are
  always reproducible from the log.

ATOMICITY:
  A posting cycle persists through WithTx: every delta of the cycle commits
  together or not at all.
*/
package engine

import "context"

// Store persists one loan's ledger and its derived data.
type Store interface {
	// AppendTransaction inserts one immutable transaction.
	AppendTransaction(ctx context.Context, tx Transaction) error

	// LoadTransactions returns every transaction of a loan, including
	// withdrawn ones, in no guaranteed order.
	LoadTransactions(ctx context.Context, loanID LoanID) ([]Transaction, error)

	// GetTransaction looks a transaction up by ID. Returns
	// ErrTransactionNotFound when absent.
	GetTransaction(ctx context.Context, id TransactionID) (Transaction, error)

	// MarkWithdrawn flags superseded synthetic transactions.
	MarkWithdrawn(ctx context.Context, loanID LoanID, ids []TransactionID) error

	// LoadWithdrawn returns the withdrawn transaction IDs of a loan.
	LoadWithdrawn(ctx context.Context, loanID LoanID) ([]TransactionID, error)

	// SaveRelations appends relation records.
	SaveRelations(ctx context.Context, loanID LoanID, rels []Relation) error

	// LoadRelations returns all relation records of a loan.
	LoadRelations(ctx context.Context, loanID LoanID) ([]Relation, error)

	// RelationsFor returns relations touching one transaction.
	RelationsFor(ctx context.Context, id TransactionID) ([]Relation, error)

	// ReplaceJournal swaps the journal entries of the transactions present
	// in entries; transactions not mentioned keep theirs.
	ReplaceJournal(ctx context.Context, loanID LoanID, entries []JournalEntry) error

	// JournalFor returns the journal entries of one transaction.
	JournalFor(ctx context.Context, id TransactionID) ([]JournalEntry, error)

	// ReplaceSchedule swaps the loan's amortization schedule.
	ReplaceSchedule(ctx context.Context, loanID LoanID, periods []InstallmentPeriod) error

	// LoadSchedule returns the loan's current schedule.
	LoadSchedule(ctx context.Context, loanID LoanID) ([]InstallmentPeriod, error)
}

// TxStore is a Store that can run a function atomically.
type TxStore interface {
	Store

	// WithTx runs fn against a transactional view. fn returning an error
	// rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
