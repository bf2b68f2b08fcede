/*
errors.go - Centralized error types for the loan engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer wraps these with HTTP status mapping.

ERROR CATEGORIES:
  1. Configuration errors - rejected before any ledger mutation
  2. Fatal invariant violations - abort the whole posting cycle;
     nothing partial commits
  3. Client errors - invalid posting commands

Note: posting an unsupported refund kind is NOT an error. The gate simply
does not synthesize an interest refund and the transaction posts as plain
cash.
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTrancheLimitExceeded is returned when a disbursement would exceed
	// the product's configured maximum tranche count.
	ErrTrancheLimitExceeded = errors.New("tranche limit exceeded")

	// ErrJournalImbalance is returned when a transaction's derived debits do
	// not equal its credits. Fatal: the posting cycle aborts.
	ErrJournalImbalance = errors.New("journal debits do not equal credits")

	// ErrReplayInconsistency is returned when a reverse/replay cycle cannot
	// reconcile outstanding principal. Fatal: the posting cycle aborts.
	ErrReplayInconsistency = errors.New("replay produced inconsistent balances")

	// ErrLoanNotFound is returned when a referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrTransactionNotFound is returned when a referenced transaction does
	// not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInvalidAmount is returned when a posting command carries a zero or
	// negative amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidKind is returned when a posting command carries a kind that
	// only the engine may create.
	ErrInvalidKind = errors.New("transaction kind cannot be posted directly")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TrancheLimitError reports a rejected disbursement.
type TrancheLimitError struct {
	LoanID    LoanID
	MaxCount  int
	Attempted int
}

func (e *TrancheLimitError) Error() string {
	return fmt.Sprintf("loan %s: disbursement %d exceeds max tranche count %d",
		e.LoanID, e.Attempted, e.MaxCount)
}

func (e *TrancheLimitError) Unwrap() error { return ErrTrancheLimitExceeded }

// ArithmeticInvariantError reports a debit/credit mismatch for one
// transaction. This indicates ledger corruption, never user error.
type ArithmeticInvariantError struct {
	TransactionID TransactionID
	Debits        decimal.Decimal
	Credits       decimal.Decimal
}

func (e *ArithmeticInvariantError) Error() string {
	return fmt.Sprintf("transaction %s: debits %s != credits %s",
		e.TransactionID, e.Debits, e.Credits)
}

func (e *ArithmeticInvariantError) Unwrap() error { return ErrJournalImbalance }

// ReplayInconsistencyError reports a failed reconciliation after replay.
type ReplayInconsistencyError struct {
	LoanID      LoanID
	Outstanding decimal.Decimal
	Detail      string
}

func (e *ReplayInconsistencyError) Error() string {
	return fmt.Sprintf("loan %s: %s (outstanding %s)", e.LoanID, e.Detail, e.Outstanding)
}

func (e *ReplayInconsistencyError) Unwrap() error { return ErrReplayInconsistency }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true for invariant violations that must abort the posting
// cycle without committing anything.
func IsFatal(err error) bool {
	return errors.Is(err, ErrJournalImbalance) || errors.Is(err, ErrReplayInconsistency)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTrancheLimitExceeded) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKind)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) || errors.Is(err, ErrTransactionNotFound)
}
