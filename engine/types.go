/*
Package engine implements the loan transaction-replay and interest-refund
reconciliation core.

PURPOSE:
  This package contains the computation engine for a running loan: the
  amortization scheduler, the interest accrual fold, the refund-interest
  calculator, the ordered transaction ledger with reverse/replay, and the
  double-entry journal poster. It is pure computation over an ordered
  transaction log - persistence and HTTP live elsewhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: an immutable posting against a loan (disbursement,
    repayment, refund, synthetic accrual / interest refund)
  - TransactionKind: tagged variant driving balance and journal dispatch
  - Relation: explicit cross-transaction linkage (REPLAYED tags, the
    refund <-> interest-refund pairing)

DESIGN PRINCIPLES:
  1. Immutability: transactions are never edited; replay supersedes, the
     relation set is the only thing that grows
  2. Precision: decimal.Decimal for all money, half-up rounding at the
     product's monetary precision
  3. Derivability: every balance, schedule and journal entry is a pure
     function of the ordered (effective date, sequence) transaction log

SEE ALSO:
  - ledger.go: ordered log and balance fold
  - replay.go: reverse/replay posting pipeline
  - journal.go: kind -> double-entry dispatch table
*/
package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type TransactionID string

// NewTransactionID mints a fresh transaction identity.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.NewString())
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// MonetaryPrecision is the number of decimal places for posted amounts.
// Rounding is half-up, applied once per computed amount, never per tranche.
const MonetaryPrecision = 2

func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// RoundMoney rounds half-up to the monetary precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MonetaryPrecision)
}

// =============================================================================
// TRANSACTION - Atomic posting against a loan
// =============================================================================

type TransactionKind string

const (
	KindDisbursement         TransactionKind = "disbursement"           // principal paid out (one tranche)
	KindRepayment            TransactionKind = "repayment"              // borrower cash in
	KindPayoutRefund         TransactionKind = "payout_refund"          // refund of a payout, cash in
	KindMerchantIssuedRefund TransactionKind = "merchant_issued_refund" // merchant refund, cash in
	KindAccrual              TransactionKind = "accrual"                // synthetic: interest recognized
	KindInterestRefund       TransactionKind = "interest_refund"        // synthetic: recognized interest refunded
)

// IsRefund reports whether the kind is eligible for interest-refund gating.
func (k TransactionKind) IsRefund() bool {
	return k == KindPayoutRefund || k == KindMerchantIssuedRefund
}

// IsCashInflow reports whether the kind brings cash in against the loan.
func (k TransactionKind) IsCashInflow() bool {
	return k == KindRepayment || k.IsRefund()
}

// IsSynthetic reports whether the kind is only ever created by the engine as
// a byproduct of refund processing. Synthetic transactions are discarded and
// regenerated during replay, never tagged REPLAYED.
func (k TransactionKind) IsSynthetic() bool {
	return k == KindAccrual || k == KindInterestRefund
}

// ValidPostedKind reports whether the kind may arrive via a posting command.
// Synthetic kinds are engine output only.
func (k TransactionKind) ValidPostedKind() bool {
	switch k {
	case KindDisbursement, KindRepayment, KindPayoutRefund, KindMerchantIssuedRefund:
		return true
	}
	return false
}

// Transaction is immutable once posted. Only its relation set (held by the
// ledger, not the transaction) may later gain entries.
type Transaction struct {
	ID            TransactionID
	LoanID        LoanID
	Kind          TransactionKind
	Amount        decimal.Decimal
	EffectiveDate BusinessDate

	// Sequence is the monotonic insertion number, the tie-break for
	// same-date ordering.
	Sequence int64
}

// Ordering: total order by (effective date, insertion sequence).
func (t Transaction) OrderedBefore(other Transaction) bool {
	if !t.EffectiveDate.Equal(other.EffectiveDate) {
		return t.EffectiveDate.Before(other.EffectiveDate)
	}
	return t.Sequence < other.Sequence
}

// =============================================================================
// RELATIONS - Explicit cross-transaction linkage
// =============================================================================
// Linkage is recorded as relation records keyed by transaction identity
// pairs, never as pointer chains inside transactions.

type RelationKind string

const (
	// RelationReplayed tags a transaction whose balance/journal effect was
	// invalidated and regenerated by a reverse-replay cycle.
	RelationReplayed RelationKind = "replayed"

	// RelationRelated links a refund transaction (From) to the interest
	// refund it triggered (To): the primary/secondary result pair.
	RelationRelated RelationKind = "related"
)

type Relation struct {
	From TransactionID
	To   TransactionID
	Kind RelationKind
}

// =============================================================================
// DISBURSEMENT TRANCHE
// =============================================================================

// Tranche is one disbursement of a (possibly multi-disbursement) loan. Each
// tranche contributes principal from its own date onward and accrues
// interest independently.
type Tranche struct {
	Amount decimal.Decimal
	Date   BusinessDate
}

// =============================================================================
// POSTING RESULT - Primary/secondary identity pair
// =============================================================================

// PostingResult is returned for every posting command. InterestRefundID is
// set only when refund processing synthesized an interest refund.
type PostingResult struct {
	TransactionID    TransactionID
	InterestRefundID TransactionID
}

// HasInterestRefund reports whether a secondary result was produced.
func (r PostingResult) HasInterestRefund() bool { return r.InterestRefundID != "" }

// =============================================================================
// JOURNAL ENTRY - One leg of a double-entry posting
// =============================================================================

type JournalSide string

const (
	Debit  JournalSide = "debit"
	Credit JournalSide = "credit"
)

type GLAccount string

const (
	AccountFundSource         GLAccount = "fund-source"
	AccountLoansReceivable    GLAccount = "loans-receivable"
	AccountInterestReceivable GLAccount = "interest-receivable"
	AccountInterestIncome     GLAccount = "interest-income"
	AccountOverpayment        GLAccount = "overpayment-liability"
)

type JournalEntry struct {
	TransactionID TransactionID
	Account       GLAccount
	Side          JournalSide
	Amount        decimal.Decimal
}
