/*
accrual.go - Interest accrual fold over the transaction stream

PURPOSE:
  Computes interest accrued on outstanding principal between any two dates.
  Tranche-aware: every disbursement raises the outstanding balance from its
  own date, so a later tranche accrues for fewer days than an earlier one.

KEY INSIGHT:
  The tracker holds no mutable state of its own. Accrued interest at any
  date is re-derived by folding the ordered transaction stream up to that
  date. Replay therefore cannot drift: the same stream always produces the
  same accrual.

RECOGNITION POINTS:
  Interest for an interval is recognized (computed and rounded to the
  monetary precision) whenever the outstanding balance is about to change
  or the fold reaches the query date:
    - at each disbursement (balance rises)
    - at each cash transaction (repayment/refund collects interest first,
      then principal)
    - at the as-of date

  intervalInterest = outstanding * annualRate * days / daysInYear

  Rounding happens once per interval, on the aggregate outstanding amount,
  never per tranche.

CASH ALLOCATION:
  Repayments and refunds are allocated interest-first: accrued-but-unpaid
  interest is collected before principal. Cash beyond principal+interest is
  tracked as overpayment; outstanding principal never goes negative.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// TERMS - Interest parameters of the loan
// =============================================================================

// Terms carries the loan parameters the engine computes with. They come from
// the product configuration and are read-only input.
type Terms struct {
	// AnnualRate is the nominal annual interest rate as a fraction
	// (9.99% = 0.0999).
	AnnualRate decimal.Decimal

	// TermMonths is the installment count of the schedule.
	TermMonths int

	DayCount DayCountConvention
	Rest     RestFrequency

	// MaxTrancheCount caps the number of disbursements. Zero means a
	// single-tranche loan.
	MaxTrancheCount int
}

// maxTranches returns the effective tranche cap.
func (t Terms) maxTranches() int {
	if t.MaxTrancheCount <= 0 {
		return 1
	}
	return t.MaxTrancheCount
}

// =============================================================================
// ACCRUAL STATE - Result of the fold
// =============================================================================

// Balances is the derived position of a loan at a point in the stream.
type Balances struct {
	// Outstanding principal.
	Outstanding decimal.Decimal

	// AccruedInterest is total interest recognized by the fold so far
	// (collected or not).
	AccruedInterest decimal.Decimal

	// UnpaidInterest is accrued interest not yet collected by cash.
	UnpaidInterest decimal.Decimal

	InterestCollected  decimal.Decimal
	PrincipalCollected decimal.Decimal
	Overpaid           decimal.Decimal
	TotalDisbursed     decimal.Decimal
}

// CashAllocation records how one cash transaction's amount was split during
// the fold. The journal poster derives postings from it.
type CashAllocation struct {
	TransactionID TransactionID
	Interest      decimal.Decimal
	Principal     decimal.Decimal
	Overpayment   decimal.Decimal

	// InterestToReceivable routes the interest portion against the
	// interest-receivable account instead of interest-income. Set by the
	// coordinator when a paired accrual recognized the same interest in
	// this cycle.
	InterestToReceivable bool
}

// =============================================================================
// ACCRUAL TRACKER
// =============================================================================

// AccrualTracker folds a transaction stream into accrual state. It is a pure
// function of (terms, ordered stream, as-of date).
type AccrualTracker struct {
	Terms Terms
}

// AccruedInterest returns total interest accrued up to and including asOf,
// as the sum of per-interval rounded amounts.
func (at *AccrualTracker) AccruedInterest(txs []Transaction, asOf BusinessDate) decimal.Decimal {
	state, _ := at.Run(txs, asOf)
	return state.AccruedInterest
}

// BalancesAt returns the loan position as of a date.
func (at *AccrualTracker) BalancesAt(txs []Transaction, asOf BusinessDate) Balances {
	state, _ := at.Run(txs, asOf)
	return state
}

// Run folds the stream in (date, sequence) order up to asOf and returns the
// final balances plus the cash allocation of every applied transaction.
// Transactions dated after asOf are ignored.
func (at *AccrualTracker) Run(txs []Transaction, asOf BusinessDate) (Balances, []CashAllocation) {
	var (
		state  Balances
		allocs []CashAllocation
		last   BusinessDate
	)
	state.Outstanding = decimal.Zero
	state.AccruedInterest = decimal.Zero
	state.UnpaidInterest = decimal.Zero
	state.InterestCollected = decimal.Zero
	state.PrincipalCollected = decimal.Zero
	state.Overpaid = decimal.Zero
	state.TotalDisbursed = decimal.Zero

	for _, tx := range txs {
		if tx.EffectiveDate.After(asOf) {
			break
		}
		at.recognize(&state, &last, tx.EffectiveDate)

		switch tx.Kind {
		case KindDisbursement:
			state.Outstanding = state.Outstanding.Add(tx.Amount)
			state.TotalDisbursed = state.TotalDisbursed.Add(tx.Amount)

		case KindRepayment, KindPayoutRefund, KindMerchantIssuedRefund:
			allocs = append(allocs, at.allocate(&state, tx))

		case KindAccrual:
			// Recognition of already-accrued interest in the books; the
			// fold's accrued total is unaffected.

		case KindInterestRefund:
			// Refunded interest relieves the receivable: principal first,
			// any excess is returned to the borrower's credit.
			reduction := decimal.Min(tx.Amount, state.Outstanding)
			state.Outstanding = state.Outstanding.Sub(reduction)
			state.Overpaid = state.Overpaid.Add(tx.Amount.Sub(reduction))
		}
	}

	at.recognize(&state, &last, asOf)
	return state, allocs
}

// recognize closes the accrual interval ending at the given date.
func (at *AccrualTracker) recognize(state *Balances, last *BusinessDate, to BusinessDate) {
	if last.IsZero() {
		// Nothing outstanding before the first transaction.
		*last = to
		return
	}
	days := DaysBetween(*last, to)
	if days <= 0 {
		return
	}
	if state.Outstanding.IsPositive() {
		interest := RoundMoney(state.Outstanding.
			Mul(at.Terms.AnnualRate).
			Mul(decimal.NewFromInt(int64(days))).
			Div(decimal.NewFromInt(int64(at.Terms.DayCount.DaysInYear()))))
		state.AccruedInterest = state.AccruedInterest.Add(interest)
		state.UnpaidInterest = state.UnpaidInterest.Add(interest)
	}
	*last = to
}

// allocate splits a cash transaction interest-first, then principal, then
// overpayment.
func (at *AccrualTracker) allocate(state *Balances, tx Transaction) CashAllocation {
	remaining := tx.Amount

	interest := decimal.Min(remaining, state.UnpaidInterest)
	remaining = remaining.Sub(interest)
	state.UnpaidInterest = state.UnpaidInterest.Sub(interest)
	state.InterestCollected = state.InterestCollected.Add(interest)

	principal := decimal.Min(remaining, state.Outstanding)
	remaining = remaining.Sub(principal)
	state.Outstanding = state.Outstanding.Sub(principal)
	state.PrincipalCollected = state.PrincipalCollected.Add(principal)

	state.Overpaid = state.Overpaid.Add(remaining)

	return CashAllocation{
		TransactionID: tx.ID,
		Interest:      interest,
		Principal:     principal,
		Overpayment:   remaining,
	}
}
