/*
refund.go - Interest refund computation

PURPOSE:
  When a merchant-issued or payout refund arrives, the borrower is owed
  back the interest that was charged on the refunded portion of principal
  for the time it was outstanding.

MODEL:
  The refunded interest is the difference between two accrual runs over the
  same ledger, both evaluated at the refund date:

    actual       - the stream as it really happened
    hypothetical - the same stream with disbursement amounts reduced by the
                   refund amount, earliest tranche first, as if the refunded
                   principal had never been lent out

  refundInterest = accrued(actual) - accrued(hypothetical)

  Earliest-first reduction matters for multi-tranche loans: the refunded
  principal is attributed to the money that has been out the longest, which
  is the interest the borrower actually carried.

SEE ALSO:
  - accrual.go: the fold both runs share
  - replay.go: invokes the calculator during forward replay
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// RefundCalculator derives the interest portion owed back for a refund
// transaction.
type RefundCalculator struct {
	Terms Terms
}

// Compute returns the interest to refund for the given refund transaction.
// history is the ordered active stream strictly before the refund (the
// refund itself excluded). The result is never negative.
func (rc *RefundCalculator) Compute(history []Transaction, refund Transaction) decimal.Decimal {
	if !refund.Kind.IsRefund() {
		return decimal.Zero
	}
	tracker := &AccrualTracker{Terms: rc.Terms}

	actual := tracker.AccruedInterest(history, refund.EffectiveDate)
	hypo := tracker.AccruedInterest(reduceDisbursements(history, refund.Amount), refund.EffectiveDate)

	diff := actual.Sub(hypo)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// reduceDisbursements builds the hypothetical stream: disbursement amounts
// shrink by the refund amount, earliest tranche first. Tranches reduced to
// zero drop out; everything else passes through untouched.
func reduceDisbursements(txs []Transaction, amount decimal.Decimal) []Transaction {
	remaining := amount
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Kind == KindDisbursement && remaining.IsPositive() {
			cut := decimal.Min(remaining, tx.Amount)
			remaining = remaining.Sub(cut)
			tx.Amount = tx.Amount.Sub(cut)
			if tx.Amount.IsZero() {
				continue
			}
		}
		out = append(out, tx)
	}
	return out
}
