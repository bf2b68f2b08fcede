/*
journal.go - Double-entry journal derivation

PURPOSE:
  Translates applied transactions into balanced debit/credit pairs against
  the loan's general-ledger accounts. Posting is a pure derivation from the
  transaction and its cash allocation; the poster keeps no balances of its
  own.

INVARIANT:
  Every transaction's entries must balance exactly. An imbalance means the
  allocation logic is broken, so it surfaces as a fatal
  ArithmeticInvariantError rather than a partial posting.

ACCOUNT FLOW:
  disbursement     DR loans-receivable     / CR fund-source
  cash in          DR fund-source          / CR loans-receivable (principal)
                                             CR interest-income or
                                                interest-receivable (interest)
                                             CR overpayment-liability (excess)
  accrual          DR interest-receivable  / CR interest-income
  interest refund  DR interest-income      / CR loans-receivable
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// JournalPoster derives journal entries for applied transactions.
type JournalPoster struct{}

// postingFunc produces the balanced entry set for one transaction kind.
type postingFunc func(tx Transaction, alloc CashAllocation) []JournalEntry

// postingTable maps each postable kind to its entry derivation.
var postingTable = map[TransactionKind]postingFunc{
	KindDisbursement:         postDisbursement,
	KindRepayment:            postCashInflow,
	KindPayoutRefund:         postCashInflow,
	KindMerchantIssuedRefund: postCashInflow,
	KindAccrual:              postAccrual,
	KindInterestRefund:       postInterestRefund,
}

// Post derives the entries for one transaction and verifies they balance.
// alloc is the transaction's cash allocation from the fold; it is ignored
// for kinds that post on their face amount.
func (jp *JournalPoster) Post(tx Transaction, alloc CashAllocation) ([]JournalEntry, error) {
	fn, ok := postingTable[tx.Kind]
	if !ok {
		return nil, ErrInvalidKind
	}
	entries := fn(tx, alloc)
	if err := verifyBalanced(tx.ID, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// verifyBalanced checks debits equal credits for one transaction's entries.
func verifyBalanced(id TransactionID, entries []JournalEntry) error {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, e := range entries {
		switch e.Side {
		case Debit:
			debits = debits.Add(e.Amount)
		case Credit:
			credits = credits.Add(e.Amount)
		}
	}
	if !debits.Equal(credits) {
		return &ArithmeticInvariantError{TransactionID: id, Debits: debits, Credits: credits}
	}
	return nil
}

func postDisbursement(tx Transaction, _ CashAllocation) []JournalEntry {
	return []JournalEntry{
		{TransactionID: tx.ID, Account: AccountLoansReceivable, Side: Debit, Amount: tx.Amount},
		{TransactionID: tx.ID, Account: AccountFundSource, Side: Credit, Amount: tx.Amount},
	}
}

// postCashInflow books repayments and refunds. The full amount lands on the
// fund source; the credits follow the allocation split.
func postCashInflow(tx Transaction, alloc CashAllocation) []JournalEntry {
	entries := []JournalEntry{
		{TransactionID: tx.ID, Account: AccountFundSource, Side: Debit, Amount: tx.Amount},
	}
	if alloc.Interest.IsPositive() {
		account := AccountInterestIncome
		if alloc.InterestToReceivable {
			account = AccountInterestReceivable
		}
		entries = append(entries, JournalEntry{
			TransactionID: tx.ID, Account: account, Side: Credit, Amount: alloc.Interest,
		})
	}
	if alloc.Principal.IsPositive() {
		entries = append(entries, JournalEntry{
			TransactionID: tx.ID, Account: AccountLoansReceivable, Side: Credit, Amount: alloc.Principal,
		})
	}
	if alloc.Overpayment.IsPositive() {
		entries = append(entries, JournalEntry{
			TransactionID: tx.ID, Account: AccountOverpayment, Side: Credit, Amount: alloc.Overpayment,
		})
	}
	return entries
}

func postAccrual(tx Transaction, _ CashAllocation) []JournalEntry {
	return []JournalEntry{
		{TransactionID: tx.ID, Account: AccountInterestReceivable, Side: Debit, Amount: tx.Amount},
		{TransactionID: tx.ID, Account: AccountInterestIncome, Side: Credit, Amount: tx.Amount},
	}
}

func postInterestRefund(tx Transaction, _ CashAllocation) []JournalEntry {
	return []JournalEntry{
		{TransactionID: tx.ID, Account: AccountInterestIncome, Side: Debit, Amount: tx.Amount},
		{TransactionID: tx.ID, Account: AccountLoansReceivable, Side: Credit, Amount: tx.Amount},
	}
}
