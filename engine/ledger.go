/*
ledger.go - Append-only transaction ledger

PURPOSE:
  Holds the ordered transaction log of a single loan. Transactions are
  never deleted or edited: a backdated insertion slots into position by
  (effectiveDate, insertionSequence) order, and synthetic transactions
  superseded by a replay are withdrawn (hidden from the active stream) but
  remain in the log for audit.

ORDERING:
  Primary key effectiveDate, tiebreak insertionSequence. Two transactions
  on the same date apply in insertion order, so a backdated transaction
  inserted today lands after same-day transactions inserted earlier.

SEE ALSO:
  - accrual.go: fold over the active stream
  - replay.go: uses the suffix/withdraw primitives during a posting cycle
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger is the in-memory working copy of one loan's transaction log. The
// store loads it, the coordinator mutates it, the store persists the delta.
type Ledger struct {
	LoanID LoanID
	Terms  Terms

	txs       []Transaction
	withdrawn map[TransactionID]bool
	relations []Relation
	nextSeq   int64
}

// NewLedger builds a ledger from its persisted parts. txs may be in any
// order; the ledger re-sorts them.
func NewLedger(loanID LoanID, terms Terms, txs []Transaction, withdrawn []TransactionID, relations []Relation) *Ledger {
	l := &Ledger{
		LoanID:    loanID,
		Terms:     terms,
		txs:       append([]Transaction(nil), txs...),
		withdrawn: make(map[TransactionID]bool, len(withdrawn)),
		relations: append([]Relation(nil), relations...),
	}
	for _, id := range withdrawn {
		l.withdrawn[id] = true
	}
	sort.SliceStable(l.txs, func(i, j int) bool { return l.txs[i].OrderedBefore(l.txs[j]) })
	for _, tx := range l.txs {
		if tx.Sequence >= l.nextSeq {
			l.nextSeq = tx.Sequence + 1
		}
	}
	return l
}

// =============================================================================
// READS
// =============================================================================

// Active returns the ordered stream with withdrawn transactions removed.
// This is the stream every derivation folds over.
func (l *Ledger) Active() []Transaction {
	out := make([]Transaction, 0, len(l.txs))
	for _, tx := range l.txs {
		if !l.withdrawn[tx.ID] {
			out = append(out, tx)
		}
	}
	return out
}

// All returns the full log including withdrawn transactions.
func (l *Ledger) All() []Transaction {
	return append([]Transaction(nil), l.txs...)
}

// IsWithdrawn reports whether a transaction has been superseded.
func (l *Ledger) IsWithdrawn(id TransactionID) bool {
	return l.withdrawn[id]
}

// Relations returns all recorded transaction relations.
func (l *Ledger) Relations() []Relation {
	return append([]Relation(nil), l.relations...)
}

// RelationsOf returns the relations that touch the given transaction.
func (l *Ledger) RelationsOf(id TransactionID) []Relation {
	var out []Relation
	for _, r := range l.relations {
		if r.From == id || r.To == id {
			out = append(out, r)
		}
	}
	return out
}

// Tranches returns the active disbursements as schedule input, in order.
func (l *Ledger) Tranches() []Tranche {
	var out []Tranche
	for _, tx := range l.Active() {
		if tx.Kind == KindDisbursement {
			out = append(out, Tranche{Amount: tx.Amount, Date: tx.EffectiveDate})
		}
	}
	return out
}

// Balances folds the active stream up to asOf.
func (l *Ledger) Balances(asOf BusinessDate) Balances {
	tracker := &AccrualTracker{Terms: l.Terms}
	return tracker.BalancesAt(l.Active(), asOf)
}

// LastDate returns the effective date of the last active transaction, or the
// zero date on an empty ledger.
func (l *Ledger) LastDate() BusinessDate {
	var last BusinessDate
	for _, tx := range l.Active() {
		last = tx.EffectiveDate
	}
	return last
}

// TotalDisbursed sums the active disbursements.
func (l *Ledger) TotalDisbursed() decimal.Decimal {
	total := decimal.Zero
	for _, tr := range l.Tranches() {
		total = total.Add(tr.Amount)
	}
	return total
}

// =============================================================================
// MUTATIONS - used by the replay coordinator inside a posting cycle
// =============================================================================

// NextSequence hands out the next insertion sequence number.
func (l *Ledger) NextSequence() int64 {
	seq := l.nextSeq
	l.nextSeq++
	return seq
}

// Insert adds a transaction to the log at its ordered position. The caller
// must have assigned Sequence via NextSequence.
func (l *Ledger) Insert(tx Transaction) {
	at := sort.Search(len(l.txs), func(i int) bool { return tx.OrderedBefore(l.txs[i]) })
	l.txs = append(l.txs, Transaction{})
	copy(l.txs[at+1:], l.txs[at:])
	l.txs[at] = tx
}

// SuffixAfter returns the active transactions ordered at or after the given
// transaction's position, i.e. the segment a backdated insertion disturbs.
func (l *Ledger) SuffixAfter(tx Transaction) []Transaction {
	var out []Transaction
	for _, existing := range l.Active() {
		if !existing.OrderedBefore(tx) {
			out = append(out, existing)
		}
	}
	return out
}

// Withdraw hides a transaction from the active stream. The log entry stays.
func (l *Ledger) Withdraw(id TransactionID) {
	l.withdrawn[id] = true
}

// Relate records a relation between two transactions.
func (l *Ledger) Relate(from, to TransactionID, kind RelationKind) {
	l.relations = append(l.relations, Relation{From: from, To: to, Kind: kind})
}
