/*
replay.go - Reverse/replay posting pipeline

PURPOSE:
  Coordinates the full posting cycle for a single loan. Every posting
  command, backdated or not, runs the same pipeline:

    IDLE -> REVERSING -> REBUILDING_SCHEDULE -> REPLAYING
         -> POSTING_SYNTHETIC -> JOURNALING -> IDLE

  REVERSING      withdraw synthetic transactions ordered at or after the
                 insertion point; tag everything else there REPLAYED
  REBUILDING     regenerate the amortization schedule from the tranche set
  REPLAYING      re-derive balances by folding the active stream
  POSTING        regenerate interest-refund (and paired accrual) synthetics
                 for every refund in the disturbed segment
  JOURNALING     derive balanced journal entries for every touched
                 transaction

  A posting cycle is all-or-nothing: a fatal invariant violation aborts it
  and the caller discards the working ledger without persisting.

SYNTHETIC PAIRING:
  A refund triggers an interest refund when its kind is enabled on the
  product. The interest refund gets a paired accrual only when it equals
  the loan's entire accrued-and-uncollected interest and the refund settles
  the full outstanding principal; once any interest has been collected, or
  for partial refunds, the interest refund posts alone.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// PIPELINE STATE
// =============================================================================

// State names the phase a posting cycle is in. Exposed for logging and for
// error context; the coordinator always drives a cycle back to idle or
// abandons it.
type State string

const (
	StateIdle               State = "IDLE"
	StateReversing          State = "REVERSING"
	StateRebuildingSchedule State = "REBUILDING_SCHEDULE"
	StateReplaying          State = "REPLAYING"
	StatePostingSynthetic   State = "POSTING_SYNTHETIC"
	StateJournaling         State = "JOURNALING"
)

// =============================================================================
// COMMANDS AND OUTCOMES
// =============================================================================

// PostingCommand is a request to apply one transaction to a loan.
type PostingCommand struct {
	Kind          TransactionKind
	Amount        decimal.Decimal
	EffectiveDate BusinessDate
}

// PostingOutcome is the full delta of one posting cycle, everything the
// store needs to persist plus the response payload.
type PostingOutcome struct {
	Result PostingResult

	// Posted is the command's transaction as inserted.
	Posted Transaction

	// Synthetic holds the accrual / interest-refund transactions created
	// this cycle, in insertion order.
	Synthetic []Transaction

	// Withdrawn lists synthetic transactions superseded this cycle.
	Withdrawn []TransactionID

	// Replayed lists non-synthetic transactions tagged REPLAYED.
	Replayed []TransactionID

	// NewRelations are the relation records added this cycle.
	NewRelations []Relation

	// Journal holds the entries for every transaction touched this cycle.
	Journal []JournalEntry

	Schedule []InstallmentPeriod
	Balances Balances
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator runs posting cycles against a ledger. One coordinator serves
// one product configuration; it holds no per-loan state.
type Coordinator struct {
	Terms Terms

	// SupportedRefundKinds gates interest-refund synthesis. Refund kinds
	// absent here post as plain cash.
	SupportedRefundKinds map[TransactionKind]bool

	state State
}

// NewCoordinator builds a coordinator for the given terms and gate set.
func NewCoordinator(terms Terms, refundKinds map[TransactionKind]bool) *Coordinator {
	return &Coordinator{Terms: terms, SupportedRefundKinds: refundKinds, state: StateIdle}
}

// CurrentState reports the phase of the cycle in flight.
func (c *Coordinator) CurrentState() State {
	if c.state == "" {
		return StateIdle
	}
	return c.state
}

// Post runs one full posting cycle. The ledger is mutated in place; on error
// the caller must discard it and reload from the store.
func (c *Coordinator) Post(l *Ledger, cmd PostingCommand) (*PostingOutcome, error) {
	if err := c.validate(l, cmd); err != nil {
		return nil, err
	}
	defer func() { c.state = StateIdle }()

	tx := Transaction{
		ID:            NewTransactionID(),
		LoanID:        l.LoanID,
		Kind:          cmd.Kind,
		Amount:        cmd.Amount,
		EffectiveDate: cmd.EffectiveDate,
		Sequence:      l.NextSequence(),
	}
	outcome := &PostingOutcome{
		Result: PostingResult{TransactionID: tx.ID},
		Posted: tx,
	}

	relBase := len(l.Relations())
	touched := map[TransactionID]bool{tx.ID: true}
	toReceivable := map[TransactionID]bool{}

	// REVERSING: clear the segment the insertion disturbs. Synthetic
	// transactions are withdrawn for regeneration; real ones keep their
	// place and get tagged.
	c.state = StateReversing
	for _, s := range l.SuffixAfter(tx) {
		if s.Kind.IsSynthetic() {
			l.Withdraw(s.ID)
			outcome.Withdrawn = append(outcome.Withdrawn, s.ID)
		} else {
			l.Relate(s.ID, tx.ID, RelationReplayed)
			outcome.Replayed = append(outcome.Replayed, s.ID)
			touched[s.ID] = true
		}
	}
	l.Insert(tx)

	// REBUILDING_SCHEDULE
	c.state = StateRebuildingSchedule
	schedule, err := (&Scheduler{Terms: c.Terms}).Build(l.LoanID, l.Tranches())
	if err != nil {
		return nil, err
	}
	outcome.Schedule = schedule

	// REPLAYING / POSTING_SYNTHETIC: walk the active stream in order and
	// regenerate the synthetic pair of every refund whose pair was cleared
	// (which includes the new transaction if it is a refund).
	c.state = StateReplaying
	if err := c.regenerateSynthetics(l, tx, touched, toReceivable, outcome); err != nil {
		return nil, err
	}

	if err := c.reconcile(l); err != nil {
		return nil, err
	}
	outcome.Balances = l.Balances(l.LastDate())
	outcome.NewRelations = l.Relations()[relBase:]

	// JOURNALING
	c.state = StateJournaling
	journal, err := c.journalTouched(l, touched, toReceivable)
	if err != nil {
		return nil, err
	}
	outcome.Journal = journal

	return outcome, nil
}

// validate rejects bad commands before any ledger mutation.
func (c *Coordinator) validate(l *Ledger, cmd PostingCommand) error {
	if !cmd.Kind.ValidPostedKind() {
		return ErrInvalidKind
	}
	if !cmd.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if cmd.Kind == KindDisbursement {
		if have, max := len(l.Tranches()), c.Terms.maxTranches(); have+1 > max {
			return &TrancheLimitError{LoanID: l.LoanID, MaxCount: max, Attempted: have + 1}
		}
	}
	return nil
}

// regenerateSynthetics walks the active stream and synthesizes the interest
// refund (and possibly paired accrual) for each refund in the cycle.
func (c *Coordinator) regenerateSynthetics(l *Ledger, posted Transaction, touched, toReceivable map[TransactionID]bool, outcome *PostingOutcome) error {
	calc := &RefundCalculator{Terms: c.Terms}
	tracker := &AccrualTracker{Terms: c.Terms}

	// Snapshot first: synthesizing appends to the ledger and must not
	// disturb the walk.
	stream := l.Active()
	for _, refund := range stream {
		if !refund.Kind.IsRefund() || !touched[refund.ID] {
			continue
		}
		if !c.SupportedRefundKinds[refund.Kind] {
			continue
		}

		history := historyBefore(l.Active(), refund)
		amount := calc.Compute(history, refund)
		if !amount.IsPositive() {
			continue
		}

		c.state = StatePostingSynthetic
		before := tracker.BalancesAt(history, refund.EffectiveDate)
		if c.shouldPairAccrual(history, refund, amount, before) {
			accrual := Transaction{
				ID:            NewTransactionID(),
				LoanID:        l.LoanID,
				Kind:          KindAccrual,
				Amount:        amount,
				EffectiveDate: refund.EffectiveDate,
				Sequence:      l.NextSequence(),
			}
			l.Insert(accrual)
			l.Relate(refund.ID, accrual.ID, RelationRelated)
			outcome.Synthetic = append(outcome.Synthetic, accrual)
			touched[accrual.ID] = true

			// Interest collected by this refund settles the receivable
			// the accrual just recognized.
			toReceivable[refund.ID] = true
		}

		ir := Transaction{
			ID:            NewTransactionID(),
			LoanID:        l.LoanID,
			Kind:          KindInterestRefund,
			Amount:        amount,
			EffectiveDate: refund.EffectiveDate,
			Sequence:      l.NextSequence(),
		}
		l.Insert(ir)
		l.Relate(refund.ID, ir.ID, RelationRelated)
		outcome.Synthetic = append(outcome.Synthetic, ir)
		touched[ir.ID] = true

		if refund.ID == posted.ID {
			outcome.Result.InterestRefundID = ir.ID
		}
		c.state = StateReplaying
	}
	return nil
}

// shouldPairAccrual decides whether the interest refund needs an accrual to
// recognize the interest it refunds. True only when the refund returns the
// loan's entire accrued-and-uncollected interest while settling all
// outstanding principal; interest already collected (or recognized by an
// earlier accrual) needs no new recognition.
func (c *Coordinator) shouldPairAccrual(history []Transaction, refund Transaction, refundInterest decimal.Decimal, before Balances) bool {
	for _, tx := range history {
		if tx.Kind == KindAccrual {
			return false
		}
	}
	return refundInterest.Equal(before.UnpaidInterest) &&
		refund.Amount.GreaterThanOrEqual(before.Outstanding)
}

// reconcile cross-checks the replayed stream: outstanding principal derived
// by the fold must match disbursed minus principal applied, and must never
// be negative.
func (c *Coordinator) reconcile(l *Ledger) error {
	stream := l.Active()
	tracker := &AccrualTracker{Terms: c.Terms}
	state, _ := tracker.Run(stream, maxDate(stream))

	if state.Outstanding.IsNegative() {
		return &ReplayInconsistencyError{
			LoanID:      l.LoanID,
			Outstanding: state.Outstanding,
			Detail:      "outstanding principal went negative during replay",
		}
	}

	applied := state.PrincipalCollected
	for _, tx := range stream {
		if tx.Kind == KindInterestRefund {
			applied = applied.Add(decimal.Min(tx.Amount, state.TotalDisbursed.Sub(applied)))
		}
	}
	expected := state.TotalDisbursed.Sub(applied)
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	if !state.Outstanding.Equal(expected) {
		return &ReplayInconsistencyError{
			LoanID:      l.LoanID,
			Outstanding: state.Outstanding,
			Detail:      "replayed outstanding does not match principal movements",
		}
	}
	return nil
}

// journalTouched derives entries for every transaction touched this cycle,
// using the allocations from the final fold.
func (c *Coordinator) journalTouched(l *Ledger, touched, toReceivable map[TransactionID]bool) ([]JournalEntry, error) {
	stream := l.Active()
	tracker := &AccrualTracker{Terms: c.Terms}
	_, allocs := tracker.Run(stream, maxDate(stream))
	byID := make(map[TransactionID]CashAllocation, len(allocs))
	for _, a := range allocs {
		byID[a.TransactionID] = a
	}

	poster := &JournalPoster{}
	var out []JournalEntry
	for _, tx := range stream {
		if !touched[tx.ID] {
			continue
		}
		alloc := byID[tx.ID]
		alloc.InterestToReceivable = toReceivable[tx.ID]
		entries, err := poster.Post(tx, alloc)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// historyBefore returns the active transactions strictly ordered before tx.
func historyBefore(stream []Transaction, tx Transaction) []Transaction {
	var out []Transaction
	for _, s := range stream {
		if s.OrderedBefore(tx) {
			out = append(out, s)
		}
	}
	return out
}

// maxDate returns the latest effective date in the stream.
func maxDate(stream []Transaction) BusinessDate {
	var last BusinessDate
	for _, tx := range stream {
		if last.IsZero() || tx.EffectiveDate.After(last) {
			last = tx.EffectiveDate
		}
	}
	return last
}
