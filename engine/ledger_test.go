package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/engine"
)

// =============================================================================
// ORDERING
// =============================================================================

func TestLedger_SortsByDateThenSequence(t *testing.T) {
	// GIVEN: Transactions loaded out of order, two sharing a date
	// WHEN: Building the ledger
	// THEN: Active stream is (date, sequence) ordered

	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	b := tx(engine.KindRepayment, "100", "2021-02-01")
	c := tx(engine.KindRepayment, "50", "2021-02-01") // later sequence, same day

	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{c, a, b}, nil, nil)

	active := l.Active()
	require.Len(t, active, 3)
	assert.Equal(t, a.ID, active[0].ID)
	assert.Equal(t, b.ID, active[1].ID)
	assert.Equal(t, c.ID, active[2].ID)
}

func TestLedger_NextSequence_ContinuesFromLoaded(t *testing.T) {
	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a}, nil, nil)

	next := l.NextSequence()
	assert.Greater(t, next, a.Sequence)
	assert.Equal(t, next+1, l.NextSequence())
}

func TestLedger_Insert_BackdatedSlotsIntoPosition(t *testing.T) {
	// GIVEN: A ledger with Jan and Mar transactions
	// WHEN: Inserting a Feb transaction with a fresh (higher) sequence
	// THEN: It lands between them; date dominates sequence

	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	b := tx(engine.KindRepayment, "100", "2021-03-01")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, b}, nil, nil)

	mid := engine.Transaction{
		ID:            engine.NewTransactionID(),
		LoanID:        "loan-1",
		Kind:          engine.KindRepayment,
		Amount:        engine.MustDecimal("100"),
		EffectiveDate: engine.MustDate("2021-02-01"),
		Sequence:      l.NextSequence(),
	}
	l.Insert(mid)

	active := l.Active()
	require.Len(t, active, 3)
	assert.Equal(t, mid.ID, active[1].ID)
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

func TestLedger_Withdraw_HidesButKeeps(t *testing.T) {
	// GIVEN: A ledger with a synthetic accrual
	// WHEN: The accrual is withdrawn
	// THEN: Active excludes it, the full log still has it

	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	acc := tx(engine.KindAccrual, "5.75", "2021-01-22")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, acc}, nil, nil)

	l.Withdraw(acc.ID)

	assert.True(t, l.IsWithdrawn(acc.ID))
	assert.Len(t, l.Active(), 1)
	assert.Len(t, l.All(), 2)
}

func TestLedger_LoadedWithdrawals_Honored(t *testing.T) {
	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	acc := tx(engine.KindAccrual, "5.75", "2021-01-22")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, acc}, []engine.TransactionID{acc.ID}, nil)

	assert.True(t, l.IsWithdrawn(acc.ID))
	assert.Len(t, l.Active(), 1)
}

// =============================================================================
// SUFFIX - the segment a backdated insertion disturbs
// =============================================================================

func TestLedger_SuffixAfter_ReturnsDisturbedSegment(t *testing.T) {
	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	b := tx(engine.KindRepayment, "100", "2021-02-15")
	c := tx(engine.KindRepayment, "100", "2021-03-01")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, b, c}, nil, nil)

	probe := engine.Transaction{
		EffectiveDate: engine.MustDate("2021-02-01"),
		Sequence:      l.NextSequence(),
	}
	suffix := l.SuffixAfter(probe)

	require.Len(t, suffix, 2)
	assert.Equal(t, b.ID, suffix[0].ID)
	assert.Equal(t, c.ID, suffix[1].ID)
}

func TestLedger_SuffixAfter_ExcludesWithdrawn(t *testing.T) {
	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	acc := tx(engine.KindAccrual, "5.75", "2021-03-01")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, acc}, []engine.TransactionID{acc.ID}, nil)

	probe := engine.Transaction{
		EffectiveDate: engine.MustDate("2021-02-01"),
		Sequence:      l.NextSequence(),
	}
	assert.Empty(t, l.SuffixAfter(probe))
}

// =============================================================================
// DERIVED VIEWS
// =============================================================================

func TestLedger_Tranches_ActiveDisbursementsOnly(t *testing.T) {
	a := tx(engine.KindDisbursement, "250", "2021-01-01")
	b := tx(engine.KindDisbursement, "750", "2021-01-07")
	r := tx(engine.KindRepayment, "100", "2021-02-01")
	l := engine.NewLedger("loan-1", multiTrancheTerms(12, 2),
		[]engine.Transaction{a, b, r}, nil, nil)

	tranches := l.Tranches()
	require.Len(t, tranches, 2)
	assertMoney(t, "250", tranches[0].Amount)
	assertMoney(t, "750", tranches[1].Amount)
	assertMoney(t, "1000", l.TotalDisbursed())
}

func TestLedger_Relations_FilterByTransaction(t *testing.T) {
	a := tx(engine.KindDisbursement, "1000", "2021-01-01")
	b := tx(engine.KindPayoutRefund, "1000", "2021-01-22")
	ir := tx(engine.KindInterestRefund, "5.75", "2021-01-22")
	l := engine.NewLedger("loan-1", progressiveTerms(12),
		[]engine.Transaction{a, b, ir}, nil, nil)

	l.Relate(b.ID, ir.ID, engine.RelationRelated)

	rels := l.RelationsOf(ir.ID)
	require.Len(t, rels, 1)
	assert.Equal(t, b.ID, rels[0].From)
	assert.Equal(t, engine.RelationRelated, rels[0].Kind)

	assert.Empty(t, l.RelationsOf(a.ID))
}
