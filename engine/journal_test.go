package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/engine"
)

func entriesBalance(entries []engine.JournalEntry) bool {
	debits, credits := engine.MustDecimal("0"), engine.MustDecimal("0")
	for _, e := range entries {
		if e.Side == engine.Debit {
			debits = debits.Add(e.Amount)
		} else {
			credits = credits.Add(e.Amount)
		}
	}
	return debits.Equal(credits)
}

func TestJournal_Disbursement(t *testing.T) {
	poster := &engine.JournalPoster{}
	d := tx(engine.KindDisbursement, "1000", "2021-01-01")

	entries, err := poster.Post(d, engine.CashAllocation{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, engine.AccountLoansReceivable, entries[0].Account)
	assert.Equal(t, engine.Debit, entries[0].Side)
	assertMoney(t, "1000", entries[0].Amount)
	assert.Equal(t, engine.AccountFundSource, entries[1].Account)
	assert.Equal(t, engine.Credit, entries[1].Side)
	assert.True(t, entriesBalance(entries))
}

func TestJournal_Repayment_SplitsByAllocation(t *testing.T) {
	// GIVEN: A repayment allocated 8.48 interest / 79.41 principal
	// THEN: One debit on the fund source, credits per the split

	poster := &engine.JournalPoster{}
	r := tx(engine.KindRepayment, "87.89", "2021-02-01")

	entries, err := poster.Post(r, engine.CashAllocation{
		TransactionID: r.ID,
		Interest:      engine.MustDecimal("8.48"),
		Principal:     engine.MustDecimal("79.41"),
		Overpayment:   engine.MustDecimal("0"),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, engine.AccountFundSource, entries[0].Account)
	assert.Equal(t, engine.Debit, entries[0].Side)
	assertMoney(t, "87.89", entries[0].Amount)

	assert.Equal(t, engine.AccountInterestIncome, entries[1].Account)
	assertMoney(t, "8.48", entries[1].Amount)
	assert.Equal(t, engine.AccountLoansReceivable, entries[2].Account)
	assertMoney(t, "79.41", entries[2].Amount)
	assert.True(t, entriesBalance(entries))
}

func TestJournal_Repayment_InterestToReceivable(t *testing.T) {
	// GIVEN: The coordinator marked this cash as settling a fresh accrual
	// THEN: The interest credit lands on interest-receivable, not income

	poster := &engine.JournalPoster{}
	r := tx(engine.KindPayoutRefund, "1000", "2021-01-22")

	entries, err := poster.Post(r, engine.CashAllocation{
		TransactionID:        r.ID,
		Interest:             engine.MustDecimal("5.75"),
		Principal:            engine.MustDecimal("994.25"),
		InterestToReceivable: true,
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, engine.AccountInterestReceivable, entries[1].Account)
}

func TestJournal_Overpayment_CreditsLiability(t *testing.T) {
	poster := &engine.JournalPoster{}
	r := tx(engine.KindRepayment, "1200", "2021-01-22")

	entries, err := poster.Post(r, engine.CashAllocation{
		TransactionID: r.ID,
		Interest:      engine.MustDecimal("5.75"),
		Principal:     engine.MustDecimal("1000"),
		Overpayment:   engine.MustDecimal("194.25"),
	})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, engine.AccountOverpayment, entries[3].Account)
	assertMoney(t, "194.25", entries[3].Amount)
	assert.True(t, entriesBalance(entries))
}

func TestJournal_Accrual(t *testing.T) {
	poster := &engine.JournalPoster{}
	a := tx(engine.KindAccrual, "5.75", "2021-01-22")

	entries, err := poster.Post(a, engine.CashAllocation{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.AccountInterestReceivable, entries[0].Account)
	assert.Equal(t, engine.Debit, entries[0].Side)
	assert.Equal(t, engine.AccountInterestIncome, entries[1].Account)
	assert.Equal(t, engine.Credit, entries[1].Side)
}

func TestJournal_InterestRefund(t *testing.T) {
	poster := &engine.JournalPoster{}
	ir := tx(engine.KindInterestRefund, "5.75", "2021-01-22")

	entries, err := poster.Post(ir, engine.CashAllocation{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.AccountInterestIncome, entries[0].Account)
	assert.Equal(t, engine.Debit, entries[0].Side)
	assert.Equal(t, engine.AccountLoansReceivable, entries[1].Account)
	assert.Equal(t, engine.Credit, entries[1].Side)
}

func TestJournal_UnknownKind_Rejected(t *testing.T) {
	poster := &engine.JournalPoster{}
	bad := tx("write_off", "100", "2021-01-01")

	_, err := poster.Post(bad, engine.CashAllocation{})
	assert.ErrorIs(t, err, engine.ErrInvalidKind)
}

func TestJournal_ImbalancedAllocation_Fatal(t *testing.T) {
	// GIVEN: An allocation that does not sum to the cash amount
	// WHEN: Posting
	// THEN: ArithmeticInvariantError carrying both totals; IsFatal is true

	poster := &engine.JournalPoster{}
	r := tx(engine.KindRepayment, "100", "2021-02-01")

	_, err := poster.Post(r, engine.CashAllocation{
		TransactionID: r.ID,
		Interest:      engine.MustDecimal("5"),
		Principal:     engine.MustDecimal("90"),
	})

	require.Error(t, err)
	var invErr *engine.ArithmeticInvariantError
	require.ErrorAs(t, err, &invErr)
	assertMoney(t, "100", invErr.Debits)
	assertMoney(t, "95", invErr.Credits)
	assert.True(t, engine.IsFatal(err))
}
