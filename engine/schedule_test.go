package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/engine"
)

func buildSchedule(t *testing.T, terms engine.Terms, tranches ...engine.Tranche) []engine.InstallmentPeriod {
	t.Helper()
	periods, err := (&engine.Scheduler{Terms: terms}).Build("loan-1", tranches)
	require.NoError(t, err)
	return periods
}

func TestSchedule_TwelveMonthlyPeriods(t *testing.T) {
	// GIVEN: 1000 over 12 months from Jan 1
	// THEN: 12 periods, month boundaries, contiguous from/due dates

	periods := buildSchedule(t, progressiveTerms(12),
		engine.Tranche{Amount: engine.MustDecimal("1000"), Date: engine.MustDate("2021-01-01")})

	require.Len(t, periods, 12)
	assert.Equal(t, 1, periods[0].Index)
	assert.True(t, periods[0].FromDate.Equal(engine.MustDate("2021-01-01")))
	assert.True(t, periods[0].DueDate.Equal(engine.MustDate("2021-02-01")))
	assert.True(t, periods[11].DueDate.Equal(engine.MustDate("2022-01-01")))

	for i := 1; i < len(periods); i++ {
		assert.True(t, periods[i].FromDate.Equal(periods[i-1].DueDate),
			"period %d does not start where %d ends", i+1, i)
	}
}

func TestSchedule_PrincipalSumsToDisbursed(t *testing.T) {
	// THEN: Rounded principal portions sum exactly to the disbursed total;
	//       the last installment absorbs the residue

	periods := buildSchedule(t, progressiveTerms(12),
		engine.Tranche{Amount: engine.MustDecimal("1000"), Date: engine.MustDate("2021-01-01")})

	total := engine.MustDecimal("0")
	for _, p := range periods {
		total = total.Add(p.PrincipalDue)
	}
	assertMoney(t, "1000", total)
	assert.True(t, periods[len(periods)-1].OutstandingAfter.IsZero())
}

func TestSchedule_OutstandingDeclinesMonotonically(t *testing.T) {
	periods := buildSchedule(t, progressiveTerms(12),
		engine.Tranche{Amount: engine.MustDecimal("1000"), Date: engine.MustDate("2021-01-01")})

	prev := engine.MustDecimal("1000")
	for _, p := range periods {
		assert.True(t, p.OutstandingAfter.LessThanOrEqual(prev),
			"period %d outstanding %s above previous %s", p.Index, p.OutstandingAfter, prev)
		assert.False(t, p.OutstandingAfter.IsNegative())
		prev = p.OutstandingAfter
	}
}

func TestSchedule_InterestReflectsPeriodLength(t *testing.T) {
	// GIVEN: Exact day counts
	// THEN: February (28 days) carries less interest than January (31 days)
	//       on a near-level balance

	periods := buildSchedule(t, progressiveTerms(12),
		engine.Tranche{Amount: engine.MustDecimal("1000"), Date: engine.MustDate("2021-01-01")})

	jan, feb := periods[0].InterestDue, periods[1].InterestDue
	assert.True(t, feb.LessThan(jan), "Feb interest %s not below Jan %s", feb, jan)
	assert.True(t, jan.IsPositive())
}

func TestSchedule_SecondTranche_JoinsRemainingPeriods(t *testing.T) {
	// GIVEN: 250 on Jan 1 and 750 on Jan 7 over 6 months
	// THEN: Six periods anchored on the first tranche date; principal still
	//       sums to 1000

	periods := buildSchedule(t, multiTrancheTerms(6, 2),
		engine.Tranche{Amount: engine.MustDecimal("250"), Date: engine.MustDate("2021-01-01")},
		engine.Tranche{Amount: engine.MustDecimal("750"), Date: engine.MustDate("2021-01-07")})

	require.Len(t, periods, 6)
	assert.True(t, periods[0].FromDate.Equal(engine.MustDate("2021-01-01")))

	total := engine.MustDecimal("0")
	for _, p := range periods {
		total = total.Add(p.PrincipalDue)
	}
	assertMoney(t, "1000", total)
}

func TestSchedule_LateTrancheSkipsElapsedPeriods(t *testing.T) {
	// GIVEN: A second tranche disbursed in month three
	// THEN: The first two periods amortize only the first tranche

	first := buildSchedule(t, multiTrancheTerms(6, 2),
		engine.Tranche{Amount: engine.MustDecimal("500"), Date: engine.MustDate("2021-01-01")})
	both := buildSchedule(t, multiTrancheTerms(6, 2),
		engine.Tranche{Amount: engine.MustDecimal("500"), Date: engine.MustDate("2021-01-01")},
		engine.Tranche{Amount: engine.MustDecimal("500"), Date: engine.MustDate("2021-03-15")})

	// Periods fully elapsed before the second tranche are identical
	assert.True(t, both[0].PrincipalDue.Equal(first[0].PrincipalDue))
	assert.True(t, both[0].InterestDue.Equal(first[0].InterestDue))
	assert.True(t, both[1].PrincipalDue.Equal(first[1].PrincipalDue))

	// Later periods carry more principal
	assert.True(t, both[3].PrincipalDue.GreaterThan(first[3].PrincipalDue))
}

func TestSchedule_EmptyTranches_NoSchedule(t *testing.T) {
	periods, err := (&engine.Scheduler{Terms: progressiveTerms(12)}).Build("loan-1", nil)
	require.NoError(t, err)
	assert.Nil(t, periods)
}

func TestSchedule_TooManyTranches_Rejected(t *testing.T) {
	_, err := (&engine.Scheduler{Terms: multiTrancheTerms(12, 2)}).Build("loan-1", []engine.Tranche{
		{Amount: engine.MustDecimal("100"), Date: engine.MustDate("2021-01-01")},
		{Amount: engine.MustDecimal("100"), Date: engine.MustDate("2021-01-02")},
		{Amount: engine.MustDecimal("100"), Date: engine.MustDate("2021-01-03")},
	})
	assert.ErrorIs(t, err, engine.ErrTrancheLimitExceeded)
}
