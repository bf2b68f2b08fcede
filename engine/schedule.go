/*
schedule.go - Amortization schedule generation

PURPOSE:
  Rebuilds the installment schedule from the current set of disbursement
  tranches. The schedule is fully derived: it is regenerated from scratch
  whenever the tranche set changes and is never patched in place.

MODEL:
  Progressive EMI with exact day counts. Each period's rate is
  annualRate * periodDays / daysInYear, so unequal month lengths produce
  slightly unequal interest portions. Each tranche is annuitized over the
  periods remaining after its own disbursement date and the per-period
  amounts are aggregated, rounded once on the aggregate. The final period
  absorbs residual rounding so principal sums exactly to the disbursed
  total.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// InstallmentPeriod is one row of the amortization schedule.
type InstallmentPeriod struct {
	Index        int
	FromDate     BusinessDate
	DueDate      BusinessDate
	PrincipalDue decimal.Decimal
	InterestDue  decimal.Decimal
	FeeDue       decimal.Decimal
	PenaltyDue   decimal.Decimal

	// OutstandingAfter is the aggregate principal balance once this
	// installment's principal is paid.
	OutstandingAfter decimal.Decimal
}

// Scheduler generates amortization schedules.
type Scheduler struct {
	Terms Terms
}

// Build generates the full schedule for the given tranches. It returns
// ErrTrancheLimitExceeded (wrapped with detail) when the tranche count
// exceeds the configured cap.
func (s *Scheduler) Build(loanID LoanID, tranches []Tranche) ([]InstallmentPeriod, error) {
	if len(tranches) == 0 {
		return nil, nil
	}
	if max := s.Terms.maxTranches(); len(tranches) > max {
		return nil, &TrancheLimitError{LoanID: loanID, MaxCount: max, Attempted: len(tranches)}
	}

	sorted := make([]Tranche, len(tranches))
	copy(sorted, tranches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	start := sorted[0].Date
	periods := make([]InstallmentPeriod, s.Terms.TermMonths)
	from := start
	for i := range periods {
		due := start.AddMonths(i + 1)
		periods[i] = InstallmentPeriod{
			Index:        i + 1,
			FromDate:     from,
			DueDate:      due,
			PrincipalDue: decimal.Zero,
			InterestDue:  decimal.Zero,
			FeeDue:       decimal.Zero,
			PenaltyDue:   decimal.Zero,
		}
		from = due
	}

	// Per-tranche annuity, aggregated per period before rounding.
	principal := make([]decimal.Decimal, len(periods))
	interest := make([]decimal.Decimal, len(periods))
	for i := range periods {
		principal[i] = decimal.Zero
		interest[i] = decimal.Zero
	}
	total := decimal.Zero
	for _, tr := range sorted {
		total = total.Add(tr.Amount)
		s.amortizeTranche(tr, periods, principal, interest)
	}

	// Round aggregates once and let the final installment absorb the
	// principal residue.
	allocated := decimal.Zero
	balance := total
	for i := range periods {
		p := RoundMoney(principal[i])
		if i == len(periods)-1 {
			p = total.Sub(allocated)
		}
		allocated = allocated.Add(p)
		balance = balance.Sub(p)
		periods[i].PrincipalDue = p
		periods[i].InterestDue = RoundMoney(interest[i])
		periods[i].OutstandingAfter = balance
	}
	return periods, nil
}

// amortizeTranche spreads one tranche over the periods that end after its
// disbursement date, accumulating unrounded principal and interest into the
// aggregate buckets.
func (s *Scheduler) amortizeTranche(tr Tranche, periods []InstallmentPeriod, principal, interest []decimal.Decimal) {
	daysInYear := decimal.NewFromInt(int64(s.Terms.DayCount.DaysInYear()))

	// Period rates as seen by this tranche. The first period it touches
	// runs from the tranche date, not the period start.
	first := -1
	rates := make([]decimal.Decimal, 0, len(periods))
	for i, p := range periods {
		if !p.DueDate.After(tr.Date) {
			continue
		}
		if first < 0 {
			first = i
		}
		from := p.FromDate
		if from.Before(tr.Date) {
			from = tr.Date
		}
		days := DaysBetween(from, p.DueDate)
		rates = append(rates, s.Terms.AnnualRate.
			Mul(decimal.NewFromInt(int64(days))).
			Div(daysInYear))
	}
	if first < 0 {
		return
	}

	emi := annuityPayment(tr.Amount, rates)

	balance := tr.Amount
	for j, r := range rates {
		due := balance.Mul(r)
		var repaid decimal.Decimal
		if j == len(rates)-1 {
			repaid = balance
		} else {
			repaid = emi.Sub(due)
			if repaid.GreaterThan(balance) {
				repaid = balance
			}
		}
		principal[first+j] = principal[first+j].Add(repaid)
		interest[first+j] = interest[first+j].Add(due)
		balance = balance.Sub(repaid)
	}
}

// annuityPayment solves the level payment A for principal P under the
// per-period rates r_i:
//
//	P = A * sum_i  prod_{j<=i} 1/(1+r_j)
func annuityPayment(p decimal.Decimal, rates []decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	factor := decimal.Zero
	discount := one
	for _, r := range rates {
		discount = discount.Div(one.Add(r))
		factor = factor.Add(discount)
	}
	if factor.IsZero() {
		return p
	}
	return p.Div(factor)
}
