/*
product.go - Loan product configuration

PURPOSE:
  A product bundles the terms every loan opened under it computes with:
  interest rate, term, day-count convention, rest frequency, tranche rules
  and the refund kinds that trigger interest-refund processing.

INTEREST REFUND GATING:
  InterestRefundKinds is the product-level switch. A refund kind listed
  here makes the engine synthesize an interest refund whenever such a
  transaction posts; a kind not listed posts as plain cash in. The gate is
  configuration, not an error path.

AVAILABLE PRODUCTS:
  ProgressiveProduct:   single-tranche daily-interest loan
  MultiTrancheProduct:  same terms, multiple disbursements up to a cap

SEE ALSO:
  - service.go: posting orchestration using these terms
  - engine/accrual.go: how the terms drive interest computation
*/
package loan

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidProduct  = errors.New("invalid product configuration")
)

// =============================================================================
// PRODUCT
// =============================================================================

type ProductID string

// Product is the immutable configuration loans are opened under.
type Product struct {
	ID   ProductID
	Name string

	// AnnualRate is the nominal annual rate as a fraction (9.99% = 0.0999).
	AnnualRate decimal.Decimal

	TermMonths int
	DayCount   engine.DayCountConvention
	Rest       engine.RestFrequency

	MultiTranche    bool
	MaxTrancheCount int

	// InterestRefundKinds lists the refund kinds that trigger interest
	// refund synthesis.
	InterestRefundKinds []engine.TransactionKind
}

// Terms projects the product into the engine's computation parameters.
func (p Product) Terms() engine.Terms {
	max := 1
	if p.MultiTranche {
		max = p.MaxTrancheCount
	}
	return engine.Terms{
		AnnualRate:      p.AnnualRate,
		TermMonths:      p.TermMonths,
		DayCount:        p.DayCount,
		Rest:            p.Rest,
		MaxTrancheCount: max,
	}
}

// RefundGate returns the kind set the coordinator gates on.
func (p Product) RefundGate() map[engine.TransactionKind]bool {
	gate := make(map[engine.TransactionKind]bool, len(p.InterestRefundKinds))
	for _, k := range p.InterestRefundKinds {
		gate[k] = true
	}
	return gate
}

// Validate rejects unusable configurations before they are stored.
func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProduct)
	}
	if p.AnnualRate.IsNegative() {
		return fmt.Errorf("%w: negative annual rate", ErrInvalidProduct)
	}
	if p.TermMonths <= 0 {
		return fmt.Errorf("%w: term must be at least one month", ErrInvalidProduct)
	}
	if p.MultiTranche && p.MaxTrancheCount < 2 {
		return fmt.Errorf("%w: multi-tranche product needs max tranche count >= 2", ErrInvalidProduct)
	}
	for _, k := range p.InterestRefundKinds {
		if !k.IsRefund() {
			return fmt.Errorf("%w: %s is not a refund kind", ErrInvalidProduct, k)
		}
	}
	return nil
}

// =============================================================================
// COMMON PRODUCTS
// =============================================================================

// ProgressiveProduct returns a single-tranche daily-interest product with
// both refund kinds enabled.
func ProgressiveProduct(id ProductID, annualRate decimal.Decimal, termMonths int) Product {
	return Product{
		ID:         id,
		Name:       "Progressive Loan",
		AnnualRate: annualRate,
		TermMonths: termMonths,
		DayCount:   engine.ActualActual,
		Rest:       engine.RestDaily,
		InterestRefundKinds: []engine.TransactionKind{
			engine.KindPayoutRefund,
			engine.KindMerchantIssuedRefund,
		},
	}
}

// MultiTrancheProduct returns the progressive product with multiple
// disbursements allowed up to maxTranches.
func MultiTrancheProduct(id ProductID, annualRate decimal.Decimal, termMonths, maxTranches int) Product {
	p := ProgressiveProduct(id, annualRate, termMonths)
	p.Name = "Progressive Multi-Tranche Loan"
	p.MultiTranche = true
	p.MaxTrancheCount = maxTranches
	return p
}

// =============================================================================
// LOAN
// =============================================================================

// LoanStatus is derived from balances, never stored.
type LoanStatus string

const (
	StatusActive   LoanStatus = "active"
	StatusClosed   LoanStatus = "closed"
	StatusOverpaid LoanStatus = "overpaid"
)

// Loan is an account opened under a product. All financial state lives in
// the transaction log; the loan record is identity plus configuration.
type Loan struct {
	ID          engine.LoanID
	ProductID   ProductID
	ExternalRef string
	Currency    string
}

// StatusFor derives the loan status from its balances.
func StatusFor(b engine.Balances) LoanStatus {
	switch {
	case b.Overpaid.IsPositive():
		return StatusOverpaid
	case b.TotalDisbursed.IsPositive() && b.Outstanding.IsZero() && b.UnpaidInterest.IsZero():
		return StatusClosed
	default:
		return StatusActive
	}
}
