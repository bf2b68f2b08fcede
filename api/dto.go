/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry validator struct tags; handlers run them through the
  shared validator instance before touching domain logic. Amounts travel as
  decimal strings to keep monetary precision out of float64.

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"github.com/go-playground/validator/v10"
)

// validate is the shared validator for request DTOs.
var validate = validator.New()

// =============================================================================
// PRODUCT TYPES
// =============================================================================

// ProductDTO represents a loan product in API responses.
type ProductDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	AnnualRate      string   `json:"annual_rate"`
	TermMonths      int      `json:"term_months"`
	DayCount        string   `json:"day_count"`
	Rest            string   `json:"rest"`
	MultiTranche    bool     `json:"multi_tranche"`
	MaxTrancheCount int      `json:"max_tranche_count,omitempty"`
	RefundKinds     []string `json:"interest_refund_kinds"`
}

// CreateProductRequest is the request to create a product.
type CreateProductRequest struct {
	ID              string   `json:"id" validate:"required"`
	Name            string   `json:"name"`
	AnnualRate      string   `json:"annual_rate" validate:"required"`
	TermMonths      int      `json:"term_months" validate:"required,gt=0"`
	DayCount        string   `json:"day_count" validate:"omitempty,oneof=actual/actual actual/360"`
	MultiTranche    bool     `json:"multi_tranche"`
	MaxTrancheCount int      `json:"max_tranche_count" validate:"omitempty,gte=2"`
	RefundKinds     []string `json:"interest_refund_kinds" validate:"dive,oneof=payout_refund merchant_issued_refund"`
}

// =============================================================================
// LOAN TYPES
// =============================================================================

// OpenLoanRequest is the request to open a loan account.
type OpenLoanRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	ExternalRef string `json:"external_ref"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
}

// LoanDTO represents a loan account.
type LoanDTO struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ExternalRef string `json:"external_ref,omitempty"`
	Currency    string `json:"currency"`
}

// BalancesDTO is the derived position of a loan.
type BalancesDTO struct {
	Outstanding        string `json:"outstanding_principal"`
	AccruedInterest    string `json:"accrued_interest"`
	UnpaidInterest     string `json:"unpaid_interest"`
	InterestCollected  string `json:"interest_collected"`
	PrincipalCollected string `json:"principal_collected"`
	Overpaid           string `json:"overpaid"`
	TotalDisbursed     string `json:"total_disbursed"`
}

// PositionDTO is a loan with its derived balances and status.
type PositionDTO struct {
	Loan     LoanDTO     `json:"loan"`
	Status   string      `json:"status"`
	AsOf     string      `json:"as_of"`
	Balances BalancesDTO `json:"balances"`
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// PostTransactionRequest is the request to post a transaction to a loan.
type PostTransactionRequest struct {
	Kind   string `json:"kind" validate:"required,oneof=disbursement repayment payout_refund merchant_issued_refund"`
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
}

// PostTransactionResponse returns the identity pair of a posting: the
// transaction itself plus the interest refund it triggered, if any.
type PostTransactionResponse struct {
	TransactionID               string `json:"transaction_id"`
	InterestRefundTransactionID string `json:"interest_refund_transaction_id,omitempty"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID        string `json:"id"`
	LoanID    string `json:"loan_id"`
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Date      string `json:"date"`
	Sequence  int64  `json:"sequence"`
	Withdrawn bool   `json:"withdrawn,omitempty"`
	Replayed  bool   `json:"replayed,omitempty"`
}

// RelationDTO represents a cross-transaction relation.
type RelationDTO struct {
	From string `json:"from_transaction_id"`
	To   string `json:"to_transaction_id"`
	Kind string `json:"kind"`
}

// JournalEntryDTO is one leg of a double-entry posting.
type JournalEntryDTO struct {
	TransactionID string `json:"transaction_id"`
	Account       string `json:"account"`
	Side          string `json:"side"`
	Amount        string `json:"amount"`
}

// SchedulePeriodDTO is one row of the amortization schedule.
type SchedulePeriodDTO struct {
	Index            int    `json:"index"`
	FromDate         string `json:"from_date"`
	DueDate          string `json:"due_date"`
	PrincipalDue     string `json:"principal_due"`
	InterestDue      string `json:"interest_due"`
	FeeDue           string `json:"fee_due"`
	PenaltyDue       string `json:"penalty_due"`
	OutstandingAfter string `json:"outstanding_after"`
}

// =============================================================================
// SCENARIO TYPES
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
