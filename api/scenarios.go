/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates products, loans, and
	transactions that demonstrate specific features.

AVAILABLE SCENARIOS:

	payout-refund:        Full payout refund shortly after disbursement
	refund-after-payment: Partial merchant refund following a repayment
	multi-tranche:        Two disbursement tranches with a refund between them
	backdated-repayment:  Backdated repayment replaying a later refund

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create products
 3. Open loans
 4. Post transactions through the service (replay and journaling run
    exactly as they would for real traffic)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "payout-refund"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - loan/product.go: Product constructors
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/loan"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "payout-refund",
		Name:        "Payout Refund",
		Description: "Full payout refund two weeks after disbursement, interest refund synthesized",
	},
	{
		ID:          "refund-after-payment",
		Name:        "Refund After Payment",
		Description: "Repayment collects accrued interest, then a partial merchant refund",
	},
	{
		ID:          "multi-tranche",
		Name:        "Multi-Tranche",
		Description: "Two disbursement tranches with a full refund after the second",
	},
	{
		ID:          "backdated-repayment",
		Name:        "Backdated Repayment",
		Description: "Repayment posted before an existing refund, forcing a replay",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = "" // Clear current scenario on reset

	var err error
	switch req.ScenarioID {
	case "payout-refund":
		err = h.loadPayoutRefundScenario(ctx)
	case "refund-after-payment":
		err = h.loadRefundAfterPaymentScenario(ctx)
	case "multi-tranche":
		err = h.loadMultiTrancheScenario(ctx)
	case "backdated-repayment":
		err = h.loadBackdatedRepaymentScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	// Track the loaded scenario
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadPayoutRefundScenario(ctx context.Context) error {
	// 9.99% progressive product, 6 month term
	product := loan.ProgressiveProduct("progressive-9-99", engine.MustDecimal("0.0999"), 6)
	if err := h.Service.CreateProduct(ctx, product); err != nil {
		return err
	}

	l, err := h.Service.OpenLoan(ctx, loan.Loan{
		ProductID:   product.ID,
		ExternalRef: "demo-payout-refund",
	})
	if err != nil {
		return err
	}

	postings := []engine.PostingCommand{
		{Kind: engine.KindDisbursement, Amount: engine.MustDecimal("1000"), EffectiveDate: engine.MustDate("2026-01-01")},
		{Kind: engine.KindPayoutRefund, Amount: engine.MustDecimal("1000"), EffectiveDate: engine.MustDate("2026-01-15")},
	}
	return h.postAll(ctx, l.ID, postings)
}

func (h *Handler) loadRefundAfterPaymentScenario(ctx context.Context) error {
	product := loan.ProgressiveProduct("progressive-9-99", engine.MustDecimal("0.0999"), 6)
	if err := h.Service.CreateProduct(ctx, product); err != nil {
		return err
	}

	l, err := h.Service.OpenLoan(ctx, loan.Loan{
		ProductID:   product.ID,
		ExternalRef: "demo-refund-after-payment",
	})
	if err != nil {
		return err
	}

	postings := []engine.PostingCommand{
		{Kind: engine.KindDisbursement, Amount: engine.MustDecimal("1000"), EffectiveDate: engine.MustDate("2026-01-01")},
		{Kind: engine.KindRepayment, Amount: engine.MustDecimal("171.50"), EffectiveDate: engine.MustDate("2026-02-01")},
		{Kind: engine.KindMerchantIssuedRefund, Amount: engine.MustDecimal("250"), EffectiveDate: engine.MustDate("2026-02-15")},
	}
	return h.postAll(ctx, l.ID, postings)
}

func (h *Handler) loadMultiTrancheScenario(ctx context.Context) error {
	product := loan.MultiTrancheProduct("tranche-9-99", engine.MustDecimal("0.0999"), 6, 3)
	if err := h.Service.CreateProduct(ctx, product); err != nil {
		return err
	}

	l, err := h.Service.OpenLoan(ctx, loan.Loan{
		ProductID:   product.ID,
		ExternalRef: "demo-multi-tranche",
	})
	if err != nil {
		return err
	}

	postings := []engine.PostingCommand{
		{Kind: engine.KindDisbursement, Amount: engine.MustDecimal("600"), EffectiveDate: engine.MustDate("2026-01-01")},
		{Kind: engine.KindDisbursement, Amount: engine.MustDecimal("400"), EffectiveDate: engine.MustDate("2026-01-10")},
		{Kind: engine.KindPayoutRefund, Amount: engine.MustDecimal("1000"), EffectiveDate: engine.MustDate("2026-01-22")},
	}
	return h.postAll(ctx, l.ID, postings)
}

func (h *Handler) loadBackdatedRepaymentScenario(ctx context.Context) error {
	product := loan.ProgressiveProduct("progressive-9-99", engine.MustDecimal("0.0999"), 6)
	if err := h.Service.CreateProduct(ctx, product); err != nil {
		return err
	}

	l, err := h.Service.OpenLoan(ctx, loan.Loan{
		ProductID:   product.ID,
		ExternalRef: "demo-backdated-repayment",
	})
	if err != nil {
		return err
	}

	// The refund lands first; the repayment is then posted with an earlier
	// effective date, which withdraws and regenerates the interest refund.
	postings := []engine.PostingCommand{
		{Kind: engine.KindDisbursement, Amount: engine.MustDecimal("1000"), EffectiveDate: engine.MustDate("2026-01-01")},
		{Kind: engine.KindMerchantIssuedRefund, Amount: engine.MustDecimal("500"), EffectiveDate: engine.MustDate("2026-02-10")},
		{Kind: engine.KindRepayment, Amount: engine.MustDecimal("200"), EffectiveDate: engine.MustDate("2026-01-20")},
	}
	return h.postAll(ctx, l.ID, postings)
}

func (h *Handler) postAll(ctx context.Context, loanID engine.LoanID, cmds []engine.PostingCommand) error {
	for _, cmd := range cmds {
		if _, err := h.Service.Post(ctx, loanID, cmd); err != nil {
			return fmt.Errorf("post %s: %w", cmd.Kind, err)
		}
	}
	return nil
}
