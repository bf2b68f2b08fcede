/*
handlers.go - HTTP API handlers for the loan engine

PURPOSE:
  Exposes the loan posting and reconciliation engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Products:
    GET    /api/products                 List all products
    POST   /api/products                 Create product
    GET    /api/products/{id}            Get product

  Loans:
    GET    /api/loans                    List all loans
    POST   /api/loans                    Open a loan account
    GET    /api/loans/{id}               Get loan position (?as_of=YYYY-MM-DD)
    POST   /api/loans/{id}/transactions  Post a transaction
    GET    /api/loans/{id}/transactions  Full transaction log
    GET    /api/loans/{id}/schedule      Amortization schedule

  Transactions:
    GET    /api/transactions/{id}/relations        REPLAYED tags and pairings
    GET    /api/transactions/{id}/journal-entries  Double-entry postings

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Reset database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid commands, tranche limit
  - 404: Loan / product / transaction not found
  - 500: Fatal invariant violations, internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *loan.Service
	Store   *sqlite.Store

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(svc *loan.Service, store *sqlite.Store) *Handler {
	return &Handler{Service: svc, Store: store}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Service.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProduct(r.Context(), loan.ProductID(chi.URLParam(r, "id")))
	if errors.Is(err, loan.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// CreateProduct creates a new product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	rate, err := decimal.NewFromString(req.AnnualRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid annual_rate", err)
		return
	}

	dayCount := engine.DayCountConvention(req.DayCount)
	if req.DayCount == "" {
		dayCount = engine.ActualActual
	}
	kinds := make([]engine.TransactionKind, len(req.RefundKinds))
	for i, k := range req.RefundKinds {
		kinds[i] = engine.TransactionKind(k)
	}

	p := loan.Product{
		ID:                  loan.ProductID(req.ID),
		Name:                req.Name,
		AnnualRate:          rate,
		TermMonths:          req.TermMonths,
		DayCount:            dayCount,
		Rest:                engine.RestDaily,
		MultiTranche:        req.MultiTranche,
		MaxTrancheCount:     req.MaxTrancheCount,
		InterestRefundKinds: kinds,
	}
	if err := h.Service.CreateProduct(r.Context(), p); err != nil {
		writeError(w, statusFor(err), "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns all loan accounts.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.Service.ListLoans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loans", err)
		return
	}
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenLoan creates a loan account under a product.
func (h *Handler) OpenLoan(w http.ResponseWriter, r *http.Request) {
	var req OpenLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	l, err := h.Service.OpenLoan(r.Context(), loan.Loan{
		ProductID:   loan.ProductID(req.ProductID),
		ExternalRef: req.ExternalRef,
		Currency:    req.Currency,
	})
	if errors.Is(err, loan.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "Product not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to open loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(l))
}

// GetLoan returns a loan's derived position, optionally at ?as_of=.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID := engine.LoanID(chi.URLParam(r, "id"))

	var asOf engine.BusinessDate
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := engine.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}

	pos, err := h.Service.PositionAsOf(r.Context(), loanID, asOf)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionDTO(pos, asOf))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// PostTransaction posts one transaction to a loan and runs the full posting
// cycle, backdated or not.
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	loanID := engine.LoanID(chi.URLParam(r, "id"))

	var req PostTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	outcome, err := h.Service.Post(r.Context(), loanID, engine.PostingCommand{
		Kind:          engine.TransactionKind(req.Kind),
		Amount:        amount,
		EffectiveDate: date,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to post transaction", err)
		return
	}

	resp := PostTransactionResponse{TransactionID: string(outcome.Result.TransactionID)}
	if outcome.Result.HasInterestRefund() {
		resp.InterestRefundTransactionID = string(outcome.Result.InterestRefundID)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetTransactions returns the loan's full log in ledger order.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	loanID := engine.LoanID(chi.URLParam(r, "id"))

	views, err := h.Service.Transactions(r.Context(), loanID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get transactions", err)
		return
	}
	dtos := make([]TransactionDTO, len(views))
	for i, v := range views {
		dtos[i] = TransactionDTO{
			ID:        string(v.ID),
			LoanID:    string(v.LoanID),
			Kind:      string(v.Kind),
			Amount:    v.Amount.String(),
			Date:      v.EffectiveDate.String(),
			Sequence:  v.Sequence,
			Withdrawn: v.Withdrawn,
			Replayed:  v.Replayed,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule returns the loan's amortization schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID := engine.LoanID(chi.URLParam(r, "id"))

	periods, err := h.Service.Schedule(r.Context(), loanID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get schedule", err)
		return
	}
	dtos := make([]SchedulePeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = SchedulePeriodDTO{
			Index:            p.Index,
			FromDate:         p.FromDate.String(),
			DueDate:          p.DueDate.String(),
			PrincipalDue:     p.PrincipalDue.String(),
			InterestDue:      p.InterestDue.String(),
			FeeDue:           p.FeeDue.String(),
			PenaltyDue:       p.PenaltyDue.String(),
			OutstandingAfter: p.OutstandingAfter.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRelations returns the relations touching one transaction.
func (h *Handler) GetRelations(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	rels, err := h.Service.TransactionRelations(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get relations", err)
		return
	}
	dtos := make([]RelationDTO, len(rels))
	for i, rel := range rels {
		dtos[i] = RelationDTO{From: string(rel.From), To: string(rel.To), Kind: string(rel.Kind)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetJournalEntries returns the double-entry postings of one transaction.
func (h *Handler) GetJournalEntries(w http.ResponseWriter, r *http.Request) {
	id := engine.TransactionID(chi.URLParam(r, "id"))

	entries, err := h.Service.TransactionJournal(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get journal entries", err)
		return
	}
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = JournalEntryDTO{
			TransactionID: string(e.TransactionID),
			Account:       string(e.Account),
			Side:          string(e.Side),
			Amount:        e.Amount.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case engine.IsNotFound(err) || errors.Is(err, loan.ErrProductNotFound):
		return http.StatusNotFound
	case engine.IsClientError(err) || errors.Is(err, loan.ErrInvalidProduct):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toProductDTO(p loan.Product) ProductDTO {
	kinds := make([]string, len(p.InterestRefundKinds))
	for i, k := range p.InterestRefundKinds {
		kinds[i] = string(k)
	}
	return ProductDTO{
		ID:              string(p.ID),
		Name:            p.Name,
		AnnualRate:      p.AnnualRate.String(),
		TermMonths:      p.TermMonths,
		DayCount:        string(p.DayCount),
		Rest:            string(p.Rest),
		MultiTranche:    p.MultiTranche,
		MaxTrancheCount: p.MaxTrancheCount,
		RefundKinds:     kinds,
	}
}

func toLoanDTO(l loan.Loan) LoanDTO {
	return LoanDTO{
		ID:          string(l.ID),
		ProductID:   string(l.ProductID),
		ExternalRef: l.ExternalRef,
		Currency:    l.Currency,
	}
}

func toPositionDTO(pos loan.Position, asOf engine.BusinessDate) PositionDTO {
	b := pos.Balances
	dto := PositionDTO{
		Loan:   toLoanDTO(pos.Loan),
		Status: string(pos.Status),
		Balances: BalancesDTO{
			Outstanding:        b.Outstanding.String(),
			AccruedInterest:    b.AccruedInterest.String(),
			UnpaidInterest:     b.UnpaidInterest.String(),
			InterestCollected:  b.InterestCollected.String(),
			PrincipalCollected: b.PrincipalCollected.String(),
			Overpaid:           b.Overpaid.String(),
			TotalDisbursed:     b.TotalDisbursed.String(),
		},
	}
	if !asOf.IsZero() {
		dto.AsOf = asOf.String()
	}
	return dto
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
