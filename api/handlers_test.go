package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/loan-engine/api"
	"github.com/warp/loan-engine/engine"
	"github.com/warp/loan-engine/loan"
	"github.com/warp/loan-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) *chi.Mux {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := loan.NewService(st, st, engine.FixedClock{Date: engine.MustDate("2021-06-01")})
	return api.NewRouter(api.NewHandler(svc, st))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func createProgressiveProduct(t *testing.T, router http.Handler) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/products", api.CreateProductRequest{
		ID:          "progressive",
		Name:        "Progressive Loan",
		AnnualRate:  "0.0999",
		TermMonths:  12,
		RefundKinds: []string{"payout_refund", "merchant_issued_refund"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func openLoan(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/loans", api.OpenLoanRequest{ProductID: "progressive"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	l := decodeBody[api.LoanDTO](t, rec)
	require.NotEmpty(t, l.ID)
	return l.ID
}

func postTransaction(t *testing.T, router http.Handler, loanID, kind, amount, date string) api.PostTransactionResponse {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/loans/"+loanID+"/transactions", api.PostTransactionRequest{
		Kind:   kind,
		Amount: amount,
		Date:   date,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[api.PostTransactionResponse](t, rec)
}

func money(t *testing.T, s string) string {
	t.Helper()
	return engine.MustDecimal(s).String()
}

// =============================================================================
// PRODUCTS
// =============================================================================

func TestAPI_CreateAndGetProduct(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)

	rec := doRequest(t, router, http.MethodGet, "/api/products/progressive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	p := decodeBody[api.ProductDTO](t, rec)
	assert.Equal(t, "progressive", p.ID)
	assert.Equal(t, "0.0999", p.AnnualRate)
	assert.Equal(t, 12, p.TermMonths)
	assert.Equal(t, "actual/actual", p.DayCount)
	assert.ElementsMatch(t, []string{"payout_refund", "merchant_issued_refund"}, p.RefundKinds)
}

func TestAPI_GetProduct_NotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/api/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateProduct_ValidationFailure(t *testing.T) {
	router := newTestRouter(t)

	// Missing annual_rate
	rec := doRequest(t, router, http.MethodPost, "/api/products", api.CreateProductRequest{
		ID:         "bad",
		TermMonths: 12,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decodeBody[api.ErrorResponse](t, rec)
	assert.NotEmpty(t, errResp.Error)
}

// =============================================================================
// LOANS
// =============================================================================

func TestAPI_OpenLoan_DefaultsAndNotFound(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/loans", api.OpenLoanRequest{ProductID: "progressive"})
	require.Equal(t, http.StatusCreated, rec.Code)
	l := decodeBody[api.LoanDTO](t, rec)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, "USD", l.Currency)

	rec = doRequest(t, router, http.MethodPost, "/api/loans", api.OpenLoanRequest{ProductID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetLoanPosition_AsOf(t *testing.T) {
	// GIVEN: A disbursement of 1000 on 2021-01-01
	// WHEN: Position is requested as of day 21
	// THEN: Accrued interest is reported alongside the untouched principal

	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)
	postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")

	rec := doRequest(t, router, http.MethodGet, "/api/loans/"+loanID+"?as_of=2021-01-22", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pos := decodeBody[api.PositionDTO](t, rec)
	assert.Equal(t, "active", pos.Status)
	assert.Equal(t, "2021-01-22", pos.AsOf)
	assert.Equal(t, money(t, "1000"), pos.Balances.Outstanding)
	assert.Equal(t, money(t, "5.75"), pos.Balances.AccruedInterest)
}

func TestAPI_GetLoanPosition_BadAsOf(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/api/loans/whatever?as_of=22-01-2021", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetLoanPosition_NotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodGet, "/api/loans/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// POSTING
// =============================================================================

func TestAPI_PostTransaction_FullRefundCycle(t *testing.T) {
	// GIVEN: A disbursement of 1000 on 2021-01-01
	// WHEN: A full payout refund posts on day 21
	// THEN: The response carries the synthesized interest refund's id and the
	//       loan closes at zero

	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)

	disb := postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")
	assert.NotEmpty(t, disb.TransactionID)
	assert.Empty(t, disb.InterestRefundTransactionID)

	refund := postTransaction(t, router, loanID, "payout_refund", "1000", "2021-01-22")
	assert.NotEmpty(t, refund.InterestRefundTransactionID)

	rec := doRequest(t, router, http.MethodGet, "/api/loans/"+loanID+"?as_of=2021-01-22", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pos := decodeBody[api.PositionDTO](t, rec)
	assert.Equal(t, "closed", pos.Status)
	assert.Equal(t, money(t, "0"), pos.Balances.Outstanding)
	assert.Equal(t, money(t, "0"), pos.Balances.UnpaidInterest)
}

func TestAPI_PostTransaction_Rejections(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)

	// Synthetic kinds cannot be posted directly
	rec := doRequest(t, router, http.MethodPost, "/api/loans/"+loanID+"/transactions", api.PostTransactionRequest{
		Kind: "accrual", Amount: "5.75", Date: "2021-01-22",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/loans/"+loanID+"/transactions", api.PostTransactionRequest{
		Kind: "repayment", Amount: "100", Date: "22-01-2021",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/loans/missing/transactions", api.PostTransactionRequest{
		Kind: "repayment", Amount: "100", Date: "2021-01-22",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetTransactions_BackdatedReplay(t *testing.T) {
	// GIVEN: A full refund whose first posting synthesized an accrual pair
	// WHEN: A repayment posts backdated before the refund
	// THEN: The log shows the withdrawn pair, the replayed refund and the
	//       regenerated interest refund

	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)

	postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")
	postTransaction(t, router, loanID, "payout_refund", "1000", "2021-02-09")
	postTransaction(t, router, loanID, "repayment", "87.89", "2021-02-01")

	rec := doRequest(t, router, http.MethodGet, "/api/loans/"+loanID+"/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	txs := decodeBody[[]api.TransactionDTO](t, rec)
	require.Len(t, txs, 6)

	var withdrawn, replayed int
	active := map[string]int{}
	for _, tx := range txs {
		if tx.Withdrawn {
			withdrawn++
			continue
		}
		if tx.Replayed {
			replayed++
		}
		active[tx.Kind]++
	}
	assert.Equal(t, 2, withdrawn)
	assert.Equal(t, 1, replayed, "the refund was replayed around the backdated repayment")
	assert.Equal(t, map[string]int{
		"disbursement":    1,
		"repayment":       1,
		"payout_refund":   1,
		"interest_refund": 1,
	}, active)
}

// =============================================================================
// SCHEDULE, RELATIONS, JOURNAL
// =============================================================================

func TestAPI_GetSchedule(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)
	postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")

	rec := doRequest(t, router, http.MethodGet, "/api/loans/"+loanID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	periods := decodeBody[[]api.SchedulePeriodDTO](t, rec)
	require.Len(t, periods, 12)
	assert.Equal(t, "2021-02-01", periods[0].DueDate)
	assert.Equal(t, money(t, "0"), periods[11].OutstandingAfter)
}

func TestAPI_TransactionRelations(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)

	postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")
	refund := postTransaction(t, router, loanID, "payout_refund", "1000", "2021-01-22")

	rec := doRequest(t, router, http.MethodGet, "/api/transactions/"+refund.TransactionID+"/relations", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rels := decodeBody[[]api.RelationDTO](t, rec)
	require.NotEmpty(t, rels)

	var related bool
	for _, rel := range rels {
		if rel.Kind == "related" && rel.From == refund.TransactionID && rel.To == refund.InterestRefundTransactionID {
			related = true
		}
	}
	assert.True(t, related, "refund should be linked to its interest refund")
}

func TestAPI_TransactionJournalEntries(t *testing.T) {
	router := newTestRouter(t)
	createProgressiveProduct(t, router)
	loanID := openLoan(t, router)

	disb := postTransaction(t, router, loanID, "disbursement", "1000", "2021-01-01")

	rec := doRequest(t, router, http.MethodGet, "/api/transactions/"+disb.TransactionID+"/journal-entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decodeBody[[]api.JournalEntryDTO](t, rec)
	require.Len(t, entries, 2)

	bySide := map[string]string{}
	for _, e := range entries {
		bySide[e.Side] = e.Account
	}
	assert.Equal(t, "loans-receivable", bySide["debit"])
	assert.Equal(t, "fund-source", bySide["credit"])
}

func TestAPI_TransactionLookups_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/transactions/missing/relations", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/transactions/missing/journal-entries", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_Scenarios_ListLoadReset(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]api.ScenarioDTO](t, rec)
	require.Len(t, list, 4)

	rec = doRequest(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "payout-refund"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decodeBody[api.ScenarioDTO](t, rec)
	assert.Equal(t, "payout-refund", current.ID)

	rec = doRequest(t, router, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans := decodeBody[[]api.LoanDTO](t, rec)
	assert.NotEmpty(t, loans)

	rec = doRequest(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans = decodeBody[[]api.LoanDTO](t, rec)
	assert.Empty(t, loans)
}

func TestAPI_Scenarios_LoadUnknown(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
