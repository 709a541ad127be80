package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/agency-ledger/api"
	"github.com/warp/agency-ledger/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(mem), nil))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv}
}

// do sends body as JSON and decodes the response into out (when non-nil).
func (f *fixture) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "tester")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) createCustomer(t *testing.T, name string, wallet, limit float64) string {
	t.Helper()
	var dto api.EntityDTO
	status := f.do(t, http.MethodPost, "/api/customers", map[string]any{
		"name":           name,
		"wallet_balance": wallet,
		"credit_limit":   limit,
	}, &dto)
	require.Equal(t, http.StatusCreated, status)
	return dto.ID
}

// =============================================================================
// ENTITIES
// =============================================================================

func TestEntityAPI_CreateAndList(t *testing.T) {
	// GIVEN: a created customer
	// WHEN: listing customers
	// THEN: the customer appears with derived credit fields

	f := newFixture(t)
	f.createCustomer(t, "Asha", 100, 50)

	var list []api.EntityDTO
	status := f.do(t, http.MethodGet, "/api/customers", nil, &list)

	require.Equal(t, http.StatusOK, status)
	require.Len(t, list, 1)
	assert.Equal(t, "Asha", list[0].Name)
	assert.Equal(t, 100.0, list[0].WalletBalance)
	require.NotNil(t, list[0].CreditAvailable)
	assert.Equal(t, 50.0, *list[0].CreditAvailable)
}

func TestEntityAPI_CreateWithoutName_BadRequest(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodPost, "/api/customers", map[string]any{}, nil)

	assert.Equal(t, http.StatusBadRequest, status)
}

func TestEntityAPI_PatchKeepsAbsentFields(t *testing.T) {
	// GIVEN: a customer named Asha with 100 in the wallet
	// WHEN: patching only the contact
	// THEN: name and balances survive

	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 100, 0)

	var dto api.EntityDTO
	status := f.do(t, http.MethodPatch, "/api/customers/"+id, map[string]any{
		"contact": "99-1234",
	}, &dto)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Asha", dto.Name)
	assert.Equal(t, "99-1234", dto.Contact)
	assert.Equal(t, 100.0, dto.WalletBalance)
}

func TestEntityAPI_PatchMissingEntity_NotFound(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodPatch, "/api/customers/ghost", map[string]any{"name": "X"}, nil)

	assert.Equal(t, http.StatusNotFound, status)
}

func TestEntityAPI_AgentStartsWithFullCreditLine(t *testing.T) {
	f := newFixture(t)

	var dto api.EntityDTO
	status := f.do(t, http.MethodPost, "/api/agents", map[string]any{
		"name":         "Skyways",
		"credit_limit": 500.0,
	}, &dto)

	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, dto.CreditAvailable)
	assert.Equal(t, 500.0, *dto.CreditAvailable)
}

func TestEntityAPI_PartnerNegativeWalletNeedsFlag(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodPost, "/api/partners", map[string]any{
		"name":           "Orbit",
		"wallet_balance": -50.0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = f.do(t, http.MethodPost, "/api/partners", map[string]any{
		"name":                  "Orbit",
		"wallet_balance":        -50.0,
		"allow_negative_wallet": true,
	}, nil)
	assert.Equal(t, http.StatusCreated, status)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTransactionAPI_DepositThenBalance(t *testing.T) {
	// GIVEN: a customer cash deposit over the API
	// THEN: the company cash balance reflects it

	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 0, 0)

	var tx api.TransactionDTO
	status := f.do(t, http.MethodPost, "/api/transactions/receipt", map[string]any{
		"entity_type": "customer",
		"entity_id":   id,
		"pay_type":    "cash_deposit",
		"mode":        "cash",
		"amount":      250.0,
	}, &tx)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, tx.RefNo)
	assert.Equal(t, "tester", tx.UpdatedBy)

	var balance api.BalanceDTO
	status = f.do(t, http.MethodGet, "/api/company/cash/balance", nil, &balance)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 250.0, balance.Balance)
}

func TestTransactionAPI_InsufficientFunds_BadRequest(t *testing.T) {
	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 10, 0)

	var errBody map[string]string
	status := f.do(t, http.MethodPost, "/api/transactions/payment", map[string]any{
		"entity_type": "customer",
		"entity_id":   id,
		"pay_type":    "cash_withdrawal",
		"mode":        "cash",
		"amount":      100.0,
	}, &errBody)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, errBody["error"], "insufficient funds")
}

func TestTransactionAPI_UnknownKind_BadRequest(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodPost, "/api/transactions/donation", map[string]any{
		"amount": 10.0,
	}, nil)

	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTransactionAPI_DeleteMissing_NotFound(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodDelete, "/api/transactions/payment/ghost", nil, nil)

	assert.Equal(t, http.StatusNotFound, status)
}

func TestTransactionAPI_WalletTransfer(t *testing.T) {
	f := newFixture(t)
	from := f.createCustomer(t, "Asha", 100, 0)
	to := f.createCustomer(t, "Meera", 0, 0)

	status := f.do(t, http.MethodPost, "/api/transactions/wallet_transfer", map[string]any{
		"from_entity_type": "customer",
		"from_entity_id":   from,
		"to_entity_type":   "customer",
		"to_entity_id":     to,
		"amount":           60.0,
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var list []api.EntityDTO
	f.do(t, http.MethodGet, "/api/customers", nil, &list)
	byName := map[string]float64{}
	for _, e := range list {
		byName[e.Name] = e.WalletBalance
	}
	assert.Equal(t, 40.0, byName["Asha"])
	assert.Equal(t, 60.0, byName["Meera"])
}

// =============================================================================
// TICKETS
// =============================================================================

func TestTicketAPI_BookCancelLedger(t *testing.T) {
	// GIVEN: a 100 cash ticket booked over the API
	// WHEN: cancelling with a 30 cash refund
	// THEN: the cash ledger shows +100, -100, -30

	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 0, 0)

	var tk api.TicketDTO
	status := f.do(t, http.MethodPost, "/api/tickets", map[string]any{
		"customer_id":           id,
		"customer_charge":       100.0,
		"customer_payment_mode": "cash",
	}, &tk)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "booked", tk.Status)

	status = f.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/cancel", map[string]any{
		"customer_refund_amount": 30.0,
		"customer_refund_mode":   "cash",
	}, &tk)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", tk.Status)

	var rows []api.CompanyEntryDTO
	status = f.do(t, http.MethodGet, "/api/company/cash/ledger", nil, &rows)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rows, 3)
	assert.Equal(t, 100.0, rows[0].CreditedAmount)
	assert.Equal(t, -100.0, rows[1].CreditedAmount)
	assert.Equal(t, -30.0, rows[2].CreditedAmount)
	assert.Equal(t, -30.0, rows[2].Balance)
}

func TestTicketAPI_CancelTwice_BadRequest(t *testing.T) {
	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 0, 0)

	var tk api.TicketDTO
	f.do(t, http.MethodPost, "/api/tickets", map[string]any{
		"customer_id":           id,
		"customer_charge":       100.0,
		"customer_payment_mode": "cash",
	}, &tk)

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/cancel", map[string]any{}, nil))
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/api/tickets/"+tk.ID+"/cancel", map[string]any{}, nil))
}

func TestTicketAPI_InvalidMode_BadRequest(t *testing.T) {
	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 0, 0)

	status := f.do(t, http.MethodPost, "/api/tickets", map[string]any{
		"customer_id":           id,
		"customer_charge":       100.0,
		"customer_payment_mode": "barter",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// SERVICES AND COMPANY READS
// =============================================================================

func TestServiceAPI_BookAndDelete(t *testing.T) {
	f := newFixture(t)
	id := f.createCustomer(t, "Asha", 0, 0)

	var svc api.ServiceDTO
	status := f.do(t, http.MethodPost, "/api/services", map[string]any{
		"customer_id":           id,
		"customer_charge":       80.0,
		"customer_payment_mode": "cash",
	}, &svc)
	require.Equal(t, http.StatusCreated, status)

	status = f.do(t, http.MethodDelete, "/api/services/"+svc.ID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	var balance api.BalanceDTO
	f.do(t, http.MethodGet, "/api/company/cash/balance", nil, &balance)
	assert.Equal(t, 0.0, balance.Balance)
}

func TestCompanyAPI_UnknownMode_BadRequest(t *testing.T) {
	f := newFixture(t)

	status := f.do(t, http.MethodGet, "/api/company/wallet/balance", nil, nil)

	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(fmt.Sprintf("%s/healthz", f.srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
