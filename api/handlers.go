/*
handlers.go - HTTP handlers for the back-office API

PURPOSE:
  Implements the REST endpoints for balance entities, standalone
  transactions, ticket/service bookings and the company ledger. Handlers
  decode DTOs, convert money to decimals, call the lifecycle managers and
  map domain errors to HTTP status codes.

ERROR MAPPING:
  not found            -> 404
  duplicate ref number -> 409
  validation/funds     -> 400
  anything else        -> 500 (body says "internal error", detail is logged)

CONVENTIONS:
  - The acting user comes from the X-Actor header, defaulting to "system".
  - Dates in request bodies and query params are "2006-01-02".
  - List endpoints accept ?from=&to=; bookings default to the last 7 days,
    transactions to all time.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: route table
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/booking"
	"github.com/warp/agency-ledger/engine"
	"github.com/warp/agency-ledger/transaction"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	Store        engine.Store
	Transactions *transaction.Manager
	Bookings     *booking.Manager
}

// NewHandler wires the lifecycle managers over store.
func NewHandler(store engine.Store) *Handler {
	return &Handler{
		Store:        store,
		Transactions: transaction.NewManager(store),
		Bookings:     booking.NewManager(store),
	}
}

// =============================================================================
// PLUMBING
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("api: encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrDuplicateRefNo):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case engine.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("api: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "system"
}

const dateLayout = "2006-01-02"

// parseDate accepts "2006-01-02", defaulting empty to today (UTC).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, s)
}

// dateRange reads ?from=&to=. Missing ends fall back to the given defaults.
func dateRange(r *http.Request, defFrom, defTo time.Time) (time.Time, time.Time, error) {
	from, to := defFrom, defTo
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return from, to, err
		}
		// Inclusive of the whole end day.
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}

func lastWeek() (time.Time, time.Time) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -7), now
}

func allTime() (time.Time, time.Time) {
	return time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// =============================================================================
// ENTITIES
// =============================================================================

func (h *Handler) ListEntities(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := []EntityDTO{}
		switch kind {
		case engine.KindCustomer:
			customers, err := h.Store.ListCustomers(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			for _, c := range customers {
				out = append(out, customerDTO(c))
			}
		case engine.KindAgent:
			agents, err := h.Store.ListAgents(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			for _, a := range agents {
				out = append(out, agentDTO(a))
			}
		case engine.KindPartner:
			partners, err := h.Store.ListPartners(r.Context())
			if err != nil {
				writeError(w, r, err)
				return
			}
			for _, p := range partners {
				out = append(out, partnerDTO(p))
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) CreateEntity(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EntityRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Name == "" {
			writeError(w, r, &engine.MissingFieldError{Field: "name"})
			return
		}

		info := engine.EntityInfo{
			ID:      uuid.NewString(),
			Name:    req.Name,
			Contact: req.Contact,
			Email:   req.Email,
			Active:  true,
		}
		if req.Active != nil {
			info.Active = *req.Active
		}

		wallet := decimal.Zero
		if req.WalletBalance != nil {
			wallet = dec(*req.WalletBalance)
		}
		limit := decimal.Zero
		if req.CreditLimit != nil {
			limit = dec(*req.CreditLimit)
		}

		var acct engine.Account
		var out EntityDTO
		switch kind {
		case engine.KindCustomer:
			c := engine.NewCustomer(info, wallet, limit)
			acct, out = c, customerDTO(c)
		case engine.KindAgent:
			a := engine.NewAgent(info, wallet, limit)
			acct, out = a, agentDTO(a)
		case engine.KindPartner:
			allowNeg := req.AllowNegativeWallet != nil && *req.AllowNegativeWallet
			if wallet.IsNegative() && !allowNeg {
				writeError(w, r, engine.ErrInvalidAmount)
				return
			}
			p := engine.NewPartner(info, wallet, allowNeg)
			acct, out = p, partnerDTO(p)
		}

		if err := h.Store.SaveAccount(r.Context(), acct); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

// UpdateEntity patches the provided fields only; absent fields keep their
// current values.
func (h *Handler) UpdateEntity(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EntityRequest
		if !decode(w, r, &req) {
			return
		}

		ref := engine.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}
		var out EntityDTO
		err := h.Store.WithTx(r.Context(), func(tx engine.Tx) error {
			acct, err := tx.GetAccount(r.Context(), ref)
			if err != nil {
				return err
			}

			switch a := acct.(type) {
			case *engine.Customer:
				patchInfo(&a.EntityInfo, req)
				if req.WalletBalance != nil {
					a.WalletBalance = dec(*req.WalletBalance)
				}
				if req.CreditLimit != nil {
					a.CreditLimit = dec(*req.CreditLimit)
				}
				out = customerDTO(a)
			case *engine.Agent:
				patchInfo(&a.EntityInfo, req)
				if req.WalletBalance != nil {
					a.WalletBalance = dec(*req.WalletBalance)
				}
				if req.CreditLimit != nil {
					// Changing the limit moves the headroom, not the
					// consumed part.
					deficit := a.CreditDeficit()
					a.CreditLimit = dec(*req.CreditLimit)
					a.CreditBalance = a.CreditLimit.Sub(deficit)
				}
				out = agentDTO(a)
			case *engine.Partner:
				patchInfo(&a.EntityInfo, req)
				if req.AllowNegativeWallet != nil {
					a.AllowNegativeWallet = *req.AllowNegativeWallet
				}
				if req.WalletBalance != nil {
					wallet := dec(*req.WalletBalance)
					if wallet.IsNegative() && !a.AllowNegativeWallet {
						return engine.ErrInvalidAmount
					}
					a.WalletBalance = wallet
				}
				out = partnerDTO(a)
			}
			return tx.SaveAccount(r.Context(), acct)
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func patchInfo(info *engine.EntityInfo, req EntityRequest) {
	if req.Name != "" {
		info.Name = req.Name
	}
	if req.Contact != "" {
		info.Contact = req.Contact
	}
	if req.Email != "" {
		info.Email = req.Email
	}
	if req.Active != nil {
		info.Active = *req.Active
	}
}

func (h *Handler) DeleteEntity(kind engine.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := engine.EntityRef{Kind: kind, ID: chi.URLParam(r, "id")}
		if err := h.Store.DeleteAccount(r.Context(), ref); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func transactionKind(r *http.Request) (engine.TransactionKind, error) {
	kind := engine.TransactionKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		return "", &engine.MissingFieldError{Field: "transaction_type"}
	}
	return kind, nil
}

func transactionInput(kind engine.TransactionKind, req TransactionRequest) (transaction.Input, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return transaction.Input{}, &engine.MissingFieldError{Field: "date"}
	}
	return transaction.Input{
		Kind:        kind,
		EntityKind:  engine.Kind(req.EntityType),
		EntityID:    req.EntityID,
		PayType:     engine.PayType(req.PayType),
		Mode:        engine.Mode(req.Mode),
		Amount:      dec(req.Amount),
		Date:        date,
		Description: req.Description,
		Particular:  req.Particular,

		RefundDirection:   engine.RefundDirection(req.RefundDirection),
		DeductFromAccount: req.DeductFromAccount,
		CreditToAccount:   req.CreditToAccount,
		From:              engine.EntityRef{Kind: engine.Kind(req.FromEntityType), ID: req.FromEntityID},
		To:                engine.EntityRef{Kind: engine.Kind(req.ToEntityType), ID: req.ToEntityID},
		ModeForFrom:       engine.Mode(req.ModeForFrom),
		ModeForTo:         engine.Mode(req.ModeForTo),
	}, nil
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	kind, err := transactionKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defFrom, defTo := allTime()
	from, to, err := dateRange(r, defFrom, defTo)
	if err != nil {
		writeError(w, r, &engine.MissingFieldError{Field: "from/to"})
		return
	}

	records, err := h.Transactions.List(r.Context(), kind, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]TransactionDTO, 0, len(records))
	for i := range records {
		out = append(out, transactionDTO(&records[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	kind, err := transactionKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := transactionInput(kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Transactions.Create(r.Context(), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(t))
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.Transactions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionDTO(t))
}

func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	kind, err := transactionKind(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req TransactionRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := transactionInput(kind, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Transactions.Update(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionDTO(t))
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Transactions.Delete(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// TICKETS
// =============================================================================

func ticketInput(req TicketRequest) (booking.TicketInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return booking.TicketInput{}, &engine.MissingFieldError{Field: "date"}
	}
	return booking.TicketInput{
		CustomerID:     req.CustomerID,
		AgentID:        req.AgentID,
		Particular:     req.Particular,
		TravelLocation: req.TravelLocation,
		Passenger:      req.Passenger,
		Date:           date,

		CustomerCharge:      dec(req.CustomerCharge),
		AgentPaid:           dec(req.AgentPaid),
		CustomerPaymentMode: engine.Mode(req.CustomerPaymentMode),
		AgentPaymentMode:    engine.Mode(req.AgentPaymentMode),
	}, nil
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	defFrom, defTo := lastWeek()
	from, to, err := dateRange(r, defFrom, defTo)
	if err != nil {
		writeError(w, r, &engine.MissingFieldError{Field: "from/to"})
		return
	}
	status := engine.Status(r.URL.Query().Get("status"))

	tickets, err := h.Bookings.ListTickets(r.Context(), status, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]TicketDTO, 0, len(tickets))
	for i := range tickets {
		out = append(out, ticketDTO(&tickets[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) BookTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := ticketInput(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Bookings.BookTicket(r.Context(), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketDTO(t))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Bookings.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketDTO(t))
}

func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !decode(w, r, &req) {
		return
	}
	base, err := ticketInput(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := booking.TicketUpdate{
		TicketInput:          base,
		CustomerRefundAmount: dec(req.CustomerRefundAmount),
		CustomerRefundMode:   engine.Mode(req.CustomerRefundMode),
		AgentRecoveryAmount:  dec(req.AgentRecoveryAmount),
		AgentRecoveryMode:    engine.Mode(req.AgentRecoveryMode),
	}

	t, err := h.Bookings.UpdateTicket(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketDTO(t))
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}
	in := booking.CancelInput{
		CustomerRefundAmount: dec(req.CustomerRefundAmount),
		CustomerRefundMode:   engine.Mode(req.CustomerRefundMode),
		AgentRecoveryAmount:  dec(req.AgentRecoveryAmount),
		AgentRecoveryMode:    engine.Mode(req.AgentRecoveryMode),
	}

	t, err := h.Bookings.CancelTicket(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketDTO(t))
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.Bookings.DeleteTicket(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SERVICES
// =============================================================================

func serviceInput(req ServiceRequest) (booking.ServiceInput, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return booking.ServiceInput{}, &engine.MissingFieldError{Field: "date"}
	}
	return booking.ServiceInput{
		CustomerID:          req.CustomerID,
		Particular:          req.Particular,
		Date:                date,
		CustomerCharge:      dec(req.CustomerCharge),
		CustomerPaymentMode: engine.Mode(req.CustomerPaymentMode),
	}, nil
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	defFrom, defTo := lastWeek()
	from, to, err := dateRange(r, defFrom, defTo)
	if err != nil {
		writeError(w, r, &engine.MissingFieldError{Field: "from/to"})
		return
	}
	status := engine.Status(r.URL.Query().Get("status"))

	services, err := h.Bookings.ListServices(r.Context(), status, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ServiceDTO, 0, len(services))
	for i := range services {
		out = append(out, serviceDTO(&services[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) BookService(w http.ResponseWriter, r *http.Request) {
	var req ServiceRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := serviceInput(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := h.Bookings.BookService(r.Context(), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, serviceDTO(s))
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	s, err := h.Bookings.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceDTO(s))
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req ServiceRequest
	if !decode(w, r, &req) {
		return
	}
	base, err := serviceInput(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := booking.ServiceUpdate{
		ServiceInput:         base,
		CustomerRefundAmount: dec(req.CustomerRefundAmount),
		CustomerRefundMode:   engine.Mode(req.CustomerRefundMode),
	}

	s, err := h.Bookings.UpdateService(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceDTO(s))
}

func (h *Handler) CancelService(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decode(w, r, &req) {
		return
	}
	in := booking.ServiceCancelInput{
		CustomerRefundAmount: dec(req.CustomerRefundAmount),
		CustomerRefundMode:   engine.Mode(req.CustomerRefundMode),
	}

	s, err := h.Bookings.CancelService(r.Context(), chi.URLParam(r, "id"), in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceDTO(s))
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	if err := h.Bookings.DeleteService(r.Context(), chi.URLParam(r, "id"), actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// COMPANY LEDGER
// =============================================================================

func companyMode(r *http.Request) (engine.Mode, error) {
	mode := engine.Mode(chi.URLParam(r, "mode"))
	if !mode.CompanyAccount() {
		return "", engine.ErrInvalidMode
	}
	return mode, nil
}

func (h *Handler) CompanyBalance(w http.ResponseWriter, r *http.Request) {
	mode, err := companyMode(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := engine.NewCompanyLedger(h.Store).Balance(r.Context(), mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Mode: string(mode), Balance: f(balance)})
}

func (h *Handler) CompanyLedger(w http.ResponseWriter, r *http.Request) {
	mode, err := companyMode(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defFrom, defTo := allTime()
	from, to, err := dateRange(r, defFrom, defTo)
	if err != nil {
		writeError(w, r, &engine.MissingFieldError{Field: "from/to"})
		return
	}

	entries, err := h.Store.LedgerEntries(r.Context(), mode, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]CompanyEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, companyEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}
