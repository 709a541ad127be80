/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model from the external contract. Money crosses the API
  boundary as JSON numbers and is converted to decimal.Decimal at the edge;
  nothing past the handlers touches float64.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: conversion between DTOs and domain records
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

// =============================================================================
// ENTITIES
// =============================================================================

// EntityRequest creates or patches a balance entity. Pointer fields are
// "absent means keep current" on update.
type EntityRequest struct {
	Name                string   `json:"name"`
	Contact             string   `json:"contact"`
	Email               string   `json:"email"`
	Active              *bool    `json:"active,omitempty"`
	WalletBalance       *float64 `json:"wallet_balance,omitempty"`
	CreditLimit         *float64 `json:"credit_limit,omitempty"`
	AllowNegativeWallet *bool    `json:"allow_negative_wallet,omitempty"`
}

// EntityDTO is the uniform entity response. Credit fields are omitted for
// partners.
type EntityDTO struct {
	ID                  string   `json:"id"`
	Kind                string   `json:"kind"`
	Name                string   `json:"name"`
	Contact             string   `json:"contact,omitempty"`
	Email               string   `json:"email,omitempty"`
	Active              bool     `json:"active"`
	WalletBalance       float64  `json:"wallet_balance"`
	CreditLimit         *float64 `json:"credit_limit,omitempty"`
	CreditUsed          *float64 `json:"credit_used,omitempty"`
	CreditAvailable     *float64 `json:"credit_available,omitempty"`
	AllowNegativeWallet *bool    `json:"allow_negative_wallet,omitempty"`
}

func customerDTO(c *engine.Customer) EntityDTO {
	limit := f(c.CreditLimit)
	used := f(c.CreditUsed)
	avail := f(c.CreditAvailable())
	return EntityDTO{
		ID: c.ID, Kind: string(engine.KindCustomer),
		Name: c.Name, Contact: c.Contact, Email: c.Email, Active: c.Active,
		WalletBalance: f(c.WalletBalance),
		CreditLimit:   &limit, CreditUsed: &used, CreditAvailable: &avail,
	}
}

func agentDTO(a *engine.Agent) EntityDTO {
	limit := f(a.CreditLimit)
	used := f(a.CreditDeficit())
	avail := f(a.CreditBalance)
	return EntityDTO{
		ID: a.ID, Kind: string(engine.KindAgent),
		Name: a.Name, Contact: a.Contact, Email: a.Email, Active: a.Active,
		WalletBalance: f(a.WalletBalance),
		CreditLimit:   &limit, CreditUsed: &used, CreditAvailable: &avail,
	}
}

func partnerDTO(p *engine.Partner) EntityDTO {
	neg := p.AllowNegativeWallet
	return EntityDTO{
		ID: p.ID, Kind: string(engine.KindPartner),
		Name: p.Name, Contact: p.Contact, Email: p.Email, Active: p.Active,
		WalletBalance:       f(p.WalletBalance),
		AllowNegativeWallet: &neg,
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TransactionRequest creates or updates a standalone transaction.
type TransactionRequest struct {
	EntityType  string  `json:"entity_type"`
	EntityID    string  `json:"entity_id"`
	PayType     string  `json:"pay_type"`
	Mode        string  `json:"mode"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Particular  string  `json:"particular"`

	RefundDirection   string `json:"refund_direction,omitempty"`
	DeductFromAccount bool   `json:"deduct_from_account,omitempty"`
	CreditToAccount   bool   `json:"credit_to_account,omitempty"`
	FromEntityType    string `json:"from_entity_type,omitempty"`
	FromEntityID      string `json:"from_entity_id,omitempty"`
	ToEntityType      string `json:"to_entity_type,omitempty"`
	ToEntityID        string `json:"to_entity_id,omitempty"`
	ModeForFrom       string `json:"mode_for_from,omitempty"`
	ModeForTo         string `json:"mode_for_to,omitempty"`
}

// TransactionDTO is a transaction in API responses.
type TransactionDTO struct {
	ID              string  `json:"id"`
	RefNo           string  `json:"ref_no"`
	TransactionType string  `json:"transaction_type"`
	EntityType      string  `json:"entity_type,omitempty"`
	EntityID        string  `json:"entity_id,omitempty"`
	PayType         string  `json:"pay_type,omitempty"`
	Mode            string  `json:"mode,omitempty"`
	Amount          float64 `json:"amount"`
	Date            string  `json:"date"`
	Description     string  `json:"description,omitempty"`
	Particular      string  `json:"particular,omitempty"`

	RefundDirection   string `json:"refund_direction,omitempty"`
	DeductFromAccount bool   `json:"deduct_from_account,omitempty"`
	CreditToAccount   bool   `json:"credit_to_account,omitempty"`
	FromEntityType    string `json:"from_entity_type,omitempty"`
	FromEntityID      string `json:"from_entity_id,omitempty"`
	ToEntityType      string `json:"to_entity_type,omitempty"`
	ToEntityID        string `json:"to_entity_id,omitempty"`
	ModeForFrom       string `json:"mode_for_from,omitempty"`
	ModeForTo         string `json:"mode_for_to,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

func transactionDTO(t *engine.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              t.ID,
		RefNo:           t.RefNo,
		TransactionType: string(t.Kind),
		EntityType:      string(t.EntityKind),
		EntityID:        t.EntityID,
		PayType:         string(t.PayType),
		Mode:            string(t.Mode),
		Amount:          f(t.Amount),
		Date:            t.Date.Format("2006-01-02"),
		Description:     t.Description,
		Particular:      t.Particular,

		RefundDirection:   string(t.RefundDirection),
		DeductFromAccount: t.DeductFromAccount,
		CreditToAccount:   t.CreditToAccount,
		FromEntityType:    string(t.From.Kind),
		FromEntityID:      t.From.ID,
		ToEntityType:      string(t.To.Kind),
		ToEntityID:        t.To.ID,
		ModeForFrom:       string(t.ModeForFrom),
		ModeForTo:         string(t.ModeForTo),

		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
		UpdatedBy: t.UpdatedBy,
	}
}

// =============================================================================
// BOOKINGS
// =============================================================================

// TicketRequest books or updates a ticket.
type TicketRequest struct {
	CustomerID     string  `json:"customer_id"`
	AgentID        string  `json:"agent_id,omitempty"`
	Particular     string  `json:"particular,omitempty"`
	TravelLocation string  `json:"travel_location,omitempty"`
	Passenger      string  `json:"passenger,omitempty"`
	Date           string  `json:"date,omitempty"`
	CustomerCharge float64 `json:"customer_charge"`
	AgentPaid      float64 `json:"agent_paid,omitempty"`

	CustomerPaymentMode string `json:"customer_payment_mode"`
	AgentPaymentMode    string `json:"agent_payment_mode,omitempty"`

	// Only read when the ticket is cancelled.
	CustomerRefundAmount float64 `json:"customer_refund_amount,omitempty"`
	CustomerRefundMode   string  `json:"customer_refund_mode,omitempty"`
	AgentRecoveryAmount  float64 `json:"agent_recovery_amount,omitempty"`
	AgentRecoveryMode    string  `json:"agent_recovery_mode,omitempty"`
}

// CancelRequest carries the cancellation-time refund/recovery.
type CancelRequest struct {
	CustomerRefundAmount float64 `json:"customer_refund_amount,omitempty"`
	CustomerRefundMode   string  `json:"customer_refund_mode,omitempty"`
	AgentRecoveryAmount  float64 `json:"agent_recovery_amount,omitempty"`
	AgentRecoveryMode    string  `json:"agent_recovery_mode,omitempty"`
}

// TicketDTO is a ticket in API responses.
type TicketDTO struct {
	ID             string  `json:"id"`
	RefNo          string  `json:"ref_no"`
	CustomerID     string  `json:"customer_id"`
	AgentID        string  `json:"agent_id,omitempty"`
	Particular     string  `json:"particular,omitempty"`
	TravelLocation string  `json:"travel_location,omitempty"`
	Passenger      string  `json:"passenger,omitempty"`
	Status         string  `json:"status"`
	Date           string  `json:"date"`
	CustomerCharge float64 `json:"customer_charge"`
	AgentPaid      float64 `json:"agent_paid"`
	Profit         float64 `json:"profit"`

	CustomerPaymentMode string `json:"customer_payment_mode"`
	AgentPaymentMode    string `json:"agent_payment_mode,omitempty"`

	CustomerRefundAmount float64 `json:"customer_refund_amount"`
	CustomerRefundMode   string  `json:"customer_refund_mode,omitempty"`
	AgentRecoveryAmount  float64 `json:"agent_recovery_amount"`
	AgentRecoveryMode    string  `json:"agent_recovery_mode,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

func ticketDTO(t *engine.Ticket) TicketDTO {
	return TicketDTO{
		ID:             t.ID,
		RefNo:          t.RefNo,
		CustomerID:     t.CustomerID,
		AgentID:        t.AgentID,
		Particular:     t.Particular,
		TravelLocation: t.TravelLocation,
		Passenger:      t.Passenger,
		Status:         string(t.Status),
		Date:           t.Date.Format("2006-01-02"),
		CustomerCharge: f(t.CustomerCharge),
		AgentPaid:      f(t.AgentPaid),
		Profit:         f(t.Profit),

		CustomerPaymentMode: string(t.CustomerPaymentMode),
		AgentPaymentMode:    string(t.AgentPaymentMode),

		CustomerRefundAmount: f(t.CustomerRefundAmount),
		CustomerRefundMode:   string(t.CustomerRefundMode),
		AgentRecoveryAmount:  f(t.AgentRecoveryAmount),
		AgentRecoveryMode:    string(t.AgentRecoveryMode),

		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
		UpdatedBy: t.UpdatedBy,
	}
}

// ServiceRequest books or updates a service.
type ServiceRequest struct {
	CustomerID          string  `json:"customer_id"`
	Particular          string  `json:"particular,omitempty"`
	Date                string  `json:"date,omitempty"`
	CustomerCharge      float64 `json:"customer_charge"`
	CustomerPaymentMode string  `json:"customer_payment_mode"`

	CustomerRefundAmount float64 `json:"customer_refund_amount,omitempty"`
	CustomerRefundMode   string  `json:"customer_refund_mode,omitempty"`
}

// ServiceDTO is a service in API responses.
type ServiceDTO struct {
	ID                  string  `json:"id"`
	RefNo               string  `json:"ref_no"`
	CustomerID          string  `json:"customer_id"`
	Particular          string  `json:"particular,omitempty"`
	Status              string  `json:"status"`
	Date                string  `json:"date"`
	CustomerCharge      float64 `json:"customer_charge"`
	CustomerPaymentMode string  `json:"customer_payment_mode"`

	CustomerRefundAmount float64 `json:"customer_refund_amount"`
	CustomerRefundMode   string  `json:"customer_refund_mode,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

func serviceDTO(s *engine.Service) ServiceDTO {
	return ServiceDTO{
		ID:                  s.ID,
		RefNo:               s.RefNo,
		CustomerID:          s.CustomerID,
		Particular:          s.Particular,
		Status:              string(s.Status),
		Date:                s.Date.Format("2006-01-02"),
		CustomerCharge:      f(s.CustomerCharge),
		CustomerPaymentMode: string(s.CustomerPaymentMode),

		CustomerRefundAmount: f(s.CustomerRefundAmount),
		CustomerRefundMode:   string(s.CustomerRefundMode),

		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
		UpdatedBy: s.UpdatedBy,
	}
}

// =============================================================================
// COMPANY LEDGER
// =============================================================================

// CompanyEntryDTO is one ledger chain row.
type CompanyEntryDTO struct {
	Seq             int64   `json:"seq"`
	Mode            string  `json:"mode"`
	CreditedAmount  float64 `json:"credited_amount"`
	Balance         float64 `json:"balance"`
	RefNo           string  `json:"ref_no,omitempty"`
	TransactionType string  `json:"transaction_type,omitempty"`
	Action          string  `json:"action,omitempty"`
	UpdatedBy       string  `json:"updated_by,omitempty"`
	At              string  `json:"at"`
}

func companyEntryDTO(e engine.CompanyEntry) CompanyEntryDTO {
	return CompanyEntryDTO{
		Seq:             e.Seq,
		Mode:            string(e.Mode),
		CreditedAmount:  f(e.CreditedAmount),
		Balance:         f(e.Balance),
		RefNo:           e.RefNo,
		TransactionType: e.TransactionType,
		Action:          string(e.Action),
		UpdatedBy:       e.UpdatedBy,
		At:              e.At.Format(time.RFC3339),
	}
}

// BalanceDTO is the current running balance for a company account mode.
type BalanceDTO struct {
	Mode    string  `json:"mode"`
	Balance float64 `json:"balance"`
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
