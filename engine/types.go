/*
Package engine provides the core balance-reconciliation model for the
travel-agency back office.

PURPOSE:
  This package contains the domain-agnostic building blocks shared by the
  transaction and booking lifecycle managers: the balance entities
  (customer, agent, partner), the company cash/online ledger, the effect
  recorder used to reverse applied mutations exactly, reference numbers,
  and the store/unit-of-work interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind/Mode/Direction/Action: closed vocabularies used across the system
  - Customer/Agent/Partner: balance entities mutated only by the managers
  - Transaction: a standalone ledger transaction (payment, receipt, refund,
    wallet transfer) together with its recorded effects
  - Ticket/Service: booking records with charge and refund fields
  - CompanyEntry: one immutable row of the company running-balance ledger
  - Effects/BookingEffects: closed records of which side effects fired

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all money, never float64
  2. Reversibility: every applied effect is recorded so it can be undone
     without re-deriving it from current field values
  3. Type Safety: closed structs instead of string-keyed flag maps

SEE ALSO:
  - balance.go: wallet/credit waterfall per entity kind
  - ledger.go: company ledger append-and-chain
  - effects.go: the reversal protocol
  - store.go: persistence and unit-of-work interfaces
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VOCABULARIES
// =============================================================================

// Kind identifies which balance entity a reference points at.
// KindOthers marks transactions with no entity side at all.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindAgent    Kind = "agent"
	KindPartner  Kind = "partner"
	KindOthers   Kind = "others"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCustomer, KindAgent, KindPartner, KindOthers:
		return true
	}
	return false
}

// Mode is a payment mode. Only cash and online ever reach the company
// ledger; wallet and credit are entity-local, service_availed is a
// non-monetary settlement used by outgoing refunds.
type Mode string

const (
	ModeCash           Mode = "cash"
	ModeOnline         Mode = "online"
	ModeWallet         Mode = "wallet"
	ModeCredit         Mode = "credit"
	ModeServiceAvailed Mode = "service_availed"
)

// CompanyAccount reports whether the mode maps to a company ledger account.
func (m Mode) CompanyAccount() bool { return m == ModeCash || m == ModeOnline }

// Direction of money relative to the company account.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Opposite returns the compensating direction.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

// Action records why a company ledger row exists.
type Action string

const (
	ActionBook       Action = "book"
	ActionCancel     Action = "cancel"
	ActionReversal   Action = "reversal"
	ActionAdjustment Action = "adjustment"
	ActionDelete     Action = "delete"
)

// TransactionKind is the standalone transaction flavor.
type TransactionKind string

const (
	TxPayment        TransactionKind = "payment"
	TxReceipt        TransactionKind = "receipt"
	TxRefund         TransactionKind = "refund"
	TxWalletTransfer TransactionKind = "wallet_transfer"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TxPayment, TxReceipt, TxRefund, TxWalletTransfer:
		return true
	}
	return false
}

// PayType qualifies payments and receipts.
type PayType string

const (
	PayCashDeposit    PayType = "cash_deposit"
	PayCashWithdrawal PayType = "cash_withdrawal"
	PayOtherExpense   PayType = "other_expense"
	PayOtherReceipt   PayType = "other_receipt"
	PayRefund         PayType = "refund"
	PayWalletTransfer PayType = "wallet_transfer"
)

// RefundDirection: incoming means the entity returns money to the company,
// outgoing means the company pays the entity.
type RefundDirection string

const (
	RefundIncoming RefundDirection = "incoming"
	RefundOutgoing RefundDirection = "outgoing"
)

// Status of a booking record. One-way: booked -> cancelled.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// =============================================================================
// ENTITY REFERENCES AND BALANCE ENTITIES
// =============================================================================

// EntityRef points at one balance entity. The zero value is "no entity".
type EntityRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// IsZero reports whether the reference points at nothing. KindOthers
// references are also "nothing" for balance purposes.
func (r EntityRef) IsZero() bool { return r.ID == "" || r.Kind == "" || r.Kind == KindOthers }

// EntityInfo carries the descriptive fields shared by all balance entities.
// These are written by entity CRUD; the engine only reads them.
type EntityInfo struct {
	ID      string
	Name    string
	Contact string
	Email   string
	Active  bool
}

// Customer tracks credit as used-against-limit:
// available credit = CreditLimit - CreditUsed.
type Customer struct {
	EntityInfo
	WalletBalance decimal.Decimal
	CreditLimit   decimal.Decimal
	CreditUsed    decimal.Decimal
}

// Agent tracks credit as remaining-available-balance:
// available credit = CreditBalance, deficit = CreditLimit - CreditBalance.
type Agent struct {
	EntityInfo
	WalletBalance decimal.Decimal
	CreditLimit   decimal.Decimal
	CreditBalance decimal.Decimal
}

// Partner has no credit line; the wallet is the only store of value and may
// go negative only when AllowNegativeWallet is set.
type Partner struct {
	EntityInfo
	WalletBalance       decimal.Decimal
	AllowNegativeWallet bool
}

// =============================================================================
// EFFECT RECORDS
// =============================================================================

// Effects is the closed record of which side effects a transaction actually
// applied. Reversal reads these flags and undoes exactly what they record;
// it never re-derives "what should have happened" from current field values.
type Effects struct {
	// CompanyAdjusted is set when a company ledger row was appended, along
	// with the mode and direction it was appended under.
	CompanyAdjusted  bool      `json:"company_adjusted,omitempty"`
	CompanyMode      Mode      `json:"company_mode,omitempty"`
	CompanyDirection Direction `json:"company_direction,omitempty"`

	// Debited/Credited identify the entities whose balances were moved, so
	// reversal can locate them even after the transaction's visible entity
	// fields were overwritten. For wallet transfers Debited is the source
	// and Credited the destination.
	Debited  *EntityRef `json:"debited,omitempty"`
	Credited *EntityRef `json:"credited,omitempty"`

	// Amount the effects were applied with.
	Amount decimal.Decimal `json:"amount"`
}

// Empty reports whether nothing was applied (or everything was reversed).
func (e Effects) Empty() bool {
	return !e.CompanyAdjusted && e.Debited == nil && e.Credited == nil
}

// BookingEffects records the payment side effects of a ticket or service
// while it is booked. Cancellation consumes (reverses) them; the
// cancellation-time refund state is carried by the booking's own
// refund/recovery fields instead.
type BookingEffects struct {
	CustomerDebited         bool            `json:"customer_debited,omitempty"`
	CustomerCompanyAdjusted bool            `json:"customer_company_adjusted,omitempty"`
	CustomerCompanyMode     Mode            `json:"customer_company_mode,omitempty"`
	CustomerAmount          decimal.Decimal `json:"customer_amount"`

	AgentDebited         bool            `json:"agent_debited,omitempty"`
	AgentCompanyAdjusted bool            `json:"agent_company_adjusted,omitempty"`
	AgentCompanyMode     Mode            `json:"agent_company_mode,omitempty"`
	AgentAmount          decimal.Decimal `json:"agent_amount"`
}

// Empty reports whether no booking effects are outstanding.
func (e BookingEffects) Empty() bool {
	return !e.CustomerDebited && !e.CustomerCompanyAdjusted &&
		!e.AgentDebited && !e.AgentCompanyAdjusted
}

// =============================================================================
// RECORDS
// =============================================================================

// Transaction is one standalone ledger transaction.
//
// EntityKind/EntityID are the visible "who" of the transaction; for refunds
// they are derived from the direction and the from/to legs. The Effects
// record, not these fields, drives reversal.
type Transaction struct {
	ID    string
	RefNo string
	Kind  TransactionKind

	EntityKind Kind
	EntityID   string
	PayType    PayType
	Mode       Mode
	Amount     decimal.Decimal

	Date        time.Time
	Description string
	Particular  string

	// Refund and wallet-transfer legs.
	RefundDirection   RefundDirection
	DeductFromAccount bool
	CreditToAccount   bool
	From              EntityRef
	To                EntityRef
	ModeForFrom       Mode
	ModeForTo         Mode

	Effects Effects

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

// Ticket is a booking with a customer charge and an optional agent payment.
// Profit is stored at write time (customer_charge - agent_paid) and never
// recomputed on read.
type Ticket struct {
	ID    string
	RefNo string

	CustomerID     string
	AgentID        string
	Particular     string
	TravelLocation string
	Passenger      string

	Status Status
	Date   time.Time

	CustomerCharge      decimal.Decimal
	AgentPaid           decimal.Decimal
	Profit              decimal.Decimal
	CustomerPaymentMode Mode
	AgentPaymentMode    Mode

	// Meaningful only once cancelled.
	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   Mode
	AgentRecoveryAmount  decimal.Decimal
	AgentRecoveryMode    Mode

	Effects BookingEffects

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

// Service is the customer-only booking record.
type Service struct {
	ID    string
	RefNo string

	CustomerID string
	Particular string

	Status Status
	Date   time.Time

	CustomerCharge      decimal.Decimal
	CustomerPaymentMode Mode

	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   Mode

	Effects BookingEffects

	CreatedAt time.Time
	UpdatedAt time.Time
	UpdatedBy string
}

// CompanyEntry is one immutable row of the company ledger for a mode.
//
// INVARIANT: for a fixed mode, rows ordered by Seq form an additive chain:
// Balance[i] = Balance[i-1] + CreditedAmount[i].
type CompanyEntry struct {
	Seq             int64
	Mode            Mode
	CreditedAmount  decimal.Decimal // signed delta
	Balance         decimal.Decimal // running total for Mode
	RefNo           string
	TransactionType string
	Action          Action
	UpdatedBy       string
	At              time.Time
}
