/*
store.go - Persistence and unit-of-work interfaces

PURPOSE:
  Defines the interface between the lifecycle managers and the database.
  Every financial operation runs inside a single unit of work: all its
  entity saves, record writes and ledger appends commit together or not at
  all.

KEY INTERFACES:
  AccountStore:     balance entities (customers, agents, partners)
  CompanyStore:     the append-only company ledger chains
  TransactionStore: standalone transaction records
  TicketStore/ServiceStore: booking records
  SequenceStore:    forward-only reference number allocator
  Tx:               all of the above, scoped to one unit of work
  Store:            Tx plus WithTx

UNIT OF WORK:
  WithTx(ctx, fn) runs fn against a Tx. If fn returns an error the whole
  unit rolls back; otherwise it commits. The sqlite implementation opens
  the transaction with BEGIN IMMEDIATE so concurrent units serialize and
  "read last balance then append" stays consistent. Store methods called
  outside WithTx are single-statement conveniences for read paths.

LEDGER CONTRACT:
  AppendEntry assigns the row's Seq and never updates or deletes existing
  rows. Corrections are compensating appends (see effects.go).

IMPLEMENTATIONS:
  - store/sqlite: production store
  - engine/store: in-memory store for tests
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

// AccountStore persists balance entities.
type AccountStore interface {
	// GetAccount loads one balance entity. Returns EntityNotFoundError if
	// the ref does not resolve (including zero/others refs).
	GetAccount(ctx context.Context, ref EntityRef) (Account, error)

	// SaveAccount inserts or replaces a balance entity.
	SaveAccount(ctx context.Context, acct Account) error

	// DeleteAccount removes a balance entity.
	DeleteAccount(ctx context.Context, ref EntityRef) error

	ListCustomers(ctx context.Context) ([]*Customer, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	ListPartners(ctx context.Context) ([]*Partner, error)
}

// CompanyStore persists the company ledger chains. Append-only.
type CompanyStore interface {
	// LastBalance returns the balance of the newest row for mode, or zero
	// when the chain is empty.
	LastBalance(ctx context.Context, mode Mode) (decimal.Decimal, error)

	// AppendEntry appends a row and assigns entry.Seq.
	AppendEntry(ctx context.Context, entry *CompanyEntry) error

	// LedgerEntries returns the rows for mode with At in [from, to],
	// ordered by Seq.
	LedgerEntries(ctx context.Context, mode Mode, from, to time.Time) ([]CompanyEntry, error)
}

// TransactionStore persists standalone transaction records.
type TransactionStore interface {
	// GetTransaction returns ErrNotFound when the id does not resolve.
	GetTransaction(ctx context.Context, id string) (*Transaction, error)

	// PutTransaction inserts or replaces a record. Returns
	// ErrDuplicateRefNo when an insert reuses a reference number.
	PutTransaction(ctx context.Context, t *Transaction) error

	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactions returns records of kind with Date in [from, to],
	// newest first.
	ListTransactions(ctx context.Context, kind TransactionKind, from, to time.Time) ([]Transaction, error)
}

// TicketStore persists ticket bookings.
type TicketStore interface {
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	PutTicket(ctx context.Context, t *Ticket) error
	DeleteTicket(ctx context.Context, id string) error

	// ListTickets filters by status ("" means all) and Date in [from, to].
	ListTickets(ctx context.Context, status Status, from, to time.Time) ([]Ticket, error)
}

// ServiceStore persists service bookings.
type ServiceStore interface {
	GetService(ctx context.Context, id string) (*Service, error)
	PutService(ctx context.Context, s *Service) error
	DeleteService(ctx context.Context, id string) error
	ListServices(ctx context.Context, status Status, from, to time.Time) ([]Service, error)
}

// SequenceStore allocates reference number sequences. Sequences only move
// forward; deleting the record that consumed a number never frees it.
type SequenceStore interface {
	// NextSeq returns the next sequence value for (prefix, year),
	// starting at 1.
	NextSeq(ctx context.Context, prefix string, year int) (int, error)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Tx is the full store surface scoped to one unit of work.
type Tx interface {
	AccountStore
	CompanyStore
	TransactionStore
	TicketStore
	ServiceStore
	SequenceStore
}

// Store is the root persistence handle. Direct Tx methods on the Store run
// as standalone statements; mutations that must be atomic go through WithTx.
type Store interface {
	Tx

	// WithTx executes fn within a unit of work. If fn returns an error the
	// unit rolls back, otherwise it commits.
	WithTx(ctx context.Context, fn func(Tx) error) error

	Close() error
}
