/*
ledger.go - Company cash/online ledger, append-and-chain

PURPOSE:
  The company ledger is a pair of append-only running-balance chains, one
  per company account mode (cash, online). Every row stores both the signed
  delta and the resulting balance so that point-in-time balances are a
  single-row read and the chain itself is auditable:

    Balance[i] = Balance[i-1] + CreditedAmount[i]

  Wallet and credit movements never touch this ledger; they live on the
  entity rows.

CALL CONVENTION:
  Append is a strict no-op (nil, nil) for modes that do not map to a
  company account. That keeps caller code branch-free: the managers call
  Append unconditionally with whatever mode the transaction carries, and
  only cash/online produce a row. An EMPTY mode is different - it means the
  caller reached a path that required a mode and did not have one, and is
  rejected with ErrMissingMode.

CONCURRENCY:
  "Read last balance, append next row" must be serialized per mode. The
  ledger itself does not lock; it relies on running inside the store's
  unit of work (BEGIN IMMEDIATE in sqlite, global snapshot in memory).

SEE ALSO:
  - store.go: CompanyStore interface this drives
  - effects.go: compensating appends during reversal
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPANY LEDGER
// =============================================================================

// CompanyAppend describes one company ledger adjustment.
type CompanyAppend struct {
	Mode            Mode
	Amount          decimal.Decimal // positive; Direction carries the sign
	Direction       Direction
	RefNo           string
	TransactionType string
	Action          Action
	Actor           string
}

// CompanyLedger appends adjustments to the per-mode balance chains.
type CompanyLedger struct {
	store CompanyStore
}

// NewCompanyLedger creates a ledger over the given store. The store calls
// must run inside the enclosing unit of work.
func NewCompanyLedger(store CompanyStore) *CompanyLedger {
	return &CompanyLedger{store: store}
}

// Append records one adjustment and returns the appended row.
//
// Returns ErrMissingMode for an empty mode, (nil, nil) for modes with no
// company account (wallet, credit, service_availed), and the new chained
// row otherwise.
func (l *CompanyLedger) Append(ctx context.Context, adj CompanyAppend) (*CompanyEntry, error) {
	if adj.Mode == "" {
		return nil, ErrMissingMode
	}
	if !adj.Mode.CompanyAccount() {
		return nil, nil
	}

	last, err := l.store.LastBalance(ctx, adj.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to read last %s balance: %w", adj.Mode, err)
	}

	delta := adj.Amount
	if adj.Direction == DirectionOut {
		delta = delta.Neg()
	}

	entry := CompanyEntry{
		Mode:            adj.Mode,
		CreditedAmount:  delta,
		Balance:         last.Add(delta),
		RefNo:           adj.RefNo,
		TransactionType: adj.TransactionType,
		Action:          adj.Action,
		UpdatedBy:       adj.Actor,
		At:              time.Now().UTC(),
	}
	if err := l.store.AppendEntry(ctx, &entry); err != nil {
		return nil, fmt.Errorf("failed to append %s ledger entry: %w", adj.Mode, err)
	}
	return &entry, nil
}

// Balance returns the current running balance for a company account mode.
func (l *CompanyLedger) Balance(ctx context.Context, mode Mode) (decimal.Decimal, error) {
	if !mode.CompanyAccount() {
		return decimal.Zero, ErrInvalidMode
	}
	return l.store.LastBalance(ctx, mode)
}
