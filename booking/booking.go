/*
Package booking implements the lifecycle manager for ticket and service
bookings.

PURPOSE:
  Bookings carry their own charge/refund fields instead of a generic
  transaction, but follow the same orchestration pattern: apply on book,
  reverse-then-reapply on financial update, reverse on delete. Each payment
  side (customer charge, agent payment) is processed symmetrically as its
  own effect with its own mode, so reversal can undo one side without
  touching the other.

STATE MACHINE:
  booked -> cancelled (one-way), and either state -> deleted.

CANCELLATION:
  Cancel always reverses the booking's full historical effect (company row
  or wallet/credit), then layers the caller's refund/recovery - if any - as
  a separate forward effect. Updating a cancelled booking applies only the
  delta between the old and new refund/recovery through the same adjustment
  path. Deleting a cancelled booking reverses the net that remains settled:
  charge minus refund (and agent_paid minus recovery), routed through the
  recorded refund/recovery mode.

SEE ALSO:
  - engine/effects.go: flag-driven reversal of booking-time effects
  - transaction/: the standalone-transaction counterpart of this package
*/
package booking

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

// Manager orchestrates ticket and service lifecycles over a store.
type Manager struct {
	store engine.Store
}

func NewManager(store engine.Store) *Manager {
	return &Manager{store: store}
}

// =============================================================================
// SHARED EFFECT HELPERS
// =============================================================================

// sideEffect is the outcome of applying one payment side.
type sideEffect struct {
	Debited         bool
	CompanyAdjusted bool
	CompanyMode     engine.Mode
}

// applySide settles one booking-time payment side. Wallet mode runs the
// waterfall deduction against the entity; cash/online appends a company row
// in dir (inflow for customer charges, outflow for agent payments).
func applySide(ctx context.Context, tx engine.Tx, ref engine.EntityRef, amount decimal.Decimal, mode engine.Mode, dir engine.Direction, refNo, txType, actor string, action engine.Action) (sideEffect, error) {
	var fx sideEffect
	switch {
	case mode == engine.ModeWallet:
		acct, err := tx.GetAccount(ctx, ref)
		if err != nil {
			return fx, err
		}
		if err := acct.Deduct(amount); err != nil {
			return fx, err
		}
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return fx, err
		}
		fx.Debited = true
	case mode.CompanyAccount():
		if _, err := engine.NewCompanyLedger(tx).Append(ctx, engine.CompanyAppend{
			Mode:            mode,
			Amount:          amount,
			Direction:       dir,
			RefNo:           refNo,
			TransactionType: txType,
			Action:          action,
			Actor:           actor,
		}); err != nil {
			return fx, err
		}
		fx.CompanyAdjusted = true
		fx.CompanyMode = mode
	default:
		return fx, engine.ErrInvalidMode
	}
	return fx, nil
}

// settleForward applies a cancellation-time refund or recovery as a fresh
// forward effect: wallet credits the entity, cash/online appends a company
// row in dir. Other modes settle nothing.
func settleForward(ctx context.Context, tx engine.Tx, ref engine.EntityRef, amount decimal.Decimal, mode engine.Mode, dir engine.Direction, refNo, txType, actor string) error {
	switch {
	case mode == engine.ModeWallet:
		acct, err := tx.GetAccount(ctx, ref)
		if err != nil {
			return err
		}
		acct.Revert(amount)
		return tx.SaveAccount(ctx, acct)
	case mode.CompanyAccount():
		_, err := engine.NewCompanyLedger(tx).Append(ctx, engine.CompanyAppend{
			Mode:            mode,
			Amount:          amount,
			Direction:       dir,
			RefNo:           refNo,
			TransactionType: txType,
			Action:          engine.ActionCancel,
			Actor:           actor,
		})
		return err
	}
	return nil
}

// adjustEntity moves a signed delta through an entity's wallet/credit:
// positive reverts (credit first), negative deducts (wallet first).
func adjustEntity(ctx context.Context, tx engine.Tx, ref engine.EntityRef, delta decimal.Decimal) error {
	acct, err := tx.GetAccount(ctx, ref)
	if err != nil {
		return err
	}
	if delta.IsPositive() {
		acct.Revert(delta)
	} else if err := acct.Deduct(delta.Neg()); err != nil {
		return err
	}
	return tx.SaveAccount(ctx, acct)
}

// appendCompanySigned appends a signed company delta under action, skipping
// modes with no company account.
func appendCompanySigned(ctx context.Context, tx engine.Tx, mode engine.Mode, delta decimal.Decimal, refNo, txType, actor string, action engine.Action) error {
	if !mode.CompanyAccount() || delta.IsZero() {
		return nil
	}
	dir := engine.DirectionIn
	if delta.IsNegative() {
		dir = engine.DirectionOut
		delta = delta.Neg()
	}
	_, err := engine.NewCompanyLedger(tx).Append(ctx, engine.CompanyAppend{
		Mode:            mode,
		Amount:          delta,
		Direction:       dir,
		RefNo:           refNo,
		TransactionType: txType,
		Action:          action,
		Actor:           actor,
	})
	return err
}

func bookingMode(m engine.Mode) bool {
	return m == engine.ModeWallet || m.CompanyAccount()
}

func defaultMode(m engine.Mode) engine.Mode {
	if m == "" {
		return engine.ModeCash
	}
	return m
}
