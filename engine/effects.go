/*
effects.go - The reversal protocol

PURPOSE:
  Reversal undoes exactly what the effect record says was applied. It never
  re-derives "what should have happened" from the record's current visible
  fields, because those fields may have been edited since the effects were
  applied. The only inputs are the recorded flags, refs and amounts.

PROTOCOL:
  For each set flag, apply the opposite mutation:
    Credited entity   -> deduct the recorded amount (wallet first)
    Debited entity    -> revert the recorded amount (credit first)
    Company adjusted  -> append a compensating row in the opposite direction

  Flags are cleared only after every reversal step succeeded. A failed step
  aborts the enclosing unit of work with the flags intact, so the record
  still knows what remains applied.

ORDERING:
  Credited entities are drained before debited entities are refilled. For a
  wallet transfer this reverses the legs in the opposite order they were
  applied, so a mid-flight failure never leaves both legs moved.
*/
package engine

import (
	"context"
	"fmt"
)

// =============================================================================
// TRANSACTION EFFECTS
// =============================================================================

// ReverseEffects undoes the recorded effects of a transaction inside tx and
// clears the flags. refNo and txType label the compensating company row.
func ReverseEffects(ctx context.Context, tx Tx, fx *Effects, refNo, txType, actor string, action Action) error {
	if fx.Credited != nil {
		acct, err := tx.GetAccount(ctx, *fx.Credited)
		if err != nil {
			return fmt.Errorf("failed to load credited entity: %w", err)
		}
		if err := acct.Deduct(fx.Amount); err != nil {
			return fmt.Errorf("failed to reverse credit: %w", err)
		}
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
	}

	if fx.Debited != nil {
		acct, err := tx.GetAccount(ctx, *fx.Debited)
		if err != nil {
			return fmt.Errorf("failed to load debited entity: %w", err)
		}
		acct.Revert(fx.Amount)
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
	}

	if fx.CompanyAdjusted {
		ledger := NewCompanyLedger(tx)
		if _, err := ledger.Append(ctx, CompanyAppend{
			Mode:            fx.CompanyMode,
			Amount:          fx.Amount,
			Direction:       fx.CompanyDirection.Opposite(),
			RefNo:           refNo,
			TransactionType: txType,
			Action:          action,
			Actor:           actor,
		}); err != nil {
			return err
		}
	}

	*fx = Effects{}
	return nil
}

// =============================================================================
// BOOKING EFFECTS
// =============================================================================

// ReverseBookingEffects undoes the recorded booking-time effects of a ticket
// or service. The entity refs come from the booking record; the amounts and
// modes come exclusively from the effect record.
func ReverseBookingEffects(ctx context.Context, tx Tx, fx *BookingEffects, customer, agent EntityRef, refNo, txType, actor string, action Action) error {
	ledger := NewCompanyLedger(tx)

	if fx.CustomerDebited {
		acct, err := tx.GetAccount(ctx, customer)
		if err != nil {
			return fmt.Errorf("failed to load customer: %w", err)
		}
		acct.Revert(fx.CustomerAmount)
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
	}
	if fx.CustomerCompanyAdjusted {
		// Booking recorded the charge as company inflow; compensate outward.
		if _, err := ledger.Append(ctx, CompanyAppend{
			Mode:            fx.CustomerCompanyMode,
			Amount:          fx.CustomerAmount,
			Direction:       DirectionOut,
			RefNo:           refNo,
			TransactionType: txType,
			Action:          action,
			Actor:           actor,
		}); err != nil {
			return err
		}
	}

	if fx.AgentDebited {
		acct, err := tx.GetAccount(ctx, agent)
		if err != nil {
			return fmt.Errorf("failed to load agent: %w", err)
		}
		acct.Revert(fx.AgentAmount)
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
	}
	if fx.AgentCompanyAdjusted {
		// The agent payment left the company account; compensate inward.
		if _, err := ledger.Append(ctx, CompanyAppend{
			Mode:            fx.AgentCompanyMode,
			Amount:          fx.AgentAmount,
			Direction:       DirectionIn,
			RefNo:           refNo,
			TransactionType: txType,
			Action:          action,
			Actor:           actor,
		}); err != nil {
			return err
		}
	}

	*fx = BookingEffects{}
	return nil
}
