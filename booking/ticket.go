/*
ticket.go - Ticket lifecycle

A ticket has two payment sides: the customer charge (money toward the
company) and the optional agent payment (money out of the company). Profit
is stored at write time as charge - agent_paid.
*/
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

const ticketTxType = "ticket"

// TicketInput carries the bookable ticket fields.
type TicketInput struct {
	CustomerID     string
	AgentID        string
	Particular     string
	TravelLocation string
	Passenger      string
	Date           time.Time

	CustomerCharge      decimal.Decimal
	AgentPaid           decimal.Decimal
	CustomerPaymentMode engine.Mode
	AgentPaymentMode    engine.Mode
}

// TicketUpdate carries the editable fields for both states: the booking
// fields while booked, the refund/recovery fields once cancelled.
type TicketUpdate struct {
	TicketInput

	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   engine.Mode
	AgentRecoveryAmount  decimal.Decimal
	AgentRecoveryMode    engine.Mode
}

// CancelInput carries the cancellation-time refund and recovery.
type CancelInput struct {
	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   engine.Mode
	AgentRecoveryAmount  decimal.Decimal
	AgentRecoveryMode    engine.Mode
}

func (in TicketInput) agentSide() bool {
	return in.AgentID != "" && in.AgentPaid.IsPositive()
}

func (in TicketInput) validate() error {
	if in.CustomerID == "" {
		return &engine.MissingFieldError{Field: "customer_id"}
	}
	if !in.CustomerCharge.IsPositive() {
		return engine.ErrInvalidAmount
	}
	if in.AgentPaid.IsNegative() {
		return engine.ErrInvalidAmount
	}
	if !bookingMode(in.CustomerPaymentMode) {
		return engine.ErrInvalidMode
	}
	if in.agentSide() && !bookingMode(in.AgentPaymentMode) {
		return engine.ErrInvalidMode
	}
	return nil
}

// =============================================================================
// BOOK
// =============================================================================

// BookTicket creates a ticket and settles both payment sides in one unit
// of work.
func (m *Manager) BookTicket(ctx context.Context, in TicketInput, actor string) (*engine.Ticket, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var booked *engine.Ticket
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		refNo, err := engine.BookingRefNo(ctx, tx, engine.TicketRefPrefix)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		t := &engine.Ticket{
			ID:             uuid.NewString(),
			RefNo:          refNo,
			CustomerID:     in.CustomerID,
			AgentID:        in.AgentID,
			Particular:     in.Particular,
			TravelLocation: in.TravelLocation,
			Passenger:      in.Passenger,
			Status:         engine.StatusBooked,
			Date:           in.Date,

			CustomerCharge:      in.CustomerCharge,
			AgentPaid:           in.AgentPaid,
			Profit:              in.CustomerCharge.Sub(in.AgentPaid),
			CustomerPaymentMode: in.CustomerPaymentMode,
			AgentPaymentMode:    in.AgentPaymentMode,

			CreatedAt: now,
			UpdatedAt: now,
			UpdatedBy: actor,
		}
		if err := applyTicket(ctx, tx, t, actor, engine.ActionBook); err != nil {
			return err
		}
		if err := tx.PutTicket(ctx, t); err != nil {
			return err
		}
		booked = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booked, nil
}

func applyTicket(ctx context.Context, tx engine.Tx, t *engine.Ticket, actor string, action engine.Action) error {
	customer := engine.EntityRef{Kind: engine.KindCustomer, ID: t.CustomerID}
	fx, err := applySide(ctx, tx, customer, t.CustomerCharge, t.CustomerPaymentMode,
		engine.DirectionIn, t.RefNo, ticketTxType, actor, action)
	if err != nil {
		return err
	}
	t.Effects.CustomerDebited = fx.Debited
	t.Effects.CustomerCompanyAdjusted = fx.CompanyAdjusted
	t.Effects.CustomerCompanyMode = fx.CompanyMode
	t.Effects.CustomerAmount = t.CustomerCharge

	if t.AgentID != "" && t.AgentPaid.IsPositive() {
		agent := engine.EntityRef{Kind: engine.KindAgent, ID: t.AgentID}
		fx, err := applySide(ctx, tx, agent, t.AgentPaid, t.AgentPaymentMode,
			engine.DirectionOut, t.RefNo, ticketTxType, actor, action)
		if err != nil {
			return err
		}
		t.Effects.AgentDebited = fx.Debited
		t.Effects.AgentCompanyAdjusted = fx.CompanyAdjusted
		t.Effects.AgentCompanyMode = fx.CompanyMode
		t.Effects.AgentAmount = t.AgentPaid
	}
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateTicket edits a ticket, dispatching on its state: booked tickets take
// new booking fields, cancelled tickets take new refund/recovery values.
func (m *Manager) UpdateTicket(ctx context.Context, id string, in TicketUpdate, actor string) (*engine.Ticket, error) {
	var updated *engine.Ticket
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		t, err := tx.GetTicket(ctx, id)
		if err != nil {
			return err
		}

		if t.Status == engine.StatusCancelled {
			err = updateCancelledTicket(ctx, tx, t, in, actor)
		} else {
			err = updateActiveTicket(ctx, tx, t, in, actor)
		}
		if err != nil {
			return err
		}

		t.UpdatedAt = time.Now().UTC()
		t.UpdatedBy = actor
		if err := tx.PutTicket(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func ticketFinancialChange(t *engine.Ticket, in TicketInput) bool {
	return !t.CustomerCharge.Equal(in.CustomerCharge) ||
		!t.AgentPaid.Equal(in.AgentPaid) ||
		t.CustomerID != in.CustomerID ||
		t.AgentID != in.AgentID ||
		t.CustomerPaymentMode != in.CustomerPaymentMode ||
		t.AgentPaymentMode != in.AgentPaymentMode
}

func updateActiveTicket(ctx context.Context, tx engine.Tx, t *engine.Ticket, in TicketUpdate, actor string) error {
	if err := in.TicketInput.validate(); err != nil {
		return err
	}

	if ticketFinancialChange(t, in.TicketInput) {
		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: t.CustomerID}
		agent := engine.EntityRef{Kind: engine.KindAgent, ID: t.AgentID}
		if err := engine.ReverseBookingEffects(ctx, tx, &t.Effects, customer, agent,
			t.RefNo, ticketTxType, actor, engine.ActionReversal); err != nil {
			return err
		}

		t.CustomerID = in.CustomerID
		t.AgentID = in.AgentID
		t.CustomerCharge = in.CustomerCharge
		t.AgentPaid = in.AgentPaid
		t.Profit = in.CustomerCharge.Sub(in.AgentPaid)
		t.CustomerPaymentMode = in.CustomerPaymentMode
		t.AgentPaymentMode = in.AgentPaymentMode

		if err := applyTicket(ctx, tx, t, actor, engine.ActionAdjustment); err != nil {
			return err
		}
	}

	t.Particular = in.Particular
	t.TravelLocation = in.TravelLocation
	t.Passenger = in.Passenger
	t.Date = in.Date
	return nil
}

// updateCancelledTicket applies only the delta between the recorded and the
// requested refund/recovery, never the full amounts again.
func updateCancelledTicket(ctx context.Context, tx engine.Tx, t *engine.Ticket, in TicketUpdate, actor string) error {
	newRefund := in.CustomerRefundAmount
	newRefundMode := defaultMode(in.CustomerRefundMode)
	newRecovery := in.AgentRecoveryAmount
	newRecoveryMode := defaultMode(in.AgentRecoveryMode)

	if newRefund.GreaterThan(t.CustomerCharge) {
		return engine.ErrRefundExceedsCharge
	}
	if t.AgentID != "" && newRecovery.GreaterThan(t.AgentPaid) {
		return engine.ErrRecoveryExceedsPaid
	}

	refundDelta := newRefund.Sub(t.CustomerRefundAmount)
	if !refundDelta.IsZero() {
		if newRefundMode == engine.ModeWallet {
			customer := engine.EntityRef{Kind: engine.KindCustomer, ID: t.CustomerID}
			if err := adjustEntity(ctx, tx, customer, refundDelta); err != nil {
				return err
			}
		} else if err := appendCompanySigned(ctx, tx, newRefundMode, refundDelta.Neg(),
			t.RefNo, ticketTxType, actor, engine.ActionAdjustment); err != nil {
			return err
		}
	}

	recoveryDelta := newRecovery.Sub(t.AgentRecoveryAmount)
	if !recoveryDelta.IsZero() && t.AgentID != "" {
		if newRecoveryMode == engine.ModeWallet {
			agent := engine.EntityRef{Kind: engine.KindAgent, ID: t.AgentID}
			if err := adjustEntity(ctx, tx, agent, recoveryDelta); err != nil {
				return err
			}
		} else if err := appendCompanySigned(ctx, tx, newRecoveryMode, recoveryDelta,
			t.RefNo, ticketTxType, actor, engine.ActionAdjustment); err != nil {
			return err
		}
	}

	t.CustomerRefundAmount = newRefund
	t.CustomerRefundMode = newRefundMode
	t.AgentRecoveryAmount = newRecovery
	t.AgentRecoveryMode = newRecoveryMode
	return nil
}

// =============================================================================
// CANCEL
// =============================================================================

// CancelTicket reverses the booking's recorded effects in full, then
// settles the requested refund and recovery as fresh forward effects.
func (m *Manager) CancelTicket(ctx context.Context, id string, in CancelInput, actor string) (*engine.Ticket, error) {
	var cancelled *engine.Ticket
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		t, err := tx.GetTicket(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == engine.StatusCancelled {
			return engine.ErrAlreadyCancelled
		}
		if in.CustomerRefundAmount.GreaterThan(t.CustomerCharge) {
			return engine.ErrRefundExceedsCharge
		}
		if t.AgentID != "" && in.AgentRecoveryAmount.GreaterThan(t.AgentPaid) {
			return engine.ErrRecoveryExceedsPaid
		}

		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: t.CustomerID}
		agent := engine.EntityRef{Kind: engine.KindAgent, ID: t.AgentID}
		if err := engine.ReverseBookingEffects(ctx, tx, &t.Effects, customer, agent,
			t.RefNo, ticketTxType, actor, engine.ActionCancel); err != nil {
			return err
		}

		refundMode := defaultMode(in.CustomerRefundMode)
		if in.CustomerRefundAmount.IsPositive() {
			if err := settleForward(ctx, tx, customer, in.CustomerRefundAmount, refundMode,
				engine.DirectionOut, t.RefNo, ticketTxType, actor); err != nil {
				return err
			}
		}

		recoveryMode := defaultMode(in.AgentRecoveryMode)
		if in.AgentRecoveryAmount.IsPositive() && t.AgentID != "" {
			if err := settleForward(ctx, tx, agent, in.AgentRecoveryAmount, recoveryMode,
				engine.DirectionIn, t.RefNo, ticketTxType, actor); err != nil {
				return err
			}
		}

		t.Status = engine.StatusCancelled
		t.CustomerRefundAmount = in.CustomerRefundAmount
		t.CustomerRefundMode = refundMode
		t.AgentRecoveryAmount = in.AgentRecoveryAmount
		t.AgentRecoveryMode = recoveryMode
		t.UpdatedAt = time.Now().UTC()
		t.UpdatedBy = actor
		if err := tx.PutTicket(ctx, t); err != nil {
			return err
		}
		cancelled = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTicket removes the ticket. Booked tickets reverse their recorded
// effects; cancelled tickets reverse only the net still settled against
// them (charge - refund, agent_paid - recovery).
func (m *Manager) DeleteTicket(ctx context.Context, id, actor string) error {
	return m.store.WithTx(ctx, func(tx engine.Tx) error {
		t, err := tx.GetTicket(ctx, id)
		if err != nil {
			return err
		}

		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: t.CustomerID}
		agent := engine.EntityRef{Kind: engine.KindAgent, ID: t.AgentID}

		if t.Status == engine.StatusCancelled {
			netCustomer := t.CustomerCharge.Sub(t.CustomerRefundAmount)
			if !netCustomer.IsZero() {
				if t.CustomerRefundMode == engine.ModeWallet {
					if err := adjustEntity(ctx, tx, customer, netCustomer); err != nil {
						return err
					}
				} else if err := appendCompanySigned(ctx, tx, t.CustomerRefundMode, netCustomer.Neg(),
					t.RefNo, ticketTxType, actor, engine.ActionDelete); err != nil {
					return err
				}
			}

			if t.AgentID != "" {
				netAgent := t.AgentPaid.Sub(t.AgentRecoveryAmount)
				if !netAgent.IsZero() {
					if t.AgentRecoveryMode == engine.ModeWallet {
						if err := adjustEntity(ctx, tx, agent, netAgent); err != nil {
							return err
						}
					} else if err := appendCompanySigned(ctx, tx, t.AgentRecoveryMode, netAgent,
						t.RefNo, ticketTxType, actor, engine.ActionDelete); err != nil {
						return err
					}
				}
			}
		} else if err := engine.ReverseBookingEffects(ctx, tx, &t.Effects, customer, agent,
			t.RefNo, ticketTxType, actor, engine.ActionDelete); err != nil {
			return err
		}

		return tx.DeleteTicket(ctx, id)
	})
}

// =============================================================================
// READS
// =============================================================================

func (m *Manager) GetTicket(ctx context.Context, id string) (*engine.Ticket, error) {
	return m.store.GetTicket(ctx, id)
}

func (m *Manager) ListTickets(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Ticket, error) {
	return m.store.ListTickets(ctx, status, from, to)
}
