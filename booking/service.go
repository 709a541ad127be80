/*
service.go - Service lifecycle

Services are the customer-only booking: one charge, one payment mode, no
agent side. The flows mirror ticket.go minus the agent leg.
*/
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

const serviceTxType = "service"

// ServiceInput carries the bookable service fields.
type ServiceInput struct {
	CustomerID string
	Particular string
	Date       time.Time

	CustomerCharge      decimal.Decimal
	CustomerPaymentMode engine.Mode
}

// ServiceUpdate carries the editable fields for both states.
type ServiceUpdate struct {
	ServiceInput

	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   engine.Mode
}

// ServiceCancelInput carries the cancellation-time refund.
type ServiceCancelInput struct {
	CustomerRefundAmount decimal.Decimal
	CustomerRefundMode   engine.Mode
}

func (in ServiceInput) validate() error {
	if in.CustomerID == "" {
		return &engine.MissingFieldError{Field: "customer_id"}
	}
	if !in.CustomerCharge.IsPositive() {
		return engine.ErrInvalidAmount
	}
	if !bookingMode(in.CustomerPaymentMode) {
		return engine.ErrInvalidMode
	}
	return nil
}

// =============================================================================
// BOOK
// =============================================================================

func (m *Manager) BookService(ctx context.Context, in ServiceInput, actor string) (*engine.Service, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var booked *engine.Service
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		refNo, err := engine.BookingRefNo(ctx, tx, engine.ServiceRefPrefix)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		s := &engine.Service{
			ID:         uuid.NewString(),
			RefNo:      refNo,
			CustomerID: in.CustomerID,
			Particular: in.Particular,
			Status:     engine.StatusBooked,
			Date:       in.Date,

			CustomerCharge:      in.CustomerCharge,
			CustomerPaymentMode: in.CustomerPaymentMode,

			CreatedAt: now,
			UpdatedAt: now,
			UpdatedBy: actor,
		}
		if err := applyService(ctx, tx, s, actor, engine.ActionBook); err != nil {
			return err
		}
		if err := tx.PutService(ctx, s); err != nil {
			return err
		}
		booked = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booked, nil
}

func applyService(ctx context.Context, tx engine.Tx, s *engine.Service, actor string, action engine.Action) error {
	customer := engine.EntityRef{Kind: engine.KindCustomer, ID: s.CustomerID}
	fx, err := applySide(ctx, tx, customer, s.CustomerCharge, s.CustomerPaymentMode,
		engine.DirectionIn, s.RefNo, serviceTxType, actor, action)
	if err != nil {
		return err
	}
	s.Effects.CustomerDebited = fx.Debited
	s.Effects.CustomerCompanyAdjusted = fx.CompanyAdjusted
	s.Effects.CustomerCompanyMode = fx.CompanyMode
	s.Effects.CustomerAmount = s.CustomerCharge
	return nil
}

// =============================================================================
// UPDATE
// =============================================================================

func (m *Manager) UpdateService(ctx context.Context, id string, in ServiceUpdate, actor string) (*engine.Service, error) {
	var updated *engine.Service
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		s, err := tx.GetService(ctx, id)
		if err != nil {
			return err
		}

		if s.Status == engine.StatusCancelled {
			err = updateCancelledService(ctx, tx, s, in, actor)
		} else {
			err = updateActiveService(ctx, tx, s, in, actor)
		}
		if err != nil {
			return err
		}

		s.UpdatedAt = time.Now().UTC()
		s.UpdatedBy = actor
		if err := tx.PutService(ctx, s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func updateActiveService(ctx context.Context, tx engine.Tx, s *engine.Service, in ServiceUpdate, actor string) error {
	if err := in.ServiceInput.validate(); err != nil {
		return err
	}

	changed := !s.CustomerCharge.Equal(in.CustomerCharge) ||
		s.CustomerID != in.CustomerID ||
		s.CustomerPaymentMode != in.CustomerPaymentMode
	if changed {
		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: s.CustomerID}
		if err := engine.ReverseBookingEffects(ctx, tx, &s.Effects, customer, engine.EntityRef{},
			s.RefNo, serviceTxType, actor, engine.ActionReversal); err != nil {
			return err
		}

		s.CustomerID = in.CustomerID
		s.CustomerCharge = in.CustomerCharge
		s.CustomerPaymentMode = in.CustomerPaymentMode

		if err := applyService(ctx, tx, s, actor, engine.ActionAdjustment); err != nil {
			return err
		}
	}

	s.Particular = in.Particular
	s.Date = in.Date
	return nil
}

func updateCancelledService(ctx context.Context, tx engine.Tx, s *engine.Service, in ServiceUpdate, actor string) error {
	newRefund := in.CustomerRefundAmount
	newRefundMode := defaultMode(in.CustomerRefundMode)

	if newRefund.GreaterThan(s.CustomerCharge) {
		return engine.ErrRefundExceedsCharge
	}

	delta := newRefund.Sub(s.CustomerRefundAmount)
	if !delta.IsZero() {
		if newRefundMode == engine.ModeWallet {
			customer := engine.EntityRef{Kind: engine.KindCustomer, ID: s.CustomerID}
			if err := adjustEntity(ctx, tx, customer, delta); err != nil {
				return err
			}
		} else if err := appendCompanySigned(ctx, tx, newRefundMode, delta.Neg(),
			s.RefNo, serviceTxType, actor, engine.ActionAdjustment); err != nil {
			return err
		}
	}

	s.CustomerRefundAmount = newRefund
	s.CustomerRefundMode = newRefundMode
	return nil
}

// =============================================================================
// CANCEL
// =============================================================================

func (m *Manager) CancelService(ctx context.Context, id string, in ServiceCancelInput, actor string) (*engine.Service, error) {
	var cancelled *engine.Service
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		s, err := tx.GetService(ctx, id)
		if err != nil {
			return err
		}
		if s.Status == engine.StatusCancelled {
			return engine.ErrAlreadyCancelled
		}
		if in.CustomerRefundAmount.GreaterThan(s.CustomerCharge) {
			return engine.ErrRefundExceedsCharge
		}

		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: s.CustomerID}
		if err := engine.ReverseBookingEffects(ctx, tx, &s.Effects, customer, engine.EntityRef{},
			s.RefNo, serviceTxType, actor, engine.ActionCancel); err != nil {
			return err
		}

		refundMode := defaultMode(in.CustomerRefundMode)
		if in.CustomerRefundAmount.IsPositive() {
			if err := settleForward(ctx, tx, customer, in.CustomerRefundAmount, refundMode,
				engine.DirectionOut, s.RefNo, serviceTxType, actor); err != nil {
				return err
			}
		}

		s.Status = engine.StatusCancelled
		s.CustomerRefundAmount = in.CustomerRefundAmount
		s.CustomerRefundMode = refundMode
		s.UpdatedAt = time.Now().UTC()
		s.UpdatedBy = actor
		if err := tx.PutService(ctx, s); err != nil {
			return err
		}
		cancelled = s
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

func (m *Manager) DeleteService(ctx context.Context, id, actor string) error {
	return m.store.WithTx(ctx, func(tx engine.Tx) error {
		s, err := tx.GetService(ctx, id)
		if err != nil {
			return err
		}

		customer := engine.EntityRef{Kind: engine.KindCustomer, ID: s.CustomerID}
		if s.Status == engine.StatusCancelled {
			net := s.CustomerCharge.Sub(s.CustomerRefundAmount)
			if !net.IsZero() {
				if s.CustomerRefundMode == engine.ModeWallet {
					if err := adjustEntity(ctx, tx, customer, net); err != nil {
						return err
					}
				} else if err := appendCompanySigned(ctx, tx, s.CustomerRefundMode, net.Neg(),
					s.RefNo, serviceTxType, actor, engine.ActionDelete); err != nil {
					return err
				}
			}
		} else if err := engine.ReverseBookingEffects(ctx, tx, &s.Effects, customer, engine.EntityRef{},
			s.RefNo, serviceTxType, actor, engine.ActionDelete); err != nil {
			return err
		}

		return tx.DeleteService(ctx, id)
	})
}

// =============================================================================
// READS
// =============================================================================

func (m *Manager) GetService(ctx context.Context, id string) (*engine.Service, error) {
	return m.store.GetService(ctx, id)
}

func (m *Manager) ListServices(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Service, error) {
	return m.store.ListServices(ctx, status, from, to)
}
