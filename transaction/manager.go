/*
Package transaction implements the lifecycle manager for standalone ledger
transactions: payments, receipts, refunds and wallet transfers.

PURPOSE:
  The manager owns the full record lifecycle. Creation applies the
  transaction's financial effects and records them; update reverses the
  recorded effects and reapplies under the new values when a financial
  field changed; deletion reverses and removes the record. Every path runs
  inside one store unit of work.

ROUTING RULES (apply):
  payment (money out of the company):
    agent    + cash_deposit                      -> credit the agent
    agent    + other_expense  + deduct toggle    -> debit the agent
    customer/partner + cash_withdrawal           -> debit the entity
    customer/partner + other_expense + deduct    -> debit the entity
    company ledger: one outflow row for the payment mode

  receipt (money into the company):
    customer/partner + cash_deposit              -> credit the entity
    customer/partner + other_receipt + credit    -> credit the entity
    agent    + other_receipt + credit toggle     -> debit the agent
    company ledger: one inflow row for the receipt mode

  refund incoming (entity returns money to the company):
    from others, or settled in cash              -> company inflow under
                                                    the receiving mode;
                                                    plus credit the source
                                                    entity when toggled
    settled from the source's wallet             -> debit the source only

  refund outgoing (company pays the entity):
    settled other than service_availed           -> company outflow under
                                                    the paying mode
    to customer/partner: deduct toggle -> debit, credit toggle -> credit
    to agent:            credit toggle -> credit

  wallet_transfer:
    resolve both entities, debit source, credit destination. The company
    ledger is never touched.

REVERSAL:
  Flag-driven, see engine/effects.go. The recorded effects, not the
  record's current fields, decide what gets undone.
*/
package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

// Manager orchestrates transaction lifecycles over a store.
type Manager struct {
	store engine.Store
}

func NewManager(store engine.Store) *Manager {
	return &Manager{store: store}
}

// Input carries the caller-supplied transaction fields.
type Input struct {
	Kind       engine.TransactionKind
	EntityKind engine.Kind
	EntityID   string
	PayType    engine.PayType
	Mode       engine.Mode
	Amount     decimal.Decimal

	Date        time.Time
	Description string
	Particular  string

	RefundDirection   engine.RefundDirection
	DeductFromAccount bool
	CreditToAccount   bool
	From              engine.EntityRef
	To                engine.EntityRef
	ModeForFrom       engine.Mode
	ModeForTo         engine.Mode
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates, allocates a reference number, applies the financial
// effects and persists the record, all in one unit of work.
func (m *Manager) Create(ctx context.Context, in Input, actor string) (*engine.Transaction, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	var created *engine.Transaction
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		refNo, err := engine.TransactionRefNo(ctx, tx, in.Kind)
		if err != nil {
			return err
		}

		t := fromInput(in)
		t.ID = uuid.NewString()
		t.RefNo = refNo
		t.CreatedAt = time.Now().UTC()
		t.UpdatedAt = t.CreatedAt
		t.UpdatedBy = actor

		if t.Kind == engine.TxRefund {
			if err := deriveRefundView(t); err != nil {
				return err
			}
		}

		if err := apply(ctx, tx, t, actor, engine.ActionBook); err != nil {
			return err
		}
		if err := tx.PutTransaction(ctx, t); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update edits a transaction. When a financially relevant field changed
// (amount, entity selection, modes, routing toggles) the recorded effects
// are reversed and the transaction is reapplied under the new values;
// otherwise only the descriptive fields are rewritten.
func (m *Manager) Update(ctx context.Context, id string, in Input, actor string) (*engine.Transaction, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	var updated *engine.Transaction
	err := m.store.WithTx(ctx, func(tx engine.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if in.Kind != t.Kind {
			return fmt.Errorf("%w: transaction kind is immutable", engine.ErrMissingField)
		}

		if financialChange(t, in) {
			if err := engine.ReverseEffects(ctx, tx, &t.Effects, t.RefNo, string(t.Kind), actor, engine.ActionReversal); err != nil {
				return err
			}
			applyInput(t, in)
			if t.Kind == engine.TxRefund {
				if err := deriveRefundView(t); err != nil {
					return err
				}
			}
			if err := apply(ctx, tx, t, actor, engine.ActionAdjustment); err != nil {
				return err
			}
		} else {
			t.Date = in.Date
			t.Description = in.Description
			t.Particular = in.Particular
		}

		t.UpdatedAt = time.Now().UTC()
		t.UpdatedBy = actor
		if err := tx.PutTransaction(ctx, t); err != nil {
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

// =============================================================================
// DELETE
// =============================================================================

// Delete reverses the recorded effects and removes the record.
func (m *Manager) Delete(ctx context.Context, id, actor string) error {
	return m.store.WithTx(ctx, func(tx engine.Tx) error {
		t, err := tx.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := engine.ReverseEffects(ctx, tx, &t.Effects, t.RefNo, string(t.Kind), actor, engine.ActionDelete); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, id)
	})
}

// =============================================================================
// READS
// =============================================================================

// Get returns one transaction by id.
func (m *Manager) Get(ctx context.Context, id string) (*engine.Transaction, error) {
	return m.store.GetTransaction(ctx, id)
}

// List returns transactions of kind with dates in [from, to], newest first.
func (m *Manager) List(ctx context.Context, kind engine.TransactionKind, from, to time.Time) ([]engine.Transaction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction kind %q", engine.ErrMissingField, kind)
	}
	return m.store.ListTransactions(ctx, kind, from, to)
}

// =============================================================================
// INTERNALS
// =============================================================================

func validate(in Input) error {
	if !in.Kind.Valid() {
		return &engine.MissingFieldError{Field: "transaction_type"}
	}
	if !in.Amount.IsPositive() {
		return engine.ErrInvalidAmount
	}
	switch in.Kind {
	case engine.TxPayment, engine.TxReceipt:
		if !in.EntityKind.Valid() {
			return &engine.MissingFieldError{Field: "entity_type"}
		}
		if in.Mode == "" {
			return &engine.MissingFieldError{Field: "mode"}
		}
	case engine.TxRefund:
		if in.RefundDirection != engine.RefundIncoming && in.RefundDirection != engine.RefundOutgoing {
			return &engine.MissingFieldError{Field: "refund_direction"}
		}
		// Every refund leg settles through some account; an empty mode
		// would otherwise slip past routing and persist a record that
		// moved no money.
		switch {
		case in.RefundDirection == engine.RefundOutgoing:
			if in.ModeForFrom == "" {
				return fmt.Errorf("%w: mode_for_from", engine.ErrMissingMode)
			}
		case in.From.IsZero() || in.ModeForFrom == engine.ModeCash:
			if in.ModeForTo == "" {
				return fmt.Errorf("%w: mode_for_to", engine.ErrMissingMode)
			}
		case in.ModeForFrom == "":
			return fmt.Errorf("%w: mode_for_from", engine.ErrMissingMode)
		}
	case engine.TxWalletTransfer:
		if in.From.IsZero() || in.To.IsZero() {
			return &engine.MissingFieldError{Field: "from_entity/to_entity"}
		}
	}
	return nil
}

func fromInput(in Input) *engine.Transaction {
	t := &engine.Transaction{Kind: in.Kind}
	applyInput(t, in)
	return t
}

func applyInput(t *engine.Transaction, in Input) {
	t.EntityKind = in.EntityKind
	t.EntityID = in.EntityID
	t.PayType = in.PayType
	t.Mode = in.Mode
	t.Amount = in.Amount
	t.Date = in.Date
	t.Description = in.Description
	t.Particular = in.Particular
	t.RefundDirection = in.RefundDirection
	t.DeductFromAccount = in.DeductFromAccount
	t.CreditToAccount = in.CreditToAccount
	t.From = in.From
	t.To = in.To
	t.ModeForFrom = in.ModeForFrom
	t.ModeForTo = in.ModeForTo

	switch t.Kind {
	case engine.TxRefund:
		t.PayType = engine.PayRefund
	case engine.TxWalletTransfer:
		t.PayType = engine.PayWalletTransfer
	}
}

// deriveRefundView fills the record's visible entity and mode from the
// refund legs: the entity is the counterparty on the money's origin side,
// the mode is the account the company side actually settled through.
func deriveRefundView(t *engine.Transaction) error {
	if t.RefundDirection == engine.RefundIncoming {
		t.EntityKind = t.From.Kind
	} else {
		t.EntityKind = t.To.Kind
	}
	if t.EntityKind == "" {
		t.EntityKind = engine.KindOthers
	}

	if t.RefundDirection == engine.RefundIncoming {
		if t.EntityKind == engine.KindOthers {
			t.EntityID = ""
			t.Mode = t.ModeForTo
			return nil
		}
		t.EntityID = t.From.ID
		t.Mode = t.ModeForFrom
		return nil
	}
	if t.EntityKind == engine.KindOthers {
		t.EntityID = ""
	} else {
		t.EntityID = t.To.ID
	}
	t.Mode = t.ModeForFrom
	return nil
}

// financialChange reports whether the update touches anything that routed
// money: amount, entity selection, modes or the routing toggles.
func financialChange(t *engine.Transaction, in Input) bool {
	if t.Kind == engine.TxRefund {
		// EntityKind, EntityID and Mode on the record are derived from the
		// legs, never caller-supplied; only the legs themselves count.
		return !t.Amount.Equal(in.Amount) ||
			t.RefundDirection != in.RefundDirection ||
			t.DeductFromAccount != in.DeductFromAccount ||
			t.CreditToAccount != in.CreditToAccount ||
			t.From != in.From ||
			t.To != in.To ||
			t.ModeForFrom != in.ModeForFrom ||
			t.ModeForTo != in.ModeForTo
	}
	return !t.Amount.Equal(in.Amount) ||
		t.EntityKind != in.EntityKind ||
		t.EntityID != in.EntityID ||
		t.Mode != in.Mode ||
		t.PayType != in.PayType && in.PayType != "" ||
		t.RefundDirection != in.RefundDirection ||
		t.DeductFromAccount != in.DeductFromAccount ||
		t.CreditToAccount != in.CreditToAccount ||
		t.From != in.From ||
		t.To != in.To ||
		t.ModeForFrom != in.ModeForFrom ||
		t.ModeForTo != in.ModeForTo
}

// =============================================================================
// APPLY
// =============================================================================

func apply(ctx context.Context, tx engine.Tx, t *engine.Transaction, actor string, action engine.Action) error {
	switch t.Kind {
	case engine.TxPayment:
		return applyPayment(ctx, tx, t, actor, action)
	case engine.TxReceipt:
		return applyReceipt(ctx, tx, t, actor, action)
	case engine.TxRefund:
		return applyRefund(ctx, tx, t, actor, action)
	case engine.TxWalletTransfer:
		return applyTransfer(ctx, tx, t)
	}
	return fmt.Errorf("unknown transaction kind %q", t.Kind)
}

// logCompany appends a company row for mode, recording the append on the
// effects. Non-company modes (wallet, service_availed) are a no-op inside
// Append; an empty mode surfaces as ErrMissingMode and aborts the unit.
func logCompany(ctx context.Context, tx engine.Tx, t *engine.Transaction, mode engine.Mode, dir engine.Direction, actor string, action engine.Action) error {
	entry, err := engine.NewCompanyLedger(tx).Append(ctx, engine.CompanyAppend{
		Mode:            mode,
		Amount:          t.Amount,
		Direction:       dir,
		RefNo:           t.RefNo,
		TransactionType: string(t.Kind),
		Action:          action,
		Actor:           actor,
	})
	if err != nil {
		return err
	}
	if entry != nil {
		t.Effects.CompanyAdjusted = true
		t.Effects.CompanyMode = mode
		t.Effects.CompanyDirection = dir
	}
	return nil
}

func debit(ctx context.Context, tx engine.Tx, t *engine.Transaction, ref engine.EntityRef) error {
	acct, err := tx.GetAccount(ctx, ref)
	if err != nil {
		return err
	}
	if err := acct.Deduct(t.Amount); err != nil {
		return err
	}
	if err := tx.SaveAccount(ctx, acct); err != nil {
		return err
	}
	r := ref
	t.Effects.Debited = &r
	return nil
}

func credit(ctx context.Context, tx engine.Tx, t *engine.Transaction, ref engine.EntityRef) error {
	acct, err := tx.GetAccount(ctx, ref)
	if err != nil {
		return err
	}
	acct.Revert(t.Amount)
	if err := tx.SaveAccount(ctx, acct); err != nil {
		return err
	}
	r := ref
	t.Effects.Credited = &r
	return nil
}

func applyPayment(ctx context.Context, tx engine.Tx, t *engine.Transaction, actor string, action engine.Action) error {
	t.Effects.Amount = t.Amount
	ref := engine.EntityRef{Kind: t.EntityKind, ID: t.EntityID}

	switch t.EntityKind {
	case engine.KindAgent:
		switch {
		case t.PayType == engine.PayCashDeposit:
			// The company deposits into the agent's account upstream;
			// the agent's balance with us goes up.
			if err := credit(ctx, tx, t, ref); err != nil {
				return err
			}
		case t.PayType == engine.PayOtherExpense && t.DeductFromAccount:
			if err := debit(ctx, tx, t, ref); err != nil {
				return err
			}
		}
	case engine.KindCustomer, engine.KindPartner:
		switch {
		case t.PayType == engine.PayCashWithdrawal:
			if err := debit(ctx, tx, t, ref); err != nil {
				return err
			}
		case t.PayType == engine.PayOtherExpense && t.DeductFromAccount:
			if err := debit(ctx, tx, t, ref); err != nil {
				return err
			}
		}
	}

	return logCompany(ctx, tx, t, t.Mode, engine.DirectionOut, actor, action)
}

func applyReceipt(ctx context.Context, tx engine.Tx, t *engine.Transaction, actor string, action engine.Action) error {
	t.Effects.Amount = t.Amount
	ref := engine.EntityRef{Kind: t.EntityKind, ID: t.EntityID}

	switch t.EntityKind {
	case engine.KindCustomer, engine.KindPartner:
		if t.PayType == engine.PayCashDeposit ||
			(t.PayType == engine.PayOtherReceipt && t.CreditToAccount) {
			if err := credit(ctx, tx, t, ref); err != nil {
				return err
			}
		}
	case engine.KindAgent:
		if t.PayType == engine.PayOtherReceipt && t.CreditToAccount {
			// Receiving money on the agent's behalf draws their balance down.
			if err := debit(ctx, tx, t, ref); err != nil {
				return err
			}
		}
	}

	return logCompany(ctx, tx, t, t.Mode, engine.DirectionIn, actor, action)
}

func applyRefund(ctx context.Context, tx engine.Tx, t *engine.Transaction, actor string, action engine.Action) error {
	t.Effects.Amount = t.Amount

	if t.RefundDirection == engine.RefundIncoming {
		switch {
		case t.From.IsZero() || t.ModeForFrom == engine.ModeCash:
			if err := logCompany(ctx, tx, t, t.ModeForTo, engine.DirectionIn, actor, action); err != nil {
				return err
			}
			if !t.From.IsZero() && t.CreditToAccount {
				if err := credit(ctx, tx, t, t.From); err != nil {
					return err
				}
			}
		case t.ModeForFrom == engine.ModeWallet:
			if err := debit(ctx, tx, t, t.From); err != nil {
				return err
			}
		}
		return nil
	}

	// Outgoing: the company pays the entity.
	if t.ModeForFrom != engine.ModeServiceAvailed {
		if err := logCompany(ctx, tx, t, t.ModeForFrom, engine.DirectionOut, actor, action); err != nil {
			return err
		}
	}
	switch t.To.Kind {
	case engine.KindCustomer, engine.KindPartner:
		if t.DeductFromAccount {
			return debit(ctx, tx, t, t.To)
		}
		if t.CreditToAccount {
			return credit(ctx, tx, t, t.To)
		}
	case engine.KindAgent:
		if t.CreditToAccount {
			return credit(ctx, tx, t, t.To)
		}
	}
	return nil
}

// applyTransfer resolves both legs before mutating either, so a missing
// destination can never leave the source drained.
func applyTransfer(ctx context.Context, tx engine.Tx, t *engine.Transaction) error {
	t.Effects.Amount = t.Amount

	from, err := tx.GetAccount(ctx, t.From)
	if err != nil {
		return err
	}
	to, err := tx.GetAccount(ctx, t.To)
	if err != nil {
		return err
	}

	if err := from.Deduct(t.Amount); err != nil {
		return err
	}
	to.Revert(t.Amount)

	if err := tx.SaveAccount(ctx, from); err != nil {
		return err
	}
	if err := tx.SaveAccount(ctx, to); err != nil {
		return err
	}

	f, tRef := t.From, t.To
	t.Effects.Debited = &f
	t.Effects.Credited = &tRef
	return nil
}
