/*
balance.go - Credit-wallet waterfall, one implementation per entity kind

PURPOSE:
  Defines the Account interface and the deduction/reversion waterfall for
  each balance entity. The asymmetric ordering is deliberate:

    deduct: wallet first, then credit   (keep the liquid wallet intact)
    revert: credit first, then wallet   (zero outstanding credit first)

  so a deduct followed by a revert of the same amount restores the original
  wallet/credit split exactly.

CONTRACT:
  Deduct(amount) mutates the receiver in place and returns
  InsufficientFundsError when wallet+credit cannot cover the amount, leaving
  the receiver unmutated. Revert(amount) is unconditional. Amounts are
  always positive; direction is carried by the method, not the sign.

  Accounts carry no persistence. The caller saves the mutated entity and
  records the debit/credit in the owning record's effect flags, all within
  the same unit of work.

SEE ALSO:
  - effects.go: how debits/credits are recorded and reversed
  - store.go: AccountStore loads/saves these entities
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// ACCOUNT - waterfall interface
// =============================================================================

// Account is a balance entity the waterfall can move money through.
// Implementations: *Customer, *Agent, *Partner.
type Account interface {
	// Ref identifies the entity.
	Ref() EntityRef

	// Deduct draws amount from the entity, wallet first then credit.
	// On InsufficientFundsError the entity is left unmutated.
	Deduct(amount decimal.Decimal) error

	// Revert returns amount to the entity, credit first then wallet.
	Revert(amount decimal.Decimal)
}

// =============================================================================
// CUSTOMER - credit tracked as used-against-limit
// =============================================================================

// NewCustomer creates a customer applying the original back-office rule:
// a negative opening wallet converts the shortfall into used credit, capped
// at the limit.
func NewCustomer(info EntityInfo, wallet, creditLimit decimal.Decimal) *Customer {
	c := &Customer{EntityInfo: info, WalletBalance: wallet, CreditLimit: creditLimit}
	if wallet.IsNegative() {
		c.CreditUsed = decimal.Min(wallet.Neg(), creditLimit)
	}
	return c
}

func (c *Customer) Ref() EntityRef { return EntityRef{Kind: KindCustomer, ID: c.ID} }

// CreditAvailable is the remaining drawable credit.
func (c *Customer) CreditAvailable() decimal.Decimal {
	return c.CreditLimit.Sub(c.CreditUsed)
}

func (c *Customer) Deduct(amount decimal.Decimal) error {
	if c.WalletBalance.Add(c.CreditAvailable()).LessThan(amount) {
		return &InsufficientFundsError{
			Entity:    c.Ref(),
			Requested: amount,
			Available: c.WalletBalance.Add(c.CreditAvailable()),
		}
	}
	fromWallet := decimal.Min(c.WalletBalance, amount)
	c.WalletBalance = c.WalletBalance.Sub(fromWallet)
	c.CreditUsed = c.CreditUsed.Add(amount.Sub(fromWallet))
	return nil
}

func (c *Customer) Revert(amount decimal.Decimal) {
	repay := decimal.Min(c.CreditUsed, amount)
	c.CreditUsed = c.CreditUsed.Sub(repay)
	c.WalletBalance = c.WalletBalance.Add(amount.Sub(repay))
}

// =============================================================================
// AGENT - credit tracked as remaining-available-balance
// =============================================================================

// NewAgent creates an agent with its full credit line available
// (CreditBalance starts at CreditLimit).
func NewAgent(info EntityInfo, wallet, creditLimit decimal.Decimal) *Agent {
	return &Agent{
		EntityInfo:    info,
		WalletBalance: wallet,
		CreditLimit:   creditLimit,
		CreditBalance: creditLimit,
	}
}

func (a *Agent) Ref() EntityRef { return EntityRef{Kind: KindAgent, ID: a.ID} }

// CreditDeficit is how much of the credit line is currently consumed.
func (a *Agent) CreditDeficit() decimal.Decimal {
	return a.CreditLimit.Sub(a.CreditBalance)
}

func (a *Agent) Deduct(amount decimal.Decimal) error {
	if a.WalletBalance.Add(a.CreditBalance).LessThan(amount) {
		return &InsufficientFundsError{
			Entity:    a.Ref(),
			Requested: amount,
			Available: a.WalletBalance.Add(a.CreditBalance),
		}
	}
	fromWallet := decimal.Min(a.WalletBalance, amount)
	a.WalletBalance = a.WalletBalance.Sub(fromWallet)
	a.CreditBalance = a.CreditBalance.Sub(amount.Sub(fromWallet))
	return nil
}

func (a *Agent) Revert(amount decimal.Decimal) {
	refill := decimal.Min(a.CreditDeficit(), amount)
	a.CreditBalance = a.CreditBalance.Add(refill)
	a.WalletBalance = a.WalletBalance.Add(amount.Sub(refill))
}

// =============================================================================
// PARTNER - wallet only
// =============================================================================

func NewPartner(info EntityInfo, wallet decimal.Decimal, allowNegative bool) *Partner {
	return &Partner{EntityInfo: info, WalletBalance: wallet, AllowNegativeWallet: allowNegative}
}

func (p *Partner) Ref() EntityRef { return EntityRef{Kind: KindPartner, ID: p.ID} }

func (p *Partner) Deduct(amount decimal.Decimal) error {
	if !p.AllowNegativeWallet && p.WalletBalance.LessThan(amount) {
		return &InsufficientFundsError{
			Entity:    p.Ref(),
			Requested: amount,
			Available: p.WalletBalance,
		}
	}
	p.WalletBalance = p.WalletBalance.Sub(amount)
	return nil
}

func (p *Partner) Revert(amount decimal.Decimal) {
	p.WalletBalance = p.WalletBalance.Add(amount)
}
