package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/agency-ledger/booking"
	"github.com/warp/agency-ledger/engine"
	"github.com/warp/agency-ledger/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	store *store.Memory
	mgr   *booking.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return &fixture{store: mem, mgr: booking.NewManager(mem)}
}

func (f *fixture) addCustomer(t *testing.T, id string, wallet, limit int64) {
	t.Helper()
	c := engine.NewCustomer(engine.EntityInfo{ID: id, Name: id, Active: true}, d(wallet), d(limit))
	require.NoError(t, f.store.SaveAccount(context.Background(), c))
}

func (f *fixture) addAgent(t *testing.T, id string, wallet, limit int64) {
	t.Helper()
	a := engine.NewAgent(engine.EntityInfo{ID: id, Name: id, Active: true}, d(wallet), d(limit))
	require.NoError(t, f.store.SaveAccount(context.Background(), a))
}

func (f *fixture) customer(t *testing.T, id string) *engine.Customer {
	t.Helper()
	acct, err := f.store.GetAccount(context.Background(), engine.EntityRef{Kind: engine.KindCustomer, ID: id})
	require.NoError(t, err)
	return acct.(*engine.Customer)
}

func (f *fixture) agent(t *testing.T, id string) *engine.Agent {
	t.Helper()
	acct, err := f.store.GetAccount(context.Background(), engine.EntityRef{Kind: engine.KindAgent, ID: id})
	require.NoError(t, err)
	return acct.(*engine.Agent)
}

func (f *fixture) cashRows(t *testing.T) []engine.CompanyEntry {
	t.Helper()
	rows, err := f.store.LedgerEntries(context.Background(), engine.ModeCash,
		time.Time{}, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	return rows
}

func (f *fixture) cashBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.store.LastBalance(context.Background(), engine.ModeCash)
	require.NoError(t, err)
	return b
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func cashTicket(customerID string, charge int64) booking.TicketInput {
	return booking.TicketInput{
		CustomerID:          customerID,
		Particular:          "DEL-BOM return",
		Date:                today(),
		CustomerCharge:      d(charge),
		CustomerPaymentMode: engine.ModeCash,
	}
}

// =============================================================================
// BOOK
// =============================================================================

func TestBookTicket_CashCharge_LogsCompanyInflow(t *testing.T) {
	// GIVEN: a customer paying 100 cash
	// WHEN: booking
	// THEN: one +100 inflow row, wallet untouched, effects record the row

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)

	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusBooked, tk.Status)
	assert.True(t, tk.Profit.Equal(d(100)))
	assert.True(t, tk.Effects.CustomerCompanyAdjusted)
	assert.False(t, tk.Effects.CustomerDebited)
	assert.True(t, f.cashBalance(t).Equal(d(100)))
	assert.True(t, f.customer(t, "c1").WalletBalance.IsZero())
}

func TestBookTicket_WalletCharge_RunsWaterfall(t *testing.T) {
	// GIVEN: customer with 20 wallet and 100 credit line
	// WHEN: booking a 100 wallet-mode ticket
	// THEN: wallet drains to 0, 80 drawn on credit, no company row

	f := newFixture(t)
	f.addCustomer(t, "c1", 20, 100)

	in := cashTicket("c1", 100)
	in.CustomerPaymentMode = engine.ModeWallet

	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	c := f.customer(t, "c1")
	assert.True(t, c.WalletBalance.IsZero())
	assert.True(t, c.CreditUsed.Equal(d(80)))
	assert.True(t, tk.Effects.CustomerDebited)
	assert.Empty(t, f.cashRows(t))
}

func TestBookTicket_AgentSide_LogsOutflowAndProfit(t *testing.T) {
	// GIVEN: a 100 charge against a 70 agent payment, both cash
	// THEN: +100 and -70 rows; stored profit is 30

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	f.addAgent(t, "a1", 0, 0)

	in := cashTicket("c1", 100)
	in.AgentID = "a1"
	in.AgentPaid = d(70)
	in.AgentPaymentMode = engine.ModeCash

	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	assert.True(t, tk.Profit.Equal(d(30)))
	assert.True(t, tk.Effects.AgentCompanyAdjusted)
	rows := f.cashRows(t)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].CreditedAmount.Equal(d(100)))
	assert.True(t, rows[1].CreditedAmount.Equal(d(-70)))
	assert.True(t, f.cashBalance(t).Equal(d(30)))
}

func TestBookTicket_AgentWalletPayment_DeductsAgent(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	f.addAgent(t, "a1", 100, 0)

	in := cashTicket("c1", 100)
	in.AgentID = "a1"
	in.AgentPaid = d(60)
	in.AgentPaymentMode = engine.ModeWallet

	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	assert.True(t, tk.Effects.AgentDebited)
	assert.True(t, f.agent(t, "a1").WalletBalance.Equal(d(40)))
	assert.Len(t, f.cashRows(t), 1) // customer inflow only
}

func TestBookTicket_InvalidModeRejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)

	in := cashTicket("c1", 100)
	in.CustomerPaymentMode = engine.ModeServiceAvailed

	_, err := f.mgr.BookTicket(context.Background(), in, "tester")

	require.ErrorIs(t, err, engine.ErrInvalidMode)
}

func TestBookTicket_InsufficientWalletRollsBack(t *testing.T) {
	// GIVEN: customer who cannot cover the wallet charge
	// THEN: no ticket, no ledger row, ref sequence burned but nothing else

	f := newFixture(t)
	f.addCustomer(t, "c1", 10, 0)

	in := cashTicket("c1", 100)
	in.CustomerPaymentMode = engine.ModeWallet

	_, err := f.mgr.BookTicket(context.Background(), in, "tester")

	require.ErrorIs(t, err, engine.ErrInsufficientFunds)
	assert.True(t, f.customer(t, "c1").WalletBalance.Equal(d(10)))

	tickets, err := f.mgr.ListTickets(context.Background(), "", time.Time{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelTicket_CashBooking_ReversesThenRefunds(t *testing.T) {
	// GIVEN: a 100 cash booking (+100)
	// WHEN: cancelling with a 30 cash refund
	// THEN: a -100 reversal row, then a -30 refund row; balance ends at -30

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	cancelled, err := f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(30),
		CustomerRefundMode:   engine.ModeCash,
	}, "tester")
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCancelled, cancelled.Status)
	assert.True(t, cancelled.Effects.Empty())

	rows := f.cashRows(t)
	require.Len(t, rows, 3)
	assert.True(t, rows[1].CreditedAmount.Equal(d(-100)))
	assert.Equal(t, engine.ActionCancel, rows[1].Action)
	assert.True(t, rows[2].CreditedAmount.Equal(d(-30)))
	assert.Equal(t, engine.ActionCancel, rows[2].Action)
	assert.True(t, f.cashBalance(t).Equal(d(-30)))
}

func TestCancelTicket_WalletBooking_RestoresWaterfallSplit(t *testing.T) {
	// GIVEN: a wallet booking that drew 20 wallet and 80 credit
	// WHEN: cancelling with a full wallet refund
	// THEN: the customer is back to the pre-booking split

	f := newFixture(t)
	f.addCustomer(t, "c1", 20, 100)

	in := cashTicket("c1", 100)
	in.CustomerPaymentMode = engine.ModeWallet
	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{}, "tester")
	require.NoError(t, err)

	c := f.customer(t, "c1")
	assert.True(t, c.WalletBalance.Equal(d(20)))
	assert.True(t, c.CreditUsed.IsZero())
}

func TestCancelTicket_AgentRecovery_FlowsBackIn(t *testing.T) {
	// GIVEN: booking that paid an agent 70 cash (-70)
	// WHEN: cancelling with a 50 cash recovery from the agent
	// THEN: the agent leg reverses +70 and the recovery adds +50

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	f.addAgent(t, "a1", 0, 0)

	in := cashTicket("c1", 100)
	in.AgentID = "a1"
	in.AgentPaid = d(70)
	in.AgentPaymentMode = engine.ModeCash
	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		AgentRecoveryAmount: d(50),
		AgentRecoveryMode:   engine.ModeCash,
	}, "tester")
	require.NoError(t, err)

	// book +100, -70; cancel -100, +70; recovery +50
	assert.True(t, f.cashBalance(t).Equal(d(50)))
}

func TestCancelTicket_WalletRecovery_RevertsAgent(t *testing.T) {
	// A wallet-mode recovery settles into the agent's balance rather than
	// the company account.

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	f.addAgent(t, "a1", 100, 0)

	in := cashTicket("c1", 100)
	in.AgentID = "a1"
	in.AgentPaid = d(60)
	in.AgentPaymentMode = engine.ModeWallet
	tk, err := f.mgr.BookTicket(context.Background(), in, "tester")
	require.NoError(t, err)

	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		AgentRecoveryAmount: d(60),
		AgentRecoveryMode:   engine.ModeWallet,
	}, "tester")
	require.NoError(t, err)

	// Reversal restored the 60, the wallet recovery adds it again: the agent
	// ends 60 up on where they started. The two movements are independent.
	assert.True(t, f.agent(t, "a1").WalletBalance.Equal(d(160)))
}

func TestCancelTicket_RefundBeyondCharge_Rejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(101),
	}, "tester")

	require.ErrorIs(t, err, engine.ErrRefundExceedsCharge)
	assert.True(t, f.cashBalance(t).Equal(d(100)))
}

func TestCancelTicket_Twice_Rejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{}, "tester")
	require.NoError(t, err)
	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{}, "tester")

	require.ErrorIs(t, err, engine.ErrAlreadyCancelled)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdateTicket_Booked_FinancialChangeReappliesEffects(t *testing.T) {
	// GIVEN: a 100 cash booking
	// WHEN: the charge is corrected to 150
	// THEN: -100 reversal plus +150 adjustment; balance 150

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	in := cashTicket("c1", 150)
	updated, err := f.mgr.UpdateTicket(context.Background(), tk.ID, booking.TicketUpdate{TicketInput: in}, "tester")
	require.NoError(t, err)

	assert.True(t, updated.CustomerCharge.Equal(d(150)))
	assert.True(t, updated.Profit.Equal(d(150)))
	assert.True(t, f.cashBalance(t).Equal(d(150)))

	rows := f.cashRows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, engine.ActionReversal, rows[1].Action)
	assert.Equal(t, engine.ActionAdjustment, rows[2].Action)
}

func TestUpdateTicket_Booked_DescriptiveChangeOnly(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	in := cashTicket("c1", 100)
	in.Passenger = "R. Iyer"
	updated, err := f.mgr.UpdateTicket(context.Background(), tk.ID, booking.TicketUpdate{TicketInput: in}, "tester")
	require.NoError(t, err)

	assert.Equal(t, "R. Iyer", updated.Passenger)
	assert.Len(t, f.cashRows(t), 1)
}

func TestUpdateTicket_Cancelled_RefundDeltaOnly(t *testing.T) {
	// GIVEN: a cancelled ticket with a 30 cash refund already settled
	// WHEN: the refund is raised to 50
	// THEN: only the 20 delta hits the ledger

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)
	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(30),
		CustomerRefundMode:   engine.ModeCash,
	}, "tester")
	require.NoError(t, err)
	balanceBefore := f.cashBalance(t)

	updated, err := f.mgr.UpdateTicket(context.Background(), tk.ID, booking.TicketUpdate{
		TicketInput:          cashTicket("c1", 100),
		CustomerRefundAmount: d(50),
		CustomerRefundMode:   engine.ModeCash,
	}, "tester")
	require.NoError(t, err)

	assert.True(t, updated.CustomerRefundAmount.Equal(d(50)))
	assert.True(t, f.cashBalance(t).Equal(balanceBefore.Sub(d(20))))
}

func TestUpdateTicket_Cancelled_WalletRefundAdjustsCustomer(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)
	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(30),
		CustomerRefundMode:   engine.ModeWallet,
	}, "tester")
	require.NoError(t, err)
	require.True(t, f.customer(t, "c1").WalletBalance.Equal(d(30)))

	_, err = f.mgr.UpdateTicket(context.Background(), tk.ID, booking.TicketUpdate{
		TicketInput:          cashTicket("c1", 100),
		CustomerRefundAmount: d(10),
		CustomerRefundMode:   engine.ModeWallet,
	}, "tester")
	require.NoError(t, err)

	// Refund shrank by 20; the wallet gives it back.
	assert.True(t, f.customer(t, "c1").WalletBalance.Equal(d(10)))
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteTicket_Booked_ReversesEffects(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteTicket(context.Background(), tk.ID, "tester"))

	assert.True(t, f.cashBalance(t).IsZero())
	_, err = f.mgr.GetTicket(context.Background(), tk.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDeleteTicket_Cancelled_ReversesNetOnly(t *testing.T) {
	// GIVEN: 100 booked, cancelled with a 30 refund (net 70 kept)
	// WHEN: deleting the cancelled ticket
	// THEN: a -70 delete row hands back the net still settled

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)
	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(30),
		CustomerRefundMode:   engine.ModeCash,
	}, "tester")
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteTicket(context.Background(), tk.ID, "tester"))

	rows := f.cashRows(t)
	require.Len(t, rows, 4)
	last := rows[3]
	assert.True(t, last.CreditedAmount.Equal(d(-70)))
	assert.Equal(t, engine.ActionDelete, last.Action)
	assert.True(t, f.cashBalance(t).Equal(d(-100)))
}

func TestDeleteTicket_CancelledWalletRefund_GivesBackNetToCustomer(t *testing.T) {
	// Net 70 was kept from a customer refunded through the wallet; deleting
	// hands it back to them.

	f := newFixture(t)
	f.addCustomer(t, "c1", 0, 0)
	tk, err := f.mgr.BookTicket(context.Background(), cashTicket("c1", 100), "tester")
	require.NoError(t, err)
	_, err = f.mgr.CancelTicket(context.Background(), tk.ID, booking.CancelInput{
		CustomerRefundAmount: d(30),
		CustomerRefundMode:   engine.ModeWallet,
	}, "tester")
	require.NoError(t, err)

	require.NoError(t, f.mgr.DeleteTicket(context.Background(), tk.ID, "tester"))

	assert.True(t, f.customer(t, "c1").WalletBalance.Equal(d(100)))
}
