package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/agency-ledger/engine"
	"github.com/warp/agency-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func someTicket(id, refNo string) *engine.Ticket {
	now := time.Now().UTC()
	return &engine.Ticket{
		ID:                  id,
		RefNo:               refNo,
		CustomerID:          "c1",
		Status:              engine.StatusBooked,
		Date:                now,
		CustomerCharge:      d(100),
		AgentPaid:           d(0),
		Profit:              d(100),
		CustomerPaymentMode: engine.ModeCash,
		Effects: engine.BookingEffects{
			CustomerCompanyAdjusted: true,
			CustomerCompanyMode:     engine.ModeCash,
			CustomerAmount:          d(100),
		},
		CreatedAt: now,
		UpdatedAt: now,
		UpdatedBy: "tester",
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccounts_RoundTripAllKinds(t *testing.T) {
	// GIVEN: one entity of each kind saved
	// THEN: GetAccount returns each with balances intact

	ctx := context.Background()
	s := newStore(t)

	c := engine.NewCustomer(engine.EntityInfo{ID: "c1", Name: "Asha", Active: true}, d(20), d(100))
	require.NoError(t, c.Deduct(d(70))) // wallet 0, credit used 50
	a := engine.NewAgent(engine.EntityInfo{ID: "a1", Name: "Skyways", Active: true}, d(30), d(500))
	p := engine.NewPartner(engine.EntityInfo{ID: "p1", Name: "Orbit", Active: true}, d(-10), true)

	require.NoError(t, s.SaveAccount(ctx, c))
	require.NoError(t, s.SaveAccount(ctx, a))
	require.NoError(t, s.SaveAccount(ctx, p))

	got, err := s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindCustomer, ID: "c1"})
	require.NoError(t, err)
	gc := got.(*engine.Customer)
	assert.True(t, gc.WalletBalance.IsZero())
	assert.True(t, gc.CreditUsed.Equal(d(50)))
	assert.Equal(t, "Asha", gc.Name)

	got, err = s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindAgent, ID: "a1"})
	require.NoError(t, err)
	assert.True(t, got.(*engine.Agent).CreditBalance.Equal(d(500)))

	got, err = s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindPartner, ID: "p1"})
	require.NoError(t, err)
	gp := got.(*engine.Partner)
	assert.True(t, gp.WalletBalance.Equal(d(-10)))
	assert.True(t, gp.AllowNegativeWallet)
}

func TestAccounts_SaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c := engine.NewCustomer(engine.EntityInfo{ID: "c1", Name: "Asha", Active: true}, d(0), d(0))
	require.NoError(t, s.SaveAccount(ctx, c))
	c.WalletBalance = d(75)
	require.NoError(t, s.SaveAccount(ctx, c))

	got, err := s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindCustomer, ID: "c1"})
	require.NoError(t, err)
	assert.True(t, got.(*engine.Customer).WalletBalance.Equal(d(75)))
}

func TestAccounts_MissingEntity(t *testing.T) {
	s := newStore(t)

	_, err := s.GetAccount(context.Background(), engine.EntityRef{Kind: engine.KindCustomer, ID: "ghost"})

	require.ErrorIs(t, err, engine.ErrEntityNotFound)
	var notFound *engine.EntityNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Entity.ID)
}

func TestAccounts_ListSortedByName(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, name := range []string{"Zoya", "Asha", "Meera"} {
		c := engine.NewCustomer(engine.EntityInfo{ID: name, Name: name, Active: true}, d(0), d(0))
		require.NoError(t, s.SaveAccount(ctx, c))
	}

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, "Asha", customers[0].Name)
	assert.Equal(t, "Zoya", customers[2].Name)
}

// =============================================================================
// COMPANY LEDGER
// =============================================================================

func TestCompanyLedger_AppendAssignsSeqAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	e1 := &engine.CompanyEntry{Mode: engine.ModeCash, CreditedAmount: d(100), Balance: d(100), At: time.Now().UTC()}
	e2 := &engine.CompanyEntry{Mode: engine.ModeCash, CreditedAmount: d(-30), Balance: d(70), At: time.Now().UTC()}
	require.NoError(t, s.AppendEntry(ctx, e1))
	require.NoError(t, s.AppendEntry(ctx, e2))

	assert.Greater(t, e2.Seq, e1.Seq)

	last, err := s.LastBalance(ctx, engine.ModeCash)
	require.NoError(t, err)
	assert.True(t, last.Equal(d(70)))

	entries, err := s.LedgerEntries(ctx, engine.ModeCash, time.Time{}, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreditedAmount.Equal(d(100)))
	assert.True(t, entries[1].CreditedAmount.Equal(d(-30)))
}

func TestCompanyLedger_EmptyChainBalanceIsZero(t *testing.T) {
	s := newStore(t)

	last, err := s.LastBalance(context.Background(), engine.ModeOnline)

	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a unit that saves an entity and appends a ledger row, then fails
	// THEN: neither write survives

	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx engine.Tx) error {
		c := engine.NewCustomer(engine.EntityInfo{ID: "c1", Name: "Asha", Active: true}, d(100), d(0))
		if err := tx.SaveAccount(ctx, c); err != nil {
			return err
		}
		entry := &engine.CompanyEntry{Mode: engine.ModeCash, CreditedAmount: d(50), Balance: d(50), At: time.Now().UTC()}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindCustomer, ID: "c1"})
	require.ErrorIs(t, err, engine.ErrEntityNotFound)

	last, err := s.LastBalance(ctx, engine.ModeCash)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx engine.Tx) error {
		c := engine.NewCustomer(engine.EntityInfo{ID: "c1", Name: "Asha", Active: true}, d(100), d(0))
		return tx.SaveAccount(ctx, c)
	})
	require.NoError(t, err)

	got, err := s.GetAccount(ctx, engine.EntityRef{Kind: engine.KindCustomer, ID: "c1"})
	require.NoError(t, err)
	assert.True(t, got.(*engine.Customer).WalletBalance.Equal(d(100)))
}

// =============================================================================
// RECORDS
// =============================================================================

func TestTickets_RoundTripWithEffects(t *testing.T) {
	// The effect record must survive storage exactly; reversal depends on it.

	ctx := context.Background()
	s := newStore(t)

	tk := someTicket("t1", "2026/T/00001")
	require.NoError(t, s.PutTicket(ctx, tk))

	got, err := s.GetTicket(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, got.Effects.CustomerCompanyAdjusted)
	assert.Equal(t, engine.ModeCash, got.Effects.CustomerCompanyMode)
	assert.True(t, got.Effects.CustomerAmount.Equal(d(100)))
	assert.True(t, got.CustomerCharge.Equal(d(100)))
}

func TestTickets_DuplicateRefNoRejected(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.PutTicket(ctx, someTicket("t1", "2026/T/00001")))
	err := s.PutTicket(ctx, someTicket("t2", "2026/T/00001"))

	require.ErrorIs(t, err, engine.ErrDuplicateRefNo)
}

func TestTickets_DeleteMissing(t *testing.T) {
	s := newStore(t)

	err := s.DeleteTicket(context.Background(), "ghost")

	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestTransactions_RoundTripWithEffects(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	now := time.Now().UTC()
	debited := engine.EntityRef{Kind: engine.KindCustomer, ID: "c1"}
	tx := &engine.Transaction{
		ID:         "tx1",
		RefNo:      "2026/P/0001",
		Kind:       engine.TxPayment,
		EntityKind: engine.KindCustomer,
		EntityID:   "c1",
		PayType:    engine.PayCashWithdrawal,
		Mode:       engine.ModeCash,
		Amount:     d(40),
		Date:       now,
		Effects: engine.Effects{
			CompanyAdjusted:  true,
			CompanyMode:      engine.ModeCash,
			CompanyDirection: engine.DirectionOut,
			Debited:          &debited,
			Amount:           d(40),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.PutTransaction(ctx, tx))

	got, err := s.GetTransaction(ctx, "tx1")
	require.NoError(t, err)
	require.NotNil(t, got.Effects.Debited)
	assert.Equal(t, "c1", got.Effects.Debited.ID)
	assert.Equal(t, engine.DirectionOut, got.Effects.CompanyDirection)
	assert.True(t, got.Amount.Equal(d(40)))
}

func TestTransactions_ListFiltersByKindAndDate(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC()

	put := func(id, refNo string, kind engine.TransactionKind, date time.Time) {
		tx := &engine.Transaction{
			ID: id, RefNo: refNo, Kind: kind,
			Amount: d(10), Date: date,
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.PutTransaction(ctx, tx))
	}
	put("tx1", "2026/P/0001", engine.TxPayment, now)
	put("tx2", "2026/P/0002", engine.TxPayment, now.AddDate(0, 0, -30))
	put("tx3", "2026/R/0001", engine.TxReceipt, now)

	recent, err := s.ListTransactions(ctx, engine.TxPayment, now.AddDate(0, 0, -7), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "tx1", recent[0].ID)
}

// =============================================================================
// SEQUENCES
// =============================================================================

func TestNextSeq_ForwardOnlyPerPrefixYear(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	n1, err := s.NextSeq(ctx, "P", 2026)
	require.NoError(t, err)
	n2, err := s.NextSeq(ctx, "P", 2026)
	require.NoError(t, err)
	other, err := s.NextSeq(ctx, "T", 2026)
	require.NoError(t, err)
	lastYear, err := s.NextSeq(ctx, "P", 2025)
	require.NoError(t, err)

	assert.Equal(t, 1, n1)
	assert.Equal(t, 2, n2)
	assert.Equal(t, 1, other)
	assert.Equal(t, 1, lastYear)
}
