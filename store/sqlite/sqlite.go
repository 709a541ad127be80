/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists balance entities, transaction/booking records, the company
  ledger chains and the reference sequence allocator in one database file.
  Use ":memory:" for tests.

KEY TABLES:
  customers/agents/partners: balance entities, money columns stored as
                             decimal strings
  transactions:              standalone transactions, effect record as JSON
  tickets/services:          booking records, effect record as JSON
  company_ledger:            append-only; seq is the chain order, never
                             updated or deleted
  ref_sequences:             forward-only (prefix, year) counters

CONCURRENCY:
  The database is opened with WAL and _txlock=immediate, so every unit of
  work takes the write lock up front. That serializes "read last balance,
  append next row" across concurrent units; within a unit the ledger chain
  invariant holds by construction.

SEE ALSO:
  - engine/store.go: the interfaces implemented here
  - engine/store/memory.go: the in-memory counterpart for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

// Store implements engine.Store on SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New opens (and migrates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Each pool connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn in one database transaction. The immediate tx lock makes
// concurrent units of work queue instead of interleave.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact TEXT,
		email TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		wallet_balance TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		credit_used TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact TEXT,
		email TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		wallet_balance TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		credit_balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact TEXT,
		email TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		wallet_balance TEXT NOT NULL,
		allow_negative_wallet INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		ref_no TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		entity_kind TEXT,
		entity_id TEXT,
		pay_type TEXT,
		mode TEXT,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT,
		particular TEXT,
		refund_direction TEXT,
		deduct_from_account INTEGER NOT NULL DEFAULT 0,
		credit_to_account INTEGER NOT NULL DEFAULT 0,
		from_kind TEXT,
		from_id TEXT,
		to_kind TEXT,
		to_id TEXT,
		mode_for_from TEXT,
		mode_for_to TEXT,
		effects_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind_date ON transactions(kind, date);

	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		ref_no TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		agent_id TEXT,
		particular TEXT,
		travel_location TEXT,
		passenger TEXT,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		customer_charge TEXT NOT NULL,
		agent_paid TEXT NOT NULL,
		profit TEXT NOT NULL,
		customer_payment_mode TEXT NOT NULL,
		agent_payment_mode TEXT,
		customer_refund_amount TEXT NOT NULL,
		customer_refund_mode TEXT,
		agent_recovery_amount TEXT NOT NULL,
		agent_recovery_mode TEXT,
		effects_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status_date ON tickets(status, date);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		ref_no TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		particular TEXT,
		status TEXT NOT NULL,
		date TEXT NOT NULL,
		customer_charge TEXT NOT NULL,
		customer_payment_mode TEXT NOT NULL,
		customer_refund_amount TEXT NOT NULL,
		customer_refund_mode TEXT,
		effects_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_services_status_date ON services(status, date);

	-- Append-only. No UPDATE or DELETE is ever issued against this table;
	-- corrections are compensating rows.
	CREATE TABLE IF NOT EXISTS company_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		mode TEXT NOT NULL,
		credited_amount TEXT NOT NULL,
		balance TEXT NOT NULL,
		ref_no TEXT,
		transaction_type TEXT,
		action TEXT,
		updated_by TEXT,
		at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_company_ledger_mode ON company_ledger(mode, seq);

	CREATE TABLE IF NOT EXISTS ref_sequences (
		prefix TEXT NOT NULL,
		year INTEGER NOT NULL,
		next INTEGER NOT NULL,
		PRIMARY KEY (prefix, year)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES - engine.Tx over either *sql.DB or *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (q *queries) GetAccount(ctx context.Context, ref engine.EntityRef) (engine.Account, error) {
	if ref.IsZero() {
		return nil, &engine.EntityNotFoundError{Entity: ref}
	}
	switch ref.Kind {
	case engine.KindCustomer:
		var c engine.Customer
		var wallet, limit, used string
		err := q.db.QueryRowContext(ctx,
			"SELECT id, name, contact, email, active, wallet_balance, credit_limit, credit_used FROM customers WHERE id = ?",
			ref.ID,
		).Scan(&c.ID, &c.Name, &c.Contact, &c.Email, &c.Active, &wallet, &limit, &used)
		if err == sql.ErrNoRows {
			return nil, &engine.EntityNotFoundError{Entity: ref}
		}
		if err != nil {
			return nil, err
		}
		c.WalletBalance, c.CreditLimit, c.CreditUsed = dec(wallet), dec(limit), dec(used)
		return &c, nil

	case engine.KindAgent:
		var a engine.Agent
		var wallet, limit, balance string
		err := q.db.QueryRowContext(ctx,
			"SELECT id, name, contact, email, active, wallet_balance, credit_limit, credit_balance FROM agents WHERE id = ?",
			ref.ID,
		).Scan(&a.ID, &a.Name, &a.Contact, &a.Email, &a.Active, &wallet, &limit, &balance)
		if err == sql.ErrNoRows {
			return nil, &engine.EntityNotFoundError{Entity: ref}
		}
		if err != nil {
			return nil, err
		}
		a.WalletBalance, a.CreditLimit, a.CreditBalance = dec(wallet), dec(limit), dec(balance)
		return &a, nil

	case engine.KindPartner:
		var p engine.Partner
		var wallet string
		err := q.db.QueryRowContext(ctx,
			"SELECT id, name, contact, email, active, wallet_balance, allow_negative_wallet FROM partners WHERE id = ?",
			ref.ID,
		).Scan(&p.ID, &p.Name, &p.Contact, &p.Email, &p.Active, &wallet, &p.AllowNegativeWallet)
		if err == sql.ErrNoRows {
			return nil, &engine.EntityNotFoundError{Entity: ref}
		}
		if err != nil {
			return nil, err
		}
		p.WalletBalance = dec(wallet)
		return &p, nil
	}
	return nil, &engine.EntityNotFoundError{Entity: ref}
}

func (q *queries) SaveAccount(ctx context.Context, acct engine.Account) error {
	switch a := acct.(type) {
	case *engine.Customer:
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO customers (id, name, contact, email, active, wallet_balance, credit_limit, credit_used)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				contact = excluded.contact,
				email = excluded.email,
				active = excluded.active,
				wallet_balance = excluded.wallet_balance,
				credit_limit = excluded.credit_limit,
				credit_used = excluded.credit_used`,
			a.ID, a.Name, a.Contact, a.Email, a.Active,
			a.WalletBalance.String(), a.CreditLimit.String(), a.CreditUsed.String(),
		)
		return err
	case *engine.Agent:
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO agents (id, name, contact, email, active, wallet_balance, credit_limit, credit_balance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				contact = excluded.contact,
				email = excluded.email,
				active = excluded.active,
				wallet_balance = excluded.wallet_balance,
				credit_limit = excluded.credit_limit,
				credit_balance = excluded.credit_balance`,
			a.ID, a.Name, a.Contact, a.Email, a.Active,
			a.WalletBalance.String(), a.CreditLimit.String(), a.CreditBalance.String(),
		)
		return err
	case *engine.Partner:
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO partners (id, name, contact, email, active, wallet_balance, allow_negative_wallet)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				contact = excluded.contact,
				email = excluded.email,
				active = excluded.active,
				wallet_balance = excluded.wallet_balance,
				allow_negative_wallet = excluded.allow_negative_wallet`,
			a.ID, a.Name, a.Contact, a.Email, a.Active,
			a.WalletBalance.String(), a.AllowNegativeWallet,
		)
		return err
	}
	return fmt.Errorf("unknown account type %T", acct)
}

func (q *queries) DeleteAccount(ctx context.Context, ref engine.EntityRef) error {
	var table string
	switch ref.Kind {
	case engine.KindCustomer:
		table = "customers"
	case engine.KindAgent:
		table = "agents"
	case engine.KindPartner:
		table = "partners"
	default:
		return &engine.EntityNotFoundError{Entity: ref}
	}
	_, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", ref.ID)
	return err
}

func (q *queries) ListCustomers(ctx context.Context) ([]*engine.Customer, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, contact, email, active, wallet_balance, credit_limit, credit_used FROM customers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Customer
	for rows.Next() {
		var c engine.Customer
		var wallet, limit, used string
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Email, &c.Active, &wallet, &limit, &used); err != nil {
			return nil, err
		}
		c.WalletBalance, c.CreditLimit, c.CreditUsed = dec(wallet), dec(limit), dec(used)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (q *queries) ListAgents(ctx context.Context) ([]*engine.Agent, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, contact, email, active, wallet_balance, credit_limit, credit_balance FROM agents ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Agent
	for rows.Next() {
		var a engine.Agent
		var wallet, limit, balance string
		if err := rows.Scan(&a.ID, &a.Name, &a.Contact, &a.Email, &a.Active, &wallet, &limit, &balance); err != nil {
			return nil, err
		}
		a.WalletBalance, a.CreditLimit, a.CreditBalance = dec(wallet), dec(limit), dec(balance)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (q *queries) ListPartners(ctx context.Context) ([]*engine.Partner, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, contact, email, active, wallet_balance, allow_negative_wallet FROM partners ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Partner
	for rows.Next() {
		var p engine.Partner
		var wallet string
		if err := rows.Scan(&p.ID, &p.Name, &p.Contact, &p.Email, &p.Active, &wallet, &p.AllowNegativeWallet); err != nil {
			return nil, err
		}
		p.WalletBalance = dec(wallet)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// =============================================================================
// COMPANY STORE
// =============================================================================

func (q *queries) LastBalance(ctx context.Context, mode engine.Mode) (decimal.Decimal, error) {
	var balance string
	err := q.db.QueryRowContext(ctx,
		"SELECT balance FROM company_ledger WHERE mode = ? ORDER BY seq DESC LIMIT 1", mode,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return dec(balance), nil
}

func (q *queries) AppendEntry(ctx context.Context, entry *engine.CompanyEntry) error {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO company_ledger (mode, credited_amount, balance, ref_no, transaction_type, action, updated_by, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Mode, entry.CreditedAmount.String(), entry.Balance.String(),
		entry.RefNo, entry.TransactionType, entry.Action, entry.UpdatedBy,
		entry.At.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	entry.Seq, err = res.LastInsertId()
	return err
}

func (q *queries) LedgerEntries(ctx context.Context, mode engine.Mode, from, to time.Time) ([]engine.CompanyEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, mode, credited_amount, balance, ref_no, transaction_type, action, updated_by, at
		FROM company_ledger
		WHERE mode = ? AND at >= ? AND at <= ?
		ORDER BY seq ASC`,
		mode, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.CompanyEntry
	for rows.Next() {
		var e engine.CompanyEntry
		var credited, balance, at string
		var refNo, txType, action, updatedBy sql.NullString
		if err := rows.Scan(&e.Seq, &e.Mode, &credited, &balance, &refNo, &txType, &action, &updatedBy, &at); err != nil {
			return nil, err
		}
		e.CreditedAmount, e.Balance = dec(credited), dec(balance)
		e.RefNo, e.TransactionType = refNo.String, txType.String
		e.Action = engine.Action(action.String)
		e.UpdatedBy = updatedBy.String
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const txColumns = `id, ref_no, kind, entity_kind, entity_id, pay_type, mode, amount, date,
	description, particular, refund_direction, deduct_from_account, credit_to_account,
	from_kind, from_id, to_kind, to_id, mode_for_from, mode_for_to,
	effects_json, created_at, updated_at, updated_by`

func (q *queries) GetTransaction(ctx context.Context, id string) (*engine.Transaction, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+txColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	return t, err
}

func (q *queries) PutTransaction(ctx context.Context, t *engine.Transaction) error {
	effects, err := json.Marshal(t.Effects)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			entity_kind = excluded.entity_kind,
			entity_id = excluded.entity_id,
			pay_type = excluded.pay_type,
			mode = excluded.mode,
			amount = excluded.amount,
			date = excluded.date,
			description = excluded.description,
			particular = excluded.particular,
			refund_direction = excluded.refund_direction,
			deduct_from_account = excluded.deduct_from_account,
			credit_to_account = excluded.credit_to_account,
			from_kind = excluded.from_kind,
			from_id = excluded.from_id,
			to_kind = excluded.to_kind,
			to_id = excluded.to_id,
			mode_for_from = excluded.mode_for_from,
			mode_for_to = excluded.mode_for_to,
			effects_json = excluded.effects_json,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		t.ID, t.RefNo, t.Kind, t.EntityKind, t.EntityID, t.PayType, t.Mode,
		t.Amount.String(), t.Date.Format(time.RFC3339Nano),
		t.Description, t.Particular, t.RefundDirection, t.DeductFromAccount, t.CreditToAccount,
		t.From.Kind, t.From.ID, t.To.Kind, t.To.ID, t.ModeForFrom, t.ModeForTo,
		string(effects), t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano), t.UpdatedBy,
	)
	if isUniqueRefNoError(err) {
		return engine.ErrDuplicateRefNo
	}
	return err
}

func (q *queries) DeleteTransaction(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (q *queries) ListTransactions(ctx context.Context, kind engine.TransactionKind, from, to time.Time) ([]engine.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE kind = ? AND date >= ? AND date <= ?
		ORDER BY date DESC, created_at DESC`,
		kind, from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*engine.Transaction, error) {
	var t engine.Transaction
	var amount, date, effects, createdAt, updatedAt string
	var entityKind, entityID, payType, mode, description, particular sql.NullString
	var refundDir, fromKind, fromID, toKind, toID, modeForFrom, modeForTo, updatedBy sql.NullString

	err := row.Scan(
		&t.ID, &t.RefNo, &t.Kind, &entityKind, &entityID, &payType, &mode, &amount, &date,
		&description, &particular, &refundDir, &t.DeductFromAccount, &t.CreditToAccount,
		&fromKind, &fromID, &toKind, &toID, &modeForFrom, &modeForTo,
		&effects, &createdAt, &updatedAt, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	t.EntityKind = engine.Kind(entityKind.String)
	t.EntityID = entityID.String
	t.PayType = engine.PayType(payType.String)
	t.Mode = engine.Mode(mode.String)
	t.Amount = dec(amount)
	t.Date, _ = time.Parse(time.RFC3339Nano, date)
	t.Description = description.String
	t.Particular = particular.String
	t.RefundDirection = engine.RefundDirection(refundDir.String)
	t.From = engine.EntityRef{Kind: engine.Kind(fromKind.String), ID: fromID.String}
	t.To = engine.EntityRef{Kind: engine.Kind(toKind.String), ID: toID.String}
	t.ModeForFrom = engine.Mode(modeForFrom.String)
	t.ModeForTo = engine.Mode(modeForTo.String)
	t.UpdatedBy = updatedBy.String
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(effects), &t.Effects); err != nil {
		return nil, fmt.Errorf("failed to decode effects for %s: %w", t.ID, err)
	}
	return &t, nil
}

// =============================================================================
// TICKET STORE
// =============================================================================

const ticketColumns = `id, ref_no, customer_id, agent_id, particular, travel_location, passenger,
	status, date, customer_charge, agent_paid, profit, customer_payment_mode, agent_payment_mode,
	customer_refund_amount, customer_refund_mode, agent_recovery_amount, agent_recovery_mode,
	effects_json, created_at, updated_at, updated_by`

func (q *queries) GetTicket(ctx context.Context, id string) (*engine.Ticket, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	return t, err
}

func (q *queries) PutTicket(ctx context.Context, t *engine.Ticket) error {
	effects, err := json.Marshal(t.Effects)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			agent_id = excluded.agent_id,
			particular = excluded.particular,
			travel_location = excluded.travel_location,
			passenger = excluded.passenger,
			status = excluded.status,
			date = excluded.date,
			customer_charge = excluded.customer_charge,
			agent_paid = excluded.agent_paid,
			profit = excluded.profit,
			customer_payment_mode = excluded.customer_payment_mode,
			agent_payment_mode = excluded.agent_payment_mode,
			customer_refund_amount = excluded.customer_refund_amount,
			customer_refund_mode = excluded.customer_refund_mode,
			agent_recovery_amount = excluded.agent_recovery_amount,
			agent_recovery_mode = excluded.agent_recovery_mode,
			effects_json = excluded.effects_json,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		t.ID, t.RefNo, t.CustomerID, t.AgentID, t.Particular, t.TravelLocation, t.Passenger,
		t.Status, t.Date.Format(time.RFC3339Nano),
		t.CustomerCharge.String(), t.AgentPaid.String(), t.Profit.String(),
		t.CustomerPaymentMode, t.AgentPaymentMode,
		t.CustomerRefundAmount.String(), t.CustomerRefundMode,
		t.AgentRecoveryAmount.String(), t.AgentRecoveryMode,
		string(effects), t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano), t.UpdatedBy,
	)
	if isUniqueRefNoError(err) {
		return engine.ErrDuplicateRefNo
	}
	return err
}

func (q *queries) DeleteTicket(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM tickets WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (q *queries) ListTickets(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE date >= ? AND date <= ?"
	args := []any{from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano)}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTicket(row rowScanner) (*engine.Ticket, error) {
	var t engine.Ticket
	var date, charge, paid, profit, refund, recovery, effects, createdAt, updatedAt string
	var agentID, particular, travelLocation, passenger sql.NullString
	var agentMode, refundMode, recoveryMode, updatedBy sql.NullString

	err := row.Scan(
		&t.ID, &t.RefNo, &t.CustomerID, &agentID, &particular, &travelLocation, &passenger,
		&t.Status, &date, &charge, &paid, &profit, &t.CustomerPaymentMode, &agentMode,
		&refund, &refundMode, &recovery, &recoveryMode,
		&effects, &createdAt, &updatedAt, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	t.AgentID = agentID.String
	t.Particular = particular.String
	t.TravelLocation = travelLocation.String
	t.Passenger = passenger.String
	t.Date, _ = time.Parse(time.RFC3339Nano, date)
	t.CustomerCharge, t.AgentPaid, t.Profit = dec(charge), dec(paid), dec(profit)
	t.AgentPaymentMode = engine.Mode(agentMode.String)
	t.CustomerRefundAmount, t.AgentRecoveryAmount = dec(refund), dec(recovery)
	t.CustomerRefundMode = engine.Mode(refundMode.String)
	t.AgentRecoveryMode = engine.Mode(recoveryMode.String)
	t.UpdatedBy = updatedBy.String
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(effects), &t.Effects); err != nil {
		return nil, fmt.Errorf("failed to decode effects for %s: %w", t.ID, err)
	}
	return &t, nil
}

// =============================================================================
// SERVICE STORE
// =============================================================================

const serviceColumns = `id, ref_no, customer_id, particular, status, date,
	customer_charge, customer_payment_mode, customer_refund_amount, customer_refund_mode,
	effects_json, created_at, updated_at, updated_by`

func (q *queries) GetService(ctx context.Context, id string) (*engine.Service, error) {
	row := q.db.QueryRowContext(ctx, "SELECT "+serviceColumns+" FROM services WHERE id = ?", id)
	s, err := scanService(row)
	if err == sql.ErrNoRows {
		return nil, engine.ErrNotFound
	}
	return s, err
}

func (q *queries) PutService(ctx context.Context, s *engine.Service) error {
	effects, err := json.Marshal(s.Effects)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			particular = excluded.particular,
			status = excluded.status,
			date = excluded.date,
			customer_charge = excluded.customer_charge,
			customer_payment_mode = excluded.customer_payment_mode,
			customer_refund_amount = excluded.customer_refund_amount,
			customer_refund_mode = excluded.customer_refund_mode,
			effects_json = excluded.effects_json,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		s.ID, s.RefNo, s.CustomerID, s.Particular, s.Status, s.Date.Format(time.RFC3339Nano),
		s.CustomerCharge.String(), s.CustomerPaymentMode,
		s.CustomerRefundAmount.String(), s.CustomerRefundMode,
		string(effects), s.CreatedAt.Format(time.RFC3339Nano), s.UpdatedAt.Format(time.RFC3339Nano), s.UpdatedBy,
	)
	if isUniqueRefNoError(err) {
		return engine.ErrDuplicateRefNo
	}
	return err
}

func (q *queries) DeleteService(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM services WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

func (q *queries) ListServices(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Service, error) {
	query := "SELECT " + serviceColumns + " FROM services WHERE date >= ? AND date <= ?"
	args := []any{from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano)}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY date DESC, created_at DESC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanService(row rowScanner) (*engine.Service, error) {
	var s engine.Service
	var date, charge, refund, effects, createdAt, updatedAt string
	var particular, refundMode, updatedBy sql.NullString

	err := row.Scan(
		&s.ID, &s.RefNo, &s.CustomerID, &particular, &s.Status, &date,
		&charge, &s.CustomerPaymentMode, &refund, &refundMode,
		&effects, &createdAt, &updatedAt, &updatedBy,
	)
	if err != nil {
		return nil, err
	}

	s.Particular = particular.String
	s.Date, _ = time.Parse(time.RFC3339Nano, date)
	s.CustomerCharge, s.CustomerRefundAmount = dec(charge), dec(refund)
	s.CustomerRefundMode = engine.Mode(refundMode.String)
	s.UpdatedBy = updatedBy.String
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if err := json.Unmarshal([]byte(effects), &s.Effects); err != nil {
		return nil, fmt.Errorf("failed to decode effects for %s: %w", s.ID, err)
	}
	return &s, nil
}

// =============================================================================
// SEQUENCE STORE
// =============================================================================

func (q *queries) NextSeq(ctx context.Context, prefix string, year int) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO ref_sequences (prefix, year, next) VALUES (?, ?, 1)
		ON CONFLICT(prefix, year) DO UPDATE SET next = next + 1
		RETURNING next`,
		prefix, year,
	).Scan(&n)
	return n, err
}

// =============================================================================
// HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func isUniqueRefNoError(err error) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), "ref_no")
}
