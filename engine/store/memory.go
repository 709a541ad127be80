// Package store provides the in-memory Store implementation used by tests.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/agency-ledger/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store entirely in memory. WithTx takes a deep
// snapshot of the whole state and restores it when fn fails, giving the same
// all-or-nothing semantics as the sqlite store.
type Memory struct {
	mu sync.Mutex
	st *state
}

type seqKey struct {
	Prefix string
	Year   int
}

type state struct {
	customers map[string]*engine.Customer
	agents    map[string]*engine.Agent
	partners  map[string]*engine.Partner

	transactions map[string]*engine.Transaction
	tickets      map[string]*engine.Ticket
	services     map[string]*engine.Service

	ledger  map[engine.Mode][]engine.CompanyEntry
	lastSeq int64

	seqs map[seqKey]int
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

func newState() *state {
	return &state{
		customers:    make(map[string]*engine.Customer),
		agents:       make(map[string]*engine.Agent),
		partners:     make(map[string]*engine.Partner),
		transactions: make(map[string]*engine.Transaction),
		tickets:      make(map[string]*engine.Ticket),
		services:     make(map[string]*engine.Service),
		ledger:       make(map[engine.Mode][]engine.CompanyEntry),
		seqs:         make(map[seqKey]int),
	}
}

func (m *Memory) Close() error { return nil }

// WithTx snapshots the state, runs fn, and restores the snapshot when fn
// returns an error.
func (m *Memory) WithTx(_ context.Context, fn func(engine.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.st.clone()
	if err := fn(m.st); err != nil {
		m.st = snap
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for id, v := range s.customers {
		cp := *v
		c.customers[id] = &cp
	}
	for id, v := range s.agents {
		cp := *v
		c.agents[id] = &cp
	}
	for id, v := range s.partners {
		cp := *v
		c.partners[id] = &cp
	}
	for id, v := range s.transactions {
		cp := *v
		c.transactions[id] = &cp
	}
	for id, v := range s.tickets {
		cp := *v
		c.tickets[id] = &cp
	}
	for id, v := range s.services {
		cp := *v
		c.services[id] = &cp
	}
	for mode, entries := range s.ledger {
		c.ledger[mode] = append([]engine.CompanyEntry(nil), entries...)
	}
	for k, v := range s.seqs {
		c.seqs[k] = v
	}
	c.lastSeq = s.lastSeq
	return c
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// GetAccount returns a copy; mutations only land via SaveAccount.
func (s *state) GetAccount(_ context.Context, ref engine.EntityRef) (engine.Account, error) {
	if ref.IsZero() {
		return nil, &engine.EntityNotFoundError{Entity: ref}
	}
	switch ref.Kind {
	case engine.KindCustomer:
		if c, ok := s.customers[ref.ID]; ok {
			cp := *c
			return &cp, nil
		}
	case engine.KindAgent:
		if a, ok := s.agents[ref.ID]; ok {
			cp := *a
			return &cp, nil
		}
	case engine.KindPartner:
		if p, ok := s.partners[ref.ID]; ok {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &engine.EntityNotFoundError{Entity: ref}
}

func (s *state) SaveAccount(_ context.Context, acct engine.Account) error {
	switch a := acct.(type) {
	case *engine.Customer:
		cp := *a
		s.customers[a.ID] = &cp
	case *engine.Agent:
		cp := *a
		s.agents[a.ID] = &cp
	case *engine.Partner:
		cp := *a
		s.partners[a.ID] = &cp
	}
	return nil
}

func (s *state) DeleteAccount(_ context.Context, ref engine.EntityRef) error {
	switch ref.Kind {
	case engine.KindCustomer:
		delete(s.customers, ref.ID)
	case engine.KindAgent:
		delete(s.agents, ref.ID)
	case engine.KindPartner:
		delete(s.partners, ref.ID)
	}
	return nil
}

func (s *state) ListCustomers(_ context.Context) ([]*engine.Customer, error) {
	out := make([]*engine.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) ListAgents(_ context.Context) ([]*engine.Agent, error) {
	out := make([]*engine.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) ListPartners(_ context.Context) ([]*engine.Partner, error) {
	out := make([]*engine.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// COMPANY STORE
// =============================================================================

func (s *state) LastBalance(_ context.Context, mode engine.Mode) (decimal.Decimal, error) {
	entries := s.ledger[mode]
	if len(entries) == 0 {
		return decimal.Zero, nil
	}
	return entries[len(entries)-1].Balance, nil
}

func (s *state) AppendEntry(_ context.Context, entry *engine.CompanyEntry) error {
	s.lastSeq++
	entry.Seq = s.lastSeq
	s.ledger[entry.Mode] = append(s.ledger[entry.Mode], *entry)
	return nil
}

func (s *state) LedgerEntries(_ context.Context, mode engine.Mode, from, to time.Time) ([]engine.CompanyEntry, error) {
	var out []engine.CompanyEntry
	for _, e := range s.ledger[mode] {
		if e.At.Before(from) || e.At.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

func (s *state) GetTransaction(_ context.Context, id string) (*engine.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *state) PutTransaction(_ context.Context, t *engine.Transaction) error {
	for id, existing := range s.transactions {
		if id != t.ID && existing.RefNo == t.RefNo {
			return engine.ErrDuplicateRefNo
		}
	}
	cp := *t
	s.transactions[t.ID] = &cp
	return nil
}

func (s *state) DeleteTransaction(_ context.Context, id string) error {
	if _, ok := s.transactions[id]; !ok {
		return engine.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *state) ListTransactions(_ context.Context, kind engine.TransactionKind, from, to time.Time) ([]engine.Transaction, error) {
	var out []engine.Transaction
	for _, t := range s.transactions {
		if t.Kind != kind || t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// =============================================================================
// TICKET / SERVICE STORES
// =============================================================================

func (s *state) GetTicket(_ context.Context, id string) (*engine.Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *state) PutTicket(_ context.Context, t *engine.Ticket) error {
	for id, existing := range s.tickets {
		if id != t.ID && existing.RefNo == t.RefNo {
			return engine.ErrDuplicateRefNo
		}
	}
	cp := *t
	s.tickets[t.ID] = &cp
	return nil
}

func (s *state) DeleteTicket(_ context.Context, id string) error {
	if _, ok := s.tickets[id]; !ok {
		return engine.ErrNotFound
	}
	delete(s.tickets, id)
	return nil
}

func (s *state) ListTickets(_ context.Context, status engine.Status, from, to time.Time) ([]engine.Ticket, error) {
	var out []engine.Ticket
	for _, t := range s.tickets {
		if status != "" && t.Status != status {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *state) GetService(_ context.Context, id string) (*engine.Service, error) {
	svc, ok := s.services[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

func (s *state) PutService(_ context.Context, svc *engine.Service) error {
	for id, existing := range s.services {
		if id != svc.ID && existing.RefNo == svc.RefNo {
			return engine.ErrDuplicateRefNo
		}
	}
	cp := *svc
	s.services[svc.ID] = &cp
	return nil
}

func (s *state) DeleteService(_ context.Context, id string) error {
	if _, ok := s.services[id]; !ok {
		return engine.ErrNotFound
	}
	delete(s.services, id)
	return nil
}

func (s *state) ListServices(_ context.Context, status engine.Status, from, to time.Time) ([]engine.Service, error) {
	var out []engine.Service
	for _, svc := range s.services {
		if status != "" && svc.Status != status {
			continue
		}
		if svc.Date.Before(from) || svc.Date.After(to) {
			continue
		}
		out = append(out, *svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// =============================================================================
// SEQUENCE STORE
// =============================================================================

func (s *state) NextSeq(_ context.Context, prefix string, year int) (int, error) {
	k := seqKey{Prefix: prefix, Year: year}
	s.seqs[k]++
	return s.seqs[k], nil
}

// =============================================================================
// DIRECT (NON-TRANSACTIONAL) ACCESS
// =============================================================================

// The Store-level methods delegate to the current state under the lock so
// read paths work without opening a unit of work.

func (m *Memory) GetAccount(ctx context.Context, ref engine.EntityRef) (engine.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetAccount(ctx, ref)
}

func (m *Memory) SaveAccount(ctx context.Context, acct engine.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveAccount(ctx, acct)
}

func (m *Memory) DeleteAccount(ctx context.Context, ref engine.EntityRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteAccount(ctx, ref)
}

func (m *Memory) ListCustomers(ctx context.Context) ([]*engine.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListCustomers(ctx)
}

func (m *Memory) ListAgents(ctx context.Context) ([]*engine.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListAgents(ctx)
}

func (m *Memory) ListPartners(ctx context.Context) ([]*engine.Partner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListPartners(ctx)
}

func (m *Memory) LastBalance(ctx context.Context, mode engine.Mode) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LastBalance(ctx, mode)
}

func (m *Memory) AppendEntry(ctx context.Context, entry *engine.CompanyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AppendEntry(ctx, entry)
}

func (m *Memory) LedgerEntries(ctx context.Context, mode engine.Mode, from, to time.Time) ([]engine.CompanyEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.LedgerEntries(ctx, mode, from, to)
}

func (m *Memory) GetTransaction(ctx context.Context, id string) (*engine.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetTransaction(ctx, id)
}

func (m *Memory) PutTransaction(ctx context.Context, t *engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PutTransaction(ctx, t)
}

func (m *Memory) DeleteTransaction(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteTransaction(ctx, id)
}

func (m *Memory) ListTransactions(ctx context.Context, kind engine.TransactionKind, from, to time.Time) ([]engine.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListTransactions(ctx, kind, from, to)
}

func (m *Memory) GetTicket(ctx context.Context, id string) (*engine.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetTicket(ctx, id)
}

func (m *Memory) PutTicket(ctx context.Context, t *engine.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PutTicket(ctx, t)
}

func (m *Memory) DeleteTicket(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteTicket(ctx, id)
}

func (m *Memory) ListTickets(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListTickets(ctx, status, from, to)
}

func (m *Memory) GetService(ctx context.Context, id string) (*engine.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.GetService(ctx, id)
}

func (m *Memory) PutService(ctx context.Context, svc *engine.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.PutService(ctx, svc)
}

func (m *Memory) DeleteService(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteService(ctx, id)
}

func (m *Memory) ListServices(ctx context.Context, status engine.Status, from, to time.Time) ([]engine.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.ListServices(ctx, status, from, to)
}

func (m *Memory) NextSeq(ctx context.Context, prefix string, year int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.NextSeq(ctx, prefix, year)
}
