// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/loan-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[engine.LoanID][]engine.Transaction
	byID         map[engine.TransactionID]engine.Transaction
	withdrawn    map[engine.LoanID]map[engine.TransactionID]bool
	relations    map[engine.LoanID][]engine.Relation
	journal      map[engine.TransactionID][]engine.JournalEntry
	schedules    map[engine.LoanID][]engine.InstallmentPeriod
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[engine.LoanID][]engine.Transaction),
		byID:         make(map[engine.TransactionID]engine.Transaction),
		withdrawn:    make(map[engine.LoanID]map[engine.TransactionID]bool),
		relations:    make(map[engine.LoanID][]engine.Relation),
		journal:      make(map[engine.TransactionID][]engine.JournalEntry),
		schedules:    make(map[engine.LoanID][]engine.InstallmentPeriod),
	}
}

// AppendTransaction adds a single transaction. Append-only.
func (m *Memory) AppendTransaction(_ context.Context, tx engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(tx)
	return nil
}

func (m *Memory) appendLocked(tx engine.Transaction) {
	txs := m.transactions[tx.LoanID]

	// Binary search for the ordered insertion point.
	i := sort.Search(len(txs), func(i int) bool {
		return tx.OrderedBefore(txs[i])
	})
	txs = append(txs, engine.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[tx.LoanID] = txs
	m.byID[tx.ID] = tx
}

func (m *Memory) LoadTransactions(_ context.Context, loanID engine.LoanID) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Transaction, len(m.transactions[loanID]))
	copy(result, m.transactions[loanID])
	return result, nil
}

func (m *Memory) GetTransaction(_ context.Context, id engine.TransactionID) (engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.byID[id]
	if !ok {
		return engine.Transaction{}, engine.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *Memory) MarkWithdrawn(_ context.Context, loanID engine.LoanID, ids []engine.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markWithdrawnLocked(loanID, ids)
	return nil
}

func (m *Memory) markWithdrawnLocked(loanID engine.LoanID, ids []engine.TransactionID) {
	set := m.withdrawn[loanID]
	if set == nil {
		set = make(map[engine.TransactionID]bool)
		m.withdrawn[loanID] = set
	}
	for _, id := range ids {
		set[id] = true
	}
}

func (m *Memory) LoadWithdrawn(_ context.Context, loanID engine.LoanID) ([]engine.TransactionID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.TransactionID
	for id := range m.withdrawn[loanID] {
		out = append(out, id)
	}
	return out, nil
}

func (m *Memory) SaveRelations(_ context.Context, loanID engine.LoanID, rels []engine.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations[loanID] = append(m.relations[loanID], rels...)
	return nil
}

func (m *Memory) LoadRelations(_ context.Context, loanID engine.LoanID) ([]engine.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Relation, len(m.relations[loanID]))
	copy(result, m.relations[loanID])
	return result, nil
}

func (m *Memory) RelationsFor(_ context.Context, id engine.TransactionID) ([]engine.Relation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Relation
	for _, rels := range m.relations {
		for _, r := range rels {
			if r.From == id || r.To == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (m *Memory) ReplaceJournal(_ context.Context, loanID engine.LoanID, entries []engine.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceJournalLocked(entries)
	return nil
}

func (m *Memory) replaceJournalLocked(entries []engine.JournalEntry) {
	touched := make(map[engine.TransactionID]bool)
	for _, e := range entries {
		touched[e.TransactionID] = true
	}
	for id := range touched {
		m.journal[id] = nil
	}
	for _, e := range entries {
		m.journal[e.TransactionID] = append(m.journal[e.TransactionID], e)
	}
}

func (m *Memory) JournalFor(_ context.Context, id engine.TransactionID) ([]engine.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.JournalEntry, len(m.journal[id]))
	copy(result, m.journal[id])
	return result, nil
}

func (m *Memory) ReplaceSchedule(_ context.Context, loanID engine.LoanID, periods []engine.InstallmentPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[loanID] = append([]engine.InstallmentPeriod(nil), periods...)
	return nil
}

func (m *Memory) LoadSchedule(_ context.Context, loanID engine.LoanID) ([]engine.InstallmentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.InstallmentPeriod, len(m.schedules[loanID]))
	copy(result, m.schedules[loanID])
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot that is
// restored when fn fails.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	transactions map[engine.LoanID][]engine.Transaction
	byID         map[engine.TransactionID]engine.Transaction
	withdrawn    map[engine.LoanID]map[engine.TransactionID]bool
	relations    map[engine.LoanID][]engine.Relation
	journal      map[engine.TransactionID][]engine.JournalEntry
	schedules    map[engine.LoanID][]engine.InstallmentPeriod
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		transactions: make(map[engine.LoanID][]engine.Transaction, len(tm.transactions)),
		byID:         make(map[engine.TransactionID]engine.Transaction, len(tm.byID)),
		withdrawn:    make(map[engine.LoanID]map[engine.TransactionID]bool, len(tm.withdrawn)),
		relations:    make(map[engine.LoanID][]engine.Relation, len(tm.relations)),
		journal:      make(map[engine.TransactionID][]engine.JournalEntry, len(tm.journal)),
		schedules:    make(map[engine.LoanID][]engine.InstallmentPeriod, len(tm.schedules)),
	}
	for k, v := range tm.transactions {
		s.transactions[k] = append([]engine.Transaction(nil), v...)
	}
	for k, v := range tm.byID {
		s.byID[k] = v
	}
	for k, v := range tm.withdrawn {
		set := make(map[engine.TransactionID]bool, len(v))
		for id := range v {
			set[id] = true
		}
		s.withdrawn[k] = set
	}
	for k, v := range tm.relations {
		s.relations[k] = append([]engine.Relation(nil), v...)
	}
	for k, v := range tm.journal {
		s.journal[k] = append([]engine.JournalEntry(nil), v...)
	}
	for k, v := range tm.schedules {
		s.schedules[k] = append([]engine.InstallmentPeriod(nil), v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.byID = s.byID
	tm.withdrawn = s.withdrawn
	tm.relations = s.relations
	tm.journal = s.journal
	tm.schedules = s.schedules
}

// txMemoryView calls the locked internals directly; the parent holds the
// lock for the whole WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) AppendTransaction(_ context.Context, tx engine.Transaction) error {
	tv.parent.appendLocked(tx)
	return nil
}

func (tv *txMemoryView) LoadTransactions(_ context.Context, loanID engine.LoanID) ([]engine.Transaction, error) {
	return append([]engine.Transaction(nil), tv.parent.transactions[loanID]...), nil
}

func (tv *txMemoryView) GetTransaction(_ context.Context, id engine.TransactionID) (engine.Transaction, error) {
	tx, ok := tv.parent.byID[id]
	if !ok {
		return engine.Transaction{}, engine.ErrTransactionNotFound
	}
	return tx, nil
}

func (tv *txMemoryView) MarkWithdrawn(_ context.Context, loanID engine.LoanID, ids []engine.TransactionID) error {
	tv.parent.markWithdrawnLocked(loanID, ids)
	return nil
}

func (tv *txMemoryView) LoadWithdrawn(_ context.Context, loanID engine.LoanID) ([]engine.TransactionID, error) {
	var out []engine.TransactionID
	for id := range tv.parent.withdrawn[loanID] {
		out = append(out, id)
	}
	return out, nil
}

func (tv *txMemoryView) SaveRelations(_ context.Context, loanID engine.LoanID, rels []engine.Relation) error {
	tv.parent.relations[loanID] = append(tv.parent.relations[loanID], rels...)
	return nil
}

func (tv *txMemoryView) LoadRelations(_ context.Context, loanID engine.LoanID) ([]engine.Relation, error) {
	return append([]engine.Relation(nil), tv.parent.relations[loanID]...), nil
}

func (tv *txMemoryView) RelationsFor(_ context.Context, id engine.TransactionID) ([]engine.Relation, error) {
	var out []engine.Relation
	for _, rels := range tv.parent.relations {
		for _, r := range rels {
			if r.From == id || r.To == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (tv *txMemoryView) ReplaceJournal(_ context.Context, loanID engine.LoanID, entries []engine.JournalEntry) error {
	tv.parent.replaceJournalLocked(entries)
	return nil
}

func (tv *txMemoryView) JournalFor(_ context.Context, id engine.TransactionID) ([]engine.JournalEntry, error) {
	return append([]engine.JournalEntry(nil), tv.parent.journal[id]...), nil
}

func (tv *txMemoryView) ReplaceSchedule(_ context.Context, loanID engine.LoanID, periods []engine.InstallmentPeriod) error {
	tv.parent.schedules[loanID] = append([]engine.InstallmentPeriod(nil), periods...)
	return nil
}

func (tv *txMemoryView) LoadSchedule(_ context.Context, loanID engine.LoanID) ([]engine.InstallmentPeriod, error) {
	return append([]engine.InstallmentPeriod(nil), tv.parent.schedules[loanID]...), nil
}
