package transactions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounts"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type accountRow struct {
	acc     accounts.Account
	version int
}

// memoryLedger is an in-memory store with staged transactions. Commit applies
// staged rows atomically and fails with SQLSTATE 40001 when an account row
// changed after the transaction first read it.
type memoryLedger struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]accountRow
	txns      []Transaction
	keys      map[string]uuid.UUID
	clock     time.Time
	commits   int
	rollbacks int
	levels    []db.IsolationLevel

	// onFirstRead runs the first time a unit of work reads an account.
	onFirstRead func()
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts: make(map[uuid.UUID]accountRow),
		keys:     make(map[string]uuid.UUID),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (l *memoryLedger) tick() time.Time {
	l.clock = l.clock.Add(time.Second)
	return l.clock
}

func (l *memoryLedger) seedAccount(balance string, active bool) accounts.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.tick()
	acc := accounts.Account{
		ID:        uuid.New(),
		Name:      "A",
		Balance:   decimal.RequireFromString(balance),
		IsActive:  active,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	l.accounts[acc.ID] = accountRow{acc: acc}
	return acc
}

func (l *memoryLedger) balance(id uuid.UUID) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id].acc.Balance
}

func (l *memoryLedger) committedTxns(id uuid.UUID) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, t := range l.txns {
		if t.AccountID == id {
			out = append(out, t)
		}
	}
	return out
}

func (l *memoryLedger) Execute(ctx context.Context, level db.IsolationLevel, fn db.TxFunc) error {
	l.mu.Lock()
	l.levels = append(l.levels, level)
	l.mu.Unlock()

	tx := &memoryTx{
		ledger:   l,
		snapshot: make(map[uuid.UUID]accountRow),
		staged:   make(map[uuid.UUID]accounts.Account),
		keys:     make(map[string]uuid.UUID),
	}
	if err := fn(ctx, tx); err != nil {
		l.mu.Lock()
		l.rollbacks++
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range tx.staged {
		if l.accounts[id].version != tx.snapshot[id].version {
			l.rollbacks++
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
		}
	}
	for key := range tx.keys {
		if _, taken := l.keys[key]; taken {
			l.rollbacks++
			return shared.ErrIdempotencyConflict
		}
	}
	for id, acc := range tx.staged {
		l.accounts[id] = accountRow{acc: acc, version: l.accounts[id].version + 1}
	}
	for key, ref := range tx.keys {
		l.keys[key] = ref
	}
	l.txns = append(l.txns, tx.txns...)
	l.commits++
	return nil
}

type memoryTx struct {
	pgx.Tx
	ledger   *memoryLedger
	snapshot map[uuid.UUID]accountRow
	staged   map[uuid.UUID]accounts.Account
	txns     []Transaction
	keys     map[string]uuid.UUID
	readOnce bool
}

func (l *memoryLedger) accountReader() accounts.Store {
	return &memoryAccounts{ledger: l}
}

func (l *memoryLedger) bindAccounts(q db.Querier) accounts.Store {
	return &memoryAccounts{ledger: l, tx: q.(*memoryTx)}
}

func (l *memoryLedger) txReader() Store {
	return &memoryTxns{ledger: l}
}

func (l *memoryLedger) bindTxns(q db.Querier) Store {
	return &memoryTxns{ledger: l, tx: q.(*memoryTx)}
}

func (l *memoryLedger) bindClaims(q db.Querier) Claimer {
	return &memoryClaims{ledger: l, tx: q.(*memoryTx)}
}

type memoryAccounts struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (s *memoryAccounts) Insert(ctx context.Context, in accounts.NewAccount) (accounts.Account, error) {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	ts := s.ledger.tick()
	acc := accounts.Account{ID: uuid.New(), Name: in.Name, Description: in.Description, IsActive: true, CreatedAt: ts, UpdatedAt: ts}
	s.ledger.accounts[acc.ID] = accountRow{acc: acc}
	return acc, nil
}

func (s *memoryAccounts) FindActive(ctx context.Context, id uuid.UUID) (accounts.Account, error) {
	if s.tx != nil {
		if acc, ok := s.tx.staged[id]; ok {
			return acc, nil
		}
		if row, ok := s.tx.snapshot[id]; ok {
			return activeOrMissing(row.acc, id)
		}
	}
	s.ledger.mu.Lock()
	row, ok := s.ledger.accounts[id]
	hook := s.ledger.onFirstRead
	s.ledger.mu.Unlock()
	if s.tx != nil {
		s.tx.snapshot[id] = row
		if !s.tx.readOnce {
			s.tx.readOnce = true
			if hook != nil {
				hook()
			}
		}
	}
	if !ok {
		return accounts.Account{}, missing(id)
	}
	return activeOrMissing(row.acc, id)
}

func (s *memoryAccounts) ListActive(ctx context.Context) ([]accounts.Account, error) {
	return nil, nil
}

func (s *memoryAccounts) SaveBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (accounts.Account, error) {
	acc, err := s.FindActive(ctx, id)
	if err != nil {
		return accounts.Account{}, err
	}
	acc.Balance = balance
	s.tx.staged[id] = acc
	return acc, nil
}

func activeOrMissing(acc accounts.Account, id uuid.UUID) (accounts.Account, error) {
	if !acc.IsActive {
		return accounts.Account{}, missing(id)
	}
	return acc, nil
}

func missing(id uuid.UUID) error {
	return &notFoundError{id: id}
}

type notFoundError struct {
	id uuid.UUID
}

func (e *notFoundError) Error() string {
	return "account with ID " + e.id.String() + " not found"
}

func (e *notFoundError) Unwrap() error {
	return shared.ErrNotFound
}

type memoryTxns struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (s *memoryTxns) Insert(ctx context.Context, in NewTransaction) (Transaction, error) {
	s.ledger.mu.Lock()
	ts := s.ledger.tick()
	s.ledger.mu.Unlock()
	txn := Transaction{
		ID:          uuid.New(),
		Type:        in.Type,
		Amount:      in.Amount,
		Description: in.Description,
		AccountID:   in.AccountID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.tx.txns = append(s.tx.txns, txn)
	return txn, nil
}

func (s *memoryTxns) ListByAccount(ctx context.Context, accountID uuid.UUID, page shared.PageRequest) ([]Transaction, int, error) {
	all := s.ledger.committedTxns(accountID)
	desc := page.SortOrder != shared.SortAsc
	col := sortColumn(page.SortBy)
	less := func(a, b Transaction) bool {
		if col == "amount" {
			return a.Amount.LessThan(b.Amount)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if desc {
			return less(all[j], all[i])
		}
		return less(all[i], all[j])
	})
	total := len(all)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

type memoryClaims struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (c *memoryClaims) Claim(ctx context.Context, module, key string, ref uuid.UUID) error {
	full := module + ":" + key
	c.ledger.mu.Lock()
	_, taken := c.ledger.keys[full]
	c.ledger.mu.Unlock()
	if taken {
		return shared.ErrIdempotencyConflict
	}
	if _, dup := c.tx.keys[full]; dup {
		return shared.ErrIdempotencyConflict
	}
	c.tx.keys[full] = ref
	return nil
}
