package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/db"
)

type versioned struct {
	acc     Account
	version int
}

// memoryLedger keeps committed rows and hands out staged transactions that
// commit with first-committer-wins conflict detection.
type memoryLedger struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]versioned
	clock     time.Time
	commits   int
	rollbacks int
	levels    []db.IsolationLevel
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		rows:  make(map[uuid.UUID]versioned),
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (l *memoryLedger) tick() time.Time {
	l.clock = l.clock.Add(time.Second)
	return l.clock
}

func (l *memoryLedger) seed(name string, balance string, active bool) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.tick()
	acc := Account{
		ID:        uuid.New(),
		Name:      name,
		Balance:   decimal.RequireFromString(balance),
		IsActive:  active,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	l.rows[acc.ID] = versioned{acc: acc}
	return acc
}

func (l *memoryLedger) committed(id uuid.UUID) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rows[id].acc
}

func (l *memoryLedger) Execute(ctx context.Context, level db.IsolationLevel, fn db.TxFunc) error {
	l.mu.Lock()
	l.levels = append(l.levels, level)
	l.mu.Unlock()

	tx := &memoryTx{ledger: l, snapshot: make(map[uuid.UUID]versioned), staged: make(map[uuid.UUID]Account)}
	if err := fn(ctx, tx); err != nil {
		l.mu.Lock()
		l.rollbacks++
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range tx.staged {
		if l.rows[id].version != tx.snapshot[id].version {
			l.rollbacks++
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
		}
	}
	for id, acc := range tx.staged {
		l.rows[id] = versioned{acc: acc, version: l.rows[id].version + 1}
	}
	l.commits++
	return nil
}

func (l *memoryLedger) reader() Store {
	return &memoryStore{ledger: l}
}

func (l *memoryLedger) bind(q db.Querier) Store {
	return &memoryStore{ledger: l, tx: q.(*memoryTx)}
}

type memoryTx struct {
	pgx.Tx
	ledger   *memoryLedger
	snapshot map[uuid.UUID]versioned
	staged   map[uuid.UUID]Account
}

type memoryStore struct {
	ledger *memoryLedger
	tx     *memoryTx
}

func (s *memoryStore) Insert(ctx context.Context, in NewAccount) (Account, error) {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	ts := s.ledger.tick()
	acc := Account{
		ID:          uuid.New(),
		Name:        in.Name,
		Balance:     decimal.Zero,
		Description: in.Description,
		IsActive:    true,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	s.ledger.rows[acc.ID] = versioned{acc: acc}
	return acc, nil
}

func (s *memoryStore) FindActive(ctx context.Context, id uuid.UUID) (Account, error) {
	if s.tx != nil {
		if acc, ok := s.tx.staged[id]; ok {
			return acc, nil
		}
		if row, ok := s.tx.snapshot[id]; ok {
			if !row.acc.IsActive {
				return Account{}, notFound(id)
			}
			return row.acc, nil
		}
	}
	s.ledger.mu.Lock()
	row, ok := s.ledger.rows[id]
	s.ledger.mu.Unlock()
	if !ok {
		return Account{}, notFound(id)
	}
	if s.tx != nil {
		s.tx.snapshot[id] = row
	}
	if !row.acc.IsActive {
		return Account{}, notFound(id)
	}
	return row.acc, nil
}

func (s *memoryStore) ListActive(ctx context.Context) ([]Account, error) {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	var out []Account
	for _, row := range s.ledger.rows {
		if row.acc.IsActive {
			out = append(out, row.acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryStore) SaveBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (Account, error) {
	acc, err := s.FindActive(ctx, id)
	if err != nil {
		return Account{}, err
	}
	acc.Balance = balance
	if s.tx == nil {
		s.ledger.mu.Lock()
		defer s.ledger.mu.Unlock()
		row := s.ledger.rows[id]
		s.ledger.rows[id] = versioned{acc: acc, version: row.version + 1}
		return acc, nil
	}
	s.tx.staged[id] = acc
	return acc, nil
}
