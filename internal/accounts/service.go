package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Service is the account balance manager.
type Service struct {
	runner db.Runner
	reader Store
	bind   StoreFactory
	cache  *Cache
	logger *slog.Logger
}

// NewService wires the PostgreSQL stores on pool.
func NewService(runner db.Runner, pool db.Querier, cache *Cache, logger *slog.Logger) *Service {
	return NewServiceWithStores(runner, NewRepository(pool), NewRepository, cache, logger)
}

// NewServiceWithStores wires custom stores. reader serves reads outside a unit
// of work; bind produces stores for an open transaction.
func NewServiceWithStores(runner db.Runner, reader Store, bind StoreFactory, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, reader: reader, bind: bind, cache: cache, logger: logger}
}

// Bind returns a Store participating in the transaction behind q.
func (s *Service) Bind(q db.Querier) Store {
	return s.bind(q)
}

// Create opens an account with a zero balance.
func (s *Service) Create(ctx context.Context, req CreateAccountRequest) (Account, error) {
	in := req.normalize()
	acc, err := s.reader.Insert(ctx, in)
	if err != nil {
		return Account{}, shared.FromStore(err)
	}
	shared.LoggerFromContext(ctx, s.logger).Info("account created", slog.String("account_id", acc.ID.String()))
	return acc, nil
}

// Get returns an active account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.reader.FindActive(ctx, id)
}

// List returns active accounts, newest first.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.reader.ListActive(ctx)
}

// GetBalance returns the committed balance of an active account.
func (s *Service) GetBalance(ctx context.Context, id uuid.UUID) (Balance, error) {
	return s.cache.FetchBalance(ctx, id, func(ctx context.Context) (Balance, error) {
		acc, err := s.reader.FindActive(ctx, id)
		if err != nil {
			return Balance{}, err
		}
		return Balance{AccountID: acc.ID, Balance: acc.Balance}, nil
	})
}

// ApplyDelta moves the balance of id by delta through store, which must be
// bound to the caller's open transaction. A result below zero fails with
// ErrInsufficientFunds and a result above shared.MaxAmount with
// ErrInvalidAmount, both before anything is written.
func (s *Service) ApplyDelta(ctx context.Context, store Store, id uuid.UUID, delta decimal.Decimal) (Account, error) {
	acc, err := store.FindActive(ctx, id)
	if err != nil {
		return Account{}, err
	}

	next := acc.Balance.Add(delta)
	if next.IsNegative() {
		return Account{}, fmt.Errorf("account %s: %w", id, shared.ErrInsufficientFunds)
	}
	if next.GreaterThan(shared.MaxAmount) {
		return Account{}, fmt.Errorf("account %s: balance out of range: %w", id, shared.ErrInvalidAmount)
	}

	updated, err := store.SaveBalance(ctx, id, next.Round(2))
	if err != nil {
		return Account{}, err
	}
	shared.LoggerFromContext(ctx, s.logger).Debug("balance updated",
		slog.String("account_id", id.String()),
		slog.String("delta", delta.StringFixed(2)),
		slog.String("balance", updated.Balance.StringFixed(2)),
	)
	return updated, nil
}

// UpdateBalance applies delta in its own REPEATABLE READ unit of work.
func (s *Service) UpdateBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (Account, error) {
	acc, err := db.Run(ctx, s.runner, db.RepeatableRead, func(ctx context.Context, tx pgx.Tx) (Account, error) {
		return s.ApplyDelta(ctx, s.bind(tx), id, delta)
	})
	if err != nil {
		return Account{}, shared.FromStore(err)
	}
	s.InvalidateBalance(ctx, id)
	return acc, nil
}

// InvalidateBalance drops the cached balance after a committed mutation.
func (s *Service) InvalidateBalance(ctx context.Context, id uuid.UUID) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		shared.LoggerFromContext(ctx, s.logger).Warn("balance cache invalidate failed",
			slog.String("account_id", id.String()), slog.Any("error", err))
	}
}
