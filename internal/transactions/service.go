package transactions

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledger/internal/accounts"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

const idempotencyModule = "transactions"

// Posting outcomes reported to the observer.
const (
	OutcomeCommitted         = "committed"
	OutcomeInvalidAmount     = "invalid_amount"
	OutcomeNotFound          = "not_found"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeAborted           = "aborted"
	OutcomeDuplicate         = "duplicate"
	OutcomeError             = "error"
)

// Claimer reserves an idempotency key inside the caller's transaction.
type Claimer interface {
	Claim(ctx context.Context, module, key string, ref uuid.UUID) error
}

// ClaimerFactory binds a Claimer to an open transaction.
type ClaimerFactory func(q db.Querier) Claimer

// PostgresClaims binds the idempotency_keys table to q.
func PostgresClaims(q db.Querier) Claimer {
	return shared.NewIdempotencyStore(q)
}

// PostingObserver receives one call per deposit or withdrawal attempt.
type PostingObserver interface {
	ObservePosting(txType, outcome string)
}

// Service orchestrates postings: every deposit and withdrawal verifies the
// account, records the transaction and moves the balance in one REPEATABLE
// READ unit of work.
type Service struct {
	runner   db.Runner
	accounts *accounts.Service
	reader   Store
	bind     StoreFactory
	claims   ClaimerFactory
	observer PostingObserver
	logger   *slog.Logger
}

// NewService wires the PostgreSQL store on pool.
func NewService(runner db.Runner, pool db.Querier, accts *accounts.Service, logger *slog.Logger) *Service {
	return NewServiceWithStores(runner, accts, NewRepository(pool), NewRepository, logger)
}

// NewServiceWithStores wires custom stores.
func NewServiceWithStores(runner db.Runner, accts *accounts.Service, reader Store, bind StoreFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, accounts: accts, reader: reader, bind: bind, logger: logger}
}

// WithIdempotency enables Idempotency-Key handling.
func (s *Service) WithIdempotency(claims ClaimerFactory) {
	s.claims = claims
}

// WithObserver installs a posting observer.
func (s *Service) WithObserver(observer PostingObserver) {
	s.observer = observer
}

// Deposit credits amount to the account.
func (s *Service) Deposit(ctx context.Context, in Posting) (Transaction, error) {
	return s.post(ctx, TypeDeposit, in)
}

// Withdraw debits amount from the account.
func (s *Service) Withdraw(ctx context.Context, in Posting) (Transaction, error) {
	return s.post(ctx, TypeWithdrawal, in)
}

func (s *Service) post(ctx context.Context, typ Type, in Posting) (Transaction, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		s.observe(typ, OutcomeInvalidAmount)
		return Transaction{}, err
	}
	amount := in.Amount.Round(2)
	logger := shared.LoggerFromContext(ctx, s.logger).With(
		slog.String("account_id", in.AccountID.String()),
		slog.String("type", string(typ)),
		slog.String("amount", amount.StringFixed(2)),
	)
	logger.Debug("posting started", slog.String("isolation", db.RepeatableRead.String()))

	txn, err := db.Run(ctx, s.runner, db.RepeatableRead, func(ctx context.Context, tx pgx.Tx) (Transaction, error) {
		accts := s.accounts.Bind(tx)

		if _, err := accts.FindActive(ctx, in.AccountID); err != nil {
			return Transaction{}, err
		}

		rec, err := s.bind(tx).Insert(ctx, NewTransaction{
			Type:        typ,
			Amount:      amount,
			Description: in.Description,
			AccountID:   in.AccountID,
		})
		if err != nil {
			return Transaction{}, err
		}
		logger.Debug("transaction recorded", slog.String("transaction_id", rec.ID.String()))

		if in.IdempotencyKey != "" && s.claims != nil {
			if err := s.claims(tx).Claim(ctx, idempotencyModule, in.IdempotencyKey, rec.ID); err != nil {
				return Transaction{}, err
			}
		}

		if _, err := s.accounts.ApplyDelta(ctx, accts, in.AccountID, typ.Signed(amount)); err != nil {
			logger.Warn("balance update failed", slog.Any("error", err))
			return Transaction{}, err
		}
		return rec, nil
	})
	if err != nil {
		err = shared.FromStore(err)
		s.observe(typ, outcomeOf(err))
		return Transaction{}, err
	}

	s.accounts.InvalidateBalance(ctx, in.AccountID)
	s.observe(typ, OutcomeCommitted)
	logger.Debug("posting committed", slog.String("transaction_id", txn.ID.String()))
	return txn, nil
}

// FindByAccountID lists an account's transactions, newest first unless the
// request says otherwise.
func (s *Service) FindByAccountID(ctx context.Context, accountID uuid.UUID, page shared.PageRequest) (shared.Page[Transaction], error) {
	page = page.Normalize()
	items, total, err := s.reader.ListByAccount(ctx, accountID, page)
	if err != nil {
		return shared.Page[Transaction]{}, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return shared.Page[Transaction]{
		Items: items,
		Meta:  shared.NewPageMeta(page.Page, page.Limit, total),
	}, nil
}

func (s *Service) observe(typ Type, outcome string) {
	if s.observer != nil {
		s.observer.ObservePosting(string(typ), outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, shared.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return OutcomeDuplicate
	case errors.Is(err, shared.ErrTransactionAborted):
		return OutcomeAborted
	default:
		return OutcomeError
	}
}
