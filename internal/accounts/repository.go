package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Store is the account persistence port. A Store is bound to one Querier, so a
// Store built on a pgx.Tx takes part in that transaction.
type Store interface {
	Insert(ctx context.Context, in NewAccount) (Account, error)
	FindActive(ctx context.Context, id uuid.UUID) (Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	SaveBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (Account, error)
}

// StoreFactory binds a Store to a pool or an open transaction.
type StoreFactory func(q db.Querier) Store

const accountColumns = `id, name, balance, description, is_active, created_at, updated_at, deleted_at`

type repository struct {
	db db.Querier
}

// NewRepository returns a PostgreSQL backed Store.
func NewRepository(q db.Querier) Store {
	return &repository{db: q}
}

func (r *repository) Insert(ctx context.Context, in NewAccount) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (name, description)
VALUES ($1, $2)
RETURNING `+accountColumns, in.Name, in.Description)
	acc, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: insert: %w", err)
	}
	return acc, nil
}

// FindActive reads the account with a plain snapshot read. Inside a
// REPEATABLE READ transaction a concurrent balance write surfaces as a
// serialization failure on SaveBalance.
func (r *repository) FindActive(ctx context.Context, id uuid.UUID) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND is_active`, id)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(id)
		}
		return Account{}, fmt.Errorf("accounts: find: %w", err)
	}
	return acc, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE is_active ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("accounts: list: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("accounts: list scan: %w", err)
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *repository) SaveBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (Account, error) {
	row := r.db.QueryRow(ctx, `UPDATE accounts SET balance = $2, updated_at = NOW()
WHERE id = $1 AND is_active
RETURNING `+accountColumns, id, balance)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, notFound(id)
		}
		return Account{}, fmt.Errorf("accounts: save balance: %w", err)
	}
	return acc, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var acc Account
	err := row.Scan(
		&acc.ID, &acc.Name, &acc.Balance, &acc.Description,
		&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt, &acc.DeletedAt,
	)
	return acc, err
}

func notFound(id uuid.UUID) error {
	return fmt.Errorf("account with ID %s %w", id, shared.ErrNotFound)
}
