package transactions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Store is the transaction persistence port, bound to one Querier.
type Store interface {
	Insert(ctx context.Context, in NewTransaction) (Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, page shared.PageRequest) ([]Transaction, int, error)
}

// StoreFactory binds a Store to a pool or an open transaction.
type StoreFactory func(q db.Querier) Store

const transactionColumns = `id, type::text, amount, description, account_id, created_at, updated_at, deleted_at`

type repository struct {
	db db.Querier
}

// NewRepository returns a PostgreSQL backed Store.
func NewRepository(q db.Querier) Store {
	return &repository{db: q}
}

func (r *repository) Insert(ctx context.Context, in NewTransaction) (Transaction, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO transactions (type, amount, description, account_id)
VALUES (CAST($1::text AS transaction_type), $2, $3, $4)
RETURNING `+transactionColumns, string(in.Type), in.Amount, in.Description, in.AccountID)
	txn, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, fmt.Errorf("transactions: insert: %w", err)
	}
	return txn, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, page shared.PageRequest) ([]Transaction, int, error) {
	page = page.Normalize()

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1 AND deleted_at IS NULL`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: count: %w", err)
	}

	direction := string(shared.SortDesc)
	if page.SortOrder == shared.SortAsc {
		direction = string(shared.SortAsc)
	}
	query := fmt.Sprintf(`SELECT %s FROM transactions
WHERE account_id = $1 AND deleted_at IS NULL
ORDER BY %s %s, id %s
LIMIT $2 OFFSET $3`, transactionColumns, sortColumn(page.SortBy), direction, direction)

	rows, err := r.db.Query(ctx, query, accountID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("transactions: list: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("transactions: list scan: %w", err)
		}
		out = append(out, txn)
	}
	return out, total, rows.Err()
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		txn Transaction
		typ string
	)
	err := row.Scan(
		&txn.ID, &typ, &txn.Amount, &txn.Description,
		&txn.AccountID, &txn.CreatedAt, &txn.UpdatedAt, &txn.DeletedAt,
	)
	txn.Type = Type(typ)
	return txn, err
}
