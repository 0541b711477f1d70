package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

func newTestService(ledger *memoryLedger, cache *Cache) *Service {
	return NewServiceWithStores(ledger, ledger.reader(), ledger.bind, cache, nil)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateStartsAtZero(t *testing.T) {
	ledger := newMemoryLedger()
	svc := newTestService(ledger, nil)
	desc := "  savings  "

	acc, err := svc.Create(context.Background(), CreateAccountRequest{Name: " Alice ", Description: &desc})

	require.NoError(t, err)
	require.Equal(t, "Alice", acc.Name)
	require.Equal(t, "savings", *acc.Description)
	require.True(t, acc.Balance.IsZero())
	require.True(t, acc.IsActive)
}

func TestUpdateBalanceRejectsOverdraftWithoutWrite(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "100.00", true)
	svc := newTestService(ledger, nil)

	_, err := svc.UpdateBalance(context.Background(), acc.ID, dec("-100.01"))

	require.ErrorIs(t, err, shared.ErrInsufficientFunds)
	require.True(t, ledger.committed(acc.ID).Balance.Equal(dec("100")))
	require.Zero(t, ledger.commits)
	require.Equal(t, 1, ledger.rollbacks)
}

func TestUpdateBalanceRejectsResultAboveColumnRange(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "999999999999999999.99", true)
	svc := newTestService(ledger, nil)

	_, err := svc.UpdateBalance(context.Background(), acc.ID, dec("0.01"))

	require.ErrorIs(t, err, shared.ErrInvalidAmount)
	require.True(t, ledger.committed(acc.ID).Balance.Equal(shared.MaxAmount))
	require.Zero(t, ledger.commits)
}

func TestUpdateBalanceAllowsExactDrainToZero(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "100.00", true)
	svc := newTestService(ledger, nil)

	updated, err := svc.UpdateBalance(context.Background(), acc.ID, dec("-100.00"))

	require.NoError(t, err)
	require.True(t, updated.Balance.IsZero())
	require.Equal(t, []db.IsolationLevel{db.RepeatableRead}, ledger.levels)
}

func TestUpdateBalanceUsesExactArithmetic(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "0", true)
	svc := newTestService(ledger, nil)
	ctx := context.Background()

	_, err := svc.UpdateBalance(ctx, acc.ID, dec("0.10"))
	require.NoError(t, err)
	_, err = svc.UpdateBalance(ctx, acc.ID, dec("0.20"))
	require.NoError(t, err)

	require.Equal(t, "0.30", ledger.committed(acc.ID).Balance.StringFixed(2))
	require.True(t, ledger.committed(acc.ID).Balance.Equal(dec("0.3")))
}

func TestUpdateBalanceInactiveAccountIsNotFound(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("closed", "50", false)
	svc := newTestService(ledger, nil)

	_, err := svc.UpdateBalance(context.Background(), acc.ID, dec("10"))

	require.ErrorIs(t, err, shared.ErrNotFound)
	require.True(t, ledger.committed(acc.ID).Balance.Equal(dec("50")))
}

func TestGetBalanceNotFound(t *testing.T) {
	svc := newTestService(newMemoryLedger(), nil)

	_, err := svc.GetBalance(context.Background(), uuid.New())

	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetBalanceIsStableWithoutWrites(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "1000", true)
	svc := newTestService(ledger, nil)

	first, err := svc.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)
	second, err := svc.GetBalance(context.Background(), acc.ID)
	require.NoError(t, err)

	require.Equal(t, acc.ID, first.AccountID)
	require.True(t, first.Balance.Equal(second.Balance))
}

func TestListReturnsActiveNewestFirst(t *testing.T) {
	ledger := newMemoryLedger()
	older := ledger.seed("older", "0", true)
	ledger.seed("hidden", "0", false)
	newer := ledger.seed("newer", "0", true)
	svc := newTestService(ledger, nil)

	got, err := svc.List(context.Background())

	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, newer.ID, got[0].ID)
	require.Equal(t, older.ID, got[1].ID)
}

func TestApplyDeltaPropagatesStoreFailure(t *testing.T) {
	ledger := newMemoryLedger()
	acc := ledger.seed("A", "10", true)
	svc := newTestService(ledger, nil)
	boom := errors.New("disk full")

	err := ledger.Execute(context.Background(), db.RepeatableRead, func(ctx context.Context, tx pgx.Tx) error {
		_, err := svc.ApplyDelta(ctx, failingStore{Store: svc.Bind(tx), err: boom}, acc.ID, dec("5"))
		return err
	})

	require.ErrorIs(t, err, boom)
	require.True(t, ledger.committed(acc.ID).Balance.Equal(dec("10")))
}

type failingStore struct {
	Store
	err error
}

func (s failingStore) SaveBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (Account, error) {
	return Account{}, s.err
}
