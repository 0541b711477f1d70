package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounts"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/transactions"
	"github.com/odyssey-erp/ledger/migrations"
)

type accountCreator interface {
	Create(ctx context.Context, req accounts.CreateAccountRequest) (accounts.Account, error)
}

type poster interface {
	Deposit(ctx context.Context, in transactions.Posting) (transactions.Transaction, error)
	Withdraw(ctx context.Context, in transactions.Posting) (transactions.Transaction, error)
}

type seedPosting struct {
	typ         transactions.Type
	amount      string
	description string
}

type seedAccount struct {
	name        string
	description string
	history     []seedPosting
}

var sampleAccounts = []seedAccount{
	{
		name:        "John Doe",
		description: "Personal account",
		history: []seedPosting{
			{transactions.TypeDeposit, "1000", "Initial deposit"},
			{transactions.TypeWithdrawal, "200", "ATM withdrawal"},
			{transactions.TypeDeposit, "200", "Salary"},
		},
	},
	{
		name:        "Jane Smith",
		description: "Savings account",
		history: []seedPosting{
			{transactions.TypeDeposit, "500", "Initial deposit"},
		},
	},
}

func main() {
	if app.InTestMode() {
		return
	}
	ctx := context.Background()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := db.Migrate(cfg.PGDSN, migrations.FS, logger); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	runner := db.NewExecutor(pool)
	accountService := accounts.NewService(runner, pool, nil, logger)
	transactionService := transactions.NewService(runner, pool, accountService, logger)

	created, err := seed(ctx, accountService, transactionService, sampleAccounts)
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, acc := range created {
		logger.Info("seeded account", slog.String("id", acc.ID.String()), slog.String("name", acc.Name))
	}
}

// seed creates every account and replays its history through the posting
// service, so stored balances always match the transaction log.
func seed(ctx context.Context, accts accountCreator, posts poster, plan []seedAccount) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(plan))
	for _, sa := range plan {
		desc := sa.description
		acc, err := accts.Create(ctx, accounts.CreateAccountRequest{Name: sa.name, Description: &desc})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", sa.name, err)
		}
		for _, p := range sa.history {
			note := p.description
			in := transactions.Posting{
				AccountID:   acc.ID,
				Amount:      decimal.RequireFromString(p.amount),
				Description: &note,
			}
			post := posts.Deposit
			if p.typ == transactions.TypeWithdrawal {
				post = posts.Withdraw
			}
			if _, err := post(ctx, in); err != nil {
				return nil, fmt.Errorf("post %s %s for %s: %w", p.typ, p.amount, sa.name, err)
			}
			acc.Balance = acc.Balance.Add(p.typ.Signed(in.Amount))
		}
		out = append(out, acc)
	}
	return out, nil
}
