package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/internal/platform/db"
)

const defaultMaxReported = 50

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AccountTotals pairs an account's stored balance with the signed sum of its
// transactions.
type AccountTotals struct {
	AccountID uuid.UUID
	Name      string
	Stored    decimal.Decimal
	Expected  decimal.Decimal
}

// Drifted reports whether the stored balance disagrees with history.
func (a AccountTotals) Drifted() bool {
	return !a.Stored.Equal(a.Expected)
}

// TotalsSource loads AccountTotals for every live account.
type TotalsSource interface {
	Totals(ctx context.Context) ([]AccountTotals, error)
}

// DriftRecorder publishes the drift count of the latest run.
type DriftRecorder interface {
	SetBalanceDrift(accounts int)
}

// PostgresTotals reads totals straight from the ledger tables. It never writes.
type PostgresTotals struct {
	db db.Querier
}

// NewPostgresTotals wraps q.
func NewPostgresTotals(q db.Querier) *PostgresTotals {
	return &PostgresTotals{db: q}
}

// Totals implements TotalsSource.
func (p *PostgresTotals) Totals(ctx context.Context) ([]AccountTotals, error) {
	rows, err := p.db.Query(ctx, `SELECT a.id, a.name, a.balance,
	COALESCE(SUM(CASE WHEN t.type = 'DEPOSIT' THEN t.amount ELSE -t.amount END), 0)
FROM accounts a
LEFT JOIN transactions t ON t.account_id = a.id AND t.deleted_at IS NULL
WHERE a.deleted_at IS NULL
GROUP BY a.id, a.name, a.balance
ORDER BY a.created_at`)
	if err != nil {
		return nil, fmt.Errorf("jobs: reconcile totals: %w", err)
	}
	defer rows.Close()

	var out []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.AccountID, &t.Name, &t.Stored, &t.Expected); err != nil {
			return nil, fmt.Errorf("jobs: reconcile scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ReconcileReport summarises one run.
type ReconcileReport struct {
	Accounts int
	Drifted  []AccountTotals
}

// ReconcileJob detects accounts whose balance no longer equals the signed sum
// of their transactions. It only reports; corrections are left to operators.
type ReconcileJob struct {
	Source   TotalsSource
	Recorder DriftRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	printer  *message.Printer
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source TotalsSource, recorder DriftRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{
		Source:   source,
		Recorder: recorder,
		Logger:   logger,
		Metrics:  metrics,
		printer:  message.NewPrinter(language.English),
	}
}

// Handle executes a reconciliation task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run reconciles every account once.
func (j *ReconcileJob) Run(ctx context.Context, payload ReconcilePayload) (report ReconcileReport, resultErr error) {
	if j.Source == nil {
		return ReconcileReport{}, errors.New("reconcile: source not configured")
	}
	if payload.MaxReported <= 0 {
		payload.MaxReported = defaultMaxReported
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskBalanceReconcile)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	totals, err := j.Source.Totals(ctx)
	if err != nil {
		logger.Error("reconcile failed", slog.Any("error", err))
		return ReconcileReport{}, err
	}

	report.Accounts = len(totals)
	for _, t := range totals {
		if !t.Drifted() {
			continue
		}
		report.Drifted = append(report.Drifted, t)
		if len(report.Drifted) <= payload.MaxReported {
			logger.Warn("balance drift detected",
				slog.String("account_id", t.AccountID.String()),
				slog.String("name", t.Name),
				slog.String("stored", j.format(t.Stored)),
				slog.String("expected", j.format(t.Expected)),
				slog.String("delta", j.format(t.Stored.Sub(t.Expected))),
			)
		}
	}

	j.metrics().AddDrift(len(report.Drifted))
	if j.Recorder != nil {
		j.Recorder.SetBalanceDrift(len(report.Drifted))
	}
	logger.Info("completed reconciliation",
		slog.Int("accounts", report.Accounts),
		slog.Int("drifted", len(report.Drifted)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (j *ReconcileJob) format(d decimal.Decimal) string {
	p := j.printer
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return p.Sprint(number.Decimal(d.InexactFloat64(), number.Scale(2)))
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceReconcile))
	}
	return slog.Default().With(slog.String("job", TaskBalanceReconcile))
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
