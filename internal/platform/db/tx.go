package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IsolationLevel selects the isolation a unit of work runs under. The zero
// value is RepeatableRead.
type IsolationLevel int

const (
	// RepeatableRead is the default level for balance mutations.
	RepeatableRead IsolationLevel = iota
	// ReadCommitted trades snapshot stability for fewer serialization failures.
	ReadCommitted
	// Serializable runs the unit of work under full serializability.
	Serializable
	// ReadUncommitted behaves like ReadCommitted on PostgreSQL.
	ReadUncommitted
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "READ COMMITTED"
	case Serializable:
		return "SERIALIZABLE"
	case ReadUncommitted:
		return "READ UNCOMMITTED"
	default:
		return "REPEATABLE READ"
	}
}

func (l IsolationLevel) pgxLevel() pgx.TxIsoLevel {
	switch l {
	case ReadCommitted:
		return pgx.ReadCommitted
	case Serializable:
		return pgx.Serializable
	case ReadUncommitted:
		return pgx.ReadUncommitted
	default:
		return pgx.RepeatableRead
	}
}

// ParseIsolationLevel maps the SQL spelling of an isolation level. Empty
// input yields RepeatableRead.
func ParseIsolationLevel(raw string) (IsolationLevel, error) {
	switch strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", " ")), " ")) {
	case "", "REPEATABLE READ":
		return RepeatableRead, nil
	case "READ COMMITTED":
		return ReadCommitted, nil
	case "SERIALIZABLE":
		return Serializable, nil
	case "READ UNCOMMITTED":
		return ReadUncommitted, nil
	default:
		return RepeatableRead, fmt.Errorf("platform/db: unknown isolation level %q", raw)
	}
}

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx so
// repositories can be bound to either the pool or an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a dedicated session checked out for a single unit of work.
type Conn interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Release()
}

// Acquirer hands out dedicated sessions.
type Acquirer interface {
	Acquire(ctx context.Context) (Conn, error)
}

type poolAcquirer struct {
	pool *pgxpool.Pool
}

func (a poolAcquirer) Acquire(ctx context.Context) (Conn, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// TxFunc is a unit of work bound to an open transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Runner executes units of work.
type Runner interface {
	Execute(ctx context.Context, level IsolationLevel, fn TxFunc) error
}

// Executor runs units of work on a dedicated connection inside a single
// database transaction.
type Executor struct {
	acquirer Acquirer
}

// NewExecutor builds an Executor backed by the pool.
func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{acquirer: poolAcquirer{pool: pool}}
}

// NewExecutorWithAcquirer builds an Executor over a custom session source.
func NewExecutorWithAcquirer(acquirer Acquirer) *Executor {
	return &Executor{acquirer: acquirer}
}

// Execute acquires a connection, begins a transaction at level and invokes fn
// exactly once. A nil result commits; any error rolls back and is returned as
// is. The connection is released on every path.
func (e *Executor) Execute(ctx context.Context, level IsolationLevel, fn TxFunc) error {
	conn, err := e.acquirer.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: level.pgxLevel()})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	settled := false
	defer func() {
		if !settled {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		settled = true
		_ = tx.Rollback(ctx)
		return err
	}

	settled = true
	return tx.Commit(ctx)
}

// Run is Execute for units of work that produce a value.
func Run[T any](ctx context.Context, runner Runner, level IsolationLevel, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var out T
	err := runner.Execute(ctx, level, func(ctx context.Context, tx pgx.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
