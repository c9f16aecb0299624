package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var _ repository.TxRunner = (*TxRunner)(nil)

//go:embed schema.sql
var schemaSQL string

// Querier es lo común a pgxpool.Pool y pgx.Tx que usan los repositorios.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTxRunner construye el runner con el pool. lockTimeout acota SELECT ... FOR UPDATE.
func NewTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *TxRunner {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &TxRunner{pool: pool, lockTimeout: lockTimeout}
}

// Migrate aplica el esquema embebido; es idempotente.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
func (r *TxRunner) Run(ctx context.Context, fn func(repos repository.Repos) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return classify("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(r.repos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// View abre una transacción REPEATABLE READ de solo lectura: todas las lecturas
// de fn ven el mismo snapshot.
func (r *TxRunner) View(ctx context.Context, fn func(repos repository.Repos) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return classify("begin read transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(r.repos(tx)); err != nil {
		return err
	}
	return classify("commit read transaction", tx.Commit(ctx))
}

func (r *TxRunner) repos(q Querier) repository.Repos {
	return repository.Repos{
		Items:      NewItemRepository(q, r.lockTimeout),
		Warehouses: NewWarehouseRepository(q),
		Movements:  NewMovementRepository(q),
	}
}
