// Package sqlite implementa el Storage Gateway sobre un archivo SQLite.
// Una sola conexión abierta: las transacciones se serializan y BEGIN IMMEDIATE
// toma el lock de escritura al inicio, así que leer y luego escribir dentro de
// Run nunca compite con otro escritor.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var _ repository.TxRunner = (*Store)(nil)

//go:embed schema.sql
var schemaSQL string

// Store gateway SQLite.
type Store struct {
	db *sql.DB
}

// querier lo común a *sql.DB y *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open crea o abre la base en path y aplica pragmas y esquema. busyTimeout acota
// la espera cuando otro proceso tiene el archivo bloqueado.
func Open(path string, busyTimeout time.Duration) (*Store, error) {
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run ejecuta fn en una transacción IMMEDIATE; Commit si fn devuelve nil.
func (s *Store) Run(ctx context.Context, fn func(r repository.Repos) error) error {
	return s.inTx(ctx, "transaction", fn)
}

// View con una única conexión la transacción ya es un snapshot consistente.
func (s *Store) View(ctx context.Context, fn func(r repository.Repos) error) error {
	return s.inTx(ctx, "read transaction", fn)
}

func (s *Store) inTx(ctx context.Context, op string, fn func(r repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin "+op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(repos(tx)); err != nil {
		return err
	}
	return classify("commit "+op, tx.Commit())
}

func repos(q querier) repository.Repos {
	return repository.Repos{
		Items:      itemRepo{q},
		Warehouses: warehouseRepo{q},
		Movements:  movementRepo{q},
	}
}

// classify traduce errores de sqlite3 a la taxonomía del dominio.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return domain.ErrDuplicate
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return domain.Conflict("row is still referenced")
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return domain.Transient(op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func micros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
