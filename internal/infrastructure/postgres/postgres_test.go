package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

// ── Clasificación de errores ─────────────────────────────────────────────────

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	dup := classify("insert", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, dup, domain.ErrDuplicate)

	for _, code := range []string{"55P03", "40001", "40P01", "57014", "08006"} {
		err := classify("lock", &pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, domain.ErrTransientStorage, code)
	}

	assert.ErrorIs(t, classify("q", fmt.Errorf("wrap: %w", context.DeadlineExceeded)), domain.ErrTransientStorage)

	other := classify("q", &pgconn.PgError{Code: "42P01"})
	assert.False(t, errors.Is(other, domain.ErrTransientStorage))
	assert.Contains(t, other.Error(), "q:")
}

func TestOrderClause(t *testing.T) {
	assert.Equal(t, `i.code_key COLLATE "C"`, orderClause(""))
	assert.Contains(t, orderClause(repository.SortByQuantityDesc), "i.quantity DESC")
	assert.Contains(t, orderClause(repository.SortByName), "i.name_key")
}

func TestNullIfEmpty(t *testing.T) {
	assert.Nil(t, nullIfEmpty(""))
	assert.Equal(t, "x", nullIfEmpty("x"))
}

// ── Integración (requiere TEST_DATABASE_URL) ─────────────────────────────────

func newTestRunner(t *testing.T) *TxRunner {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL no definido")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE stock_movements, items, warehouses`)
	require.NoError(t, err)
	return NewTxRunner(pool, 300*time.Millisecond)
}

func TestPostgres_CatalogYLedger(t *testing.T) {
	tx := newTestRunner(t)
	ctx := context.Background()
	cat := catalog.New(tx, nil)
	led := inventory.NewLedger(tx, nil)

	item, created, err := cat.ResolveOrCreate(ctx, catalog.NewItem{Code: "A-1", Name: "Adaptador", Warehouse: "Main", MinQty: 3})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Main", item.Warehouse)

	_, _, err = cat.ResolveOrCreate(ctx, catalog.NewItem{Code: " a-1 "})
	require.NoError(t, err)

	qty, err := led.ApplyDelta(ctx, "A-1", 10, "ana", "compra")
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	_, err = led.ApplyDelta(ctx, "A-1", -11, "ana", "venta")
	assert.ErrorIs(t, err, domain.ErrInvalidOperation)

	qty, err = led.SetQuantity(ctx, "A-1", 2, "ana", "conteo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), qty)

	var kinds []string
	for m, err := range led.History(ctx, "A-1", 10, nil) {
		require.NoError(t, err)
		kinds = append(kinds, m.Kind)
		assert.Equal(t, "A-1", m.ItemCode)
	}
	assert.Equal(t, []string{entity.MovementKindSet, entity.MovementKindDelta}, kinds)

	low, err := cat.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)

	_, err = led.Verify(ctx, "A-1")
	assert.NoError(t, err)

	err = cat.DeleteWarehouse(ctx, "main")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPostgres_DeltasConcurrentes(t *testing.T) {
	tx := newTestRunner(t)
	ctx := context.Background()
	cat := catalog.New(tx, nil)
	led := inventory.NewLedger(tx, nil)

	_, _, err := cat.ResolveOrCreate(ctx, catalog.NewItem{Code: "B-1", Name: "Tornillo"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := led.ApplyDelta(ctx, "B-1", 1, "worker", "")
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		// Con lock_timeout corto algunos pueden fallar de forma transitoria.
		assert.ErrorIs(t, err, domain.ErrTransientStorage)
	}

	item, err := cat.Get(ctx, "B-1")
	require.NoError(t, err)
	count := 0
	for _, err := range led.History(ctx, "B-1", 0, nil) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, int64(count), item.Quantity)
	_, err = led.Verify(ctx, "B-1")
	assert.NoError(t, err)
}
