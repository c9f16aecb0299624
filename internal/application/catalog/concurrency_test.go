package catalog_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/memory"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/sqlite"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers: gateways y ganchos dentro de la transacción
// ──────────────────────────────────────────────────────────────────────────────

var gateways = map[string]func(t *testing.T) repository.TxRunner{
	"memory": func(t *testing.T) repository.TxRunner {
		return memory.New(memory.WithLockTimeout(2 * time.Second))
	},
	"sqlite": func(t *testing.T) repository.TxRunner {
		s, err := sqlite.Open(filepath.Join(t.TempDir(), "inv.db"), 2*time.Second)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
}

// hookedItems ejecuta un gancho justo después de ciertas operaciones del repositorio,
// con la transacción todavía abierta.
type hookedItems struct {
	repository.ItemRepository
	afterCreate func()
	afterUpdate func()
	afterCount  func()
}

func (h hookedItems) Create(ctx context.Context, item *entity.Item) error {
	if err := h.ItemRepository.Create(ctx, item); err != nil {
		return err
	}
	if h.afterCreate != nil {
		h.afterCreate()
	}
	return nil
}

func (h hookedItems) UpdateDetails(ctx context.Context, item *entity.Item) error {
	if err := h.ItemRepository.UpdateDetails(ctx, item); err != nil {
		return err
	}
	if h.afterUpdate != nil {
		h.afterUpdate()
	}
	return nil
}

func (h hookedItems) CountByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	n, err := h.ItemRepository.CountByWarehouse(ctx, warehouseID)
	if err == nil && h.afterCount != nil {
		h.afterCount()
	}
	return n, err
}

type hookedRunner struct {
	repository.TxRunner
	items hookedItems
}

func (h hookedRunner) Run(ctx context.Context, fn func(r repository.Repos) error) error {
	return h.TxRunner.Run(ctx, func(r repository.Repos) error {
		items := h.items
		items.ItemRepository = r.Items
		r.Items = items
		return fn(r)
	})
}

// concurrent lanza op una sola vez y le da un margen para comprometerse. Si el
// gateway la serializa detrás de la transacción abierta, sigue sin esperarla.
type concurrent struct {
	once     sync.Once
	finished chan struct{}
	err      error
}

func (c *concurrent) start(op func() error) {
	c.once.Do(func() {
		c.finished = make(chan struct{})
		go func() {
			c.err = op()
			close(c.finished)
		}()
		select {
		case <-c.finished:
		case <-time.After(200 * time.Millisecond):
		}
	})
}

func (c *concurrent) wait(t *testing.T) error {
	t.Helper()
	require.NotNil(t, c.finished, "el gancho no se ejecutó")
	select {
	case <-c.finished:
	case <-time.After(5 * time.Second):
		t.Fatal("la operación concurrente no terminó")
	}
	return c.err
}

// assertWarehouseRefs todo ítem con bodega apunta a una bodega existente.
func assertWarehouseRefs(t *testing.T, c *catalog.Catalog) {
	t.Helper()
	ctx := context.Background()
	whs, err := c.ListWarehouses(ctx)
	require.NoError(t, err)
	ids := make(map[string]string, len(whs))
	for _, w := range whs {
		ids[w.ID] = w.Name
	}
	for it, err := range c.Search(ctx, "", "", repository.SortByCode) {
		require.NoError(t, err)
		if it.WarehouseID == "" {
			continue
		}
		name, ok := ids[it.WarehouseID]
		assert.True(t, ok, "ítem %s apunta a una bodega inexistente", it.Code)
		assert.Equal(t, name, it.Warehouse)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestUpdateItem_DeltaConcurrenteNoSePierde(t *testing.T) {
	for name, open := range gateways {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			plain := catalog.New(store, nil)
			led := inventory.NewLedger(store, nil)

			_, _, err := plain.ResolveOrCreate(ctx, catalog.NewItem{Code: "R-1", Name: "Rodamiento"})
			require.NoError(t, err)

			var delta concurrent
			hooked := catalog.New(hookedRunner{TxRunner: store, items: hookedItems{
				afterUpdate: func() {
					delta.start(func() error {
						_, err := led.ApplyDelta(ctx, "R-1", 7, "ana", "compra")
						return err
					})
				},
			}}, nil)

			newName := "Rodamiento 6204"
			_, err = hooked.UpdateItem(ctx, "r-1", catalog.ItemPatch{Name: &newName})
			require.NoError(t, err)
			require.NoError(t, delta.wait(t))

			item, err := plain.Get(ctx, "R-1")
			require.NoError(t, err)
			assert.Equal(t, int64(7), item.Quantity)
			assert.Equal(t, newName, item.Name)

			replayed, err := led.Verify(ctx, "R-1")
			require.NoError(t, err)
			assert.Equal(t, int64(7), replayed)
		})
	}
}

func TestResolveOrCreate_BodegaBorradaEnParalelo(t *testing.T) {
	for name, open := range gateways {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			plain := catalog.New(store, nil)
			_, err := plain.CreateWarehouse(ctx, "HQ", "", "")
			require.NoError(t, err)

			var del concurrent
			hooked := catalog.New(hookedRunner{TxRunner: store, items: hookedItems{
				afterCreate: func() {
					del.start(func() error { return plain.DeleteWarehouse(ctx, "HQ") })
				},
			}}, nil)

			_, _, createErr := hooked.ResolveOrCreate(ctx, catalog.NewItem{Code: "W-1", Name: "Arandela", Warehouse: "HQ"})
			deleteErr := del.wait(t)

			// Exactamente una de las dos operaciones se rechaza.
			if createErr != nil {
				assert.ErrorIs(t, createErr, domain.ErrConflict)
				assert.NoError(t, deleteErr)
			} else {
				assert.ErrorIs(t, deleteErr, domain.ErrConflict)
			}
			assertWarehouseRefs(t, plain)
		})
	}
}

func TestDeleteWarehouse_ItemCreadoEnParalelo(t *testing.T) {
	for name, open := range gateways {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			plain := catalog.New(store, nil)
			_, err := plain.CreateWarehouse(ctx, "HQ", "", "")
			require.NoError(t, err)

			var create concurrent
			hooked := catalog.New(hookedRunner{TxRunner: store, items: hookedItems{
				afterCount: func() {
					create.start(func() error {
						_, _, err := plain.ResolveOrCreate(ctx, catalog.NewItem{Code: "W-2", Name: "Tuerca", Warehouse: "HQ"})
						return err
					})
				},
			}}, nil)

			deleteErr := hooked.DeleteWarehouse(ctx, "HQ")
			require.NoError(t, create.wait(t))
			if deleteErr != nil {
				assert.ErrorIs(t, deleteErr, domain.ErrConflict)
			}

			item, err := plain.Get(ctx, "W-2")
			require.NoError(t, err)
			assert.Equal(t, "HQ", item.Warehouse)
			assertWarehouseRefs(t, plain)
		})
	}
}
