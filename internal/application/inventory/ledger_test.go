package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/memory"
)

type fixture struct {
	store   *memory.Store
	catalog *catalog.Catalog
	ledger  *inventory.Ledger
}

func newFixture(t testing.TB, opts ...inventory.Option) *fixture {
	store := memory.New()
	opts = append([]inventory.Option{inventory.WithLocker(memory.NewKeyLock())}, opts...)
	return &fixture{
		store:   store,
		catalog: catalog.New(store, nil),
		ledger:  inventory.NewLedger(store, nil, opts...),
	}
}

func (f *fixture) item(t testing.TB, code string) *entity.Item {
	it, _, err := f.catalog.ResolveOrCreate(context.Background(), catalog.NewItem{Code: code, Name: "Item " + code})
	require.NoError(t, err)
	return it
}

func (f *fixture) quantity(t testing.TB, code string) int64 {
	it, err := f.catalog.Get(context.Background(), code)
	require.NoError(t, err)
	return it.Quantity
}

func (f *fixture) history(t testing.TB, code string) []*entity.StockMovement {
	var out []*entity.StockMovement
	for m, err := range f.ledger.History(context.Background(), code, 0, nil) {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

// ── ApplyDelta ───────────────────────────────────────────────────────────────

func TestApplyDelta_RegistraMovimiento(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "A-1")

	qty, err := f.ledger.ApplyDelta(ctx, "a-1", 10, "ana", "compra")
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	qty, err = f.ledger.ApplyDelta(ctx, "A-1", -4, "ana", "venta")
	require.NoError(t, err)
	assert.Equal(t, int64(6), qty)
	assert.Equal(t, int64(6), f.quantity(t, "A-1"))

	hist := f.history(t, "A-1")
	require.Len(t, hist, 2)
	assert.Equal(t, int64(-4), hist[0].Delta)
	assert.Equal(t, int64(6), hist[0].ResultingQty)
	assert.Equal(t, entity.MovementKindDelta, hist[0].Kind)
	assert.Equal(t, "venta", hist[0].Reason)
	assert.Equal(t, "ana", hist[0].Actor)
}

func TestApplyDelta_StockInsuficienteNoCambiaNada(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "A-1")
	_, err := f.ledger.ApplyDelta(ctx, "A-1", 3, "ana", "")
	require.NoError(t, err)

	_, err = f.ledger.ApplyDelta(ctx, "A-1", -5, "ana", "")
	require.ErrorIs(t, err, domain.ErrInvalidOperation)
	assert.Contains(t, domain.Reason(err), "insufficient stock")

	assert.Equal(t, int64(3), f.quantity(t, "A-1"))
	assert.Len(t, f.history(t, "A-1"), 1)
}

func TestApplyDelta_Validaciones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "A-1")

	_, err := f.ledger.ApplyDelta(ctx, "A-1", 0, "ana", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.ledger.ApplyDelta(ctx, "A-1", 1, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.ledger.ApplyDelta(ctx, "NOPE", 1, "ana", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyDelta_ConcurrentesSinPerderActualizaciones(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "X")
	_, err := f.ledger.ApplyDelta(ctx, "X", 10, "seed", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, d := range []int64{+5, -3} {
		wg.Add(1)
		go func(d int64) {
			defer wg.Done()
			_, err := f.ledger.ApplyDelta(ctx, "X", d, "bot", "")
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	assert.Equal(t, int64(12), f.quantity(t, "X"))
	assert.Len(t, f.history(t, "X"), 3)
	_, err = f.ledger.Verify(ctx, "X")
	assert.NoError(t, err)
}

func TestApplyDelta_MuchasGoroutinesMismoItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "X")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ApplyDelta(ctx, "X", 1, "bot", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), f.quantity(t, "X"))
	_, err := f.ledger.Verify(ctx, "X")
	assert.NoError(t, err)
}

func TestApplyDelta_TimeoutDeBloqueoEsTransitorio(t *testing.T) {
	locks := memory.NewKeyLock()
	store := memory.New()
	cat := catalog.New(store, nil)
	led := inventory.NewLedger(store, nil, inventory.WithLocker(locks), inventory.WithLockTimeout(20*time.Millisecond))
	ctx := context.Background()
	_, _, err := cat.ResolveOrCreate(ctx, catalog.NewItem{Code: "A-1", Name: "Uno"})
	require.NoError(t, err)

	unlock, err := locks.Lock(ctx, "item:a-1")
	require.NoError(t, err)
	defer unlock()

	_, err = led.ApplyDelta(ctx, "A-1", 1, "ana", "")
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
}

// ── SetQuantity ──────────────────────────────────────────────────────────────

func TestSetQuantity_DeltaEquivalente(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "A-1")
	_, err := f.ledger.ApplyDelta(ctx, "A-1", 8, "ana", "")
	require.NoError(t, err)

	qty, err := f.ledger.SetQuantity(ctx, "A-1", 3, "ana", "conteo")
	require.NoError(t, err)
	assert.Equal(t, int64(3), qty)

	hist := f.history(t, "A-1")
	require.Len(t, hist, 2)
	assert.Equal(t, entity.MovementKindSet, hist[0].Kind)
	assert.Equal(t, int64(-5), hist[0].Delta)
	assert.Equal(t, int64(3), hist[0].ResultingQty)

	// Repetir el mismo valor deja la cantidad igual pero el historial crece.
	_, err = f.ledger.SetQuantity(ctx, "A-1", 3, "ana", "conteo")
	require.NoError(t, err)
	hist = f.history(t, "A-1")
	require.Len(t, hist, 3)
	assert.Equal(t, int64(0), hist[0].Delta)

	_, err = f.ledger.SetQuantity(ctx, "A-1", -1, "ana", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ── History ──────────────────────────────────────────────────────────────────

func TestHistory_TimestampMonotonoConRelojQueRetrocede(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Hour), base.Add(time.Second)}
	var mu sync.Mutex
	i := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := ticks[i%len(ticks)]
		i++
		return now
	}
	f := newFixture(t, inventory.WithClock(clock))
	ctx := context.Background()
	f.item(t, "A-1")
	for k := 0; k < 3; k++ {
		_, err := f.ledger.ApplyDelta(ctx, "A-1", 1, "ana", "")
		require.NoError(t, err)
	}

	hist := f.history(t, "A-1")
	require.Len(t, hist, 3)
	assert.Equal(t, base.Add(time.Second), hist[0].CreatedAt)
	assert.Equal(t, base, hist[1].CreatedAt, "el reloj atrasado se ajusta al último movimiento")
	assert.Equal(t, base, hist[2].CreatedAt)
	assert.Greater(t, hist[1].Seq, hist[2].Seq)
}

func TestHistory_PaginacionConEscriturasConcurrentes(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Reloj fijo: todos los movimientos empatan y el orden depende solo de seq.
	f := newFixture(t, inventory.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	f.item(t, "A-1")
	for k := 0; k < 10; k++ {
		_, err := f.ledger.ApplyDelta(ctx, "A-1", 1, "ana", "")
		require.NoError(t, err)
	}

	var (
		seen   []int64
		cursor *entity.HistoryCursor
		wg     sync.WaitGroup
	)
	for page := 0; ; page++ {
		var got []*entity.StockMovement
		for m, err := range f.ledger.History(ctx, "A-1", 3, cursor) {
			require.NoError(t, err)
			got = append(got, m)
		}
		if len(got) == 0 {
			break
		}
		for _, m := range got {
			seen = append(seen, m.Seq)
		}
		c := got[len(got)-1].Cursor()
		cursor = &c

		// Escrituras entre páginas: deben quedar por encima del cursor ya emitido.
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ApplyDelta(ctx, "A-1", 1, "otro", "")
			assert.NoError(t, err)
		}()
		wg.Wait()
	}

	require.Len(t, seen, 10, "ni duplicados ni huecos")
	for k := 1; k < len(seen); k++ {
		assert.Greater(t, seen[k-1], seen[k], "orden estrictamente inverso")
	}
}

func TestHistory_ItemInexistente(t *testing.T) {
	f := newFixture(t)
	for _, err := range f.ledger.History(context.Background(), "NOPE", 10, nil) {
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestRecent_TodosLosItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.item(t, "A-1")
	f.item(t, "B-1")
	_, err := f.ledger.ApplyDelta(ctx, "A-1", 1, "ana", "")
	require.NoError(t, err)
	_, err = f.ledger.ApplyDelta(ctx, "B-1", 2, "ana", "")
	require.NoError(t, err)

	list, err := f.ledger.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B-1", list[0].ItemCode)
}

// ── Verify ───────────────────────────────────────────────────────────────────

func TestVerify_DetectaCacheCorrupta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	it := f.item(t, "A-1")
	_, err := f.ledger.ApplyDelta(ctx, "A-1", 4, "ana", "")
	require.NoError(t, err)

	// Escritura directa fuera del Ledger.
	require.NoError(t, f.store.Run(ctx, func(r repository.Repos) error {
		return r.Items.UpdateQuantity(ctx, it.ID, 99, time.Now())
	}))

	_, err = f.ledger.Verify(ctx, "A-1")
	require.ErrorIs(t, err, domain.ErrConsistencyViolation)
	assert.Equal(t, int64(99), f.quantity(t, "A-1"), "nunca se corrige automáticamente")

	checked, err := f.ledger.VerifyAll(ctx)
	assert.Equal(t, 1, checked)
	assert.ErrorIs(t, err, domain.ErrConsistencyViolation)
}

// ── Propiedades ──────────────────────────────────────────────────────────────

func TestLedger_PropiedadesCantidadYReplay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.item(t, "P")

		var model int64
		ops := rapid.IntRange(1, 30).Draw(rt, "ops")
		for k := 0; k < ops; k++ {
			if rapid.Bool().Draw(rt, "set") {
				v := rapid.Int64Range(-3, 40).Draw(rt, "value")
				_, err := f.ledger.SetQuantity(ctx, "P", v, "prop", "")
				if v < 0 {
					if !assert.ErrorIs(rt, err, domain.ErrValidation) {
						rt.FailNow()
					}
					continue
				}
				if !assert.NoError(rt, err) {
					rt.FailNow()
				}
				model = v
				continue
			}
			d := rapid.Int64Range(-25, 25).Draw(rt, "delta")
			_, err := f.ledger.ApplyDelta(ctx, "P", d, "prop", "")
			switch {
			case d == 0:
				assert.ErrorIs(rt, err, domain.ErrValidation)
			case model+d < 0:
				assert.ErrorIs(rt, err, domain.ErrInvalidOperation)
			default:
				if !assert.NoError(rt, err) {
					rt.FailNow()
				}
				model += d
			}
		}

		qty := f.quantity(t, "P")
		if qty < 0 || qty != model {
			rt.Fatalf("cantidad %d, modelo %d", qty, model)
		}
		replayed, err := f.ledger.Verify(ctx, "P")
		if err != nil || replayed != qty {
			rt.Fatalf("replay %d (err %v), cantidad %d", replayed, err, qty)
		}
	})
}
