// Package memory implementa el Storage Gateway en memoria: escrituras en buffer
// por transacción que se aplican en el Commit, bloqueo por ítem con KeyLock y
// lecturas de snapshot bajo RLock. Se usa en desarrollo (DB_DRIVER=memory) y en tests.
package memory

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var _ repository.TxRunner = (*Store)(nil)

const defaultLockTimeout = 5 * time.Second

// Store estado comprometido del inventario.
type Store struct {
	mu         sync.RWMutex
	items      map[string]*entity.Item // por ID
	itemByCode map[string]string       // code_key -> ID
	warehouses map[string]*entity.Warehouse
	whByName   map[string]string // name_key -> ID
	movements  []*entity.StockMovement
	seq        int64

	locks       *KeyLock
	lockTimeout time.Duration
}

// Option configura el Store.
type Option func(*Store)

// WithLockTimeout tiempo máximo de espera por el bloqueo de un ítem.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New construye un Store vacío.
func New(opts ...Option) *Store {
	s := &Store{
		items:       make(map[string]*entity.Item),
		itemByCode:  make(map[string]string),
		warehouses:  make(map[string]*entity.Warehouse),
		whByName:    make(map[string]string),
		locks:       NewKeyLock(),
		lockTimeout: defaultLockTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run ejecuta fn con escrituras en buffer; Commit aplica todo bajo el lock de escritura.
func (s *Store) Run(ctx context.Context, fn func(r repository.Repos) error) error {
	t := newTx(s, false)
	defer t.releaseLocks()
	if err := ctx.Err(); err != nil {
		return domain.Transient("begin transaction", err)
	}
	if err := fn(t.repos()); err != nil {
		return err
	}
	return t.commit()
}

// View ejecuta fn con el RLock tomado: ninguna escritura se comprometerá mientras tanto.
func (s *Store) View(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient("begin read transaction", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := newTx(s, true)
	return fn(t.repos())
}

// tx acumula cambios hasta el Commit. Las lecturas ven primero lo propio (read-your-writes).
type tx struct {
	s        *Store
	snapshot bool // View: el RLock ya está tomado

	items      map[string]*entity.Item
	newCodes   map[string]string
	warehouses map[string]*entity.Warehouse
	newWhNames map[string]string
	deletedWh  map[string]bool
	movements  []*entity.StockMovement

	// Campos tocados por ítem existente; el Commit fusiona solo esos sobre la fila vigente.
	detailIDs map[string]bool
	qtyIDs    map[string]bool

	unlocks []func()
}

func newTx(s *Store, snapshot bool) *tx {
	return &tx{
		s:          s,
		snapshot:   snapshot,
		items:      make(map[string]*entity.Item),
		newCodes:   make(map[string]string),
		warehouses: make(map[string]*entity.Warehouse),
		newWhNames: make(map[string]string),
		deletedWh:  make(map[string]bool),
		detailIDs:  make(map[string]bool),
		qtyIDs:     make(map[string]bool),
	}
}

func (t *tx) repos() repository.Repos {
	return repository.Repos{
		Items:      itemRepo{t},
		Warehouses: warehouseRepo{t},
		Movements:  movementRepo{t},
	}
}

func (t *tx) rlock() {
	if !t.snapshot {
		t.s.mu.RLock()
	}
}

func (t *tx) runlock() {
	if !t.snapshot {
		t.s.mu.RUnlock()
	}
}

func (t *tx) releaseLocks() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// Unicidad: otra transacción pudo crear el mismo código entre el Create y el Commit.
	for key, id := range t.newCodes {
		if existing, ok := s.itemByCode[key]; ok && existing != id {
			return domain.ErrDuplicate
		}
	}
	for key, id := range t.newWhNames {
		if existing, ok := s.whByName[key]; ok && existing != id {
			return domain.ErrDuplicate
		}
	}

	merged := t.mergeItemsLocked()
	if err := t.checkReferencesLocked(merged); err != nil {
		return err
	}

	for id := range t.deletedWh {
		if w, ok := s.warehouses[id]; ok {
			delete(s.whByName, w.NameKey)
			delete(s.warehouses, id)
		}
	}
	for id, w := range t.warehouses {
		s.warehouses[id] = w
		s.whByName[w.NameKey] = id
	}
	for id, it := range merged {
		s.items[id] = it
		s.itemByCode[it.CodeKey] = id
	}
	for _, m := range t.movements {
		s.seq++
		m.Seq = s.seq
		cp := *m
		s.movements = append(s.movements, &cp)
	}
	return nil
}

// mergeItemsLocked aplica sobre la fila comprometida solo los campos que esta
// transacción modificó: una escritura de detalles no revierte la cantidad y al revés.
// Requiere s.mu tomado.
func (t *tx) mergeItemsLocked() map[string]*entity.Item {
	merged := make(map[string]*entity.Item, len(t.items))
	for id, staged := range t.items {
		cur, ok := t.s.items[id]
		if !ok {
			cp := *staged
			merged[id] = &cp
			continue
		}
		cp := *cur
		if t.detailIDs[id] {
			cp.Name = staged.Name
			cp.Unit = staged.Unit
			cp.Location = staged.Location
			cp.WarehouseID = staged.WarehouseID
			cp.MinQty = staged.MinQty
		}
		if t.qtyIDs[id] {
			cp.Quantity = staged.Quantity
		}
		if staged.UpdatedAt.After(cp.UpdatedAt) {
			cp.UpdatedAt = staged.UpdatedAt
		}
		merged[id] = &cp
	}
	return merged
}

// checkReferencesLocked valida el estado final: ningún ítem apunta a una bodega
// borrada, aunque el borrado lo haya comprometido otra transacción. Requiere s.mu tomado.
func (t *tx) checkReferencesLocked(merged map[string]*entity.Item) error {
	s := t.s
	exists := func(id string) bool {
		if t.deletedWh[id] {
			return false
		}
		if _, ok := t.warehouses[id]; ok {
			return true
		}
		_, ok := s.warehouses[id]
		return ok
	}
	for _, it := range merged {
		if it.WarehouseID != "" && !exists(it.WarehouseID) {
			return domain.Conflict("warehouse no longer exists")
		}
	}
	for id := range t.deletedWh {
		w, ok := s.warehouses[id]
		if !ok {
			continue
		}
		n := 0
		for itemID, it := range s.items {
			if m, staged := merged[itemID]; staged {
				it = m
			}
			if it.WarehouseID == id {
				n++
			}
		}
		if n > 0 {
			return domain.Conflict(fmt.Sprintf("warehouse %s is referenced by %d items", w.Name, n))
		}
	}
	return nil
}

// ── Items ────────────────────────────────────────────────────────────────────

type itemRepo struct{ t *tx }

func (r itemRepo) Create(_ context.Context, item *entity.Item) error {
	t := r.t
	t.rlock()
	_, committed := t.s.itemByCode[item.CodeKey]
	t.runlock()
	if _, staged := t.newCodes[item.CodeKey]; committed || staged {
		return domain.ErrDuplicate
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	cp := *item
	t.items[cp.ID] = &cp
	t.newCodes[cp.CodeKey] = cp.ID
	return nil
}

func (r itemRepo) GetByID(_ context.Context, id string) (*entity.Item, error) {
	return r.t.lookupItem(id), nil
}

func (r itemRepo) GetByCode(_ context.Context, codeKey string) (*entity.Item, error) {
	return r.t.lookupItem(r.t.itemIDByCode(codeKey)), nil
}

func (r itemRepo) GetByCodeForUpdate(ctx context.Context, codeKey string) (*entity.Item, error) {
	t := r.t
	lockCtx, cancel := context.WithTimeout(ctx, t.s.lockTimeout)
	defer cancel()
	unlock, err := t.s.locks.Lock(lockCtx, "item:"+codeKey)
	if err != nil {
		return nil, err
	}
	t.unlocks = append(t.unlocks, unlock)
	return t.lookupItem(t.itemIDByCode(codeKey)), nil
}

func (r itemRepo) UpdateDetails(_ context.Context, item *entity.Item) error {
	cur := r.t.lookupItem(item.ID)
	if cur == nil {
		return domain.ErrNotFound
	}
	cur.Name = item.Name
	cur.Unit = item.Unit
	cur.Location = item.Location
	cur.WarehouseID = item.WarehouseID
	cur.MinQty = item.MinQty
	cur.UpdatedAt = item.UpdatedAt
	r.t.items[cur.ID] = cur
	r.t.detailIDs[cur.ID] = true
	return nil
}

func (r itemRepo) UpdateQuantity(_ context.Context, id string, qty int64, at time.Time) error {
	cur := r.t.lookupItem(id)
	if cur == nil {
		return domain.ErrNotFound
	}
	cur.Quantity = qty
	cur.UpdatedAt = at
	r.t.items[id] = cur
	r.t.qtyIDs[id] = true
	return nil
}

func (r itemRepo) Search(_ context.Context, q repository.ItemQuery) iter.Seq2[*entity.Item, error] {
	return func(yield func(*entity.Item, error) bool) {
		for _, it := range r.t.searchItems(q) {
			if !yield(it, nil) {
				return
			}
		}
	}
}

func (r itemRepo) CountByWarehouse(_ context.Context, warehouseID string) (int, error) {
	n := 0
	for _, it := range r.t.allItems() {
		if it.WarehouseID == warehouseID {
			n++
		}
	}
	return n, nil
}

func (t *tx) itemIDByCode(codeKey string) string {
	if id, ok := t.newCodes[codeKey]; ok {
		return id
	}
	t.rlock()
	defer t.runlock()
	return t.s.itemByCode[codeKey]
}

// lookupItem devuelve una copia con el nombre de bodega resuelto.
func (t *tx) lookupItem(id string) *entity.Item {
	if id == "" {
		return nil
	}
	t.rlock()
	defer t.runlock()
	src, ok := t.items[id]
	if !ok {
		src, ok = t.s.items[id]
	}
	if !ok {
		return nil
	}
	cp := *src
	cp.Warehouse = t.warehouseNameLocked(cp.WarehouseID)
	return &cp
}

func (t *tx) allItems() []*entity.Item {
	t.rlock()
	defer t.runlock()
	out := make([]*entity.Item, 0, len(t.s.items)+len(t.items))
	for id, it := range t.s.items {
		if _, staged := t.items[id]; staged {
			continue
		}
		cp := *it
		cp.Warehouse = t.warehouseNameLocked(cp.WarehouseID)
		out = append(out, &cp)
	}
	for _, it := range t.items {
		cp := *it
		cp.Warehouse = t.warehouseNameLocked(cp.WarehouseID)
		out = append(out, &cp)
	}
	return out
}

func (t *tx) searchItems(q repository.ItemQuery) []*entity.Item {
	var out []*entity.Item
	for _, it := range t.allItems() {
		if q.Text != "" && !strings.Contains(it.CodeKey, q.Text) && !strings.Contains(entity.NormalizeKey(it.Name), q.Text) {
			continue
		}
		if q.WarehouseKey != "" && entity.NormalizeKey(it.Warehouse) != q.WarehouseKey {
			continue
		}
		if q.LowStockOnly && !it.IsLowStock() {
			continue
		}
		out = append(out, it)
	}
	SortItems(out, q.Sort)
	return out
}

// SortItems ordena según el criterio; empates por código ascendente.
func SortItems(items []*entity.Item, by repository.ItemSort) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch by {
		case repository.SortByName:
			an, bn := entity.NormalizeKey(a.Name), entity.NormalizeKey(b.Name)
			if an != bn {
				return an < bn
			}
		case repository.SortByQuantityAsc:
			if a.Quantity != b.Quantity {
				return a.Quantity < b.Quantity
			}
		case repository.SortByQuantityDesc:
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
		}
		return a.CodeKey < b.CodeKey
	})
}

// ── Warehouses ───────────────────────────────────────────────────────────────

type warehouseRepo struct{ t *tx }

func (r warehouseRepo) Create(_ context.Context, w *entity.Warehouse) error {
	t := r.t
	if id := t.warehouseIDByName(w.NameKey); id != "" {
		return domain.ErrDuplicate
	}
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	cp := *w
	t.warehouses[cp.ID] = &cp
	t.newWhNames[cp.NameKey] = cp.ID
	return nil
}

func (r warehouseRepo) GetByID(_ context.Context, id string) (*entity.Warehouse, error) {
	return r.t.lookupWarehouse(id), nil
}

func (r warehouseRepo) GetByName(_ context.Context, nameKey string) (*entity.Warehouse, error) {
	return r.t.lookupWarehouse(r.t.warehouseIDByName(nameKey)), nil
}

func (r warehouseRepo) List(_ context.Context) ([]*entity.Warehouse, error) {
	t := r.t
	t.rlock()
	seen := make(map[string]bool)
	var out []*entity.Warehouse
	for id, w := range t.warehouses {
		seen[id] = true
		cp := *w
		out = append(out, &cp)
	}
	for id, w := range t.s.warehouses {
		if seen[id] || t.deletedWh[id] {
			continue
		}
		cp := *w
		out = append(out, &cp)
	}
	t.runlock()
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey < out[j].NameKey })
	return out, nil
}

func (r warehouseRepo) Delete(_ context.Context, id string) error {
	t := r.t
	if w, ok := t.warehouses[id]; ok {
		delete(t.newWhNames, w.NameKey)
		delete(t.warehouses, id)
	}
	t.deletedWh[id] = true
	return nil
}

func (t *tx) warehouseIDByName(nameKey string) string {
	if id, ok := t.newWhNames[nameKey]; ok {
		return id
	}
	t.rlock()
	defer t.runlock()
	id := t.s.whByName[nameKey]
	if t.deletedWh[id] {
		return ""
	}
	return id
}

func (t *tx) lookupWarehouse(id string) *entity.Warehouse {
	if id == "" || t.deletedWh[id] {
		return nil
	}
	if w, ok := t.warehouses[id]; ok {
		cp := *w
		return &cp
	}
	t.rlock()
	defer t.runlock()
	if w, ok := t.s.warehouses[id]; ok {
		cp := *w
		return &cp
	}
	return nil
}

// warehouseNameLocked requiere el RLock (o snapshot) tomado.
func (t *tx) warehouseNameLocked(id string) string {
	if id == "" {
		return ""
	}
	if w, ok := t.warehouses[id]; ok {
		return w.Name
	}
	if w, ok := t.s.warehouses[id]; ok {
		return w.Name
	}
	return ""
}

// ── Movements ────────────────────────────────────────────────────────────────

type movementRepo struct{ t *tx }

func (r movementRepo) Append(_ context.Context, m *entity.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	r.t.movements = append(r.t.movements, m)
	return nil
}

func (r movementRepo) Last(_ context.Context, itemID string) (*entity.StockMovement, error) {
	t := r.t
	for i := len(t.movements) - 1; i >= 0; i-- {
		if t.movements[i].ItemID == itemID {
			cp := *t.movements[i]
			return &cp, nil
		}
	}
	t.rlock()
	defer t.runlock()
	for i := len(t.s.movements) - 1; i >= 0; i-- {
		if t.s.movements[i].ItemID == itemID {
			return t.withCodeLocked(t.s.movements[i]), nil
		}
	}
	return nil, nil
}

func (r movementRepo) ListByItem(_ context.Context, itemID string, before *entity.HistoryCursor, limit int) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		t := r.t
		t.rlock()
		var list []*entity.StockMovement
		for _, m := range t.s.movements {
			if m.ItemID != itemID {
				continue
			}
			if before != nil && !before.Admits(m) {
				continue
			}
			list = append(list, t.withCodeLocked(m))
		}
		t.runlock()
		sort.SliceStable(list, func(i, j int) bool { return newerFirst(list[i], list[j]) })
		for i, m := range list {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (r movementRepo) Range(_ context.Context, q repository.MovementRange) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		t := r.t
		t.rlock()
		var list []*entity.StockMovement
		for _, m := range t.s.movements {
			if q.ItemID != "" && m.ItemID != q.ItemID {
				continue
			}
			if !q.Since.IsZero() && m.CreatedAt.Before(q.Since) {
				continue
			}
			if !q.Until.IsZero() && m.CreatedAt.After(q.Until) {
				continue
			}
			list = append(list, t.withCodeLocked(m))
		}
		t.runlock()
		sort.SliceStable(list, func(i, j int) bool { return newerFirst(list[j], list[i]) })
		for _, m := range list {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (r movementRepo) Recent(_ context.Context, limit int) ([]*entity.StockMovement, error) {
	t := r.t
	t.rlock()
	list := make([]*entity.StockMovement, 0, len(t.s.movements))
	for _, m := range t.s.movements {
		list = append(list, t.withCodeLocked(m))
	}
	t.runlock()
	sort.SliceStable(list, func(i, j int) bool { return newerFirst(list[i], list[j]) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (t *tx) withCodeLocked(m *entity.StockMovement) *entity.StockMovement {
	cp := *m
	if it, ok := t.s.items[m.ItemID]; ok {
		cp.ItemCode = it.Code
	}
	return &cp
}

func newerFirst(a, b *entity.StockMovement) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

