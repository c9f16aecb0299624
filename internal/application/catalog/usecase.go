// Package catalog administra ítems y bodegas: identidad, alta implícita,
// búsqueda y actualización de campos descriptivos. Nunca escribe la cantidad.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// Catalog casos de uso sobre Item y Warehouse.
type Catalog struct {
	tx  repository.TxRunner
	log *logger.Logger
	now func() time.Time
}

// New construye el catálogo. log puede ser nil.
func New(tx repository.TxRunner, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Nop()
	}
	return &Catalog{
		tx:  tx,
		log: log.Component("catalog"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewItem datos de alta. Solo Code es obligatorio si el ítem ya existe.
type NewItem struct {
	Code      string
	Name      string
	Unit      string
	Location  string
	Warehouse string
	MinQty    int64
}

// ItemPatch campos descriptivos a modificar; nil deja el valor actual.
// Warehouse vacío desasigna la bodega.
type ItemPatch struct {
	Name      *string
	Unit      *string
	Location  *string
	Warehouse *string
	MinQty    *int64
}

// ResolveOrCreate devuelve el ítem con ese código o lo crea con cantidad 0.
// Un ítem existente se devuelve sin cambios (created=false).
func (c *Catalog) ResolveOrCreate(ctx context.Context, in NewItem) (*entity.Item, bool, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, false, domain.Validation("code required")
	}
	if in.MinQty < 0 {
		return nil, false, domain.Validation("min quantity must be a non-negative integer")
	}
	key := entity.NormalizeKey(code)

	var (
		item    *entity.Item
		created bool
	)
	// Un segundo intento cubre la carrera con otra alta del mismo código o bodega.
	for attempt := 0; attempt < 2; attempt++ {
		err := c.tx.Run(ctx, func(r repository.Repos) error {
			existing, err := r.Items.GetByCode(ctx, key)
			if err != nil {
				return err
			}
			if existing != nil {
				item, created = existing, false
				return nil
			}
			name := strings.TrimSpace(in.Name)
			if name == "" {
				return domain.Validation("name required")
			}
			now := c.now()
			fresh := &entity.Item{
				ID:        uuid.New().String(),
				Code:      code,
				CodeKey:   key,
				Name:      name,
				Unit:      unitOrDefault(in.Unit),
				Location:  strings.TrimSpace(in.Location),
				MinQty:    in.MinQty,
				CreatedAt: now,
				UpdatedAt: now,
			}
			wh, err := c.resolveWarehouse(ctx, r, in.Warehouse)
			if err != nil {
				return err
			}
			if wh != nil {
				fresh.WarehouseID = wh.ID
				fresh.Warehouse = wh.Name
			}
			if err := r.Items.Create(ctx, fresh); err != nil {
				return err
			}
			item, created = fresh, true
			return nil
		})
		if errors.Is(err, domain.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if created {
			c.log.Info().Str("code", item.Code).Str("warehouse", item.Warehouse).Msg("ítem creado")
		}
		return item, created, nil
	}
	return nil, false, domain.Transient("resolve item "+code, domain.ErrDuplicate)
}

// Get busca un ítem por código o por ID interno.
func (c *Catalog) Get(ctx context.Context, ref string) (*entity.Item, error) {
	var item *entity.Item
	err := c.tx.View(ctx, func(r repository.Repos) error {
		var err error
		item, err = FindItem(ctx, r.Items, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindItem resuelve ref primero como código y luego como UUID.
// Devuelve domain.NotFound si no existe.
func FindItem(ctx context.Context, items repository.ItemRepository, ref string) (*entity.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.Validation("item reference required")
	}
	item, err := items.GetByCode(ctx, entity.NormalizeKey(ref))
	if err != nil {
		return nil, err
	}
	if item == nil && uuid.Validate(ref) == nil {
		item, err = items.GetByID(ctx, ref)
		if err != nil {
			return nil, err
		}
	}
	if item == nil {
		return nil, domain.NotFound("item not found: " + ref)
	}
	return item, nil
}

// ParseSort traduce el criterio recibido del front-end. Vacío equivale a código.
func ParseSort(s string) (repository.ItemSort, error) {
	switch repository.ItemSort(strings.ToLower(strings.TrimSpace(s))) {
	case "", repository.SortByCode:
		return repository.SortByCode, nil
	case repository.SortByName:
		return repository.SortByName, nil
	case repository.SortByQuantityAsc, "quantity-asc", "qty_asc":
		return repository.SortByQuantityAsc, nil
	case repository.SortByQuantityDesc, "quantity-desc", "qty_desc":
		return repository.SortByQuantityDesc, nil
	}
	return "", domain.Validationf("unknown sort key: %s", s)
}

// Search devuelve una secuencia perezosa: la consulta se ejecuta al iterar y
// cada nueva iteración vuelve a consultar el almacenamiento.
func (c *Catalog) Search(ctx context.Context, text, warehouse string, sort repository.ItemSort) iter.Seq2[*entity.Item, error] {
	q := repository.ItemQuery{
		Text:         entity.NormalizeKey(text),
		WarehouseKey: entity.NormalizeKey(warehouse),
		Sort:         sort,
	}
	return c.query(ctx, q)
}

// LowStock ítems con mínimo configurado y cantidad igual o menor, de menor a mayor cantidad.
func (c *Catalog) LowStock(ctx context.Context) ([]*entity.Item, error) {
	var out []*entity.Item
	for it, err := range c.query(ctx, repository.ItemQuery{LowStockOnly: true, Sort: repository.SortByQuantityAsc}) {
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (c *Catalog) query(ctx context.Context, q repository.ItemQuery) iter.Seq2[*entity.Item, error] {
	return func(yield func(*entity.Item, error) bool) {
		var page []*entity.Item
		err := c.tx.View(ctx, func(r repository.Repos) error {
			for it, err := range r.Items.Search(ctx, q) {
				if err != nil {
					return err
				}
				page = append(page, it)
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		// Se entrega fuera del snapshot para que el consumidor pueda escribir mientras itera.
		for _, it := range page {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// UpdateItem modifica campos descriptivos; la cantidad solo cambia vía Ledger.
func (c *Catalog) UpdateItem(ctx context.Context, ref string, patch ItemPatch) (*entity.Item, error) {
	var item *entity.Item
	err := c.tx.Run(ctx, func(r repository.Repos) error {
		found, err := FindItem(ctx, r.Items, ref)
		if err != nil {
			return err
		}
		// Mismo bloqueo de fila que el Ledger: se relee bajo lock para no pisar su cantidad.
		cur, err := r.Items.GetByCodeForUpdate(ctx, found.CodeKey)
		if err != nil {
			return err
		}
		if cur == nil {
			return domain.NotFound("item not found: " + strings.TrimSpace(ref))
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return domain.Validation("name required")
			}
			cur.Name = name
		}
		if patch.Unit != nil {
			cur.Unit = unitOrDefault(*patch.Unit)
		}
		if patch.Location != nil {
			cur.Location = strings.TrimSpace(*patch.Location)
		}
		if patch.MinQty != nil {
			if *patch.MinQty < 0 {
				return domain.Validation("min quantity must be a non-negative integer")
			}
			cur.MinQty = *patch.MinQty
		}
		if patch.Warehouse != nil {
			wh, err := c.resolveWarehouse(ctx, r, *patch.Warehouse)
			if err != nil {
				return err
			}
			cur.WarehouseID, cur.Warehouse = "", ""
			if wh != nil {
				cur.WarehouseID, cur.Warehouse = wh.ID, wh.Name
			}
		}
		cur.UpdatedAt = c.now()
		if err := r.Items.UpdateDetails(ctx, cur); err != nil {
			return err
		}
		item = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// resolveWarehouse busca la bodega por nombre y la crea si no existe. Nombre vacío = sin bodega.
func (c *Catalog) resolveWarehouse(ctx context.Context, r repository.Repos, name string) (*entity.Warehouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	key := entity.NormalizeKey(name)
	wh, err := r.Warehouses.GetByName(ctx, key)
	if err != nil || wh != nil {
		return wh, err
	}
	now := c.now()
	wh = &entity.Warehouse{
		ID:        uuid.New().String(),
		Name:      name,
		NameKey:   key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Warehouses.Create(ctx, wh); err != nil {
		return nil, err
	}
	c.log.Debug().Str("warehouse", name).Msg("bodega creada implícitamente")
	return wh, nil
}

// ── Bodegas ──────────────────────────────────────────────────────────────────

// ListWarehouses todas las bodegas ordenadas por nombre.
func (c *Catalog) ListWarehouses(ctx context.Context) ([]*entity.Warehouse, error) {
	var list []*entity.Warehouse
	err := c.tx.View(ctx, func(r repository.Repos) error {
		var err error
		list, err = r.Warehouses.List(ctx)
		return err
	})
	return list, err
}

// CreateWarehouse alta explícita; un nombre repetido (sin distinguir mayúsculas) es Conflict.
func (c *Catalog) CreateWarehouse(ctx context.Context, name, address, notes string) (*entity.Warehouse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.Validation("warehouse name required")
	}
	now := c.now()
	wh := &entity.Warehouse{
		ID:        uuid.New().String(),
		Name:      name,
		NameKey:   entity.NormalizeKey(name),
		Address:   strings.TrimSpace(address),
		Notes:     strings.TrimSpace(notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := c.tx.Run(ctx, func(r repository.Repos) error {
		return r.Warehouses.Create(ctx, wh)
	})
	if errors.Is(err, domain.ErrDuplicate) {
		return nil, domain.Conflict("warehouse already exists: " + name)
	}
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("warehouse", name).Msg("bodega creada")
	return wh, nil
}

// DeleteWarehouse rechaza con Conflict mientras algún ítem la referencie.
func (c *Catalog) DeleteWarehouse(ctx context.Context, name string) error {
	err := c.tx.Run(ctx, func(r repository.Repos) error {
		wh, err := r.Warehouses.GetByName(ctx, entity.NormalizeKey(name))
		if err != nil {
			return err
		}
		if wh == nil {
			return domain.NotFound("warehouse not found: " + strings.TrimSpace(name))
		}
		n, err := r.Items.CountByWarehouse(ctx, wh.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.Conflict(fmt.Sprintf("warehouse %s is referenced by %d items", wh.Name, n))
		}
		return r.Warehouses.Delete(ctx, wh.ID)
	})
	if err != nil {
		return err
	}
	c.log.Info().Str("warehouse", name).Msg("bodega eliminada")
	return nil
}

func unitOrDefault(u string) string {
	if u = strings.TrimSpace(u); u != "" {
		return u
	}
	return entity.DefaultUnit
}
