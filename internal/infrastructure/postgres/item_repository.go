package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var _ repository.ItemRepository = (*ItemRepo)(nil)

const itemColumns = `
	i.id, i.code, i.code_key, i.name, i.unit, i.quantity, i.location,
	COALESCE(i.warehouse_id, ''), COALESCE(w.name, ''), i.min_qty, i.created_at, i.updated_at`

const itemFrom = ` FROM items i LEFT JOIN warehouses w ON w.id = i.warehouse_id`

// ItemRepo implementación del puerto ItemRepository sobre PostgreSQL (usable con pool o tx).
type ItemRepo struct {
	q           Querier
	lockTimeout time.Duration
}

// NewItemRepository construye el adaptador de persistencia para ítems. Pasar pool o tx (Querier).
func NewItemRepository(q Querier, lockTimeout time.Duration) *ItemRepo {
	return &ItemRepo{q: q, lockTimeout: lockTimeout}
}

// Create persiste un nuevo ítem. La cantidad inicial la escribe el Ledger.
func (r *ItemRepo) Create(ctx context.Context, item *entity.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	query := `
		INSERT INTO items (id, code, code_key, name, name_key, unit, quantity, location, warehouse_id, min_qty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, query,
		item.ID, item.Code, item.CodeKey, item.Name, entity.NormalizeKey(item.Name), item.Unit,
		item.Quantity, item.Location, nullIfEmpty(item.WarehouseID), item.MinQty, item.CreatedAt, item.UpdatedAt,
	)
	return classify("insert item", err)
}

// GetByID obtiene un ítem por ID.
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	return r.getOne(ctx, "get item", `SELECT`+itemColumns+itemFrom+` WHERE i.id = $1`, id)
}

// GetByCode obtiene un ítem por código normalizado.
func (r *ItemRepo) GetByCode(ctx context.Context, codeKey string) (*entity.Item, error) {
	return r.getOne(ctx, "get item by code", `SELECT`+itemColumns+itemFrom+` WHERE i.code_key = $1`, codeKey)
}

// GetByCodeForUpdate bloquea la fila del ítem. lock_timeout acota la espera;
// al vencer PostgreSQL devuelve 55P03, que se clasifica como transitorio.
func (r *ItemRepo) GetByCodeForUpdate(ctx context.Context, codeKey string) (*entity.Item, error) {
	timeout := strconv.FormatInt(r.lockTimeout.Milliseconds(), 10) + "ms"
	if _, err := r.q.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return nil, classify("set lock timeout", err)
	}
	return r.getOne(ctx, "lock item",
		`SELECT`+itemColumns+itemFrom+` WHERE i.code_key = $1 FOR UPDATE OF i`, codeKey)
}

// UpdateDetails actualiza todo menos la cantidad.
func (r *ItemRepo) UpdateDetails(ctx context.Context, item *entity.Item) error {
	query := `
		UPDATE items SET name = $2, name_key = $3, unit = $4, location = $5, warehouse_id = $6, min_qty = $7, updated_at = $8
		WHERE id = $1`
	cmd, err := r.q.Exec(ctx, query,
		item.ID, item.Name, entity.NormalizeKey(item.Name), item.Unit, item.Location,
		nullIfEmpty(item.WarehouseID), item.MinQty, item.UpdatedAt,
	)
	if err != nil {
		return classify("update item", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateQuantity escribe la proyección cacheada de la cantidad (solo el Ledger).
func (r *ItemRepo) UpdateQuantity(ctx context.Context, id string, qty int64, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE items SET quantity = $2, updated_at = $3 WHERE id = $1`, id, qty, at)
	if err != nil {
		return classify("update item quantity", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Search arma la consulta con filtros dinámicos. Cada recorrido vuelve a consultar;
// las filas se materializan antes de entregarlas para liberar la conexión.
func (r *ItemRepo) Search(ctx context.Context, q repository.ItemQuery) iter.Seq2[*entity.Item, error] {
	return func(yield func(*entity.Item, error) bool) {
		query := `SELECT` + itemColumns + itemFrom + ` WHERE 1=1`
		args := []any{}
		pos := 1
		if q.Text != "" {
			query += fmt.Sprintf(` AND (position($%d in i.code_key) > 0 OR position($%d in i.name_key) > 0)`, pos, pos)
			args = append(args, q.Text)
			pos++
		}
		if q.WarehouseKey != "" {
			query += fmt.Sprintf(` AND w.name_key = $%d`, pos)
			args = append(args, q.WarehouseKey)
		}
		if q.LowStockOnly {
			query += ` AND i.min_qty > 0 AND i.quantity <= i.min_qty`
		}
		query += ` ORDER BY ` + orderClause(q.Sort)

		items, err := r.collect(ctx, "search items", query, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}

// CountByWarehouse cantidad de ítems que referencian la bodega.
func (r *ItemRepo) CountByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM items WHERE warehouse_id = $1`, warehouseID).Scan(&n)
	if err != nil {
		return 0, classify("count items by warehouse", err)
	}
	return n, nil
}

// orderClause los empates se rompen por código; COLLATE "C" compara por bytes.
func orderClause(s repository.ItemSort) string {
	switch s {
	case repository.SortByName:
		return `i.name_key COLLATE "C", i.code_key COLLATE "C"`
	case repository.SortByQuantityAsc:
		return `i.quantity ASC, i.code_key COLLATE "C"`
	case repository.SortByQuantityDesc:
		return `i.quantity DESC, i.code_key COLLATE "C"`
	}
	return `i.code_key COLLATE "C"`
}

func (r *ItemRepo) getOne(ctx context.Context, op, query string, arg any) (*entity.Item, error) {
	it, err := scanItem(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(op, err)
	}
	return it, nil
}

func (r *ItemRepo) collect(ctx context.Context, op, query string, args ...any) ([]*entity.Item, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	var list []*entity.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		list = append(list, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return list, nil
}

func scanItem(row pgx.Row) (*entity.Item, error) {
	var it entity.Item
	err := row.Scan(&it.ID, &it.Code, &it.CodeKey, &it.Name, &it.Unit, &it.Quantity, &it.Location,
		&it.WarehouseID, &it.Warehouse, &it.MinQty, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}
