package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var (
	_ repository.ItemRepository          = itemRepo{}
	_ repository.WarehouseRepository     = warehouseRepo{}
	_ repository.StockMovementRepository = movementRepo{}
)

// scanner lo común a *sql.Row y *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// ── Items ────────────────────────────────────────────────────────────────────

const itemSelect = `SELECT i.id, i.code, i.code_key, i.name, i.unit, i.quantity, i.location,
	COALESCE(i.warehouse_id, ''), COALESCE(w.name, ''), i.min_qty, i.created_at, i.updated_at
	FROM items i LEFT JOIN warehouses w ON w.id = i.warehouse_id`

type itemRepo struct{ q querier }

func (r itemRepo) Create(ctx context.Context, item *entity.Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO items (id, code, code_key, name, name_key, unit, quantity, location, warehouse_id, min_qty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Code, item.CodeKey, item.Name, entity.NormalizeKey(item.Name), item.Unit, item.Quantity,
		item.Location, nullIfEmpty(item.WarehouseID), item.MinQty, micros(item.CreatedAt), micros(item.UpdatedAt),
	)
	return classify("insert item", err)
}

func (r itemRepo) GetByID(ctx context.Context, id string) (*entity.Item, error) {
	return r.getOne(ctx, "get item", itemSelect+` WHERE i.id = ?`, id)
}

func (r itemRepo) GetByCode(ctx context.Context, codeKey string) (*entity.Item, error) {
	return r.getOne(ctx, "get item by code", itemSelect+` WHERE i.code_key = ?`, codeKey)
}

// GetByCodeForUpdate la transacción IMMEDIATE ya tiene el lock de escritura.
func (r itemRepo) GetByCodeForUpdate(ctx context.Context, codeKey string) (*entity.Item, error) {
	return r.getOne(ctx, "lock item", itemSelect+` WHERE i.code_key = ?`, codeKey)
}

func (r itemRepo) UpdateDetails(ctx context.Context, item *entity.Item) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE items SET name = ?, name_key = ?, unit = ?, location = ?, warehouse_id = ?, min_qty = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, entity.NormalizeKey(item.Name), item.Unit, item.Location, nullIfEmpty(item.WarehouseID),
		item.MinQty, micros(item.UpdatedAt), item.ID,
	)
	return affected("update item", res, err)
}

func (r itemRepo) UpdateQuantity(ctx context.Context, id string, qty int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE items SET quantity = ?, updated_at = ? WHERE id = ?`, qty, micros(at), id)
	return affected("update item quantity", res, err)
}

func (r itemRepo) Search(ctx context.Context, q repository.ItemQuery) iter.Seq2[*entity.Item, error] {
	return func(yield func(*entity.Item, error) bool) {
		query := itemSelect + ` WHERE 1=1`
		var args []any
		if q.Text != "" {
			query += ` AND (instr(i.code_key, ?) > 0 OR instr(i.name_key, ?) > 0)`
			args = append(args, q.Text, q.Text)
		}
		if q.WarehouseKey != "" {
			query += ` AND w.name_key = ?`
			args = append(args, q.WarehouseKey)
		}
		if q.LowStockOnly {
			query += ` AND i.min_qty > 0 AND i.quantity <= i.min_qty`
		}
		switch q.Sort {
		case repository.SortByName:
			query += ` ORDER BY i.name_key, i.code_key`
		case repository.SortByQuantityAsc:
			query += ` ORDER BY i.quantity ASC, i.code_key`
		case repository.SortByQuantityDesc:
			query += ` ORDER BY i.quantity DESC, i.code_key`
		default:
			query += ` ORDER BY i.code_key`
		}
		list, err := collect(ctx, r.q, "search items", scanItem, query, args...)
		yieldAll(yield, list, err)
	}
}

func (r itemRepo) CountByWarehouse(ctx context.Context, warehouseID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE warehouse_id = ?`, warehouseID).Scan(&n)
	if err != nil {
		return 0, classify("count items by warehouse", err)
	}
	return n, nil
}

func (r itemRepo) getOne(ctx context.Context, op, query string, arg any) (*entity.Item, error) {
	it, err := scanItem(r.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return it, nil
}

func scanItem(s scanner) (*entity.Item, error) {
	var (
		it               entity.Item
		created, updated int64
	)
	err := s.Scan(&it.ID, &it.Code, &it.CodeKey, &it.Name, &it.Unit, &it.Quantity, &it.Location,
		&it.WarehouseID, &it.Warehouse, &it.MinQty, &created, &updated)
	if err != nil {
		return nil, err
	}
	it.CreatedAt, it.UpdatedAt = fromMicros(created), fromMicros(updated)
	return &it, nil
}

// ── Warehouses ───────────────────────────────────────────────────────────────

const warehouseSelect = `SELECT id, name, name_key, address, notes, created_at, updated_at FROM warehouses`

type warehouseRepo struct{ q querier }

func (r warehouseRepo) Create(ctx context.Context, w *entity.Warehouse) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO warehouses (id, name, name_key, address, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.NameKey, w.Address, w.Notes, micros(w.CreatedAt), micros(w.UpdatedAt),
	)
	return classify("insert warehouse", err)
}

func (r warehouseRepo) GetByID(ctx context.Context, id string) (*entity.Warehouse, error) {
	return r.getOne(ctx, "get warehouse", warehouseSelect+` WHERE id = ?`, id)
}

func (r warehouseRepo) GetByName(ctx context.Context, nameKey string) (*entity.Warehouse, error) {
	return r.getOne(ctx, "get warehouse by name", warehouseSelect+` WHERE name_key = ?`, nameKey)
}

func (r warehouseRepo) List(ctx context.Context) ([]*entity.Warehouse, error) {
	return collect(ctx, r.q, "list warehouses", scanWarehouse, warehouseSelect+` ORDER BY name_key`)
}

func (r warehouseRepo) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM warehouses WHERE id = ?`, id)
	return classify("delete warehouse", err)
}

func (r warehouseRepo) getOne(ctx context.Context, op, query string, arg any) (*entity.Warehouse, error) {
	w, err := scanWarehouse(r.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return w, nil
}

func scanWarehouse(s scanner) (*entity.Warehouse, error) {
	var (
		w                entity.Warehouse
		created, updated int64
	)
	if err := s.Scan(&w.ID, &w.Name, &w.NameKey, &w.Address, &w.Notes, &created, &updated); err != nil {
		return nil, err
	}
	w.CreatedAt, w.UpdatedAt = fromMicros(created), fromMicros(updated)
	return &w, nil
}

// ── Movements ────────────────────────────────────────────────────────────────

const movementSelect = `SELECT m.id, m.seq, m.item_id, i.code, m.kind, m.delta, m.resulting_qty, m.actor, m.reason, m.created_at
	FROM stock_movements m JOIN items i ON i.id = m.item_id`

type movementRepo struct{ q querier }

func (r movementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_movements (id, item_id, kind, delta, resulting_qty, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ItemID, m.Kind, m.Delta, m.ResultingQty, m.Actor, m.Reason, micros(m.CreatedAt),
	)
	if err != nil {
		return classify("insert stock movement", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return classify("insert stock movement", err)
	}
	m.Seq = seq
	return nil
}

func (r movementRepo) Last(ctx context.Context, itemID string) (*entity.StockMovement, error) {
	m, err := scanMovement(r.q.QueryRowContext(ctx,
		movementSelect+` WHERE m.item_id = ? ORDER BY m.created_at DESC, m.seq DESC LIMIT 1`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("last stock movement", err)
	}
	return m, nil
}

func (r movementRepo) ListByItem(ctx context.Context, itemID string, before *entity.HistoryCursor, limit int) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		query := movementSelect + ` WHERE m.item_id = ?`
		args := []any{itemID}
		if before != nil {
			at := micros(before.Before)
			if before.BeforeSeq > 0 {
				query += ` AND (m.created_at < ? OR (m.created_at = ? AND m.seq < ?))`
				args = append(args, at, at, before.BeforeSeq)
			} else {
				query += ` AND m.created_at < ?`
				args = append(args, at)
			}
		}
		query += ` ORDER BY m.created_at DESC, m.seq DESC`
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
		list, err := collect(ctx, r.q, "list stock movements", scanMovement, query, args...)
		yieldAll(yield, list, err)
	}
}

func (r movementRepo) Range(ctx context.Context, q repository.MovementRange) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		query := movementSelect + ` WHERE 1=1`
		var args []any
		if q.ItemID != "" {
			query += ` AND m.item_id = ?`
			args = append(args, q.ItemID)
		}
		if !q.Since.IsZero() {
			query += ` AND m.created_at >= ?`
			args = append(args, micros(q.Since))
		}
		if !q.Until.IsZero() {
			query += ` AND m.created_at <= ?`
			args = append(args, micros(q.Until))
		}
		query += ` ORDER BY m.created_at ASC, m.seq ASC`
		list, err := collect(ctx, r.q, "range stock movements", scanMovement, query, args...)
		yieldAll(yield, list, err)
	}
}

func (r movementRepo) Recent(ctx context.Context, limit int) ([]*entity.StockMovement, error) {
	query := movementSelect + ` ORDER BY m.created_at DESC, m.seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return collect(ctx, r.q, "recent stock movements", scanMovement, query, args...)
}

func scanMovement(s scanner) (*entity.StockMovement, error) {
	var (
		m  entity.StockMovement
		at int64
	)
	err := s.Scan(&m.ID, &m.Seq, &m.ItemID, &m.ItemCode, &m.Kind, &m.Delta, &m.ResultingQty, &m.Actor, &m.Reason, &at)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = fromMicros(at)
	return &m, nil
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// collect materializa las filas: la única conexión queda libre antes de entregar resultados.
func collect[T any](ctx context.Context, q querier, op string, scan func(scanner) (*T, error), query string, args ...any) ([]*T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()
	var list []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return list, nil
}

func yieldAll[T any](yield func(*T, error) bool, list []*T, err error) {
	if err != nil {
		yield(nil, err)
		return
	}
	for _, v := range list {
		if !yield(v, nil) {
			return
		}
	}
}

func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
