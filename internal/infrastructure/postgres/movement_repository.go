package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
)

var _ repository.StockMovementRepository = (*MovementRepo)(nil)

const movementColumns = `
	m.id, m.seq, m.item_id, i.code, m.kind, m.delta, m.resulting_qty, m.actor, m.reason, m.created_at`

const movementFrom = ` FROM stock_movements m JOIN items i ON i.id = m.item_id`

// MovementRepo implementación del puerto StockMovementRepository sobre PostgreSQL.
// Append-only: no hay UPDATE ni DELETE sobre stock_movements.
type MovementRepo struct {
	q Querier
}

// NewMovementRepository construye el adaptador de persistencia para movimientos.
func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

// Append inserta el movimiento; seq lo asigna BIGSERIAL.
func (r *MovementRepo) Append(ctx context.Context, m *entity.StockMovement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	query := `
		INSERT INTO stock_movements (id, item_id, kind, delta, resulting_qty, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		m.ID, m.ItemID, m.Kind, m.Delta, m.ResultingQty, m.Actor, m.Reason, m.CreatedAt,
	).Scan(&m.Seq)
	return classify("insert stock movement", err)
}

// Last último movimiento del ítem o nil.
func (r *MovementRepo) Last(ctx context.Context, itemID string) (*entity.StockMovement, error) {
	query := `SELECT` + movementColumns + movementFrom + `
		WHERE m.item_id = $1 ORDER BY m.created_at DESC, m.seq DESC LIMIT 1`
	m, err := scanMovement(r.q.QueryRow(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("last stock movement", err)
	}
	return m, nil
}

// ListByItem historial inverso con cursor (created_at, seq) y límite.
func (r *MovementRepo) ListByItem(ctx context.Context, itemID string, before *entity.HistoryCursor, limit int) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		query := `SELECT` + movementColumns + movementFrom + ` WHERE m.item_id = $1`
		args := []any{itemID}
		pos := 2
		if before != nil {
			if before.BeforeSeq > 0 {
				query += fmt.Sprintf(` AND (m.created_at < $%d OR (m.created_at = $%d AND m.seq < $%d))`, pos, pos, pos+1)
				args = append(args, before.Before, before.BeforeSeq)
				pos += 2
			} else {
				query += fmt.Sprintf(` AND m.created_at < $%d`, pos)
				args = append(args, before.Before)
				pos++
			}
		}
		query += ` ORDER BY m.created_at DESC, m.seq DESC`
		if limit > 0 {
			query += fmt.Sprintf(` LIMIT $%d`, pos)
			args = append(args, limit)
		}
		yieldAll(yield, r.collect(ctx, "list stock movements", query, args...))
	}
}

// Range movimientos en orden ascendente, extremos inclusivos.
func (r *MovementRepo) Range(ctx context.Context, q repository.MovementRange) iter.Seq2[*entity.StockMovement, error] {
	return func(yield func(*entity.StockMovement, error) bool) {
		query := `SELECT` + movementColumns + movementFrom + ` WHERE 1=1`
		args := []any{}
		pos := 1
		if q.ItemID != "" {
			query += fmt.Sprintf(` AND m.item_id = $%d`, pos)
			args = append(args, q.ItemID)
			pos++
		}
		if !q.Since.IsZero() {
			query += fmt.Sprintf(` AND m.created_at >= $%d`, pos)
			args = append(args, q.Since)
			pos++
		}
		if !q.Until.IsZero() {
			query += fmt.Sprintf(` AND m.created_at <= $%d`, pos)
			args = append(args, q.Until)
		}
		query += ` ORDER BY m.created_at ASC, m.seq ASC`
		yieldAll(yield, r.collect(ctx, "range stock movements", query, args...))
	}
}

// Recent últimos movimientos de todos los ítems.
func (r *MovementRepo) Recent(ctx context.Context, limit int) ([]*entity.StockMovement, error) {
	query := `SELECT` + movementColumns + movementFrom + ` ORDER BY m.created_at DESC, m.seq DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.collect(ctx, "recent stock movements", query, args...)()
}

// collect ejecuta la consulta al invocar la función devuelta.
func (r *MovementRepo) collect(ctx context.Context, op, query string, args ...any) func() ([]*entity.StockMovement, error) {
	return func() ([]*entity.StockMovement, error) {
		rows, err := r.q.Query(ctx, query, args...)
		if err != nil {
			return nil, classify(op, err)
		}
		defer rows.Close()
		var list []*entity.StockMovement
		for rows.Next() {
			m, err := scanMovement(rows)
			if err != nil {
				return nil, classify(op, err)
			}
			list = append(list, m)
		}
		if err := rows.Err(); err != nil {
			return nil, classify(op, err)
		}
		return list, nil
	}
}

func yieldAll(yield func(*entity.StockMovement, error) bool, fetch func() ([]*entity.StockMovement, error)) {
	list, err := fetch()
	if err != nil {
		yield(nil, err)
		return
	}
	for _, m := range list {
		if !yield(m, nil) {
			return
		}
	}
}

func scanMovement(row pgx.Row) (*entity.StockMovement, error) {
	var m entity.StockMovement
	err := row.Scan(&m.ID, &m.Seq, &m.ItemID, &m.ItemCode, &m.Kind, &m.Delta, &m.ResultingQty,
		&m.Actor, &m.Reason, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}
