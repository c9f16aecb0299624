package repository

import (
	"context"
	"iter"
	"time"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
)

// MovementRange filtros para exportar historial. Los tiempos cero dejan el rango abierto.
type MovementRange struct {
	ItemID string // vacío = todos los ítems
	Since  time.Time
	Until  time.Time
}

// StockMovementRepository define el puerto de persistencia para movimientos (append-only).
type StockMovementRepository interface {
	// Append asigna ID (si falta) y Seq y persiste el movimiento.
	Append(ctx context.Context, movement *entity.StockMovement) error
	// Last devuelve el último movimiento de un ítem o nil.
	Last(ctx context.Context, itemID string) (*entity.StockMovement, error)
	// ListByItem orden cronológico inverso (created_at DESC, seq DESC), como máximo limit filas.
	ListByItem(ctx context.Context, itemID string, before *entity.HistoryCursor, limit int) iter.Seq2[*entity.StockMovement, error]
	// Range orden cronológico ascendente (created_at, seq), extremos inclusivos.
	Range(ctx context.Context, r MovementRange) iter.Seq2[*entity.StockMovement, error]
	// Recent últimos movimientos de todos los ítems, más nuevo primero.
	Recent(ctx context.Context, limit int) ([]*entity.StockMovement, error)
}
