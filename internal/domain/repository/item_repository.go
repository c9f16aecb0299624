package repository

import (
	"context"
	"iter"
	"time"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
)

// ItemSort criterio de orden para búsquedas; los empates se rompen por código ascendente.
type ItemSort string

const (
	SortByCode         ItemSort = "code"
	SortByName         ItemSort = "name"
	SortByQuantityAsc  ItemSort = "quantity_asc"
	SortByQuantityDesc ItemSort = "quantity_desc"
)

// ItemQuery filtros de búsqueda. Text y WarehouseKey llegan ya normalizados (entity.NormalizeKey).
type ItemQuery struct {
	Text         string // substring sobre código o nombre; vacío = todos
	WarehouseKey string // coincidencia exacta con el nombre normalizado de la bodega
	LowStockOnly bool   // min_qty > 0 AND quantity <= min_qty
	Sort         ItemSort
}

// ItemRepository define el puerto de persistencia para Item (DIP).
// Los Get* devuelven (nil, nil) cuando no existe el registro.
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) error
	GetByID(ctx context.Context, id string) (*entity.Item, error)
	GetByCode(ctx context.Context, codeKey string) (*entity.Item, error)
	// GetByCodeForUpdate bloquea la fila hasta el fin de la transacción (SELECT FOR UPDATE).
	GetByCodeForUpdate(ctx context.Context, codeKey string) (*entity.Item, error)
	// UpdateDetails actualiza nombre, unidad, ubicación, bodega y mínimo. Nunca la cantidad.
	UpdateDetails(ctx context.Context, item *entity.Item) error
	// UpdateQuantity es exclusivo del Ledger.
	UpdateQuantity(ctx context.Context, id string, qty int64, at time.Time) error
	// Search recorre los ítems de forma perezosa; cada iteración vuelve a consultar.
	Search(ctx context.Context, q ItemQuery) iter.Seq2[*entity.Item, error]
	CountByWarehouse(ctx context.Context, warehouseID string) (int, error)
}
