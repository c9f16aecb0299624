package repository

import (
	"context"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
)

// WarehouseRepository define el puerto de persistencia para Warehouse (DIP).
type WarehouseRepository interface {
	// Create devuelve domain.ErrDuplicate si ya existe el nombre normalizado.
	Create(ctx context.Context, warehouse *entity.Warehouse) error
	GetByID(ctx context.Context, id string) (*entity.Warehouse, error)
	GetByName(ctx context.Context, nameKey string) (*entity.Warehouse, error)
	List(ctx context.Context) ([]*entity.Warehouse, error)
	Delete(ctx context.Context, id string) error
}
