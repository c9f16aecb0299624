package repository

import "context"

// Repos agrupa los repositorios atados a una misma unidad atómica.
type Repos struct {
	Items      ItemRepository
	Warehouses WarehouseRepository
	Movements  StockMovementRepository
}

// TxRunner es el Storage Gateway: ejecuta fn con repositorios atados a una transacción.
type TxRunner interface {
	// Run hace Commit si fn devuelve nil y Rollback en otro caso.
	Run(ctx context.Context, fn func(r Repos) error) error
	// View ejecuta fn sobre un snapshot consistente de solo lectura.
	View(ctx context.Context, fn func(r Repos) error) error
}
