package entity

import "time"

// DefaultUnit unidad de medida cuando el alta no indica ninguna.
const DefaultUnit = "pcs"

// Item representa un SKU del inventario.
// Quantity es una proyección cacheada del ledger: solo el Ledger la escribe.
type Item struct {
	ID          string
	Code        string // tal como lo escribió el usuario (sin espacios extremos)
	CodeKey     string // identidad: NormalizeKey(Code), inmutable
	Name        string
	Unit        string
	Quantity    int64
	Location    string
	WarehouseID string // vacío si el ítem no tiene bodega
	Warehouse   string // nombre de la bodega, solo lectura (join)
	MinQty      int64  // 0 = sin alerta de stock bajo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsLowStock stock igual o por debajo del mínimo, con mínimo configurado.
func (i *Item) IsLowStock() bool {
	return i.MinQty > 0 && i.Quantity <= i.MinQty
}
