package entity

import "time"

// Warehouse representa una bodega (física o lógica) referenciada por ítems.
type Warehouse struct {
	ID        string
	Name      string
	NameKey   string // NormalizeKey(Name), único
	Address   string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
