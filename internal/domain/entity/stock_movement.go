package entity

import "time"

// Tipos de movimiento.
const (
	MovementKindDelta = "delta" // cambio relativo (+/-N)
	MovementKindSet   = "set"   // sobrescritura absoluta, registrada como delta equivalente
)

// StockMovement registro inmutable de un cambio de cantidad.
// Seq lo asigna el almacenamiento al insertar y nunca se reordena.
type StockMovement struct {
	ID           string
	Seq          int64
	ItemID       string
	ItemCode     string // solo lectura (join)
	Kind         string
	Delta        int64
	ResultingQty int64
	Actor        string
	Reason       string
	CreatedAt    time.Time
}

// Cursor devuelve el cursor que pagina a partir de este movimiento (exclusivo).
func (m *StockMovement) Cursor() HistoryCursor {
	return HistoryCursor{Before: m.CreatedAt, BeforeSeq: m.Seq}
}

// HistoryCursor posición en el historial inverso.
// Admite movimientos con timestamp estrictamente anterior a Before; si BeforeSeq > 0,
// también los del mismo timestamp con Seq menor.
type HistoryCursor struct {
	Before    time.Time
	BeforeSeq int64
}

// Admits indica si m queda después del cursor en orden cronológico inverso.
func (c HistoryCursor) Admits(m *StockMovement) bool {
	if m.CreatedAt.Before(c.Before) {
		return true
	}
	return c.BeforeSeq > 0 && m.CreatedAt.Equal(c.Before) && m.Seq < c.BeforeSeq
}
