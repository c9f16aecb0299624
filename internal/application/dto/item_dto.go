package dto

import (
	"time"

	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
)

// CreateItemRequest alta (o resolución) de un ítem. Quantity > 0 registra un movimiento inicial.
type CreateItemRequest struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	Location  string `json:"location"`
	Warehouse string `json:"warehouse"`
	MinQty    int64  `json:"min_qty"`
	Quantity  int64  `json:"quantity"`
}

// UpdateItemRequest campos opcionales; nil = sin cambio.
type UpdateItemRequest struct {
	Name      *string `json:"name"`
	Unit      *string `json:"unit"`
	Location  *string `json:"location"`
	Warehouse *string `json:"warehouse"`
	MinQty    *int64  `json:"min_qty"`
}

// AdjustRequest cambio relativo de cantidad.
type AdjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// SetQuantityRequest sobrescritura absoluta de cantidad.
type SetQuantityRequest struct {
	Quantity *int64 `json:"quantity"`
	Reason   string `json:"reason"`
}

// ItemResponse representación pública de un ítem.
type ItemResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Quantity  int64     `json:"quantity"`
	Location  string    `json:"location"`
	Warehouse string    `json:"warehouse"`
	MinQty    int64     `json:"min_qty"`
	LowStock  bool      `json:"low_stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemListResponse resultado de búsqueda.
type ItemListResponse struct {
	Items []ItemResponse `json:"items"`
	Total int            `json:"total"`
}

// QuantityResponse cantidad resultante tras un movimiento.
type QuantityResponse struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity"`
}

// MovementResponse un movimiento del historial.
type MovementResponse struct {
	ID           string    `json:"id"`
	Seq          int64     `json:"seq"`
	Code         string    `json:"code"`
	Kind         string    `json:"kind"`
	Delta        int64     `json:"delta"`
	ResultingQty int64     `json:"resulting_quantity"`
	Actor        string    `json:"actor"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// CursorResponse posición para pedir la página siguiente (before, before_seq).
type CursorResponse struct {
	Before    time.Time `json:"before"`
	BeforeSeq int64     `json:"before_seq"`
}

// HistoryResponse página del historial; Next es nil en la última página.
type HistoryResponse struct {
	Movements []MovementResponse `json:"movements"`
	Next      *CursorResponse    `json:"next,omitempty"`
}

// VerifyResponse resultado de reconstruir la cantidad desde el historial.
type VerifyResponse struct {
	Code     string `json:"code"`
	Quantity int64  `json:"quantity"`
	OK       bool   `json:"ok"`
}

// ItemFromEntity mapea la entidad a la respuesta.
func ItemFromEntity(it *entity.Item) ItemResponse {
	return ItemResponse{
		ID:        it.ID,
		Code:      it.Code,
		Name:      it.Name,
		Unit:      it.Unit,
		Quantity:  it.Quantity,
		Location:  it.Location,
		Warehouse: it.Warehouse,
		MinQty:    it.MinQty,
		LowStock:  it.IsLowStock(),
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

// MovementFromEntity mapea el movimiento a la respuesta.
func MovementFromEntity(m *entity.StockMovement) MovementResponse {
	return MovementResponse{
		ID:           m.ID,
		Seq:          m.Seq,
		Code:         m.ItemCode,
		Kind:         m.Kind,
		Delta:        m.Delta,
		ResultingQty: m.ResultingQty,
		Actor:        m.Actor,
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt,
	}
}
