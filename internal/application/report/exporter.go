// Package report genera instantáneas planas (stock actual, historial) leídas
// dentro de una única transacción de solo lectura.
package report

import (
	"context"
	"strconv"
	"time"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// TimestampLayout formato de fecha en las filas exportadas.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// StockHeader nombres de columna de ExportCurrentStock.
var StockHeader = []string{"code", "name", "quantity", "unit", "location", "warehouse", "min_qty"}

// MovementHeader nombres de columna de ExportMovementHistory.
var MovementHeader = []string{"timestamp", "code", "kind", "delta", "resulting_quantity", "actor", "reason"}

// StockRow fila del reporte de stock.
type StockRow struct {
	Code      string
	Name      string
	Quantity  int64
	Unit      string
	Location  string
	Warehouse string
	MinQty    int64
}

// Record campos en el orden de StockHeader.
func (r StockRow) Record() []string {
	return []string{
		r.Code,
		r.Name,
		strconv.FormatInt(r.Quantity, 10),
		r.Unit,
		r.Location,
		r.Warehouse,
		strconv.FormatInt(r.MinQty, 10),
	}
}

// MovementRow fila del reporte de historial.
type MovementRow struct {
	Timestamp    time.Time
	Code         string
	Kind         string
	Delta        int64
	ResultingQty int64
	Actor        string
	Reason       string
}

// Record campos en el orden de MovementHeader.
func (r MovementRow) Record() []string {
	return []string{
		r.Timestamp.UTC().Format(TimestampLayout),
		r.Code,
		r.Kind,
		strconv.FormatInt(r.Delta, 10),
		strconv.FormatInt(r.ResultingQty, 10),
		r.Actor,
		r.Reason,
	}
}

// MovementFilter ItemRef vacío exporta todos los ítems; tiempos cero dejan el rango abierto.
type MovementFilter struct {
	ItemRef string
	Since   time.Time
	Until   time.Time
}

// Exporter lecturas puras; los errores se propagan sin reportes parciales.
type Exporter struct {
	tx  repository.TxRunner
	log *logger.Logger
}

// NewExporter construye el exportador. log puede ser nil.
func NewExporter(tx repository.TxRunner, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{tx: tx, log: log.Component("report")}
}

// ExportCurrentStock stock actual ordenado por código, opcionalmente de una sola bodega.
func (e *Exporter) ExportCurrentStock(ctx context.Context, warehouse string) ([]StockRow, error) {
	q := repository.ItemQuery{WarehouseKey: entity.NormalizeKey(warehouse), Sort: repository.SortByCode}
	var out []StockRow
	err := e.tx.View(ctx, func(r repository.Repos) error {
		for it, err := range r.Items.Search(ctx, q) {
			if err != nil {
				return err
			}
			out = append(out, StockRow{
				Code:      it.Code,
				Name:      it.Name,
				Quantity:  it.Quantity,
				Unit:      it.Unit,
				Location:  it.Location,
				Warehouse: it.Warehouse,
				MinQty:    it.MinQty,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug().Int("rows", len(out)).Str("warehouse", warehouse).Msg("stock exportado")
	return out, nil
}

// ExportMovementHistory movimientos en orden cronológico ascendente (empates por seq).
func (e *Exporter) ExportMovementHistory(ctx context.Context, f MovementFilter) ([]MovementRow, error) {
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return nil, domain.Validation("until must not be before since")
	}
	var out []MovementRow
	err := e.tx.View(ctx, func(r repository.Repos) error {
		q := repository.MovementRange{Since: f.Since, Until: f.Until}
		if f.ItemRef != "" {
			item, err := catalog.FindItem(ctx, r.Items, f.ItemRef)
			if err != nil {
				return err
			}
			q.ItemID = item.ID
		}
		for m, err := range r.Movements.Range(ctx, q) {
			if err != nil {
				return err
			}
			out = append(out, MovementRow{
				Timestamp:    m.CreatedAt,
				Code:         m.ItemCode,
				Kind:         m.Kind,
				Delta:        m.Delta,
				ResultingQty: m.ResultingQty,
				Actor:        m.Actor,
				Reason:       m.Reason,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Debug().Int("rows", len(out)).Str("item", f.ItemRef).Msg("historial exportado")
	return out, nil
}
