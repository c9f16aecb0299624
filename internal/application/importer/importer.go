// Package importer procesa altas masivas fila por fila: cada fila es su propia
// unidad atómica y un rechazo nunca detiene el lote.
package importer

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// DefaultActor actor registrado en los movimientos del importador.
const DefaultActor = "bulk-import"

// Columnas de una fila: code,name,qty,unit,location,warehouse,min_qty (las finales son opcionales).
const (
	colCode = iota
	colName
	colQty
	colUnit
	colLocation
	colWarehouse
	colMinQty
)

// Row campos ya separados de una línea de entrada.
type Row []string

func (r Row) field(i int) string {
	if i < len(r) {
		return strings.TrimSpace(r[i])
	}
	return ""
}

// Outcome resultado de una fila.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeRejected Outcome = "rejected"
)

// RowResult resultado de una fila; Line es 1-based en el orden de entrada.
type RowResult struct {
	Line    int
	Code    string
	Outcome Outcome
	Reason  string // solo en Rejected, se muestra tal cual al usuario
}

// Report resultado ordenado del lote más los totales.
type Report struct {
	Rows     []RowResult
	Created  int
	Updated  int
	Rejected int
}

func (r *Report) add(res RowResult) {
	r.Rows = append(r.Rows, res)
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeRejected:
		r.Rejected++
	}
}

// Progress se invoca tras procesar cada fila.
type Progress func(RowResult)

// Importer orquesta Catalog y Ledger por fila.
type Importer struct {
	catalog *catalog.Catalog
	ledger  *inventory.Ledger
	actor   string
	log     *logger.Logger
	tracer  trace.Tracer
}

// Option configura el Importer.
type Option func(*Importer)

// WithActor reemplaza el actor por defecto.
func WithActor(actor string) Option {
	return func(im *Importer) {
		if actor = strings.TrimSpace(actor); actor != "" {
			im.actor = actor
		}
	}
}

// New construye el importador. log puede ser nil.
func New(cat *catalog.Catalog, led *inventory.Ledger, log *logger.Logger, opts ...Option) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	im := &Importer{
		catalog: cat,
		ledger:  led,
		actor:   DefaultActor,
		log:     log.Component("importer"),
		tracer:  otel.Tracer("aio-warehouse-bot/importer"),
	}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import procesa las filas en orden. Los rechazos de dominio quedan en el reporte;
// un fallo de infraestructura corta el lote y devuelve el reporte parcial con el error.
// Las filas ya procesadas quedan aplicadas: relanzar el lote es seguro.
func (im *Importer) Import(ctx context.Context, rows iter.Seq[Row], progress Progress) (*Report, error) {
	ctx, span := im.tracer.Start(ctx, "importer.import", trace.WithAttributes(attribute.String("actor", im.actor)))
	defer span.End()

	report := &Report{}
	line := 0
	for row := range rows {
		line++
		res, err := im.importRow(ctx, row)
		res.Line = line
		if err != nil {
			if !domain.IsRejection(err) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "lote abortado")
				im.log.Error().Err(err).Int("line", line).Msg("lote abortado por fallo de almacenamiento")
				return report, fmt.Errorf("import line %d: %w", line, err)
			}
			res.Outcome = OutcomeRejected
			res.Reason = domain.Reason(err)
			im.log.Warn().Int("line", line).Str("code", res.Code).Str("reason", res.Reason).Msg("fila rechazada")
		}
		report.add(res)
		if progress != nil {
			progress(res)
		}
	}

	span.SetAttributes(
		attribute.Int("rows.created", report.Created),
		attribute.Int("rows.updated", report.Updated),
		attribute.Int("rows.rejected", report.Rejected),
	)
	im.log.Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("rejected", report.Rejected).
		Msg("importación terminada")
	return report, nil
}

func (im *Importer) importRow(ctx context.Context, row Row) (RowResult, error) {
	code := row.field(colCode)
	res := RowResult{Code: code}
	if code == "" {
		return res, domain.Validation("code required")
	}
	qty, hasQty, err := ParseQuantity(row.field(colQty))
	if err != nil {
		return res, err
	}
	minQty, _, err := ParseQuantity(row.field(colMinQty))
	if err != nil {
		return res, domain.Validation("min_qty: " + domain.Reason(err))
	}

	item, created, err := im.catalog.ResolveOrCreate(ctx, catalog.NewItem{
		Code:      code,
		Name:      row.field(colName),
		Unit:      row.field(colUnit),
		Location:  row.field(colLocation),
		Warehouse: row.field(colWarehouse),
		MinQty:    minQty,
	})
	if err != nil {
		return res, err
	}
	res.Code = item.Code

	if created {
		res.Outcome = OutcomeCreated
		if hasQty && qty > 0 {
			if _, err := im.ledger.ApplyDelta(ctx, item.CodeKey, qty, im.actor, "bulk import"); err != nil {
				return res, err
			}
		}
		return res, nil
	}

	// Código existente con cantidad: se sobrescribe (set), no se suma.
	res.Outcome = OutcomeUpdated
	if hasQty {
		if _, err := im.ledger.SetQuantity(ctx, item.CodeKey, qty, im.actor, "bulk import"); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ParseQuantity interpreta una cantidad entera no negativa. Acepta separadores
// de miles con espacio ("1 000") y coma decimal ("10,0"); rechaza fracciones.
// Campo vacío devuelve present=false.
func ParseQuantity(s string) (qty int64, present bool, err error) {
	raw := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\u00a0', '\u202f':
			return -1
		case ',':
			return '.'
		}
		return r
	}, s)
	if raw == "" {
		return 0, false, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, true, domain.Validationf("invalid quantity: %q", strings.TrimSpace(s))
	}
	if d.IsNegative() {
		return 0, true, domain.Validation("quantity must be a non-negative integer")
	}
	if !d.IsInteger() {
		return 0, true, domain.Validationf("quantity must be a whole number: %q", strings.TrimSpace(s))
	}
	if !d.BigInt().IsInt64() {
		return 0, true, domain.Validationf("quantity out of range: %q", strings.TrimSpace(s))
	}
	return d.IntPart(), true, nil
}
