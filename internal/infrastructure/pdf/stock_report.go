// Package pdf genera el reporte de existencias en PDF (A4).
//
// Layout de la página:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Título + bodega       │  Fecha de generación       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Código | Nombre | Cant. | Unidad | Bodega | Mín.    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RESUMEN: ítems / unidades / bajo mínimo                     │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strconv"
	"time"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorAlert   = &props.Color{Red: 180, Green: 30, Blue: 30}
)

// ── Generator ─────────────────────────────────────────────────────────────────

// StockReport metadatos del reporte.
type StockReport struct {
	Title       string
	Warehouse   string // vacío = todas las bodegas
	GeneratedAt time.Time
	Rows        []report.StockRow
}

// MarotoStockGenerator genera el reporte de existencias con Maroto v2.
type MarotoStockGenerator struct{}

// NewMarotoStockGenerator construye el generador.
func NewMarotoStockGenerator() *MarotoStockGenerator { return &MarotoStockGenerator{} }

// GenerateStockPDF genera el PDF y devuelve sus bytes.
func (g *MarotoStockGenerator) GenerateStockPDF(_ context.Context, r StockReport) ([]byte, error) {
	title := nonEmpty(r.Title, "Reporte de existencias")
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(title, r.Warehouse, r.GeneratedAt))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	m.AddRows(tableHeaderRow())
	m.AddRows(tableDetailRows(r.Rows)...)

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(summaryRow(r.Rows))

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

func headerRow(title, warehouse string, at time.Time) core.Row {
	return row.New(16).Add(
		col.New(8).Add(
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("Bodega: "+nonEmpty(warehouse, "todas"), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(4).Add(
			text.New("Generado: "+at.UTC().Format("02/01/2006 15:04")+" UTC", props.Text{
				Size: 8, Align: align.Right, Top: 2, Color: colorGray,
			}),
		),
	)
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Código", 2, align.Left),
		h("Nombre", 4, align.Left),
		h("Cant.", 2, align.Right),
		h("Unidad", 1, align.Center),
		h("Bodega", 2, align.Left),
		h("Mín.", 1, align.Right),
	)
}

// tableDetailRows una fila por ítem; los que están en o bajo el mínimo van en rojo.
func tableDetailRows(rows []report.StockRow) []core.Row {
	result := make([]core.Row, 0, len(rows))
	for _, r := range rows {
		c := colorBlack()
		if r.MinQty > 0 && r.Quantity <= r.MinQty {
			c = colorAlert
		}
		cell := func(s string, size int, a align.Type) core.Col {
			return col.New(size).Add(text.New(s, props.Text{Size: 8, Align: a, Top: 1, Left: 1, Right: 1, Color: c}))
		}
		result = append(result, row.New(6).Add(
			cell(r.Code, 2, align.Left),
			cell(r.Name, 4, align.Left),
			cell(formatQty(r.Quantity), 2, align.Right),
			cell(r.Unit, 1, align.Center),
			cell(nonEmpty(r.Warehouse, "—"), 2, align.Left),
			cell(formatQty(r.MinQty), 1, align.Right),
		))
	}
	return result
}

func summaryRow(rows []report.StockRow) core.Row {
	var units, low int64
	for _, r := range rows {
		units += r.Quantity
		if r.MinQty > 0 && r.Quantity <= r.MinQty {
			low++
		}
	}
	label := func(s string) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	return row.New(16).Add(
		col.New(6),
		col.New(3).Add(
			label("Ítems:"),
			label("Unidades:"),
			label("Bajo mínimo:"),
		),
		col.New(3).Add(
			value(formatQty(int64(len(rows)))),
			value(formatQty(units)),
			value(formatQty(low)),
		),
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func colorBlack() *props.Color { return &props.Color{} }

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatQty inserta puntos de miles. Ej: 25000 → "25.000".
func formatQty(v int64) string {
	s := strconv.FormatInt(v, 10)
	sign := ""
	if v < 0 {
		sign, s = "-", s[1:]
	}
	n := len(s)
	if n <= 3 {
		return sign + s
	}
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(s) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return sign + string(buf)
}
