package http

import (
	"bytes"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/pdf"
	"github.com/NESTREN/aio-warehouse-bot/internal/interfaces/csvio"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// ReportHandler descarga de existencias e historial (CSV) y existencias en PDF.
type ReportHandler struct {
	exporter *report.Exporter
	pdf      *pdf.MarotoStockGenerator
	log      *logger.Logger
	now      func() time.Time
}

// NewReportHandler construye el handler.
func NewReportHandler(exp *report.Exporter, gen *pdf.MarotoStockGenerator, log *logger.Logger) *ReportHandler {
	return &ReportHandler{exporter: exp, pdf: gen, log: log, now: time.Now}
}

// StockCSV GET /api/reports/stock.csv?warehouse=
func (h *ReportHandler) StockCSV(c *fiber.Ctx) error {
	rows, err := h.exporter.ExportCurrentStock(c.Context(), c.Query("warehouse"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	var buf bytes.Buffer
	if err := csvio.Write(&buf, report.StockHeader, csvio.Records(rows), csvio.WriteOptions{BOM: true}); err != nil {
		return writeError(c, h.log, err)
	}
	return h.sendFile(c, "stock.csv", "text/csv; charset=utf-8", buf.Bytes())
}

// MovementsCSV GET /api/reports/movements.csv?item=&since=&until=
func (h *ReportHandler) MovementsCSV(c *fiber.Ctx) error {
	since, err := parseTimeParam("since", c.Query("since"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	until, err := parseTimeParam("until", c.Query("until"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	rows, err := h.exporter.ExportMovementHistory(c.Context(), report.MovementFilter{
		ItemRef: c.Query("item"),
		Since:   since,
		Until:   until,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	var buf bytes.Buffer
	if err := csvio.Write(&buf, report.MovementHeader, csvio.Records(rows), csvio.WriteOptions{BOM: true}); err != nil {
		return writeError(c, h.log, err)
	}
	return h.sendFile(c, "movements.csv", "text/csv; charset=utf-8", buf.Bytes())
}

// StockPDF GET /api/reports/stock.pdf?warehouse=
func (h *ReportHandler) StockPDF(c *fiber.Ctx) error {
	warehouse := c.Query("warehouse")
	rows, err := h.exporter.ExportCurrentStock(c.Context(), warehouse)
	if err != nil {
		return writeError(c, h.log, err)
	}
	doc, err := h.pdf.GenerateStockPDF(c.Context(), pdf.StockReport{
		Warehouse:   warehouse,
		GeneratedAt: h.now(),
		Rows:        rows,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return h.sendFile(c, "stock.pdf", "application/pdf", doc)
}

func (h *ReportHandler) sendFile(c *fiber.Ctx, name, contentType string, body []byte) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Send(body)
}

// parseTimeParam acepta RFC 3339 o una fecha YYYY-MM-DD (UTC). Vacío = sin límite.
func parseTimeParam(name, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, domain.Validationf("%s must be an RFC 3339 timestamp or YYYY-MM-DD date", name)
}
