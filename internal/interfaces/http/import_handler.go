package http

import (
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/dto"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/interfaces/csvio"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// ImportHandler recibe lotes CSV (text/csv) y los pasa al importador.
type ImportHandler struct {
	importer *importer.Importer
	log      *logger.Logger
}

// NewImportHandler construye el handler.
func NewImportHandler(im *importer.Importer, log *logger.Logger) *ImportHandler {
	return &ImportHandler{importer: im, log: log}
}

// Import POST /api/import. Si el lote se corta por un fallo de almacenamiento
// se responde con el status del error y el reporte parcial.
func (h *ImportHandler) Import(c *fiber.Ctx) error {
	rows, err := csvio.ParseText(string(c.Body()))
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info().Str("actor", GetActor(c)).Int("rows", len(rows)).Msg("importación recibida")

	rep, err := h.importer.Import(c.Context(), slices.Values(rows), nil)
	out := dto.ImportFromReport(rep)
	if err != nil {
		status, code := errorStatus(err)
		h.log.Error().Err(err).Str("code", code).Msg("importación interrumpida")
		out.Error = "import aborted: storage unavailable, processed rows are kept"
		return c.Status(status).JSON(out)
	}
	return c.JSON(out)
}
