package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/dto"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// WarehouseHandler maneja las peticiones HTTP para bodegas (protegido).
type WarehouseHandler struct {
	catalog *catalog.Catalog
	log     *logger.Logger
}

// NewWarehouseHandler construye el handler.
func NewWarehouseHandler(cat *catalog.Catalog, log *logger.Logger) *WarehouseHandler {
	return &WarehouseHandler{catalog: cat, log: log}
}

// Create POST /api/warehouses
func (h *WarehouseHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateWarehouseRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	w, err := h.catalog.CreateWarehouse(c.Context(), in.Name, in.Address, in.Notes)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.WarehouseFromEntity(w))
}

// List GET /api/warehouses
func (h *WarehouseHandler) List(c *fiber.Ctx) error {
	list, err := h.catalog.ListWarehouses(c.Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]dto.WarehouseResponse, 0, len(list))
	for _, w := range list {
		out = append(out, dto.WarehouseFromEntity(w))
	}
	return c.JSON(fiber.Map{"warehouses": out, "total": len(out)})
}

// Delete DELETE /api/warehouses/:name
func (h *WarehouseHandler) Delete(c *fiber.Ctx) error {
	if err := h.catalog.DeleteWarehouse(c.Context(), c.Params("name")); err != nil {
		return writeError(c, h.log, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
