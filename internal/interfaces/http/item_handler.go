package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/dto"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/entity"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ItemHandler maneja ítems y sus movimientos (protegido).
type ItemHandler struct {
	catalog *catalog.Catalog
	ledger  *inventory.Ledger
	log     *logger.Logger
}

// NewItemHandler construye el handler.
func NewItemHandler(cat *catalog.Catalog, led *inventory.Ledger, log *logger.Logger) *ItemHandler {
	return &ItemHandler{catalog: cat, ledger: led, log: log}
}

// Search GET /api/items?q=&warehouse=&sort=
func (h *ItemHandler) Search(c *fiber.Ctx) error {
	sort, err := catalog.ParseSort(c.Query("sort"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := dto.ItemListResponse{Items: []dto.ItemResponse{}}
	for it, err := range h.catalog.Search(c.Context(), c.Query("q"), c.Query("warehouse"), sort) {
		if err != nil {
			return writeError(c, h.log, err)
		}
		out.Items = append(out.Items, dto.ItemFromEntity(it))
	}
	out.Total = len(out.Items)
	return c.JSON(out)
}

// LowStock GET /api/items/low-stock
func (h *ItemHandler) LowStock(c *fiber.Ctx) error {
	items, err := h.catalog.LowStock(c.Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := dto.ItemListResponse{Items: make([]dto.ItemResponse, 0, len(items)), Total: len(items)}
	for _, it := range items {
		out.Items = append(out.Items, dto.ItemFromEntity(it))
	}
	return c.JSON(out)
}

// Get GET /api/items/:ref (código o ID)
func (h *ItemHandler) Get(c *fiber.Ctx) error {
	it, err := h.catalog.Get(c.Context(), c.Params("ref"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.ItemFromEntity(it))
}

// Create POST /api/items. 201 si se creó; 200 con el ítem existente si el código ya estaba.
func (h *ItemHandler) Create(c *fiber.Ctx) error {
	var in dto.CreateItemRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.Quantity < 0 {
		return writeError(c, h.log, domain.Validation("quantity must be a non-negative integer"))
	}
	it, created, err := h.catalog.ResolveOrCreate(c.Context(), catalog.NewItem{
		Code:      in.Code,
		Name:      in.Name,
		Unit:      in.Unit,
		Location:  in.Location,
		Warehouse: in.Warehouse,
		MinQty:    in.MinQty,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !created {
		return c.JSON(dto.ItemFromEntity(it))
	}
	if in.Quantity > 0 {
		qty, err := h.ledger.ApplyDelta(c.Context(), it.Code, in.Quantity, GetActor(c), "initial stock")
		if err != nil {
			return writeError(c, h.log, err)
		}
		it.Quantity = qty
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ItemFromEntity(it))
}

// Update PATCH /api/items/:ref
func (h *ItemHandler) Update(c *fiber.Ctx) error {
	var in dto.UpdateItemRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	it, err := h.catalog.UpdateItem(c.Context(), c.Params("ref"), catalog.ItemPatch{
		Name:      in.Name,
		Unit:      in.Unit,
		Location:  in.Location,
		Warehouse: in.Warehouse,
		MinQty:    in.MinQty,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.ItemFromEntity(it))
}

// Adjust POST /api/items/:ref/adjust {delta, reason}
func (h *ItemHandler) Adjust(c *fiber.Ctx) error {
	var in dto.AdjustRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	item, err := h.catalog.Get(c.Context(), c.Params("ref"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	qty, err := h.ledger.ApplyDelta(c.Context(), item.CodeKey, in.Delta, GetActor(c), in.Reason)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.QuantityResponse{Code: item.Code, Quantity: qty})
}

// Set POST /api/items/:ref/set {quantity, reason}
func (h *ItemHandler) Set(c *fiber.Ctx) error {
	var in dto.SetQuantityRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.Quantity == nil {
		return writeError(c, h.log, domain.Validation("quantity required"))
	}
	item, err := h.catalog.Get(c.Context(), c.Params("ref"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	qty, err := h.ledger.SetQuantity(c.Context(), item.CodeKey, *in.Quantity, GetActor(c), in.Reason)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.QuantityResponse{Code: item.Code, Quantity: qty})
}

// History GET /api/items/:ref/history?limit=&before=&before_seq=
func (h *ItemHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	cursor, err := parseCursor(c.Query("before"), c.QueryInt("before_seq", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}

	out := dto.HistoryResponse{Movements: []dto.MovementResponse{}}
	var last *entity.StockMovement
	for m, err := range h.ledger.History(c.Context(), c.Params("ref"), limit, cursor) {
		if err != nil {
			return writeError(c, h.log, err)
		}
		out.Movements = append(out.Movements, dto.MovementFromEntity(m))
		last = m
	}
	if last != nil && len(out.Movements) == limit {
		next := last.Cursor()
		out.Next = &dto.CursorResponse{Before: next.Before, BeforeSeq: next.BeforeSeq}
	}
	return c.JSON(out)
}

// Verify GET /api/items/:ref/verify
func (h *ItemHandler) Verify(c *fiber.Ctx) error {
	item, err := h.catalog.Get(c.Context(), c.Params("ref"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	qty, err := h.ledger.Verify(c.Context(), item.CodeKey)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.VerifyResponse{Code: item.Code, Quantity: qty, OK: true})
}

// Recent GET /api/movements/recent?limit=
func (h *ItemHandler) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	list, err := h.ledger.Recent(c.Context(), limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	out := make([]dto.MovementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, dto.MovementFromEntity(m))
	}
	return c.JSON(fiber.Map{"movements": out})
}

func parseCursor(before string, seq int) (*entity.HistoryCursor, error) {
	before = strings.TrimSpace(before)
	if before == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, before)
	if err != nil {
		return nil, domain.Validation("before must be an RFC 3339 timestamp")
	}
	if seq < 0 {
		return nil, domain.Validation("before_seq must be non-negative")
	}
	return &entity.HistoryCursor{Before: t.UTC(), BeforeSeq: int64(seq)}, nil
}
