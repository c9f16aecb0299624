package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/dto"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/pdf"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Catalog            *catalog.Catalog
	Ledger             *inventory.Ledger
	Importer           *importer.Importer
	Exporter           *report.Exporter
	PDF                *pdf.MarotoStockGenerator
	JWTSecret          string
	AllowedActors      []string
	RateLimitPerMinute int
	Driver             string
	Log                *logger.Logger
}

// NewApp construye la aplicación Fiber con la configuración común.
func NewApp(appName string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      appName,
		UnescapePath: true,
		BodyLimit:    16 * 1024 * 1024,
	})
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.Component("http")

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(dto.HealthResponse{Status: "ok", Driver: deps.Driver})
	})

	// Rutas protegidas (requieren Bearer Token)
	api := app.Group("/api",
		AuthMiddleware(deps.JWTSecret),
		RequireActor(deps.AllowedActors...),
		RateLimit(deps.RateLimitPerMinute),
	)

	// Items + ledger
	items := api.Group("/items")
	itemHandler := NewItemHandler(deps.Catalog, deps.Ledger, log)
	items.Get("/", itemHandler.Search)
	items.Get("/low-stock", itemHandler.LowStock)
	items.Post("/", itemHandler.Create)
	items.Get("/:ref", itemHandler.Get)
	items.Patch("/:ref", itemHandler.Update)
	items.Post("/:ref/adjust", itemHandler.Adjust)
	items.Post("/:ref/set", itemHandler.Set)
	items.Get("/:ref/history", itemHandler.History)
	items.Get("/:ref/verify", itemHandler.Verify)
	api.Get("/movements/recent", itemHandler.Recent)

	// Warehouses
	warehouses := api.Group("/warehouses")
	warehouseHandler := NewWarehouseHandler(deps.Catalog, log)
	warehouses.Get("/", warehouseHandler.List)
	warehouses.Post("/", warehouseHandler.Create)
	warehouses.Delete("/:name", warehouseHandler.Delete)

	// Bulk import
	importHandler := NewImportHandler(deps.Importer, log)
	api.Post("/import", importHandler.Import)

	// Reports
	reports := api.Group("/reports")
	reportHandler := NewReportHandler(deps.Exporter, deps.PDF, log)
	reports.Get("/stock.csv", reportHandler.StockCSV)
	reports.Get("/movements.csv", reportHandler.MovementsCSV)
	reports.Get("/stock.pdf", reportHandler.StockPDF)
}
