package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/NESTREN/aio-warehouse-bot/internal/bootstrap"
	infrapdf "github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/pdf"
	httpRouter "github.com/NESTREN/aio-warehouse-bot/internal/interfaces/http"
	"github.com/NESTREN/aio-warehouse-bot/pkg/config"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("driver", cfg.DB.Driver).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx := context.Background()
	svc, cleanup, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar almacenamiento")
	}
	defer cleanup()

	app := httpRouter.NewApp(cfg.App.Name)
	app.Server().ReadTimeout = 10 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 60 * time.Second
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		Catalog:            svc.Catalog,
		Ledger:             svc.Ledger,
		Importer:           svc.Importer,
		Exporter:           svc.Exporter,
		PDF:                infrapdf.NewMarotoStockGenerator(),
		JWTSecret:          cfg.JWT.Secret,
		AllowedActors:      cfg.JWT.AllowedActors,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Driver:             svc.Driver,
		Log:                log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
