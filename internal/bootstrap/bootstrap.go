// Package bootstrap arma el Storage Gateway y los casos de uso según la configuración.
// Lo comparten el servidor HTTP y la CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/catalog"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/inventory"
	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
	"github.com/NESTREN/aio-warehouse-bot/internal/domain/repository"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/memory"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/postgres"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/redislock"
	"github.com/NESTREN/aio-warehouse-bot/internal/infrastructure/sqlite"
	"github.com/NESTREN/aio-warehouse-bot/pkg/config"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// Services casos de uso listos para usar.
type Services struct {
	Driver   string
	Gateway  repository.TxRunner
	Catalog  *catalog.Catalog
	Ledger   *inventory.Ledger
	Importer *importer.Importer
	Exporter *report.Exporter
}

// Open conecta el almacenamiento configurado y construye los casos de uso.
// El cleanup devuelto cierra conexiones; se debe llamar siempre que err sea nil.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, func(), error) {
	if log == nil {
		log = logger.Nop()
	}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	gw, closeGW, err := openGateway(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeGW)

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeLocker)

	cat := catalog.New(gw, log)
	led := inventory.NewLedger(gw, log,
		inventory.WithLocker(locker),
		inventory.WithLockTimeout(cfg.Ledger.LockTimeout),
	)
	log.Info().Str("driver", cfg.DB.Driver).Bool("redis_lock", cfg.Redis.Addr != "").Msg("almacenamiento listo")

	return &Services{
		Driver:   cfg.DB.Driver,
		Gateway:  gw,
		Catalog:  cat,
		Ledger:   led,
		Importer: importer.New(cat, led, log, importer.WithActor(cfg.Import.Actor)),
		Exporter: report.NewExporter(gw, log),
	}, cleanup, nil
}

func openGateway(ctx context.Context, cfg *config.Config) (repository.TxRunner, func(), error) {
	switch cfg.DB.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout), pool.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DB.Path, cfg.Ledger.LockTimeout)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.DriverMemory:
		return memory.New(memory.WithLockTimeout(cfg.Ledger.LockTimeout)), func() {}, nil
	}
	return nil, nil, fmt.Errorf("DB_DRIVER desconocido: %q", cfg.DB.Driver)
}

// openLocker usa Redis si REDIS_ADDR está definido (varias instancias); si no, el lock en proceso.
func openLocker(ctx context.Context, cfg *config.Config) (inventory.ItemLocker, func(), error) {
	if cfg.Redis.Addr == "" {
		return memory.NewKeyLock(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("conexión a Redis: %w", err)
	}
	return redislock.New(client, 0), func() { _ = client.Close() }, nil
}
