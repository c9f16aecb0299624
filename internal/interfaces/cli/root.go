// Package cli comandos de administración: importación masiva, exportes,
// verificación del ledger y emisión de tokens.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/NESTREN/aio-warehouse-bot/internal/bootstrap"
	"github.com/NESTREN/aio-warehouse-bot/pkg/config"
	"github.com/NESTREN/aio-warehouse-bot/pkg/logger"
)

// RootOptions flags globales y origen de la configuración.
type RootOptions struct {
	Verbose bool
	Driver  string // sobrescribe DB_DRIVER
	DBPath  string // sobrescribe DB_PATH

	// LoadConfig por defecto config.Load; los tests lo reemplazan.
	LoadConfig func() (*config.Config, error)
}

// NewRootCommand crea el comando raíz.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "inventoryctl",
		Short:        "Administración del inventario",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "logs de depuración en stderr")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "almacenamiento (postgres|sqlite|memory)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db-path", "", "archivo SQLite")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) config() (*config.Config, error) {
	load := o.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("cargar configuración: %w", err)
	}
	if o.Driver != "" {
		cfg.DB.Driver = o.Driver
	}
	if o.DBPath != "" {
		cfg.DB.Path = o.DBPath
	}
	return cfg, nil
}

// logger en stderr para no mezclarse con el CSV de stdout.
func (o *RootOptions) logger(cfg *config.Config, errOut io.Writer) *logger.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logger.New(logger.Config{Env: cfg.App.Env, Level: level, Out: errOut})
}

// withServices abre el almacenamiento, ejecuta fn y cierra.
func (o *RootOptions) withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *bootstrap.Services) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, cleanup, err := bootstrap.Open(ctx, cfg, o.logger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, svc)
}
