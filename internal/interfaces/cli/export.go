package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/report"
	"github.com/NESTREN/aio-warehouse-bot/internal/bootstrap"
	"github.com/NESTREN/aio-warehouse-bot/internal/interfaces/csvio"
)

type exportOptions struct {
	output string
	bom    bool
}

// NewExportCommand agrupa los exportes CSV.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exporta existencias o historial como CSV",
	}
	cmd.PersistentFlags().StringVarP(&eo.output, "output", "o", "", "archivo destino (por defecto stdout)")
	cmd.PersistentFlags().BoolVar(&eo.bom, "bom", false, "antepone la marca UTF-8")

	cmd.AddCommand(newExportStockCommand(rootOpts, eo))
	cmd.AddCommand(newExportMovementsCommand(rootOpts, eo))
	return cmd
}

func newExportStockCommand(rootOpts *RootOptions, eo *exportOptions) *cobra.Command {
	var warehouse string
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Existencias actuales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				rows, err := svc.Exporter.ExportCurrentStock(ctx, warehouse)
				if err != nil {
					return err
				}
				return eo.write(cmd, func(w io.Writer, o csvio.WriteOptions) error {
					return csvio.Write(w, report.StockHeader, csvio.Records(rows), o)
				})
			})
		},
	}
	cmd.Flags().StringVar(&warehouse, "warehouse", "", "filtra por almacén")
	return cmd
}

func newExportMovementsCommand(rootOpts *RootOptions, eo *exportOptions) *cobra.Command {
	var item, since, until string
	cmd := &cobra.Command{
		Use:   "movements",
		Short: "Historial de movimientos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := report.MovementFilter{ItemRef: item}
			var err error
			if f.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if f.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}
			return rootOpts.withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				rows, err := svc.Exporter.ExportMovementHistory(ctx, f)
				if err != nil {
					return err
				}
				return eo.write(cmd, func(w io.Writer, o csvio.WriteOptions) error {
					return csvio.Write(w, report.MovementHeader, csvio.Records(rows), o)
				})
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "código del ítem")
	cmd.Flags().StringVar(&since, "since", "", "desde (RFC3339 o YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "hasta (RFC3339 o YYYY-MM-DD)")
	return cmd
}

func (eo *exportOptions) write(cmd *cobra.Command, fn func(io.Writer, csvio.WriteOptions) error) error {
	o := csvio.WriteOptions{BOM: eo.bom}
	if eo.output == "" {
		return fn(cmd.OutOrStdout(), o)
	}
	f, err := os.Create(eo.output)
	if err != nil {
		return err
	}
	if err := fn(f, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: formato inválido %q", name, v)
	}
	return t, nil
}
