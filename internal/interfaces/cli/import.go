package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/NESTREN/aio-warehouse-bot/internal/application/importer"
	"github.com/NESTREN/aio-warehouse-bot/internal/bootstrap"
	"github.com/NESTREN/aio-warehouse-bot/internal/interfaces/csvio"
)

// NewImportCommand importa un archivo CSV (o stdin con "-").
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Importación masiva de ítems",
		Long: `Cada línea: code,name,qty,unit,location,warehouse,min_qty.
Códigos nuevos se crean con su cantidad inicial; códigos existentes con qty
reciben esa cantidad como valor absoluto. Las filas inválidas se reportan y
no detienen el lote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	var in io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	rows, err := csvio.ReadRows(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	return opts.withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
		rep, err := svc.Importer.Import(ctx, slices.Values(rows), func(r importer.RowResult) {
			if r.Outcome == importer.OutcomeRejected {
				fmt.Fprintf(out, "line %d (%s): %s\n", r.Line, r.Code, r.Reason)
			}
		})
		fmt.Fprintf(out, "created=%d updated=%d rejected=%d\n", rep.Created, rep.Updated, rep.Rejected)
		return err
	})
}
