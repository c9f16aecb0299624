package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NESTREN/aio-warehouse-bot/internal/bootstrap"
)

// NewVerifyCommand reproduce el historial y lo compara con la cantidad guardada.
// Sin argumentos verifica todos los ítems.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [code]",
		Short: "Verifica la consistencia del ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return rootOpts.withServices(cmd, func(ctx context.Context, svc *bootstrap.Services) error {
				if len(args) == 1 {
					qty, err := svc.Ledger.Verify(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "ok %s quantity=%d\n", args[0], qty)
					return nil
				}
				checked, err := svc.Ledger.VerifyAll(ctx)
				fmt.Fprintf(out, "checked=%d\n", checked)
				return err
			})
		},
	}
	return cmd
}
