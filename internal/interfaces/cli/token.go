package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NESTREN/aio-warehouse-bot/pkg/jwt"
)

// NewTokenCommand emite un token Bearer para el actor, firmado con JWT_SECRET.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:   "token <actor>",
		Short: "Emite un token de acceso a la API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.config()
			if err != nil {
				return err
			}
			if minutes <= 0 {
				minutes = cfg.JWT.Expiration
			}
			tok, err := jwt.Generate(cfg.JWT.Secret, args[0], cfg.JWT.Issuer, minutes)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 0, "vigencia (por defecto JWT_EXPIRATION_MINUTES)")
	return cmd
}
