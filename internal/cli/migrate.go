package cli

import (
	"fmt"

	"github.com/nikolayk812/shoppingcart/internal/migrations"
	"github.com/spf13/cobra"
)

var migrateCommands = []string{"up", "down", "status"}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate <up|down|status>",
		Short:     "Apply or inspect the cart table migrations",
		Long:      "Run goose against CART_DB_DSN with the embedded Postgres migrations.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cfg.DB.Driver == "sqlite" {
				return fmt.Errorf("migrate supports postgres only, sqlite tables are created on open")
			}

			ctx := rootOpts.Logger.WithFields(cmd.Context(), map[string]any{"cmd": "migrate", "action": args[0]})

			db, err := migrations.Open(cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Run(ctx, db, args[0]); err != nil {
				rootOpts.Logger.Error(ctx, "migration failed", err)
				return err
			}

			rootOpts.Logger.Info(ctx, "migration finished")
			return rootOpts.formatter(cmd).Success(fmt.Sprintf("migrate %s: ok", args[0]))
		},
	}

	return cmd
}
