package cli

import (
	"fmt"
	"slices"

	"github.com/joho/godotenv"
	"github.com/nikolayk812/shoppingcart/internal/config"
	"github.com/nikolayk812/shoppingcart/internal/logger"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the state every subcommand shares.
type RootOptions struct {
	Format  string // "json" | "text"
	EnvFile string

	Config *config.Config
	Logger *logger.Logger
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cartctl",
		Short: "cartctl - shopping cart pricing and storage tool",
		Long:  "Quote carts from JSON, manage stored carts and run database migrations.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "dotenv file to load before reading CART_* variables")

	cmd.AddCommand(NewQuoteCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStoredCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil {
			return fmt.Errorf("godotenv.Load: %w", err)
		}
	} else {
		// a missing .env is fine
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o.Config = cfg

	o.Logger = logger.New(logger.Options{
		ServiceName: "cartctl",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		Output:      cmd.ErrOrStderr(),
	})

	return nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format: o.Format,
		Writer: cmd.OutOrStdout(),
	}
}
