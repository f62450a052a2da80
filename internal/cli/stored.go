package cli

import (
	"fmt"

	"github.com/nikolayk812/shoppingcart/internal/domain"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/record"
	"github.com/spf13/cobra"
)

type storedOptions struct {
	Identifier string
	Instance   string
}

// StoredResult describes what a stored command did.
type StoredResult struct {
	Identifier string       `json:"identifier"`
	Instance   string       `json:"instance"`
	Found      bool         `json:"found"`
	Quote      *QuoteResult `json:"quote,omitempty"`
}

func (r StoredResult) String() string {
	if !r.Found {
		return fmt.Sprintf("no cart stored for %s/%s", r.Instance, r.Identifier)
	}
	return fmt.Sprintf("cart %s/%s: ok", r.Instance, r.Identifier)
}

func NewStoredCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &storedOptions{}

	cmd := &cobra.Command{
		Use:   "stored",
		Short: "Inspect and manage stored carts",
	}

	cmd.PersistentFlags().StringVar(&opts.Identifier, "identifier", "", "stored cart identifier")
	cmd.PersistentFlags().StringVar(&opts.Instance, "instance", domain.DefaultInstance, "cart instance")
	_ = cmd.MarkPersistentFlagRequired("identifier")

	cmd.AddCommand(newStoredShowCommand(rootOpts, opts))
	cmd.AddCommand(newStoredEraseCommand(rootOpts, opts))
	cmd.AddCommand(newStoredRestoreCommand(rootOpts, opts))

	return cmd
}

func newStoredShowCommand(rootOpts *RootOptions, opts *storedOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the totals of a stored cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := openDeps(ctx, rootOpts.Config, rootOpts.Logger)
			if err != nil {
				return err
			}
			defer d.Close()

			stored, err := d.carts.Load(ctx, opts.Instance, opts.Identifier)
			if err != nil {
				return fmt.Errorf("carts.Load: %w", err)
			}

			cart, err := storedToCart(rootOpts, stored)
			if err != nil {
				return err
			}

			quote, err := NewQuoteResult(cart, rootOpts.Config.Pricing.DisplayDecimals)
			if err != nil {
				return err
			}

			result := StoredResult{Identifier: opts.Identifier, Instance: opts.Instance, Found: true, Quote: &quote}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(result)
			}
			return rootOpts.formatter(cmd).Success(quote)
		},
	}
}

func newStoredEraseCommand(rootOpts *RootOptions, opts *storedOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "erase",
		Short: "Delete a stored cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := openDeps(ctx, rootOpts.Config, rootOpts.Logger)
			if err != nil {
				return err
			}
			defer d.Close()

			key := port.CartKey{Session: "cartctl", Instance: opts.Instance}
			erased, err := d.service.Erase(ctx, key, opts.Identifier)
			if err != nil {
				return err
			}

			return rootOpts.formatter(cmd).Success(StoredResult{
				Identifier: opts.Identifier,
				Instance:   opts.Instance,
				Found:      erased,
			})
		},
	}
}

func newStoredRestoreCommand(rootOpts *RootOptions, opts *storedOptions) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Move a stored cart into a live session",
		Long: `Move a stored cart into the live session given by --session.

The stored record is deleted once the session was saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			d, err := openDeps(ctx, rootOpts.Config, rootOpts.Logger)
			if err != nil {
				return err
			}
			defer d.Close()

			key := port.CartKey{Session: session, Instance: opts.Instance}
			restored, err := d.service.Restore(ctx, key, opts.Identifier)
			if err != nil {
				return err
			}

			result := StoredResult{Identifier: opts.Identifier, Instance: opts.Instance, Found: restored}
			if restored {
				cart, err := d.service.Cart(ctx, key)
				if err != nil {
					return err
				}
				quote, err := NewQuoteResult(cart, rootOpts.Config.Pricing.DisplayDecimals)
				if err != nil {
					return err
				}
				result.Quote = &quote
			}

			return rootOpts.formatter(cmd).Success(result)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "live session to restore into")
	_ = cmd.MarkFlagRequired("session")

	return cmd
}

func storedToCart(rootOpts *RootOptions, stored record.StoredCart) (*domain.Cart, error) {
	pricing := rootOpts.Config.Pricing

	cur, err := pricing.CurrencyUnit()
	if err != nil {
		return nil, err
	}
	opts, err := pricing.CartOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		domain.WithInstance(stored.Instance),
		domain.WithTimestamps(stored.CreatedAt, stored.UpdatedAt),
	)

	cart, err := domain.NewCart(cur, opts...)
	if err != nil {
		return nil, fmt.Errorf("domain.NewCart: %w", err)
	}

	items, err := record.ToDomainItems(stored.Items)
	if err != nil {
		return nil, fmt.Errorf("record.ToDomainItems: %w", err)
	}
	for _, item := range items {
		if err := cart.Put(item); err != nil {
			return nil, fmt.Errorf("cart.Put: %w", err)
		}
	}

	return cart, nil
}
